package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"libraripro/internal/app"
	"libraripro/internal/calendar"
	"libraripro/internal/catalog"
	"libraripro/internal/circulation"
	"libraripro/internal/config"
	"libraripro/internal/store"
	"libraripro/internal/web"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		HTTP:      config.HTTPConfig{Port: 0},
		Store:     config.StoreConfig{Driver: "memory"},
		RateLimit: config.RateLimitConfig{RPS: 1000, Burst: 1000},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*httptest.Server, *app.App) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := func() time.Time { return time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC) }
	a, err := app.New(store.NewMemoryStore(), circulation.DefaultPolicy(), now, logger)
	require.NoError(t, err)

	srv := httptest.NewServer(New(cfg, Services{
		Catalog:     a.Catalog,
		Membership:  a.Membership,
		Circulation: a.Circulation,
	}, logger).Routes())
	t.Cleanup(srv.Close)
	return srv, a
}

func send(t *testing.T, method, url, body string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var env map[string]json.RawMessage
	if res.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(res.Body).Decode(&env))
	}
	return res, env
}

func TestEndToEndLoan(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	api := srv.URL + "/api/v1"

	res, env := send(t, http.MethodPost, api+"/books", `{"title":"Dune","author":"Frank Herbert","category":"Fiction","isbn":"978-0441013593"}`)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var book catalog.Book
	require.NoError(t, json.Unmarshal(env["book"], &book))

	res, _ = send(t, http.MethodPost, api+"/members", `{"name":"Ada Lovelace","email":"ada@example.com","type":"Faculty"}`)
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res, env = send(t, http.MethodPost, api+"/transactions",
		`{"bookId":"`+book.ID+`","memberId":"M001","issueDate":"2024-01-01","dueDate":"2024-01-15"}`)
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res, _ = send(t, http.MethodDelete, api+"/books/"+book.ID, "")
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res, env = send(t, http.MethodGet, api+"/holdings/9780441013593", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var holdings []circulation.Holding
	require.NoError(t, json.Unmarshal(env["holdings"], &holdings))
	require.Len(t, holdings, 1)
	require.NotNil(t, holdings[0].Transaction)

	res, env = send(t, http.MethodPost, api+"/transactions/T001/quick-return", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var tx circulation.Transaction
	require.NoError(t, json.Unmarshal(env["transaction"], &tx))
	require.NotNil(t, tx.Fine)
	assert.Equal(t, 5, tx.Fine.OverdueDays)

	res, env = send(t, http.MethodGet, api+"/stats", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var stats circulation.Stats
	require.NoError(t, json.Unmarshal(env["stats"], &stats))
	assert.Equal(t, "5.00", stats.OutstandingFines.StringFixed(2))
	assert.Equal(t, "2024-01-20", stats.AsOf.String())
}

func TestHealthAndNotFound(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	res, env := send(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `"available"`, string(env["status"]))

	res, env = send(t, http.MethodGet, srv.URL+"/api/v2/books", "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	var body web.ErrorBody
	require.NoError(t, json.Unmarshal(env["error"], &body))
	assert.Equal(t, web.KindNotFound, body.Kind)

	res, _ = send(t, http.MethodPatch, srv.URL+"/api/v1/books", "")
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
}

func TestRateLimitPerIP(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RPS: 0.001, Burst: 2}
	srv, _ := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		res, _ := send(t, http.MethodGet, srv.URL+"/healthz", "")
		require.Equal(t, http.StatusOK, res.StatusCode)
	}
	res, env := send(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	var body web.ErrorBody
	require.NoError(t, json.Unmarshal(env["error"], &body))
	assert.Equal(t, web.KindRateLimited, body.Kind)
}

func TestIPLimiterEvictsIdleClients(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newIPLimiter(1, 1, func() time.Time { return now })

	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))

	now = now.Add(5 * time.Minute)
	assert.True(t, l.allow("10.0.0.2"))
	assert.NotContains(t, l.clients, "10.0.0.1")
}

type panickingLedger struct{ circulation.Service }

func (panickingLedger) Stats(context.Context, calendar.Date) (*circulation.Stats, error) {
	panic("boom")
}

func TestRecoverPanic(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(New(testConfig(), Services{Circulation: panickingLedger{}}, logger).Routes())
	t.Cleanup(srv.Close)

	res, env := send(t, http.MethodGet, srv.URL+"/api/v1/stats", "")
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	var body web.ErrorBody
	require.NoError(t, json.Unmarshal(env["error"], &body))
	assert.Equal(t, web.KindInternal, body.Kind)
}

func TestServeReturnsWhenThePortIsTaken(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig()
	cfg.HTTP.Port = ln.Addr().(*net.TCPAddr).Port
	srv := New(cfg, Services{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background()) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after failing to listen")
	}
}
