package circulation

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"libraripro/internal/web"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, f *fixture) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(f.ledger, slog.New(slog.NewTextHandler(io.Discard, nil))).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (int, map[string]json.RawMessage) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var env map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(res.Body).Decode(&env))
	return res.StatusCode, env
}

func TestHandlerIssueReturnFlow(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	book := f.book(t, "Dune")
	member := f.member(t, "Ada Lovelace")
	srv := newTestServer(t, f)

	status, env := do(t, http.MethodPost, srv.URL+"/transactions",
		`{"bookId":"`+book.ID+`","memberId":"`+member.ID+`","issueDate":"2024-01-01","dueDate":"2024-01-15"}`)
	require.Equal(t, http.StatusCreated, status)
	var issued Transaction
	require.NoError(t, json.Unmarshal(env["transaction"], &issued))
	assert.Equal(t, "T001", issued.ID)

	status, env = do(t, http.MethodPost, srv.URL+"/transactions",
		`{"bookId":"`+book.ID+`","memberId":"`+member.ID+`","issueDate":"2024-01-01","dueDate":"2024-01-15"}`)
	assert.Equal(t, http.StatusConflict, status)
	var body web.ErrorBody
	require.NoError(t, json.Unmarshal(env["error"], &body))
	assert.Equal(t, web.KindConflict, body.Kind)

	status, env = do(t, http.MethodGet, srv.URL+"/transactions/T001/status?asOf=2024-01-16", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `"Overdue"`, string(env["status"]))

	status, env = do(t, http.MethodPost, srv.URL+"/transactions/T001/return",
		`{"returnDate":"2024-01-20","condition":"Good","notes":"","fineWaived":false,"finePaid":true}`)
	require.Equal(t, http.StatusOK, status)
	var returned Transaction
	require.NoError(t, json.Unmarshal(env["transaction"], &returned))
	assert.Equal(t, StatusReturned, returned.Status)
	require.NotNil(t, returned.Fine)
	assert.Equal(t, "5.00", returned.Fine.Amount.StringFixed(2))
	assert.True(t, returned.Fine.Paid)

	status, _ = do(t, http.MethodPost, srv.URL+"/transactions/T001/quick-return", "")
	assert.Equal(t, http.StatusConflict, status)

	status, env = do(t, http.MethodGet, srv.URL+"/transactions/T001/history", "")
	require.Equal(t, http.StatusOK, status)
	var events []json.RawMessage
	require.NoError(t, json.Unmarshal(env["events"], &events))
	assert.Len(t, events, 2)

	status, env = do(t, http.MethodGet, srv.URL+"/verify", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `true`, string(env["consistent"]))
}

func TestHandlerErrors(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	srv := newTestServer(t, f)

	status, env := do(t, http.MethodPost, srv.URL+"/transactions", `{"bookId":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	var body web.ErrorBody
	require.NoError(t, json.Unmarshal(env["error"], &body))
	assert.Contains(t, body.Fields, "bookId")
	assert.Contains(t, body.Fields, "issueDate")

	status, _ = do(t, http.MethodPost, srv.URL+"/transactions", `{"shelf":"A"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, http.MethodPost, srv.URL+"/transactions/T404/renew", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, http.MethodGet, srv.URL+"/stats?asOf=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHandlerRejectsMalformedDatesAsValidation(t *testing.T) {
	f := newFixture(t, DefaultPolicy())
	book := f.book(t, "Dune")
	member := f.member(t, "Ada Lovelace")
	srv := newTestServer(t, f)

	status, env := do(t, http.MethodPost, srv.URL+"/transactions",
		`{"bookId":"`+book.ID+`","memberId":"`+member.ID+`","issueDate":"soon","dueDate":"2024-01-15"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	var body web.ErrorBody
	require.NoError(t, json.Unmarshal(env["error"], &body))
	assert.Equal(t, web.KindValidation, body.Kind)
	assert.Contains(t, body.Fields, "issueDate")
	assert.NotContains(t, body.Fields, "dueDate")

	status, env = do(t, http.MethodPost, srv.URL+"/transactions",
		`{"bookId":"`+book.ID+`","memberId":"`+member.ID+`","issueDate":"2024-01-01","dueDate":"2024-01-15"}`)
	require.Equal(t, http.StatusCreated, status)
	var issued Transaction
	require.NoError(t, json.Unmarshal(env["transaction"], &issued))
	assert.Equal(t, "2024-01-15", issued.DueDate.String())

	status, env = do(t, http.MethodPost, srv.URL+"/transactions/"+issued.ID+"/return", `{"returnDate":"31/01/2024"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	body = web.ErrorBody{}
	require.NoError(t, json.Unmarshal(env["error"], &body))
	assert.Contains(t, body.Fields, "returnDate")
}
