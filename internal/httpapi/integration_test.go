package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"libraripro/internal/app"
	"libraripro/internal/catalog"
	"libraripro/internal/circulation"
	"libraripro/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sqliteServer runs the API on a fresh sqlite database, the default deployment.
func sqliteServer(t *testing.T) (string, *app.App) {
	t.Helper()
	cfg := testConfig()
	cfg.Store = config.StoreConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "library.db")}
	cfg.Policy = config.PolicyConfig{LoanDays: 14, RenewalDays: 14, FinePerDay: "1.00", DueSoonDays: 3}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.Open(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	srv := httptest.NewServer(New(cfg, Services{
		Catalog:     a.Catalog,
		Membership:  a.Membership,
		Circulation: a.Circulation,
	}, logger).Routes())
	t.Cleanup(srv.Close)
	return srv.URL + "/api/v1", a
}

func TestCheckoutFlow(t *testing.T) {
	api, _ := sqliteServer(t)

	res, env := send(t, http.MethodPost, api+"/members", `{"name":"Test User","email":"test@example.com","type":"Public"}`)
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res, env = send(t, http.MethodPost, api+"/books", `{"isbn":"9780141439518","title":"Pride and Prejudice","author":"Jane Austen","category":"Classics"}`)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var book catalog.Book
	require.NoError(t, json.Unmarshal(env["book"], &book))

	res, env = send(t, http.MethodPost, api+"/transactions",
		`{"bookId":"`+book.ID+`","memberId":"M001","issueDate":"2024-03-01","dueDate":"2024-03-15"}`)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var loan circulation.Transaction
	require.NoError(t, json.Unmarshal(env["transaction"], &loan))

	res, env = send(t, http.MethodGet, api+"/books/"+book.ID, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.Unmarshal(env["book"], &book))
	assert.Equal(t, catalog.StatusIssued, book.Status)

	res, _ = send(t, http.MethodPost, api+"/transactions/"+loan.ID+"/return", `{"returnDate":"2024-03-10"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, env = send(t, http.MethodGet, api+"/books/"+book.ID, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.Unmarshal(env["book"], &book))
	assert.Equal(t, catalog.StatusAvailable, book.Status)

	res, env = send(t, http.MethodGet, api+"/transactions/"+loan.ID+"/history", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var events []json.RawMessage
	require.NoError(t, json.Unmarshal(env["events"], &events))
	assert.Len(t, events, 2)
}

func TestConcurrentCheckoutPreventsDoubleBooking(t *testing.T) {
	api, a := sqliteServer(t)

	res, env := send(t, http.MethodPost, api+"/books", `{"isbn":"9780743273565","title":"The Great Gatsby","author":"F. Scott Fitzgerald","category":"Classics"}`)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var book catalog.Book
	require.NoError(t, json.Unmarshal(env["book"], &book))

	memberIDs := make([]string, 10)
	for i := range memberIDs {
		res, env := send(t, http.MethodPost, api+"/members",
			fmt.Sprintf(`{"name":"Member %d","email":"member%d@test.com","type":"Student"}`, i, i))
		require.Equal(t, http.StatusCreated, res.StatusCode)
		var m struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(env["member"], &m))
		memberIDs[i] = m.ID
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for _, memberID := range memberIDs {
		wg.Add(1)
		go func(memberID string) {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodPost, api+"/transactions", strings.NewReader(
				`{"bookId":"`+book.ID+`","memberId":"`+memberID+`","issueDate":"2024-03-01","dueDate":"2024-03-15"}`))
			if err != nil {
				return
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return
			}
			resp.Body.Close()

			mu.Lock()
			defer mu.Unlock()
			switch resp.StatusCode {
			case http.StatusCreated:
				successes++
			case http.StatusConflict:
				conflicts++
			}
		}(memberID)
	}
	wg.Wait()

	assert.Equal(t, 1, successes, "only one concurrent checkout should succeed")
	assert.Equal(t, len(memberIDs)-1, conflicts)

	open, err := a.Circulation.ListTransactions(context.Background(), circulation.Filter{Status: string(circulation.StatusIssued)})
	require.NoError(t, err)
	assert.Len(t, open, 1)

	violations, err := a.Circulation.Verify(context.Background())
	require.NoError(t, err)
	assert.Empty(t, violations)
}
