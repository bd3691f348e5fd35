// internal/clients/circulation_client.go
package clients

import (
	"context"
	"net/http"
	"net/url"

	"libraripro/internal/calendar"
	"libraripro/internal/circulation"
	"libraripro/internal/eventstore"
)

// CirculationClient implements circulation.Service against a remote API.
type CirculationClient struct {
	c *client
}

var _ circulation.Service = (*CirculationClient)(nil)

func NewCirculationClient(baseURL string, opts ...Option) *CirculationClient {
	return &CirculationClient{c: newClient("circulation", baseURL, opts...)}
}

func (c *CirculationClient) transaction(ctx context.Context, method, path string, in any) (*circulation.Transaction, error) {
	var t circulation.Transaction
	if err := c.c.call(ctx, method, path, nil, in, "transaction", &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *CirculationClient) IssueBook(ctx context.Context, req circulation.IssueRequest) (*circulation.Transaction, error) {
	return c.transaction(ctx, http.MethodPost, "/transactions", req)
}

func (c *CirculationClient) ReturnBook(ctx context.Context, req circulation.ReturnRequest) (*circulation.Transaction, error) {
	return c.transaction(ctx, http.MethodPost, pathID("/transactions/%s/return", req.TransactionID), req)
}

func (c *CirculationClient) RenewBook(ctx context.Context, transactionID string) (*circulation.Transaction, error) {
	return c.transaction(ctx, http.MethodPost, pathID("/transactions/%s/renew", transactionID), nil)
}

func (c *CirculationClient) QuickReturn(ctx context.Context, transactionID string) (*circulation.Transaction, error) {
	return c.transaction(ctx, http.MethodPost, pathID("/transactions/%s/quick-return", transactionID), nil)
}

func (c *CirculationClient) GetTransaction(ctx context.Context, id string) (*circulation.Transaction, error) {
	return c.transaction(ctx, http.MethodGet, pathID("/transactions/%s", id), nil)
}

func (c *CirculationClient) ListTransactions(ctx context.Context, f circulation.Filter) ([]circulation.Transaction, error) {
	q := url.Values{}
	setIf(q, "q", f.Query)
	setIf(q, "status", f.Status)
	setIf(q, "memberId", f.MemberID)
	setIf(q, "bookId", f.BookID)
	setIf(q, "issuedOn", f.IssuedOn.String())
	setIf(q, "asOf", f.AsOf.String())

	var transactions []circulation.Transaction
	if err := c.c.call(ctx, http.MethodGet, "/transactions", q, nil, "transactions", &transactions); err != nil {
		return nil, err
	}
	return transactions, nil
}

func (c *CirculationClient) History(ctx context.Context, transactionID string) ([]eventstore.Event, error) {
	var events []eventstore.Event
	if err := c.c.call(ctx, http.MethodGet, pathID("/transactions/%s/history", transactionID), nil, nil, "events", &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *CirculationClient) DisplayStatus(ctx context.Context, transactionID string, asOf calendar.Date) (circulation.DisplayStatus, error) {
	q := url.Values{}
	setIf(q, "asOf", asOf.String())

	var status circulation.DisplayStatus
	if err := c.c.call(ctx, http.MethodGet, pathID("/transactions/%s/status", transactionID), q, nil, "status", &status); err != nil {
		return "", err
	}
	return status, nil
}

func (c *CirculationClient) LookupByCode(ctx context.Context, code string) ([]circulation.Holding, error) {
	var holdings []circulation.Holding
	if err := c.c.call(ctx, http.MethodGet, pathID("/holdings/%s", code), nil, nil, "holdings", &holdings); err != nil {
		return nil, err
	}
	return holdings, nil
}

func (c *CirculationClient) Stats(ctx context.Context, asOf calendar.Date) (*circulation.Stats, error) {
	q := url.Values{}
	setIf(q, "asOf", asOf.String())

	var stats circulation.Stats
	if err := c.c.call(ctx, http.MethodGet, "/stats", q, nil, "stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *CirculationClient) Verify(ctx context.Context) ([]circulation.Violation, error) {
	var violations []circulation.Violation
	if err := c.c.call(ctx, http.MethodGet, "/verify", nil, nil, "violations", &violations); err != nil {
		return nil, err
	}
	return violations, nil
}
