// internal/clients/catalog_client.go
package clients

import (
	"context"
	"net/http"
	"net/url"

	"libraripro/internal/catalog"
)

// CatalogClient implements catalog.Service against a remote API.
type CatalogClient struct {
	c *client
}

var _ catalog.Service = (*CatalogClient)(nil)

// NewCatalogClient talks to the server at baseURL, e.g. http://host:8080.
// The /api/v1 prefix is added when baseURL does not already end with it.
func NewCatalogClient(baseURL string, opts ...Option) *CatalogClient {
	return &CatalogClient{c: newClient("catalog", baseURL, opts...)}
}

func (c *CatalogClient) AddBook(ctx context.Context, in catalog.BookInput) (*catalog.Book, error) {
	var book catalog.Book
	if err := c.c.call(ctx, http.MethodPost, "/books", nil, in, "book", &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *CatalogClient) GetBook(ctx context.Context, id string) (*catalog.Book, error) {
	var book catalog.Book
	if err := c.c.call(ctx, http.MethodGet, pathID("/books/%s", id), nil, nil, "book", &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *CatalogClient) UpdateBook(ctx context.Context, id string, in catalog.BookInput) (*catalog.Book, error) {
	var book catalog.Book
	if err := c.c.call(ctx, http.MethodPut, pathID("/books/%s", id), nil, in, "book", &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *CatalogClient) RemoveBook(ctx context.Context, id string) error {
	return c.c.call(ctx, http.MethodDelete, pathID("/books/%s", id), nil, nil, "", nil)
}

func (c *CatalogClient) ListBooks(ctx context.Context, f catalog.Filter) ([]catalog.Book, error) {
	q := url.Values{}
	setIf(q, "q", f.Query)
	setIf(q, "category", f.Category)
	setIf(q, "status", string(f.Status))

	var books []catalog.Book
	if err := c.c.call(ctx, http.MethodGet, "/books", q, nil, "books", &books); err != nil {
		return nil, err
	}
	return books, nil
}

func (c *CatalogClient) FindByCode(ctx context.Context, code string) ([]catalog.Book, error) {
	var books []catalog.Book
	if err := c.c.call(ctx, http.MethodGet, pathID("/books/lookup/%s", code), nil, nil, "books", &books); err != nil {
		return nil, err
	}
	return books, nil
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
