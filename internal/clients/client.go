// internal/clients/client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"libraripro/internal/apperr"
	"libraripro/internal/web"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
)

// ErrUnexpectedResponse is returned for replies that are not a JSON envelope.
var ErrUnexpectedResponse = errors.New("unexpected response from library API")

const (
	// APIPrefix is where the server mounts the versioned API.
	APIPrefix = "/api/v1"

	maxGetAttempts = 3
	breakerTrips   = 5
)

// Option configures a remote client.
type Option func(*client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.http = hc }
}

// WithRetryInterval sets the first backoff interval between GET attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(c *client) { c.retryInterval = d }
}

// client is the transport shared by the typed clients: every call passes a
// circuit breaker, and GETs are retried with exponential backoff. Domain
// errors decoded from the API neither trip the breaker nor get retried.
type client struct {
	baseURL       string
	http          *http.Client
	breaker       *gobreaker.CircuitBreaker
	retryInterval time.Duration
}

func newClient(name, baseURL string, opts ...Option) *client {
	c := &client{
		baseURL:       apiBase(baseURL),
		http:          http.DefaultClient,
		retryInterval: 100 * time.Millisecond,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTrips
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isDomainError(err)
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiBase accepts either the server root (http://host:8080) or the API
// root (http://host:8080/api/v1) and returns the API root.
func apiBase(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(base, APIPrefix) {
		return base
	}
	return base + APIPrefix
}

func isDomainError(err error) bool {
	return errors.Is(err, apperr.ErrValidation) ||
		errors.Is(err, apperr.ErrNotFound) ||
		errors.Is(err, apperr.ErrConflict)
}

// clientError is a 4xx reply outside the apperr taxonomy, such as a bad request.
type clientError struct {
	status int
	body   web.ErrorBody
}

func (e *clientError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.body.Message, e.status)
}

// call sends one request and decodes the envelope key into dst when dst is not nil.
func (c *client) call(ctx context.Context, method, path string, query url.Values, in any, key string, dst any) error {
	attempt := func() error {
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.roundTrip(ctx, method, path, query, in, key, dst)
		})
		return err
	}

	if method != http.MethodGet {
		return attempt()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := attempt()
		if err != nil && !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(maxGetAttempts))
	return err
}

// retryable reports whether a failed GET may succeed on another attempt.
func retryable(err error) bool {
	var ce *clientError
	switch {
	case isDomainError(err), errors.As(err, &ce):
		return false
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

func (c *client) roundTrip(ctx context.Context, method, path string, query url.Values, in any, key string, dst any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: status %d: %v", ErrUnexpectedResponse, resp.StatusCode, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var eb web.ErrorBody
		if raw, ok := env["error"]; ok {
			if err := json.Unmarshal(raw, &eb); err != nil {
				return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
			}
		}
		apiErr := eb.AsError()
		if isDomainError(apiErr) {
			return apiErr
		}
		if resp.StatusCode < http.StatusInternalServerError {
			return &clientError{status: resp.StatusCode, body: eb}
		}
		return fmt.Errorf("server error (status %d): %w", resp.StatusCode, apiErr)
	}

	if dst == nil {
		return nil
	}
	raw, ok := env[key]
	if !ok {
		return fmt.Errorf("%w: missing %q", ErrUnexpectedResponse, key)
	}
	return json.Unmarshal(raw, dst)
}

func pathID(format string, ids ...string) string {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = url.PathEscape(id)
	}
	return fmt.Sprintf(format, args...)
}
