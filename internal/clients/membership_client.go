// internal/clients/membership_client.go
package clients

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"libraripro/internal/membership"
)

// MembershipClient implements membership.Service against a remote API.
type MembershipClient struct {
	c *client
}

var _ membership.Service = (*MembershipClient)(nil)

func NewMembershipClient(baseURL string, opts ...Option) *MembershipClient {
	return &MembershipClient{c: newClient("membership", baseURL, opts...)}
}

func (c *MembershipClient) AddMember(ctx context.Context, in membership.MemberInput) (*membership.Member, error) {
	var member membership.Member
	if err := c.c.call(ctx, http.MethodPost, "/members", nil, in, "member", &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (c *MembershipClient) GetMember(ctx context.Context, id string) (*membership.Member, error) {
	var member membership.Member
	if err := c.c.call(ctx, http.MethodGet, pathID("/members/%s", id), nil, nil, "member", &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (c *MembershipClient) UpdateMember(ctx context.Context, id string, in membership.MemberInput) (*membership.Member, error) {
	var member membership.Member
	if err := c.c.call(ctx, http.MethodPut, pathID("/members/%s", id), nil, in, "member", &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (c *MembershipClient) RemoveMember(ctx context.Context, id string) error {
	return c.c.call(ctx, http.MethodDelete, pathID("/members/%s", id), nil, nil, "", nil)
}

func (c *MembershipClient) ListMembers(ctx context.Context, f membership.Filter) ([]membership.Member, error) {
	q := url.Values{}
	setIf(q, "q", f.Query)
	setIf(q, "type", string(f.Type))
	setIf(q, "status", string(f.Status))

	var members []membership.Member
	if err := c.c.call(ctx, http.MethodGet, "/members", q, nil, "members", &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (c *MembershipClient) RegisterUser(ctx context.Context, reg membership.Registration) (*membership.User, error) {
	var user membership.User
	err := c.c.call(ctx, http.MethodPost, "/users", nil, reg, "user", &user)
	var ce *clientError
	if errors.As(err, &ce) && ce.status == http.StatusTooManyRequests {
		return nil, membership.ErrRateLimited
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *MembershipClient) Authenticate(ctx context.Context, login membership.Login) (*membership.User, error) {
	var user membership.User
	err := c.c.call(ctx, http.MethodPost, "/users/authenticate", nil, login, "user", &user)
	var ce *clientError
	if errors.As(err, &ce) {
		switch ce.status {
		case http.StatusUnauthorized:
			return nil, membership.ErrInvalidCredentials
		case http.StatusTooManyRequests:
			return nil, membership.ErrRateLimited
		}
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
