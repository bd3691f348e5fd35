// internal/membership/service.go
package membership

import (
	"context"
)

// Service defines the interface for the membership service.
type Service interface {
	AddMember(ctx context.Context, in MemberInput) (*Member, error)
	GetMember(ctx context.Context, id string) (*Member, error)
	UpdateMember(ctx context.Context, id string, in MemberInput) (*Member, error)
	RemoveMember(ctx context.Context, id string) error
	ListMembers(ctx context.Context, f Filter) ([]Member, error)
	RegisterUser(ctx context.Context, reg Registration) (*User, error)
	Authenticate(ctx context.Context, login Login) (*User, error)
}
