// internal/membership/implementation.go
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"libraripro/internal/apperr"
	"libraripro/internal/calendar"
	"libraripro/internal/ids"
	"libraripro/internal/store"
	"libraripro/internal/validator"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

var (
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

const minPasswordLength = 6

// service implements the Service interface.
type service struct {
	store       store.Store
	now         func() time.Time
	logger      *slog.Logger
	tracer      trace.Tracer
	rateLimiter *rate.Limiter
}

type Option func(*service)

// WithRegistrationLimiter replaces the default limit of 5 registration or
// sign-in attempts per minute.
func WithRegistrationLimiter(l *rate.Limiter) Option {
	return func(s *service) { s.rateLimiter = l }
}

// NewService creates a new membership service instance. A nil now uses time.Now.
func NewService(st store.Store, now func() time.Time, logger *slog.Logger, opts ...Option) Service {
	if now == nil {
		now = time.Now
	}
	s := &service{
		store:       st,
		now:         now,
		logger:      logger,
		tracer:      otel.Tracer("libraripro/membership"),
		rateLimiter: rate.NewLimiter(rate.Every(1*time.Minute), 5),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddMember enrols a new member. Status defaults to Active.
func (s *service) AddMember(ctx context.Context, in MemberInput) (*Member, error) {
	ctx, span := s.tracer.Start(ctx, "membership.add_member")
	defer span.End()

	in = in.normalized()
	if in.Status == "" {
		in.Status = StatusActive
	}
	if err := validateMember(in); err != nil {
		return nil, err
	}

	var member Member
	err := s.store.Update(ctx, func(tx store.Tx) error {
		members, err := OpenCollection(tx)
		if err != nil {
			return err
		}
		if members.EmailTaken(in.Email, "") {
			return apperr.Conflict("a member with email %s already exists", in.Email)
		}
		id, err := ids.Allocate(tx, ids.MemberPrefix, members.IDs())
		if err != nil {
			return fmt.Errorf("failed to generate member id: %w", err)
		}

		member = Member{
			ID:       id,
			Name:     in.Name,
			Email:    in.Email,
			Phone:    in.Phone,
			Type:     in.Type,
			Status:   in.Status,
			Address:  in.Address,
			JoinDate: calendar.FromTime(s.now()),
		}
		members.Insert(member)
		return members.Flush()
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("member.id", member.ID))
	s.logger.Info("member added", "member_id", member.ID, "type", member.Type)
	return &member, nil
}

// GetMember retrieves a member by id.
func (s *service) GetMember(ctx context.Context, id string) (*Member, error) {
	var member Member
	err := s.store.View(ctx, func(tx store.Tx) error {
		members, err := OpenCollection(tx)
		if err != nil {
			return err
		}
		m, ok := members.Member(id)
		if !ok {
			return apperr.NotFound("member", id)
		}
		member = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// UpdateMember edits a member. Transactions keep the name they were issued with.
func (s *service) UpdateMember(ctx context.Context, id string, in MemberInput) (*Member, error) {
	ctx, span := s.tracer.Start(ctx, "membership.update_member", trace.WithAttributes(
		attribute.String("member.id", id),
	))
	defer span.End()

	in = in.normalized()

	var member Member
	err := s.store.Update(ctx, func(tx store.Tx) error {
		members, err := OpenCollection(tx)
		if err != nil {
			return err
		}
		m, ok := members.Member(id)
		if !ok {
			return apperr.NotFound("member", id)
		}
		if in.Status == "" {
			in.Status = m.Status
		}
		if err := validateMember(in); err != nil {
			return err
		}
		if members.EmailTaken(in.Email, id) {
			return apperr.Conflict("a member with email %s already exists", in.Email)
		}

		m.Name = in.Name
		m.Email = in.Email
		m.Phone = in.Phone
		m.Type = in.Type
		m.Status = in.Status
		m.Address = in.Address
		if err := members.PutMember(m); err != nil {
			return err
		}
		member = m
		return members.Flush()
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("member updated", "member_id", id, "status", member.Status)
	return &member, nil
}

// openLoan is the slice of a transaction record needed to guard member removal.
type openLoan struct {
	MemberID string `json:"memberId"`
	Status   string `json:"status"`
}

// RemoveMember deletes a member with no open transactions.
func (s *service) RemoveMember(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "membership.remove_member", trace.WithAttributes(
		attribute.String("member.id", id),
	))
	defer span.End()

	err := s.store.Update(ctx, func(tx store.Tx) error {
		members, err := OpenCollection(tx)
		if err != nil {
			return err
		}
		if _, ok := members.Member(id); !ok {
			return apperr.NotFound("member", id)
		}

		var loans []openLoan
		if err := tx.Load(store.Transactions, &loans); err != nil {
			return err
		}
		for _, l := range loans {
			if l.MemberID == id && l.Status != "Returned" {
				return apperr.Conflict("member %s has books on loan and cannot be removed", id)
			}
		}

		members.Delete(id)
		return members.Flush()
	})
	if err != nil {
		return err
	}

	s.logger.Info("member removed", "member_id", id)
	return nil
}

func (s *service) ListMembers(ctx context.Context, f Filter) ([]Member, error) {
	out := []Member{}
	err := s.store.View(ctx, func(tx store.Tx) error {
		members, err := OpenCollection(tx)
		if err != nil {
			return err
		}
		for _, m := range members.All() {
			if f.Matches(m) {
				out = append(out, m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterUser creates a librarian account with an Argon2id password hash.
func (s *service) RegisterUser(ctx context.Context, reg Registration) (*User, error) {
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}

	ctx, span := s.tracer.Start(ctx, "membership.register_user")
	defer span.End()

	reg.Name = strings.TrimSpace(reg.Name)
	reg.Email = strings.TrimSpace(reg.Email)

	v := validator.New()
	v.Check(reg.Name != "", "name", "must be provided")
	v.Check(reg.Email != "", "email", "must be provided")
	v.Check(validator.Matches(reg.Email, validator.EmailRX), "email", "must be a valid email address")
	v.Check(len(reg.Password) >= minPasswordLength, "password", fmt.Sprintf("must be at least %d characters long", minPasswordLength))
	if err := v.Err(); err != nil {
		return nil, err
	}

	creds, err := hashPassword(reg.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var user User
	err = s.store.Update(ctx, func(tx store.Tx) error {
		var users []userRecord
		if err := tx.Load(store.Users, &users); err != nil {
			return err
		}
		existing := make([]string, 0, len(users))
		for _, u := range users {
			if strings.EqualFold(u.Email, reg.Email) {
				return apperr.Conflict("a user with email %s already exists", reg.Email)
			}
			existing = append(existing, u.ID)
		}
		id, err := ids.Allocate(tx, ids.UserPrefix, existing)
		if err != nil {
			return fmt.Errorf("failed to generate user id: %w", err)
		}

		user = User{
			ID:        id,
			Name:      reg.Name,
			Email:     reg.Email,
			Role:      RoleLibrarian,
			CreatedAt: s.now().UTC(),
		}
		return tx.Save(store.Users, append(users, userRecord{User: user, Credentials: creds}))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return &user, nil
}

// Authenticate checks a librarian's password. Unknown emails and wrong
// passwords both return ErrInvalidCredentials.
func (s *service) Authenticate(ctx context.Context, login Login) (*User, error) {
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}

	ctx, span := s.tracer.Start(ctx, "membership.authenticate")
	defer span.End()

	email := strings.TrimSpace(login.Email)
	var record *userRecord
	err := s.store.View(ctx, func(tx store.Tx) error {
		var users []userRecord
		if err := tx.Load(store.Users, &users); err != nil {
			return err
		}
		for i := range users {
			if strings.EqualFold(users[i].Email, email) {
				record = &users[i]
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	if record == nil {
		return nil, ErrInvalidCredentials
	}

	ok, err := record.Credentials.matches(login.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		s.logger.Warn("failed login", "user_id", record.ID)
		return nil, ErrInvalidCredentials
	}
	return &record.User, nil
}

func (in MemberInput) normalized() MemberInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	return in
}

func validateMember(in MemberInput) error {
	v := validator.New()
	v.Check(in.Name != "", "name", "must be provided")
	v.Check(in.Email != "", "email", "must be provided")
	v.Check(validator.Matches(in.Email, validator.EmailRX), "email", "must be a valid email address")
	v.Check(validator.In(string(in.Type),
		string(TypeStudent), string(TypeFaculty), string(TypeStaff), string(TypePublic), string(TypeAdmin)),
		"type", "must be one of Student, Faculty, Staff, Public, Admin")
	v.Check(validator.In(string(in.Status), string(StatusActive), string(StatusInactive)),
		"status", "must be Active or Inactive")
	return v.Err()
}
