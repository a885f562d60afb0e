package user

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/clinicdesk/clinicdesk/internal/platform/actionlog"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/session"
	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

type Service struct {
	store   store.Store
	signer  *auth.Signer
	gate    *session.Gate
	actions actionlog.Recorder
}

func NewService(s store.Store, signer *auth.Signer, gate *session.Gate, actions actionlog.Recorder) *Service {
	return &Service{store: s, signer: signer, gate: gate, actions: actions}
}

// SignUp registers a staff account. Emails are unique; an account
// with no recognized role is created as receptionist.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return User{}, fmt.Errorf("a valid email is required")
	}
	if in.Name == "" {
		return User{}, fmt.Errorf("name is required")
	}
	if len(in.Password) < 6 {
		return User{}, fmt.Errorf("password must be at least 6 characters")
	}
	if !auth.ValidRole(in.Role) {
		in.Role = auth.DefaultRole
	}

	if _, err := s.findByEmail(ctx, in.Email); err == nil {
		return User{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	rec, err := s.store.Create(ctx, Collection, map[string]any{
		"email":        in.Email,
		"name":         in.Name,
		"role":         in.Role,
		"passwordHash": string(hash),
	})
	if err != nil {
		return User{}, fmt.Errorf("create account: %w", err)
	}

	var u User
	if err := store.Decode(rec, &u); err != nil {
		return User{}, err
	}

	s.actions.Record(ctx, actionlog.Entry{
		Action: "user.registered",
		Actor:  u.Email,
		Role:   u.Role,
	})
	return u, nil
}

// SignIn checks credentials, seats the session, and returns the
// account plus a bearer token. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *Service) SignIn(ctx context.Context, in SignInInput) (User, string, error) {
	s.gate.Begin()

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	u, err := s.findByEmail(ctx, in.Email)
	if err != nil {
		s.gate.Abort()
		return User{}, "", ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		s.gate.Abort()
		return User{}, "", ErrInvalidCredentials
	}

	tokenString, err := s.signer.Issue(u.ID, u.Email, u.Role)
	if err != nil {
		s.gate.Abort()
		return User{}, "", fmt.Errorf("issue token: %w", err)
	}

	if err := s.gate.Establish(ctx, session.Identity{
		UserID: u.ID, Email: u.Email, Role: u.Role,
	}); err != nil {
		return User{}, "", fmt.Errorf("establish session: %w", err)
	}

	s.actions.Record(ctx, actionlog.Entry{
		Action: "user.signed-in",
		Actor:  u.Email,
		Role:   u.Role,
	})
	return u, tokenString, nil
}

// SignOut ends the desk session and cancels its live feeds.
func (s *Service) SignOut(ctx context.Context) {
	ident := s.gate.Identity()
	s.gate.SignOut()
	if ident.Email != "" {
		s.actions.Record(ctx, actionlog.Entry{
			Action: "user.signed-out",
			Actor:  ident.Email,
			Role:   ident.Role,
		})
	}
}

func (s *Service) findByEmail(ctx context.Context, email string) (User, error) {
	recs, err := s.store.List(ctx, Collection, store.OrderBy{Field: "createdAt"})
	if err != nil {
		return User{}, err
	}
	for _, rec := range recs {
		if e, _ := rec["email"].(string); e == email {
			var u User
			if err := store.Decode(rec, &u); err != nil {
				return User{}, err
			}
			return u, nil
		}
	}
	return User{}, store.ErrNotFound
}
