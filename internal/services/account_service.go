package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/auth"
	"bilancio/internal/core"
	"bilancio/internal/gateway"
	applog "bilancio/internal/log"
)

const maxUserNameLength = 80

// Session is what a successful login hands back to the client.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      core.User `json:"user"`
}

// AccountService registers users and issues session tokens.
type AccountService struct {
	store  gateway.UserStore
	tokens *auth.Issuer
	now    func() time.Time
}

func NewAccountService(store gateway.UserStore, tokens *auth.Issuer) *AccountService {
	return &AccountService{store: store, tokens: tokens, now: time.Now}
}

func (s *AccountService) Register(ctx context.Context, email, name, password string) (core.User, error) {
	email, err := core.NormalizeEmail(email)
	if err != nil {
		return core.User{}, err
	}
	name = strings.TrimSpace(name)
	if len(name) > maxUserNameLength {
		return core.User{}, core.ErrNameTooLong
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return core.User{}, err
	}
	u := core.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	slog.InfoContext(ctx, "User registered", applog.FieldOwnerID, u.ID)
	return u, nil
}

// Login checks credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, email, password string) (Session, error) {
	email, err := core.NormalizeEmail(email)
	if err != nil {
		return Session{}, core.ErrInvalidCredentials
	}
	u, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		return Session{}, core.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return Session{}, err
	}
	token, exp, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return Session{}, err
	}
	slog.InfoContext(ctx, "User logged in", applog.FieldOwnerID, u.ID)
	return Session{Token: token, ExpiresAt: exp, User: u}, nil
}

// Me returns the signed-in user.
func (s *AccountService) Me(ctx context.Context) (core.User, error) {
	owner, err := core.OwnerFrom(ctx)
	if err != nil {
		return core.User{}, err
	}
	u, err := s.store.UserByID(ctx, owner)
	if err != nil {
		return core.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return u, nil
}
