package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"gshvpn_backend/internal/model"
	"gshvpn_backend/internal/repository"
)

const minPasswordLength = 6

type Accounts struct {
	store repository.Store
	log   zerolog.Logger
	opts  options
}

func NewAccounts(store repository.Store, log zerolog.Logger, opts ...Option) *Accounts {
	return &Accounts{
		store: store,
		log:   log.With().Str("component", "accounts").Logger(),
		opts:  newOptions(opts),
	}
}

func validateEmail(email string) error {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return fmt.Errorf("email %q: %w", email, ErrValidation)
	}
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return fmt.Errorf("email %q: %w", email, ErrValidation)
	}
	return nil
}

func (a *Accounts) newUser(email, password string, admin bool) (*model.User, error) {
	email = model.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("password shorter than %d characters: %w", minPasswordLength, ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.opts.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &model.User{Email: email, PasswordHash: string(hash), IsAdmin: admin, IsActive: true}, nil
}

// Register creates a regular account.
func (a *Accounts) Register(ctx context.Context, email, password string) (*model.User, error) {
	user, err := a.newUser(email, password, false)
	if err != nil {
		return nil, err
	}
	if err := a.store.Users().Create(ctx, user); err != nil {
		return nil, storeErr("create user", err)
	}
	a.log.Info().Uint("user_id", user.ID).Msg("user registered")
	return user, nil
}

// Authenticate checks the credentials and stamps the last login time.
func (a *Accounts) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	user, err := a.store.Users().GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, storeErr("load user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	now := a.opts.clock()
	if err := a.store.Users().UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, storeErr("update last login", err)
	}
	user.LastLogin = &now
	return user, nil
}

func (a *Accounts) Get(ctx context.Context, id uint) (*model.User, error) {
	user, err := a.store.Users().Get(ctx, id)
	if err != nil {
		return nil, storeErr("load user", err)
	}
	return user, nil
}

func (a *Accounts) List(ctx context.Context, limit, offset int) ([]model.User, error) {
	users, err := a.store.Users().List(ctx, limit, offset)
	if err != nil {
		return nil, storeErr("list users", err)
	}
	return users, nil
}

// EnsureAdmin creates the admin account unless one with that email exists.
// It reports whether a user was created.
func (a *Accounts) EnsureAdmin(ctx context.Context, email, password string) (*model.User, bool, error) {
	existing, err := a.store.Users().GetByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, storeErr("load admin", err)
	}

	user, err := a.newUser(email, password, true)
	if err != nil {
		return nil, false, err
	}
	if err := a.store.Users().Create(ctx, user); err != nil {
		return nil, false, storeErr("create admin", err)
	}
	a.log.Info().Str("email", user.Email).Msg("admin user created")
	return user, true, nil
}
