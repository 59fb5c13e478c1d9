package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"eventmaster-auth/internal/event"
	"eventmaster-auth/internal/model"
	"eventmaster-auth/internal/security"
)

const (
	AdminRole    = "Admin"
	ResidentRole = "Resident"

	DefaultRefreshTTL = 7 * 24 * time.Hour
)

type AuthConfig struct {
	RefreshTTL    time.Duration
	RotateRefresh bool
	DefaultRole   string
}

type AuthService struct {
	users   UserStore
	roles   RoleStore
	tx      Transactor
	hasher  PasswordHasher
	tokens  TokenIssuer
	events  event.Publisher
	metrics Recorder
	cfg     AuthConfig
	now     func() time.Time
}

type Option func(*options)

type options struct {
	events  event.Publisher
	metrics Recorder
	now     func() time.Time
}

func WithPublisher(p event.Publisher) Option {
	return func(o *options) {
		if p != nil {
			o.events = p
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.metrics = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{
		events:  event.Discard{},
		metrics: noopRecorder{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func NewAuthService(users UserStore, roles RoleStore, tx Transactor, hasher PasswordHasher, tokens TokenIssuer, cfg AuthConfig, opts ...Option) *AuthService {
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if strings.TrimSpace(cfg.DefaultRole) == "" {
		cfg.DefaultRole = ResidentRole
	}

	o := applyOptions(opts)
	return &AuthService{
		users:   users,
		roles:   roles,
		tx:      tx,
		hasher:  hasher,
		tokens:  tokens,
		events:  o.events,
		metrics: o.metrics,
		cfg:     cfg,
		now:     o.now,
	}
}

// Register creates the user with the default role and signs it in.
func (s *AuthService) Register(ctx context.Context, login string, password string) (pair model.TokenPair, err error) {
	defer func() { s.metrics.ObserveAuth("register", err) }()

	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return model.TokenPair{}, fmt.Errorf("%w: login and password are required", model.ErrInvalidInput)
	}
	if len(password) > model.MaxPasswordBytes {
		return model.TokenPair{}, fmt.Errorf("%w: password must not exceed %d bytes", model.ErrInvalidInput, model.MaxPasswordBytes)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return model.TokenPair{}, err
	}

	now := s.now()
	var user model.User

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		exists, err := s.users.ExistsByLogin(ctx, login)
		if err != nil {
			return err
		}
		if exists {
			return model.ErrUserAlreadyExists
		}

		role, err := s.roles.FindByName(ctx, s.cfg.DefaultRole)
		if errors.Is(err, model.ErrRoleNotFound) {
			return fmt.Errorf("%w: %q", model.ErrDefaultRoleMissing, s.cfg.DefaultRole)
		}
		if err != nil {
			return err
		}

		refresh, err := s.tokens.GenerateRefreshToken()
		if err != nil {
			return err
		}

		user = model.User{
			ID:                 uuid.NewString(),
			Login:              login,
			PasswordHash:       hash,
			RefreshToken:       refresh,
			RefreshTokenExpiry: now.Add(s.cfg.RefreshTTL),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return err
		}
		if err := s.roles.Assign(ctx, user.ID, role.ID); err != nil {
			return err
		}

		access, err := s.tokens.GenerateAccessToken(security.BuildClaims(user, []model.Role{role}))
		if err != nil {
			return err
		}

		pair = model.TokenPair{AccessToken: access, RefreshToken: refresh}
		return nil
	})
	if err != nil {
		return model.TokenPair{}, err
	}

	slog.Info("user registered", "user_id", user.ID, "login", user.Login)
	s.events.Publish(event.New(event.TypeUserRegistered, user.ID, event.UserPayload{UserID: user.ID, Login: user.Login}))
	return pair, nil
}

// Login verifies the credentials and issues a fresh refresh token. A failed
// attempt leaves the stored session untouched.
func (s *AuthService) Login(ctx context.Context, login string, password string) (pair model.TokenPair, err error) {
	defer func() { s.metrics.ObserveAuth("login", err) }()

	user, err := s.users.FindByLogin(ctx, login)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.TokenPair{}, model.ErrInvalidCredentials
	}
	if err != nil {
		return model.TokenPair{}, err
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		return model.TokenPair{}, model.ErrInvalidCredentials
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		refresh, err := s.tokens.GenerateRefreshToken()
		if err != nil {
			return err
		}
		if err := s.users.UpdateRefreshToken(ctx, user.ID, refresh, s.now().Add(s.cfg.RefreshTTL)); err != nil {
			return err
		}

		access, err := s.accessTokenFor(ctx, user)
		if err != nil {
			return err
		}

		pair = model.TokenPair{AccessToken: access, RefreshToken: refresh}
		return nil
	})
	if err != nil {
		return model.TokenPair{}, err
	}

	s.events.Publish(event.New(event.TypeUserLoggedIn, user.ID, event.UserPayload{UserID: user.ID, Login: user.Login}))
	return pair, nil
}

// RefreshToken exchanges a live refresh token for a new access token. With
// rotation enabled the refresh token is replaced too, keeping its original
// expiry; otherwise the same value is handed back.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (pair model.TokenPair, err error) {
	defer func() { s.metrics.ObserveAuth("refresh", err) }()

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return model.TokenPair{}, model.ErrRefreshTokenNotFound
	}

	var user model.User
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		found, err := s.users.FindByRefreshToken(ctx, refreshToken, s.now())
		if err != nil {
			return err
		}
		user = found

		next := refreshToken
		if s.cfg.RotateRefresh {
			if next, err = s.tokens.GenerateRefreshToken(); err != nil {
				return err
			}
			if err := s.users.RotateRefreshToken(ctx, user.ID, refreshToken, next, user.RefreshTokenExpiry); err != nil {
				return err
			}
		}

		access, err := s.accessTokenFor(ctx, user)
		if err != nil {
			return err
		}

		pair = model.TokenPair{AccessToken: access, RefreshToken: next}
		return nil
	})
	if err != nil {
		return model.TokenPair{}, err
	}

	s.events.Publish(event.New(event.TypeTokenRefreshed, user.ID, event.UserPayload{UserID: user.ID, Login: user.Login}))
	return pair, nil
}

// Revoke clears the user's refresh token. Access tokens already issued stay
// valid until they expire. Revoking twice is a no-op.
func (s *AuthService) Revoke(ctx context.Context, userID string) (err error) {
	defer func() { s.metrics.ObserveAuth("revoke", err) }()

	userID, ok := canonicalID(userID)
	if !ok {
		return model.ErrUserNotFound
	}

	var user model.User
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		found, err := s.users.FindByID(ctx, userID)
		if err != nil {
			return err
		}
		user = found
		return s.users.UpdateRefreshToken(ctx, user.ID, "", model.RevokedRefreshExpiry)
	})
	if err != nil {
		return err
	}

	slog.Info("refresh token revoked", "user_id", user.ID)
	s.events.Publish(event.New(event.TypeTokenRevoked, user.ID, event.UserPayload{UserID: user.ID, Login: user.Login}))
	return nil
}

func (s *AuthService) GetAllUsers(ctx context.Context) (users []model.UserResponse, err error) {
	defer func() { s.metrics.ObserveAuth("list_users", err) }()

	list, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	return model.ToUserResponses(list), nil
}

// SeedAdmin creates the bootstrap administrator when it does not exist yet.
// An empty login disables seeding.
func (s *AuthService) SeedAdmin(ctx context.Context, login string, password string) error {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil
	}
	if password == "" {
		return fmt.Errorf("%w: admin password is required when admin login is set", model.ErrInvalidInput)
	}
	if len(password) > model.MaxPasswordBytes {
		return fmt.Errorf("%w: admin password must not exceed %d bytes", model.ErrInvalidInput, model.MaxPasswordBytes)
	}

	exists, err := s.users.ExistsByLogin(ctx, login)
	if err != nil {
		return fmt.Errorf("check admin user: %w", err)
	}
	if exists {
		slog.Debug("admin user already present", "login", login)
		return nil
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	now := s.now()
	user := model.User{
		ID:                 uuid.NewString(),
		Login:              login,
		PasswordHash:       hash,
		RefreshTokenExpiry: model.RevokedRefreshExpiry,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		role, err := s.roles.FindByName(ctx, AdminRole)
		if err != nil {
			return fmt.Errorf("find %s role: %w", AdminRole, err)
		}
		if err := s.users.Create(ctx, user); err != nil {
			return err
		}
		return s.roles.Assign(ctx, user.ID, role.ID)
	})
	if errors.Is(err, model.ErrUserAlreadyExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}

	slog.Info("admin user seeded", "user_id", user.ID, "login", login)
	return nil
}

func (s *AuthService) accessTokenFor(ctx context.Context, user model.User) (string, error) {
	roles, err := s.roles.ListByUserID(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("load roles: %w", err)
	}
	return s.tokens.GenerateAccessToken(security.BuildClaims(user, roles))
}

// canonicalID returns id in the lowercase hyphenated form every store keys on.
func canonicalID(id string) (string, bool) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}
