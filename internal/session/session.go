// Package session issues and checks the bearer tokens guarding admin routes.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"fairrate/internal/model"
	"fairrate/internal/store"

	"github.com/go-logr/logr"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrPasswordRequired   = errors.New("password required")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const (
	DefaultTTL          = 24 * time.Hour
	DefaultFailureDelay = time.Second
	tokenBytes          = 32
)

type Config struct {
	// Password is compared in constant time. PasswordHash, a bcrypt hash,
	// takes precedence when set.
	Password     string
	PasswordHash string
	TTL          time.Duration
	FailureDelay time.Duration
}

type Authenticator struct {
	repo   store.SessionRepository
	cfg    Config
	logger logr.Logger
	now    func() time.Time
}

type Option func(*Authenticator)

func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

func NewAuthenticator(repo store.SessionRepository, cfg Config, logger logr.Logger, opts ...Option) *Authenticator {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.FailureDelay < 0 {
		cfg.FailureDelay = 0
	}
	a := &Authenticator{repo: repo, cfg: cfg, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Login checks password and creates a fresh session. A wrong password is
// answered only after the configured failure delay.
func (a *Authenticator) Login(ctx context.Context, password string) (model.AdminSession, error) {
	if password == "" {
		return model.AdminSession{}, ErrPasswordRequired
	}
	if !a.passwordMatches(password) {
		a.delay(ctx)
		return model.AdminSession{}, ErrInvalidCredentials
	}
	token, err := newToken()
	if err != nil {
		return model.AdminSession{}, fmt.Errorf("generate session token: %w", err)
	}
	now := a.now().UTC()
	s := model.AdminSession{
		Token:      token,
		ExpiresAt:  now.Add(a.cfg.TTL),
		LastAccess: now,
	}
	if err := a.repo.CreateSession(ctx, s); err != nil {
		return model.AdminSession{}, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// Validate reports whether token names a live session and records the access.
// Expiry is checked here, so rows the sweeper has not removed yet still fail.
func (a *Authenticator) Validate(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, nil
	}
	s, err := a.repo.GetSession(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	now := a.now().UTC()
	if !s.ValidAt(now) {
		return false, nil
	}
	if err := a.repo.TouchSession(ctx, token, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		a.logger.Error(err, "session last access update failed")
	}
	return true, nil
}

func (a *Authenticator) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	if err := a.repo.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// SweepExpired removes every session whose expiry lies in the past.
func (a *Authenticator) SweepExpired(ctx context.Context) (int64, error) {
	n, err := a.repo.DeleteExpiredSessions(ctx, a.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return n, nil
}

func (a *Authenticator) passwordMatches(password string) bool {
	if hash := strings.TrimSpace(a.cfg.PasswordHash); hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	}
	if a.cfg.Password == "" {
		return false
	}
	// Hash both sides so the comparison time does not depend on length.
	want := sha256.Sum256([]byte(a.cfg.Password))
	got := sha256.Sum256([]byte(password))
	return subtle.ConstantTimeCompare(want[:], got[:]) == 1
}

func (a *Authenticator) delay(ctx context.Context) {
	if a.cfg.FailureDelay <= 0 {
		return
	}
	timer := time.NewTimer(a.cfg.FailureDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
