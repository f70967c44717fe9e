package api

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"fairrate/internal/analytics"
	"fairrate/internal/calc"
	"fairrate/internal/email"
	"fairrate/internal/model"
	"fairrate/internal/store"
	"fairrate/internal/throttle"
)

type Calculator interface {
	Calculate(ctx context.Context, req calc.Request) (calc.Result, error)
}

type CountryLister interface {
	ListCountries(ctx context.Context) ([]string, error)
}

type Analytics interface {
	Increment(ctx context.Context, counter store.Counter, amount int64)
	Query(ctx context.Context, maxDays int) (analytics.Report, error)
}

type Authenticator interface {
	Login(ctx context.Context, password string) (model.AdminSession, error)
	Validate(ctx context.Context, token string) (bool, error)
	Logout(ctx context.Context, token string) error
}

type EmailDrafter interface {
	Configured() bool
	Draft(ctx context.Context, req email.Request) (email.Draft, error)
}

type Limiter interface {
	Allow(ctx context.Context, client string) (throttle.Decision, error)
	Policy() throttle.Policy
}

// Limits holds one limiter per policy. A nil limiter disables that policy.
type Limits struct {
	General     Limiter
	Calculation Limiter
	Login       Limiter
}

type AuditPolicy struct {
	LogFile string
}

type ServerOptions struct {
	Calculator  Calculator
	Countries   CountryLister
	Analytics   Analytics
	Auth        Authenticator
	Email       EmailDrafter
	Limits      Limits
	Audit       AuditPolicy
	FrontendURL string
	TrustProxy  bool
	Logger      logr.Logger
	Now         func() time.Time
}

type Server struct {
	calculator  Calculator
	countries   CountryLister
	analytics   Analytics
	auth        Authenticator
	email       EmailDrafter
	limits      Limits
	audit       AuditPolicy
	frontendURL string
	trustProxy  bool
	logger      logr.Logger
	now         func() time.Time
	started     time.Time
}

func NewServer(opts ServerOptions) *Server {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	drafter := opts.Email
	if drafter == nil {
		drafter = email.NewGenerator(nil, 0, opts.Logger)
	}
	return &Server{
		calculator:  opts.Calculator,
		countries:   opts.Countries,
		analytics:   opts.Analytics,
		auth:        opts.Auth,
		email:       drafter,
		limits:      opts.Limits,
		audit:       opts.Audit,
		frontendURL: opts.FrontendURL,
		trustProxy:  opts.TrustProxy,
		logger:      opts.Logger,
		now:         now,
		started:     now(),
	}
}
