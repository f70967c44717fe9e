// Package throttle implements fixed-window request counters keyed by client.
//
// A counter resets entirely at each window boundary, so a client may send up
// to twice the limit across a boundary. That burst is accepted behaviour.
package throttle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Policy struct {
	Name    string
	Window  time.Duration
	Limit   int64
	Message string
}

var (
	GeneralAPI = Policy{
		Name:    "api",
		Window:  15 * time.Minute,
		Limit:   100,
		Message: "Too many requests, please try again later.",
	}
	Calculation = Policy{
		Name:    "calculate",
		Window:  time.Minute,
		Limit:   10,
		Message: "Rate limit exceeded. Please wait before calculating again.",
	}
	AdminLogin = Policy{
		Name:    "admin_login",
		Window:  15 * time.Minute,
		Limit:   5,
		Message: "Too many login attempts.",
	}
)

// Store counts hits per key within one numbered window.
type Store interface {
	Incr(ctx context.Context, key string, window int64, ttl time.Duration) (int64, error)
}

type Decision struct {
	Allowed    bool
	Count      int64
	Remaining  int64
	RetryAfter time.Duration
}

type Limiter struct {
	policy Policy
	store  Store
	now    func() time.Time
	denied prometheus.Counter
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithDeniedCounter records denials on c, typically one label of a vector.
func WithDeniedCounter(c prometheus.Counter) Option {
	return func(l *Limiter) { l.denied = c }
}

func NewLimiter(policy Policy, store Store, opts ...Option) (*Limiter, error) {
	if policy.Window <= 0 || policy.Limit <= 0 {
		return nil, fmt.Errorf("throttle policy %q: window and limit must be positive", policy.Name)
	}
	if store == nil {
		return nil, fmt.Errorf("throttle policy %q: store is required", policy.Name)
	}
	l := &Limiter{policy: policy, store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Limiter) Policy() Policy {
	return l.policy
}

// Allow counts one hit for client in the current window. When the store
// fails the request is allowed and the error is returned for logging.
func (l *Limiter) Allow(ctx context.Context, client string) (Decision, error) {
	now := l.now()
	window := now.UnixNano() / int64(l.policy.Window)
	key := l.policy.Name + "|" + client
	count, err := l.store.Incr(ctx, key, window, l.policy.Window)
	if err != nil {
		return Decision{Allowed: true}, fmt.Errorf("throttle %s: %w", l.policy.Name, err)
	}
	windowEnd := time.Unix(0, (window+1)*int64(l.policy.Window))
	d := Decision{
		Allowed:    count <= l.policy.Limit,
		Count:      count,
		Remaining:  max(l.policy.Limit-count, 0),
		RetryAfter: windowEnd.Sub(now),
	}
	if !d.Allowed && l.denied != nil {
		l.denied.Inc()
	}
	return d, nil
}

// RetryAfterSeconds rounds d up to whole seconds for a Retry-After header.
func RetryAfterSeconds(d time.Duration) string {
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

func NewDeniedCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fairrate",
		Subsystem: "throttle",
		Name:      "denied_total",
		Help:      "Requests rejected by a throttle policy.",
	}, []string{"policy"})
}
