// Package analytics keeps per-day usage counters.
package analytics

import (
	"context"
	"fmt"
	"time"

	"fairrate/internal/model"
	"fairrate/internal/store"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	MinDays     = 1
	MaxDays     = 90
	DefaultDays = 30
)

type Totals struct {
	TotalViews        int64 `json:"totalViews"`
	TotalCalculations int64 `json:"totalCalculations"`
}

type Report struct {
	Stats  []model.DailyStat `json:"stats"`
	Totals Totals            `json:"totals"`
}

type Aggregator struct {
	repo   store.StatRepository
	logger logr.Logger
	now    func() time.Time

	increments *prometheus.CounterVec
	failures   *prometheus.CounterVec
}

type Option func(*Aggregator)

// WithClock overrides the time source used to pick today's row.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithRegisterer exports increment and failure counters.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *Aggregator) {
		reg.MustRegister(a.increments, a.failures)
	}
}

func NewAggregator(repo store.StatRepository, logger logr.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		increments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fairrate",
			Subsystem: "analytics",
			Name:      "increments_total",
			Help:      "Daily counter increments recorded.",
		}, []string{"counter"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fairrate",
			Subsystem: "analytics",
			Name:      "failures_total",
			Help:      "Daily counter increments that failed and were dropped.",
		}, []string{"counter"}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Increment adds amount to counter on today's UTC row. It is best effort:
// storage failures are logged and never returned to the caller.
func (a *Aggregator) Increment(ctx context.Context, counter store.Counter, amount int64) {
	day := model.DayKey(a.now())
	if err := a.repo.IncrementStat(ctx, day, counter, amount); err != nil {
		a.failures.WithLabelValues(string(counter)).Inc()
		a.logger.Error(err, "analytics increment failed", "counter", string(counter), "day", day)
		return
	}
	a.increments.WithLabelValues(string(counter)).Inc()
}

// ClampDays bounds a requested window to [MinDays, MaxDays].
func ClampDays(days int) int {
	if days < MinDays {
		return MinDays
	}
	if days > MaxDays {
		return MaxDays
	}
	return days
}

// Query returns the newest rows of the clamped window and their totals.
func (a *Aggregator) Query(ctx context.Context, maxDays int) (Report, error) {
	rows, err := a.repo.RecentStats(ctx, ClampDays(maxDays))
	if err != nil {
		return Report{}, fmt.Errorf("query daily stats: %w", err)
	}
	report := Report{Stats: rows}
	for _, row := range rows {
		report.Totals.TotalViews += row.Views
		report.Totals.TotalCalculations += row.Calculations
	}
	return report, nil
}
