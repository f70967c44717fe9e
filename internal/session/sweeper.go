package session

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/apimachinery/pkg/util/wait"
)

const DefaultSweepInterval = time.Hour

// Sweeper deletes expired sessions once on start and then every Interval
// until its context is cancelled. Failures are logged and the schedule
// continues.
type Sweeper struct {
	Auth     *Authenticator
	Interval time.Duration
	Logger   logr.Logger
	Sweeps   *prometheus.CounterVec
}

func NewSweepCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fairrate",
		Subsystem: "session",
		Name:      "sweeps_total",
		Help:      "Expired session sweeps by result.",
	}, []string{"result"})
}

func (s *Sweeper) Start(ctx context.Context) {
	if s.Interval <= 0 {
		s.Interval = DefaultSweepInterval
	}
	wait.UntilWithContext(ctx, s.sweepOnce, s.Interval)
}

// Run starts the sweeper in a goroutine. The returned channel closes once
// the loop has exited, including any sweep in flight at cancellation.
func (s *Sweeper) Run(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Start(ctx)
	}()
	return done
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	n, err := s.Auth.SweepExpired(ctx)
	if err != nil {
		s.count("error")
		s.Logger.Error(err, "expired session sweep failed")
		return
	}
	s.count("ok")
	if n > 0 {
		s.Logger.Info("expired sessions removed", "count", n)
	}
}

func (s *Sweeper) count(result string) {
	if s.Sweeps != nil {
		s.Sweeps.WithLabelValues(result).Inc()
	}
}
