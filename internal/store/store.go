package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"fairrate/internal/model"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

// Counter names a DailyStat column that can be incremented.
type Counter string

const (
	CounterViews        Counter = "views"
	CounterCalculations Counter = "calculations"
)

func (c Counter) Valid() bool {
	return c == CounterViews || c == CounterCalculations
}

type FactorRepository interface {
	CountFactors(ctx context.Context) (int, error)
	// InsertFactors stores factors whose country is not present yet and
	// reports how many rows were actually inserted.
	InsertFactors(ctx context.Context, factors []model.PPPFactor) (int, error)
	GetFactor(ctx context.Context, country string) (model.PPPFactor, error)
	// ListCountries returns all country keys in ascending byte order.
	ListCountries(ctx context.Context) ([]string, error)
}

type StatRepository interface {
	// IncrementStat adds amount to counter on the row for day, creating the
	// row first when it does not exist. It is a single atomic operation.
	IncrementStat(ctx context.Context, day string, counter Counter, amount int64) error
	// RecentStats returns at most limit rows, newest day first.
	RecentStats(ctx context.Context, limit int) ([]model.DailyStat, error)
}

type SessionRepository interface {
	CreateSession(ctx context.Context, session model.AdminSession) error
	GetSession(ctx context.Context, token string) (model.AdminSession, error)
	TouchSession(ctx context.Context, token string, at time.Time) error
	// DeleteSession is idempotent: deleting an absent token is not an error.
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

type Repository interface {
	FactorRepository
	StatRepository
	SessionRepository
}

type MemoryRepository struct {
	mu       sync.RWMutex
	factors  map[string]model.PPPFactor
	stats    map[string]model.DailyStat
	sessions map[string]model.AdminSession
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		factors:  make(map[string]model.PPPFactor),
		stats:    make(map[string]model.DailyStat),
		sessions: make(map[string]model.AdminSession),
	}
}

func (m *MemoryRepository) CountFactors(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.factors), nil
}

func (m *MemoryRepository) InsertFactors(_ context.Context, factors []model.PPPFactor) (int, error) {
	for _, f := range factors {
		if err := validateFactor(f); err != nil {
			return 0, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, f := range factors {
		if _, ok := m.factors[f.Country]; ok {
			continue
		}
		m.factors[f.Country] = f
		inserted++
	}
	return inserted, nil
}

func (m *MemoryRepository) GetFactor(_ context.Context, country string) (model.PPPFactor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.factors[country]
	if !ok {
		return model.PPPFactor{}, ErrNotFound
	}
	return f, nil
}

func (m *MemoryRepository) ListCountries(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.factors))
	for country := range m.factors {
		out = append(out, country)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryRepository) IncrementStat(_ context.Context, day string, counter Counter, amount int64) error {
	if strings.TrimSpace(day) == "" || !counter.Valid() || amount < 0 {
		return ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.stats[day]
	if !ok {
		row = model.DailyStat{Date: day}
	}
	switch counter {
	case CounterViews:
		row.Views += amount
	case CounterCalculations:
		row.Calculations += amount
	}
	m.stats[day] = row
	return nil
}

func (m *MemoryRepository) RecentStats(_ context.Context, limit int) ([]model.DailyStat, error) {
	if limit <= 0 {
		return []model.DailyStat{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.DailyStat, 0, len(m.stats))
	for _, row := range m.stats {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) CreateSession(_ context.Context, session model.AdminSession) error {
	if strings.TrimSpace(session.Token) == "" || session.ExpiresAt.IsZero() {
		return ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.Token]; ok {
		return ErrConflict
	}
	m.sessions[session.Token] = session
	return nil
}

func (m *MemoryRepository) GetSession(_ context.Context, token string) (model.AdminSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[token]
	if !ok {
		return model.AdminSession{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryRepository) TouchSession(_ context.Context, token string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return ErrNotFound
	}
	s.LastAccess = at.UTC()
	m.sessions[token] = s
	return nil
}

func (m *MemoryRepository) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *MemoryRepository) DeleteExpiredSessions(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for token, s := range m.sessions {
		if s.ExpiresAt.Before(before) {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}

func validateFactor(f model.PPPFactor) error {
	if strings.TrimSpace(f.Country) == "" || !(f.Factor > 0) {
		return ErrInvalidInput
	}
	return nil
}
