// Package ppp holds the country to purchasing-power-parity factor table.
package ppp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"fairrate/internal/model"
	"fairrate/internal/store"

	"github.com/go-logr/logr"
)

// NeutralFactor is used for any country missing from the table.
const NeutralFactor = 1.0

// seedFactors is the built-in table loaded into an empty store. USA is the baseline.
var seedFactors = map[string]float64{
	"USA":            1.0,
	"United Kingdom": 0.88,
	"Canada":         0.91,
	"Australia":      0.93,
	"Germany":        0.85,
	"France":         0.86,
	"Netherlands":    0.87,
	"Switzerland":    0.79,
	"Sweden":         0.90,
	"Norway":         0.81,
	"India":          0.28,
	"Philippines":    0.34,
	"Pakistan":       0.24,
	"Bangladesh":     0.26,
	"Vietnam":        0.32,
	"Indonesia":      0.35,
	"Thailand":       0.40,
	"Malaysia":       0.42,
	"Nigeria":        0.38,
	"Kenya":          0.36,
	"South Africa":   0.44,
	"Egypt":          0.31,
	"Brazil":         0.48,
	"Mexico":         0.51,
	"Argentina":      0.46,
	"Colombia":       0.43,
	"Poland":         0.55,
	"Romania":        0.52,
	"Ukraine":        0.29,
	"Turkey":         0.43,
}

// Seed returns a copy of the built-in table as records, ordered by country.
func Seed(now time.Time) []model.PPPFactor {
	out := make([]model.PPPFactor, 0, len(seedFactors))
	for country, factor := range seedFactors {
		out = append(out, model.PPPFactor{Country: country, Factor: factor, LastUpdated: now.UTC()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Country < out[j].Country })
	return out
}

type Store struct {
	repo   store.FactorRepository
	logger logr.Logger
	now    func() time.Time
}

func NewStore(repo store.FactorRepository, logger logr.Logger) *Store {
	return &Store{repo: repo, logger: logger, now: time.Now}
}

// Initialize loads the seed table when the store holds no factors at all.
// It never re-seeds a populated store.
func (s *Store) Initialize(ctx context.Context) error {
	count, err := s.repo.CountFactors(ctx)
	if err != nil {
		return fmt.Errorf("count ppp factors: %w", err)
	}
	if count > 0 {
		s.logger.V(1).Info("ppp factors already present", "count", count)
		return nil
	}
	seed := Seed(s.now())
	inserted, err := s.repo.InsertFactors(ctx, seed)
	if err != nil {
		return fmt.Errorf("seed ppp factors: %w", err)
	}
	if inserted != len(seed) {
		s.logger.Info("ppp seed inserted fewer rows than expected", "inserted", inserted, "expected", len(seed))
		return nil
	}
	s.logger.Info("ppp factors initialized", "count", inserted)
	return nil
}

// FactorOf returns the factor for country, or NeutralFactor when the
// country is unknown.
func (s *Store) FactorOf(ctx context.Context, country string) (float64, error) {
	f, err := s.repo.GetFactor(ctx, country)
	if errors.Is(err, store.ErrNotFound) {
		return NeutralFactor, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lookup ppp factor %q: %w", country, err)
	}
	if !(f.Factor > 0) {
		return NeutralFactor, nil
	}
	return f.Factor, nil
}

func (s *Store) ListCountries(ctx context.Context) ([]string, error) {
	countries, err := s.repo.ListCountries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	return countries, nil
}
