package ppp

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"fairrate/internal/model"
	"fairrate/internal/store"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeSeedsEmptyStoreOnce(t *testing.T) {
	repo := store.NewMemoryRepository()
	s := NewStore(repo, logr.Discard())
	ctx := context.Background()

	require.NoError(t, s.Initialize(ctx))
	n, err := repo.CountFactors(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(seedFactors), n)

	require.NoError(t, s.Initialize(ctx))
	n, err = repo.CountFactors(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(seedFactors), n)
}

func TestInitializeLeavesPopulatedStoreAlone(t *testing.T) {
	repo := store.NewMemoryRepository()
	ctx := context.Background()
	_, err := repo.InsertFactors(ctx, []model.PPPFactor{{Country: "Atlantis", Factor: 0.5}})
	require.NoError(t, err)

	require.NoError(t, NewStore(repo, logr.Discard()).Initialize(ctx))
	countries, err := repo.ListCountries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Atlantis"}, countries)
}

func TestFactorOfDefaultsUnknownToNeutral(t *testing.T) {
	s := NewStore(store.NewMemoryRepository(), logr.Discard())
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))

	f, err := s.FactorOf(ctx, "India")
	require.NoError(t, err)
	assert.Equal(t, 0.28, f)

	f, err = s.FactorOf(ctx, "Atlantis")
	require.NoError(t, err)
	assert.Equal(t, NeutralFactor, f)

	f, err = s.FactorOf(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, NeutralFactor, f)
}

func TestListCountriesSorted(t *testing.T) {
	s := NewStore(store.NewMemoryRepository(), logr.Discard())
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))

	countries, err := s.ListCountries(ctx)
	require.NoError(t, err)
	assert.Len(t, countries, len(seedFactors))
	assert.True(t, sort.StringsAreSorted(countries))
	assert.Contains(t, countries, "USA")
}

func TestSeedHasBaselineAndPositiveFactors(t *testing.T) {
	seed := Seed(time.Now())
	var sawUSA bool
	for _, f := range seed {
		assert.Greater(t, f.Factor, 0.0, f.Country)
		if f.Country == "USA" {
			sawUSA = true
			assert.Equal(t, 1.0, f.Factor)
		}
	}
	assert.True(t, sawUSA)
}

type failingRepo struct {
	store.FactorRepository
}

func (failingRepo) CountFactors(context.Context) (int, error) { return 0, errors.New("down") }
func (failingRepo) GetFactor(context.Context, string) (model.PPPFactor, error) {
	return model.PPPFactor{}, errors.New("down")
}

func TestStoreErrorsSurface(t *testing.T) {
	s := NewStore(failingRepo{}, logr.Discard())
	assert.Error(t, s.Initialize(context.Background()))
	_, err := s.FactorOf(context.Background(), "USA")
	assert.Error(t, err)
}
