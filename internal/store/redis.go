package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/portfolio-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
//
// The stats path reads holdings, prices and rates on every request, so
// those are cached. Accounts and snapshots pass straight through.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateHolding(ctx context.Context, h *model.Holding) error {
	if err := s.primary.CreateHolding(ctx, h); err != nil {
		return err
	}
	s.rdb.Del(ctx, holdingsKey)
	return nil
}

func (s *CachedStore) UpdateHolding(ctx context.Context, h *model.Holding) error {
	if err := s.primary.UpdateHolding(ctx, h); err != nil {
		return err
	}
	s.rdb.Del(ctx, holdingsKey)
	return nil
}

func (s *CachedStore) DeleteHolding(ctx context.Context, id string) error {
	if err := s.primary.DeleteHolding(ctx, id); err != nil {
		return err
	}
	s.rdb.Del(ctx, holdingsKey)
	return nil
}

func (s *CachedStore) ReplacePrices(ctx context.Context, prices []model.PriceObservation) error {
	if err := s.primary.ReplacePrices(ctx, prices); err != nil {
		return err
	}
	s.rdb.Del(ctx, pricesKey)
	return nil
}

func (s *CachedStore) ReplaceRates(ctx context.Context, rates []model.ExchangeRate) error {
	if err := s.primary.ReplaceRates(ctx, rates); err != nil {
		return err
	}
	s.rdb.Del(ctx, ratesKey)
	return nil
}

func (s *CachedStore) SavePinnedRates(ctx context.Context, date string, rates []model.ExchangeRate) error {
	if err := s.primary.SavePinnedRates(ctx, date, rates); err != nil {
		return err
	}
	s.rdb.Del(ctx, pinnedKey(date))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) ListHoldings(ctx context.Context) ([]model.Holding, error) {
	return readThrough(ctx, s, holdingsKey, s.primary.ListHoldings)
}

func (s *CachedStore) ListPrices(ctx context.Context) ([]model.PriceObservation, error) {
	return readThrough(ctx, s, pricesKey, s.primary.ListPrices)
}

func (s *CachedStore) ListRates(ctx context.Context) ([]model.ExchangeRate, error) {
	return readThrough(ctx, s, ratesKey, s.primary.ListRates)
}

func (s *CachedStore) GetPinnedRates(ctx context.Context, date string) ([]model.ExchangeRate, error) {
	// ErrNotFound is not cached: a day gets pinned at most once and the
	// next read after that must see it.
	return readThrough(ctx, s, pinnedKey(date), func(ctx context.Context) ([]model.ExchangeRate, error) {
		return s.primary.GetPinnedRates(ctx, date)
	})
}

// --- Passthrough (not cached) ---

func (s *CachedStore) CreateAccount(ctx context.Context, a *model.Account) error {
	return s.primary.CreateAccount(ctx, a)
}

func (s *CachedStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return s.primary.GetAccount(ctx, id)
}

func (s *CachedStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return s.primary.ListAccounts(ctx)
}

func (s *CachedStore) DeleteAccount(ctx context.Context, id string) error {
	return s.primary.DeleteAccount(ctx, id)
}

func (s *CachedStore) GetHolding(ctx context.Context, id string) (*model.Holding, error) {
	return s.primary.GetHolding(ctx, id)
}

func (s *CachedStore) SaveSnapshot(ctx context.Context, snap *model.StatsSnapshot) error {
	return s.primary.SaveSnapshot(ctx, snap)
}

func (s *CachedStore) ListSnapshots(ctx context.Context) ([]model.StatsSnapshot, error) {
	return s.primary.ListSnapshots(ctx)
}

// --- Cache helpers ---

func readThrough[T any](ctx context.Context, s *CachedStore, key string, load func(context.Context) ([]T, error)) ([]T, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var items []T
		if json.Unmarshal(data, &items) == nil {
			return items, nil
		}
	}

	// Cache miss.
	items, err := load(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(items); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return items, nil
}

const (
	holdingsKey = "portfolio:holdings"
	pricesKey   = "portfolio:prices"
	ratesKey    = "portfolio:rates"
)

func pinnedKey(date string) string { return fmt.Sprintf("portfolio:rates:pinned:%s", date) }
