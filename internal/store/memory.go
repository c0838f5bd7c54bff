package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atmx/portfolio-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	accounts  map[string]*model.Account
	holdings  map[string]*model.Holding
	order     []string // holding ids in insertion order
	prices    []model.PriceObservation
	rates     []model.ExchangeRate
	pinned    map[string][]model.ExchangeRate
	snapshots map[string]model.StatsSnapshot
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]*model.Account),
		holdings:  make(map[string]*model.Holding),
		pinned:    make(map[string][]model.ExchangeRate),
		snapshots: make(map[string]model.StatsSnapshot),
	}
}

func (s *MemoryStore) CreateAccount(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.ID]; ok {
		return fmt.Errorf("%w: account %s already exists", ErrConflict, a.ID)
	}
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListAccounts(_ context.Context) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]model.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accounts = append(accounts, *a)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts, nil
}

func (s *MemoryStore) DeleteAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; !ok {
		return fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	for _, h := range s.holdings {
		if h.AccountID == id {
			return fmt.Errorf("%w: account %s still has holdings", ErrConflict, id)
		}
	}
	delete(s.accounts, id)
	return nil
}

func (s *MemoryStore) CreateHolding(_ context.Context, h *model.Holding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.holdings[h.ID]; ok {
		return fmt.Errorf("%w: holding %s already exists", ErrConflict, h.ID)
	}
	if _, ok := s.accounts[h.AccountID]; !ok {
		return fmt.Errorf("%w: account %s", ErrNotFound, h.AccountID)
	}
	s.holdings[h.ID] = copyHolding(h)
	s.order = append(s.order, h.ID)
	return nil
}

func (s *MemoryStore) GetHolding(_ context.Context, id string) (*model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.holdings[id]
	if !ok {
		return nil, fmt.Errorf("%w: holding %s", ErrNotFound, id)
	}
	return copyHolding(h), nil
}

func (s *MemoryStore) ListHoldings(_ context.Context) ([]model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	holdings := make([]model.Holding, 0, len(s.order))
	for _, id := range s.order {
		holdings = append(holdings, *copyHolding(s.holdings[id]))
	}
	return holdings, nil
}

func (s *MemoryStore) UpdateHolding(_ context.Context, h *model.Holding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.holdings[h.ID]; !ok {
		return fmt.Errorf("%w: holding %s", ErrNotFound, h.ID)
	}
	if _, ok := s.accounts[h.AccountID]; !ok {
		return fmt.Errorf("%w: account %s", ErrNotFound, h.AccountID)
	}
	s.holdings[h.ID] = copyHolding(h)
	return nil
}

func (s *MemoryStore) DeleteHolding(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.holdings[id]; !ok {
		return fmt.Errorf("%w: holding %s", ErrNotFound, id)
	}
	delete(s.holdings, id)
	for i, hid := range s.order {
		if hid == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) ReplacePrices(_ context.Context, prices []model.PriceObservation) error {
	snapshot := append([]model.PriceObservation(nil), prices...)

	s.mu.Lock()
	s.prices = snapshot
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListPrices(_ context.Context) ([]model.PriceObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.PriceObservation{}, s.prices...), nil
}

func (s *MemoryStore) ReplaceRates(_ context.Context, rates []model.ExchangeRate) error {
	snapshot := append([]model.ExchangeRate(nil), rates...)

	s.mu.Lock()
	s.rates = snapshot
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListRates(_ context.Context) ([]model.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.ExchangeRate{}, s.rates...), nil
}

func (s *MemoryStore) SavePinnedRates(_ context.Context, date string, rates []model.ExchangeRate) error {
	snapshot := append([]model.ExchangeRate{}, rates...)

	s.mu.Lock()
	s.pinned[date] = snapshot
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetPinnedRates(_ context.Context, date string) ([]model.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rates, ok := s.pinned[date]
	if !ok {
		return nil, fmt.Errorf("%w: pinned rates for %s", ErrNotFound, date)
	}
	return append([]model.ExchangeRate{}, rates...), nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snap *model.StatsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snap.Date] = *snap
	return nil
}

func (s *MemoryStore) ListSnapshots(_ context.Context) ([]model.StatsSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := make([]model.StatsSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Date < snaps[j].Date })
	return snaps, nil
}

// copyHolding returns a deep copy so callers cannot mutate stored state
// through the CurrentPrice pointer.
func copyHolding(h *model.Holding) *model.Holding {
	cp := *h
	if h.CurrentPrice != nil {
		price := *h.CurrentPrice
		cp.CurrentPrice = &price
	}
	return &cp
}
