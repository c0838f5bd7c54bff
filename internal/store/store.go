// Package store defines the persistence interface for the portfolio engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and single-user development).
package store

import (
	"context"
	"errors"

	"github.com/atmx/portfolio-engine/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a write would break a uniqueness or
	// reference constraint (duplicate id, account still holding positions).
	ErrConflict = errors.New("store: conflict")
)

// Store is the persistence interface. Price and rate snapshots are replaced
// wholesale so readers never observe a half-applied refresh.
type Store interface {
	// --- Accounts ---

	// CreateAccount persists a new account.
	CreateAccount(ctx context.Context, account *model.Account) error

	// GetAccount retrieves an account by its ID.
	GetAccount(ctx context.Context, id string) (*model.Account, error)

	// ListAccounts returns all accounts.
	ListAccounts(ctx context.Context) ([]model.Account, error)

	// DeleteAccount removes an account that holds no positions.
	DeleteAccount(ctx context.Context, id string) error

	// --- Holdings ---

	// CreateHolding persists a new holding.
	CreateHolding(ctx context.Context, holding *model.Holding) error

	// GetHolding retrieves a holding by its ID.
	GetHolding(ctx context.Context, id string) (*model.Holding, error)

	// ListHoldings returns all holdings.
	ListHoldings(ctx context.Context) ([]model.Holding, error)

	// UpdateHolding overwrites an existing holding.
	UpdateHolding(ctx context.Context, holding *model.Holding) error

	// DeleteHolding removes a holding.
	DeleteHolding(ctx context.Context, id string) error

	// --- Market snapshots ---

	// ReplacePrices swaps the whole price snapshot.
	ReplacePrices(ctx context.Context, prices []model.PriceObservation) error

	// ListPrices returns the current price snapshot.
	ListPrices(ctx context.Context) ([]model.PriceObservation, error)

	// ReplaceRates swaps the whole live exchange-rate snapshot.
	ReplaceRates(ctx context.Context, rates []model.ExchangeRate) error

	// ListRates returns the current live exchange-rate snapshot.
	ListRates(ctx context.Context) ([]model.ExchangeRate, error)

	// SavePinnedRates records the rate set to use for a calendar day (YYYY-MM-DD).
	SavePinnedRates(ctx context.Context, date string, rates []model.ExchangeRate) error

	// GetPinnedRates returns the rate set pinned for a day, or ErrNotFound.
	GetPinnedRates(ctx context.Context, date string) ([]model.ExchangeRate, error)

	// --- Stats snapshots ---

	// SaveSnapshot stores a statistics snapshot, replacing any for the same date.
	SaveSnapshot(ctx context.Context, snapshot *model.StatsSnapshot) error

	// ListSnapshots returns stored snapshots ordered by date.
	ListSnapshots(ctx context.Context) ([]model.StatsSnapshot, error)
}
