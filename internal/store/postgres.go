package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/portfolio-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// Schema: migrations/001_init.sql.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// --- Accounts ---

func (s *PostgresStore) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, name, created_at) VALUES ($1, $2, $3)`,
		a.ID, a.Name, a.CreatedAt,
	)
	return translate(err, "create account "+a.ID, ErrConflict)
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	var a model.Account
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM accounts WHERE id = $1`, id).
		Scan(&a.ID, &a.Name, &a.CreatedAt)
	if err != nil {
		return nil, translate(err, "get account "+id, ErrNotFound)
	}
	return &a, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, created_at FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) DeleteAccount(ctx context.Context, id string) error {
	// holdings.account_id REFERENCES accounts ON DELETE RESTRICT, so an
	// account with positions surfaces as a foreign key violation.
	tag, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return translate(err, "delete account "+id, ErrConflict)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	return nil
}

// --- Holdings ---

const holdingColumns = `id, account_id, symbol, name, type, market,
	quantity::TEXT, cost_basis::TEXT, currency, current_price::TEXT,
	purchase_date, last_updated`

func (s *PostgresStore) CreateHolding(ctx context.Context, h *model.Holding) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO holdings (id, account_id, symbol, name, type, market,
		                       quantity, cost_basis, currency, current_price,
		                       purchase_date, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9, $10::NUMERIC, $11, $12)`,
		h.ID, h.AccountID, h.Symbol, h.Name, string(h.Type), string(h.Market),
		h.Quantity.String(), h.CostBasis.String(), h.Currency, nullableDecimal(h.CurrentPrice),
		h.PurchaseDate, h.LastUpdated,
	)
	return translate(err, "create holding "+h.ID, ErrNotFound)
}

func (s *PostgresStore) GetHolding(ctx context.Context, id string) (*model.Holding, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+holdingColumns+` FROM holdings WHERE id = $1`, id)
	h, err := scanHolding(row)
	if err != nil {
		return nil, translate(err, "get holding "+id, ErrNotFound)
	}
	return h, nil
}

func (s *PostgresStore) ListHoldings(ctx context.Context) ([]model.Holding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+holdingColumns+` FROM holdings ORDER BY created_seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []model.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, *h)
	}
	return holdings, rows.Err()
}

func (s *PostgresStore) UpdateHolding(ctx context.Context, h *model.Holding) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE holdings
		 SET account_id = $2, symbol = $3, name = $4, type = $5, market = $6,
		     quantity = $7::NUMERIC, cost_basis = $8::NUMERIC, currency = $9,
		     current_price = $10::NUMERIC, purchase_date = $11, last_updated = $12
		 WHERE id = $1`,
		h.ID, h.AccountID, h.Symbol, h.Name, string(h.Type), string(h.Market),
		h.Quantity.String(), h.CostBasis.String(), h.Currency, nullableDecimal(h.CurrentPrice),
		h.PurchaseDate, h.LastUpdated,
	)
	if err != nil {
		return translate(err, "update holding "+h.ID, ErrNotFound)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: holding %s", ErrNotFound, h.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteHolding(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM holdings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: holding %s", ErrNotFound, id)
	}
	return nil
}

// --- Market snapshots ---

func (s *PostgresStore) ReplacePrices(ctx context.Context, prices []model.PriceObservation) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM prices`); err != nil {
			return err
		}
		for i, p := range prices {
			_, err := tx.Exec(ctx,
				`INSERT INTO prices (position, symbol, price, currency, change, change_percent, source, timestamp)
				 VALUES ($1, $2, $3::NUMERIC, $4, $5::NUMERIC, $6::NUMERIC, $7, $8)`,
				i, p.Symbol, p.Price.String(), p.Currency,
				p.Change.String(), p.ChangePercent.String(), p.Source, p.Timestamp,
			)
			if err != nil {
				return fmt.Errorf("insert price %s: %w", p.Symbol, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListPrices(ctx context.Context) ([]model.PriceObservation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT symbol, price::TEXT, currency, change::TEXT, change_percent::TEXT, source, timestamp
		 FROM prices ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prices []model.PriceObservation
	for rows.Next() {
		var p model.PriceObservation
		var priceS, changeS, pctS string
		if err := rows.Scan(&p.Symbol, &priceS, &p.Currency, &changeS, &pctS, &p.Source, &p.Timestamp); err != nil {
			return nil, err
		}
		p.Price, _ = decimal.NewFromString(priceS)
		p.Change, _ = decimal.NewFromString(changeS)
		p.ChangePercent, _ = decimal.NewFromString(pctS)
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

func (s *PostgresStore) ReplaceRates(ctx context.Context, rates []model.ExchangeRate) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM exchange_rates`); err != nil {
			return err
		}
		return insertRates(ctx, tx, `exchange_rates`, "", rates)
	})
}

func (s *PostgresStore) ListRates(ctx context.Context) ([]model.ExchangeRate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT from_currency, to_currency, rate::TEXT, timestamp
		 FROM exchange_rates ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRates(rows)
}

func (s *PostgresStore) SavePinnedRates(ctx context.Context, date string, rates []model.ExchangeRate) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM pinned_rates WHERE date = $1`, date); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO pinned_rate_sets (date) VALUES ($1) ON CONFLICT (date) DO NOTHING`, date); err != nil {
			return err
		}
		return insertRates(ctx, tx, `pinned_rates`, date, rates)
	})
}

func (s *PostgresStore) GetPinnedRates(ctx context.Context, date string) ([]model.ExchangeRate, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pinned_rate_sets WHERE date = $1)`, date).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: pinned rates for %s", ErrNotFound, date)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT from_currency, to_currency, rate::TEXT, timestamp
		 FROM pinned_rates WHERE date = $1 ORDER BY position`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRates(rows)
}

// --- Stats snapshots ---

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *model.StatsSnapshot) error {
	stats, err := json.Marshal(snap.Stats)
	if err != nil {
		return fmt.Errorf("encode snapshot stats: %w", err)
	}
	rates, err := json.Marshal(snap.Rates)
	if err != nil {
		return fmt.Errorf("encode snapshot rates: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO stats_snapshots (id, date, stats, rates, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (date) DO UPDATE
		 SET id = EXCLUDED.id, stats = EXCLUDED.stats, rates = EXCLUDED.rates, created_at = EXCLUDED.created_at`,
		snap.ID, snap.Date, stats, rates, snap.CreatedAt,
	)
	return err
}

func (s *PostgresStore) ListSnapshots(ctx context.Context) ([]model.StatsSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, date, stats, rates, created_at FROM stats_snapshots ORDER BY date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []model.StatsSnapshot
	for rows.Next() {
		var snap model.StatsSnapshot
		var stats, rates []byte
		if err := rows.Scan(&snap.ID, &snap.Date, &stats, &rates, &snap.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(stats, &snap.Stats); err != nil {
			return nil, fmt.Errorf("decode snapshot %s stats: %w", snap.Date, err)
		}
		if err := json.Unmarshal(rates, &snap.Rates); err != nil {
			return nil, fmt.Errorf("decode snapshot %s rates: %w", snap.Date, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// --- helpers ---

func scanHolding(row pgx.Row) (*model.Holding, error) {
	var h model.Holding
	var typ, market, qtyS, costS string
	var priceS *string

	if err := row.Scan(&h.ID, &h.AccountID, &h.Symbol, &h.Name, &typ, &market,
		&qtyS, &costS, &h.Currency, &priceS,
		&h.PurchaseDate, &h.LastUpdated); err != nil {
		return nil, err
	}

	h.Type = model.AssetType(typ)
	h.Market = model.Market(market)
	h.Quantity, _ = decimal.NewFromString(qtyS)
	h.CostBasis, _ = decimal.NewFromString(costS)
	if priceS != nil {
		if price, err := decimal.NewFromString(*priceS); err == nil {
			h.CurrentPrice = &price
		}
	}
	return &h, nil
}

func scanRates(rows pgx.Rows) ([]model.ExchangeRate, error) {
	var rates []model.ExchangeRate
	for rows.Next() {
		var r model.ExchangeRate
		var rateS string
		if err := rows.Scan(&r.From, &r.To, &rateS, &r.Timestamp); err != nil {
			return nil, err
		}
		r.Rate, _ = decimal.NewFromString(rateS)
		rates = append(rates, r)
	}
	return rates, rows.Err()
}

// insertRates writes rates into table, keyed by date when table is pinned_rates.
func insertRates(ctx context.Context, tx pgx.Tx, table, date string, rates []model.ExchangeRate) error {
	for i, r := range rates {
		var err error
		if table == `pinned_rates` {
			_, err = tx.Exec(ctx,
				`INSERT INTO pinned_rates (date, position, from_currency, to_currency, rate, timestamp)
				 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6)`,
				date, i, r.From, r.To, r.Rate.String(), r.Timestamp)
		} else {
			_, err = tx.Exec(ctx,
				`INSERT INTO exchange_rates (position, from_currency, to_currency, rate, timestamp)
				 VALUES ($1, $2, $3, $4::NUMERIC, $5)`,
				i, r.From, r.To, r.Rate.String(), r.Timestamp)
		}
		if err != nil {
			return fmt.Errorf("insert rate %s/%s: %w", r.From, r.To, err)
		}
	}
	return nil
}

func nullableDecimal(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

// translate maps pgx errors onto the store sentinels. A foreign key
// violation means a missing parent on insert/update (ErrNotFound) and
// surviving children on delete (ErrConflict), so the caller picks.
func translate(err error, op string, fkErr error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w: %s", op, ErrConflict, pgErr.Detail)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: %w: %s", op, fkErr, pgErr.Detail)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
