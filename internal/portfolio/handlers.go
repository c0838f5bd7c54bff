package portfolio

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/atmx/portfolio-engine/internal/model"
	"github.com/atmx/portfolio-engine/internal/store"
)

// Mount registers the REST routes on r (expected to be the /api/v1 subrouter).
func (s *Service) Mount(r chi.Router) {
	r.Get("/accounts", s.ListAccounts)
	r.Post("/accounts", s.CreateAccount)
	r.Delete("/accounts/{accountID}", s.DeleteAccount)

	r.Get("/holdings", s.ListHoldings)
	r.Post("/holdings", s.CreateHolding)
	r.Get("/holdings/{holdingID}", s.GetHolding)
	r.Put("/holdings/{holdingID}", s.UpdateHolding)
	r.Delete("/holdings/{holdingID}", s.DeleteHolding)

	r.Get("/prices", s.GetPrices)
	r.Put("/prices", s.PutPrices)
	r.Get("/rates", s.GetRates)
	r.Put("/rates", s.PutRates)
	r.Get("/rates/pinned/{date}", s.GetPinnedRates)
	r.Put("/rates/pinned/{date}", s.PutPinnedRates)

	r.Get("/stats", s.GetStats)
	r.Get("/snapshots", s.ListSnapshots)
	r.Post("/snapshots", s.CreateSnapshot)
}

// --- Request types ---

// CreateAccountRequest is the JSON body for account creation.
type CreateAccountRequest struct {
	ID   string `json:"id"` // optional; generated when empty
	Name string `json:"name"`
}

// --- Accounts ---

// ListAccounts handles GET /api/v1/accounts
func (s *Service) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccounts(r.Context())
	if err != nil {
		writeError(w, "failed to list accounts", http.StatusInternalServerError)
		return
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

// CreateAccount handles POST /api/v1/accounts
func (s *Service) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, "name is required", http.StatusBadRequest)
		return
	}

	account := &model.Account{
		ID:        strings.TrimSpace(req.ID),
		Name:      req.Name,
		CreatedAt: s.now().UTC(),
	}
	if account.ID == "" {
		account.ID = uuid.New().String()
	}

	if err := s.store.CreateAccount(r.Context(), account); err != nil {
		writeStoreError(w, err)
		return
	}

	s.log.Info().Str("id", account.ID).Str("name", account.Name).Msg("Account created")
	writeJSON(w, http.StatusCreated, account)
}

// DeleteAccount handles DELETE /api/v1/accounts/{accountID}
func (s *Service) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	if err := s.store.DeleteAccount(r.Context(), accountID); err != nil {
		writeStoreError(w, err)
		return
	}

	s.log.Info().Str("id", accountID).Msg("Account deleted")
	w.WriteHeader(http.StatusNoContent)
}

// --- Holdings ---

// ListHoldings handles GET /api/v1/holdings
// Returns all holdings, optionally filtered by ?account_id=<id>.
func (s *Service) ListHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := s.store.ListHoldings(r.Context())
	if err != nil {
		writeError(w, "failed to list holdings", http.StatusInternalServerError)
		return
	}

	if account := r.URL.Query().Get("account_id"); account != "" {
		var filtered []model.Holding
		for _, h := range holdings {
			if h.AccountID == account {
				filtered = append(filtered, h)
			}
		}
		holdings = filtered
	}
	if holdings == nil {
		holdings = []model.Holding{}
	}

	writeJSON(w, http.StatusOK, holdings)
}

// CreateHolding handles POST /api/v1/holdings
func (s *Service) CreateHolding(w http.ResponseWriter, r *http.Request) {
	var h model.Holding
	if err := json.NewDecoder(r.Body).Decode(&h); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.Normalize(); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := s.now().UTC()
	h.ID = uuid.New().String()
	if h.PurchaseDate.IsZero() {
		h.PurchaseDate = now
	}
	h.LastUpdated = now

	ctx := r.Context()
	if err := s.store.CreateHolding(ctx, &h); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "account not found: "+h.AccountID, http.StatusBadRequest)
			return
		}
		writeStoreError(w, err)
		return
	}

	s.log.Info().
		Str("id", h.ID).
		Str("account", h.AccountID).
		Str("symbol", h.Symbol).
		Str("type", string(h.Type)).
		Str("quantity", h.Quantity.String()).
		Str("currency", h.Currency).
		Msg("Holding created")

	s.changed(ctx, "holding_created")
	writeJSON(w, http.StatusCreated, h)
}

// GetHolding handles GET /api/v1/holdings/{holdingID}
func (s *Service) GetHolding(w http.ResponseWriter, r *http.Request) {
	holdingID := chi.URLParam(r, "holdingID")

	h, err := s.store.GetHolding(r.Context(), holdingID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

// UpdateHolding handles PUT /api/v1/holdings/{holdingID}
// The body replaces the holding; an omitted purchase_date keeps the stored one.
func (s *Service) UpdateHolding(w http.ResponseWriter, r *http.Request) {
	holdingID := chi.URLParam(r, "holdingID")
	ctx := r.Context()

	existing, err := s.store.GetHolding(ctx, holdingID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var h model.Holding
	if err := json.NewDecoder(r.Body).Decode(&h); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if h.AccountID == "" {
		h.AccountID = existing.AccountID
	}
	if err := h.Normalize(); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.ID = holdingID
	if h.PurchaseDate.IsZero() {
		h.PurchaseDate = existing.PurchaseDate
	}
	h.LastUpdated = s.now().UTC()

	if err := s.store.UpdateHolding(ctx, &h); err != nil {
		writeStoreError(w, err)
		return
	}

	s.log.Info().Str("id", h.ID).Str("symbol", h.Symbol).Msg("Holding updated")
	s.changed(ctx, "holding_updated")
	writeJSON(w, http.StatusOK, h)
}

// DeleteHolding handles DELETE /api/v1/holdings/{holdingID}
func (s *Service) DeleteHolding(w http.ResponseWriter, r *http.Request) {
	holdingID := chi.URLParam(r, "holdingID")
	ctx := r.Context()

	if err := s.store.DeleteHolding(ctx, holdingID); err != nil {
		writeStoreError(w, err)
		return
	}

	s.log.Info().Str("id", holdingID).Msg("Holding deleted")
	s.changed(ctx, "holding_deleted")
	w.WriteHeader(http.StatusNoContent)
}

// --- Prices and rates ---

// GetPrices handles GET /api/v1/prices
func (s *Service) GetPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := s.store.ListPrices(r.Context())
	if err != nil {
		writeError(w, "failed to list prices", http.StatusInternalServerError)
		return
	}
	if prices == nil {
		prices = []model.PriceObservation{}
	}
	writeJSON(w, http.StatusOK, prices)
}

// PutPrices handles PUT /api/v1/prices
// The body is the complete new price snapshot.
func (s *Service) PutPrices(w http.ResponseWriter, r *http.Request) {
	var prices []model.PriceObservation
	if err := json.NewDecoder(r.Body).Decode(&prices); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.ApplyPrices(r.Context(), prices); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetRates handles GET /api/v1/rates
func (s *Service) GetRates(w http.ResponseWriter, r *http.Request) {
	rates, err := s.store.ListRates(r.Context())
	if err != nil {
		writeError(w, "failed to list rates", http.StatusInternalServerError)
		return
	}
	if rates == nil {
		rates = []model.ExchangeRate{}
	}
	writeJSON(w, http.StatusOK, rates)
}

// PutRates handles PUT /api/v1/rates
// The body is the complete new live rate snapshot.
func (s *Service) PutRates(w http.ResponseWriter, r *http.Request) {
	var rates []model.ExchangeRate
	if err := json.NewDecoder(r.Body).Decode(&rates); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.ApplyRates(r.Context(), rates); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPinnedRates handles GET /api/v1/rates/pinned/{date}
func (s *Service) GetPinnedRates(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")

	rates, err := s.PinnedRates(r.Context(), date)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if rates == nil {
		rates = []model.ExchangeRate{}
	}
	writeJSON(w, http.StatusOK, RateSet{Date: date, Pinned: true, Rates: rates})
}

// PutPinnedRates handles PUT /api/v1/rates/pinned/{date}
func (s *Service) PutPinnedRates(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")

	var rates []model.ExchangeRate
	if err := json.NewDecoder(r.Body).Decode(&rates); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.PinRates(r.Context(), date, rates); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Statistics ---

// GetStats handles GET /api/v1/stats
// ?date=YYYY-MM-DD selects the calculation day (default today, UTC). The
// X-Rates-Source header reports whether pinned or live rates were used.
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	on, ok := s.parseDate(w, r)
	if !ok {
		return
	}

	stats, set, err := s.Stats(r.Context(), on)
	if err != nil {
		s.log.Error().Err(err).Msg("Stats calculation failed")
		writeError(w, "failed to calculate stats", http.StatusInternalServerError)
		return
	}

	source := "live"
	if set.Pinned {
		source = "pinned"
	}
	w.Header().Set("X-Rates-Source", source)
	writeJSON(w, http.StatusOK, stats)
}

// ListSnapshots handles GET /api/v1/snapshots
func (s *Service) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.store.ListSnapshots(r.Context())
	if err != nil {
		writeError(w, "failed to list snapshots", http.StatusInternalServerError)
		return
	}
	if snaps == nil {
		snaps = []model.StatsSnapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

// CreateSnapshot handles POST /api/v1/snapshots
// ?date=YYYY-MM-DD selects the snapshot day (default today, UTC).
func (s *Service) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	on, ok := s.parseDate(w, r)
	if !ok {
		return
	}

	snap, err := s.RecordSnapshot(r.Context(), on)
	if err != nil {
		s.log.Error().Err(err).Msg("Snapshot failed")
		writeError(w, "failed to record snapshot", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// --- helpers ---

func (s *Service) parseDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return s.now().UTC(), true
	}
	on, err := time.Parse(model.DateLayout, raw)
	if err != nil {
		writeError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return time.Time{}, false
	}
	return on, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrConflict):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

// writeServiceError maps validation failures to 400 and defers the rest
// to writeStoreError.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidDate),
		errors.Is(err, ErrInvalidRate),
		errors.Is(err, model.ErrInvalidCurrency),
		errors.Is(err, model.ErrMissingField):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		writeStoreError(w, err)
	}
}
