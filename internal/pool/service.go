// Package pool implements the asset-pool economic engine: the pool
// registry, constant-product liquidity bookkeeping, staking, yield
// farming, and the HTTP surface consumed by the tokenization and UI
// layers.
//
// All mutations to a given pool are serialized through a per-pool mutex;
// operations on different pools run in parallel. All monetary values use
// shopspring/decimal — never float64 for money.
package pool

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/assetpool/pool-engine/internal/amm"
	"github.com/assetpool/pool-engine/internal/metrics"
	"github.com/assetpool/pool-engine/internal/model"
	"github.com/assetpool/pool-engine/internal/risk"
	"github.com/assetpool/pool-engine/internal/store"
)

// SecondsPerYear is the accrual year used for reward projections.
const SecondsPerYear = 365 * 24 * 3600

// Pool parameter defaults applied when the creation config leaves them
// unset.
var (
	defaultFee             = decimal.NewFromFloat(0.003)
	defaultYieldMultiplier = decimal.NewFromFloat(1.5)
	defaultPenalty         = decimal.NewFromFloat(0.10)
	defaultQuorum          = decimal.NewFromFloat(0.1)
)

const defaultVotingPeriodSeconds = 7 * 24 * 3600

// Service owns the pool registry and the liquidity, staking, and farming
// engines. It is stateless over an injected Store; the only in-process
// state is the per-pool lock table.
type Service struct {
	store store.Store
	locks *lockTable
	hub   *Hub // optional WebSocket hub for real-time broadcasts

	// now is injected for tests that simulate the passage of time.
	now func() time.Time
}

// NewService creates a new pool service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(st store.Store, hub *Hub) *Service {
	return &Service{
		store: st,
		locks: newLockTable(),
		hub:   hub,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the service clock. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Store exposes the underlying store to collaborating engines.
func (s *Service) Store() store.Store {
	return s.store
}

// --- Request/Response types ---

// AssetMetadata is supplied by the tokenization component when an asset
// finishes tokenization.
type AssetMetadata struct {
	ID              string          `json:"id"`
	AssetName       string          `json:"asset_name"`
	TokenSymbol     string          `json:"token_symbol"`
	TokenSupply     decimal.Decimal `json:"token_supply"`
	TokenPrice      decimal.Decimal `json:"token_price"`
	ExpectedReturn  decimal.Decimal `json:"expected_return"` // percent, e.g. 8.5
	DurationSeconds int64           `json:"duration_seconds"`
	AssetType       string          `json:"asset_type"`
	Creator         string          `json:"creator"`
}

// InitialLiquidity seeds non-zero reserves at pool creation.
type InitialLiquidity struct {
	AssetAmount decimal.Decimal `json:"asset_amount"`
	QuoteAmount decimal.Decimal `json:"quote_amount"`
}

// PoolConfig carries the economic parameters for a new pool. Zero-valued
// fields fall back to defaults; RewardRate falls back to the asset's
// expected return.
type PoolConfig struct {
	Fee                    decimal.Decimal   `json:"fee"`
	LockPeriodSeconds      int64             `json:"lock_period_seconds"`
	RewardRate             decimal.Decimal   `json:"reward_rate"` // annualized fraction
	MinimumStake           decimal.Decimal   `json:"minimum_stake"`
	YieldFarmingEnabled    *bool             `json:"yield_farming_enabled,omitempty"`
	YieldMultiplier        decimal.Decimal   `json:"yield_multiplier"`
	EarlyWithdrawalPenalty decimal.Decimal   `json:"early_withdrawal_penalty"`
	QuorumFraction         decimal.Decimal   `json:"quorum_fraction"`
	VotingPeriodSeconds    int64             `json:"voting_period_seconds"`
	InitialLiquidity       *InitialLiquidity `json:"initial_liquidity,omitempty"`
}

// CreatePoolRequest is the JSON body for POST /pools.
type CreatePoolRequest struct {
	Asset  AssetMetadata `json:"asset"`
	Config PoolConfig    `json:"config"`
}

// --- PoolRegistry core ---

// CreatePool constructs a pool from asset metadata and caller-supplied
// config, persisting it and optionally seeding initial liquidity
// attributed to the asset creator.
func (s *Service) CreatePool(ctx context.Context, asset AssetMetadata, cfg PoolConfig) (*model.Pool, error) {
	if asset.TokenSupply.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidConfig
	}
	if asset.TokenPrice.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidConfig
	}

	fee := cfg.Fee
	if fee.IsZero() {
		fee = defaultFee
	}
	if fee.IsNegative() || fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, ErrInvalidConfig
	}

	rewardRate := cfg.RewardRate
	if rewardRate.IsZero() {
		// Fall back to the asset's expected return, converted from percent.
		rewardRate = asset.ExpectedReturn.Div(decimal.NewFromInt(100))
	}
	if rewardRate.IsNegative() {
		return nil, ErrInvalidConfig
	}

	lockPeriod := cfg.LockPeriodSeconds
	if lockPeriod <= 0 {
		lockPeriod = asset.DurationSeconds
	}

	yieldMultiplier := cfg.YieldMultiplier
	if yieldMultiplier.LessThanOrEqual(decimal.Zero) {
		yieldMultiplier = defaultYieldMultiplier
	}

	penalty := cfg.EarlyWithdrawalPenalty
	if penalty.IsZero() {
		penalty = defaultPenalty
	}
	if penalty.IsNegative() || penalty.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, ErrInvalidConfig
	}

	quorum := cfg.QuorumFraction
	if quorum.LessThanOrEqual(decimal.Zero) {
		quorum = defaultQuorum
	}

	votingPeriod := cfg.VotingPeriodSeconds
	if votingPeriod <= 0 {
		votingPeriod = defaultVotingPeriodSeconds
	}

	farmingEnabled := true
	if cfg.YieldFarmingEnabled != nil {
		farmingEnabled = *cfg.YieldFarmingEnabled
	}

	// Seed amounts are checked up front so a bad seed never leaves a
	// persisted pool behind.
	if seed := cfg.InitialLiquidity; seed != nil {
		if seed.AssetAmount.LessThanOrEqual(decimal.Zero) || seed.QuoteAmount.LessThanOrEqual(decimal.Zero) {
			return nil, amm.ErrInsufficientAmount
		}
	}

	p := &model.Pool{
		ID:          uuid.New().String(),
		AssetID:     asset.ID,
		AssetName:   asset.AssetName,
		TokenSymbol: asset.TokenSymbol,
		AssetType:   asset.AssetType,
		Creator:     asset.Creator,

		TotalSupply:            asset.TokenSupply,
		AvailableSupply:        asset.TokenSupply,
		TokenPrice:             asset.TokenPrice,
		MinimumStake:           cfg.MinimumStake,
		Fee:                    fee,
		LockPeriodSeconds:      lockPeriod,
		RewardRate:             rewardRate,
		YieldFarmingEnabled:    farmingEnabled,
		YieldMultiplier:        yieldMultiplier,
		EarlyWithdrawalPenalty: penalty,
		QuorumFraction:         quorum,
		VotingPeriodSeconds:    votingPeriod,

		ReserveAsset:        decimal.Zero,
		ReserveQuote:        decimal.Zero,
		LPTokensOutstanding: decimal.Zero,
		TotalStaked:         decimal.Zero,
		TotalRewardsPaid:    decimal.Zero,

		Status:    model.PoolActive,
		CreatedAt: s.now(),
	}

	if err := s.store.CreatePool(ctx, p); err != nil {
		return nil, err
	}
	metrics.PoolsCreated.Inc()

	if cfg.InitialLiquidity != nil {
		receipt, err := s.AddLiquidity(ctx, p.ID, asset.Creator,
			cfg.InitialLiquidity.AssetAmount, cfg.InitialLiquidity.QuoteAmount)
		if err != nil {
			return nil, err
		}
		slog.Info("initial liquidity seeded",
			"pool", p.ID,
			"lp_tokens", receipt.LPTokensIssued.String(),
		)
		// Re-read so the returned pool reflects the seeded reserves.
		return s.store.GetPool(ctx, p.ID)
	}

	return p, nil
}

// GetPool retrieves a pool by ID.
func (s *Service) GetPool(ctx context.Context, poolID string) (*model.Pool, error) {
	return s.store.GetPool(ctx, poolID)
}

// ListPools returns pools matching the filter.
func (s *Service) ListPools(ctx context.Context, filter store.PoolFilter) ([]model.Pool, error) {
	return s.store.ListPools(ctx, filter)
}

// SetPoolStatus transitions the pool lifecycle (active/paused/closed).
// Closed pools reject new positions but still allow withdrawal and claim.
func (s *Service) SetPoolStatus(ctx context.Context, poolID, status string) (*model.Pool, error) {
	if status != model.PoolActive && status != model.PoolPaused && status != model.PoolClosed {
		return nil, ErrInvalidConfig
	}

	unlock := s.locks.lock(poolID)
	defer unlock()

	p, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	p.Status = status
	if err := s.store.UpdatePool(ctx, p); err != nil {
		return nil, err
	}

	slog.Info("pool status changed", "pool", poolID, "status", status)
	return p, nil
}

// ComputeMetrics derives the read-only metrics view for a pool. Never
// mutates state.
func (s *Service) ComputeMetrics(ctx context.Context, poolID string) (*model.PoolMetrics, error) {
	p, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}

	hundred := decimal.NewFromInt(100)

	// TVL: token-denominated holdings marked at the token price, plus the
	// quote-side reserve.
	tvl := p.ReserveAsset.Add(p.TotalStaked).Mul(p.TokenPrice).Add(p.ReserveQuote)

	return &model.PoolMetrics{
		PoolID:              p.ID,
		TVL:                 tvl.Round(amm.ShareScale),
		StakingAPY:          p.RewardRate.Mul(hundred),
		LiquidityAPY:        p.RewardRate.Mul(p.YieldMultiplier).Mul(hundred),
		RiskScore:           risk.Score(p.AssetType, p.RewardRate.Mul(hundred)),
		TotalStaked:         p.TotalStaked,
		LPTokensOutstanding: p.LPTokensOutstanding,
		TotalRewardsPaid:    p.TotalRewardsPaid,
		ParticipantCount:    p.ParticipantCount,
	}, nil
}

// --- Position helpers ---

// positionForUpdate loads the caller's composite position, creating an
// empty record if none exists. Callers hold the pool lock.
func (s *Service) positionForUpdate(ctx context.Context, userAddress, poolID string) (*model.Position, bool, error) {
	pos, err := s.store.GetPosition(ctx, userAddress, poolID)
	if err == nil {
		return pos, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}
	return &model.Position{
		UserAddress: userAddress,
		PoolID:      poolID,
	}, true, nil
}

// savePosition persists the position and maintains the pool's
// participant count on a user's first position in the pool.
func (s *Service) savePosition(ctx context.Context, p *model.Pool, pos *model.Position, isNew bool) error {
	pos.UpdatedAt = s.now()
	if err := s.store.UpsertPosition(ctx, pos); err != nil {
		return err
	}
	if isNew {
		p.ParticipantCount++
	}
	return nil
}

// --- HTTP Handlers (registry) ---

// HandleCreatePool handles POST /api/v1/pools.
func (s *Service) HandleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req CreatePoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Asset.ID == "" || req.Asset.Creator == "" {
		writeError(w, "asset id and creator are required", http.StatusBadRequest)
		return
	}

	p, err := s.CreatePool(r.Context(), req.Asset, req.Config)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	slog.Info("pool created",
		"id", p.ID,
		"asset", p.AssetID,
		"symbol", p.TokenSymbol,
		"reward_rate", p.RewardRate.String(),
	)

	writeJSON(w, http.StatusCreated, p)
}

// HandleGetPool handles GET /api/v1/pools/{poolID}.
func (s *Service) HandleGetPool(w http.ResponseWriter, r *http.Request) {
	p, err := s.GetPool(r.Context(), chi.URLParam(r, "poolID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleListPools handles GET /api/v1/pools with optional ?status= and
// ?asset_type= filters.
func (s *Service) HandleListPools(w http.ResponseWriter, r *http.Request) {
	filter := store.PoolFilter{
		Status:    r.URL.Query().Get("status"),
		AssetType: r.URL.Query().Get("asset_type"),
	}
	pools, err := s.ListPools(r.Context(), filter)
	if err != nil {
		writeError(w, "failed to list pools", http.StatusInternalServerError)
		return
	}
	if pools == nil {
		pools = []model.Pool{}
	}
	writeJSON(w, http.StatusOK, pools)
}

// HandlePoolMetrics handles GET /api/v1/pools/{poolID}/metrics.
func (s *Service) HandlePoolMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.ComputeMetrics(r.Context(), chi.URLParam(r, "poolID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleSetPoolStatus handles POST /api/v1/pools/{poolID}/status.
func (s *Service) HandleSetPoolStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, err := s.SetPoolStatus(r.Context(), chi.URLParam(r, "poolID"), req.Status)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleUserPositions handles GET /api/v1/positions/{userAddress}.
func (s *Service) HandleUserPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.store.ListPositionsByUser(r.Context(), chi.URLParam(r, "userAddress"))
	if err != nil {
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// HandlePoolRewards handles GET /api/v1/pools/{poolID}/rewards, returning
// the append-only reward event history.
func (s *Service) HandlePoolRewards(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.ListRewardEventsByPool(r.Context(), chi.URLParam(r, "poolID"))
	if err != nil {
		writeError(w, "failed to load reward events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.RewardEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
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

// writeEngineError maps engine error kinds to HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidConfig),
		errors.Is(err, amm.ErrInsufficientAmount),
		errors.Is(err, amm.ErrInvalidFee):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrPoolClosed),
		errors.Is(err, ErrBelowMinimum),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrInsufficientPrincipal),
		errors.Is(err, ErrFarmingDisabled),
		errors.Is(err, ErrNothingToClaim),
		errors.Is(err, ErrNoPosition),
		errors.Is(err, amm.ErrNoLiquidity):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}
