package pool

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/assetpool/pool-engine/internal/amm"
	"github.com/assetpool/pool-engine/internal/metrics"
	"github.com/assetpool/pool-engine/internal/model"
)

// FarmRequest is the JSON body for POST /pools/{poolID}/farm and
// /farm/exit.
type FarmRequest struct {
	UserAddress   string          `json:"user_address"`
	LPTokenAmount decimal.Decimal `json:"lp_token_amount"`
}

// FarmSettlement is the outcome of a farm exit.
type FarmSettlement struct {
	PoolID           string          `json:"pool_id"`
	UserAddress      string          `json:"user_address"`
	LPTokensReleased decimal.Decimal `json:"lp_tokens_released"`
	YieldPaid        decimal.Decimal `json:"yield_paid"`
}

// EnterFarm commits held LP tokens to yield farming. Yield accrues at
// the staking reward rate boosted by the pool's multiplier, snapshotted
// at entry.
func (s *Service) EnterFarm(ctx context.Context, poolID, userAddress string, lpTokenAmount decimal.Decimal) (*model.FarmingPosition, error) {
	if lpTokenAmount.LessThanOrEqual(decimal.Zero) {
		return nil, amm.ErrInsufficientAmount
	}

	unlock := s.locks.lock(poolID)
	defer unlock()

	p, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.PoolActive {
		return nil, ErrPoolClosed
	}
	if !p.YieldFarmingEnabled {
		return nil, ErrFarmingDisabled
	}

	pos, isNew, err := s.positionForUpdate(ctx, userAddress, poolID)
	if err != nil {
		return nil, err
	}
	if pos.Liquidity == nil {
		return nil, ErrNoPosition
	}

	committed := decimal.Zero
	if pos.Farming != nil {
		committed = pos.Farming.LPTokensCommitted
	}
	available := pos.Liquidity.LPTokens.Sub(committed)
	if lpTokenAmount.GreaterThan(available) {
		return nil, ErrInsufficientBalance
	}

	now := s.now()
	if pos.Farming == nil {
		pos.Farming = &model.FarmingPosition{
			Multiplier:         p.YieldMultiplier,
			EnteredAt:          now,
			LastDistributionAt: now,
		}
	}
	pos.Farming.LPTokensCommitted = pos.Farming.LPTokensCommitted.Add(lpTokenAmount)

	// Annualized yield projection for the committed tokens, at the
	// multiplier snapshotted on the position.
	expected := lpTokenAmount.Mul(p.RewardRate).Mul(pos.Farming.Multiplier).Round(amm.ShareScale)
	pos.Farming.ExpectedYield = pos.Farming.ExpectedYield.Add(expected)

	if err := s.savePosition(ctx, p, pos, isNew); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePool(ctx, p); err != nil {
		return nil, err
	}

	metrics.FarmOps.WithLabelValues("enter").Inc()

	slog.Info("farm entered",
		"pool", poolID,
		"user", userAddress,
		"lp_committed", lpTokenAmount.String(),
		"multiplier", pos.Farming.Multiplier.String(),
	)

	s.broadcast(Event{
		Type:        "farm_entered",
		PoolID:      poolID,
		UserAddress: userAddress,
		Amount:      lpTokenAmount.String(),
	})

	farming := *pos.Farming
	return &farming, nil
}

// ExitFarm releases committed LP tokens and pays out unclaimed yield.
// Farming carries no lock, so there is no early-exit penalty. Allowed on
// closed pools.
func (s *Service) ExitFarm(ctx context.Context, poolID, userAddress string, lpTokenAmount decimal.Decimal) (*FarmSettlement, error) {
	if lpTokenAmount.LessThanOrEqual(decimal.Zero) {
		return nil, amm.ErrInsufficientAmount
	}

	unlock := s.locks.lock(poolID)
	defer unlock()

	p, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}

	pos, _, err := s.positionForUpdate(ctx, userAddress, poolID)
	if err != nil {
		return nil, err
	}
	fp := pos.Farming
	if fp == nil {
		return nil, ErrNoPosition
	}
	if lpTokenAmount.GreaterThan(fp.LPTokensCommitted) {
		return nil, ErrInsufficientBalance
	}

	settlement := &FarmSettlement{
		PoolID:           poolID,
		UserAddress:      userAddress,
		LPTokensReleased: lpTokenAmount,
		YieldPaid:        decimal.Zero,
	}

	unclaimed := fp.AccruedYield.Sub(fp.ClaimedYield)
	if unclaimed.IsPositive() {
		settlement.YieldPaid = unclaimed
		fp.ClaimedYield = fp.AccruedYield
		p.TotalRewardsPaid = p.TotalRewardsPaid.Add(unclaimed)
	}

	// Shrink the remaining yield projection with the released share.
	share := lpTokenAmount.Div(fp.LPTokensCommitted)
	fp.ExpectedYield = fp.ExpectedYield.Sub(fp.ExpectedYield.Mul(share)).Round(amm.ShareScale)
	fp.LPTokensCommitted = fp.LPTokensCommitted.Sub(lpTokenAmount)
	if fp.LPTokensCommitted.IsZero() {
		pos.Farming = nil
	}

	if err := s.savePosition(ctx, p, pos, false); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePool(ctx, p); err != nil {
		return nil, err
	}

	metrics.FarmOps.WithLabelValues("exit").Inc()

	slog.Info("farm exited",
		"pool", poolID,
		"user", userAddress,
		"lp_released", lpTokenAmount.String(),
		"yield_paid", settlement.YieldPaid.String(),
	)

	s.broadcast(Event{
		Type:        "farm_exited",
		PoolID:      poolID,
		UserAddress: userAddress,
		Amount:      lpTokenAmount.String(),
	})

	return settlement, nil
}

// --- HTTP Handlers ---

// HandleEnterFarm handles POST /api/v1/pools/{poolID}/farm.
func (s *Service) HandleEnterFarm(w http.ResponseWriter, r *http.Request) {
	var req FarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserAddress == "" {
		writeError(w, "user_address is required", http.StatusBadRequest)
		return
	}

	fp, err := s.EnterFarm(r.Context(), chi.URLParam(r, "poolID"), req.UserAddress, req.LPTokenAmount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fp)
}

// HandleExitFarm handles POST /api/v1/pools/{poolID}/farm/exit.
func (s *Service) HandleExitFarm(w http.ResponseWriter, r *http.Request) {
	var req FarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserAddress == "" {
		writeError(w, "user_address is required", http.StatusBadRequest)
		return
	}

	settlement, err := s.ExitFarm(r.Context(), chi.URLParam(r, "poolID"), req.UserAddress, req.LPTokenAmount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settlement)
}
