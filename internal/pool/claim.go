package pool

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/assetpool/pool-engine/internal/metrics"
)

// ClaimRequest is the JSON body for POST /pools/{poolID}/claim.
type ClaimRequest struct {
	UserAddress string `json:"user_address"`
}

// ClaimResult reports what a claim paid out. Accrued totals are left
// untouched so the accrual history stays auditable.
type ClaimResult struct {
	PoolID         string          `json:"pool_id"`
	UserAddress    string          `json:"user_address"`
	StakingRewards decimal.Decimal `json:"staking_rewards"`
	FarmingYield   decimal.Decimal `json:"farming_yield"`
	Total          decimal.Decimal `json:"total"`
}

// Claim transfers unclaimed accrued rewards (staking and farming) to the
// claimed totals and returns the delta. Allowed on closed pools.
func (s *Service) Claim(ctx context.Context, poolID, userAddress string) (*ClaimResult, error) {
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
	if pos.IsEmpty() {
		return nil, ErrNoPosition
	}

	result := &ClaimResult{
		PoolID:         poolID,
		UserAddress:    userAddress,
		StakingRewards: decimal.Zero,
		FarmingYield:   decimal.Zero,
	}

	if sp := pos.Staking; sp != nil {
		delta := sp.AccruedRewards.Sub(sp.ClaimedRewards)
		if delta.IsPositive() {
			result.StakingRewards = delta
			sp.ClaimedRewards = sp.AccruedRewards
		}
	}
	if fp := pos.Farming; fp != nil {
		delta := fp.AccruedYield.Sub(fp.ClaimedYield)
		if delta.IsPositive() {
			result.FarmingYield = delta
			fp.ClaimedYield = fp.AccruedYield
		}
	}

	result.Total = result.StakingRewards.Add(result.FarmingYield)
	if result.Total.IsZero() {
		return nil, ErrNothingToClaim
	}

	p.TotalRewardsPaid = p.TotalRewardsPaid.Add(result.Total)

	if err := s.savePosition(ctx, p, pos, false); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePool(ctx, p); err != nil {
		return nil, err
	}

	metrics.RewardsClaimed.Add(result.Total.InexactFloat64())

	slog.Info("rewards claimed",
		"pool", poolID,
		"user", userAddress,
		"staking", result.StakingRewards.String(),
		"farming", result.FarmingYield.String(),
	)

	s.broadcast(Event{
		Type:        "rewards_claimed",
		PoolID:      poolID,
		UserAddress: userAddress,
		Amount:      result.Total.String(),
	})

	return result, nil
}

// HandleClaim handles POST /api/v1/pools/{poolID}/claim.
func (s *Service) HandleClaim(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserAddress == "" {
		writeError(w, "user_address is required", http.StatusBadRequest)
		return
	}

	result, err := s.Claim(r.Context(), chi.URLParam(r, "poolID"), req.UserAddress)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
