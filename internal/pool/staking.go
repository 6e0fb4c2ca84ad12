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

// StakeRequest is the JSON body for POST /pools/{poolID}/stake.
type StakeRequest struct {
	UserAddress       string          `json:"user_address"`
	Amount            decimal.Decimal `json:"amount"`
	LockPeriodSeconds int64           `json:"lock_period_seconds"` // 0 → pool default
}

// UnstakeRequest is the JSON body for POST /pools/{poolID}/unstake.
type UnstakeRequest struct {
	UserAddress string          `json:"user_address"`
	Amount      decimal.Decimal `json:"amount"`
}

// Settlement is the outcome of an unstake: how much principal came back,
// what penalty applied, and what rewards were paid out.
type Settlement struct {
	PoolID          string          `json:"pool_id"`
	UserAddress     string          `json:"user_address"`
	AmountReturned  decimal.Decimal `json:"amount_returned"`
	RewardsPaid     decimal.Decimal `json:"rewards_paid"`
	PenaltyApplied  decimal.Decimal `json:"penalty_applied"`
	EarlyWithdrawal bool            `json:"early_withdrawal"`
	PositionStatus  string          `json:"position_status"`
}

// Stake locks principal in the pool. The projected reward is a linear
// estimate over the lock period; the actual payout accrues incrementally
// through the reward distributor.
func (s *Service) Stake(ctx context.Context, poolID, userAddress string, amount decimal.Decimal, lockPeriodSeconds int64) (*model.StakingPosition, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
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
	if amount.LessThan(p.MinimumStake) {
		return nil, ErrBelowMinimum
	}

	if lockPeriodSeconds <= 0 {
		lockPeriodSeconds = p.LockPeriodSeconds
	}

	expected := amount.Mul(p.RewardRate).
		Mul(decimal.NewFromInt(lockPeriodSeconds)).
		Div(decimal.NewFromInt(SecondsPerYear)).
		Round(amm.ShareScale)

	pos, isNew, err := s.positionForUpdate(ctx, userAddress, poolID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	switch {
	case pos.Staking == nil || pos.Staking.Status == model.StakeWithdrawn:
		pos.Staking = &model.StakingPosition{
			LockPeriodSeconds:  lockPeriodSeconds,
			StartedAt:          now,
			LastDistributionAt: now,
			Status:             model.StakeActive,
		}
	case pos.Staking.Status == model.StakeUnlocked:
		// Restaking after the lock expired opens a new epoch: the
		// residual principal re-locks under the new window and its
		// projection is recomputed, with any unclaimed rewards from
		// the old epoch carried forward.
		sp := pos.Staking
		carry := sp.AccruedRewards.Sub(sp.ClaimedRewards)
		sp.AccruedRewards = carry
		sp.ClaimedRewards = decimal.Zero
		sp.ExpectedRewards = sp.Principal.Mul(p.RewardRate).
			Mul(decimal.NewFromInt(lockPeriodSeconds)).
			Div(decimal.NewFromInt(SecondsPerYear)).
			Round(amm.ShareScale)
		sp.LockPeriodSeconds = lockPeriodSeconds
		sp.StartedAt = now
		sp.LastDistributionAt = now
		sp.Status = model.StakeActive
	}
	pos.Staking.Principal = pos.Staking.Principal.Add(amount)
	pos.Staking.ExpectedRewards = pos.Staking.ExpectedRewards.Add(expected)

	p.TotalStaked = p.TotalStaked.Add(amount)

	if err := s.savePosition(ctx, p, pos, isNew); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePool(ctx, p); err != nil {
		return nil, err
	}

	metrics.StakeVolume.Add(amount.InexactFloat64())

	slog.Info("staked",
		"pool", poolID,
		"user", userAddress,
		"amount", amount.String(),
		"lock_seconds", lockPeriodSeconds,
		"expected_rewards", expected.String(),
	)

	s.broadcast(Event{
		Type:        "staked",
		PoolID:      poolID,
		UserAddress: userAddress,
		Amount:      amount.String(),
	})

	staked := *pos.Staking
	return &staked, nil
}

// Unstake withdraws principal. Before the lock expires the withdrawal is
// penalized and the unaccrued reward projection for the withdrawn
// portion is forfeited; after unlock the full principal plus all
// unclaimed accrued rewards come back. Allowed on closed pools.
func (s *Service) Unstake(ctx context.Context, poolID, userAddress string, amount decimal.Decimal) (*Settlement, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
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
	sp := pos.Staking
	if sp == nil || sp.Status == model.StakeWithdrawn {
		return nil, ErrNoPosition
	}
	if amount.GreaterThan(sp.Principal) {
		return nil, ErrInsufficientPrincipal
	}

	now := s.now()
	early := now.Before(sp.UnlocksAt())

	settlement := &Settlement{
		PoolID:          poolID,
		UserAddress:     userAddress,
		EarlyWithdrawal: early,
		RewardsPaid:     decimal.Zero,
		PenaltyApplied:  decimal.Zero,
	}

	if early {
		settlement.PenaltyApplied = amount.Mul(p.EarlyWithdrawalPenalty).Round(amm.ShareScale)
		settlement.AmountReturned = amount.Sub(settlement.PenaltyApplied)

		// Forfeit the unaccrued reward projection for the withdrawn share.
		share := amount.Div(sp.Principal)
		unaccrued := sp.ExpectedRewards.Sub(sp.AccruedRewards)
		if unaccrued.IsPositive() {
			sp.ExpectedRewards = sp.ExpectedRewards.Sub(unaccrued.Mul(share)).Round(amm.ShareScale)
		}
	} else {
		settlement.AmountReturned = amount
		sp.Status = model.StakeUnlocked

		unclaimed := sp.AccruedRewards.Sub(sp.ClaimedRewards)
		if unclaimed.IsPositive() {
			settlement.RewardsPaid = unclaimed
			sp.ClaimedRewards = sp.AccruedRewards
			p.TotalRewardsPaid = p.TotalRewardsPaid.Add(unclaimed)
		}
	}

	sp.Principal = sp.Principal.Sub(amount)
	if sp.Principal.IsZero() {
		sp.Status = model.StakeWithdrawn
	}
	settlement.PositionStatus = sp.Status

	p.TotalStaked = p.TotalStaked.Sub(amount)

	if err := s.savePosition(ctx, p, pos, false); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePool(ctx, p); err != nil {
		return nil, err
	}

	slog.Info("unstaked",
		"pool", poolID,
		"user", userAddress,
		"amount", amount.String(),
		"early", early,
		"penalty", settlement.PenaltyApplied.String(),
		"rewards_paid", settlement.RewardsPaid.String(),
	)

	s.broadcast(Event{
		Type:        "unstaked",
		PoolID:      poolID,
		UserAddress: userAddress,
		Amount:      amount.String(),
	})

	return settlement, nil
}

// --- HTTP Handlers ---

// HandleStake handles POST /api/v1/pools/{poolID}/stake.
func (s *Service) HandleStake(w http.ResponseWriter, r *http.Request) {
	var req StakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserAddress == "" {
		writeError(w, "user_address is required", http.StatusBadRequest)
		return
	}

	sp, err := s.Stake(r.Context(), chi.URLParam(r, "poolID"), req.UserAddress, req.Amount, req.LockPeriodSeconds)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

// HandleUnstake handles POST /api/v1/pools/{poolID}/unstake.
func (s *Service) HandleUnstake(w http.ResponseWriter, r *http.Request) {
	var req UnstakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserAddress == "" {
		writeError(w, "user_address is required", http.StatusBadRequest)
		return
	}

	settlement, err := s.Unstake(r.Context(), chi.URLParam(r, "poolID"), req.UserAddress, req.Amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settlement)
}
