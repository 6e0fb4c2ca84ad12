package reward

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/assetpool/pool-engine/internal/metrics"
	"github.com/assetpool/pool-engine/internal/model"
	"github.com/assetpool/pool-engine/internal/pool"
	"github.com/assetpool/pool-engine/internal/store"
)

// PoolLocker serializes accrual against user-initiated operations on the
// same pool. Implemented by pool.Service.
type PoolLocker interface {
	LockPool(poolID string) func()
}

// Distributor periodically credits pending rewards to all active staking
// and farming positions. It is the only writer of reward events and the
// only component that increments accrued totals.
//
// Each credited amount is persisted in the same position write that
// advances LastDistributionAt, so re-running a tick over an already
// credited window is a no-op.
type Distributor struct {
	store    store.Store
	locks    PoolLocker
	hub      *pool.Hub // optional
	interval time.Duration

	// now is injected for tests that simulate the passage of time.
	now func() time.Time
}

// NewDistributor creates a distributor ticking at the given interval.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewDistributor(st store.Store, locks PoolLocker, hub *pool.Hub, interval time.Duration) *Distributor {
	return &Distributor{
		store:    st,
		locks:    locks,
		hub:      hub,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the distributor clock. Test hook.
func (d *Distributor) SetClock(now func() time.Time) {
	d.now = now
}

// Run ticks until the context is cancelled. Call in a goroutine.
func (d *Distributor) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	slog.Info("reward distributor started", "interval", d.interval.String())

	for {
		select {
		case <-ctx.Done():
			slog.Info("reward distributor stopped")
			return
		case <-ticker.C:
			if err := d.Tick(ctx); err != nil {
				slog.Error("reward distribution tick failed", "err", err)
			}
		}
	}
}

// Tick runs one accrual pass over every pool. A failure on one position
// is logged and does not abort accrual for the others.
func (d *Distributor) Tick(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.DistributionTickDuration.Observe(time.Since(start).Seconds())
	}()

	pools, err := d.store.ListPools(ctx, store.PoolFilter{})
	if err != nil {
		return err
	}

	for i := range pools {
		d.accruePool(ctx, &pools[i])
	}
	return nil
}

// accruePool credits all positions in one pool under the pool lock.
// Accrual continues on paused and closed pools: already-open positions
// keep earning until claimed or withdrawn.
func (d *Distributor) accruePool(ctx context.Context, p *model.Pool) {
	unlock := d.locks.LockPool(p.ID)
	defer unlock()

	positions, err := d.store.ListPositionsByPool(ctx, p.ID)
	if err != nil {
		slog.Error("list positions failed", "pool", p.ID, "err", err)
		return
	}

	total := decimal.Zero
	for i := range positions {
		credited, err := d.accruePosition(ctx, &positions[i])
		if err != nil {
			slog.Error("position accrual failed",
				"pool", p.ID,
				"user", positions[i].UserAddress,
				"err", err,
			)
			continue
		}
		total = total.Add(credited)
	}

	if total.IsPositive() && d.hub != nil {
		d.hub.Broadcast(pool.Event{
			Type:   "rewards_distributed",
			PoolID: p.ID,
			Amount: total.String(),
		})
	}
}

// accruePosition credits one position's staking and farming accrual and
// persists the position once, with the advanced distribution timestamps
// in the same write as the credited amounts. Ledger events are inserted
// only after that write commits, so a failed position write leaves no
// orphan event to double-count when the window is retried.
func (d *Distributor) accruePosition(ctx context.Context, pos *model.Position) (decimal.Decimal, error) {
	now := d.now()
	total := decimal.Zero
	var events []*model.RewardEvent

	if sp := pos.Staking; sp != nil && sp.Status == model.StakeActive {
		// Staking accrual stops at the end of the lock window.
		until := ClampToWindow(now, sp.UnlocksAt())
		credit := Accrue(sp.ExpectedRewards, sp.LastDistributionAt, until)
		if credit.IsPositive() {
			sp.AccruedRewards = sp.AccruedRewards.Add(credit)
			sp.LastDistributionAt = until
			total = total.Add(credit)
			events = append(events, d.newEvent(pos, credit, model.RewardStaking, now))
		}
	}

	if fp := pos.Farming; fp != nil && fp.LPTokensCommitted.IsPositive() {
		credit := Accrue(fp.ExpectedYield, fp.LastDistributionAt, now)
		if credit.IsPositive() {
			fp.AccruedYield = fp.AccruedYield.Add(credit)
			fp.LastDistributionAt = now
			total = total.Add(credit)
			events = append(events, d.newEvent(pos, credit, model.RewardFarmingYield, now))
		}
	}

	if len(events) == 0 {
		return decimal.Zero, nil
	}

	pos.UpdatedAt = now
	if err := d.store.UpsertPosition(ctx, pos); err != nil {
		return decimal.Zero, err
	}

	for _, ev := range events {
		metrics.RewardsDistributed.WithLabelValues(ev.Kind).Add(ev.Amount.InexactFloat64())
		if err := d.store.InsertRewardEvent(ctx, ev); err != nil {
			// The credit is already committed on the position; a lost
			// ledger row is logged rather than re-credited.
			slog.Error("reward event insert failed",
				"pool", ev.PoolID,
				"user", ev.UserAddress,
				"kind", ev.Kind,
				"err", err,
			)
		}
	}
	return total, nil
}

func (d *Distributor) newEvent(pos *model.Position, amount decimal.Decimal, kind string, now time.Time) *model.RewardEvent {
	return &model.RewardEvent{
		ID:          uuid.New().String(),
		UserAddress: pos.UserAddress,
		PoolID:      pos.PoolID,
		Amount:      amount,
		Kind:        kind,
		Timestamp:   now,
	}
}
