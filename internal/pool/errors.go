package pool

import "errors"

// Validation and state errors returned to callers as typed results.
// Handlers map these to HTTP statuses at the boundary; nothing here is
// ever thrown across it.
var (
	// ErrInvalidConfig is returned when pool creation parameters are out
	// of range (non-positive supply or price, fee outside [0, 1)).
	ErrInvalidConfig = errors.New("pool: invalid pool configuration")

	// ErrPoolClosed is returned when a mutating call targets a pool that
	// is not active. Closed pools still allow withdrawal and claim.
	ErrPoolClosed = errors.New("pool: pool is not open for new positions")

	// ErrBelowMinimum is returned when a stake is below the pool minimum.
	ErrBelowMinimum = errors.New("pool: amount below minimum stake")

	// ErrInsufficientBalance is returned when a withdrawal exceeds the
	// caller's held LP tokens.
	ErrInsufficientBalance = errors.New("pool: insufficient LP token balance")

	// ErrInsufficientPrincipal is returned when an unstake exceeds the
	// position's remaining principal.
	ErrInsufficientPrincipal = errors.New("pool: insufficient staked principal")

	// ErrFarmingDisabled is returned when entering a farm on a pool with
	// yield farming turned off.
	ErrFarmingDisabled = errors.New("pool: yield farming disabled for this pool")

	// ErrNothingToClaim is returned when no unclaimed rewards exist.
	ErrNothingToClaim = errors.New("pool: nothing to claim")

	// ErrNoPosition is returned when an operation requires an existing
	// position the caller does not hold.
	ErrNoPosition = errors.New("pool: no position for user in this pool")
)
