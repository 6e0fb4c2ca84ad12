// Package model defines the core domain types shared across the pool engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pool lifecycle statuses.
const (
	PoolActive = "active"
	PoolPaused = "paused"
	PoolClosed = "closed"
)

// Staking position statuses.
const (
	StakeActive    = "active"
	StakeUnlocked  = "unlocked"
	StakeWithdrawn = "withdrawn"
)

// Proposal statuses.
const (
	ProposalActive   = "active"
	ProposalPassed   = "passed"
	ProposalRejected = "rejected"
	ProposalExpired  = "expired"
	ProposalExecuted = "executed"
)

// Proposal types.
const (
	ProposalParameterChange    = "parameter_change"
	ProposalRewardDistribution = "reward_distribution"
	ProposalPoolUpgrade        = "pool_upgrade"
	ProposalEmergencyAction    = "emergency_action"
)

// Vote choices.
const (
	VoteFor     = "for"
	VoteAgainst = "against"
	VoteAbstain = "abstain"
)

// Reward event kinds.
const (
	RewardStaking      = "staking_reward"
	RewardFarmingYield = "farming_yield"
	RewardLiquidityFee = "liquidity_fee"
)

// Pool is the aggregate bookkeeping record for one tokenized asset's
// liquidity, staking, farming, and governance. Derived metrics (TVL, APY,
// risk score) are recomputed on read and never stored here.
type Pool struct {
	ID          string `json:"id" db:"id"`
	AssetID     string `json:"asset_id" db:"asset_id"`
	AssetName   string `json:"asset_name" db:"asset_name"`
	TokenSymbol string `json:"token_symbol" db:"token_symbol"`
	AssetType   string `json:"asset_type" db:"asset_type"`
	Creator     string `json:"creator" db:"creator"`

	// Economic parameters, fixed at creation unless changed by governance.
	TotalSupply            decimal.Decimal `json:"total_supply" db:"total_supply"`
	AvailableSupply        decimal.Decimal `json:"available_supply" db:"available_supply"`
	TokenPrice             decimal.Decimal `json:"token_price" db:"token_price"`
	MinimumStake           decimal.Decimal `json:"minimum_stake" db:"minimum_stake"`
	Fee                    decimal.Decimal `json:"fee" db:"fee"` // fraction in [0, 1)
	LockPeriodSeconds      int64           `json:"lock_period_seconds" db:"lock_period_seconds"`
	RewardRate             decimal.Decimal `json:"reward_rate" db:"reward_rate"` // annualized fraction
	YieldFarmingEnabled    bool            `json:"yield_farming_enabled" db:"yield_farming_enabled"`
	YieldMultiplier        decimal.Decimal `json:"yield_multiplier" db:"yield_multiplier"`
	EarlyWithdrawalPenalty decimal.Decimal `json:"early_withdrawal_penalty" db:"early_withdrawal_penalty"`
	QuorumFraction         decimal.Decimal `json:"quorum_fraction" db:"quorum_fraction"`
	VotingPeriodSeconds    int64           `json:"voting_period_seconds" db:"voting_period_seconds"`

	// Mutable aggregates, maintained under the pool lock.
	ReserveAsset        decimal.Decimal `json:"reserve_asset" db:"reserve_asset"`
	ReserveQuote        decimal.Decimal `json:"reserve_quote" db:"reserve_quote"`
	LPTokensOutstanding decimal.Decimal `json:"lp_tokens_outstanding" db:"lp_tokens_outstanding"`
	TotalStaked         decimal.Decimal `json:"total_staked" db:"total_staked"`
	TotalRewardsPaid    decimal.Decimal `json:"total_rewards_paid" db:"total_rewards_paid"`
	ParticipantCount    int64           `json:"participant_count" db:"participant_count"`

	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// LockPeriod returns the pool's default lock period as a duration.
func (p *Pool) LockPeriod() time.Duration {
	return time.Duration(p.LockPeriodSeconds) * time.Second
}

// LiquidityPosition tracks a user's LP share in one pool.
type LiquidityPosition struct {
	LPTokens    decimal.Decimal `json:"lp_tokens"`
	AssetAmount decimal.Decimal `json:"asset_amount"`
	QuoteAmount decimal.Decimal `json:"quote_amount"`
	OpenedAt    time.Time       `json:"opened_at"`
}

// StakingPosition tracks locked principal and its reward accrual.
// AccruedRewards only ever grows; ClaimedRewards trails it so the
// accrual history stays auditable.
type StakingPosition struct {
	Principal          decimal.Decimal `json:"principal"`
	LockPeriodSeconds  int64           `json:"lock_period_seconds"`
	StartedAt          time.Time       `json:"started_at"`
	ExpectedRewards    decimal.Decimal `json:"expected_rewards"`
	AccruedRewards     decimal.Decimal `json:"accrued_rewards"`
	ClaimedRewards     decimal.Decimal `json:"claimed_rewards"`
	LastDistributionAt time.Time       `json:"last_distribution_at"`
	Status             string          `json:"status"`
}

// UnlocksAt returns the instant the lock period ends.
func (sp *StakingPosition) UnlocksAt() time.Time {
	return sp.StartedAt.Add(time.Duration(sp.LockPeriodSeconds) * time.Second)
}

// FarmingPosition tracks LP tokens committed to yield farming. The
// multiplier is snapshotted at entry so a later governance change does
// not retroactively reprice an open position.
type FarmingPosition struct {
	LPTokensCommitted  decimal.Decimal `json:"lp_tokens_committed"`
	Multiplier         decimal.Decimal `json:"multiplier"`
	EnteredAt          time.Time       `json:"entered_at"`
	ExpectedYield      decimal.Decimal `json:"expected_yield"`
	AccruedYield       decimal.Decimal `json:"accrued_yield"`
	ClaimedYield       decimal.Decimal `json:"claimed_yield"`
	LastDistributionAt time.Time       `json:"last_distribution_at"`
}

// Position is the composite per-(user, pool) record. Sub-records are
// optional and independent; a user may hold any combination.
type Position struct {
	UserAddress string             `json:"user_address"`
	PoolID      string             `json:"pool_id"`
	Liquidity   *LiquidityPosition `json:"liquidity,omitempty"`
	Staking     *StakingPosition   `json:"staking,omitempty"`
	Farming     *FarmingPosition   `json:"farming,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// IsEmpty reports whether the position holds nothing in any sub-record.
func (p *Position) IsEmpty() bool {
	return p.Liquidity == nil && p.Staking == nil && p.Farming == nil
}

// Proposal is a governance proposal scoped to one pool. Vote tallies are
// vote-weight sums frozen at cast time. Voters is a deduplicated ordered
// sequence; callers needing fast membership checks build an index on load
// rather than scan.
type Proposal struct {
	ID            string            `json:"id" db:"id"`
	PoolID        string            `json:"pool_id" db:"pool_id"`
	Proposer      string            `json:"proposer" db:"proposer"`
	Type          string            `json:"type" db:"type"`
	Title         string            `json:"title" db:"title"`
	Description   string            `json:"description" db:"description"`
	VotesFor      decimal.Decimal   `json:"votes_for" db:"votes_for"`
	VotesAgainst  decimal.Decimal   `json:"votes_against" db:"votes_against"`
	VotesAbstain  decimal.Decimal   `json:"votes_abstain" db:"votes_abstain"`
	Voters        []string          `json:"voters" db:"voters"`
	ExecutionData map[string]string `json:"execution_data,omitempty" db:"execution_data"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	VotingEndsAt  time.Time         `json:"voting_ends_at" db:"voting_ends_at"`
	Status        string            `json:"status" db:"status"`
}

// TotalVotes returns the sum of all recorded vote weight.
func (p *Proposal) TotalVotes() decimal.Decimal {
	return p.VotesFor.Add(p.VotesAgainst).Add(p.VotesAbstain)
}

// RewardEvent is an immutable record of one reward credit.
// Once created, these are never modified or deleted.
type RewardEvent struct {
	ID          string          `json:"id" db:"id"`
	UserAddress string          `json:"user_address" db:"user_address"`
	PoolID      string          `json:"pool_id" db:"pool_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Kind        string          `json:"kind" db:"kind"`
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
}

// PoolMetrics is the derived, read-only view of a pool's health.
type PoolMetrics struct {
	PoolID              string          `json:"pool_id"`
	TVL                 decimal.Decimal `json:"tvl"`
	StakingAPY          decimal.Decimal `json:"staking_apy"`
	LiquidityAPY        decimal.Decimal `json:"liquidity_apy"`
	RiskScore           int             `json:"risk_score"`
	TotalStaked         decimal.Decimal `json:"total_staked"`
	LPTokensOutstanding decimal.Decimal `json:"lp_tokens_outstanding"`
	TotalRewardsPaid    decimal.Decimal `json:"total_rewards_paid"`
	ParticipantCount    int64           `json:"participant_count"`
}
