// Package governance implements the proposal lifecycle and weighted
// voting over a pool's participants.
//
// Proposals move active → {passed, rejected, expired} → executed.
// Voting windows expire by wall-clock comparison, not timer callbacks:
// resolution is computed lazily on the next read, vote, or execute that
// touches the proposal. Vote weight is frozen at cast time.
package governance

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/assetpool/pool-engine/internal/metrics"
	"github.com/assetpool/pool-engine/internal/model"
	"github.com/assetpool/pool-engine/internal/pool"
	"github.com/assetpool/pool-engine/internal/store"
)

var (
	// ErrInsufficientPower is returned when the proposer's voting power is
	// below the pool's minimum proposal threshold, or a voter holds no
	// power at all.
	ErrInsufficientPower = errors.New("governance: insufficient voting power")

	// ErrAlreadyVoted is returned when an address votes twice on the same
	// proposal.
	ErrAlreadyVoted = errors.New("governance: address has already voted")

	// ErrProposalClosed is returned when voting on or executing a proposal
	// that is no longer active/passed.
	ErrProposalClosed = errors.New("governance: proposal is not open")

	// ErrInvalidProposal is returned for unknown proposal types or vote
	// choices.
	ErrInvalidProposal = errors.New("governance: invalid proposal")
)

// lpVoteWeight discounts liquidity provision relative to staked
// principal. Farming positions add no independent power: the LP tokens
// backing them are already counted once.
var lpVoteWeight = decimal.NewFromFloat(0.5)

// PoolLocker serializes governance mutations against user-initiated
// operations on the same pool. Implemented by pool.Service.
type PoolLocker interface {
	LockPool(poolID string) func()
}

// Engine runs governance for all pools.
type Engine struct {
	store store.Store
	locks PoolLocker
	hub   *pool.Hub // optional

	now func() time.Time
}

// NewEngine creates a governance engine. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewEngine(st store.Store, locks PoolLocker, hub *pool.Hub) *Engine {
	return &Engine{
		store: st,
		locks: locks,
		hub:   hub,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the engine clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// VotingPower computes an address's weighted influence in one pool:
// staked principal counts fully, held LP tokens at half weight.
func (e *Engine) VotingPower(ctx context.Context, poolID, address string) (decimal.Decimal, error) {
	pos, err := e.store.GetPosition(ctx, address, poolID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return positionPower(pos), nil
}

// TotalVotingPower sums voting power across every participant in a pool.
func (e *Engine) TotalVotingPower(ctx context.Context, poolID string) (decimal.Decimal, error) {
	positions, err := e.store.ListPositionsByPool(ctx, poolID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for i := range positions {
		total = total.Add(positionPower(&positions[i]))
	}
	return total, nil
}

func positionPower(p *model.Position) decimal.Decimal {
	power := decimal.Zero
	if sp := p.Staking; sp != nil && sp.Status != model.StakeWithdrawn {
		power = power.Add(sp.Principal)
	}
	if lp := p.Liquidity; lp != nil {
		power = power.Add(lp.LPTokens.Mul(lpVoteWeight))
	}
	return power
}

// CreateProposalInput carries the caller-supplied proposal fields.
type CreateProposalInput struct {
	Type          string            `json:"type"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	ExecutionData map[string]string `json:"execution_data,omitempty"`
}

var validProposalTypes = map[string]bool{
	model.ProposalParameterChange:    true,
	model.ProposalRewardDistribution: true,
	model.ProposalPoolUpgrade:        true,
	model.ProposalEmergencyAction:    true,
}

// CreateProposal opens a proposal on an active pool. The proposer's
// voting power must meet the pool's quorum fraction read as an absolute
// minimum-power threshold for proposal creation.
func (e *Engine) CreateProposal(ctx context.Context, poolID, proposer string, input CreateProposalInput) (*model.Proposal, error) {
	if !validProposalTypes[input.Type] {
		return nil, ErrInvalidProposal
	}

	unlock := e.locks.LockPool(poolID)
	defer unlock()

	p, err := e.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.PoolActive {
		return nil, pool.ErrPoolClosed
	}

	power, err := e.VotingPower(ctx, poolID, proposer)
	if err != nil {
		return nil, err
	}
	if power.LessThan(p.QuorumFraction) {
		return nil, ErrInsufficientPower
	}

	now := e.now()
	proposal := &model.Proposal{
		ID:            uuid.New().String(),
		PoolID:        poolID,
		Proposer:      proposer,
		Type:          input.Type,
		Title:         input.Title,
		Description:   input.Description,
		VotesFor:      decimal.Zero,
		VotesAgainst:  decimal.Zero,
		VotesAbstain:  decimal.Zero,
		ExecutionData: input.ExecutionData,
		CreatedAt:     now,
		VotingEndsAt:  now.Add(time.Duration(p.VotingPeriodSeconds) * time.Second),
		Status:        model.ProposalActive,
	}

	if err := e.store.CreateProposal(ctx, proposal); err != nil {
		return nil, err
	}
	metrics.ProposalsCreated.WithLabelValues(input.Type).Inc()

	slog.Info("proposal created",
		"pool", poolID,
		"proposal", proposal.ID,
		"type", input.Type,
		"proposer", proposer,
	)

	if e.hub != nil {
		e.hub.Broadcast(pool.Event{
			Type:       "proposal_created",
			PoolID:     poolID,
			ProposalID: proposal.ID,
			Detail:     input.Type,
		})
	}

	return proposal, nil
}

// Vote records a voter's choice with their current voting power. The
// weight is frozen at cast time: later position changes never retally.
// Reaching quorum resolves the proposal immediately.
func (e *Engine) Vote(ctx context.Context, poolID, proposalID, voter, choice string) (*model.Proposal, error) {
	if choice != model.VoteFor && choice != model.VoteAgainst && choice != model.VoteAbstain {
		return nil, ErrInvalidProposal
	}

	unlock := e.locks.LockPool(poolID)
	defer unlock()

	p, err := e.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}

	proposal, err := e.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.PoolID != poolID {
		return nil, store.ErrNotFound
	}

	now := e.now()
	if proposal.Status == model.ProposalActive && !now.Before(proposal.VotingEndsAt) {
		if err := e.resolveAndPersist(ctx, p, proposal); err != nil {
			return nil, err
		}
		return nil, ErrProposalClosed
	}
	if proposal.Status != model.ProposalActive {
		return nil, ErrProposalClosed
	}

	// Membership index over the ordered voter sequence.
	voted := make(map[string]bool, len(proposal.Voters))
	for _, v := range proposal.Voters {
		voted[v] = true
	}
	if voted[voter] {
		return nil, ErrAlreadyVoted
	}

	power, err := e.VotingPower(ctx, poolID, voter)
	if err != nil {
		return nil, err
	}
	if !power.IsPositive() {
		return nil, ErrInsufficientPower
	}

	switch choice {
	case model.VoteFor:
		proposal.VotesFor = proposal.VotesFor.Add(power)
	case model.VoteAgainst:
		proposal.VotesAgainst = proposal.VotesAgainst.Add(power)
	case model.VoteAbstain:
		proposal.VotesAbstain = proposal.VotesAbstain.Add(power)
	}
	proposal.Voters = append(proposal.Voters, voter)

	// Quorum reached before the window closes resolves immediately.
	totalPower, err := e.TotalVotingPower(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if totalPower.IsPositive() {
		turnout := proposal.TotalVotes().Div(totalPower)
		if turnout.GreaterThanOrEqual(p.QuorumFraction) {
			resolve(proposal, totalPower, p.QuorumFraction)
		}
	}

	if err := e.store.UpdateProposal(ctx, proposal); err != nil {
		return nil, err
	}
	metrics.VotesCast.WithLabelValues(choice).Inc()

	slog.Info("vote cast",
		"pool", poolID,
		"proposal", proposalID,
		"voter", voter,
		"choice", choice,
		"weight", power.String(),
		"status", proposal.Status,
	)

	if e.hub != nil {
		e.hub.Broadcast(pool.Event{
			Type:        "vote_cast",
			PoolID:      poolID,
			UserAddress: voter,
			ProposalID:  proposalID,
			Detail:      choice,
		})
	}

	return proposal, nil
}

// resolve settles an active proposal: below-quorum turnout expires it,
// otherwise a strict for-majority passes it.
func resolve(proposal *model.Proposal, totalPower, quorumFraction decimal.Decimal) {
	if !totalPower.IsPositive() {
		proposal.Status = model.ProposalExpired
		return
	}
	turnout := proposal.TotalVotes().Div(totalPower)
	if turnout.LessThan(quorumFraction) {
		proposal.Status = model.ProposalExpired
		return
	}
	if proposal.VotesFor.GreaterThan(proposal.VotesAgainst) {
		proposal.Status = model.ProposalPassed
	} else {
		proposal.Status = model.ProposalRejected
	}
}

// resolveAndPersist resolves a proposal whose window has closed and
// stores the outcome.
func (e *Engine) resolveAndPersist(ctx context.Context, p *model.Pool, proposal *model.Proposal) error {
	totalPower, err := e.TotalVotingPower(ctx, p.ID)
	if err != nil {
		return err
	}
	resolve(proposal, totalPower, p.QuorumFraction)
	if err := e.store.UpdateProposal(ctx, proposal); err != nil {
		return err
	}
	slog.Info("proposal resolved",
		"pool", p.ID,
		"proposal", proposal.ID,
		"status", proposal.Status,
	)
	return nil
}

// GetProposal loads a proposal, lazily resolving it if the voting window
// has closed.
func (e *Engine) GetProposal(ctx context.Context, poolID, proposalID string) (*model.Proposal, error) {
	unlock := e.locks.LockPool(poolID)
	defer unlock()

	proposal, err := e.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.PoolID != poolID {
		return nil, store.ErrNotFound
	}

	if proposal.Status == model.ProposalActive && !e.now().Before(proposal.VotingEndsAt) {
		p, err := e.store.GetPool(ctx, poolID)
		if err != nil {
			return nil, err
		}
		if err := e.resolveAndPersist(ctx, p, proposal); err != nil {
			return nil, err
		}
	}
	return proposal, nil
}

// ListProposals returns all proposals for a pool, lazily resolving any
// whose windows have closed.
func (e *Engine) ListProposals(ctx context.Context, poolID string) ([]model.Proposal, error) {
	unlock := e.locks.LockPool(poolID)
	defer unlock()

	proposals, err := e.store.ListProposalsByPool(ctx, poolID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	var p *model.Pool
	for i := range proposals {
		if proposals[i].Status != model.ProposalActive || now.Before(proposals[i].VotingEndsAt) {
			continue
		}
		if p == nil {
			if p, err = e.store.GetPool(ctx, poolID); err != nil {
				return nil, err
			}
		}
		if err := e.resolveAndPersist(ctx, p, &proposals[i]); err != nil {
			return nil, err
		}
	}
	return proposals, nil
}

// Execute applies a passed proposal's execution data to the pool and
// marks it executed. Executing an already-executed proposal is a no-op.
func (e *Engine) Execute(ctx context.Context, poolID, proposalID string) (*model.Proposal, error) {
	unlock := e.locks.LockPool(poolID)
	defer unlock()

	p, err := e.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}

	proposal, err := e.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.PoolID != poolID {
		return nil, store.ErrNotFound
	}

	if proposal.Status == model.ProposalExecuted {
		return proposal, nil
	}

	if proposal.Status == model.ProposalActive && !e.now().Before(proposal.VotingEndsAt) {
		if err := e.resolveAndPersist(ctx, p, proposal); err != nil {
			return nil, err
		}
	}
	if proposal.Status != model.ProposalPassed {
		return nil, ErrProposalClosed
	}

	if err := applyExecutionData(p, proposal.ExecutionData); err != nil {
		return nil, err
	}
	if err := e.store.UpdatePool(ctx, p); err != nil {
		return nil, err
	}

	proposal.Status = model.ProposalExecuted
	if err := e.store.UpdateProposal(ctx, proposal); err != nil {
		return nil, err
	}

	slog.Info("proposal executed",
		"pool", poolID,
		"proposal", proposalID,
		"type", proposal.Type,
	)

	if e.hub != nil {
		e.hub.Broadcast(pool.Event{
			Type:       "proposal_executed",
			PoolID:     poolID,
			ProposalID: proposalID,
		})
	}

	return proposal, nil
}

// applyExecutionData mutates pool parameters named in the proposal's
// execution data. Unknown keys are rejected so a typo cannot silently
// drop a governance decision.
func applyExecutionData(p *model.Pool, data map[string]string) error {
	for key, raw := range data {
		switch key {
		case "fee", "reward_rate", "minimum_stake", "yield_multiplier",
			"early_withdrawal_penalty", "quorum_fraction", "token_price":
			val, err := decimal.NewFromString(raw)
			if err != nil {
				return ErrInvalidProposal
			}
			switch key {
			case "fee":
				p.Fee = val
			case "reward_rate":
				p.RewardRate = val
			case "minimum_stake":
				p.MinimumStake = val
			case "yield_multiplier":
				p.YieldMultiplier = val
			case "early_withdrawal_penalty":
				p.EarlyWithdrawalPenalty = val
			case "quorum_fraction":
				p.QuorumFraction = val
			case "token_price":
				p.TokenPrice = val
			}
		case "lock_period_seconds", "voting_period_seconds":
			val, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return ErrInvalidProposal
			}
			if key == "lock_period_seconds" {
				p.LockPeriodSeconds = val
			} else {
				p.VotingPeriodSeconds = val
			}
		case "yield_farming_enabled":
			val, err := strconv.ParseBool(raw)
			if err != nil {
				return ErrInvalidProposal
			}
			p.YieldFarmingEnabled = val
		case "status":
			if raw != model.PoolActive && raw != model.PoolPaused && raw != model.PoolClosed {
				return ErrInvalidProposal
			}
			p.Status = raw
		default:
			return ErrInvalidProposal
		}
	}
	return nil
}
