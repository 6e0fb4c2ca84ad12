package governance_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/assetpool/pool-engine/internal/governance"
	"github.com/assetpool/pool-engine/internal/model"
	"github.com/assetpool/pool-engine/internal/pool"
	"github.com/assetpool/pool-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

const yearSeconds = 365 * 24 * 3600

func newTestEnv(t *testing.T) (*store.MemoryStore, *pool.Service, *governance.Engine) {
	t.Helper()
	ms := store.NewMemoryStore()
	svc := pool.NewService(ms, nil)
	svc.SetClock(func() time.Time { return start })
	eng := governance.NewEngine(ms, svc, nil)
	eng.SetClock(func() time.Time { return start })
	return ms, svc, eng
}

// seedPool creates a pool with the given quorum fraction and a one-week
// voting window.
func seedPool(t *testing.T, svc *pool.Service, quorum float64) *model.Pool {
	t.Helper()
	p, err := svc.CreatePool(context.Background(), pool.AssetMetadata{
		ID:              "asset-1",
		AssetName:       "Dockside Warehouse 7",
		TokenSymbol:     "DWH7",
		TokenSupply:     d(10000),
		TokenPrice:      d(10),
		ExpectedReturn:  d(8.5),
		DurationSeconds: yearSeconds,
		AssetType:       "real_estate",
		Creator:         "0xcreator",
	}, pool.PoolConfig{
		MinimumStake:        d(100),
		QuorumFraction:      d(quorum),
		VotingPeriodSeconds: 7 * 24 * 3600,
	})
	if err != nil {
		t.Fatalf("failed to seed pool: %v", err)
	}
	return p
}

func stake(t *testing.T, svc *pool.Service, poolID, addr string, amount float64) {
	t.Helper()
	if _, err := svc.Stake(context.Background(), poolID, addr, d(amount), 0); err != nil {
		t.Fatalf("stake failed for %s: %v", addr, err)
	}
}

func propose(t *testing.T, eng *governance.Engine, poolID, proposer string) *model.Proposal {
	t.Helper()
	proposal, err := eng.CreateProposal(context.Background(), poolID, proposer, governance.CreateProposalInput{
		Type:        model.ProposalParameterChange,
		Title:       "Lower the fee",
		Description: "Reduce the swap fee to 0.1%",
		ExecutionData: map[string]string{
			"fee": "0.001",
		},
	})
	if err != nil {
		t.Fatalf("create proposal failed: %v", err)
	}
	return proposal
}

// --- Voting power tests ---

func TestVotingPower_StakePlusLiquidity(t *testing.T) {
	_, svc, eng := newTestEnv(t)
	p := seedPool(t, svc, 0.1)

	stake(t, svc, p.ID, "0xalice", 1000)
	if _, err := svc.AddLiquidity(context.Background(), p.ID, "0xalice", d(100), d(400)); err != nil {
		t.Fatalf("add liquidity failed: %v", err)
	}

	power, err := eng.VotingPower(context.Background(), p.ID, "0xalice")
	if err != nil {
		t.Fatalf("voting power failed: %v", err)
	}
	// 1000 staked + 200 LP at half weight.
	if !power.Equal(d(1100)) {
		t.Errorf("expected power 1100, got %s", power)
	}
}

func TestVotingPower_NoPosition(t *testing.T) {
	_, svc, eng := newTestEnv(t)
	p := seedPool(t, svc, 0.1)

	power, err := eng.VotingPower(context.Background(), p.ID, "0xnobody")
	if err != nil {
		t.Fatalf("voting power failed: %v", err)
	}
	if !power.IsZero() {
		t.Errorf("expected zero power, got %s", power)
	}
}

func TestTotalVotingPower_SumsParticipants(t *testing.T) {
	_, svc, eng := newTestEnv(t)
	p := seedPool(t, svc, 0.1)

	stake(t, svc, p.ID, "0xalice", 1000)
	stake(t, svc, p.ID, "0xbob", 500)

	total, err := eng.TotalVotingPower(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("total voting power failed: %v", err)
	}
	if !total.Equal(d(1500)) {
		t.Errorf("expected total power 1500, got %s", total)
	}
}

// --- Proposal creation tests ---

func TestCreateProposal_InsufficientPower(t *testing.T) {
	_, svc, eng := newTestEnv(t)
	p := seedPool(t, svc, 0.1)

	_, err := eng.CreateProposal(context.Background(), p.ID, "0xnobody", governance.CreateProposalInput{
		Type:  model.ProposalParameterChange,
		Title: "x",
	})
	if !errors.Is(err, governance.ErrInsufficientPower) {
		t.Errorf("expected ErrInsufficientPower, got %v", err)
	}
}

func TestCreateProposal_InvalidType(t *testing.T) {
	_, svc, eng := newTestEnv(t)
	p := seedPool(t, svc, 0.1)
	stake(t, svc, p.ID, "0xalice", 1000)

	_, err := eng.CreateProposal(context.Background(), p.ID, "0xalice", governance.CreateProposalInput{
		Type:  "coup",
		Title: "x",
	})
	if !errors.Is(err, governance.ErrInvalidProposal) {
		t.Errorf("expected ErrInvalidProposal, got %v", err)
	}
}

func TestCreateProposal_ClosedPool(t *testing.T) {
	_, svc, eng := newTestEnv(t)
	p := seedPool(t, svc, 0.1)
	stake(t, svc, p.ID, "0xalice", 1000)
	svc.SetPoolStatus(context.Background(), p.ID, model.PoolClosed)

	_, err := eng.CreateProposal(context.Background(), p.ID, "0xalice", governance.CreateProposalInput{
		Type:  model.ProposalParameterChange,
		Title: "x",
	})
	if !errors.Is(err, pool.ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}
}

func TestCreateProposal_WindowFromPoolConfig(t *testing.T) {
	_, svc, eng := newTestEnv(t)
	p := seedPool(t, svc, 0.1)
	stake(t, svc, p.ID, "0xalice", 1000)

	proposal := propose(t, eng, p.ID, "0xalice")
	wantEnd := start.Add(7 * 24 * time.Hour)
	if !proposal.VotingEndsAt.Equal(wantEnd) {
		t.Errorf("expected voting to end at %v, got %v", wantEnd, proposal.VotingEndsAt)
	}
	if proposal.Status != model.ProposalActive {
		t.Errorf("expected active proposal, got %s", proposal.Status)
	}
}

// --- Voting tests ---

func TestVote_WeightRecordedByChoice(t *testing.T) {
	// High quorum keeps the proposal open after a minority vote.
	_, svc, eng := newTestEnv(t)
	p := seedPool(t, svc, 0.9)
	stake(t, svc, p.ID, "0xalice", 100)
	stake(t, svc, p.ID, "0xbob", 1000)

	proposal := propose(t, eng, p.ID, "0xalice")

	got, err := eng.Vote(context.Background(), p.ID, proposal.ID, "0xalice", model.VoteFor)
	if err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	if !got.VotesFor.Equal(d(100)) {
		t.Errorf("expected 100 for-votes, got %s", got.VotesFor)
	}
	if got.Status != model.ProposalActive {
		t.Errorf("below quorum the proposal should stay active, got %s", got.Status)
	}
}

func TestVote_SingleVotePerAddress(t *testing.T) {
	_, svc, eng := newTestEnv(t)
	p := seedPool(t, svc, 0.9)
	stake(t, svc, p.ID, "0xalice", 100)
	stake(t, svc, p.ID, "0xbob", 1000)

	proposal := propose(t, eng, p.ID, "0xalice")

	if _, err := eng.Vote(context.Background(), p.ID, proposal.ID, "0xalice", model.VoteFor); err != nil {
		t.Fatalf("first vote failed: %v", err)
	}
	_, err := eng.Vote(context.Background(), p.ID, proposal.ID, "0xalice", model.VoteAgainst)
	if !errors.Is(err, governance.ErrAlreadyVoted) {
		t.Errorf("expected ErrAlreadyVoted, got %v", err)
	}
}

func TestVote_ZeroPowerRejected(t *testing.T) {
	_, svc, eng := newTestEnv(t)
	p := seedPool(t, svc, 0.9)
	stake(t, svc, p.ID, "0xalice", 100)
	stake(t, svc, p.ID, "0xbob", 1000)

	proposal := propose(t, eng, p.ID, "0xalice")

	_, err := eng.Vote(context.Background(), p.ID, proposal.ID, "0xnobody", model.VoteFor)
	if !errors.Is(err, governance.ErrInsufficientPower) {
		t.Errorf("expected ErrInsufficientPower, got %v", err)
	}
}

func TestVote_InvalidChoice(t *testing.T) {
	_, svc, eng := newTestEnv(t)
	p := seedPool(t, svc, 0.9)
	stake(t, svc, p.ID, "0xalice", 100)

	proposal := propose(t, eng, p.ID, "0xalice")

	_, err := eng.Vote(context.Background(), p.ID, proposal.ID, "0xalice", "maybe")
	if !errors.Is(err, governance.ErrInvalidProposal) {
		t.Errorf("expected ErrInvalidProposal, got %v", err)
	}
}

func TestVote_WeightFrozenAtCastTime(t *testing.T) {
	_, svc, eng := newTestEnv(t)
	p := seedPool(t, svc, 0.9)
	stake(t, svc, p.ID, "0xalice", 100)
	stake(t, svc, p.ID, "0xbob", 1000)

	proposal := propose(t, eng, p.ID, "0xalice")
	if _, err := eng.Vote(context.Background(), p.ID, proposal.ID, "0xalice", model.VoteFor); err != nil {
		t.Fatalf("vote failed: %v", err)
	}

	// Staking more after voting must not retally the cast vote.
	stake(t, svc, p.ID, "0xalice", 5000)

	got, err := eng.GetProposal(context.Background(), p.ID, proposal.ID)
	if err != nil {
		t.Fatalf("get proposal failed: %v", err)
	}
	if !got.VotesFor.Equal(d(100)) {
		t.Errorf("vote weight should be frozen at 100, got %s", got.VotesFor)
	}
}

func TestVote_QuorumResolvesEarly(t *testing.T) {
	// A single staker holds all power; their vote is 100% turnout.
	_, svc, eng := newTestEnv(t)
	p := seedPool(t, svc, 0.5)
	stake(t, svc, p.ID, "0xalice", 1000)

	proposal := propose(t, eng, p.ID, "0xalice")

	got, err := eng.Vote(context.Background(), p.ID, proposal.ID, "0xalice", model.VoteFor)
	if err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	if got.Status != model.ProposalPassed {
		t.Errorf("quorum reached with a for-majority should pass, got %s", got.Status)
	}
}

func TestVote_AfterWindowCloses(t *testing.T) {
	_, svc, eng := newTestEnv(t)
	p := seedPool(t, svc, 0.9)
	stake(t, svc, p.ID, "0xalice", 100)
	stake(t, svc, p.ID, "0xbob", 1000)

	proposal := propose(t, eng, p.ID, "0xalice")

	eng.SetClock(func() time.Time { return start.Add(8 * 24 * time.Hour) })

	_, err := eng.Vote(context.Background(), p.ID, proposal.ID, "0xbob", model.VoteFor)
	if !errors.Is(err, governance.ErrProposalClosed) {
		t.Errorf("expected ErrProposalClosed after the window, got %v", err)
	}
}

// --- Resolution tests ---

func TestGetProposal_LazyExpiryBelowQuorum(t *testing.T) {
	_, svc, eng := newTestEnv(t)
	p := seedPool(t, svc, 0.9)
	stake(t, svc, p.ID, "0xalice", 100)
	stake(t, svc, p.ID, "0xbob", 1000)

	proposal := propose(t, eng, p.ID, "0xalice")
	if _, err := eng.Vote(context.Background(), p.ID, proposal.ID, "0xalice", model.VoteFor); err != nil {
		t.Fatalf("vote failed: %v", err)
	}

	eng.SetClock(func() time.Time { return start.Add(8 * 24 * time.Hour) })

	got, err := eng.GetProposal(context.Background(), p.ID, proposal.ID)
	if err != nil {
		t.Fatalf("get proposal failed: %v", err)
	}
	// Turnout 100/1100 is below the 0.9 quorum.
	if got.Status != model.ProposalExpired {
		t.Errorf("expected expired below quorum, got %s", got.Status)
	}
}

func TestGetProposal_LazyRejectionOnMajorityAgainst(t *testing.T) {
	_, svc, eng := newTestEnv(t)
	p := seedPool(t, svc, 0.5)
	stake(t, svc, p.ID, "0xalice", 100)
	stake(t, svc, p.ID, "0xbob", 1000)

	proposal := propose(t, eng, p.ID, "0xalice")
	if _, err := eng.Vote(context.Background(), p.ID, proposal.ID, "0xbob", model.VoteAgainst); err != nil {
		t.Fatalf("vote failed: %v", err)
	}

	got, err := eng.GetProposal(context.Background(), p.ID, proposal.ID)
	if err != nil {
		t.Fatalf("get proposal failed: %v", err)
	}
	if got.Status != model.ProposalRejected {
		t.Errorf("against-majority at quorum should reject, got %s", got.Status)
	}
}

func TestListProposals_ResolvesClosedWindows(t *testing.T) {
	_, svc, eng := newTestEnv(t)
	p := seedPool(t, svc, 0.9)
	stake(t, svc, p.ID, "0xalice", 100)
	stake(t, svc, p.ID, "0xbob", 1000)

	propose(t, eng, p.ID, "0xalice")
	propose(t, eng, p.ID, "0xalice")

	eng.SetClock(func() time.Time { return start.Add(8 * 24 * time.Hour) })

	proposals, err := eng.ListProposals(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("list proposals failed: %v", err)
	}
	if len(proposals) != 2 {
		t.Fatalf("expected 2 proposals, got %d", len(proposals))
	}
	for _, pr := range proposals {
		if pr.Status != model.ProposalExpired {
			t.Errorf("proposal %s should be expired, got %s", pr.ID, pr.Status)
		}
	}
}

// --- Execution tests ---

func TestExecute_AppliesParameterChange(t *testing.T) {
	ms, svc, eng := newTestEnv(t)
	p := seedPool(t, svc, 0.5)
	stake(t, svc, p.ID, "0xalice", 1000)

	proposal := propose(t, eng, p.ID, "0xalice")
	if _, err := eng.Vote(context.Background(), p.ID, proposal.ID, "0xalice", model.VoteFor); err != nil {
		t.Fatalf("vote failed: %v", err)
	}

	executed, err := eng.Execute(context.Background(), p.ID, proposal.ID)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if executed.Status != model.ProposalExecuted {
		t.Errorf("expected executed status, got %s", executed.Status)
	}

	got, _ := ms.GetPool(context.Background(), p.ID)
	if !got.Fee.Equal(d(0.001)) {
		t.Errorf("expected fee updated to 0.001, got %s", got.Fee)
	}
}

func TestExecute_Idempotent(t *testing.T) {
	ms, svc, eng := newTestEnv(t)
	p := seedPool(t, svc, 0.5)
	stake(t, svc, p.ID, "0xalice", 1000)

	proposal := propose(t, eng, p.ID, "0xalice")
	eng.Vote(context.Background(), p.ID, proposal.ID, "0xalice", model.VoteFor)

	if _, err := eng.Execute(context.Background(), p.ID, proposal.ID); err != nil {
		t.Fatalf("first execute failed: %v", err)
	}
	again, err := eng.Execute(context.Background(), p.ID, proposal.ID)
	if err != nil {
		t.Fatalf("second execute should be a no-op, got %v", err)
	}
	if again.Status != model.ProposalExecuted {
		t.Errorf("expected executed status, got %s", again.Status)
	}

	got, _ := ms.GetPool(context.Background(), p.ID)
	if !got.Fee.Equal(d(0.001)) {
		t.Errorf("re-execution must not re-apply changes, fee=%s", got.Fee)
	}
}

func TestExecute_RejectedProposal(t *testing.T) {
	_, svc, eng := newTestEnv(t)
	p := seedPool(t, svc, 0.5)
	stake(t, svc, p.ID, "0xalice", 1000)

	proposal := propose(t, eng, p.ID, "0xalice")
	if _, err := eng.Vote(context.Background(), p.ID, proposal.ID, "0xalice", model.VoteAgainst); err != nil {
		t.Fatalf("vote failed: %v", err)
	}

	_, err := eng.Execute(context.Background(), p.ID, proposal.ID)
	if !errors.Is(err, governance.ErrProposalClosed) {
		t.Errorf("expected ErrProposalClosed for rejected proposal, got %v", err)
	}
}

func TestExecute_UnknownParameterKey(t *testing.T) {
	_, svc, eng := newTestEnv(t)
	p := seedPool(t, svc, 0.5)
	stake(t, svc, p.ID, "0xalice", 1000)

	proposal, err := eng.CreateProposal(context.Background(), p.ID, "0xalice", governance.CreateProposalInput{
		Type:  model.ProposalParameterChange,
		Title: "typo",
		ExecutionData: map[string]string{
			"fee_fraction": "0.001",
		},
	})
	if err != nil {
		t.Fatalf("create proposal failed: %v", err)
	}
	eng.Vote(context.Background(), p.ID, proposal.ID, "0xalice", model.VoteFor)

	if _, err := eng.Execute(context.Background(), p.ID, proposal.ID); !errors.Is(err, governance.ErrInvalidProposal) {
		t.Errorf("expected ErrInvalidProposal for unknown key, got %v", err)
	}
}

func TestExecute_StatusChangeProposal(t *testing.T) {
	ms, svc, eng := newTestEnv(t)
	p := seedPool(t, svc, 0.5)
	stake(t, svc, p.ID, "0xalice", 1000)

	proposal, err := eng.CreateProposal(context.Background(), p.ID, "0xalice", governance.CreateProposalInput{
		Type:  model.ProposalEmergencyAction,
		Title: "Pause the pool",
		ExecutionData: map[string]string{
			"status": model.PoolPaused,
		},
	})
	if err != nil {
		t.Fatalf("create proposal failed: %v", err)
	}
	eng.Vote(context.Background(), p.ID, proposal.ID, "0xalice", model.VoteFor)

	if _, err := eng.Execute(context.Background(), p.ID, proposal.ID); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	got, _ := ms.GetPool(context.Background(), p.ID)
	if got.Status != model.PoolPaused {
		t.Errorf("expected paused pool, got %s", got.Status)
	}
}
