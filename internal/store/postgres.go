package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/assetpool/pool-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// Position sub-records and proposal voter sequences are stored as JSONB;
// the ordered voter array round-trips losslessly and the governance layer
// rebuilds its membership index on load.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const poolColumns = `id, asset_id, asset_name, token_symbol, asset_type, creator,
	total_supply::TEXT, available_supply::TEXT, token_price::TEXT, minimum_stake::TEXT,
	fee::TEXT, lock_period_seconds, reward_rate::TEXT,
	yield_farming_enabled, yield_multiplier::TEXT, early_withdrawal_penalty::TEXT,
	quorum_fraction::TEXT, voting_period_seconds,
	reserve_asset::TEXT, reserve_quote::TEXT, lp_tokens_outstanding::TEXT,
	total_staked::TEXT, total_rewards_paid::TEXT, participant_count,
	status, created_at`

func (s *PostgresStore) CreatePool(ctx context.Context, p *model.Pool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pools (id, asset_id, asset_name, token_symbol, asset_type, creator,
			total_supply, available_supply, token_price, minimum_stake,
			fee, lock_period_seconds, reward_rate,
			yield_farming_enabled, yield_multiplier, early_withdrawal_penalty,
			quorum_fraction, voting_period_seconds,
			reserve_asset, reserve_quote, lp_tokens_outstanding,
			total_staked, total_rewards_paid, participant_count,
			status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6,
			$7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC,
			$11::NUMERIC, $12, $13::NUMERIC,
			$14, $15::NUMERIC, $16::NUMERIC,
			$17::NUMERIC, $18,
			$19::NUMERIC, $20::NUMERIC, $21::NUMERIC,
			$22::NUMERIC, $23::NUMERIC, $24,
			$25, $26)`,
		p.ID, p.AssetID, p.AssetName, p.TokenSymbol, p.AssetType, p.Creator,
		p.TotalSupply.String(), p.AvailableSupply.String(), p.TokenPrice.String(), p.MinimumStake.String(),
		p.Fee.String(), p.LockPeriodSeconds, p.RewardRate.String(),
		p.YieldFarmingEnabled, p.YieldMultiplier.String(), p.EarlyWithdrawalPenalty.String(),
		p.QuorumFraction.String(), p.VotingPeriodSeconds,
		p.ReserveAsset.String(), p.ReserveQuote.String(), p.LPTokensOutstanding.String(),
		p.TotalStaked.String(), p.TotalRewardsPaid.String(), p.ParticipantCount,
		p.Status, p.CreatedAt,
	)
	return err
}

type poolRow interface {
	Scan(dest ...any) error
}

func scanPool(row poolRow) (*model.Pool, error) {
	var p model.Pool
	var totalSupply, availableSupply, tokenPrice, minimumStake string
	var fee, rewardRate, yieldMultiplier, penalty, quorum string
	var reserveAsset, reserveQuote, lpOutstanding, totalStaked, rewardsPaid string

	err := row.Scan(&p.ID, &p.AssetID, &p.AssetName, &p.TokenSymbol, &p.AssetType, &p.Creator,
		&totalSupply, &availableSupply, &tokenPrice, &minimumStake,
		&fee, &p.LockPeriodSeconds, &rewardRate,
		&p.YieldFarmingEnabled, &yieldMultiplier, &penalty,
		&quorum, &p.VotingPeriodSeconds,
		&reserveAsset, &reserveQuote, &lpOutstanding,
		&totalStaked, &rewardsPaid, &p.ParticipantCount,
		&p.Status, &p.CreatedAt)
	if err != nil {
		return nil, err
	}

	p.TotalSupply, _ = decimal.NewFromString(totalSupply)
	p.AvailableSupply, _ = decimal.NewFromString(availableSupply)
	p.TokenPrice, _ = decimal.NewFromString(tokenPrice)
	p.MinimumStake, _ = decimal.NewFromString(minimumStake)
	p.Fee, _ = decimal.NewFromString(fee)
	p.RewardRate, _ = decimal.NewFromString(rewardRate)
	p.YieldMultiplier, _ = decimal.NewFromString(yieldMultiplier)
	p.EarlyWithdrawalPenalty, _ = decimal.NewFromString(penalty)
	p.QuorumFraction, _ = decimal.NewFromString(quorum)
	p.ReserveAsset, _ = decimal.NewFromString(reserveAsset)
	p.ReserveQuote, _ = decimal.NewFromString(reserveQuote)
	p.LPTokensOutstanding, _ = decimal.NewFromString(lpOutstanding)
	p.TotalStaked, _ = decimal.NewFromString(totalStaked)
	p.TotalRewardsPaid, _ = decimal.NewFromString(rewardsPaid)

	return &p, nil
}

func (s *PostgresStore) GetPool(ctx context.Context, id string) (*model.Pool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+poolColumns+` FROM pools WHERE id = $1`, id)
	p, err := scanPool(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pool %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get pool %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) ListPools(ctx context.Context, filter PoolFilter) ([]model.Pool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+poolColumns+` FROM pools
		 WHERE ($1 = '' OR status = $1)
		   AND ($2 = '' OR asset_type = $2)
		 ORDER BY created_at DESC`,
		filter.Status, filter.AssetType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []model.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, *p)
	}
	return pools, rows.Err()
}

func (s *PostgresStore) UpdatePool(ctx context.Context, p *model.Pool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pools
		 SET available_supply = $2::NUMERIC, token_price = $3::NUMERIC,
		     minimum_stake = $4::NUMERIC, fee = $5::NUMERIC,
		     lock_period_seconds = $6, reward_rate = $7::NUMERIC,
		     yield_farming_enabled = $8, yield_multiplier = $9::NUMERIC,
		     early_withdrawal_penalty = $10::NUMERIC,
		     quorum_fraction = $11::NUMERIC, voting_period_seconds = $12,
		     reserve_asset = $13::NUMERIC, reserve_quote = $14::NUMERIC,
		     lp_tokens_outstanding = $15::NUMERIC,
		     total_staked = $16::NUMERIC, total_rewards_paid = $17::NUMERIC,
		     participant_count = $18, status = $19
		 WHERE id = $1`,
		p.ID,
		p.AvailableSupply.String(), p.TokenPrice.String(),
		p.MinimumStake.String(), p.Fee.String(),
		p.LockPeriodSeconds, p.RewardRate.String(),
		p.YieldFarmingEnabled, p.YieldMultiplier.String(),
		p.EarlyWithdrawalPenalty.String(),
		p.QuorumFraction.String(), p.VotingPeriodSeconds,
		p.ReserveAsset.String(), p.ReserveQuote.String(),
		p.LPTokensOutstanding.String(),
		p.TotalStaked.String(), p.TotalRewardsPaid.String(),
		p.ParticipantCount, p.Status,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pool %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) GetPosition(ctx context.Context, userAddress, poolID string) (*model.Position, error) {
	var pos model.Position
	var liquidity, staking, farming []byte

	err := s.pool.QueryRow(ctx,
		`SELECT user_address, pool_id, liquidity, staking, farming, updated_at
		 FROM positions WHERE user_address = $1 AND pool_id = $2`,
		userAddress, poolID).
		Scan(&pos.UserAddress, &pos.PoolID, &liquidity, &staking, &farming, &pos.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("position (%s, %s): %w", userAddress, poolID, ErrNotFound)
		}
		return nil, fmt.Errorf("get position (%s, %s): %w", userAddress, poolID, err)
	}

	if err := unmarshalSubRecords(&pos, liquidity, staking, farming); err != nil {
		return nil, err
	}
	return &pos, nil
}

func (s *PostgresStore) UpsertPosition(ctx context.Context, pos *model.Position) error {
	liquidity, staking, farming, err := marshalSubRecords(pos)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO positions (user_address, pool_id, liquidity, staking, farming, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_address, pool_id)
		 DO UPDATE SET liquidity = $3, staking = $4, farming = $5, updated_at = $6`,
		pos.UserAddress, pos.PoolID, liquidity, staking, farming, pos.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) ListPositionsByPool(ctx context.Context, poolID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_address, pool_id, liquidity, staking, farming, updated_at
		 FROM positions WHERE pool_id = $1`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPositions(rows)
}

func (s *PostgresStore) ListPositionsByUser(ctx context.Context, userAddress string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_address, pool_id, liquidity, staking, farming, updated_at
		 FROM positions WHERE user_address = $1`, userAddress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPositions(rows)
}

func (s *PostgresStore) CreateProposal(ctx context.Context, p *model.Proposal) error {
	voters, execData, err := marshalProposalFields(p)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO proposals (id, pool_id, proposer, type, title, description,
			votes_for, votes_against, votes_abstain, voters, execution_data,
			created_at, voting_ends_at, status)
		 VALUES ($1, $2, $3, $4, $5, $6,
			$7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10, $11,
			$12, $13, $14)`,
		p.ID, p.PoolID, p.Proposer, p.Type, p.Title, p.Description,
		p.VotesFor.String(), p.VotesAgainst.String(), p.VotesAbstain.String(),
		voters, execData,
		p.CreatedAt, p.VotingEndsAt, p.Status,
	)
	return err
}

func (s *PostgresStore) GetProposal(ctx context.Context, id string) (*model.Proposal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, pool_id, proposer, type, title, description,
			votes_for::TEXT, votes_against::TEXT, votes_abstain::TEXT,
			voters, execution_data, created_at, voting_ends_at, status
		 FROM proposals WHERE id = $1`, id)

	p, err := scanProposal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("proposal %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get proposal %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) UpdateProposal(ctx context.Context, p *model.Proposal) error {
	voters, execData, err := marshalProposalFields(p)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE proposals
		 SET votes_for = $2::NUMERIC, votes_against = $3::NUMERIC,
		     votes_abstain = $4::NUMERIC, voters = $5, execution_data = $6,
		     status = $7
		 WHERE id = $1`,
		p.ID, p.VotesFor.String(), p.VotesAgainst.String(), p.VotesAbstain.String(),
		voters, execData, p.Status,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("proposal %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListProposalsByPool(ctx context.Context, poolID string) ([]model.Proposal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, pool_id, proposer, type, title, description,
			votes_for::TEXT, votes_against::TEXT, votes_abstain::TEXT,
			voters, execution_data, created_at, voting_ends_at, status
		 FROM proposals WHERE pool_id = $1 ORDER BY created_at DESC`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proposals []model.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, *p)
	}
	return proposals, rows.Err()
}

func (s *PostgresStore) InsertRewardEvent(ctx context.Context, ev *model.RewardEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reward_events (id, user_address, pool_id, amount, kind, timestamp)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6)`,
		ev.ID, ev.UserAddress, ev.PoolID, ev.Amount.String(), ev.Kind, ev.Timestamp,
	)
	return err
}

func (s *PostgresStore) ListRewardEventsByPool(ctx context.Context, poolID string) ([]model.RewardEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_address, pool_id, amount::TEXT, kind, timestamp
		 FROM reward_events WHERE pool_id = $1 ORDER BY timestamp`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRewardEvents(rows)
}

func (s *PostgresStore) ListRewardEventsByUser(ctx context.Context, userAddress string) ([]model.RewardEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_address, pool_id, amount::TEXT, kind, timestamp
		 FROM reward_events WHERE user_address = $1 ORDER BY timestamp`, userAddress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRewardEvents(rows)
}

// --- scan/marshal helpers ---

func marshalSubRecords(pos *model.Position) (liquidity, staking, farming []byte, err error) {
	if pos.Liquidity != nil {
		if liquidity, err = json.Marshal(pos.Liquidity); err != nil {
			return nil, nil, nil, err
		}
	}
	if pos.Staking != nil {
		if staking, err = json.Marshal(pos.Staking); err != nil {
			return nil, nil, nil, err
		}
	}
	if pos.Farming != nil {
		if farming, err = json.Marshal(pos.Farming); err != nil {
			return nil, nil, nil, err
		}
	}
	return liquidity, staking, farming, nil
}

func unmarshalSubRecords(pos *model.Position, liquidity, staking, farming []byte) error {
	if len(liquidity) > 0 {
		pos.Liquidity = &model.LiquidityPosition{}
		if err := json.Unmarshal(liquidity, pos.Liquidity); err != nil {
			return err
		}
	}
	if len(staking) > 0 {
		pos.Staking = &model.StakingPosition{}
		if err := json.Unmarshal(staking, pos.Staking); err != nil {
			return err
		}
	}
	if len(farming) > 0 {
		pos.Farming = &model.FarmingPosition{}
		if err := json.Unmarshal(farming, pos.Farming); err != nil {
			return err
		}
	}
	return nil
}

func scanPositions(rows pgx.Rows) ([]model.Position, error) {
	var positions []model.Position
	for rows.Next() {
		var pos model.Position
		var liquidity, staking, farming []byte
		if err := rows.Scan(&pos.UserAddress, &pos.PoolID, &liquidity, &staking, &farming, &pos.UpdatedAt); err != nil {
			return nil, err
		}
		if err := unmarshalSubRecords(&pos, liquidity, staking, farming); err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

func marshalProposalFields(p *model.Proposal) (voters, execData []byte, err error) {
	if voters, err = json.Marshal(p.Voters); err != nil {
		return nil, nil, err
	}
	if p.ExecutionData != nil {
		if execData, err = json.Marshal(p.ExecutionData); err != nil {
			return nil, nil, err
		}
	}
	return voters, execData, nil
}

func scanProposal(row poolRow) (*model.Proposal, error) {
	var p model.Proposal
	var votesFor, votesAgainst, votesAbstain string
	var voters, execData []byte

	err := row.Scan(&p.ID, &p.PoolID, &p.Proposer, &p.Type, &p.Title, &p.Description,
		&votesFor, &votesAgainst, &votesAbstain,
		&voters, &execData, &p.CreatedAt, &p.VotingEndsAt, &p.Status)
	if err != nil {
		return nil, err
	}

	p.VotesFor, _ = decimal.NewFromString(votesFor)
	p.VotesAgainst, _ = decimal.NewFromString(votesAgainst)
	p.VotesAbstain, _ = decimal.NewFromString(votesAbstain)

	if len(voters) > 0 {
		if err := json.Unmarshal(voters, &p.Voters); err != nil {
			return nil, err
		}
	}
	if len(execData) > 0 {
		if err := json.Unmarshal(execData, &p.ExecutionData); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func scanRewardEvents(rows pgx.Rows) ([]model.RewardEvent, error) {
	var events []model.RewardEvent
	for rows.Next() {
		var ev model.RewardEvent
		var amount string
		if err := rows.Scan(&ev.ID, &ev.UserAddress, &ev.PoolID, &amount, &ev.Kind, &ev.Timestamp); err != nil {
			return nil, err
		}
		ev.Amount, _ = decimal.NewFromString(amount)
		events = append(events, ev)
	}
	return events, rows.Err()
}
