package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/assetpool/pool-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary. Proposals and reward
// events are never cached: proposals resolve lazily on read and the
// reward ledger is append-only audit data.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreatePool(ctx context.Context, p *model.Pool) error {
	if err := s.primary.CreatePool(ctx, p); err != nil {
		return err
	}
	s.cachePool(ctx, p)
	return nil
}

func (s *CachedStore) UpdatePool(ctx context.Context, p *model.Pool) error {
	if err := s.primary.UpdatePool(ctx, p); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, poolKey(p.ID))
	return nil
}

func (s *CachedStore) UpsertPosition(ctx context.Context, pos *model.Position) error {
	if err := s.primary.UpsertPosition(ctx, pos); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionKey(pos.UserAddress, pos.PoolID))
	return nil
}

func (s *CachedStore) InsertRewardEvent(ctx context.Context, ev *model.RewardEvent) error {
	return s.primary.InsertRewardEvent(ctx, ev)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetPool(ctx context.Context, id string) (*model.Pool, error) {
	data, err := s.rdb.Get(ctx, poolKey(id)).Bytes()
	if err == nil {
		var p model.Pool
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	p, err := s.primary.GetPool(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cachePool(ctx, p)
	return p, nil
}

func (s *CachedStore) GetPosition(ctx context.Context, userAddress, poolID string) (*model.Position, error) {
	data, err := s.rdb.Get(ctx, positionKey(userAddress, poolID)).Bytes()
	if err == nil {
		var pos model.Position
		if json.Unmarshal(data, &pos) == nil {
			return &pos, nil
		}
	}

	pos, err := s.primary.GetPosition(ctx, userAddress, poolID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(pos); err == nil {
		s.rdb.Set(ctx, positionKey(userAddress, poolID), data, s.ttl)
	}
	return pos, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListPools(ctx context.Context, filter PoolFilter) ([]model.Pool, error) {
	return s.primary.ListPools(ctx, filter)
}

func (s *CachedStore) ListPositionsByPool(ctx context.Context, poolID string) ([]model.Position, error) {
	return s.primary.ListPositionsByPool(ctx, poolID)
}

func (s *CachedStore) ListPositionsByUser(ctx context.Context, userAddress string) ([]model.Position, error) {
	return s.primary.ListPositionsByUser(ctx, userAddress)
}

func (s *CachedStore) CreateProposal(ctx context.Context, p *model.Proposal) error {
	return s.primary.CreateProposal(ctx, p)
}

func (s *CachedStore) GetProposal(ctx context.Context, id string) (*model.Proposal, error) {
	return s.primary.GetProposal(ctx, id)
}

func (s *CachedStore) UpdateProposal(ctx context.Context, p *model.Proposal) error {
	return s.primary.UpdateProposal(ctx, p)
}

func (s *CachedStore) ListProposalsByPool(ctx context.Context, poolID string) ([]model.Proposal, error) {
	return s.primary.ListProposalsByPool(ctx, poolID)
}

func (s *CachedStore) ListRewardEventsByPool(ctx context.Context, poolID string) ([]model.RewardEvent, error) {
	return s.primary.ListRewardEventsByPool(ctx, poolID)
}

func (s *CachedStore) ListRewardEventsByUser(ctx context.Context, userAddress string) ([]model.RewardEvent, error) {
	return s.primary.ListRewardEventsByUser(ctx, userAddress)
}

// --- Cache helpers ---

func (s *CachedStore) cachePool(ctx context.Context, p *model.Pool) {
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, poolKey(p.ID), data, s.ttl)
	}
}

func poolKey(id string) string { return fmt.Sprintf("pool:%s", id) }

func positionKey(user, poolID string) string {
	return fmt.Sprintf("position:%s:%s", user, poolID)
}
