package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/assetpool/pool-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// Positions are held in nested maps keyed poolID → userAddress, with a
// secondary userAddress → poolID index for per-user queries.
type MemoryStore struct {
	mu        sync.RWMutex
	pools     map[string]*model.Pool
	positions map[string]map[string]*model.Position // poolID → userAddress → position
	byUser    map[string]map[string]bool            // userAddress → poolID set
	proposals map[string]*model.Proposal
	events    []model.RewardEvent
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pools:     make(map[string]*model.Pool),
		positions: make(map[string]map[string]*model.Position),
		byUser:    make(map[string]map[string]bool),
		proposals: make(map[string]*model.Proposal),
	}
}

func (s *MemoryStore) CreatePool(_ context.Context, p *model.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pools[p.ID]; ok {
		return fmt.Errorf("pool %s already exists", p.ID)
	}
	for _, existing := range s.pools {
		if existing.AssetID == p.AssetID {
			return fmt.Errorf("pool for asset %s already exists", p.AssetID)
		}
	}

	// Store a copy to avoid external mutation.
	cp := *p
	s.pools[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPool(_ context.Context, id string) (*model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pools[id]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", id, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListPools(_ context.Context, filter PoolFilter) ([]model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pools := make([]model.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.AssetType != "" && p.AssetType != filter.AssetType {
			continue
		}
		pools = append(pools, *p)
	}
	return pools, nil
}

func (s *MemoryStore) UpdatePool(_ context.Context, p *model.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pools[p.ID]; !ok {
		return fmt.Errorf("pool %s: %w", p.ID, ErrNotFound)
	}
	cp := *p
	s.pools[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPosition(_ context.Context, userAddress, poolID string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[poolID][userAddress]
	if !ok {
		return nil, fmt.Errorf("position (%s, %s): %w", userAddress, poolID, ErrNotFound)
	}
	return copyPosition(pos), nil
}

func (s *MemoryStore) UpsertPosition(_ context.Context, pos *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.positions[pos.PoolID] == nil {
		s.positions[pos.PoolID] = make(map[string]*model.Position)
	}
	s.positions[pos.PoolID][pos.UserAddress] = copyPosition(pos)

	if s.byUser[pos.UserAddress] == nil {
		s.byUser[pos.UserAddress] = make(map[string]bool)
	}
	s.byUser[pos.UserAddress][pos.PoolID] = true
	return nil
}

func (s *MemoryStore) ListPositionsByPool(_ context.Context, poolID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for _, pos := range s.positions[poolID] {
		result = append(result, *copyPosition(pos))
	}
	return result, nil
}

func (s *MemoryStore) ListPositionsByUser(_ context.Context, userAddress string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for poolID := range s.byUser[userAddress] {
		if pos, ok := s.positions[poolID][userAddress]; ok {
			result = append(result, *copyPosition(pos))
		}
	}
	return result, nil
}

func (s *MemoryStore) CreateProposal(_ context.Context, p *model.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.proposals[p.ID]; ok {
		return fmt.Errorf("proposal %s already exists", p.ID)
	}
	s.proposals[p.ID] = copyProposal(p)
	return nil
}

func (s *MemoryStore) GetProposal(_ context.Context, id string) (*model.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.proposals[id]
	if !ok {
		return nil, fmt.Errorf("proposal %s: %w", id, ErrNotFound)
	}
	return copyProposal(p), nil
}

func (s *MemoryStore) UpdateProposal(_ context.Context, p *model.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.proposals[p.ID]; !ok {
		return fmt.Errorf("proposal %s: %w", p.ID, ErrNotFound)
	}
	s.proposals[p.ID] = copyProposal(p)
	return nil
}

func (s *MemoryStore) ListProposalsByPool(_ context.Context, poolID string) ([]model.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Proposal
	for _, p := range s.proposals {
		if p.PoolID == poolID {
			result = append(result, *copyProposal(p))
		}
	}
	return result, nil
}

func (s *MemoryStore) InsertRewardEvent(_ context.Context, ev *model.RewardEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, *ev)
	return nil
}

func (s *MemoryStore) ListRewardEventsByPool(_ context.Context, poolID string) ([]model.RewardEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.RewardEvent
	for _, ev := range s.events {
		if ev.PoolID == poolID {
			result = append(result, ev)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListRewardEventsByUser(_ context.Context, userAddress string) ([]model.RewardEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.RewardEvent
	for _, ev := range s.events {
		if ev.UserAddress == userAddress {
			result = append(result, ev)
		}
	}
	return result, nil
}

// copyPosition deep-copies a position including its optional sub-records.
func copyPosition(p *model.Position) *model.Position {
	cp := *p
	if p.Liquidity != nil {
		lp := *p.Liquidity
		cp.Liquidity = &lp
	}
	if p.Staking != nil {
		sp := *p.Staking
		cp.Staking = &sp
	}
	if p.Farming != nil {
		fp := *p.Farming
		cp.Farming = &fp
	}
	return &cp
}

// copyProposal deep-copies a proposal including its voter sequence.
func copyProposal(p *model.Proposal) *model.Proposal {
	cp := *p
	cp.Voters = append([]string(nil), p.Voters...)
	if p.ExecutionData != nil {
		cp.ExecutionData = make(map[string]string, len(p.ExecutionData))
		for k, v := range p.ExecutionData {
			cp.ExecutionData[k] = v
		}
	}
	return &cp
}
