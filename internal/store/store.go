// Package store defines the persistence interface for the pool engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/assetpool/pool-engine/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// PoolFilter narrows ListPools. Zero values match everything.
type PoolFilter struct {
	Status    string
	AssetType string
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
//
// Positions are keyed by the (userAddress, poolID) pair as two discrete
// key parts — implementations must support both per-pool and per-user
// range queries without string-concatenated composite keys.
type Store interface {
	// --- Pool operations ---

	// CreatePool persists a new pool.
	CreatePool(ctx context.Context, pool *model.Pool) error

	// GetPool retrieves a pool by its ID.
	GetPool(ctx context.Context, id string) (*model.Pool, error)

	// ListPools returns pools matching the filter.
	ListPools(ctx context.Context, filter PoolFilter) ([]model.Pool, error)

	// UpdatePool persists the pool's mutable aggregates and parameters.
	// Callers hold the pool lock across the read-modify-write.
	UpdatePool(ctx context.Context, pool *model.Pool) error

	// --- Position operations ---

	// GetPosition retrieves the composite position for (userAddress, poolID).
	GetPosition(ctx context.Context, userAddress, poolID string) (*model.Position, error)

	// UpsertPosition creates or replaces the position record.
	UpsertPosition(ctx context.Context, pos *model.Position) error

	// ListPositionsByPool returns all positions held in one pool.
	ListPositionsByPool(ctx context.Context, poolID string) ([]model.Position, error)

	// ListPositionsByUser returns all positions held by one user.
	ListPositionsByUser(ctx context.Context, userAddress string) ([]model.Position, error)

	// --- Proposal operations ---

	// CreateProposal persists a new proposal.
	CreateProposal(ctx context.Context, p *model.Proposal) error

	// GetProposal retrieves a proposal by its ID.
	GetProposal(ctx context.Context, id string) (*model.Proposal, error)

	// UpdateProposal persists tallies, voters, and status.
	UpdateProposal(ctx context.Context, p *model.Proposal) error

	// ListProposalsByPool returns all proposals for one pool.
	ListProposalsByPool(ctx context.Context, poolID string) ([]model.Proposal, error)

	// --- Immutable reward ledger ---

	// InsertRewardEvent appends an immutable reward record.
	InsertRewardEvent(ctx context.Context, ev *model.RewardEvent) error

	// ListRewardEventsByPool returns all reward events for a pool.
	ListRewardEventsByPool(ctx context.Context, poolID string) ([]model.RewardEvent, error)

	// ListRewardEventsByUser returns all reward events for a user.
	ListRewardEventsByUser(ctx context.Context, userAddress string) ([]model.RewardEvent, error)
}
