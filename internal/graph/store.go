// Package graph is the knowledge graph store: canonical entity nodes with
// alias resolution, relationship strength aggregation, and lazy time decay.
package graph

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/agenthands/loom/internal/core/model"
)

// ErrNotFound is returned by read accessors when no record matches.
var ErrNotFound = errors.New("graph: not found")

// Store is the single shared, concurrently-mutated resource across pipeline
// runs. Entity merge is atomic per canonical entity; relationship updates
// are atomic read-modify-write.
type Store interface {
	// MergeEntity resolves the entity against existing nodes (normalized
	// name first, alias overlap second) and merges or creates exactly one
	// node. Safe under concurrent writers targeting the same entity.
	MergeEntity(ctx context.Context, e model.Entity, seenAt time.Time) (model.Node, error)

	// MergeRelationship aggregates one observation of (subject, predicate,
	// object): bounded strength accumulation, mention count, last seen.
	MergeRelationship(ctx context.Context, subjectUUID, predicate, objectUUID string, seenAt time.Time) (model.Relationship, error)

	// GetEntity looks a node up by name (normalized internally), falling
	// back to alias match. Returns ErrNotFound when absent.
	GetEntity(ctx context.Context, name string) (model.Node, error)

	// ListEntities returns nodes whose normalized name has the given
	// prefix. An empty prefix lists everything up to limit.
	ListEntities(ctx context.Context, prefix string, limit int) ([]model.Node, error)

	// Relationships returns the stored edges touching the given node.
	// Strength is raw; apply EffectiveStrength when reading.
	Relationships(ctx context.Context, nodeUUID string) ([]model.Relationship, error)

	// SaveContext persists a completed ContextItem with its reasoning
	// trace, read-only from then on.
	SaveContext(ctx context.Context, item model.ContextItem, trace []string) error

	// GetContext returns a persisted ContextItem and its trace.
	GetContext(ctx context.Context, id string) (model.ContextItem, []string, error)

	// TaskRefs lists the graph-side records of externally persisted tasks.
	TaskRefs(ctx context.Context) ([]model.TaskRef, error)

	// SaveTaskRef records or updates one external task reference.
	SaveTaskRef(ctx context.Context, ref model.TaskRef) error

	Close(ctx context.Context) error
}

// EffectiveStrength applies exponential half-life decay to a stored
// relationship strength at read time. Monotone non-increasing in elapsed
// time; stored data is never mutated by decay.
func EffectiveStrength(strength float64, lastSeen, now time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return strength
	}
	elapsed := now.Sub(lastSeen)
	if elapsed <= 0 {
		return strength
	}
	return strength * math.Pow(0.5, elapsed.Seconds()/halfLife.Seconds())
}

// Accumulate combines one more observation into a relationship strength.
// Bounded: approaches 1.0 asymptotically, never exceeds it.
func Accumulate(strength, increment float64) float64 {
	s := strength + increment*(1-strength)
	if s > 1 {
		return 1
	}
	return s
}
