package graph

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agenthands/loom/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func janeEntity() model.Entity {
	return model.Entity{
		Name:           "Jane Smith",
		NormalizedName: "jane smith",
		Type:           model.TypePerson,
		Confidence:     0.9,
	}
}

func TestMergeEntity_Idempotent(t *testing.T) {
	s := NewMemoryStore(0.3, nil)
	ctx := context.Background()
	now := time.Now()

	first, err := s.MergeEntity(ctx, janeEntity(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, first.MentionCount)

	second, err := s.MergeEntity(ctx, janeEntity(), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, first.UUID, second.UUID)
	assert.Equal(t, 2, second.MentionCount)

	nodes, err := s.ListEntities(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestMergeEntity_RunningMeanConfidence(t *testing.T) {
	s := NewMemoryStore(0.3, nil)
	ctx := context.Background()
	now := time.Now()

	e := janeEntity()
	e.Confidence = 1.0
	_, err := s.MergeEntity(ctx, e, now)
	require.NoError(t, err)

	e.Confidence = 0.5
	node, err := s.MergeEntity(ctx, e, now)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, node.AvgConfidence, 1e-9)
}

func TestMergeEntity_AliasOverlapAcrossRuns(t *testing.T) {
	s := NewMemoryStore(0.3, nil)
	ctx := context.Background()
	now := time.Now()

	// Run 1 saw both variants collapsed into one batch entity.
	run1 := model.Entity{
		Name:           "Jane Smith",
		NormalizedName: "jane smith",
		Type:           model.TypePerson,
		Confidence:     0.9,
		Aliases:        []string{"jane smith", "j. smith"},
	}
	node1, err := s.MergeEntity(ctx, run1, now)
	require.NoError(t, err)

	// Run 2 only saw the short variant: alias overlap must find node1.
	run2 := model.Entity{
		Name:           "J. Smith",
		NormalizedName: "j. smith",
		Type:           model.TypePerson,
		Confidence:     0.8,
	}
	node2, err := s.MergeEntity(ctx, run2, now.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, node1.UUID, node2.UUID)
	assert.Equal(t, 2, node2.MentionCount)

	nodes, err := s.ListEntities(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestMergeEntity_TypeDisambiguates(t *testing.T) {
	s := NewMemoryStore(0.3, nil)
	ctx := context.Background()
	now := time.Now()

	person := model.Entity{Name: "Atlas", NormalizedName: "atlas", Type: model.TypePerson}
	project := model.Entity{Name: "Atlas", NormalizedName: "atlas", Type: model.TypeProject}

	n1, err := s.MergeEntity(ctx, person, now)
	require.NoError(t, err)
	n2, err := s.MergeEntity(ctx, project, now)
	require.NoError(t, err)
	assert.NotEqual(t, n1.UUID, n2.UUID)
}

func TestMergeEntity_ConcurrentSameEntity(t *testing.T) {
	s := NewMemoryStore(0.3, nil)
	ctx := context.Background()
	now := time.Now()

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.MergeEntity(ctx, janeEntity(), now)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	node, err := s.GetEntity(ctx, "Jane Smith")
	require.NoError(t, err)
	assert.Equal(t, writers, node.MentionCount)

	nodes, err := s.ListEntities(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestMergeRelationship_BoundedAccumulation(t *testing.T) {
	s := NewMemoryStore(0.3, nil)
	ctx := context.Background()
	now := time.Now()

	var rel model.Relationship
	var err error
	for i := 0; i < 50; i++ {
		rel, err = s.MergeRelationship(ctx, "a", "WORKS_ON", "b", now)
		require.NoError(t, err)
	}
	assert.Equal(t, 50, rel.MentionCount)
	assert.LessOrEqual(t, rel.Strength, 1.0)
	assert.Greater(t, rel.Strength, 0.99)
}

func TestEffectiveStrength_DecayMonotone(t *testing.T) {
	lastSeen := time.Now()
	half := 24 * time.Hour

	at := func(d time.Duration) float64 {
		return EffectiveStrength(0.8, lastSeen, lastSeen.Add(d), half)
	}

	assert.InDelta(t, 0.8, at(0), 1e-9)
	assert.InDelta(t, 0.4, at(24*time.Hour), 1e-9)
	assert.Greater(t, at(time.Hour), at(2*time.Hour))
	assert.Greater(t, at(2*time.Hour), at(48*time.Hour))

	// Zero half-life disables decay.
	assert.InDelta(t, 0.8, EffectiveStrength(0.8, lastSeen, lastSeen.Add(time.Hour), 0), 1e-9)
}

func TestGetEntity_NotFound(t *testing.T) {
	s := NewMemoryStore(0.3, nil)
	_, err := s.GetEntity(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetEntity_CacheInvalidatedOnWrite(t *testing.T) {
	cache := NewTTLCache(time.Minute)
	s := NewMemoryStore(0.3, cache)
	ctx := context.Background()
	now := time.Now()

	_, err := s.MergeEntity(ctx, janeEntity(), now)
	require.NoError(t, err)

	// Populate cache.
	node, err := s.GetEntity(ctx, "Jane Smith")
	require.NoError(t, err)
	assert.Equal(t, 1, node.MentionCount)

	// A write must invalidate before it lands: the next read sees it.
	_, err = s.MergeEntity(ctx, janeEntity(), now.Add(time.Second))
	require.NoError(t, err)

	node, err = s.GetEntity(ctx, "Jane Smith")
	require.NoError(t, err)
	assert.Equal(t, 2, node.MentionCount)
}

func TestTTLCache_Expiry(t *testing.T) {
	cache := NewTTLCache(time.Minute)
	base := time.Now()
	cache.now = func() time.Time { return base }

	cache.Set("k", 42, cache.Generation("k"))
	v, ok := cache.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	base = base.Add(2 * time.Minute)
	_, ok = cache.Get("k")
	assert.False(t, ok)
}

func TestTTLCache_StaleFillDropped(t *testing.T) {
	cache := NewTTLCache(time.Minute)

	// A reader misses, captures the generation, then a writer invalidates
	// before the reader fills. The fill must not land.
	gen := cache.Generation("k")
	cache.Invalidate("k")
	cache.Set("k", "stale", gen)

	_, ok := cache.Get("k")
	assert.False(t, ok)

	// A fill captured after the invalidation lands normally.
	cache.Set("k", "fresh", cache.Generation("k"))
	v, ok := cache.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "fresh", v)
}
