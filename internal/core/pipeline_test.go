package core

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agenthands/loom/internal/config"
	"github.com/agenthands/loom/internal/core/model"
	"github.com/agenthands/loom/internal/graph"
)

func newTestPipeline(store graph.Store, mock *MockLLMClient) *Pipeline {
	return NewPipeline(store, mock, config.Default(), zap.NewNop())
}

func TestProcessCleanUpdate(t *testing.T) {
	mock := &MockLLMClient{
		ResponseQueue: []string{
			`{"entities": [
				{"name": "Jane Smith", "type": "PERSON"},
				{"name": "Mark", "type": "PERSON"},
				{"name": "Atlas", "type": "PROJECT"},
				{"name": "Friday", "type": "DATE"}
			]}`,
			`{"relationships": [
				{"subject": "Jane Smith", "predicate": "REVIEWS", "object": "Atlas"},
				{"subject": "Mark", "predicate": "WORKS_ON", "object": "Atlas"}
			]}`,
			`{"tasks": [
				{"title": "Review the Atlas launch plan", "assignee": "Jane Smith", "project": "Atlas", "due_date": "Friday", "priority": "high"}
			]}`,
		},
	}
	store := graph.NewMemoryStore(0.3, nil)
	p := newTestPipeline(store, mock)

	text := "Jane Smith will review the Atlas launch plan by Friday. Mark owns the rollout checklist for Atlas."
	result, err := p.Process(context.Background(), text, model.SourceChat)
	require.NoError(t, err)

	// One backend call per stage, no retries.
	assert.Len(t, mock.Prompts, 3)

	assert.Len(t, result.Entities, 4)
	assert.Len(t, result.Relationships, 2)
	assert.InDelta(t, 0.3, result.Relationships[0].Strength, 1e-9)
	assert.InDelta(t, 1.0, result.Confidence, 1e-9)
	assert.Equal(t, model.ActionAutoExecute, result.Action)

	require.Len(t, result.Tasks, 1)
	assert.Equal(t, model.MatchCreate, result.Tasks[0].Outcome)
	assert.Equal(t, "Jane Smith", result.Tasks[0].Task.Assignee)
	require.NotNil(t, result.Tasks[0].Task.DueDate, "relative due date should resolve")

	// Auto-execute records the task reference in the graph.
	refs, err := store.TaskRefs(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "Jane Smith", refs[0].Assignee)
	assert.Len(t, refs[0].EntityUUIDs, 2)

	// Entities are queryable and the context item is persisted with its trace.
	node, err := store.GetEntity(context.Background(), "Jane Smith")
	require.NoError(t, err)
	assert.Equal(t, 1, node.MentionCount)

	item, trace, err := store.GetContext(context.Background(), result.ContextItemID)
	require.NoError(t, err)
	assert.Equal(t, text, item.Text)
	assert.Equal(t, result.ReasoningTrace, trace)
	assert.NotEmpty(t, trace)
}

func TestProcessMalformedBackendOutput(t *testing.T) {
	mock := &MockLLMClient{
		Response: "I could not find any structured data in that.",
	}
	store := graph.NewMemoryStore(0.3, nil)
	p := newTestPipeline(store, mock)

	result, err := p.Process(context.Background(), "Please review the budget report before the deadline next week.", model.SourceChat)
	require.NoError(t, err, "malformed output degrades, it does not fail the run")

	// Three extraction attempts, no relationship call without entities,
	// one task call.
	assert.Len(t, mock.Prompts, 4)

	assert.Empty(t, result.Entities)
	assert.Empty(t, result.Relationships)
	assert.Empty(t, result.Tasks)
	assert.InDelta(t, 0.1, result.Confidence, 1e-9)
	assert.Equal(t, model.ActionClarify, result.Action)

	joined := strings.Join(result.ReasoningTrace, "\n")
	assert.Contains(t, joined, "retrying with detailed template")
	assert.Contains(t, joined, "extraction attempt 3")

	// The failed run is still recorded for audit.
	_, trace, err := store.GetContext(context.Background(), result.ContextItemID)
	require.NoError(t, err)
	assert.Equal(t, result.ReasoningTrace, trace)
}

func TestDuplicateEntityAcrossRuns(t *testing.T) {
	store := graph.NewMemoryStore(0.3, nil)

	mock := &MockLLMClient{
		ResponseQueue: []string{
			`{"entities": [
				{"name": "Jane Smith", "type": "PERSON"},
				{"name": "J. Smith", "type": "PERSON"},
				{"name": "Atlas", "type": "PROJECT"}
			]}`,
			`{"relationships": [{"subject": "Jane Smith", "predicate": "WORKS_ON", "object": "Atlas"}]}`,
			`{"tasks": []}`,
		},
	}
	p := newTestPipeline(store, mock)
	result, err := p.Process(context.Background(), "Jane Smith kicked off the Atlas migration. J. Smith will own the rollout.", model.SourceChat)
	require.NoError(t, err)

	// The initial variant collapses into one entity within the batch.
	require.Len(t, result.Entities, 2)
	node, err := store.GetEntity(context.Background(), "Jane Smith")
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", node.Name)
	assert.True(t, node.HasAlias("j. smith"))
	assert.Equal(t, 1, node.MentionCount)

	// A later run using only the short variant resolves to the same node.
	mock2 := &MockLLMClient{
		ResponseQueue: []string{
			`{"entities": [
				{"name": "J. Smith", "type": "PERSON"},
				{"name": "Atlas", "type": "PROJECT"}
			]}`,
			`{"relationships": [{"subject": "J. Smith", "predicate": "WORKS_ON", "object": "Atlas"}]}`,
			`{"tasks": []}`,
		},
	}
	p2 := newTestPipeline(store, mock2)
	result2, err := p2.Process(context.Background(), "J. Smith closed out the first Atlas milestone earlier today.", model.SourceChat)
	require.NoError(t, err)

	node, err = store.GetEntity(context.Background(), "Jane Smith")
	require.NoError(t, err)
	assert.Equal(t, 2, node.MentionCount)

	// Still exactly two nodes in the graph.
	nodes, err := store.ListEntities(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)

	// The repeated relationship observation strengthened the same edge.
	require.Len(t, result2.Relationships, 1)
	assert.Equal(t, 2, result2.Relationships[0].MentionCount)
	assert.InDelta(t, 0.51, result2.Relationships[0].Strength, 1e-9)
}

func TestProcessMatchesExistingTask(t *testing.T) {
	store := graph.NewMemoryStore(0.3, nil)

	mock := &MockLLMClient{
		ResponseQueue: []string{
			`{"entities": [
				{"name": "Jane Smith", "type": "PERSON"},
				{"name": "Mark", "type": "PERSON"},
				{"name": "Atlas", "type": "PROJECT"},
				{"name": "Friday", "type": "DATE"}
			]}`,
			`{"relationships": [{"subject": "Jane Smith", "predicate": "REVIEWS", "object": "Atlas"}]}`,
			`{"tasks": [{"title": "Review the Atlas launch plan", "assignee": "Jane Smith", "project": "Atlas"}]}`,
		},
	}
	p := newTestPipeline(store, mock)
	_, err := p.Process(context.Background(), "Jane Smith will review the Atlas launch plan by Friday. Mark owns the rollout checklist for Atlas.", model.SourceChat)
	require.NoError(t, err)

	refs, err := store.TaskRefs(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 1)
	firstID := refs[0].TaskID

	mock2 := &MockLLMClient{
		ResponseQueue: []string{
			`{"entities": [
				{"name": "Jane Smith", "type": "PERSON"},
				{"name": "Atlas", "type": "PROJECT"}
			]}`,
			`{"relationships": [{"subject": "Jane Smith", "predicate": "WORKS_ON", "object": "Atlas"}]}`,
			`{"tasks": [{"title": "Finish the Atlas launch plan review", "assignee": "Jane Smith", "project": "Atlas"}]}`,
		},
	}
	p2 := newTestPipeline(store, mock2)
	result, err := p2.Process(context.Background(), "Jane Smith is still working on the Atlas launch plan review.", model.SourceChat)
	require.NoError(t, err)

	require.Len(t, result.Tasks, 1)
	assert.Equal(t, model.MatchEnrich, result.Tasks[0].Outcome)
	assert.Equal(t, firstID, result.Tasks[0].ExistingTaskID)

	// Enrichment updates the existing reference instead of adding one.
	refs, err = store.TaskRefs(context.Background())
	require.NoError(t, err)
	assert.Len(t, refs, 1)
}

func TestProcessEnrichKeepsExistingTaskSignal(t *testing.T) {
	store := graph.NewMemoryStore(0.3, nil)

	mock := &MockLLMClient{
		ResponseQueue: []string{
			`{"entities": [
				{"name": "Jane Smith", "type": "PERSON"},
				{"name": "Mark", "type": "PERSON"},
				{"name": "Atlas", "type": "PROJECT"},
				{"name": "Friday", "type": "DATE"}
			]}`,
			`{"relationships": [{"subject": "Jane Smith", "predicate": "REVIEWS", "object": "Atlas"}]}`,
			`{"tasks": [{"title": "Review the Atlas launch plan", "assignee": "Jane Smith", "project": "Atlas"}]}`,
		},
	}
	p := newTestPipeline(store, mock)
	_, err := p.Process(context.Background(), "Jane Smith will review the Atlas launch plan by Friday. Mark owns the rollout checklist for Atlas.", model.SourceChat)
	require.NoError(t, err)

	refs, err := store.TaskRefs(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Len(t, refs[0].EntityUUIDs, 2)
	firstID := refs[0].TaskID

	// The follow-up resolves the assignee but not the project, so its
	// entity set is smaller than what the reference already carries.
	mock2 := &MockLLMClient{
		ResponseQueue: []string{
			`{"entities": [
				{"name": "Jane Smith", "type": "PERSON"},
				{"name": "Atlas", "type": "PROJECT"}
			]}`,
			`{"relationships": [{"subject": "Jane Smith", "predicate": "WORKS_ON", "object": "Atlas"}]}`,
			`{"tasks": [{"title": "Review the Atlas launch plan", "assignee": "Jane Smith", "project": "unknown"}]}`,
		},
	}
	cfg := config.Default()
	cfg.Pipeline.MatchThreshold = 0.5
	p2 := NewPipeline(store, mock2, cfg, zap.NewNop())

	result, err := p2.Process(context.Background(), "Jane Smith picked the Atlas launch review back up this afternoon.", model.SourceChat)
	require.NoError(t, err)

	require.Len(t, result.Tasks, 1)
	require.Equal(t, model.MatchEnrich, result.Tasks[0].Outcome)
	require.Equal(t, firstID, result.Tasks[0].ExistingTaskID)

	// Enrichment unions the entity sets and keeps the resolved project.
	refs, err = store.TaskRefs(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, firstID, refs[0].TaskID)
	assert.Len(t, refs[0].EntityUUIDs, 2)
	assert.Equal(t, "Jane Smith", refs[0].Assignee)
	assert.Equal(t, "Atlas", refs[0].Project)
}

func TestProcessCancelled(t *testing.T) {
	mock := &MockLLMClient{}
	store := graph.NewMemoryStore(0.3, nil)
	p := newTestPipeline(store, mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := p.Process(ctx, "Jane Smith will review the Atlas launch plan by Friday.", model.SourceChat)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
	assert.Empty(t, mock.Prompts, "no backend calls after cancellation")
}
