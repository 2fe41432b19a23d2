package quality

import (
	"testing"

	"github.com/agenthands/loom/internal/core/model"
	"github.com/stretchr/testify/assert"
)

func TestExtractionScore(t *testing.T) {
	// Perfect extraction: everything found, nothing invalid.
	assert.InDelta(t, 1.0, ExtractionScore(4, 4, 0, 0), 1e-9)

	// Over-extraction caps completeness at 1.0.
	assert.InDelta(t, 1.0, ExtractionScore(8, 4, 0, 0), 1e-9)

	// Half the estimated entities found.
	assert.InDelta(t, 0.75, ExtractionScore(2, 4, 0, 0), 1e-9)

	// One of four has an invalid type.
	assert.InDelta(t, 0.875, ExtractionScore(4, 4, 1, 0), 1e-9)

	// Nothing extracted scores zero, never a division fault and never
	// credit for vacuous accuracy.
	assert.Zero(t, ExtractionScore(0, 0, 0, 0))
	assert.Zero(t, ExtractionScore(0, 5, 0, 0))
}

func TestRelationScore(t *testing.T) {
	assert.InDelta(t, 1.0, RelationScore(3, 3), 1e-9)
	assert.InDelta(t, 0.5, RelationScore(1, 2), 1e-9)
	assert.InDelta(t, 0.0, RelationScore(0, 0), 1e-9)
}

func TestTaskScore(t *testing.T) {
	tasks := []model.CandidateTask{
		{Title: "a", Assignee: "Jane", Project: "Atlas"},
		{Title: "b", Assignee: model.Unknown, Project: "Atlas"},
	}
	// Assignees resolved: 1/2. Projects resolved: 2/2. Average: 0.75.
	assert.InDelta(t, 0.75, TaskScore(tasks), 1e-9)

	assert.Zero(t, TaskScore(nil))
}

func TestRecommend_BandEdges(t *testing.T) {
	b := DefaultBands()

	assert.Equal(t, model.ActionPropose, Recommend(0.79, b))
	assert.Equal(t, model.ActionAutoExecute, Recommend(0.8, b))
	assert.Equal(t, model.ActionClarify, Recommend(0.49, b))
	assert.Equal(t, model.ActionPropose, Recommend(0.5, b))
}

func TestOverall(t *testing.T) {
	s := StageScores{Analysis: 1, Extraction: 1, Relations: 1, Tasks: 1}
	assert.InDelta(t, 1.0, Overall(s, DefaultWeights()), 1e-9)

	s = StageScores{Analysis: 1}
	assert.InDelta(t, 0.1, Overall(s, DefaultWeights()), 1e-9)

	// Zero weights fall back to defaults instead of dividing by zero.
	assert.InDelta(t, 0.1, Overall(s, Weights{}), 1e-9)

	// Non-normalized weights are normalized.
	s = StageScores{Analysis: 1, Extraction: 1, Relations: 1, Tasks: 1}
	assert.InDelta(t, 1.0, Overall(s, Weights{Analysis: 2, Extraction: 2, Relations: 2, Tasks: 2}), 1e-9)
}
