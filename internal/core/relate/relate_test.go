package relate

import (
	"context"
	"errors"
	"testing"

	"github.com/agenthands/loom/internal/core/model"
	"github.com/stretchr/testify/assert"
)

func batch(names ...string) []model.Entity {
	var out []model.Entity
	for _, n := range names {
		out = append(out, model.Entity{Name: n, NormalizedName: normalizedFixture(n), Type: model.TypePerson})
	}
	return out
}

func normalizedFixture(n string) string {
	// Mirrors common.NormalizeName for simple fixtures.
	switch n {
	case "Jane":
		return "jane"
	case "Mark":
		return "mark"
	case "Atlas":
		return "atlas"
	}
	return n
}

func TestSynthesize_AcceptsValidTriples(t *testing.T) {
	mockLLM := &MockLLMClient{Response: `{"relationships": [
		{"subject": "Jane", "predicate": "works_on", "object": "Atlas"}
	]}`}
	s := NewSynthesizer(mockLLM, Prompts{}, 6, 4000, 0)
	trace := &model.ReasoningTrace{}

	result := s.Synthesize(context.Background(), "Jane works on Atlas.", batch("Jane", "Mark", "Atlas"), trace)

	assert.Len(t, result.Triples, 1)
	assert.Equal(t, model.Triple{Subject: "Jane", Predicate: "WORKS_ON", Object: "Atlas"}, result.Triples[0])
	assert.InDelta(t, 1.0, result.Quality, 1e-9)
}

func TestSynthesize_RejectsUnknownEndpoints(t *testing.T) {
	// The backend invents "Bob": the triple must never reach the output.
	mockLLM := &MockLLMClient{Response: `{"relationships": [
		{"subject": "Jane", "predicate": "WORKS_ON", "object": "Atlas"},
		{"subject": "Bob", "predicate": "MANAGES", "object": "Jane"},
		{"subject": "Jane", "predicate": "KNOWS", "object": "Nobody"}
	]}`}
	s := NewSynthesizer(mockLLM, Prompts{}, 6, 4000, 0)
	trace := &model.ReasoningTrace{}

	result := s.Synthesize(context.Background(), "text", batch("Jane", "Atlas"), trace)

	assert.Len(t, result.Triples, 1)
	for _, tr := range result.Triples {
		assert.NotEqual(t, "Bob", tr.Subject)
		assert.NotEqual(t, "Nobody", tr.Object)
	}
	assert.InDelta(t, 1.0/3.0, result.Quality, 1e-9)
}

func TestSynthesize_SelectiveAboveLimit(t *testing.T) {
	mockLLM := &MockLLMClient{Response: `{"relationships": []}`}
	s := NewSynthesizer(mockLLM, Prompts{Pairwise: "PAIRWISE %s %s", Selective: "SELECTIVE %s %s"}, 2, 4000, 0)
	trace := &model.ReasoningTrace{}

	s.Synthesize(context.Background(), "text", batch("Jane", "Mark", "Atlas"), trace)

	assert.Contains(t, mockLLM.Prompts[0], "SELECTIVE")
}

func TestSynthesize_BackendFailureIsEmptyResult(t *testing.T) {
	mockLLM := &MockLLMClient{Err: errors.New("timeout")}
	s := NewSynthesizer(mockLLM, Prompts{}, 6, 4000, 0)
	trace := &model.ReasoningTrace{}

	result := s.Synthesize(context.Background(), "text", batch("Jane"), trace)

	assert.Empty(t, result.Triples)
	assert.Zero(t, result.Quality)
	assert.Contains(t, trace.Lines()[0], "backend failure")
}

func TestSynthesize_NoEntitiesSkipsBackend(t *testing.T) {
	mockLLM := &MockLLMClient{Response: "should not be called"}
	s := NewSynthesizer(mockLLM, Prompts{}, 6, 4000, 0)
	trace := &model.ReasoningTrace{}

	result := s.Synthesize(context.Background(), "text", nil, trace)

	assert.Empty(t, result.Triples)
	assert.Empty(t, mockLLM.Prompts)
}
