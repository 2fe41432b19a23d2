// Package quality scores stage output and aggregates it into an overall
// actionability decision. Everything here is pure: deterministic given its
// inputs, no side effects, so stage boundaries stay independently testable.
package quality

import "github.com/agenthands/loom/internal/core/model"

// ExtractionScore evaluates one extraction attempt against the analyzer's
// entity-count estimate.
//
//	completeness = min(extracted / max(estimated, 1), 1.0)
//	accuracy     = 1 - (invalidType + emptyName) / max(extracted, 1)
//	quality      = (completeness + accuracy) / 2
//
// An attempt that produced nothing scores zero outright so that empty or
// unparseable backend output is never rewarded for vacuous accuracy.
func ExtractionScore(extracted, estimated, invalidType, emptyName int) float64 {
	if extracted <= 0 {
		return 0
	}
	est := estimated
	if est < 1 {
		est = 1
	}
	completeness := float64(extracted) / float64(est)
	if completeness > 1.0 {
		completeness = 1.0
	}

	denom := extracted
	if denom < 1 {
		denom = 1
	}
	accuracy := 1.0 - float64(invalidType+emptyName)/float64(denom)
	if accuracy < 0 {
		accuracy = 0
	}

	return (completeness + accuracy) / 2
}

// RelationScore is the fraction of returned triples that survived
// referential validation.
func RelationScore(accepted, returned int) float64 {
	if returned < 1 {
		returned = 1
	}
	return float64(accepted) / float64(returned)
}

// TaskScore averages the fraction of tasks with a resolved assignee and the
// fraction with a resolved project. No tasks scores zero.
func TaskScore(tasks []model.CandidateTask) float64 {
	if len(tasks) == 0 {
		return 0
	}
	var assignees, projects int
	for _, t := range tasks {
		if t.Assignee != "" && t.Assignee != model.Unknown {
			assignees++
		}
		if t.Project != "" && t.Project != model.Unknown {
			projects++
		}
	}
	n := float64(len(tasks))
	return (float64(assignees)/n + float64(projects)/n) / 2
}

// Weights controls how per-stage scores combine into overall confidence.
// Tunable, not a contract; they are normalized before use.
type Weights struct {
	Analysis   float64 `toml:"analysis"`
	Extraction float64 `toml:"extraction"`
	Relations  float64 `toml:"relations"`
	Tasks      float64 `toml:"tasks"`
}

// DefaultWeights lean on extraction quality, which dominates everything
// downstream.
func DefaultWeights() Weights {
	return Weights{Analysis: 0.1, Extraction: 0.4, Relations: 0.2, Tasks: 0.3}
}

// Bands holds the inclusive lower edges of the confidence bands.
type Bands struct {
	AutoExecute float64 `toml:"auto_execute"`
	Propose     float64 `toml:"propose"`
}

// DefaultBands returns the standard 0.8 / 0.5 band edges.
func DefaultBands() Bands {
	return Bands{AutoExecute: 0.8, Propose: 0.5}
}

// StageScores carries the four per-stage quality values.
type StageScores struct {
	Analysis   float64
	Extraction float64
	Relations  float64
	Tasks      float64
}

// Overall combines stage scores into one confidence value in [0,1].
func Overall(s StageScores, w Weights) float64 {
	total := w.Analysis + w.Extraction + w.Relations + w.Tasks
	if total <= 0 {
		w = DefaultWeights()
		total = w.Analysis + w.Extraction + w.Relations + w.Tasks
	}
	sum := w.Analysis*s.Analysis + w.Extraction*s.Extraction + w.Relations*s.Relations + w.Tasks*s.Tasks
	conf := sum / total
	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}

// Recommend maps confidence onto an action. Band edges are inclusive on the
// lower side: 0.8 auto-executes, 0.5 proposes.
func Recommend(confidence float64, b Bands) model.RecommendedAction {
	switch {
	case confidence >= b.AutoExecute:
		return model.ActionAutoExecute
	case confidence >= b.Propose:
		return model.ActionPropose
	default:
		return model.ActionClarify
	}
}
