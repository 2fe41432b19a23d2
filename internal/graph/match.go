package graph

import (
	"strings"

	"github.com/agenthands/loom/internal/core/model"
)

// Matcher decides whether a candidate task duplicates an existing one.
// Score is Jaccard similarity over referenced entity-id sets, boosted by
// matching assignee/project fields.
type Matcher struct {
	// Threshold at or above which a candidate enriches the best existing
	// task instead of creating a new one.
	Threshold float64
	// FieldBoost is added per matching assignee/project field.
	FieldBoost float64
}

func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = 0.7
	}
	return &Matcher{Threshold: threshold, FieldBoost: 0.1}
}

// Match scores the candidate against every existing task reference. Ties on
// score break toward the most recently updated task.
func (m *Matcher) Match(task model.CandidateTask, entityUUIDs []string, existing []model.TaskRef) model.TaskDecision {
	decision := model.TaskDecision{Task: task, Outcome: model.MatchCreate}

	var best *model.TaskRef
	var bestScore float64
	for i := range existing {
		ref := &existing[i]
		score := jaccard(entityUUIDs, ref.EntityUUIDs)
		if task.Assignee != model.Unknown && strings.EqualFold(task.Assignee, ref.Assignee) {
			score += m.FieldBoost
		}
		if task.Project != model.Unknown && strings.EqualFold(task.Project, ref.Project) {
			score += m.FieldBoost
		}
		if score > 1 {
			score = 1
		}

		if best == nil || score > bestScore ||
			(score == bestScore && ref.UpdatedAt.After(best.UpdatedAt)) {
			best = ref
			bestScore = score
		}
	}

	if best != nil {
		decision.Score = bestScore
		if bestScore >= m.Threshold {
			decision.Outcome = model.MatchEnrich
			decision.ExistingTaskID = best.TaskID
		}
	}
	return decision
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, x := range a {
		set[x] = true
	}
	inter := 0
	union := len(set)
	seen := make(map[string]bool, len(b))
	for _, x := range b {
		if seen[x] {
			continue
		}
		seen[x] = true
		if set[x] {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
