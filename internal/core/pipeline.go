// Package core sequences the extraction stages over one ContextItem and
// owns the final decision. The workflow is an explicit state machine driven
// by a plain loop; stages never raise faults upward, they degrade and record
// why in the reasoning trace.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthands/loom/internal/config"
	"github.com/agenthands/loom/internal/core/analyze"
	"github.com/agenthands/loom/internal/core/dedupe"
	"github.com/agenthands/loom/internal/core/extract"
	"github.com/agenthands/loom/internal/core/model"
	"github.com/agenthands/loom/internal/core/quality"
	"github.com/agenthands/loom/internal/core/relate"
	"github.com/agenthands/loom/internal/core/tasksynth"
	"github.com/agenthands/loom/internal/graph"
	"github.com/agenthands/loom/internal/llm"
)

type State string

const (
	StateAnalyze    State = "ANALYZE"
	StateExtract    State = "EXTRACT"
	StateRelate     State = "RELATE"
	StateSynthesize State = "SYNTHESIZE_TASKS"
	StateScore      State = "SCORE"
	StateMatch      State = "MATCH"
	StateDone       State = "DONE"
)

type Pipeline struct {
	Store     graph.Store
	Analyzer  *analyze.Analyzer
	Extractor *extract.Extractor
	Relator   *relate.Synthesizer
	Tasks     *tasksynth.Synthesizer
	Matcher   *graph.Matcher

	Weights       quality.Weights
	Bands         quality.Bands
	DecayHalfLife time.Duration

	Logger *zap.Logger

	// Now and NewID are swappable for tests.
	Now   func() time.Time
	NewID func() string
}

func NewPipeline(store graph.Store, llmClient llm.LLMClient, cfg *config.Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	pc := cfg.Pipeline
	timeout := pc.BackendTimeout.Duration()
	return &Pipeline{
		Store:         store,
		Analyzer:      analyze.NewAnalyzer(pc.ComplexityThreshold),
		Extractor:     extract.NewExtractor(llmClient, cfg.Prompts.Extraction, pc.QualityThreshold, pc.MaxRetries, timeout),
		Relator:       relate.NewSynthesizer(llmClient, cfg.Prompts.Relationships, pc.PairwiseLimit, pc.TruncateAt, timeout),
		Tasks:         tasksynth.NewSynthesizer(llmClient, cfg.Prompts.Tasks, pc.TruncateAt, timeout),
		Matcher:       graph.NewMatcher(pc.MatchThreshold),
		Weights:       pc.Weights,
		Bands:         pc.Bands,
		DecayHalfLife: pc.DecayHalfLife.Duration(),
		Logger:        logger,
		Now:           time.Now,
		NewID:         func() string { return uuid.New().String() },
	}
}

// runState carries one pipeline run between transitions. Each transition
// consumes the previous stage's validated output.
type runState struct {
	state State
	item  model.ContextItem
	trace *model.ReasoningTrace

	analysis   model.Analysis
	extraction extract.Result
	relations  relate.Result
	tasks      tasksynth.Result

	scores quality.StageScores

	nodes      []model.Node
	nodeByName map[string]string // normalized variant -> node uuid
	rels       []model.Relationship
	decisions  []model.TaskDecision

	confidence float64
	action     model.RecommendedAction
}

// Process runs the full pipeline over one piece of context. The only errors
// it returns are cancellation and an unreachable store; everything else
// degrades into the result and its trace.
func (p *Pipeline) Process(ctx context.Context, text string, source model.SourceType) (*model.ProcessResult, error) {
	st := runState{
		state: StateAnalyze,
		item: model.ContextItem{
			UUID:      p.NewID(),
			Text:      text,
			Source:    source,
			CreatedAt: p.Now().UTC(),
		},
		trace:      &model.ReasoningTrace{},
		nodeByName: make(map[string]string),
	}

	for st.state != StateDone {
		// Cooperative cancellation checkpoint between stages.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p.Logger.Debug("pipeline transition",
			zap.String("context_id", st.item.UUID),
			zap.String("state", string(st.state)))

		var err error
		switch st.state {
		case StateAnalyze:
			st = p.runAnalyze(st)
		case StateExtract:
			st = p.runExtract(ctx, st)
		case StateRelate:
			st = p.runRelate(ctx, st)
		case StateSynthesize:
			st = p.runSynthesize(ctx, st)
		case StateScore:
			st = p.runScore(st)
		case StateMatch:
			st, err = p.runMatch(ctx, st)
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown pipeline state %q", st.state)
		}
	}

	if err := p.Store.SaveContext(ctx, st.item, st.trace.Lines()); err != nil {
		return nil, fmt.Errorf("failed to persist context item: %w", err)
	}

	return &model.ProcessResult{
		ContextItemID:  st.item.UUID,
		Entities:       st.nodes,
		Relationships:  st.rels,
		Tasks:          st.decisions,
		Confidence:     st.confidence,
		Action:         st.action,
		ReasoningTrace: st.trace.Lines(),
	}, nil
}

func (p *Pipeline) runAnalyze(st runState) runState {
	st.analysis, st.scores.Analysis = p.Analyzer.Analyze(st.item.Text, st.item.Source, st.trace)
	st.state = StateExtract
	return st
}

func (p *Pipeline) runExtract(ctx context.Context, st runState) runState {
	st.extraction = p.Extractor.Extract(ctx, st.item.Text, st.analysis, st.trace)
	st.extraction.Entities = dedupe.Collapse(st.extraction.Entities)
	st.scores.Extraction = st.extraction.Quality
	p.Logger.Debug("extraction complete",
		zap.String("context_id", st.item.UUID),
		zap.Int("entities", len(st.extraction.Entities)),
		zap.Int("attempts", len(st.extraction.Attempts)),
		zap.Float64("quality", st.extraction.Quality))
	st.state = StateRelate
	return st
}

func (p *Pipeline) runRelate(ctx context.Context, st runState) runState {
	st.relations = p.Relator.Synthesize(ctx, st.item.Text, st.extraction.Entities, st.trace)
	st.scores.Relations = st.relations.Quality
	st.state = StateSynthesize
	return st
}

func (p *Pipeline) runSynthesize(ctx context.Context, st runState) runState {
	st.tasks = p.Tasks.Synthesize(ctx, st.item.Text, st.extraction.Entities, st.item.CreatedAt, st.trace)
	st.scores.Tasks = st.tasks.Quality
	st.state = StateScore
	return st
}

func (p *Pipeline) runScore(st runState) runState {
	st.confidence = quality.Overall(st.scores, p.Weights)
	st.action = quality.Recommend(st.confidence, p.Bands)
	st.trace.Add(fmt.Sprintf(
		"confidence: analysis=%.2f extraction=%.2f relationships=%.2f tasks=%.2f -> overall=%.2f, action=%s",
		st.scores.Analysis, st.scores.Extraction, st.scores.Relations, st.scores.Tasks, st.confidence, st.action))
	st.state = StateMatch
	return st
}

// runMatch merges validated entities and relationships into the graph, then
// decides create-vs-enrich per candidate task. This is the only stage that
// writes to the store.
func (p *Pipeline) runMatch(ctx context.Context, st runState) (runState, error) {
	now := p.Now().UTC()

	for _, e := range st.extraction.Entities {
		node, err := p.Store.MergeEntity(ctx, e, now)
		if err != nil {
			return st, fmt.Errorf("entity merge failed: %w", err)
		}
		st.nodes = append(st.nodes, node)
		for _, v := range e.AllVariants() {
			st.nodeByName[v] = node.UUID
		}
	}

	for _, tr := range st.relations.Triples {
		subj := st.nodeByName[normalized(tr.Subject, st.extraction.Entities)]
		obj := st.nodeByName[normalized(tr.Object, st.extraction.Entities)]
		if subj == "" || obj == "" {
			// Referential validation upstream makes this unreachable in
			// practice; drop rather than invent an endpoint.
			st.trace.Add(fmt.Sprintf("merge: dropped triple (%s, %s, %s): unresolved endpoint", tr.Subject, tr.Predicate, tr.Object))
			continue
		}
		rel, err := p.Store.MergeRelationship(ctx, subj, tr.Predicate, obj, now)
		if err != nil {
			return st, fmt.Errorf("relationship merge failed: %w", err)
		}
		rel.Strength = graph.EffectiveStrength(rel.Strength, rel.LastSeen, now, p.DecayHalfLife)
		st.rels = append(st.rels, rel)
	}

	refs, err := p.Store.TaskRefs(ctx)
	if err != nil {
		st.trace.Add(fmt.Sprintf("match: task lookup unavailable, treating all candidates as new: %v", err))
		refs = nil
	}

	for _, task := range st.tasks.Tasks {
		decision := p.Matcher.Match(task, p.taskEntityUUIDs(task, st), refs)
		st.decisions = append(st.decisions, decision)
		st.trace.Add(fmt.Sprintf("match: %q -> %s (score=%.2f)", task.Title, decision.Outcome, decision.Score))

		if st.action != model.ActionAutoExecute {
			continue
		}
		// Auto-execute: record the graph-side reference so later runs can
		// match against it. The task itself lives with the external board.
		ref := model.TaskRef{
			TaskID:      p.NewID(),
			Title:       task.Title,
			EntityUUIDs: p.taskEntityUUIDs(task, st),
			Assignee:    task.Assignee,
			Project:     task.Project,
			UpdatedAt:   now,
		}
		if decision.Outcome == model.MatchEnrich {
			ref = enrichTaskRef(findTaskRef(refs, decision.ExistingTaskID), task, ref.EntityUUIDs, now)
		}
		if err := p.Store.SaveTaskRef(ctx, ref); err != nil {
			st.trace.Add(fmt.Sprintf("match: failed to record task reference: %v", err))
		}
	}

	st.state = StateDone
	return st, nil
}

// enrichTaskRef folds a new observation into the stored reference. Entity
// sets union and resolved fields win over the unknown sentinel, so an
// enrichment with less signal never erases what earlier runs established.
func enrichTaskRef(existing model.TaskRef, task model.CandidateTask, entityUUIDs []string, now time.Time) model.TaskRef {
	ref := existing
	ref.UpdatedAt = now

	merged := make([]string, 0, len(existing.EntityUUIDs)+len(entityUUIDs))
	seen := make(map[string]bool, cap(merged))
	for _, id := range existing.EntityUUIDs {
		if !seen[id] {
			seen[id] = true
			merged = append(merged, id)
		}
	}
	for _, id := range entityUUIDs {
		if !seen[id] {
			seen[id] = true
			merged = append(merged, id)
		}
	}
	ref.EntityUUIDs = merged

	if task.Assignee != "" && task.Assignee != model.Unknown {
		ref.Assignee = task.Assignee
	}
	if task.Project != "" && task.Project != model.Unknown {
		ref.Project = task.Project
	}
	return ref
}

func findTaskRef(refs []model.TaskRef, taskID string) model.TaskRef {
	for _, ref := range refs {
		if ref.TaskID == taskID {
			return ref
		}
	}
	return model.TaskRef{TaskID: taskID}
}

func (p *Pipeline) taskEntityUUIDs(task model.CandidateTask, st runState) []string {
	var out []string
	seen := make(map[string]bool)
	for _, name := range []string{task.Assignee, task.Project} {
		if name == "" || name == model.Unknown {
			continue
		}
		if id := st.nodeByName[normalized(name, st.extraction.Entities)]; id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// normalized maps a canonical entity name back to its normalized form using
// the batch itself, so lookups stay consistent with what was merged.
func normalized(name string, entities []model.Entity) string {
	for _, e := range entities {
		if e.Name == name {
			return e.NormalizedName
		}
	}
	return ""
}
