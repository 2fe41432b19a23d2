// Package relate infers relationships among already-extracted entities.
// Single pass, no retry; validation enforces referential integrity against
// the extraction batch.
package relate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agenthands/loom/internal/core/common"
	"github.com/agenthands/loom/internal/core/model"
	"github.com/agenthands/loom/internal/core/quality"
	"github.com/agenthands/loom/internal/llm"
)

// Prompts holds the two relationship instruction templates. Pairwise is used
// for small entity sets, selective above PairwiseLimit. Each takes the
// entity list and the (truncated) text.
type Prompts struct {
	Pairwise  string `toml:"pairwise"`
	Selective string `toml:"selective"`
}

const defaultPairwisePrompt = `Consider every pair of the entities below and state the relationships the
text supports. Use short uppercase predicates like WORKS_ON, REPORTS_TO, PART_OF.
Only use entities from the list, by their exact name.
Return JSON only: {"relationships": [{"subject": "...", "predicate": "...", "object": "..."}]}

Entities:
%s

Text:
%s`

const defaultSelectivePrompt = `From the entities below, infer only the relationships the text clearly
supports. Use short uppercase predicates like WORKS_ON, REPORTS_TO, PART_OF.
Only use entities from the list, by their exact name. Skip doubtful pairs.
Return JSON only: {"relationships": [{"subject": "...", "predicate": "...", "object": "..."}]}

Entities:
%s

Text:
%s`

// Result is the stage output: accepted triples and the acceptance-rate
// quality. Rejected triples are reported through the trace only.
type Result struct {
	Triples []model.Triple
	Quality float64
}

type Synthesizer struct {
	LLM     llm.LLMClient
	Prompts Prompts
	// PairwiseLimit is the entity count at or below which the exhaustive
	// pairwise prompt is used.
	PairwiseLimit int
	// TruncateAt bounds how much raw text goes into the prompt.
	TruncateAt int
	Timeout    time.Duration
}

func NewSynthesizer(client llm.LLMClient, prompts Prompts, pairwiseLimit, truncateAt int, timeout time.Duration) *Synthesizer {
	if pairwiseLimit <= 0 {
		pairwiseLimit = 6
	}
	if truncateAt <= 0 {
		truncateAt = 4000
	}
	return &Synthesizer{
		LLM:           client,
		Prompts:       prompts,
		PairwiseLimit: pairwiseLimit,
		TruncateAt:    truncateAt,
		Timeout:       timeout,
	}
}

// Synthesize invokes the backend once and keeps only triples whose subject
// and object both name validated entities. No entities are ever created
// here. Backend failure yields an empty result with quality 0.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, entities []model.Entity, trace *model.ReasoningTrace) Result {
	if len(entities) == 0 {
		trace.Add("relationships: no entities to relate, skipping backend call")
		return Result{}
	}

	known := make(map[string]string, len(entities)) // normalized -> canonical name
	var list strings.Builder
	for _, e := range entities {
		known[e.NormalizedName] = e.Name
		fmt.Fprintf(&list, "- %s (%s)\n", e.Name, e.Type)
	}

	tmpl := s.Prompts.Pairwise
	mode := "pairwise"
	if len(entities) > s.PairwiseLimit {
		tmpl = s.Prompts.Selective
		mode = "selective"
	}
	if tmpl == "" {
		tmpl = defaultPairwisePrompt
		if mode == "selective" {
			tmpl = defaultSelectivePrompt
		}
	}
	prompt := fmt.Sprintf(tmpl, list.String(), common.Truncate(text, s.TruncateAt))

	callCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	raw, err := s.LLM.Generate(callCtx, prompt)
	if err != nil {
		trace.Add(fmt.Sprintf("relationships (%s): backend failure: %v", mode, err))
		return Result{}
	}

	parsed, err := common.ParseJSON[model.ExtractedTriples](raw)
	if err != nil {
		trace.Add(fmt.Sprintf("relationships (%s): unparseable response", mode))
		return Result{}
	}

	var accepted []model.Triple
	for _, tr := range parsed.Relationships {
		subj, subjOK := known[common.NormalizeName(tr.Subject)]
		obj, objOK := known[common.NormalizeName(tr.Object)]
		pred := strings.ToUpper(strings.TrimSpace(tr.Predicate))
		if !subjOK || !objOK || pred == "" {
			trace.Add(fmt.Sprintf("relationships: rejected triple (%s, %s, %s): endpoint not in validated entity set", tr.Subject, tr.Predicate, tr.Object))
			continue
		}
		accepted = append(accepted, model.Triple{Subject: subj, Predicate: pred, Object: obj})
	}

	q := quality.RelationScore(len(accepted), len(parsed.Relationships))
	trace.Add(fmt.Sprintf("relationships (%s): accepted %d of %d, quality=%.2f", mode, len(accepted), len(parsed.Relationships), q))

	return Result{Triples: accepted, Quality: q}
}
