// Package extract runs the quality-gated entity extraction loop against the
// text-generation backend.
package extract

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

// Prompts holds the per-strategy instruction templates. Each template takes
// the estimated entity count and the raw text.
type Prompts struct {
	Fast     string `toml:"fast"`
	Detailed string `toml:"detailed"`
}

const defaultFastPrompt = `Extract the named entities from the text below. Expect roughly %d of them.
Allowed types: PERSON, PROJECT, ORGANIZATION, DATE, LOCATION, TOPIC.
Return JSON only: {"entities": [{"name": "...", "type": "PERSON"}]}

Text:
%s`

const defaultDetailedPrompt = `Carefully read the text below and extract every named entity, including
indirect references and abbreviations. Expect roughly %d entities.
Allowed types: PERSON, PROJECT, ORGANIZATION, DATE, LOCATION, TOPIC.
For each entity use the most specific name mentioned in the text.
Return JSON only, no commentary: {"entities": [{"name": "...", "type": "PERSON"}]}

Text:
%s`

// Result is the stage output: the validated entity list, the final quality,
// and every attempt for the reasoning trace.
type Result struct {
	Entities []model.Entity
	Quality  float64
	Attempts []model.Attempt
}

type Extractor struct {
	LLM              llm.LLMClient
	Prompts          Prompts
	QualityThreshold float64
	MaxRetries       int
	Timeout          time.Duration
}

func NewExtractor(client llm.LLMClient, prompts Prompts, threshold float64, maxRetries int, timeout time.Duration) *Extractor {
	if threshold <= 0 {
		threshold = 0.7
	}
	if maxRetries < 0 {
		maxRetries = 2
	}
	return &Extractor{
		LLM:              client,
		Prompts:          prompts,
		QualityThreshold: threshold,
		MaxRetries:       maxRetries,
		Timeout:          timeout,
	}
}

// Extract runs at most MaxRetries+1 attempts. A failed attempt always
// escalates to the detailed template on retry, and the last attempt's output
// is used regardless of its quality. Backend failures and unparseable output
// count as zero-entity attempts; this never returns an error.
func (e *Extractor) Extract(ctx context.Context, text string, analysis model.Analysis, trace *model.ReasoningTrace) Result {
	var result Result

	for attempt := 0; attempt <= e.MaxRetries; attempt++ {
		strategy := analysis.Strategy
		if attempt > 0 {
			strategy = model.StrategyDetailed
		}

		raw, err := e.generate(ctx, e.prompt(strategy, analysis.EstimatedSize, text))
		if err != nil {
			trace.Add(fmt.Sprintf("extraction attempt %d (%s): backend failure: %v", attempt+1, strategy, err))
			raw = ""
		}

		entities, invalidType, emptyName := parseEntities(raw)
		q := quality.ExtractionScore(len(entities)+invalidType+emptyName, analysis.EstimatedSize, invalidType, emptyName)

		for i := range entities {
			entities[i].Confidence = q
		}

		result.Entities = entities
		result.Quality = q
		result.Attempts = append(result.Attempts, model.Attempt{
			Strategy:    strategy,
			RawOutput:   raw,
			EntityCount: len(entities),
			Quality:     q,
		})

		trace.Add(fmt.Sprintf("extraction attempt %d (%s): %d entities, quality=%.2f", attempt+1, strategy, len(entities), q))

		if q >= e.QualityThreshold {
			break
		}
		if attempt < e.MaxRetries {
			trace.Add("extraction: quality below threshold, retrying with detailed template")
		}
	}

	return result
}

func (e *Extractor) prompt(strategy model.Strategy, estimated int, text string) string {
	tmpl := e.Prompts.Fast
	if strategy == model.StrategyDetailed {
		tmpl = e.Prompts.Detailed
	}
	if tmpl == "" {
		tmpl = defaultFastPrompt
		if strategy == model.StrategyDetailed {
			tmpl = defaultDetailedPrompt
		}
	}
	return fmt.Sprintf(tmpl, estimated, text)
}

func (e *Extractor) generate(ctx context.Context, prompt string) (string, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	return e.LLM.Generate(ctx, prompt)
}

// parseEntities tolerates surrounding non-JSON text and treats parse failure
// as zero entities. Entities with empty names or unknown types are counted
// for the accuracy score but dropped from the validated list. The list is
// unique by (normalized name, type); repeats from the backend collapse.
func parseEntities(raw string) (entities []model.Entity, invalidType, emptyName int) {
	if raw == "" {
		return nil, 0, 0
	}
	parsed, err := common.ParseJSON[model.ExtractedEntities](raw)
	if err != nil {
		return nil, 0, 0
	}

	seen := make(map[string]bool)
	for _, e := range parsed.Entities {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			emptyName++
			continue
		}
		etype := model.EntityType(strings.ToUpper(strings.TrimSpace(e.Type)))
		if !model.ValidEntityType(etype) {
			invalidType++
			continue
		}
		normalized := common.NormalizeName(name)
		key := normalized + "|" + string(etype)
		if seen[key] {
			continue
		}
		seen[key] = true
		entities = append(entities, model.Entity{
			Name:           name,
			NormalizedName: normalized,
			Type:           etype,
		})
	}
	return entities, invalidType, emptyName
}
