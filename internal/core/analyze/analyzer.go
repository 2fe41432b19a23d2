// Package analyze inspects raw context text and picks an extraction
// strategy. Pure heuristics, no LLM call, no retry.
package analyze

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/agenthands/loom/internal/core/model"
)

// vocab flags task/work oriented text; its presence raises complexity.
var vocab = []string{
	"deadline", "report", "meeting", "review", "deploy", "release",
	"budget", "schedule", "milestone", "blocker", "follow up", "action item",
	"deliverable", "spec", "design", "migration", "incident",
}

type Analyzer struct {
	// ComplexityThreshold is the complexity at or above which the detailed
	// strategy is selected.
	ComplexityThreshold float64
}

func NewAnalyzer(threshold float64) *Analyzer {
	if threshold <= 0 {
		threshold = 0.6
	}
	return &Analyzer{ComplexityThreshold: threshold}
}

// Analyze computes a complexity score from text signals and chooses a
// strategy. Returns the analysis and the stage quality. Deterministic given
// the same input.
func (a *Analyzer) Analyze(text string, source model.SourceType, trace *model.ReasoningTrace) (model.Analysis, float64) {
	words := strings.Fields(text)
	properNouns := countProperNouns(words)
	sentences := countSentences(text)
	techHits := countVocab(text)

	lengthScore := clamp(float64(len(text)) / 2000.0)
	densityScore := clamp(float64(properNouns) / float64(max(len(words), 1)) * 5.0)
	techScore := clamp(float64(techHits) / 3.0)
	topicScore := clamp(float64(sentences) / 10.0)

	complexity := 0.3*lengthScore + 0.3*densityScore + 0.2*techScore + 0.2*topicScore

	strategy := model.StrategyFast
	reason := "below threshold"
	if complexity >= a.ComplexityThreshold {
		strategy = model.StrategyDetailed
		reason = "complexity above threshold"
	}
	if source == model.SourceTranscript {
		strategy = model.StrategyDetailed
		reason = "multi-party transcript source"
	}

	estimated := properNouns
	if estimated < 1 {
		estimated = 1
	}

	stageQuality := 1.0
	if len(words) < 5 {
		// Too little signal to trust the heuristics.
		stageQuality = 0.5
	}

	trace.Add(fmt.Sprintf(
		"analysis: complexity=%.2f (length=%.2f density=%.2f vocab=%.2f topics=%.2f), strategy=%s (%s), estimated entities=%d",
		complexity, lengthScore, densityScore, techScore, topicScore, strategy, reason, estimated))

	return model.Analysis{
		Strategy:      strategy,
		Complexity:    complexity,
		EstimatedSize: estimated,
	}, stageQuality
}

// countProperNouns counts capitalized words that do not open a sentence.
func countProperNouns(words []string) int {
	count := 0
	sentenceStart := true
	for _, w := range words {
		r := []rune(w)
		if len(r) == 0 {
			continue
		}
		if unicode.IsUpper(r[0]) && !sentenceStart {
			count++
		}
		sentenceStart = strings.ContainsAny(w, ".!?")
	}
	return count
}

func countSentences(text string) int {
	n := 0
	for _, c := range text {
		if c == '.' || c == '!' || c == '?' {
			n++
		}
	}
	if n == 0 && len(strings.TrimSpace(text)) > 0 {
		n = 1
	}
	return n
}

func countVocab(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, term := range vocab {
		if strings.Contains(lower, term) {
			n++
		}
	}
	return n
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
