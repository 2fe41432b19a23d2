// Package tasksynth generates candidate tasks grounded in the validated
// entity set. Single pass; downstream confidence scoring owns quality
// decisions, not this stage.
package tasksynth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	corecommon "github.com/agenthands/loom/internal/core/common"
	"github.com/agenthands/loom/internal/core/model"
	"github.com/agenthands/loom/internal/core/quality"
	"github.com/agenthands/loom/internal/llm"
)

const defaultPrompt = `Identify actionable tasks in the text below. Ground every task in the known
entities: assignee must be one of the known people, project one of the known
projects. If no known entity fits a field, use "unknown" - never invent names.
Express due dates as they appear in the text.
Return JSON only: {"tasks": [{"title": "...", "assignee": "...", "project": "...", "due_date": "...", "priority": "low|medium|high"}]}

Known people:
%s
Known projects:
%s

Text:
%s`

// Result is the stage output: grounded candidate tasks and the
// field-resolution quality.
type Result struct {
	Tasks   []model.CandidateTask
	Quality float64
}

type Synthesizer struct {
	LLM        llm.LLMClient
	Prompt     string
	TruncateAt int
	Timeout    time.Duration

	dates *when.Parser
}

func NewSynthesizer(client llm.LLMClient, prompt string, truncateAt int, timeout time.Duration) *Synthesizer {
	if truncateAt <= 0 {
		truncateAt = 4000
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Synthesizer{
		LLM:        client,
		Prompt:     prompt,
		TruncateAt: truncateAt,
		Timeout:    timeout,
		dates:      w,
	}
}

// Synthesize invokes the backend once and resolves task fields against the
// entity set. Unresolvable fields get the unknown sentinel instead of a
// fabricated name. Backend failure yields an empty result with quality 0.
// The reference time anchors relative due dates ("by Friday").
func (s *Synthesizer) Synthesize(ctx context.Context, text string, entities []model.Entity, ref time.Time, trace *model.ReasoningTrace) Result {
	people := make(map[string]string)
	projects := make(map[string]string)
	var peopleNames, projectNames []string
	for _, e := range entities {
		switch e.Type {
		case model.TypePerson:
			people[e.NormalizedName] = e.Name
			peopleNames = append(peopleNames, e.Name)
		case model.TypeProject:
			projects[e.NormalizedName] = e.Name
			projectNames = append(projectNames, e.Name)
		}
	}

	tmpl := s.Prompt
	if tmpl == "" {
		tmpl = defaultPrompt
	}
	prompt := fmt.Sprintf(tmpl, nameList(peopleNames), nameList(projectNames), corecommon.Truncate(text, s.TruncateAt))

	callCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	raw, err := s.LLM.Generate(callCtx, prompt)
	if err != nil {
		trace.Add(fmt.Sprintf("tasks: backend failure: %v", err))
		return Result{}
	}

	parsed, err := corecommon.ParseJSON[model.ExtractedTasks](raw)
	if err != nil {
		trace.Add("tasks: unparseable response")
		return Result{}
	}

	var tasks []model.CandidateTask
	for _, t := range parsed.Tasks {
		title := strings.TrimSpace(t.Title)
		if title == "" {
			trace.Add("tasks: dropped candidate with empty title")
			continue
		}
		task := model.CandidateTask{
			Title:    title,
			Assignee: resolveField(t.Assignee, people),
			Project:  resolveField(t.Project, projects),
			Priority: strings.ToLower(strings.TrimSpace(t.Priority)),
			DueDate:  s.resolveDueDate(t.DueDate, ref),
		}
		tasks = append(tasks, task)
	}

	q := quality.TaskScore(tasks)
	trace.Add(fmt.Sprintf("tasks: %d candidates, resolution quality=%.2f", len(tasks), q))

	return Result{Tasks: tasks, Quality: q}
}

// resolveField maps a backend-provided name onto the known entity set, or
// the unknown sentinel. Names are never carried through unverified.
func resolveField(value string, known map[string]string) string {
	v := corecommon.NormalizeName(value)
	if v == "" || v == model.Unknown {
		return model.Unknown
	}
	if canonical, ok := known[v]; ok {
		return canonical
	}
	return model.Unknown
}

// resolveDueDate tries a strict date first, then natural language relative
// to the reference time.
func (s *Synthesizer) resolveDueDate(value string, ref time.Time) *time.Time {
	v := strings.TrimSpace(value)
	if v == "" || strings.EqualFold(v, model.Unknown) {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, v); err == nil {
			return &ts
		}
	}
	if r, err := s.dates.Parse(v, ref); err == nil && r != nil {
		return &r.Time
	}
	return nil
}

func nameList(names []string) string {
	if len(names) == 0 {
		return "- (none)"
	}
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	return b.String()
}
