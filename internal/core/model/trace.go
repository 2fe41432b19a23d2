package model

// ReasoningTrace is the ordered, append-only record of why each stage made
// its decisions. It belongs to one ContextItem and is never mutated after the
// pipeline completes.
type ReasoningTrace struct {
	lines []string
}

// Add appends one decision record.
func (t *ReasoningTrace) Add(line string) {
	t.lines = append(t.lines, line)
}

// Lines returns a copy of the recorded lines in order.
func (t *ReasoningTrace) Lines() []string {
	out := make([]string, len(t.lines))
	copy(out, t.lines)
	return out
}
