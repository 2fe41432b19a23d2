package model

// Strategy selects between the cheap and the thorough prompting approach.
type Strategy string

const (
	StrategyFast     Strategy = "fast"
	StrategyDetailed Strategy = "detailed"
)

// Analysis is the output of the context analysis stage.
type Analysis struct {
	Strategy      Strategy `json:"strategy"`
	Complexity    float64  `json:"complexity"`
	EstimatedSize int      `json:"estimated_entity_count"`
}

// ExtractedEntity is the wire shape of one entity in an LLM response.
type ExtractedEntity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ExtractedEntities is the wire shape of the entity extraction response.
type ExtractedEntities struct {
	Entities []ExtractedEntity `json:"entities"`
}

// ExtractedTriples is the wire shape of the relationship response.
type ExtractedTriples struct {
	Relationships []Triple `json:"relationships"`
}

// ExtractedTask is the wire shape of one candidate task in an LLM response.
type ExtractedTask struct {
	Title    string `json:"title"`
	Assignee string `json:"assignee,omitempty"`
	Project  string `json:"project,omitempty"`
	DueDate  string `json:"due_date,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// ExtractedTasks is the wire shape of the task synthesis response.
type ExtractedTasks struct {
	Tasks []ExtractedTask `json:"tasks"`
}

// Attempt records one iteration of the extraction retry loop. Ephemeral:
// only its contribution to the reasoning trace outlives the stage.
type Attempt struct {
	Strategy    Strategy `json:"strategy"`
	RawOutput   string   `json:"raw_output"`
	EntityCount int      `json:"entity_count"`
	Quality     float64  `json:"quality"`
}

// RecommendedAction tells the caller how to act on the pipeline's output.
type RecommendedAction string

const (
	ActionAutoExecute RecommendedAction = "auto_execute"
	ActionPropose     RecommendedAction = "propose"
	ActionClarify     RecommendedAction = "clarify"
)

// ProcessResult is the outcome of one pipeline run over one ContextItem.
type ProcessResult struct {
	ContextItemID  string            `json:"context_item_id"`
	Entities       []Node            `json:"entities"`
	Relationships  []Relationship    `json:"relationships"`
	Tasks          []TaskDecision    `json:"candidate_tasks"`
	Confidence     float64           `json:"overall_confidence"`
	Action         RecommendedAction `json:"recommended_action"`
	ReasoningTrace []string          `json:"reasoning_trace"`
}
