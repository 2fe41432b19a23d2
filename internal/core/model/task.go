package model

import "time"

// Unknown is the sentinel for task fields that could not be resolved against
// the validated entity set. Stages never fabricate names to avoid it.
const Unknown = "unknown"

// CandidateTask is a task proposal grounded in extracted entities. It becomes
// a persisted task only through the external task-board collaborator.
type CandidateTask struct {
	Title    string     `json:"title"`
	Assignee string     `json:"assignee"`
	Project  string     `json:"project"`
	DueDate  *time.Time `json:"due_date,omitempty"`
	Priority string     `json:"priority,omitempty"`
}

// TaskRef is the graph-side record of an externally persisted task: its id,
// the entity nodes it references, and the fields the matcher scores against.
type TaskRef struct {
	TaskID      string    `json:"task_id"`
	Title       string    `json:"title"`
	EntityUUIDs []string  `json:"entity_uuids"`
	Assignee    string    `json:"assignee,omitempty"`
	Project     string    `json:"project,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MatchOutcome says what to do with one candidate task.
type MatchOutcome string

const (
	MatchCreate MatchOutcome = "create_new"
	MatchEnrich MatchOutcome = "enrich_existing"
)

// TaskDecision pairs a candidate task with the matcher's verdict.
type TaskDecision struct {
	Task           CandidateTask `json:"task"`
	Outcome        MatchOutcome  `json:"outcome"`
	ExistingTaskID string        `json:"existing_task_id,omitempty"`
	Score          float64       `json:"score"`
}
