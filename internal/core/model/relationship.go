package model

import "time"

// Triple is one subject-predicate-object assertion inferred from a single
// ContextItem, expressed in entity names (not node ids). Both endpoints must
// name entities validated in the same extraction batch.
type Triple struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// Relationship is a directed, typed edge between two graph nodes. Strength
// is re-aggregated on every observation and decays with elapsed time since
// LastSeen when read.
type Relationship struct {
	UUID         string    `json:"uuid"`
	SubjectUUID  string    `json:"subject_uuid"`
	Predicate    string    `json:"predicate"`
	ObjectUUID   string    `json:"object_uuid"`
	Strength     float64   `json:"strength"`
	MentionCount int       `json:"mention_count"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
}
