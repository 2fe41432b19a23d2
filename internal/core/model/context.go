package model

import "time"

// SourceType classifies where a piece of raw context came from.
type SourceType string

const (
	SourceChat       SourceType = "chat"
	SourceTranscript SourceType = "transcript"
	SourceDocument   SourceType = "document"
	SourceEmail      SourceType = "email"
	SourceManual     SourceType = "manual"
)

// ContextItem is one unit of raw input text. Immutable once created; it is
// owned by a single pipeline run and persisted read-only afterwards.
type ContextItem struct {
	UUID       string     `json:"uuid"`
	Text       string     `json:"text"`
	Source     SourceType `json:"source"`
	ExternalID string     `json:"external_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
