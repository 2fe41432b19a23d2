package model

import "time"

// EntityType is the closed set of entity categories the pipeline recognizes.
type EntityType string

const (
	TypePerson       EntityType = "PERSON"
	TypeProject      EntityType = "PROJECT"
	TypeOrganization EntityType = "ORGANIZATION"
	TypeDate         EntityType = "DATE"
	TypeLocation     EntityType = "LOCATION"
	TypeTopic        EntityType = "TOPIC"
)

// ValidEntityType reports whether t is one of the known categories.
func ValidEntityType(t EntityType) bool {
	switch t {
	case TypePerson, TypeProject, TypeOrganization, TypeDate, TypeLocation, TypeTopic:
		return true
	}
	return false
}

// Entity is a named thing recognized in one ContextItem. Entities are scoped
// to the extraction batch; after validation they are merged into canonical
// graph nodes.
type Entity struct {
	Name           string     `json:"name"`
	NormalizedName string     `json:"normalized_name"`
	Type           EntityType `json:"type"`
	Confidence     float64    `json:"confidence"`
	// Aliases holds normalized variants collapsed into this entity within
	// the same batch ("J. Smith" and "Jane Smith" in one message).
	Aliases []string `json:"aliases,omitempty"`
}

// AllVariants returns the normalized name plus any batch aliases.
func (e Entity) AllVariants() []string {
	out := []string{e.NormalizedName}
	for _, a := range e.Aliases {
		if a != e.NormalizedName {
			out = append(out, a)
		}
	}
	return out
}

// Node is the canonical, deduplicated record for one real-world entity
// across all processed context. Keyed by (NormalizedName, Type); Aliases
// accumulates every normalized variant ever merged into it.
type Node struct {
	UUID           string     `json:"uuid"`
	Name           string     `json:"name"`
	NormalizedName string     `json:"normalized_name"`
	Type           EntityType `json:"type"`
	Aliases        []string   `json:"aliases"`
	MentionCount   int        `json:"mention_count"`
	FirstSeen      time.Time  `json:"first_seen"`
	LastSeen       time.Time  `json:"last_seen"`
	AvgConfidence  float64    `json:"average_confidence"`
}

// HasAlias reports whether the node has seen the given normalized variant.
func (n *Node) HasAlias(normalized string) bool {
	for _, a := range n.Aliases {
		if a == normalized {
			return true
		}
	}
	return false
}
