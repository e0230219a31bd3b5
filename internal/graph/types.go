// internal/graph/types.go
package graph

import (
	"time"

	"gorm.io/gorm"
)

// Node is a typed entity in the temporal knowledge graph, keyed by (Name, UserID).
type Node struct {
	ID         uint           `gorm:"primaryKey" json:"-"`
	Name       string         `gorm:"size:120;not null;uniqueIndex:idx_node_identity" json:"name"`
	UserID     string         `gorm:"size:64;not null;uniqueIndex:idx_node_identity;index" json:"user_id"`
	NodeType   string         `gorm:"size:64;index" json:"node_type"`
	Properties string         `gorm:"type:text" json:"properties"` // JSON-encoded map[string]interface{}
	CreatedAt  time.Time      `json:"created_at"`
	LastSeen   time.Time      `json:"last_seen"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Node) TableName() string { return "graph_nodes" }

// Edge is a dynamically-labeled relationship between two nodes.
// Invariant: only the most recent edge per (FromName,ToName,Label) has IsActive=true
// once InvalidateRelationships has run for that (entity,label).
type Edge struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	FromName           string         `gorm:"size:120;index:idx_edge_from" json:"from"`
	ToName             string         `gorm:"size:120;index:idx_edge_to" json:"to"`
	UserID             string         `gorm:"size:64;index" json:"user_id"`
	Label              string         `gorm:"size:64;index" json:"label"` // sanitized UPPER_SNAKE
	Confidence         float64        `json:"confidence"`
	Properties         string         `gorm:"type:text" json:"properties"`
	SourceConversation string         `gorm:"size:64" json:"source_conversation_id"`
	IsActive           bool           `gorm:"index" json:"is_active"`
	CreatedAt          time.Time      `json:"created_at"`
	InvalidatedAt      *time.Time     `json:"invalidated_at,omitempty"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Edge) TableName() string { return "graph_edges" }

// SalientNodeTypes are the node types eligible for the fallback
// "most-connected-recent-nodes" neighborhood when no entry points match.
var SalientNodeTypes = []string{
	"technology", "framework", "programming_language", "tool", "error_type",
	"project", "decision",
}

// Confidence tier markers used by format_context_for_prompt.
const (
	tierHighMarker   = "●"
	tierMediumMarker = "○"
	tierLowMarker    = "◌"
)

// PathHop describes one hop of a traversal result used for formatting/scoring.
type PathHop struct {
	Node       string  `json:"node"`
	Via        string  `json:"via,omitempty"` // intermediate node on a two-hop path
	Edge1Label string  `json:"edge1_label"`
	Edge2Label string  `json:"edge2_label,omitempty"`
	Confidence float64 `json:"confidence"` // multiplied across hops
	IsActive   bool    `json:"is_active"`
	LearnedAt  time.Time `json:"learned_at"`
}

// EntityResult is one entity returned from a graph search, with its best paths.
type EntityResult struct {
	Name            string    `json:"name"`
	NodeType        string    `json:"node_type"`
	Paths           []PathHop `json:"paths"`
	Community       string    `json:"community"`
	CommunityMembers []string `json:"community_members"`
}

// SearchResult is the full output of search_by_query.
type SearchResult struct {
	Entities []EntityResult `json:"entities"`
	Fallback bool           `json:"fallback"` // true if no entry points matched
}
