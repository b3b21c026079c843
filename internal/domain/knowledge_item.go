package domain

import (
	"fmt"
	"time"
)

// KnowledgeItem is one member of a summarization layer: a document summary
// (L2), a topic summary (L3), or a concept (L4). Content, embedding, and
// token count are produced by the ingestion pipeline and are immutable for
// the lifetime of the item; the retrieval engine only reads them.
type KnowledgeItem struct {
	ID          string
	TenantID    string
	WorkspaceID string // empty for tenant-wide items
	Layer       Layer
	SourceID    string // opaque identifier, unique within its layer and tenant
	SourceName  string
	Content     string
	TokenCount  int
	Embedding   []float32
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Topic is an L3 knowledge item together with its cluster membership.
// Membership is maintained by the external clustering process and is
// read-only here; a document may belong to any number of topics.
type Topic struct {
	KnowledgeItem
	MemberDocumentIDs []string
}

// TopicDocument is a member document summary as seen from a topic.
type TopicDocument struct {
	ID         string
	SourceID   string
	SourceName string
	Content    string
	TokenCount int
}

// ValidateKnowledgeItem validates a KnowledgeItem instance.
func ValidateKnowledgeItem(k *KnowledgeItem) error {
	if k == nil {
		return fmt.Errorf("knowledge item cannot be nil")
	}

	if k.ID == "" {
		return fmt.Errorf("knowledge item ID is required")
	}

	if k.TenantID == "" {
		return fmt.Errorf("knowledge item TenantID is required")
	}

	if k.SourceID == "" {
		return fmt.Errorf("knowledge item SourceID is required")
	}

	if k.Content == "" {
		return fmt.Errorf("knowledge item Content is required")
	}

	if k.TokenCount <= 0 {
		return fmt.Errorf("knowledge item TokenCount must be greater than 0")
	}

	if !k.Layer.IsRetrievable() {
		return fmt.Errorf("knowledge item Layer is invalid: %s", k.Layer)
	}

	return nil
}
