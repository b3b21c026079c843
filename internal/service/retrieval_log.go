package service

import (
	"context"

	"github.com/cairnhq/cairn/internal/domain"
)

// RetrievalLogEntry captures one compression request for evaluation.
type RetrievalLogEntry struct {
	TenantID     string
	WorkspaceID  string
	Query        string
	Budget       int
	Layers       []domain.Layer
	ItemCount    int
	TotalTokens  int
	FailedLayers []domain.Layer
	DurationMs   int
}

// RetrievalLogRepository persists retrieval logs. Writes are best-effort
// and must never fail the request that produced them.
type RetrievalLogRepository interface {
	CreateRetrievalLog(ctx context.Context, entry RetrievalLogEntry) (string, error)
}
