package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cairnhq/cairn/internal/service"
)

// RetrievalLogRepository stores retrieval logs for evaluation/feedback loops.
type RetrievalLogRepository struct {
	pool *pgxpool.Pool
}

func NewRetrievalLogRepository(pool *pgxpool.Pool) *RetrievalLogRepository {
	return &RetrievalLogRepository{pool: pool}
}

func (r *RetrievalLogRepository) CreateRetrievalLog(ctx context.Context, entry service.RetrievalLogEntry) (string, error) {
	layersJSON, _ := json.Marshal(entry.Layers)
	failedJSON, _ := json.Marshal(entry.FailedLayers)

	var id string
	err := r.pool.QueryRow(ctx,
		`INSERT INTO retrieval_logs (tenant_id, workspace_id, query, budget, layers, item_count, total_tokens, failed_layers, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		entry.TenantID,
		nullableString(entry.WorkspaceID),
		entry.Query,
		entry.Budget,
		layersJSON,
		entry.ItemCount,
		entry.TotalTokens,
		failedJSON,
		entry.DurationMs,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
