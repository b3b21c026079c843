package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cairnhq/cairn/internal/domain"
	"github.com/cairnhq/cairn/internal/service"
)

// SimilarityRepository implements vector nearest-neighbor search over
// knowledge items using pgvector.
type SimilarityRepository struct {
	pool *pgxpool.Pool
}

func NewSimilarityRepository(pool *pgxpool.Pool) *SimilarityRepository {
	return &SimilarityRepository{pool: pool}
}

// SearchLayer returns the top candidates for one layer, scoped to the tenant.
// A workspace scope widens the match to tenant-wide rows plus rows tagged with
// that workspace; without one, only tenant-wide rows match. Similarity is
// 1/(1+distance), so it stays in (0, 1] with higher meaning closer.
func (r *SimilarityRepository) SearchLayer(ctx context.Context, embedding []float32, scope service.SearchScope, layer domain.Layer, limit int) ([]service.ScoredItem, error) {
	if limit <= 0 {
		limit = 20
	}

	vec := pgvector.NewVector(embedding)

	query := `
		SELECT id, tenant_id, workspace_id, layer, source_id, source_name, content, token_count, created_at, updated_at,
		       1.0 / (1.0 + (embedding <=> $1)) AS similarity
		FROM knowledge_items
		WHERE tenant_id = $2 AND layer = $3 AND embedding IS NOT NULL`
	args := []interface{}{vec, scope.TenantID, string(layer)}

	if scope.WorkspaceID != "" {
		query += fmt.Sprintf(" AND (workspace_id IS NULL OR workspace_id = $%d)", len(args)+1)
		args = append(args, scope.WorkspaceID)
	} else {
		query += " AND workspace_id IS NULL"
	}

	query += fmt.Sprintf(" ORDER BY similarity DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]service.ScoredItem, 0)
	for rows.Next() {
		var item domain.KnowledgeItem
		var workspaceID *string
		var similarity float64
		if err := rows.Scan(&item.ID, &item.TenantID, &workspaceID, &item.Layer, &item.SourceID, &item.SourceName, &item.Content, &item.TokenCount, &item.CreatedAt, &item.UpdatedAt, &similarity); err != nil {
			return nil, err
		}
		if workspaceID != nil {
			item.WorkspaceID = *workspaceID
		}
		results = append(results, service.ScoredItem{Item: &item, Similarity: similarity})
	}

	return results, rows.Err()
}
