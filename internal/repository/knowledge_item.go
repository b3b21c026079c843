package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cairnhq/cairn/internal/domain"
)

// KnowledgeItemRepository writes knowledge items and cluster edges. The
// retrieval engine itself is read-only; this is the surface the ingestion
// pipeline (and tests) use to populate the store.
type KnowledgeItemRepository struct {
	pool *pgxpool.Pool
}

func NewKnowledgeItemRepository(pool *pgxpool.Pool) *KnowledgeItemRepository {
	return &KnowledgeItemRepository{pool: pool}
}

func (r *KnowledgeItemRepository) Create(ctx context.Context, item *domain.KnowledgeItem) error {
	var embedding interface{}
	if item.Embedding != nil {
		embedding = pgvector.NewVector(item.Embedding)
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO knowledge_items (id, tenant_id, workspace_id, layer, source_id, source_name, content, token_count, embedding, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		item.ID, item.TenantID, nullableString(item.WorkspaceID), string(item.Layer), item.SourceID, item.SourceName, item.Content, item.TokenCount, embedding, item.CreatedAt, item.UpdatedAt,
	)
	return err
}

func (r *KnowledgeItemRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeItem, error) {
	var item domain.KnowledgeItem
	var workspaceID *string
	err := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, workspace_id, layer, source_id, source_name, content, token_count, created_at, updated_at
		 FROM knowledge_items WHERE id = $1`,
		id,
	).Scan(&item.ID, &item.TenantID, &workspaceID, &item.Layer, &item.SourceID, &item.SourceName, &item.Content, &item.TokenCount, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewDomainError(domain.ErrCodeNotFound, "knowledge item not found")
		}
		return nil, err
	}
	if workspaceID != nil {
		item.WorkspaceID = *workspaceID
	}
	return &item, nil
}

func (r *KnowledgeItemRepository) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE knowledge_items SET embedding = $1, updated_at = $2 WHERE id = $3`,
		pgvector.NewVector(embedding), time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.NewDomainError(domain.ErrCodeNotFound, "knowledge item not found")
	}
	return nil
}

func (r *KnowledgeItemRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`DELETE FROM knowledge_items WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.NewDomainError(domain.ErrCodeNotFound, "knowledge item not found")
	}
	return nil
}

// AddTopicMember links an L2 document into an L3 topic cluster.
func (r *KnowledgeItemRepository) AddTopicMember(ctx context.Context, topicID, documentID string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO topic_members (topic_id, document_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		topicID, documentID,
	)
	return err
}

// AddConceptLink links an L4 concept to a target knowledge item.
func (r *KnowledgeItemRepository) AddConceptLink(ctx context.Context, conceptID, targetID string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO concept_links (concept_id, target_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		conceptID, targetID,
	)
	return err
}
