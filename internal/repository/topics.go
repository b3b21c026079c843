package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cairnhq/cairn/internal/domain"
	"github.com/cairnhq/cairn/internal/pagination"
	"github.com/cairnhq/cairn/internal/service"
)

// TopicRepository reads the topic cluster store: L3 topic rows in
// knowledge_items plus the topic_members and concept_links join tables.
// Clustering is maintained by the ingestion pipeline; all access is read-only.
type TopicRepository struct {
	pool *pgxpool.Pool
}

func NewTopicRepository(pool *pgxpool.Pool) *TopicRepository {
	return &TopicRepository{pool: pool}
}

func (r *TopicRepository) ListTopics(ctx context.Context, tenantID, workspaceID string, cursor *pagination.Cursor, limit int) (*service.TopicPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, tenant_id, workspace_id, layer, source_id, source_name, content, token_count, created_at, updated_at
		FROM knowledge_items
		WHERE tenant_id = $1 AND layer = $2`
	args := []interface{}{tenantID, string(domain.LayerL3)}

	if workspaceID != "" {
		query += fmt.Sprintf(" AND (workspace_id IS NULL OR workspace_id = $%d)", len(args)+1)
		args = append(args, workspaceID)
	} else {
		query += " AND workspace_id IS NULL"
	}

	if cursor != nil {
		query += fmt.Sprintf(" AND (updated_at, id) < ($%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, cursor.Timestamp, cursor.LastID)
	}

	query += fmt.Sprintf(" ORDER BY updated_at DESC, id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	topics, err := scanTopicRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(topics) > limit
	if hasMore {
		topics = topics[:limit]
	}

	if err := r.attachMemberIDs(ctx, topics); err != nil {
		return nil, err
	}

	var nextCursor string
	if hasMore && len(topics) > 0 {
		lastTopic := topics[len(topics)-1]
		nextCursor = pagination.EncodeCursor(lastTopic.ID, lastTopic.UpdatedAt)
	}

	return &service.TopicPageResult{
		Items:      topics,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// GetTopic returns one L3 topic with its member document IDs. A topic
// belonging to another tenant is indistinguishable from a missing one.
func (r *TopicRepository) GetTopic(ctx context.Context, tenantID, topicID string) (*domain.Topic, error) {
	var topic domain.Topic
	var workspaceID *string
	err := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, workspace_id, layer, source_id, source_name, content, token_count, created_at, updated_at
		 FROM knowledge_items
		 WHERE id = $1 AND tenant_id = $2 AND layer = $3`,
		topicID, tenantID, string(domain.LayerL3),
	).Scan(&topic.ID, &topic.TenantID, &workspaceID, &topic.Layer, &topic.SourceID, &topic.SourceName, &topic.Content, &topic.TokenCount, &topic.CreatedAt, &topic.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTopicNotFound
		}
		return nil, err
	}
	if workspaceID != nil {
		topic.WorkspaceID = *workspaceID
	}

	topics := []*domain.Topic{&topic}
	if err := r.attachMemberIDs(ctx, topics); err != nil {
		return nil, err
	}

	return &topic, nil
}

// ListTopicDocuments returns the member document summaries of a topic.
// The tenant scope is enforced through the topic row itself, so documents
// never leak across tenants even if memberships were miswired.
func (r *TopicRepository) ListTopicDocuments(ctx context.Context, tenantID, topicID string) ([]*domain.TopicDocument, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT d.id, d.source_id, d.source_name, d.content, d.token_count
		 FROM topic_members tm
		 JOIN knowledge_items t ON t.id = tm.topic_id AND t.tenant_id = $1
		 JOIN knowledge_items d ON d.id = tm.document_id
		 WHERE tm.topic_id = $2
		 ORDER BY d.source_id`,
		tenantID, topicID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]*domain.TopicDocument, 0)
	for rows.Next() {
		var doc domain.TopicDocument
		if err := rows.Scan(&doc.ID, &doc.SourceID, &doc.SourceName, &doc.Content, &doc.TokenCount); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// ListTopicConcepts returns the IDs of L4 concepts linked to a topic.
func (r *TopicRepository) ListTopicConcepts(ctx context.Context, tenantID, topicID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT cl.concept_id
		 FROM concept_links cl
		 JOIN knowledge_items c ON c.id = cl.concept_id AND c.tenant_id = $1
		 WHERE cl.target_id = $2
		 ORDER BY cl.concept_id`,
		tenantID, topicID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	concepts := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		concepts = append(concepts, id)
	}
	return concepts, rows.Err()
}

// attachMemberIDs fans in member document source IDs for a set of topics
// with a single query.
func (r *TopicRepository) attachMemberIDs(ctx context.Context, topics []*domain.Topic) error {
	if len(topics) == 0 {
		return nil
	}

	ids := make([]string, 0, len(topics))
	byID := make(map[string]*domain.Topic, len(topics))
	for _, topic := range topics {
		topic.MemberDocumentIDs = []string{}
		ids = append(ids, topic.ID)
		byID[topic.ID] = topic
	}

	rows, err := r.pool.Query(ctx,
		`SELECT tm.topic_id, d.source_id
		 FROM topic_members tm
		 JOIN knowledge_items d ON d.id = tm.document_id
		 WHERE tm.topic_id = ANY($1)
		 ORDER BY d.source_id`,
		ids,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var topicID, sourceID string
		if err := rows.Scan(&topicID, &sourceID); err != nil {
			return err
		}
		if topic, ok := byID[topicID]; ok {
			topic.MemberDocumentIDs = append(topic.MemberDocumentIDs, sourceID)
		}
	}
	return rows.Err()
}

func scanTopicRows(rows pgx.Rows) ([]*domain.Topic, error) {
	var results []*domain.Topic
	for rows.Next() {
		var topic domain.Topic
		var workspaceID *string
		if err := rows.Scan(&topic.ID, &topic.TenantID, &workspaceID, &topic.Layer, &topic.SourceID, &topic.SourceName, &topic.Content, &topic.TokenCount, &topic.CreatedAt, &topic.UpdatedAt); err != nil {
			return nil, err
		}
		if workspaceID != nil {
			topic.WorkspaceID = *workspaceID
		}
		results = append(results, &topic)
	}
	return results, rows.Err()
}
