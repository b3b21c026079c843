package service

import (
	"context"

	"github.com/cairnhq/cairn/internal/domain"
	"github.com/cairnhq/cairn/internal/pagination"
	"github.com/cairnhq/cairn/internal/telemetry"
)

// TopicPageResult is one page of topics from the cluster store.
type TopicPageResult struct {
	Items      []*domain.Topic
	NextCursor string
	HasMore    bool
}

// TopicRepository defines the topic cluster store interface. Clustering is
// maintained by an external process; everything here is read-only.
type TopicRepository interface {
	ListTopics(ctx context.Context, tenantID, workspaceID string, cursor *pagination.Cursor, limit int) (*TopicPageResult, error)
	GetTopic(ctx context.Context, tenantID, topicID string) (*domain.Topic, error)
	ListTopicDocuments(ctx context.Context, tenantID, topicID string) ([]*domain.TopicDocument, error)
	ListTopicConcepts(ctx context.Context, tenantID, topicID string) ([]string, error)
}

// ListTopicsInput represents input for topic listing
type ListTopicsInput struct {
	TenantID    string
	WorkspaceID string
	Limit       int
	Cursor      string
	// IncludeDocuments inlines each topic's member document summaries.
	IncludeDocuments bool
}

// TopicListItem is a topic projection for browsing.
type TopicListItem struct {
	Topic     *domain.Topic
	Documents []*domain.TopicDocument // populated only when requested
}

// ListTopicsOutput represents output from topic listing
type ListTopicsOutput struct {
	Items   []*TopicListItem
	Cursor  string
	HasMore bool
}

// TopicDetail is a single topic with its membership and concept edges.
type TopicDetail struct {
	Topic             *domain.Topic
	Documents         []*domain.TopicDocument
	RelatedConceptIDs []string
}

// TopicService exposes the browse-topics capability outside the
// context-compression flow.
type TopicService struct {
	repo TopicRepository
}

// NewTopicService creates a new TopicService instance
func NewTopicService(repo TopicRepository) *TopicService {
	return &TopicService{repo: repo}
}

// List returns a page of topics for the tenant, optionally narrowed by
// workspace and optionally inlining member documents.
func (s *TopicService) List(ctx context.Context, input ListTopicsInput) (*ListTopicsOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "TopicService.List", telemetry.SpanAttributes{
		TenantID:    input.TenantID,
		WorkspaceID: input.WorkspaceID,
		Operation:   "topics_list",
	})
	defer span.End()

	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}

	page, err := s.repo.ListTopics(ctx, input.TenantID, input.WorkspaceID, cursor, limit)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	items := make([]*TopicListItem, 0, len(page.Items))
	for _, topic := range page.Items {
		item := &TopicListItem{Topic: topic}
		if input.IncludeDocuments {
			docs, err := s.repo.ListTopicDocuments(ctx, input.TenantID, topic.ID)
			if err != nil {
				span.SetError(err)
				return nil, err
			}
			item.Documents = docs
		}
		items = append(items, item)
	}

	return &ListTopicsOutput{
		Items:   items,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	}, nil
}

// Get returns one topic with its member documents and related concepts.
// A topic belonging to another tenant reports TopicNotFound.
func (s *TopicService) Get(ctx context.Context, tenantID, topicID string) (*TopicDetail, error) {
	ctx, span := telemetry.StartSpan(ctx, "TopicService.Get", telemetry.SpanAttributes{
		TenantID:  tenantID,
		Operation: "topics_get",
	})
	defer span.End()

	if topicID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "topic ID is required")
	}

	topic, err := s.repo.GetTopic(ctx, tenantID, topicID)
	if err != nil {
		return nil, err
	}

	docs, err := s.repo.ListTopicDocuments(ctx, tenantID, topicID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	concepts, err := s.repo.ListTopicConcepts(ctx, tenantID, topicID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	return &TopicDetail{
		Topic:             topic,
		Documents:         docs,
		RelatedConceptIDs: concepts,
	}, nil
}

// ListDocuments returns a topic's member document summaries.
func (s *TopicService) ListDocuments(ctx context.Context, tenantID, topicID string) ([]*domain.TopicDocument, error) {
	if topicID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "topic ID is required")
	}

	// Existence (and tenant ownership) check first so a missing topic is
	// reported as not-found rather than an empty list.
	if _, err := s.repo.GetTopic(ctx, tenantID, topicID); err != nil {
		return nil, err
	}

	return s.repo.ListTopicDocuments(ctx, tenantID, topicID)
}
