package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cairnhq/cairn/internal/api"
	"github.com/cairnhq/cairn/internal/api/middleware"
	"github.com/cairnhq/cairn/internal/domain"
	"github.com/cairnhq/cairn/internal/service"
)

type TopicBrowseService interface {
	List(ctx context.Context, input service.ListTopicsInput) (*service.ListTopicsOutput, error)
	Get(ctx context.Context, tenantID, topicID string) (*service.TopicDetail, error)
	ListDocuments(ctx context.Context, tenantID, topicID string) ([]*domain.TopicDocument, error)
}

type TopicHandler struct {
	svc TopicBrowseService
}

func NewTopicHandler(svc TopicBrowseService) *TopicHandler {
	return &TopicHandler{svc: svc}
}

type TopicDocumentResponse struct {
	ID         string `json:"id"`
	SourceID   string `json:"source_id"`
	SourceName string `json:"source_name"`
	Content    string `json:"content"`
	TokenCount int    `json:"token_count"`
}

type TopicResponse struct {
	ID                string                   `json:"id"`
	WorkspaceID       string                   `json:"workspace_id,omitempty"`
	SourceID          string                   `json:"source_id"`
	SourceName        string                   `json:"source_name"`
	Content           string                   `json:"content"`
	TokenCount        int                      `json:"token_count"`
	MemberDocumentIDs []string                 `json:"member_document_ids"`
	Documents         []*TopicDocumentResponse `json:"documents,omitempty"`
}

type TopicListResponse struct {
	Topics  []*TopicResponse `json:"topics"`
	Cursor  string           `json:"cursor,omitempty"`
	HasMore bool             `json:"has_more"`
}

type TopicDetailResponse struct {
	TopicResponse
	RelatedConceptIDs []string `json:"related_concept_ids"`
}

type TopicDocumentsResponse struct {
	Documents []*TopicDocumentResponse `json:"documents"`
}

// List returns a page of topics for the tenant.
func (h *TopicHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	input := service.ListTopicsInput{
		TenantID:         tenantID,
		WorkspaceID:      r.URL.Query().Get("workspace_id"),
		Limit:            limit,
		Cursor:           r.URL.Query().Get("cursor"),
		IncludeDocuments: r.URL.Query().Get("include_documents") == "true",
	}

	output, err := h.svc.List(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	topics := make([]*TopicResponse, len(output.Items))
	for i, item := range output.Items {
		resp := topicToResponse(item.Topic)
		if item.Documents != nil {
			resp.Documents = documentsToResponse(item.Documents)
		}
		topics[i] = resp
	}

	api.Success(w, http.StatusOK, TopicListResponse{
		Topics:  topics,
		Cursor:  output.Cursor,
		HasMore: output.HasMore,
	})
}

// Get returns one topic with its member documents and related concepts.
func (h *TopicHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	topicID := chi.URLParam(r, "id")

	detail, err := h.svc.Get(r.Context(), tenantID, topicID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := TopicDetailResponse{
		TopicResponse:     *topicToResponse(detail.Topic),
		RelatedConceptIDs: detail.RelatedConceptIDs,
	}
	resp.Documents = documentsToResponse(detail.Documents)

	api.Success(w, http.StatusOK, resp)
}

// ListDocuments returns a topic's member document summaries.
func (h *TopicHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	topicID := chi.URLParam(r, "id")

	docs, err := h.svc.ListDocuments(r.Context(), tenantID, topicID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, TopicDocumentsResponse{Documents: documentsToResponse(docs)})
}

func topicToResponse(topic *domain.Topic) *TopicResponse {
	return &TopicResponse{
		ID:                topic.ID,
		WorkspaceID:       topic.WorkspaceID,
		SourceID:          topic.SourceID,
		SourceName:        topic.SourceName,
		Content:           topic.Content,
		TokenCount:        topic.TokenCount,
		MemberDocumentIDs: topic.MemberDocumentIDs,
	}
}

func documentsToResponse(docs []*domain.TopicDocument) []*TopicDocumentResponse {
	responses := make([]*TopicDocumentResponse, len(docs))
	for i, doc := range docs {
		responses[i] = &TopicDocumentResponse{
			ID:         doc.ID,
			SourceID:   doc.SourceID,
			SourceName: doc.SourceName,
			Content:    doc.Content,
			TokenCount: doc.TokenCount,
		}
	}
	return responses
}
