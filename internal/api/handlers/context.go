package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cairnhq/cairn/internal/api"
	"github.com/cairnhq/cairn/internal/api/middleware"
	"github.com/cairnhq/cairn/internal/domain"
	"github.com/cairnhq/cairn/internal/service"
)

type CompressService interface {
	Compress(ctx context.Context, query domain.ContextQuery) (*service.CompressedContext, error)
}

type ContextHandler struct {
	svc     CompressService
	logRepo service.RetrievalLogRepository
}

func NewContextHandler(svc CompressService, logRepo service.RetrievalLogRepository) *ContextHandler {
	return &ContextHandler{svc: svc, logRepo: logRepo}
}

type CompressRequest struct {
	Text                string   `json:"text"`
	WorkspaceID         string   `json:"workspace_id,omitempty"`
	MaxTokens           *int     `json:"max_tokens,omitempty"`
	Layers              []string `json:"layers,omitempty"`
	IncludeTopicMembers bool     `json:"include_topic_members,omitempty"`
}

type ContextItemResponse struct {
	Layer      string  `json:"layer"`
	SourceID   string  `json:"source_id"`
	SourceName string  `json:"source_name"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
	TokenCount int     `json:"token_count"`
}

type CompressResponse struct {
	RequestID    string                 `json:"request_id"`
	Items        []*ContextItemResponse `json:"items"`
	TotalTokens  int                    `json:"total_tokens"`
	LayerCounts  map[domain.Layer]int   `json:"layer_counts"`
	FailedLayers []domain.Layer         `json:"failed_layers,omitempty"`
	ElapsedMs    int64                  `json:"elapsed_ms"`
}

// Compress turns a free-text query into a token-bounded context bundle.
func (h *ContextHandler) Compress(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CompressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	layers := make([]domain.Layer, 0, len(req.Layers))
	for _, layer := range req.Layers {
		layers = append(layers, domain.Layer(layer))
	}

	query := domain.ContextQuery{
		Text:                req.Text,
		TenantID:            tenantID,
		WorkspaceID:         req.WorkspaceID,
		MaxTokens:           req.MaxTokens,
		Layers:              layers,
		IncludeTopicMembers: req.IncludeTopicMembers,
	}

	result, err := h.svc.Compress(r.Context(), query)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*ContextItemResponse, len(result.Items))
	for i, item := range result.Items {
		items[i] = &ContextItemResponse{
			Layer:      string(item.Layer),
			SourceID:   item.SourceID,
			SourceName: item.SourceName,
			Content:    item.Content,
			Similarity: item.Similarity,
			TokenCount: item.TokenCount,
		}
	}

	if h.logRepo != nil {
		requestedLayers := query.Layers
		if len(requestedLayers) == 0 {
			requestedLayers = domain.RetrievableLayers
		}
		budget := domain.DefaultMaxTokens
		if req.MaxTokens != nil {
			budget = *req.MaxTokens
			if budget < 0 {
				budget = 0
			}
			if budget > domain.MaxTokensCeiling {
				budget = domain.MaxTokensCeiling
			}
		}
		entry := service.RetrievalLogEntry{
			TenantID:     tenantID,
			WorkspaceID:  req.WorkspaceID,
			Query:        req.Text,
			Budget:       budget,
			Layers:       requestedLayers,
			ItemCount:    len(result.Items),
			TotalTokens:  result.TotalTokens,
			FailedLayers: result.FailedLayers,
			DurationMs:   int(result.Elapsed.Milliseconds()),
		}
		// Best-effort; a failed log write never fails the request.
		_, _ = h.logRepo.CreateRetrievalLog(r.Context(), entry)
	}

	api.Success(w, http.StatusOK, CompressResponse{
		RequestID:    result.RequestID,
		Items:        items,
		TotalTokens:  result.TotalTokens,
		LayerCounts:  result.LayerCounts,
		FailedLayers: result.FailedLayers,
		ElapsedMs:    result.Elapsed.Milliseconds(),
	})
}
