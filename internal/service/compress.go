package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/cairnhq/cairn/internal/domain"
	"github.com/cairnhq/cairn/internal/telemetry"
)

// EmbeddingClient defines the interface for generating query embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// RetrieverInterface defines the multi-layer retrieval collaborator
type RetrieverInterface interface {
	Retrieve(ctx context.Context, embedding []float32, scope SearchScope, layers []domain.Layer, expandTopics bool) (*RetrievalResult, error)
}

// ContextItem is one selected knowledge item view. Similarity is rounded
// to 3 decimal places for display; ranking used the unrounded value.
type ContextItem struct {
	Layer      domain.Layer
	SourceID   string
	SourceName string
	Content    string
	Similarity float64
	TokenCount int
}

// CompressedContext is the request-scoped response of context compression.
type CompressedContext struct {
	RequestID    string
	Items        []ContextItem
	TotalTokens  int
	LayerCounts  map[domain.Layer]int
	FailedLayers []domain.Layer
	Elapsed      time.Duration
}

// ContextService orchestrates context compression: validate, embed,
// retrieve per layer, allocate under budget, and fold summary statistics.
// Every call is read-only against the knowledge store and recomputes the
// embedding; caching, if desired, belongs to the caller.
type ContextService struct {
	embedding EmbeddingClient
	retriever RetrieverInterface
}

// NewContextService creates a new ContextService instance
func NewContextService(embedding EmbeddingClient, retriever RetrieverInterface) *ContextService {
	return &ContextService{
		embedding: embedding,
		retriever: retriever,
	}
}

// Compress turns a free-text query into a token-bounded bundle of the most
// relevant knowledge. Validation failures reject the request before any
// store access.
func (s *ContextService) Compress(ctx context.Context, query domain.ContextQuery) (*CompressedContext, error) {
	start := time.Now()

	if err := query.Normalize(); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "ContextService.Compress", telemetry.SpanAttributes{
		TenantID:    query.TenantID,
		WorkspaceID: query.WorkspaceID,
		Operation:   "compress",
	})
	defer span.End()

	budget := query.Budget()
	if budget == 0 {
		return s.assemble(nil, nil, start), nil
	}

	vector, err := s.embedding.GenerateEmbedding(ctx, query.Text)
	if err != nil {
		span.SetError(err)
		var derr *domain.DomainError
		if errors.As(err, &derr) {
			return nil, err
		}
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUnavailable, "embedding provider unavailable", err)
	}

	scope := SearchScope{TenantID: query.TenantID, WorkspaceID: query.WorkspaceID}
	result, err := s.retriever.Retrieve(ctx, vector, scope, query.Layers, query.IncludeTopicMembers)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	selected := AllocateBudget(result.ByLayer, budget)
	return s.assemble(selected, result.FailedLayers, start), nil
}

func (s *ContextService) assemble(selected []ScoredItem, failedLayers []domain.Layer, start time.Time) *CompressedContext {
	out := &CompressedContext{
		RequestID: uuid.NewString(),
		Items:     make([]ContextItem, 0, len(selected)),
		LayerCounts: map[domain.Layer]int{
			domain.LayerL1: 0, // reserved, never served
			domain.LayerL2: 0,
			domain.LayerL3: 0,
			domain.LayerL4: 0,
		},
		FailedLayers: failedLayers,
	}

	for _, candidate := range selected {
		item := candidate.Item
		out.Items = append(out.Items, ContextItem{
			Layer:      item.Layer,
			SourceID:   item.SourceID,
			SourceName: item.SourceName,
			Content:    item.Content,
			Similarity: roundSimilarity(candidate.Similarity),
			TokenCount: item.TokenCount,
		})
		out.TotalTokens += item.TokenCount
		out.LayerCounts[item.Layer]++
	}

	out.Elapsed = time.Since(start)
	return out
}

func roundSimilarity(similarity float64) float64 {
	return math.Round(similarity*1000) / 1000
}
