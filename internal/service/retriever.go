package service

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/cairnhq/cairn/internal/domain"
	"github.com/cairnhq/cairn/internal/telemetry"
)

// defaultCandidatePoolSize bounds the candidate pool fetched per layer
// before allocation. The allocator only ever sees this bounded pool, so
// global optimality is traded for bounded latency.
const defaultCandidatePoolSize = 20

// SearchScope narrows a similarity query: always by tenant, optionally by
// workspace.
type SearchScope struct {
	TenantID    string
	WorkspaceID string
}

// SimilarityStore is the persistent nearest-neighbor collaborator.
type SimilarityStore interface {
	SearchLayer(ctx context.Context, embedding []float32, scope SearchScope, layer domain.Layer, limit int) ([]ScoredItem, error)
}

// TopicMembershipStore resolves a topic's member document summaries,
// used for explicit topic expansion.
type TopicMembershipStore interface {
	ListTopicDocuments(ctx context.Context, tenantID, topicID string) ([]*domain.TopicDocument, error)
}

// RetrievalResult holds per-layer ranked candidates plus the layers whose
// queries failed and were degraded to empty.
type RetrievalResult struct {
	ByLayer      map[domain.Layer][]ScoredItem
	FailedLayers []domain.Layer
}

// Retriever issues one similarity query per requested layer and returns
// ranked candidate lists. Requests are read-only; per-layer queries are
// independent and run concurrently.
type Retriever struct {
	store    SimilarityStore
	topics   TopicMembershipStore
	poolSize int
}

// NewRetriever creates a Retriever with the default candidate pool size.
func NewRetriever(store SimilarityStore, topics TopicMembershipStore) *Retriever {
	return NewRetrieverWithPoolSize(store, topics, defaultCandidatePoolSize)
}

// NewRetrieverWithPoolSize creates a Retriever with an explicit per-layer
// candidate bound.
func NewRetrieverWithPoolSize(store SimilarityStore, topics TopicMembershipStore, poolSize int) *Retriever {
	if poolSize <= 0 {
		poolSize = defaultCandidatePoolSize
	}
	return &Retriever{
		store:    store,
		topics:   topics,
		poolSize: poolSize,
	}
}

// Retrieve fans out one nearest-neighbor query per requested layer and fans
// the results back in. A failing layer degrades to an empty candidate list
// and is reported in FailedLayers; only when every requested layer fails is
// the store considered unreachable and ErrRetrievalFailed returned.
//
// When expandTopics is set, each retrieved L3 topic's member documents are
// joined into the L2 pool (explicit, never automatic).
func (r *Retriever) Retrieve(ctx context.Context, embedding []float32, scope SearchScope, layers []domain.Layer, expandTopics bool) (*RetrievalResult, error) {
	result := &RetrievalResult{
		ByLayer: make(map[domain.Layer][]ScoredItem, len(layers)),
	}
	if len(layers) == 0 {
		return result, nil
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, layer := range layers {
		wg.Add(1)
		go func(layer domain.Layer) {
			defer wg.Done()

			items, err := r.store.SearchLayer(ctx, embedding, scope, layer, r.poolSize)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("retrieval degraded: layer %s query failed: %v", layer, err)
				telemetry.CaptureError(ctx, err)
				result.FailedLayers = append(result.FailedLayers, layer)
				result.ByLayer[layer] = []ScoredItem{}
				return
			}
			result.ByLayer[layer] = resolveWorkspacePrecedence(items)
		}(layer)
	}

	// The allocator needs the full pool before it can sort; this join is
	// the sole synchronization point in a request.
	wg.Wait()

	if len(result.FailedLayers) == len(layers) {
		return nil, domain.ErrRetrievalFailed
	}
	sort.Slice(result.FailedLayers, func(i, j int) bool {
		return result.FailedLayers[i].Precedence() < result.FailedLayers[j].Precedence()
	})

	if expandTopics {
		r.expandTopicMembers(ctx, scope, result)
	}

	return result, nil
}

// expandTopicMembers joins each retrieved topic's member document summaries
// into the L2 pool. Members inherit their topic's similarity; a document
// already retrieved directly at L2 keeps its better score. Expansion is
// best-effort: a membership lookup failure degrades to the unexpanded pool.
func (r *Retriever) expandTopicMembers(ctx context.Context, scope SearchScope, result *RetrievalResult) {
	if r.topics == nil {
		return
	}

	topics := result.ByLayer[domain.LayerL3]
	if len(topics) == 0 {
		return
	}

	expanded := result.ByLayer[domain.LayerL2]
	for _, topic := range topics {
		docs, err := r.topics.ListTopicDocuments(ctx, scope.TenantID, topic.Item.ID)
		if err != nil {
			log.Printf("topic expansion skipped: topic %s: %v", topic.Item.ID, err)
			telemetry.CaptureError(ctx, err)
			continue
		}
		for _, doc := range docs {
			expanded = append(expanded, ScoredItem{
				Item: &domain.KnowledgeItem{
					ID:         doc.ID,
					TenantID:   scope.TenantID,
					Layer:      domain.LayerL2,
					SourceID:   doc.SourceID,
					SourceName: doc.SourceName,
					Content:    doc.Content,
					TokenCount: doc.TokenCount,
				},
				Similarity: topic.Similarity,
			})
		}
	}

	result.ByLayer[domain.LayerL2] = dedupeBySource(expanded)
}

// resolveWorkspacePrecedence collapses duplicate sources within a layer:
// a workspace-scoped item wins over the tenant-wide item for the same
// source, ties broken by similarity.
func resolveWorkspacePrecedence(items []ScoredItem) []ScoredItem {
	if len(items) < 2 {
		return items
	}

	best := make(map[string]ScoredItem, len(items))
	order := make([]string, 0, len(items))
	for _, candidate := range items {
		sourceID := candidate.Item.SourceID
		existing, ok := best[sourceID]
		if !ok {
			best[sourceID] = candidate
			order = append(order, sourceID)
			continue
		}
		if preferCandidate(candidate, existing) {
			best[sourceID] = candidate
		}
	}

	out := make([]ScoredItem, 0, len(best))
	for _, sourceID := range order {
		out = append(out, best[sourceID])
	}
	sortBySimilarity(out)
	return out
}

func preferCandidate(candidate, existing ScoredItem) bool {
	candidateScoped := candidate.Item.WorkspaceID != ""
	existingScoped := existing.Item.WorkspaceID != ""
	if candidateScoped != existingScoped {
		return candidateScoped
	}
	return candidate.Similarity > existing.Similarity
}

// dedupeBySource keeps the highest-similarity entry per source within one
// layer's pool. Cross-layer duplicates are deliberately kept.
func dedupeBySource(items []ScoredItem) []ScoredItem {
	if len(items) < 2 {
		sortBySimilarity(items)
		return items
	}

	best := make(map[string]ScoredItem, len(items))
	order := make([]string, 0, len(items))
	for _, candidate := range items {
		sourceID := candidate.Item.SourceID
		existing, ok := best[sourceID]
		if !ok {
			best[sourceID] = candidate
			order = append(order, sourceID)
			continue
		}
		if candidate.Similarity > existing.Similarity {
			best[sourceID] = candidate
		}
	}

	out := make([]ScoredItem, 0, len(best))
	for _, sourceID := range order {
		out = append(out, best[sourceID])
	}
	sortBySimilarity(out)
	return out
}

func sortBySimilarity(items []ScoredItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Similarity > items[j].Similarity
	})
}
