//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairnhq/cairn/internal/domain"
	"github.com/cairnhq/cairn/internal/service"
	"github.com/cairnhq/cairn/internal/testutil"
)

const embeddingDims = 1536

// basisEmbedding builds a unit vector with ones at the given dimensions.
// Identical vectors score 1.0, orthogonal ones 0.5.
func basisEmbedding(dims ...int) []float32 {
	vec := make([]float32, embeddingDims)
	for _, d := range dims {
		vec[d] = 1
	}
	return vec
}

func seedTenant(ctx context.Context, t *testing.T, repo *TenantRepository, name string) *domain.Tenant {
	tenant := &domain.Tenant{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repo.Create(ctx, tenant))
	return tenant
}

func seedItem(ctx context.Context, t *testing.T, repo *KnowledgeItemRepository, tenantID, workspaceID string, layer domain.Layer, sourceID string, tokens int, embedding []float32) *domain.KnowledgeItem {
	now := time.Now().UTC().Truncate(time.Microsecond)
	item := &domain.KnowledgeItem{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		WorkspaceID: workspaceID,
		Layer:       layer,
		SourceID:    sourceID,
		SourceName:  "Item " + sourceID,
		Content:     "content for " + sourceID,
		TokenCount:  tokens,
		Embedding:   embedding,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, repo.Create(ctx, item))
	return item
}

func sourceIDs(items []service.ScoredItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.Item.SourceID
	}
	return ids
}

func TestSimilarityRepository_SearchLayer(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	tenantRepo := NewTenantRepository(pool)
	itemRepo := NewKnowledgeItemRepository(pool)
	simRepo := NewSimilarityRepository(pool)

	tenant := seedTenant(ctx, t, tenantRepo, "search-tenant")
	query := basisEmbedding(0)

	seedItem(ctx, t, itemRepo, tenant.ID, "", domain.LayerL2, "doc-exact", 200, basisEmbedding(0))
	seedItem(ctx, t, itemRepo, tenant.ID, "", domain.LayerL2, "doc-near", 200, basisEmbedding(0, 1))
	seedItem(ctx, t, itemRepo, tenant.ID, "", domain.LayerL2, "doc-far", 200, basisEmbedding(2))
	seedItem(ctx, t, itemRepo, tenant.ID, "", domain.LayerL3, "topic-exact", 500, basisEmbedding(0))
	seedItem(ctx, t, itemRepo, tenant.ID, "", domain.LayerL2, "doc-no-embedding", 200, nil)

	results, err := simRepo.SearchLayer(ctx, query, service.SearchScope{TenantID: tenant.ID}, domain.LayerL2, 10)
	require.NoError(t, err)

	require.Equal(t, []string{"doc-exact", "doc-near", "doc-far"}, sourceIDs(results))
	assert.InDelta(t, 1.0, results[0].Similarity, 0.001)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
	assert.Greater(t, results[1].Similarity, results[2].Similarity)
	for _, item := range results {
		assert.Equal(t, domain.LayerL2, item.Item.Layer)
		assert.Greater(t, item.Similarity, 0.0)
		assert.LessOrEqual(t, item.Similarity, 1.0)
	}
}

func TestSimilarityRepository_SearchLayer_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	tenantRepo := NewTenantRepository(pool)
	itemRepo := NewKnowledgeItemRepository(pool)
	simRepo := NewSimilarityRepository(pool)

	tenantA := seedTenant(ctx, t, tenantRepo, "tenant-a")
	tenantB := seedTenant(ctx, t, tenantRepo, "tenant-b")

	seedItem(ctx, t, itemRepo, tenantA.ID, "", domain.LayerL2, "doc-a", 200, basisEmbedding(0))
	seedItem(ctx, t, itemRepo, tenantB.ID, "", domain.LayerL2, "doc-b", 200, basisEmbedding(0))

	results, err := simRepo.SearchLayer(ctx, basisEmbedding(0), service.SearchScope{TenantID: tenantA.ID}, domain.LayerL2, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"doc-a"}, sourceIDs(results))
}

func TestSimilarityRepository_SearchLayer_WorkspaceScope(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	tenantRepo := NewTenantRepository(pool)
	itemRepo := NewKnowledgeItemRepository(pool)
	simRepo := NewSimilarityRepository(pool)

	tenant := seedTenant(ctx, t, tenantRepo, "ws-tenant")

	seedItem(ctx, t, itemRepo, tenant.ID, "", domain.LayerL2, "doc-wide", 200, basisEmbedding(0))
	seedItem(ctx, t, itemRepo, tenant.ID, "ws-1", domain.LayerL2, "doc-ws1", 200, basisEmbedding(0))
	seedItem(ctx, t, itemRepo, tenant.ID, "ws-2", domain.LayerL2, "doc-ws2", 200, basisEmbedding(0))

	t.Run("no workspace matches only tenant-wide rows", func(t *testing.T) {
		results, err := simRepo.SearchLayer(ctx, basisEmbedding(0), service.SearchScope{TenantID: tenant.ID}, domain.LayerL2, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"doc-wide"}, sourceIDs(results))
	})

	t.Run("workspace scope widens to tenant-wide plus that workspace", func(t *testing.T) {
		results, err := simRepo.SearchLayer(ctx, basisEmbedding(0), service.SearchScope{TenantID: tenant.ID, WorkspaceID: "ws-1"}, domain.LayerL2, 10)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"doc-wide", "doc-ws1"}, sourceIDs(results))
	})
}

func TestSimilarityRepository_SearchLayer_Limit(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	tenantRepo := NewTenantRepository(pool)
	itemRepo := NewKnowledgeItemRepository(pool)
	simRepo := NewSimilarityRepository(pool)

	tenant := seedTenant(ctx, t, tenantRepo, "limit-tenant")
	for i := 0; i < 5; i++ {
		seedItem(ctx, t, itemRepo, tenant.ID, "", domain.LayerL4, "concept-"+uuid.NewString(), 50, basisEmbedding(i))
	}

	results, err := simRepo.SearchLayer(ctx, basisEmbedding(0), service.SearchScope{TenantID: tenant.ID}, domain.LayerL4, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
