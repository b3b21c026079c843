//go:build e2e

package e2e

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairnhq/cairn/internal/domain"
	"github.com/cairnhq/cairn/internal/repository"
)

type compressData struct {
	RequestID   string `json:"request_id"`
	Items       []struct {
		Layer      string  `json:"layer"`
		SourceID   string  `json:"source_id"`
		SourceName string  `json:"source_name"`
		Content    string  `json:"content"`
		Similarity float64 `json:"similarity"`
		TokenCount int     `json:"token_count"`
	} `json:"items"`
	TotalTokens  int            `json:"total_tokens"`
	LayerCounts  map[string]int `json:"layer_counts"`
	FailedLayers []string       `json:"failed_layers"`
	ElapsedMs    int64          `json:"elapsed_ms"`
}

func TestHealthEndpoint(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	resp, err := env.Get("/health", "")
	require.NoError(t, err)

	var data map[string]string
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "ok", data["status"])
}

func TestCompressFlow(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	env.SeedItem("", domain.LayerL2, "doc-auth", 200, 0)
	env.SeedItem("", domain.LayerL2, "doc-billing", 200, 1)
	env.SeedItem("", domain.LayerL3, "topic-auth", 500, 0)
	env.SeedItem("", domain.LayerL4, "concept-auth", 50, 0)
	env.Embedder.Register("auth decisions", 0)

	resp, err := env.Post("/context", map[string]interface{}{
		"text": "auth decisions",
	}, env.APIKeyToken)
	require.NoError(t, err)

	var data compressData
	require.NoError(t, json.Unmarshal(resp.Data, &data))

	assert.NotEmpty(t, data.RequestID)
	require.Len(t, data.Items, 4)
	assert.Equal(t, 950, data.TotalTokens)
	assert.Equal(t, 0, data.LayerCounts["L1"])
	assert.Equal(t, 2, data.LayerCounts["L2"])
	assert.Equal(t, 1, data.LayerCounts["L3"])
	assert.Equal(t, 1, data.LayerCounts["L4"])
	assert.Empty(t, data.FailedLayers)

	// Aligned items score ~1.0 and rank above the orthogonal one.
	assert.InDelta(t, 1.0, data.Items[0].Similarity, 0.01)
	assert.Equal(t, "doc-billing", data.Items[3].SourceID)
	assert.InDelta(t, 0.5, data.Items[3].Similarity, 0.01)

	// The request was logged.
	var logCount int
	require.NoError(t, env.Pool.QueryRow(env.Ctx,
		`SELECT COUNT(*) FROM retrieval_logs WHERE tenant_id = $1`, env.TenantID,
	).Scan(&logCount))
	assert.Equal(t, 1, logCount)
}

func TestCompressBudget(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	env.SeedItem("", domain.LayerL2, "doc-big", 1800, 0)
	env.SeedItem("", domain.LayerL2, "doc-small", 300, 0, 1)
	env.Embedder.Register("query", 0)

	t.Run("items that do not fit are skipped, not truncated", func(t *testing.T) {
		resp, err := env.Post("/context", map[string]interface{}{
			"text":       "query",
			"max_tokens": 2000,
		}, env.APIKeyToken)
		require.NoError(t, err)

		var data compressData
		require.NoError(t, json.Unmarshal(resp.Data, &data))

		// doc-big (1800) fits, doc-small (300) no longer does.
		require.Len(t, data.Items, 1)
		assert.Equal(t, "doc-big", data.Items[0].SourceID)
		assert.Equal(t, 1800, data.TotalTokens)
	})

	t.Run("explicit zero budget yields an empty bundle", func(t *testing.T) {
		resp, err := env.Post("/context", map[string]interface{}{
			"text":       "query",
			"max_tokens": 0,
		}, env.APIKeyToken)
		require.NoError(t, err)

		var data compressData
		require.NoError(t, json.Unmarshal(resp.Data, &data))
		assert.Empty(t, data.Items)
		assert.Equal(t, 0, data.TotalTokens)
		assert.NotEmpty(t, data.RequestID)
	})
}

func TestCompressWorkspaceScope(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	env.SeedItem("", domain.LayerL2, "doc-wide", 200, 0)
	env.SeedItem("ws-1", domain.LayerL2, "doc-ws1", 200, 0)
	env.Embedder.Register("query", 0)

	t.Run("without workspace only tenant-wide items match", func(t *testing.T) {
		resp, err := env.Post("/context", map[string]interface{}{
			"text": "query",
		}, env.APIKeyToken)
		require.NoError(t, err)

		var data compressData
		require.NoError(t, json.Unmarshal(resp.Data, &data))
		require.Len(t, data.Items, 1)
		assert.Equal(t, "doc-wide", data.Items[0].SourceID)
	})

	t.Run("workspace scope widens to that workspace", func(t *testing.T) {
		resp, err := env.Post("/context", map[string]interface{}{
			"text":         "query",
			"workspace_id": "ws-1",
		}, env.APIKeyToken)
		require.NoError(t, err)

		var data compressData
		require.NoError(t, json.Unmarshal(resp.Data, &data))
		require.Len(t, data.Items, 2)
	})
}

func TestCompressValidation(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	t.Run("requires authentication", func(t *testing.T) {
		_, err := env.Post("/context", map[string]interface{}{"text": "query"}, "")
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "HTTP 401"))
	})

	t.Run("rejects blank text", func(t *testing.T) {
		_, err := env.Post("/context", map[string]interface{}{"text": "   "}, env.APIKeyToken)
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "HTTP 400"))
	})

	t.Run("rejects an unknown layer", func(t *testing.T) {
		_, err := env.Post("/context", map[string]interface{}{
			"text":   "query",
			"layers": []string{"L9"},
		}, env.APIKeyToken)
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "HTTP 400"))
	})
}

func TestTopicBrowsing(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	topic := env.SeedItem("", domain.LayerL3, "topic-auth", 500, 0)
	doc := env.SeedItem("", domain.LayerL2, "doc-auth", 200, 0)
	concept := env.SeedItem("", domain.LayerL4, "concept-auth", 50, 0)
	env.LinkTopicMember(topic.ID, doc.ID)

	itemRepo := repository.NewKnowledgeItemRepository(env.Pool)
	require.NoError(t, itemRepo.AddConceptLink(env.Ctx, concept.ID, topic.ID))

	t.Run("list topics", func(t *testing.T) {
		resp, err := env.Get("/topics", env.APIKeyToken)
		require.NoError(t, err)

		var data struct {
			Topics []struct {
				ID                string   `json:"id"`
				SourceID          string   `json:"source_id"`
				MemberDocumentIDs []string `json:"member_document_ids"`
			} `json:"topics"`
			HasMore bool `json:"has_more"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &data))
		require.Len(t, data.Topics, 1)
		assert.Equal(t, topic.ID, data.Topics[0].ID)
		assert.Equal(t, []string{"doc-auth"}, data.Topics[0].MemberDocumentIDs)
		assert.False(t, data.HasMore)
	})

	t.Run("get topic detail", func(t *testing.T) {
		resp, err := env.Get("/topics/"+topic.ID, env.APIKeyToken)
		require.NoError(t, err)

		var data struct {
			ID        string `json:"id"`
			Documents []struct {
				SourceID string `json:"source_id"`
			} `json:"documents"`
			RelatedConceptIDs []string `json:"related_concept_ids"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &data))
		assert.Equal(t, topic.ID, data.ID)
		require.Len(t, data.Documents, 1)
		assert.Equal(t, "doc-auth", data.Documents[0].SourceID)
		assert.Equal(t, []string{concept.ID}, data.RelatedConceptIDs)
	})

	t.Run("list topic documents", func(t *testing.T) {
		resp, err := env.Get("/topics/"+topic.ID+"/documents", env.APIKeyToken)
		require.NoError(t, err)

		var data struct {
			Documents []struct {
				SourceID string `json:"source_id"`
			} `json:"documents"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &data))
		require.Len(t, data.Documents, 1)
	})

	t.Run("unknown topic is 404", func(t *testing.T) {
		_, err := env.Get("/topics/00000000-0000-0000-0000-000000000000", env.APIKeyToken)
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "HTTP 404"))
	})
}
