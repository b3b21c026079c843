//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cairnhq/cairn/internal/api/handlers"
	"github.com/cairnhq/cairn/internal/domain"
	"github.com/cairnhq/cairn/internal/repository"
	"github.com/cairnhq/cairn/internal/server"
	"github.com/cairnhq/cairn/internal/service"
	"github.com/cairnhq/cairn/internal/testutil"
)

const embeddingDims = 1536

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	Embedder     *stubEmbedder
	TenantID     string
	APIKeyToken  string
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with a container-backed
// store and an in-process server. Embeddings come from a deterministic stub
// so tests never talk to an external provider.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	embedder := newStubEmbedder()
	serverURL, serverCloser := startServer(t, pool, embedder, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		Embedder:     embedder,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// Bootstrap creates a tenant and API key for testing
func (e *E2ETestEnv) Bootstrap() {
	tenantResp, err := e.Post("/tenants", map[string]string{"name": "E2E Test Tenant"}, "")
	if err != nil {
		e.T.Fatalf("failed to create tenant: %v", err)
	}

	var tenantData struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(tenantResp.Data, &tenantData); err != nil {
		e.T.Fatalf("failed to parse tenant response: %v", err)
	}
	e.TenantID = tenantData.ID

	keyResp, err := e.Post("/apikeys", map[string]string{
		"tenant_id": e.TenantID,
		"name":      "e2e-test-key",
	}, "")
	if err != nil {
		e.T.Fatalf("failed to create API key: %v", err)
	}

	var keyData struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(keyResp.Data, &keyData); err != nil {
		e.T.Fatalf("failed to parse key response: %v", err)
	}
	e.APIKeyToken = keyData.Token
}

// SeedItem inserts a knowledge item with an embedding aligned to the given
// basis dimensions.
func (e *E2ETestEnv) SeedItem(workspaceID string, layer domain.Layer, sourceID string, tokens int, dims ...int) *domain.KnowledgeItem {
	repo := repository.NewKnowledgeItemRepository(e.Pool)
	now := time.Now().UTC().Truncate(time.Microsecond)
	item := &domain.KnowledgeItem{
		ID:          uuid.NewString(),
		TenantID:    e.TenantID,
		WorkspaceID: workspaceID,
		Layer:       layer,
		SourceID:    sourceID,
		SourceName:  "Item " + sourceID,
		Content:     "content for " + sourceID,
		TokenCount:  tokens,
		Embedding:   basisEmbedding(dims...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.Create(e.Ctx, item); err != nil {
		e.T.Fatalf("failed to seed item %s: %v", sourceID, err)
	}
	return item
}

// LinkTopicMember links a document into a topic cluster.
func (e *E2ETestEnv) LinkTopicMember(topicID, documentID string) {
	repo := repository.NewKnowledgeItemRepository(e.Pool)
	if err := repo.AddTopicMember(e.Ctx, topicID, documentID); err != nil {
		e.T.Fatalf("failed to link topic member: %v", err)
	}
}

// basisEmbedding builds a unit vector with ones at the given dimensions.
func basisEmbedding(dims ...int) []float32 {
	vec := make([]float32, embeddingDims)
	for _, d := range dims {
		vec[d] = 1
	}
	return vec
}

// stubEmbedder returns registered vectors for known query texts so tests
// control similarity exactly.
type stubEmbedder struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{vectors: make(map[string][]float32)}
}

// Register maps a query text to an embedding aligned to the given basis
// dimensions.
func (s *stubEmbedder) Register(text string, dims ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[text] = basisEmbedding(dims...)
}

func (s *stubEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if vec, ok := s.vectors[text]; ok {
		return vec, nil
	}
	return basisEmbedding(), nil
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, authToken string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil, authToken)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest("POST", path, body, authToken)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, authToken string) (*APIResponse, error) {
	url := e.ServerURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}

// startServer starts the HTTP server with all handlers
func startServer(t *testing.T, pool *pgxpool.Pool, embedder *stubEmbedder, port int) (string, func()) {
	tenantRepo := repository.NewTenantRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	similarityRepo := repository.NewSimilarityRepository(pool)
	topicRepo := repository.NewTopicRepository(pool)
	retrievalLogRepo := repository.NewRetrievalLogRepository(pool)

	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(tenantRepo, apiKeyRepo, uuidGen)
	topicSvc := service.NewTopicService(topicRepo)
	retriever := service.NewRetriever(similarityRepo, topicRepo)
	contextSvc := service.NewContextService(embedder, retriever)

	cfg := server.RouterConfig{
		AuthValidator:  authSvc,
		ContextHandler: handlers.NewContextHandler(contextSvc, retrievalLogRepo),
		TopicHandler:   handlers.NewTopicHandler(topicSvc),
		AuthHandler:    handlers.NewAuthHandler(authSvc),
	}

	router := server.NewRouter(cfg)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
