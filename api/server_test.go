package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/docutag/crawler"
	"github.com/docutag/crawler/db"
	"github.com/docutag/crawler/metrics"
	"github.com/docutag/crawler/models"
	"github.com/docutag/crawler/storage"
)

// memoryRepository keeps crawl runs in memory
type memoryRepository struct {
	mu   sync.Mutex
	runs map[string]*models.CrawlRun
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{runs: make(map[string]*models.CrawlRun)}
}

func (m *memoryRepository) SaveRun(run *models.CrawlRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *run
	m.runs[run.ID] = &copied
	return nil
}

func (m *memoryRepository) GetByID(id string) (*models.CrawlRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	copied := *run
	return &copied, nil
}

func (m *memoryRepository) GetLatestByURL(url string) (*models.CrawlRun, error) {
	for _, run := range m.sorted() {
		if run.URL == url {
			copied := *run
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memoryRepository) sorted() []*models.CrawlRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := make([]*models.CrawlRun, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	return runs
}

func (m *memoryRepository) List(limit, offset int) ([]*models.CrawlRun, error) {
	runs := m.sorted()
	if offset >= len(runs) {
		return []*models.CrawlRun{}, nil
	}
	runs = runs[offset:]
	if len(runs) > limit {
		runs = runs[:limit]
	}
	out := make([]*models.CrawlRun, 0, len(runs))
	for _, run := range runs {
		copied := *run
		copied.Catalog = nil
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memoryRepository) Count() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs), nil
}

func (m *memoryRepository) DeleteByID(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[id]; !ok {
		return fmt.Errorf("no catalog found with id %s: %w", id, db.ErrNotFound)
	}
	delete(m.runs, id)
	return nil
}

func (m *memoryRepository) SearchExercises(query string, limit int) ([]models.ExerciseHit, error) {
	hits := []models.ExerciseHit{}
	for _, run := range m.sorted() {
		for _, ex := range run.Catalog.Exercises {
			if strings.Contains(strings.ToLower(ex.Title), strings.ToLower(query)) {
				hits = append(hits, models.ExerciseHit{ID: ex.Title, RunID: run.ID, Title: ex.Title})
			}
		}
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *memoryRepository) Close() error { return nil }

// stubCrawler returns a fixed catalog and counts calls
type stubCrawler struct {
	mu    sync.Mutex
	calls []crawler.Options
	err   error
}

func (c *stubCrawler) Crawl(ctx context.Context, opts crawler.Options) (*models.Catalog, error) {
	c.mu.Lock()
	c.calls = append(c.calls, opts)
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return &models.Catalog{
		URL:           opts.URL,
		OwnCategories: models.OwnCategories,
		Exercises: []models.Exercise{
			{
				Title: "Recursion",
				Tags:  []models.Tag{models.AutoTag(models.AutoPlatform, crawler.PlatformINGInious)},
			},
		},
	}, nil
}

func (c *stubCrawler) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func setupTestServer(t *testing.T) (*Server, *memoryRepository, *stubCrawler) {
	t.Helper()

	store, err := storage.New(storage.Config{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	registry := prometheus.NewRegistry()
	metrics.New("crawler", registry).ObserveCrawl("success", 0)

	repo := newMemoryRepository()
	stub := &stubCrawler{}
	server := newServer(Config{Addr: ":0"}, repo, stub, store, registry)
	return server, repo, stub
}

func doRequest(t *testing.T, s *Server, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeRun(t *testing.T, w *httptest.ResponseRecorder) models.CrawlRun {
	t.Helper()
	var run models.CrawlRun
	if err := json.NewDecoder(w.Body).Decode(&run); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return run
}

func TestHandleHealth(t *testing.T) {
	server, _, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", response["status"])
	}

	w = doRequest(t, server, http.MethodPost, "/health", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestHandleCrawlValidation(t *testing.T) {
	server, _, stub := setupTestServer(t)

	tests := []struct {
		name           string
		method         string
		body           interface{}
		wantStatusCode int
		wantErrMsg     string
	}{
		{
			name:           "missing URL",
			method:         http.MethodPost,
			body:           models.CrawlRequest{},
			wantStatusCode: http.StatusBadRequest,
			wantErrMsg:     "url is required",
		},
		{
			name:           "invalid body",
			method:         http.MethodPost,
			body:           "not an object",
			wantStatusCode: http.StatusBadRequest,
			wantErrMsg:     "invalid request body",
		},
		{
			name:           "wrong method",
			method:         http.MethodGet,
			wantStatusCode: http.StatusMethodNotAllowed,
			wantErrMsg:     "method not allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, server, tt.method, "/api/crawl", tt.body)
			if w.Code != tt.wantStatusCode {
				t.Errorf("Expected status %d, got %d", tt.wantStatusCode, w.Code)
			}

			var errResp map[string]string
			if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
				t.Fatalf("Failed to decode error response: %v", err)
			}
			if errResp["error"] != tt.wantErrMsg {
				t.Errorf("Expected error %q, got %q", tt.wantErrMsg, errResp["error"])
			}
		})
	}

	if stub.callCount() != 0 {
		t.Errorf("Crawler should not be called for invalid requests, got %d calls", stub.callCount())
	}
}

func TestHandleCrawlStoresAndCaches(t *testing.T) {
	server, repo, stub := setupTestServer(t)

	req := models.CrawlRequest{
		URL:          "https://github.com/UCL-INGI/LEPL1402.git",
		License:      "CC BY-SA 4.0",
		InginiousURL: "https://inginious.info.ucl.ac.be/course/LEPL1402",
	}

	w := doRequest(t, server, http.MethodPost, "/api/crawl", req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	first := decodeRun(t, w)

	if first.Cached {
		t.Error("Fresh crawl should not be marked cached")
	}
	if first.Slug != "lepl1402" {
		t.Errorf("Expected slug lepl1402, got %q", first.Slug)
	}
	if first.ExerciseCount != 1 {
		t.Errorf("Expected 1 exercise, got %d", first.ExerciseCount)
	}
	if first.StoragePath == "" {
		t.Error("Expected catalog to be written to storage")
	}
	if stub.calls[0].License != req.License || stub.calls[0].InginiousURL != req.InginiousURL {
		t.Errorf("Options not forwarded to crawler: %+v", stub.calls[0])
	}

	// A second request reuses the stored run
	w = doRequest(t, server, http.MethodPost, "/api/crawl", req)
	second := decodeRun(t, w)
	if !second.Cached || second.ID != first.ID {
		t.Errorf("Expected cached run %s, got %+v", first.ID, second)
	}
	if stub.callCount() != 1 {
		t.Errorf("Expected 1 crawl, got %d", stub.callCount())
	}

	// Force crawls again
	req.Force = true
	w = doRequest(t, server, http.MethodPost, "/api/crawl", req)
	third := decodeRun(t, w)
	if third.ID == first.ID {
		t.Error("Forced crawl should create a new run")
	}
	if count, _ := repo.Count(); count != 2 {
		t.Errorf("Expected 2 stored runs, got %d", count)
	}
}

func TestHandleCrawlFailure(t *testing.T) {
	server, repo, stub := setupTestServer(t)
	stub.err = errors.New("clone failed")

	w := doRequest(t, server, http.MethodPost, "/api/crawl", models.CrawlRequest{URL: "https://example.com/repo.git"})
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	if count, _ := repo.Count(); count != 0 {
		t.Errorf("Failed crawl should not be stored, got %d runs", count)
	}
}

func TestHandleCatalogLifecycle(t *testing.T) {
	server, _, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodPost, "/api/crawl", models.CrawlRequest{URL: "https://example.com/course.git"})
	run := decodeRun(t, w)

	w = doRequest(t, server, http.MethodGet, "/api/catalogs/"+run.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	got := decodeRun(t, w)
	if got.Catalog == nil || len(got.Catalog.Exercises) != 1 {
		t.Errorf("Expected catalog with one exercise, got %+v", got.Catalog)
	}

	w = doRequest(t, server, http.MethodGet, "/api/catalogs/"+run.ID+"/raw", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for raw catalog, got %d", w.Code)
	}
	var raw models.Catalog
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("Failed to decode raw catalog: %v", err)
	}
	if raw.URL != "https://example.com/course.git" {
		t.Errorf("Unexpected raw catalog url %q", raw.URL)
	}

	w = doRequest(t, server, http.MethodDelete, "/api/catalogs/"+run.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 on delete, got %d", w.Code)
	}
	if _, err := server.storage.ReadCatalog(run.StoragePath); err == nil {
		t.Error("Stored catalog should be deleted")
	}

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"get deleted", http.MethodGet, "/api/catalogs/" + run.ID, http.StatusNotFound},
		{"delete deleted", http.MethodDelete, "/api/catalogs/" + run.ID, http.StatusNotFound},
		{"raw deleted", http.MethodGet, "/api/catalogs/" + run.ID + "/raw", http.StatusNotFound},
		{"missing id", http.MethodGet, "/api/catalogs/", http.StatusBadRequest},
		{"wrong method", http.MethodPut, "/api/catalogs/" + run.ID, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, server, tt.method, tt.path, nil)
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestHandleList(t *testing.T) {
	server, _, _ := setupTestServer(t)

	for _, url := range []string{"https://example.com/a.git", "https://example.com/b.git", "https://example.com/c.git"} {
		doRequest(t, server, http.MethodPost, "/api/crawl", models.CrawlRequest{URL: url})
	}

	w := doRequest(t, server, http.MethodGet, "/api/catalogs?limit=2&offset=0", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Data  []models.CrawlRun `json:"data"`
		Total int               `json:"total"`
		Limit int               `json:"limit"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if len(response.Data) != 2 {
		t.Errorf("Expected 2 runs, got %d", len(response.Data))
	}
	if response.Total != 3 {
		t.Errorf("Expected total 3, got %d", response.Total)
	}
	for _, run := range response.Data {
		if !run.Cached {
			t.Error("Listed runs should be marked cached")
		}
	}
}

func TestHandleExerciseSearch(t *testing.T) {
	server, _, _ := setupTestServer(t)
	doRequest(t, server, http.MethodPost, "/api/crawl", models.CrawlRequest{URL: "https://example.com/a.git"})

	w := doRequest(t, server, http.MethodGet, "/api/exercises/search?q=recursion", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response ExerciseSearchResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Count != 1 || response.Exercises[0].Title != "Recursion" {
		t.Errorf("Unexpected search response %+v", response)
	}

	w = doRequest(t, server, http.MethodGet, "/api/exercises/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without query, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server, _, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "crawler_crawls_total") {
		t.Error("Expected crawler metrics in /metrics output")
	}
}

func TestCORSPreflight(t *testing.T) {
	server, _, _ := setupTestServer(t)
	server.corsEnabled = true

	w := doRequest(t, server, http.MethodOptions, "/api/crawl", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}

// TestHandlerRecordsSpans verifies incoming requests are traced
func TestHandlerRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	defer otel.SetTracerProvider(previous)

	server, _, _ := setupTestServer(t)
	doRequest(t, server, http.MethodGet, "/health", nil)

	spans := recorder.Ended()
	if len(spans) == 0 {
		t.Fatal("Expected a span for the request")
	}
	if spans[0].Name() != "crawler-api" {
		t.Errorf("Expected span named crawler-api, got %q", spans[0].Name())
	}
}
