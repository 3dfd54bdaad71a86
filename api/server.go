package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/docutag/crawler"
	"github.com/docutag/crawler/db"
	"github.com/docutag/crawler/metrics"
	"github.com/docutag/crawler/models"
	"github.com/docutag/crawler/slug"
	"github.com/docutag/crawler/storage"
)

// Repository stores crawl runs and indexes their exercises
type Repository interface {
	SaveRun(run *models.CrawlRun) error
	GetByID(id string) (*models.CrawlRun, error)
	GetLatestByURL(url string) (*models.CrawlRun, error)
	List(limit, offset int) ([]*models.CrawlRun, error)
	Count() (int, error)
	DeleteByID(id string) error
	SearchExercises(query string, limit int) ([]models.ExerciseHit, error)
	Close() error
}

// Crawler builds a catalog for one repository
type Crawler interface {
	Crawl(ctx context.Context, opts crawler.Options) (*models.Catalog, error)
}

var _ Repository = (*db.DB)(nil)

// Server represents the API server
type Server struct {
	db          Repository
	crawler     Crawler
	storage     storage.Store
	registry    *prometheus.Registry
	addr        string
	server      *http.Server
	mux         *http.ServeMux
	corsEnabled bool
}

// Config contains server configuration
type Config struct {
	Addr          string
	DBConfig      db.Config
	CrawlerConfig crawler.Config
	StorageConfig storage.Config
	S3Config      *storage.S3Config // S3 is used instead of the filesystem when set
	CORSEnabled   bool
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:          ":8080",
		DBConfig:      db.DefaultConfig(),
		CrawlerConfig: crawler.DefaultConfig(),
		StorageConfig: storage.DefaultConfig(),
		CORSEnabled:   true,
	}
}

// NewServer creates a new API server
func NewServer(config Config) (*Server, error) {
	database, err := db.New(config.DBConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	var store storage.Store
	if config.S3Config != nil {
		store, err = storage.NewS3Storage(context.Background(), *config.S3Config)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
		slog.Info("using S3 storage", "bucket", config.S3Config.Bucket)
	} else {
		store, err = storage.New(config.StorageConfig)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		slog.Info("using filesystem storage", "path", config.StorageConfig.BasePath)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.RegisterDBStats(registry, database.DB(), "crawler"); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to register database metrics: %w", err)
	}

	crawlerInstance := crawler.New(config.CrawlerConfig, metrics.New("crawler", registry))

	return newServer(config, database, crawlerInstance, store, registry), nil
}

// newServer wires a server from its collaborators
func newServer(config Config, repo Repository, c Crawler, store storage.Store, registry *prometheus.Registry) *Server {
	s := &Server{
		db:          repo,
		crawler:     c,
		storage:     store,
		registry:    registry,
		addr:        config.Addr,
		mux:         http.NewServeMux(),
		corsEnabled: config.CORSEnabled,
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // Allow time for cloning and converting large repositories
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/crawl", s.handleCrawl)
	s.mux.HandleFunc("/api/catalogs/", s.handleCatalog) // Handles /api/catalogs/{id} and /api/catalogs/{id}/raw
	s.mux.HandleFunc("/api/catalogs", s.handleList)
	s.mux.HandleFunc("/api/exercises/search", s.handleExerciseSearch)
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

// Handler returns the instrumented root handler
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.middleware(s.mux), "crawler-api")
}

// Start starts the API server
func (s *Server) Start() error {
	slog.Info("starting API server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down API server")
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return s.db.Close()
}

// middleware applies common middleware to all routes
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.corsEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		// Skip health checks and metrics scrapes to reduce noise
		quiet := r.URL.Path == "/health" || r.URL.Path == "/metrics"
		start := time.Now()

		next.ServeHTTP(w, r)

		if !quiet {
			slog.Info("request completed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		}
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	count, err := s.db.Count()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get count")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"count":  count,
		"time":   time.Now(),
	})
}

// handleCrawl crawls one repository, reusing the latest stored run unless forced
func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.CrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	if !req.Force {
		existing, err := s.db.GetLatestByURL(req.URL)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "database error")
			return
		}
		if existing != nil {
			existing.Cached = true
			respondJSON(w, http.StatusOK, existing)
			return
		}
	}

	catalog, err := s.crawler.Crawl(r.Context(), crawler.Options{
		URL:          req.URL,
		License:      req.License,
		InginiousURL: req.InginiousURL,
	})
	if err != nil {
		slog.Error("crawl failed", "url", req.URL, "error", err)
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("crawl failed: %v", err))
		return
	}

	run := &models.CrawlRun{
		ID:            uuid.New().String(),
		URL:           req.URL,
		Slug:          slug.FromRepositoryURL(req.URL),
		ExerciseCount: len(catalog.Exercises),
		CreatedAt:     time.Now().UTC(),
		Catalog:       catalog,
	}

	// The stored copy is optional; the catalog is also kept in the database
	if data, err := json.MarshalIndent(catalog, "", "  "); err != nil {
		slog.Warn("failed to encode catalog for storage", "id", run.ID, "error", err)
	} else if path, err := s.storage.SaveCatalog(data, run.Slug+"-"+run.ID[:8]); err != nil {
		slog.Warn("failed to store catalog", "id", run.ID, "error", err)
	} else {
		run.StoragePath = path
	}

	if err := s.db.SaveRun(run); err != nil {
		slog.Error("failed to save crawl run", "id", run.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to save catalog")
		return
	}

	respondJSON(w, http.StatusOK, run)
}

// handleCatalog handles GET and DELETE on a single catalog
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/catalogs/")
	if path == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	if id, ok := strings.CutSuffix(path, "/raw"); ok {
		if r.Method != http.MethodGet {
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleRawCatalog(w, r, id)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetByID(w, r, path)
	case http.MethodDelete:
		s.handleDeleteByID(w, r, path)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleGetByID retrieves a crawl run with its catalog
func (s *Server) handleGetByID(w http.ResponseWriter, r *http.Request, id string) {
	run, err := s.db.GetByID(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	if run == nil {
		respondError(w, http.StatusNotFound, "catalog not found")
		return
	}

	run.Cached = true
	respondJSON(w, http.StatusOK, run)
}

// handleRawCatalog serves the stored catalog document
func (s *Server) handleRawCatalog(w http.ResponseWriter, r *http.Request, id string) {
	run, err := s.db.GetByID(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	if run == nil || run.StoragePath == "" {
		respondError(w, http.StatusNotFound, "catalog file not available")
		return
	}

	data, err := s.storage.ReadCatalog(run.StoragePath)
	if err != nil {
		slog.Error("failed to read stored catalog", "id", id, "path", run.StoragePath, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read catalog file")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", run.Slug+".json"))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleDeleteByID deletes a crawl run and its stored file
func (s *Server) handleDeleteByID(w http.ResponseWriter, r *http.Request, id string) {
	run, err := s.db.GetByID(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	if err := s.db.DeleteByID(id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "catalog not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete catalog")
		return
	}

	if run != nil && run.StoragePath != "" {
		if err := s.storage.DeleteCatalog(run.StoragePath); err != nil {
			slog.Warn("failed to delete stored catalog", "id", id, "path", run.StoragePath, "error", err)
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "catalog deleted successfully",
	})
}

// handleList lists crawl runs with pagination
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 20
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		fmt.Sscanf(limitStr, "%d", &limit)
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		fmt.Sscanf(offsetStr, "%d", &offset)
	}

	// Enforce reasonable limits
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	runs, err := s.db.List(limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	for _, run := range runs {
		run.Cached = true
	}

	count, _ := s.db.Count()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":   runs,
		"total":  count,
		"limit":  limit,
		"offset": offset,
	})
}

// ExerciseSearchResponse represents the response from exercise search
type ExerciseSearchResponse struct {
	Query     string               `json:"query"`
	Exercises []models.ExerciseHit `json:"exercises"`
	Count     int                  `json:"count"`
}

// handleExerciseSearch searches stored exercises by text or tag
func (s *Server) handleExerciseSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "q is required")
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		fmt.Sscanf(limitStr, "%d", &limit)
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	hits, err := s.db.SearchExercises(query, limit)
	if err != nil {
		slog.Error("exercise search failed", "query", query, "error", err)
		respondError(w, http.StatusInternalServerError, "search failed")
		return
	}

	respondJSON(w, http.StatusOK, ExerciseSearchResponse{
		Query:     query,
		Exercises: hits,
		Count:     len(hits),
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
