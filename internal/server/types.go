package server

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bis0908/naver-blog-image-downloader/internal/batch"
	"github.com/bis0908/naver-blog-image-downloader/internal/transform"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	jobs        *JobRegistry
	corsOrigin  string
	maxUploadMB int64
	outputDir   string
	quality     int
	keepSources bool
	opts        transform.Options
	seed        uint64
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int
	OutputDir   string
	Quality     int
	KeepSources bool
	Options     transform.Options
	Seed        uint64
}

// Response types for API endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

type TransformResponse struct {
	Success bool          `json:"success"`
	Result  *batch.Result `json:"result,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type JobsResponse struct {
	Jobs  []JobStatus `json:"jobs"`
	Count int         `json:"count"`
}

// NewServer creates a new transform server instance.
func NewServer(config Config) (*Server, error) {
	if config.MaxUploadMB <= 0 {
		return nil, errors.New("max upload size must be positive")
	}
	if config.OutputDir == "" {
		return nil, errors.New("output directory must be set")
	}

	quality := config.Quality
	if quality <= 0 || quality > 100 {
		quality = transform.DefaultJPEGQuality
	}

	return &Server{
		jobs:        NewJobRegistry(),
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		outputDir:   config.OutputDir,
		quality:     quality,
		keepSources: config.KeepSources,
		opts:        config.Options,
		seed:        config.Seed,
	}, nil
}

// newTransformer builds a transformer, honoring a request seed over the
// server-wide one. Zero means unseeded.
func (s *Server) newTransformer(seed uint64) *transform.Transformer {
	if seed == 0 {
		seed = s.seed
	}
	if seed != 0 {
		return transform.NewSeeded(seed)
	}
	return transform.New()
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/transform", s.corsMiddleware(s.transformHandler))
	mux.HandleFunc("/batch", s.corsMiddleware(s.batchHandler))
	mux.HandleFunc("/batch/", s.corsMiddleware(s.batchJobHandler))
	mux.HandleFunc("/ws/progress", s.progressWebSocketHandler)
}
