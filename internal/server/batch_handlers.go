package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bis0908/naver-blog-image-downloader/internal/batch"
	"github.com/bis0908/naver-blog-image-downloader/internal/transform"
	"github.com/bis0908/naver-blog-image-downloader/internal/utils"
)

// BatchRequest is the JSON body accepted by POST /batch. Sources come
// from an input directory, explicit paths, or both; directory entries are
// processed first, in name order.
type BatchRequest struct {
	InputDir     string          `json:"input_dir,omitempty"`
	Paths        []string        `json:"paths,omitempty"`
	OutputDir    string          `json:"output_dir,omitempty"`
	Options      map[string]bool `json:"options,omitempty"`
	Quality      int             `json:"quality,omitempty"`
	KeepSources  *bool           `json:"keep_sources,omitempty"`
	BaseProgress int             `json:"base_progress,omitempty"`
	Seed         uint64          `json:"seed,omitempty"`
}

// batchHandler creates jobs (POST) and lists them (GET).
func (s *Server) batchHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jobs := s.jobs.List()
		writeJSON(w, http.StatusOK, JobsResponse{Jobs: jobs, Count: len(jobs)})
	case http.MethodPost:
		s.createJobHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// createJobHandler starts an asynchronous batch and answers 202 with its
// initial status.
func (s *Server) createJobHandler(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	sources, err := resolveSources(req.InputDir, req.Paths)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = s.outputDir
	}

	opts := s.opts
	applyOptions(&opts, req.Options)

	quality := s.quality
	if req.Quality != 0 {
		if req.Quality < 1 || req.Quality > 100 {
			s.writeErrorResponse(w, "Quality must be between 1 and 100", http.StatusBadRequest)
			return
		}
		quality = req.Quality
	}

	keepSources := s.keepSources
	if req.KeepSources != nil {
		keepSources = *req.KeepSources
	}

	proc := batch.New(s.newTransformer(req.Seed)).
		WithQuality(quality).
		WithKeepSources(keepSources)
	job := s.jobs.NewJob(proc)
	proc.WithCallbacks(job.Progress, job.Log, nil)

	start := time.Now()
	onComplete := func(result batch.Result) {
		status := "success"
		switch {
		case result.Cancelled:
			status = "cancelled"
		case result.FailCount > 0:
			status = "error"
		}
		transformRequestsTotal.WithLabelValues("batch", status).Inc()
		transformDuration.WithLabelValues("batch").Observe(time.Since(start).Seconds())
		imagesProcessedTotal.WithLabelValues("success").Add(float64(result.SuccessCount))
		imagesProcessedTotal.WithLabelValues("failure").Add(float64(result.FailCount))
		job.Complete(result)
	}

	if err := proc.ProcessAsync(sources, outputDir, opts, req.BaseProgress, onComplete); err != nil {
		s.jobs.Remove(job.ID)
		s.writeErrorResponse(w, fmt.Sprintf("Failed to start batch: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, job.Status())
}

// batchJobHandler routes /batch/{id} and /batch/{id}/cancel requests.
func (s *Server) batchJobHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/batch/")
	parts := strings.Split(rest, "/")

	job, ok := s.jobs.Get(parts[0])
	if !ok {
		s.writeErrorResponse(w, "Unknown job", http.StatusNotFound)
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, job.Status())
	case len(parts) == 2 && parts[1] == "cancel":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		job.Cancel()
		writeJSON(w, http.StatusAccepted, job.Status())
	default:
		http.NotFound(w, r)
	}
}

// resolveSources expands an input directory and explicit paths into the
// ordered list of images to process.
func resolveSources(inputDir string, paths []string) ([]string, error) {
	var sources []string

	if inputDir != "" {
		entries, err := os.ReadDir(inputDir)
		if err != nil {
			return nil, fmt.Errorf("reading input directory: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			full := filepath.Join(inputDir, entry.Name())
			if utils.IsSupportedImage(full) {
				sources = append(sources, full)
			}
		}
	}

	sources = append(sources, paths...)

	if len(sources) == 0 {
		return nil, errors.New("no images to process")
	}
	return sources, nil
}

// applyOptions overlays request option flags onto the defaults.
func applyOptions(opts *transform.Options, overrides map[string]bool) {
	if v, ok := overrides["random_size"]; ok {
		opts.RandomSize = v
	}
	if v, ok := overrides["random_angle"]; ok {
		opts.RandomAngle = v
	}
	if v, ok := overrides["random_pixel"]; ok {
		opts.RandomPixel = v
	}
	if v, ok := overrides["add_outline"]; ok {
		opts.AddOutline = v
	}
}
