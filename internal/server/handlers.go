package server

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bis0908/naver-blog-image-downloader/internal/batch"
	"github.com/bis0908/naver-blog-image-downloader/internal/transform"
	"github.com/bis0908/naver-blog-image-downloader/internal/version"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding health response: %v\n", err)
	}
}

// transformHandler runs an uploaded image set through the pipeline
// synchronously and reports the batch result.
func (s *Server) transformHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Set content length limit
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadMB*1024*1024)

	// Parse multipart form
	if err := r.ParseMultipartForm(s.maxUploadMB * 1024 * 1024); err != nil {
		s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		s.writeErrorResponse(w, "No image files provided", http.StatusBadRequest)
		return
	}

	// Validate file sizes
	for _, hdr := range files {
		if hdr.Size > s.maxUploadMB*1024*1024 {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
	}

	opts, quality, seed, err := s.transformParams(r)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	outputDir := r.FormValue("output_dir")
	if outputDir == "" {
		outputDir = s.outputDir
	}

	srcDir, err := os.MkdirTemp("", "nbid-upload-*")
	if err != nil {
		s.writeErrorResponse(w, "Failed to stage uploads", http.StatusInternalServerError)
		return
	}
	defer func() { _ = os.RemoveAll(srcDir) }()

	sources, err := saveUploads(srcDir, files)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read image data", http.StatusInternalServerError)
		return
	}

	start := time.Now()
	proc := batch.New(s.newTransformer(seed)).WithQuality(quality)
	result := proc.Process(sources, outputDir, opts, 0)
	duration := time.Since(start)

	// Record metrics
	status := "success"
	if result.FailCount > 0 {
		status = "error"
	}
	transformRequestsTotal.WithLabelValues("sync", status).Inc()
	transformDuration.WithLabelValues("sync").Observe(duration.Seconds())
	imagesProcessedTotal.WithLabelValues("success").Add(float64(result.SuccessCount))
	imagesProcessedTotal.WithLabelValues("failure").Add(float64(result.FailCount))

	writeJSON(w, http.StatusOK, TransformResponse{
		Success: result.FailCount == 0,
		Result:  &result,
	})
}

// transformParams reads option overrides from the request form.
func (s *Server) transformParams(r *http.Request) (transform.Options, int, uint64, error) {
	opts := s.opts
	for key, dst := range map[string]*bool{
		"random_size":  &opts.RandomSize,
		"random_angle": &opts.RandomAngle,
		"random_pixel": &opts.RandomPixel,
		"add_outline":  &opts.AddOutline,
	} {
		val := r.FormValue(key)
		if val == "" {
			continue
		}
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			return opts, 0, 0, fmt.Errorf("invalid %s value %q", key, val)
		}
		*dst = parsed
	}

	quality := s.quality
	if val := r.FormValue("quality"); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil || parsed < 1 || parsed > 100 {
			return opts, 0, 0, fmt.Errorf("invalid quality value %q", val)
		}
		quality = parsed
	}

	var seed uint64
	if val := r.FormValue("seed"); val != "" {
		parsed, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return opts, 0, 0, fmt.Errorf("invalid seed value %q", val)
		}
		seed = parsed
	}

	return opts, quality, seed, nil
}

// saveUploads stages multipart files in dir. Base names are kept, behind
// an ordinal prefix, so derivative names stay recognizable.
func saveUploads(dir string, files []*multipart.FileHeader) ([]string, error) {
	sources := make([]string, 0, len(files))
	for i, hdr := range files {
		name := filepath.Base(hdr.Filename)
		if name == "" || name == "." || name == string(filepath.Separator) {
			name = "upload.jpg"
		}
		dest := filepath.Join(dir, fmt.Sprintf("%02d_%s", i+1, name))

		if err := copyUpload(dest, hdr); err != nil {
			return nil, err
		}
		uploadSizeBytes.Observe(float64(hdr.Size))
		sources = append(sources, dest)
	}
	return sources, nil
}

func copyUpload(dest string, hdr *multipart.FileHeader) error {
	src, err := hdr.Open()
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	out, err := os.Create(dest) //nolint:gosec // G304: dest lives in a server-created temp dir
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	_, err = io.Copy(out, src)
	return err
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Log error, but can't send another response
		fmt.Fprintf(os.Stderr, "Error writing response: %v\n", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, TransformResponse{
		Success: false,
		Error:   message,
	})
}
