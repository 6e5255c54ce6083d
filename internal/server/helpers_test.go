package server

import (
	"bytes"
	"image/png"
	"mime/multipart"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bis0908/naver-blog-image-downloader/internal/testutil"
	"github.com/bis0908/naver-blog-image-downloader/internal/transform"
)

// newTestServer builds a server writing derivatives into a temp dir.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	srv, err := NewServer(Config{
		CORSOrigin:  "*",
		MaxUploadMB: 10,
		OutputDir:   t.TempDir(),
		Quality:     90,
		Options:     transform.DefaultOptions(),
		Seed:        1,
	})
	require.NoError(t, err)
	return srv
}

// encodePhotoPNG renders a deterministic test photo as PNG bytes.
func encodePhotoPNG(t *testing.T, width, height int) []byte {
	t.Helper()

	cfg := testutil.DefaultPhotoConfig()
	cfg.Size = testutil.PhotoSize{Width: width, Height: height}
	img := testutil.GeneratePhoto(cfg)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// materializeInputs writes generated photos into dir for batch jobs.
func materializeInputs(t *testing.T, dir string, names ...string) []string {
	t.Helper()

	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		testutil.SavePNG(t, testutil.GeneratePhoto(testutil.DefaultPhotoConfig()), path)
		paths = append(paths, path)
	}
	return paths
}

// uploadFile is one part of a multipart upload, in body order.
type uploadFile struct {
	name string
	data []byte
}

// multipartUpload builds a multipart body with the given files and fields.
func multipartUpload(t *testing.T, files []uploadFile, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, f := range files {
		part, err := writer.CreateFormFile("images", f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}

	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

// waitForJob blocks until the job reports a terminal state.
func waitForJob(t *testing.T, job *Job, timeout time.Duration) JobStatus {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		status := job.Status()
		if status.Status != JobStateRunning {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish within %v", job.ID, timeout)
	return JobStatus{}
}
