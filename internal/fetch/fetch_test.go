package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDownloader returns a Downloader tuned for fast tests.
func newTestDownloader(retries int) *Downloader {
	return NewDownloader(5*time.Second, retries, time.Millisecond)
}

func serveImage(t *testing.T, payload []byte) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, err := w.Write(payload)
		assert.NoError(t, err)
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		index int
		want  string
	}{
		{
			name:  "plain image URL",
			url:   "https://postfiles.pstatic.net/MjAyNDA1/photo_name.jpg?type=w966",
			index: 1,
			want:  "001_photo_name.jpg",
		},
		{
			name:  "percent-encoded korean stem",
			url:   "https://postfiles.pstatic.net/%EB%A7%9B%EC%A7%91%EC%82%AC%EC%A7%84.jpg",
			index: 2,
			want:  "002_맛집사진.jpg",
		},
		{
			name:  "long stem capped at thirty runes",
			url:   "https://cdn.example.com/abcdefghij0123456789abcdefghij0123456789.png",
			index: 12,
			want:  "012_abcdefghij0123456789abcdefghij.png",
		},
		{
			name:  "no extension falls back",
			url:   "https://cdn.example.com/photo",
			index: 4,
			want:  "004_image.jpg",
		},
		{
			name:  "bare host falls back",
			url:   "https://cdn.example.com/",
			index: 5,
			want:  "005_image.jpg",
		},
		{
			name:  "dotfile keeps its extension",
			url:   "https://cdn.example.com/.hidden",
			index: 6,
			want:  "006_.hidden",
		},
		{
			name:  "unparseable URL falls back",
			url:   "://missing-scheme",
			index: 7,
			want:  "007_image.jpg",
		},
		{
			name:  "large ordinal keeps three digits",
			url:   "https://cdn.example.com/a.gif",
			index: 123,
			want:  "123_a.gif",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(tt.url, tt.index))
		})
	}
}

func TestFetch_Success(t *testing.T) {
	payload := []byte("jpeg-bytes")
	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "image/jpeg")
		_, err := w.Write(payload)
		assert.NoError(t, err)
	}))
	defer srv.Close()

	d := newTestDownloader(0).WithUserAgent("nbid-test/1.0")

	body, err := d.Fetch(context.Background(), srv.URL+"/img.jpg")
	require.NoError(t, err)
	assert.Equal(t, payload, body)
	assert.Equal(t, "nbid-test/1.0", gotUA.Load())
}

func TestFetch_RetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, err := w.Write([]byte("png-bytes"))
		assert.NoError(t, err)
	}))
	defer srv.Close()

	d := newTestDownloader(2)

	body, err := d.Fetch(context.Background(), srv.URL+"/img.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), body)
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetch_DoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := newTestDownloader(3)

	_, err := d.Fetch(context.Background(), srv.URL+"/gone.jpg")
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())

	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, http.StatusNotFound, dlErr.StatusCode)
	assert.Contains(t, dlErr.Error(), "status 404")
}

func TestFetch_ExhaustsRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := newTestDownloader(2)

	_, err := d.Fetch(context.Background(), srv.URL+"/flaky.jpg")
	require.Error(t, err)
	assert.Equal(t, int32(3), hits.Load())

	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, http.StatusServiceUnavailable, dlErr.StatusCode)
}

func TestFetch_RejectsTextContent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, err := w.Write([]byte("<html>not an image</html>"))
		assert.NoError(t, err)
	}))
	defer srv.Close()

	d := newTestDownloader(3)

	_, err := d.Fetch(context.Background(), srv.URL+"/error-page.jpg")
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.Contains(t, err.Error(), "content type")
}

func TestFetch_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newTestDownloader(0)

	_, err := d.Fetch(context.Background(), srv.URL+"/hollow.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response body")
}

func TestFetch_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(serveImage(t, []byte("jpeg-bytes")))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := newTestDownloader(1)

	_, err := d.Fetch(ctx, srv.URL+"/img.jpg")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchAll_DownloadsAndNames(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/a.jpg", serveImage(t, []byte("image-a")))
	mux.Handle("/b.png", serveImage(t, []byte("image-b")))
	mux.Handle("/c.gif", serveImage(t, []byte("image-c")))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var percents []int
	var messages []string
	d := newTestDownloader(0).WithCallbacks(
		func(percent int, message string) {
			percents = append(percents, percent)
			messages = append(messages, message)
		},
		nil,
	)

	destDir := t.TempDir()
	urls := []string{srv.URL + "/a.jpg", srv.URL + "/b.png", srv.URL + "/c.gif"}

	saved, err := d.FetchAll(context.Background(), urls, destDir)
	require.NoError(t, err)

	want := []string{
		filepath.Join(destDir, "001_a.jpg"),
		filepath.Join(destDir, "002_b.png"),
		filepath.Join(destDir, "003_c.gif"),
	}
	assert.Equal(t, want, saved)

	data, err := os.ReadFile(want[1])
	require.NoError(t, err)
	assert.Equal(t, []byte("image-b"), data)

	assert.Equal(t, []int{0, 33, 66, 100}, percents)
	assert.Contains(t, messages, "downloading image 2/3")
	assert.Equal(t, "download complete", messages[len(messages)-1])
}

func TestFetchAll_ContinuesPastFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/a.jpg", serveImage(t, []byte("image-a")))
	mux.HandleFunc("/missing.jpg", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.Handle("/c.jpg", serveImage(t, []byte("image-c")))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var logs []string
	d := newTestDownloader(0).WithCallbacks(nil, func(message string) {
		logs = append(logs, message)
	})

	destDir := t.TempDir()
	urls := []string{srv.URL + "/a.jpg", srv.URL + "/missing.jpg", srv.URL + "/c.jpg"}

	saved, err := d.FetchAll(context.Background(), urls, destDir)
	require.NoError(t, err)

	// Ordinals follow list position, so a failed URL leaves a gap.
	want := []string{
		filepath.Join(destDir, "001_a.jpg"),
		filepath.Join(destDir, "003_c.jpg"),
	}
	assert.Equal(t, want, saved)

	joined := ""
	for _, l := range logs {
		joined += l + "\n"
	}
	assert.Contains(t, joined, "failed to download 002_missing.jpg")
	assert.Contains(t, joined, "finished with 1 download failure(s)")
}

func TestFetchAll_SkipEdges(t *testing.T) {
	var edgeHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/first.jpg", func(http.ResponseWriter, *http.Request) { edgeHits.Add(1) })
	mux.HandleFunc("/last.jpg", func(http.ResponseWriter, *http.Request) { edgeHits.Add(1) })
	mux.Handle("/a.jpg", serveImage(t, []byte("image-a")))
	mux.Handle("/b.jpg", serveImage(t, []byte("image-b")))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := newTestDownloader(0).WithSkipEdges(true)

	destDir := t.TempDir()
	urls := []string{
		srv.URL + "/first.jpg",
		srv.URL + "/a.jpg",
		srv.URL + "/b.jpg",
		srv.URL + "/last.jpg",
	}

	saved, err := d.FetchAll(context.Background(), urls, destDir)
	require.NoError(t, err)

	want := []string{
		filepath.Join(destDir, "001_a.jpg"),
		filepath.Join(destDir, "002_b.jpg"),
	}
	assert.Equal(t, want, saved)
	assert.Equal(t, int32(0), edgeHits.Load())
}

func TestFetchAll_SkipEdgesWithTooFewURLs(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	var logs []string
	d := newTestDownloader(0).WithSkipEdges(true).WithCallbacks(nil, func(message string) {
		logs = append(logs, message)
	})

	saved, err := d.FetchAll(context.Background(), []string{srv.URL + "/a.jpg", srv.URL + "/b.jpg"}, t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, saved)
	assert.Equal(t, int32(0), hits.Load())
	assert.Contains(t, logs, "too few images to skip first and last")
}

func TestFetchAll_EmptyInput(t *testing.T) {
	var logs []string
	d := newTestDownloader(0).WithCallbacks(nil, func(message string) {
		logs = append(logs, message)
	})

	saved, err := d.FetchAll(context.Background(), nil, t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, saved)
	assert.Contains(t, logs, "no images to download")
}

func TestFetchAll_DestDirUncreatable(t *testing.T) {
	srv := httptest.NewServer(serveImage(t, []byte("image-a")))
	defer srv.Close()

	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	d := newTestDownloader(0)

	_, err := d.FetchAll(context.Background(), []string{srv.URL + "/a.jpg"}, blocker)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating download directory")
}

func TestFetchAll_CancelledBeforeFirstItem(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var percents []int
	d := newTestDownloader(0).WithCallbacks(func(percent int, _ string) {
		percents = append(percents, percent)
	}, nil)

	saved, err := d.FetchAll(ctx, []string{srv.URL + "/a.jpg"}, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, saved)
	assert.Empty(t, percents)
	assert.Equal(t, int32(0), hits.Load())
}
