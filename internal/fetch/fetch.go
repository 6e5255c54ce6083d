package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const (
	// maxStemRunes caps the filename stem derived from a URL path.
	maxStemRunes = 30

	fallbackName = "image"
	fallbackExt  = ".jpg"
)

// ProgressFunc receives download progress as a percentage in [0, 100]
// with a short human-readable message.
type ProgressFunc func(percent int, message string)

// LogFunc receives fire-and-forget log lines for a consumer surface.
type LogFunc func(message string)

// DownloadError describes a failed download of a single URL. StatusCode
// is zero when the request never produced a response.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// retryableError marks transient failures worth another attempt.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	return errors.As(err, new(*retryableError))
}

// Downloader fetches images over HTTP with bounded retries. Transient
// failures (network errors, 429, 5xx) are retried with a doubling delay;
// everything else fails the URL immediately.
type Downloader struct {
	client    *http.Client
	userAgent string
	retries   int
	backoff   time.Duration
	skipEdges bool

	progress ProgressFunc
	logf     LogFunc
}

// NewDownloader returns a Downloader with the given per-request timeout,
// retry count, and initial backoff delay. Retries counts additional
// attempts after the first.
func NewDownloader(timeout time.Duration, retries int, backoff time.Duration) *Downloader {
	return &Downloader{
		client:  &http.Client{Timeout: timeout},
		retries: retries,
		backoff: backoff,
	}
}

// WithUserAgent sets the User-Agent header sent with every request. An
// empty value leaves the default Go user agent in place.
func (d *Downloader) WithUserAgent(ua string) *Downloader {
	d.userAgent = ua
	return d
}

// WithSkipEdges enables dropping the first and last URL of every batch.
// Blog posts commonly open and close with sticker or banner images that
// are not part of the post body.
func (d *Downloader) WithSkipEdges(skip bool) *Downloader {
	d.skipEdges = skip
	return d
}

// WithCallbacks sets the progress and log callbacks. Either may be nil.
func (d *Downloader) WithCallbacks(progress ProgressFunc, logf LogFunc) *Downloader {
	d.progress = progress
	d.logf = logf
	return d
}

// Fetch downloads a single URL and returns the response bytes.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	err := d.withRetries(ctx, func() error {
		b, err := d.get(ctx, rawURL)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// FetchAll downloads urls into destDir, naming each file by ordinal and
// URL stem. Individual failures are logged and skipped; the returned
// slice holds the paths actually written, in download order. When edge
// skipping is enabled the first and last URL are dropped with a warning
// naming them. A cancelled context stops the loop and returns the
// context error alongside the paths written so far.
func (d *Downloader) FetchAll(ctx context.Context, urls []string, destDir string) ([]string, error) {
	urls = d.trimEdges(urls)
	if len(urls) == 0 {
		d.log("no images to download")
		return nil, nil
	}

	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating download directory: %w", err)
	}

	total := len(urls)
	d.log(fmt.Sprintf("downloading %d image(s)", total))
	slog.Info("download started", slog.Int("total", total), slog.String("dest_dir", destDir))

	var saved []string
	for i, rawURL := range urls {
		if err := ctx.Err(); err != nil {
			slog.Info("download cancelled", slog.Int("completed", i), slog.Int("total", total))
			return saved, err
		}

		name := FileName(rawURL, i+1)
		message := fmt.Sprintf("downloading image %d/%d", i+1, total)
		d.log(message)
		d.reportProgress(int(float64(i)/float64(total)*100), message)

		body, err := d.Fetch(ctx, rawURL)
		if err != nil {
			slog.Error("image download failed", slog.String("url", rawURL), slog.Any("error", err))
			d.log(fmt.Sprintf("failed to download %s: %v", name, err))
			continue
		}

		dest := filepath.Join(destDir, name)
		if err := os.WriteFile(dest, body, 0o600); err != nil {
			slog.Error("cannot write downloaded image", slog.String("path", dest), slog.Any("error", err))
			d.log(fmt.Sprintf("failed to save %s: %v", name, err))
			continue
		}
		saved = append(saved, dest)
		slog.Debug("saved downloaded image", slog.String("url", rawURL), slog.String("path", dest))
	}

	d.reportProgress(100, "download complete")
	failures := total - len(saved)
	if failures > 0 {
		d.log(fmt.Sprintf("finished with %d download failure(s)", failures))
	} else {
		d.log("all images downloaded")
	}
	slog.Info("download finished", slog.Int("succeeded", len(saved)), slog.Int("failed", failures))
	return saved, nil
}

// trimEdges drops the first and last URL when edge skipping is enabled.
// Two or fewer URLs leave nothing to download.
func (d *Downloader) trimEdges(urls []string) []string {
	if !d.skipEdges || len(urls) == 0 {
		return urls
	}
	if len(urls) <= 2 {
		slog.Warn("skipping edge images leaves nothing to download", slog.Int("count", len(urls)))
		d.log("too few images to skip first and last")
		return nil
	}
	slog.Warn("skipping edge images",
		slog.String("first", urls[0]),
		slog.String("last", urls[len(urls)-1]))
	d.log(fmt.Sprintf("skipping first and last image (%d remain)", len(urls)-2))
	return urls[1 : len(urls)-1]
}

// withRetries runs fn up to retries+1 times, doubling the delay after
// each transient failure. Non-transient errors return immediately.
func (d *Downloader) withRetries(ctx context.Context, fn func() error) error {
	attempts := max(d.retries, 0) + 1
	delay := d.backoff
	var lastErr error

	for i := range attempts {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}

		if i < attempts-1 {
			slog.Debug("retrying download",
				slog.Int("attempt", i+1),
				slog.Duration("delay", delay),
				slog.Any("error", err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
	}
	return lastErr
}

func (d *Downloader) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Err: err}
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &retryableError{err: &DownloadError{URL: rawURL, Err: err}}
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(rawURL, resp.StatusCode); err != nil {
		return nil, err
	}
	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "text/") {
		return nil, &DownloadError{URL: rawURL, Err: fmt.Errorf("unexpected content type %q", ct)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: &DownloadError{URL: rawURL, Err: err}}
	}
	if len(body) == 0 {
		return nil, &DownloadError{URL: rawURL, Err: errors.New("empty response body")}
	}
	return body, nil
}

func checkStatus(rawURL string, code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code >= 500 || code == http.StatusTooManyRequests:
		return &retryableError{err: &DownloadError{URL: rawURL, StatusCode: code}}
	default:
		return &DownloadError{URL: rawURL, StatusCode: code}
	}
}

// FileName derives the on-disk name for the index-th downloaded image: a
// zero-padded ordinal, the URL path's base name with its stem capped at
// 30 runes, and the original extension. URLs without a usable dotted
// base name map to NNN_image.jpg.
func FileName(rawURL string, index int) string {
	base := ""
	if u, err := url.Parse(rawURL); err == nil {
		base = path.Base(u.Path)
	}
	stem, ext, ok := splitName(base)
	if !ok {
		return fmt.Sprintf("%03d_%s%s", index, fallbackName, fallbackExt)
	}
	if runes := []rune(stem); len(runes) > maxStemRunes {
		stem = string(runes[:maxStemRunes])
	}
	return fmt.Sprintf("%03d_%s%s", index, stem, ext)
}

func splitName(base string) (stem, ext string, ok bool) {
	if base == "" || base == "." || base == "/" {
		return "", "", false
	}
	i := strings.LastIndex(base, ".")
	if i < 0 {
		return "", "", false
	}
	return base[:i], base[i:], true
}

func (d *Downloader) reportProgress(percent int, message string) {
	if d.progress != nil {
		d.progress(percent, message)
	}
}

func (d *Downloader) log(message string) {
	if d.logf != nil {
		d.logf(message)
	}
}
