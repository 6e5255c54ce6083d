package batch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bis0908/naver-blog-image-downloader/internal/transform"
	"github.com/bis0908/naver-blog-image-downloader/internal/utils"
)

// DefaultBaseProgress is the customary progress floor when transformation
// runs as the second half of a download-then-transform flow.
const DefaultBaseProgress = 50

// interItemPause keeps long batches from saturating a core.
const interItemPause = 10 * time.Millisecond

// ProgressFunc receives batch progress as a percentage in [0, 100] with a
// short human-readable message.
type ProgressFunc func(percent int, message string)

// LogFunc receives fire-and-forget log lines for a consumer surface.
type LogFunc func(message string)

// CancelFunc is polled once per item; it must be cheap and non-blocking.
type CancelFunc func() bool

// Processor drives source images through the transformer one at a time,
// deleting each source as soon as its derivative is durably saved. The
// loop is strictly sequential: the background-candidate pool for item i
// depends on the deletions performed by items before it, so per-item
// parallelism would race on filesystem state.
//
// A Processor serves one batch invocation; create a new one per batch.
type Processor struct {
	transformer *transform.Transformer
	quality     int
	keepSources bool
	pause       time.Duration

	progress     ProgressFunc
	logf         LogFunc
	shouldCancel CancelFunc

	cancelRequested atomic.Bool
	running         atomic.Bool

	mu   sync.Mutex
	done chan struct{}
}

// New returns a Processor using the given transformer.
func New(t *transform.Transformer) *Processor {
	return &Processor{
		transformer: t,
		quality:     transform.DefaultJPEGQuality,
		pause:       interItemPause,
	}
}

// WithCallbacks sets the progress, log, and cancel-poll callbacks. Any of
// them may be nil.
func (p *Processor) WithCallbacks(progress ProgressFunc, logf LogFunc, shouldCancel CancelFunc) *Processor {
	p.progress = progress
	p.logf = logf
	p.shouldCancel = shouldCancel
	return p
}

// WithQuality sets the JPEG encoder quality for saved derivatives.
func (p *Processor) WithQuality(quality int) *Processor {
	p.quality = quality
	return p
}

// WithKeepSources disables the streaming delete of successfully
// transformed sources.
func (p *Processor) WithKeepSources(keep bool) *Processor {
	p.keepSources = keep
	return p
}

// Process transforms sourcePaths into outputDir sequentially. Progress is
// mapped onto [baseProgress, 100]. The returned Result carries all failure
// information; Process itself never panics or returns an error.
func (p *Processor) Process(sourcePaths []string, outputDir string, opts transform.Options, baseProgress int) Result {
	var result Result
	if len(sourcePaths) == 0 {
		p.log("no images to process")
		return result
	}
	baseProgress = min(max(baseProgress, 0), 99)

	total := len(sourcePaths)
	p.log(fmt.Sprintf("starting transformation of %d image(s)", total))
	slog.Info("batch started", slog.Int("total", total), slog.String("output_dir", outputDir))

	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		slog.Error("cannot create output directory", slog.String("dir", outputDir), slog.Any("error", err))
		p.log(fmt.Sprintf("cannot create output directory: %v", err))
		result.FailCount = total
		return result
	}

	for i, src := range sourcePaths {
		if p.cancelled() {
			result.Cancelled = true
			p.log("processing cancelled")
			slog.Info("batch cancelled", slog.Int("completed", i), slog.Int("total", total))
			break
		}

		percent := baseProgress + int(float64(i)/float64(total)*float64(100-baseProgress))
		message := fmt.Sprintf("transforming image %d/%d", i+1, total)
		p.log(message)
		p.reportProgress(percent, message)

		p.processItem(src, outputDir, sourcePaths, opts, &result)

		time.Sleep(p.pause)
	}

	if !result.Cancelled {
		p.reportProgress(100, "transformation complete")
		if result.FailCount > 0 {
			p.log(fmt.Sprintf("finished with %d failure(s)", result.FailCount))
		} else {
			p.log("all images transformed")
		}
	}
	slog.Info("batch finished",
		slog.Int("succeeded", result.SuccessCount),
		slog.Int("failed", result.FailCount),
		slog.Bool("cancelled", result.Cancelled))
	return result
}

// processItem handles one source image: load, composite over the current
// candidate pool, save, and reclaim the source on success.
func (p *Processor) processItem(src, outputDir string, sourcePaths []string, opts transform.Options, result *Result) {
	img, _, err := utils.LoadImage(src)
	if err != nil {
		p.failItem(result, src, err)
		return
	}

	composite := p.transformer.CreateLayered(img, opts, Candidates(sourcePaths, src))
	if composite == nil {
		p.failItem(result, src, errors.New("no composite produced"))
		return
	}

	dest := filepath.Join(outputDir, utils.TransformedName(src))
	written, err := transform.SaveImage(composite, dest, p.quality)
	if err != nil {
		p.failItem(result, src, err)
		return
	}

	result.SuccessCount++
	result.OutputFiles = append(result.OutputFiles, written)
	slog.Debug("saved transformed image", slog.String("source", src), slog.String("output", written))

	if p.keepSources {
		return
	}
	if err := os.Remove(src); err != nil {
		slog.Warn("could not delete source after transform", slog.String("path", src), slog.Any("error", err))
		p.log(fmt.Sprintf("warning: could not delete %s: %v", filepath.Base(src), err))
	} else {
		slog.Debug("deleted source", slog.String("path", src))
	}
}

func (p *Processor) failItem(result *Result, src string, err error) {
	result.FailCount++
	result.FailedFiles = append(result.FailedFiles, src)
	slog.Error("image transform failed", slog.String("path", src), slog.Any("error", err))
	p.log(fmt.Sprintf("failed to transform %s: %v", filepath.Base(src), err))
}

// ProcessAsync runs Process on a background goroutine and calls
// onComplete with its Result. A worker that dies before producing a
// result reports every input as failed. Returns an error if a batch is
// already running on this Processor.
func (p *Processor) ProcessAsync(sourcePaths []string, outputDir string, opts transform.Options,
	baseProgress int, onComplete func(Result),
) error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("batch already running")
	}

	done := make(chan struct{})
	p.mu.Lock()
	p.done = done
	p.mu.Unlock()

	go func() {
		result := AllFailed(sourcePaths)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("batch worker panicked", slog.Any("panic", r))
			}
			p.running.Store(false)
			if onComplete != nil {
				onComplete(result)
			}
			close(done)
		}()
		result = p.Process(sourcePaths, outputDir, opts, baseProgress)
	}()
	return nil
}

// RequestCancel asks the running batch to stop at the next item boundary.
// Idempotent; work on the current item always runs to completion first.
func (p *Processor) RequestCancel() {
	if !p.cancelRequested.Swap(true) {
		p.log("cancellation requested")
		slog.Info("batch cancellation requested")
	}
}

// IsProcessing reports whether an async batch is still running.
func (p *Processor) IsProcessing() bool {
	return p.running.Load()
}

// WaitForCompletion blocks until the async batch finishes. A timeout of
// zero or less waits indefinitely. Returns false if the timeout elapsed
// first.
func (p *Processor) WaitForCompletion(timeout time.Duration) bool {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return true
	}
	if timeout <= 0 {
		<-done
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// CleanupFailedFiles removes the named artifacts best-effort. Missing
// files are ignored; other failures are logged, never raised.
func (p *Processor) CleanupFailedFiles(paths []string) {
	for _, path := range paths {
		err := os.Remove(path)
		switch {
		case err == nil:
			slog.Info("removed failed artifact", slog.String("path", path))
		case !os.IsNotExist(err):
			slog.Warn("could not remove failed artifact", slog.String("path", path), slog.Any("error", err))
		}
	}
}

func (p *Processor) cancelled() bool {
	if p.cancelRequested.Load() {
		return true
	}
	return p.shouldCancel != nil && p.shouldCancel()
}

func (p *Processor) reportProgress(percent int, message string) {
	if p.progress != nil {
		p.progress(percent, message)
	}
}

func (p *Processor) log(message string) {
	if p.logf != nil {
		p.logf(message)
	}
}
