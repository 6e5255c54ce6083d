package progress

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Reporter consumes updates from long-running stages. Stages report
// percentages in [0, 100] with a short human-readable message; 100 means
// the stage ran to completion, cancelled stages never reach it.
type Reporter interface {
	// Start is called once before the first update.
	Start(label string)

	// Update is called with monotonically non-decreasing percentages.
	Update(percent int, message string)

	// Done is called when the stage ends, completed or not.
	Done()
}

// Bind adapts a Reporter to the plain callback signature the batch and
// fetch layers take.
func Bind(r Reporter) func(percent int, message string) {
	if r == nil {
		return func(int, string) {}
	}
	return r.Update
}

// NoOp implements Reporter and does nothing.
type NoOp struct{}

func (NoOp) Start(string)       {}
func (NoOp) Update(int, string) {}
func (NoOp) Done()              {}

// Console renders a single-line progress bar.
type Console struct {
	writer         io.Writer
	width          int
	updateInterval time.Duration
	showETA        bool

	mutex      sync.Mutex
	label      string
	lastUpdate time.Time
	startTime  time.Time
}

// NewConsole creates a console reporter. A nil writer defaults to stderr.
func NewConsole(writer io.Writer) *Console {
	if writer == nil {
		writer = os.Stderr
	}
	return &Console{
		writer:         writer,
		width:          40,
		updateInterval: 100 * time.Millisecond,
		showETA:        true,
	}
}

// WithWidth sets the progress bar width.
func (c *Console) WithWidth(width int) *Console {
	c.width = width
	return c
}

// WithUpdateInterval sets how frequently the bar redraws.
func (c *Console) WithUpdateInterval(interval time.Duration) *Console {
	c.updateInterval = interval
	return c
}

// WithETA toggles the remaining-time estimate.
func (c *Console) WithETA(show bool) *Console {
	c.showETA = show
	return c
}

func (c *Console) Start(label string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.label = label
	c.startTime = time.Now()
	c.lastUpdate = time.Time{}

	_, _ = fmt.Fprintf(c.writer, "%s\n", label)
}

func (c *Console) Update(percent int, message string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	if now.Sub(c.lastUpdate) < c.updateInterval && percent < 100 {
		return
	}
	c.lastUpdate = now

	c.drawBar(percent, message, now)
}

func (c *Console) Done() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	elapsed := time.Since(c.startTime)
	_, _ = fmt.Fprintf(c.writer, "\n%s finished in %v\n", c.label, elapsed.Round(time.Millisecond))
}

func (c *Console) drawBar(percent int, message string, now time.Time) {
	percent = min(max(percent, 0), 100)
	filled := c.width * percent / 100

	bar := strings.Repeat("█", filled) + strings.Repeat("░", c.width-filled)
	status := fmt.Sprintf("\r[%s] %3d%% %s", bar, percent, message)

	if c.showETA && percent > 0 && percent < 100 {
		elapsed := now.Sub(c.startTime)
		if elapsed > 0 {
			eta := time.Duration(float64(elapsed) * float64(100-percent) / float64(percent))
			status += fmt.Sprintf(" ETA: %v", eta.Round(time.Second))
		}
	}

	_, _ = fmt.Fprint(c.writer, status)
}

// Log reports progress through slog at a fixed percent granularity.
type Log struct {
	logger *slog.Logger
	level  slog.Level
	step   int

	mutex      sync.Mutex
	label      string
	lastLogged int
	startTime  time.Time
}

// NewLog creates a log-based reporter. A nil logger defaults to slog.Default.
func NewLog(logger *slog.Logger, level slog.Level) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		logger: logger,
		level:  level,
		step:   10,
	}
}

// WithStep sets the minimum percent distance between log lines.
func (l *Log) WithStep(step int) *Log {
	if step > 0 {
		l.step = step
	}
	return l
}

func (l *Log) Start(label string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.label = label
	l.lastLogged = -l.step
	l.startTime = time.Now()
	l.logger.Log(context.Background(), l.level, "stage started", slog.String("stage", label))
}

func (l *Log) Update(percent int, message string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if percent-l.lastLogged < l.step && percent != 100 {
		return
	}
	l.lastLogged = percent

	l.logger.Log(context.Background(), l.level, "stage progress",
		slog.String("stage", l.label),
		slog.Int("percent", percent),
		slog.String("message", message),
		slog.Duration("elapsed", time.Since(l.startTime).Round(time.Millisecond)),
	)
}

func (l *Log) Done() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.logger.Log(context.Background(), l.level, "stage finished",
		slog.String("stage", l.label),
		slog.Duration("elapsed", time.Since(l.startTime).Round(time.Millisecond)),
	)
}

// Multi fans updates out to several reporters.
type Multi struct {
	reporters []Reporter
}

// NewMulti creates a reporter that forwards to every given reporter.
func NewMulti(reporters ...Reporter) *Multi {
	return &Multi{reporters: reporters}
}

// Add appends another reporter.
func (m *Multi) Add(r Reporter) {
	m.reporters = append(m.reporters, r)
}

func (m *Multi) Start(label string) {
	for _, r := range m.reporters {
		r.Start(label)
	}
}

func (m *Multi) Update(percent int, message string) {
	for _, r := range m.reporters {
		r.Update(percent, message)
	}
}

func (m *Multi) Done() {
	for _, r := range m.reporters {
		r.Done()
	}
}

// Throttled wraps a reporter and drops updates arriving faster than the
// minimum interval. Updates at 100 percent always pass through.
type Throttled struct {
	wrapped     Reporter
	minInterval time.Duration

	mutex      sync.Mutex
	lastUpdate time.Time
}

// NewThrottled creates a throttled wrapper around another reporter.
func NewThrottled(wrapped Reporter, minInterval time.Duration) *Throttled {
	return &Throttled{wrapped: wrapped, minInterval: minInterval}
}

func (t *Throttled) Start(label string) {
	t.wrapped.Start(label)
}

func (t *Throttled) Update(percent int, message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	now := time.Now()
	if percent == 100 || t.lastUpdate.IsZero() || now.Sub(t.lastUpdate) >= t.minInterval {
		t.lastUpdate = now
		t.wrapped.Update(percent, message)
	}
}

func (t *Throttled) Done() {
	t.wrapped.Done()
}

// Tracker keeps the latest progress state for polling consumers such as
// the job status endpoint.
type Tracker struct {
	mutex sync.RWMutex
	state State
}

// State is a point-in-time snapshot of a stage.
type State struct {
	Label     string    `json:"label,omitempty"`
	Percent   int       `json:"percent"`
	Message   string    `json:"message,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Finished  bool      `json:"finished"`
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) Start(label string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	now := time.Now()
	t.state = State{Label: label, StartedAt: now, UpdatedAt: now}
}

func (t *Tracker) Update(percent int, message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.state.Percent = percent
	t.state.Message = message
	t.state.UpdatedAt = time.Now()
}

func (t *Tracker) Done() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.state.Finished = true
	t.state.UpdatedAt = time.Now()
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return t.state
}
