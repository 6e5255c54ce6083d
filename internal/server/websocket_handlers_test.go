package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bis0908/naver-blog-image-downloader/internal/batch"
	"github.com/bis0908/naver-blog-image-downloader/internal/transform"
)

func newWebSocketTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	server := newTestServer(t)
	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return server, ts
}

func wsProgressURL(ts *httptest.Server, jobID string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/progress?job=" + jobID
}

func dialProgress(t *testing.T, ts *httptest.Server, jobID string) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(wsProgressURL(ts, jobID), nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	return conn
}

func TestProgressWebSocket_UnknownJob(t *testing.T) {
	_, ts := newWebSocketTestServer(t)

	conn, resp, err := websocket.DefaultDialer.Dial(wsProgressURL(ts, "nope"), nil)
	require.Error(t, err)
	if conn != nil {
		_ = conn.Close()
	}
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProgressWebSocket_StreamsEvents(t *testing.T) {
	server, ts := newWebSocketTestServer(t)
	job := server.jobs.NewJob(batch.New(transform.New()))

	conn := dialProgress(t, ts, job.ID)

	// The current state arrives first.
	var first ProgressEvent
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, job.ID, first.JobID)
	assert.Equal(t, JobStateRunning, first.Status)
	assert.False(t, first.Done)

	// Wait until the handler has registered its subscription.
	require.Eventually(t, func() bool {
		job.mu.Lock()
		defer job.mu.Unlock()
		return len(job.subscribers) == 1
	}, 2*time.Second, 5*time.Millisecond)

	job.Progress(42, "transforming image 3/7")

	var ev ProgressEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, 42, ev.Percent)
	assert.Equal(t, "transforming image 3/7", ev.Message)
	assert.False(t, ev.Done)

	job.Complete(batch.Result{SuccessCount: 7})

	var done ProgressEvent
	require.NoError(t, conn.ReadJSON(&done))
	assert.True(t, done.Done)
	assert.Equal(t, JobStateCompleted, done.Status)
	require.NotNil(t, done.Result)
	assert.Equal(t, 7, done.Result.SuccessCount)
}

func TestProgressWebSocket_FinishedJobGetsTerminalEvent(t *testing.T) {
	server, ts := newWebSocketTestServer(t)
	job := server.jobs.NewJob(batch.New(transform.New()))
	job.Complete(batch.Result{SuccessCount: 1})

	conn := dialProgress(t, ts, job.ID)

	var ev ProgressEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.True(t, ev.Done)
	assert.Equal(t, JobStateCompleted, ev.Status)
	require.NotNil(t, ev.Result)
	assert.Equal(t, 1, ev.Result.SuccessCount)
}

func TestProgressWebSocket_CancelledJobReportsState(t *testing.T) {
	server, ts := newWebSocketTestServer(t)
	job := server.jobs.NewJob(batch.New(transform.New()))
	job.Cancel()
	job.Complete(batch.Result{Cancelled: true})

	conn := dialProgress(t, ts, job.ID)

	var ev ProgressEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.True(t, ev.Done)
	assert.Equal(t, JobStateCancelled, ev.Status)
}
