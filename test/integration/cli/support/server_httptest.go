package support

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"

	"github.com/bis0908/naver-blog-image-downloader/internal/server"
	"github.com/bis0908/naver-blog-image-downloader/internal/transform"
)

// HTTPTestServerWrapper wraps httptest.Server for integration tests. The
// wrapped handler is the real transformation server, so scenarios exercise
// the production routes without binding a fixed port.
type HTTPTestServerWrapper struct {
	Server     *httptest.Server
	TestServer *server.Server
	OutputDir  string
}

// createTestHTTPServer mounts the transformation server on an httptest
// listener and records its address in the test context.
func (testCtx *TestContext) createTestHTTPServer() error {
	outputDir := testCtx.GetTempDir("server-output")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create server output directory: %w", err)
	}

	srv, err := server.NewServer(server.Config{
		Host:        "127.0.0.1",
		CORSOrigin:  "*",
		MaxUploadMB: 50,
		TimeoutSec:  30,
		OutputDir:   outputDir,
		Quality:     transform.DefaultJPEGQuality,
		KeepSources: true,
		Options:     transform.DefaultOptions(),
		Seed:        1,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)
	testServer := httptest.NewServer(mux)

	// Parse the URL to get host and port
	u, err := url.Parse(testServer.URL)
	if err != nil {
		testServer.Close()
		return fmt.Errorf("failed to parse server URL: %w", err)
	}

	// Update test context
	testCtx.ServerHost = u.Hostname()
	portStr := u.Port()
	if portStr != "" {
		testCtx.ServerPort, _ = strconv.Atoi(portStr)
	}

	// Store server reference for cleanup
	testCtx.HTTPTestServer = &HTTPTestServerWrapper{
		Server:     testServer,
		TestServer: srv,
		OutputDir:  outputDir,
	}

	return nil
}

// stopTestHTTPServer stops the httptest server.
func (testCtx *TestContext) stopTestHTTPServer() error {
	if testCtx.HTTPTestServer != nil && testCtx.HTTPTestServer.Server != nil {
		testCtx.HTTPTestServer.Server.Close()
		testCtx.HTTPTestServer = nil
	}
	return nil
}
