package support

import (
	"bytes"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	"github.com/cucumber/godog"
)

// anImageServerHostingImages starts an httptest server that serves the
// given number of generated photos under /blog/.
func (testCtx *TestContext) anImageServerHostingImages(count int) error {
	if testCtx.ImageServer != nil {
		testCtx.ImageServer.Close()
		testCtx.ImageServer = nil
	}

	images := make(map[string][]byte, count)
	names := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		name := fmt.Sprintf("picture_%02d.png", i)

		var buf bytes.Buffer
		if err := png.Encode(&buf, generateSamplePhoto(i)); err != nil {
			return fmt.Errorf("failed to encode hosted image %s: %w", name, err)
		}
		images["/blog/"+name] = buf.Bytes()
		names = append(names, name)
	}

	testCtx.ImageServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := images[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	testCtx.ImageNames = names
	testCtx.OutputDir = testCtx.GetTempDir("downloads")
	return nil
}

// writeManifest writes one URL per line, with a leading comment, and
// records the path for {manifest} substitution.
func (testCtx *TestContext) writeManifest(urls []string) error {
	var sb strings.Builder
	sb.WriteString("# image urls captured from a blog post\n")
	for _, u := range urls {
		sb.WriteString(u)
		sb.WriteString("\n")
	}

	manifestPath := filepath.Join(testCtx.TempDir, "manifest.txt")
	if err := os.WriteFile(manifestPath, []byte(sb.String()), 0o600); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	testCtx.ManifestPath = manifestPath
	return nil
}

// aManifestListingTheHostedImages writes a manifest pointing at every
// image the scenario server hosts.
func (testCtx *TestContext) aManifestListingTheHostedImages() error {
	if testCtx.ImageServer == nil {
		return fmt.Errorf("no image server running; start one before writing a manifest")
	}

	urls := make([]string, 0, len(testCtx.ImageNames))
	for _, name := range testCtx.ImageNames {
		urls = append(urls, testCtx.ImageServer.URL+"/blog/"+name)
	}
	return testCtx.writeManifest(urls)
}

// aManifestThatAlsoListsAMissingImage appends one URL the server answers
// with 404, so downloads partially fail.
func (testCtx *TestContext) aManifestThatAlsoListsAMissingImage() error {
	if testCtx.ImageServer == nil {
		return fmt.Errorf("no image server running; start one before writing a manifest")
	}

	urls := make([]string, 0, len(testCtx.ImageNames)+1)
	for _, name := range testCtx.ImageNames {
		urls = append(urls, testCtx.ImageServer.URL+"/blog/"+name)
	}
	urls = append(urls, testCtx.ImageServer.URL+"/blog/missing.png")
	return testCtx.writeManifest(urls)
}

// RegisterFetchSteps registers download scenario steps.
func (testCtx *TestContext) RegisterFetchSteps(sc *godog.ScenarioContext) {
	sc.Step(`^an image server hosting (\d+) images?$`, testCtx.anImageServerHostingImages)
	sc.Step(`^a manifest listing the hosted images$`, testCtx.aManifestListingTheHostedImages)
	sc.Step(`^a manifest that also lists a missing image$`, testCtx.aManifestThatAlsoListsAMissingImage)
}
