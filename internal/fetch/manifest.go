package fetch

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadManifest reads a newline-delimited list of image URLs. Blank lines
// and lines starting with # are skipped; surrounding whitespace is
// trimmed. Manifests let the CLI drive downloads without scraping a
// post.
func ReadManifest(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // G304: manifest path is user-supplied
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer func() { _ = f.Close() }()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return urls, nil
}
