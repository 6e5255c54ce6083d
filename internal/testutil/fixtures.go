package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// PhotoSpec names one synthetic photo inside a post fixture.
type PhotoSpec struct {
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Label    string `json:"label"`
}

// PostFixture describes a synthetic blog post: a title plus the photos
// standing in for the post's images. Integration tests materialize the
// photos and drive the pipeline over them.
type PostFixture struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Title       string      `json:"title"`
	Photos      []PhotoSpec `json:"photos"`
}

// SamplePostFixture returns a three-photo post with a Korean title.
func SamplePostFixture() PostFixture {
	return PostFixture{
		Name:        "gangneung_trip",
		Description: "three-photo post with a Korean title",
		Title:       "강릉 여행 기록",
		Photos: []PhotoSpec{
			{FileName: "001_sea.png", Width: 640, Height: 480, Label: "sea"},
			{FileName: "002_cafe.png", Width: 800, Height: 600, Label: "cafe"},
			{FileName: "003_sunset.png", Width: 1024, Height: 576, Label: "sunset"},
		},
	}
}

// SaveFixture writes fixture as JSON under dir and returns the path.
func SaveFixture(t *testing.T, dir string, fixture PostFixture) string {
	t.Helper()

	require.NoError(t, EnsureDir(dir))
	path := filepath.Join(dir, fixture.Name+".json")

	data, err := json.MarshalIndent(fixture, "", "  ")
	require.NoError(t, err, "Failed to marshal fixture %s", fixture.Name)
	require.NoError(t, os.WriteFile(path, data, 0o600), "Failed to write fixture %s", path)

	return path
}

// LoadFixture reads a fixture written by SaveFixture.
func LoadFixture(t *testing.T, path string) PostFixture {
	t.Helper()

	data, err := os.ReadFile(path) //nolint:gosec // G304: reading test fixture files with controlled paths
	require.NoError(t, err, "Failed to read fixture %s", path)

	var fixture PostFixture
	require.NoError(t, json.Unmarshal(data, &fixture), "Failed to unmarshal fixture %s", path)

	return fixture
}

// MaterializePhotos generates every photo in the fixture under destDir
// and returns the written paths in fixture order.
func MaterializePhotos(t *testing.T, fixture PostFixture, destDir string) []string {
	t.Helper()

	paths := make([]string, 0, len(fixture.Photos))
	for _, spec := range fixture.Photos {
		config := DefaultPhotoConfig()
		config.Label = spec.Label
		config.Size = PhotoSize{Width: spec.Width, Height: spec.Height}

		path := filepath.Join(destDir, spec.FileName)
		SavePNG(t, GeneratePhoto(config), path)
		paths = append(paths, path)
	}
	return paths
}
