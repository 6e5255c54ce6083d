package transform

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bis0908/naver-blog-image-downloader/internal/utils"
)

func decodeSaved(t *testing.T, path string) (image.Image, string) {
	t.Helper()
	f, err := os.Open(path) //nolint:gosec // G304: test-controlled path
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	img, format, err := image.Decode(f)
	require.NoError(t, err)
	return img, format
}

func TestSaveImage_FormatByExtension(t *testing.T) {
	img := newSolidImage(32, 24, color.NRGBA{R: 120, G: 140, B: 160, A: 255})

	tests := []struct {
		name       string
		file       string
		wantFile   string
		wantFormat string
	}{
		{name: "jpg stays jpg", file: "photo.jpg", wantFile: "photo.jpg", wantFormat: "jpeg"},
		{name: "jpeg stays jpeg", file: "photo.jpeg", wantFile: "photo.jpeg", wantFormat: "jpeg"},
		{name: "png case insensitive", file: "shot.PNG", wantFile: "shot.PNG", wantFormat: "png"},
		{name: "unknown coerced to jpg", file: "scan.tiff", wantFile: "scan.jpg", wantFormat: "jpeg"},
		{name: "no extension coerced", file: "bare", wantFile: "bare.jpg", wantFormat: "jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			saved, err := SaveImage(img, filepath.Join(dir, tt.file), DefaultJPEGQuality)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, tt.wantFile), saved)

			decoded, format := decodeSaved(t, saved)
			assert.Equal(t, tt.wantFormat, format)
			assert.Equal(t, 32, decoded.Bounds().Dx())
			assert.Equal(t, 24, decoded.Bounds().Dy())
		})
	}
}

func TestSaveImage_CreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "a", "b", "out.png")

	saved, err := SaveImage(newSolidImage(10, 10, color.NRGBA{A: 255}), dest, 0)

	require.NoError(t, err)
	assert.Equal(t, dest, saved)
	assert.FileExists(t, saved)
}

func TestSaveImage_NilImage(t *testing.T) {
	saved, err := SaveImage(nil, filepath.Join(t.TempDir(), "out.jpg"), DefaultJPEGQuality)

	require.Error(t, err)
	assert.Empty(t, saved)

	var procErr *utils.ProcessingError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, "save", procErr.Operation)
}

func TestSaveImage_QualityOutOfRangeFallsBack(t *testing.T) {
	dir := t.TempDir()

	for _, quality := range []int{-5, 0, 101} {
		saved, err := SaveImage(newSolidImage(8, 8, color.NRGBA{R: 90, A: 255}),
			filepath.Join(dir, "out.jpg"), quality)
		require.NoError(t, err)
		assert.FileExists(t, saved)
	}
}

func TestSaveImage_ParentDirectoryBlocked(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocker, []byte("file"), 0o600))

	saved, err := SaveImage(newSolidImage(8, 8, color.NRGBA{A: 255}),
		filepath.Join(blocker, "out.jpg"), DefaultJPEGQuality)

	require.Error(t, err)
	assert.Empty(t, saved)
}
