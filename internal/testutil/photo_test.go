package testutil

import (
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPhotoConfig(t *testing.T) {
	config := DefaultPhotoConfig()
	assert.Equal(t, "IMG_0001", config.Label)
	assert.Equal(t, PostSize, config.Size)
	assert.NotNil(t, config.FontFace)
	assert.False(t, config.Gradient)
}

func TestGeneratePhoto(t *testing.T) {
	config := DefaultPhotoConfig()
	img := GeneratePhoto(config)

	bounds := img.Bounds()
	assert.Equal(t, PostSize.Width, bounds.Dx())
	assert.Equal(t, PostSize.Height, bounds.Dy())

	// Frame corner is accent, interior is background.
	assert.Equal(t, color.RGBA{30, 60, 120, 255}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{235, 240, 245, 255}, img.RGBAAt(10, 10))
}

func TestGeneratePhoto_Gradient(t *testing.T) {
	config := DefaultPhotoConfig()
	config.Label = ""
	config.Gradient = true
	img := GeneratePhoto(config)

	midX := img.Bounds().Dx() / 2
	top := img.RGBAAt(midX, borderWidth+2)
	bottom := img.RGBAAt(midX, img.Bounds().Dy()-borderWidth-3)

	assert.NotEqual(t, top, bottom)
	assert.Greater(t, top.B, bottom.B, "background fades into the darker accent")
}

func TestGeneratePhoto_TooSmallForFrame(t *testing.T) {
	config := DefaultPhotoConfig()
	config.Label = ""
	config.Size = PhotoSize{4, 4}
	img := GeneratePhoto(config)

	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, color.RGBA{235, 240, 245, 255}, img.RGBAAt(0, 0))
}

func TestGeneratePhoto_LabelChangesPixels(t *testing.T) {
	labeled := DefaultPhotoConfig()
	blank := DefaultPhotoConfig()
	blank.Label = ""

	assert.True(t, SimilarImages(GeneratePhoto(blank), GeneratePhoto(blank), 0))
	assert.False(t, SimilarImages(GeneratePhoto(labeled), GeneratePhoto(blank), 0))
}

func TestSaveAndLoadPNG(t *testing.T) {
	config := DefaultPhotoConfig()
	config.Size = ThumbSize
	img := GeneratePhoto(config)

	path := filepath.Join(t.TempDir(), "photos", "thumb.png")
	SavePNG(t, img, path)
	assert.True(t, FileExists(path))

	loaded := LoadPNG(t, path)
	assert.Equal(t, img.Bounds(), loaded.Bounds())
	assert.True(t, SimilarImages(img, loaded, 0.01))
}

func TestSimilarImages(t *testing.T) {
	config := DefaultPhotoConfig()
	a := GeneratePhoto(config)

	inverted := config
	inverted.Background = color.RGBA{20, 15, 10, 255}
	inverted.Accent = color.RGBA{225, 195, 135, 255}
	b := GeneratePhoto(inverted)

	assert.True(t, SimilarImages(a, GeneratePhoto(config), 0.01))
	assert.False(t, SimilarImages(a, b, 0.05))

	small := config
	small.Size = ThumbSize
	assert.False(t, SimilarImages(a, GeneratePhoto(small), 1))
}
