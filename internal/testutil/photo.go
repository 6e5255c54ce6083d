package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// PhotoSize represents common synthetic photo dimensions.
type PhotoSize struct {
	Width  int
	Height int
}

var (
	// Common synthetic photo sizes. BannerSize is wider than the
	// pipeline's output cap, which makes it handy for resize tests.
	ThumbSize  = PhotoSize{320, 240}
	PostSize   = PhotoSize{800, 600}
	BannerSize = PhotoSize{1600, 500}
)

// borderWidth is the accent frame painted around every generated photo.
const borderWidth = 3

// PhotoConfig holds configuration for generating synthetic photos.
type PhotoConfig struct {
	Label      string
	Size       PhotoSize
	Background color.Color
	Accent     color.Color
	FontFace   font.Face
	Gradient   bool
}

// DefaultPhotoConfig returns a labeled flat-background configuration.
func DefaultPhotoConfig() PhotoConfig {
	return PhotoConfig{
		Label:      "IMG_0001",
		Size:       PostSize,
		Background: color.RGBA{235, 240, 245, 255},
		Accent:     color.RGBA{30, 60, 120, 255},
		FontFace:   basicfont.Face7x13,
		Gradient:   false,
	}
}

// GeneratePhoto creates a synthetic photo: a flat or vertically graded
// background, an accent frame, and a centered label.
func GeneratePhoto(config PhotoConfig) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, config.Size.Width, config.Size.Height))

	if config.Gradient {
		fillGradient(img, config.Background, config.Accent)
	} else {
		draw.Draw(img, img.Bounds(), &image.Uniform{config.Background}, image.Point{}, draw.Src)
	}

	drawFrame(img, config.Accent)

	if config.Label != "" && config.FontFace != nil {
		drawer := &font.Drawer{
			Dst:  img,
			Src:  &image.Uniform{config.Accent},
			Face: config.FontFace,
		}
		labelWidth := font.MeasureString(config.FontFace, config.Label).Ceil()
		labelHeight := config.FontFace.Metrics().Height.Ceil()
		x := (config.Size.Width - labelWidth) / 2
		y := (config.Size.Height + labelHeight) / 2
		drawer.Dot = fixed.P(x, y)
		drawer.DrawString(config.Label)
	}

	return img
}

// fillGradient blends from top to bottom down the Y axis.
func fillGradient(img *image.RGBA, top, bottom color.Color) {
	b := img.Bounds()
	tr, tg, tb, _ := top.RGBA()
	br, bg, bb, _ := bottom.RGBA()

	for y := b.Min.Y; y < b.Max.Y; y++ {
		f := float64(y-b.Min.Y) / float64(max(b.Dy()-1, 1))
		c := color.RGBA{R: mix(tr, br, f), G: mix(tg, bg, f), B: mix(tb, bb, f), A: 255}
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func mix(a, b uint32, f float64) uint8 {
	return uint8(math.Round(float64(a>>8)*(1-f) + float64(b>>8)*f))
}

// drawFrame paints the accent frame so edge pixels are predictable.
// Photos too small to hold the frame are left as-is.
func drawFrame(img *image.RGBA, c color.Color) {
	b := img.Bounds()
	if b.Dx() < 2*borderWidth || b.Dy() < 2*borderWidth {
		return
	}

	src := &image.Uniform{c}
	draw.Draw(img, image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+borderWidth), src, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(b.Min.X, b.Max.Y-borderWidth, b.Max.X, b.Max.Y), src, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(b.Min.X, b.Min.Y, b.Min.X+borderWidth, b.Max.Y), src, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(b.Max.X-borderWidth, b.Min.Y, b.Max.X, b.Max.Y), src, image.Point{}, draw.Src)
}

// SavePNG writes img to path as PNG, creating parent directories.
func SavePNG(t *testing.T, img image.Image, path string) {
	t.Helper()

	require.NoError(t, EnsureDir(filepath.Dir(path)), "Failed to create directory for %s", path)

	f, err := os.Create(path) //nolint:gosec // G304: test file creation with controlled path
	require.NoError(t, err, "Failed to create %s", path)
	defer func() {
		require.NoError(t, f.Close())
	}()

	require.NoError(t, png.Encode(f, img), "Failed to encode %s", path)
}

// LoadPNG reads a PNG written by SavePNG back into memory.
func LoadPNG(t *testing.T, path string) image.Image {
	t.Helper()

	f, err := os.Open(path) //nolint:gosec // G304: test file reading with controlled path
	require.NoError(t, err, "Failed to open %s", path)
	defer func() { _ = f.Close() }()

	img, err := png.Decode(f)
	require.NoError(t, err, "Failed to decode %s", path)

	return img
}

// SimilarImages reports whether two images share bounds and have a mean
// per-pixel color distance within tolerance (0 exact, 1 accepts
// anything).
func SimilarImages(a, b image.Image, tolerance float64) bool {
	if a.Bounds() != b.Bounds() {
		return false
	}

	bounds := a.Bounds()
	var totalDiff, pixels float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			ar, ag, ab, aa := a.At(x, y).RGBA()
			br, bg, bb, ba := b.At(x, y).RGBA()

			dr := float64(ar) - float64(br)
			dg := float64(ag) - float64(bg)
			db := float64(ab) - float64(bb)
			da := float64(aa) - float64(ba)
			totalDiff += math.Sqrt(dr*dr + dg*dg + db*db + da*da)
			pixels++
		}
	}

	maxDiff := math.Sqrt(4 * 65535 * 65535)
	return totalDiff/pixels/maxDiff <= tolerance
}
