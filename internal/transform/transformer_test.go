package transform

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSolidImage(width, height int, c color.NRGBA) *image.NRGBA {
	return imaging.New(width, height, c)
}

func samePixels(a, b image.Image) bool {
	ca := imaging.Clone(a)
	cb := imaging.Clone(b)
	if !ca.Bounds().Eq(cb.Bounds()) {
		return false
	}
	for i := range ca.Pix {
		if ca.Pix[i] != cb.Pix[i] {
			return false
		}
	}
	return true
}

func TestApplyRandom_NoFlagsKeepsPixels(t *testing.T) {
	tr := NewSeeded(1)
	img := newSolidImage(40, 30, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	out := tr.ApplyRandom(img, Options{})

	require.NotNil(t, out)
	assert.True(t, samePixels(img, out))
}

func TestApplyRandom_AllFlagsAlwaysChangesImage(t *testing.T) {
	img := newSolidImage(50, 40, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	for seed := uint64(0); seed < 10; seed++ {
		tr := NewSeeded(seed)
		out := tr.ApplyRandom(img, DefaultOptions())

		require.NotNil(t, out)
		b := out.Bounds()
		assert.Positive(t, b.Dx())
		assert.Positive(t, b.Dy())
		assert.False(t, samePixels(img, out), "seed %d produced an unchanged image", seed)
	}
}

func TestApplyRandom_Deterministic(t *testing.T) {
	img := newSolidImage(64, 48, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	first := NewSeeded(42).ApplyRandom(img, DefaultOptions())
	second := NewSeeded(42).ApplyRandom(img, DefaultOptions())

	assert.True(t, samePixels(first, second))
}

func TestApplyRandom_NilAndEmptyInputs(t *testing.T) {
	tr := NewSeeded(3)

	assert.Nil(t, tr.ApplyRandom(nil, DefaultOptions()))

	empty := image.NewNRGBA(image.Rect(0, 0, 0, 0))
	out := tr.ApplyRandom(empty, DefaultOptions())
	assert.Equal(t, image.Image(empty), out)
}

func TestApplyRandom_TinyImageKeepsPositiveDimensions(t *testing.T) {
	img := newSolidImage(1, 1, color.NRGBA{R: 255, A: 255})

	for seed := uint64(0); seed < 20; seed++ {
		out := NewSeeded(seed).ApplyRandom(img, Options{RandomSize: true})
		b := out.Bounds()
		assert.GreaterOrEqual(t, b.Dx(), 1)
		assert.GreaterOrEqual(t, b.Dy(), 1)
	}
}

func TestApplyRandom_ScaleStaysWithinBounds(t *testing.T) {
	const width, height = 200, 120
	img := newSolidImage(width, height, color.NRGBA{R: 128, G: 128, B: 128, A: 255})

	for seed := uint64(0); seed < 25; seed++ {
		out := NewSeeded(seed).ApplyRandom(img, Options{RandomSize: true})
		b := out.Bounds()
		assert.GreaterOrEqual(t, b.Dx(), int(float64(width)*scaleMin))
		assert.LessOrEqual(t, b.Dx(), int(float64(width)*scaleMax)+1)
		assert.GreaterOrEqual(t, b.Dy(), int(float64(height)*scaleMin))
		assert.LessOrEqual(t, b.Dy(), int(float64(height)*scaleMax)+1)
	}
}

func TestApplyRandom_OutlineFramesContent(t *testing.T) {
	content := color.NRGBA{R: 10, G: 200, B: 10, A: 255}
	img := newSolidImage(30, 20, content)

	out := NewSeeded(7).ApplyRandom(img, Options{AddOutline: true})

	b := out.Bounds()
	require.Equal(t, 30+2*outlineWidth, b.Dx())
	require.Equal(t, 20+2*outlineWidth, b.Dy())

	clone := imaging.Clone(out)
	corner := clone.NRGBAAt(0, 0)
	for _, ch := range []uint8{corner.R, corner.G, corner.B} {
		assert.GreaterOrEqual(t, ch, uint8(outlineChannelMin))
		assert.LessOrEqual(t, ch, uint8(outlineChannelMax))
	}
	assert.Equal(t, content, clone.NRGBAAt(outlineWidth+5, outlineWidth+5))
}

func TestApplyRandom_RotationExpandsCanvas(t *testing.T) {
	img := newSolidImage(80, 40, color.NRGBA{R: 5, G: 5, B: 5, A: 255})

	for seed := uint64(0); seed < 10; seed++ {
		out := NewSeeded(seed).ApplyRandom(img, Options{RandomAngle: true})
		b := out.Bounds()
		assert.GreaterOrEqual(t, b.Dx(), 80)
		assert.GreaterOrEqual(t, b.Dy(), 40)
	}
}

func TestApplyRandom_NoiseTouchesAtMostFivePixels(t *testing.T) {
	base := color.NRGBA{R: 10, G: 20, B: 30, A: 255}
	img := newSolidImage(60, 60, base)

	out := NewSeeded(11).ApplyRandom(img, Options{RandomPixel: true})

	clone := imaging.Clone(out)
	changed := 0
	for y := range 60 {
		for x := range 60 {
			px := clone.NRGBAAt(x, y)
			if px == base {
				continue
			}
			changed++
			assert.GreaterOrEqual(t, px.R, uint8(noiseChannelMin))
			assert.GreaterOrEqual(t, px.G, uint8(noiseChannelMin))
			assert.GreaterOrEqual(t, px.B, uint8(noiseChannelMin))
		}
	}
	assert.GreaterOrEqual(t, changed, 1)
	assert.LessOrEqual(t, changed, noisePixelsMax)
}

func TestResizeToMaxWidth(t *testing.T) {
	tr := NewSeeded(1)

	tests := []struct {
		name       string
		width      int
		height     int
		wantWidth  int
		wantHeight int
	}{
		{name: "below cap unchanged", width: 800, height: 600, wantWidth: 800, wantHeight: 600},
		{name: "at cap unchanged", width: 1500, height: 900, wantWidth: 1500, wantHeight: 900},
		{name: "above cap scaled", width: 3000, height: 1000, wantWidth: 1500, wantHeight: 500},
		{name: "odd ratio truncates height", width: 1501, height: 1000, wantWidth: 1500, wantHeight: 999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := newSolidImage(tt.width, tt.height, color.NRGBA{R: 77, G: 77, B: 77, A: 255})
			out := tr.ResizeToMaxWidth(img)
			require.NotNil(t, out)
			b := out.Bounds()
			assert.Equal(t, tt.wantWidth, b.Dx())
			assert.Equal(t, tt.wantHeight, b.Dy())
		})
	}
}

func TestResizeToMaxWidth_PassThroughReturnsInput(t *testing.T) {
	tr := NewSeeded(1)
	img := newSolidImage(100, 100, color.NRGBA{A: 255})

	out := tr.ResizeToMaxWidth(img)

	assert.Equal(t, image.Image(img), out)
}

func TestFlattenOpaque_DiscardsAlphaWithoutCompositing(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := range 4 {
		for x := range 4 {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 128})
		}
	}

	out := flattenOpaque(img)

	px := out.NRGBAAt(2, 2)
	assert.Equal(t, color.NRGBA{R: 200, G: 100, B: 50, A: 255}, px)
}

func TestRandBetween_InclusiveBounds(t *testing.T) {
	tr := NewSeeded(9)

	seen := map[int]bool{}
	for range 200 {
		v := tr.randBetween(3, 5)
		require.GreaterOrEqual(t, v, 3)
		require.LessOrEqual(t, v, 5)
		seen[v] = true
	}
	assert.Len(t, seen, 3)

	assert.Equal(t, 7, tr.randBetween(7, 7))
	assert.Equal(t, 7, tr.randBetween(7, 2))
}
