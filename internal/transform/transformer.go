package transform

import (
	"image"
	"image/color"
	"math/rand/v2"

	"github.com/disintegration/imaging"
)

const (
	// MaxOutputWidth caps the width of every produced image.
	MaxOutputWidth = 1500

	scaleMin = 0.95
	scaleMax = 1.05

	outlineWidth      = 5
	outlineChannelMin = 50
	outlineChannelMax = 200

	angleMaxDegrees = 3.0

	noisePixelsMin  = 3
	noisePixelsMax  = 5
	noiseChannelMin = 100
	noiseChannelMax = 255
)

// Transformer applies randomized geometric transforms and layered
// composition to images. All randomness flows through the injected
// source, so a seeded Transformer is fully reproducible.
type Transformer struct {
	rng *rand.Rand
}

// New returns a Transformer with a randomly seeded source.
func New() *Transformer {
	return NewSeeded(rand.Uint64())
}

// NewSeeded returns a Transformer whose random outcomes are determined by seed.
func NewSeeded(seed uint64) *Transformer {
	return &Transformer{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// ApplyRandom runs the enabled transform steps in fixed order: uniform
// scale, colored outline, rotation with white fill, then bright pixel
// noise. A nil or empty input is returned unchanged. The result always
// has positive dimensions.
func (t *Transformer) ApplyRandom(img image.Image, opts Options) image.Image {
	if img == nil || img.Bounds().Empty() {
		return img
	}

	out := imaging.Clone(img)
	if opts.RandomSize {
		out = t.randomScale(out)
	}
	if opts.AddOutline {
		out = t.addOutline(out)
	}
	if opts.RandomAngle {
		out = t.randomRotate(out)
	}
	if opts.RandomPixel {
		out = t.addPixelNoise(out)
	}
	return out
}

// ResizeToMaxWidth downsizes images wider than MaxOutputWidth, preserving
// aspect ratio with Lanczos resampling. Narrower images pass through.
func (t *Transformer) ResizeToMaxWidth(img image.Image) image.Image {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	if b.Dx() <= MaxOutputWidth {
		return img
	}
	scale := float64(MaxOutputWidth) / float64(b.Dx())
	height := max(int(float64(b.Dy())*scale), 1)
	return imaging.Resize(img, MaxOutputWidth, height, imaging.Lanczos)
}

// randomScale resizes both axes by one factor drawn from [scaleMin, scaleMax].
func (t *Transformer) randomScale(img *image.NRGBA) *image.NRGBA {
	factor := scaleMin + t.rng.Float64()*(scaleMax-scaleMin)
	b := img.Bounds()
	width := max(int(float64(b.Dx())*factor), 1)
	height := max(int(float64(b.Dy())*factor), 1)
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

// addOutline frames the image with a solid border in a random color. The
// border is applied before rotation so it rotates with the content.
func (t *Transformer) addOutline(img *image.NRGBA) *image.NRGBA {
	border := color.NRGBA{
		R: t.randomChannel(outlineChannelMin, outlineChannelMax),
		G: t.randomChannel(outlineChannelMin, outlineChannelMax),
		B: t.randomChannel(outlineChannelMin, outlineChannelMax),
		A: 255,
	}
	b := img.Bounds()
	framed := imaging.New(b.Dx()+2*outlineWidth, b.Dy()+2*outlineWidth, border)
	return imaging.Paste(framed, img, image.Pt(outlineWidth, outlineWidth))
}

// randomRotate rotates by an angle in [-angleMaxDegrees, angleMaxDegrees],
// expanding the canvas and filling exposed corners with white.
func (t *Transformer) randomRotate(img *image.NRGBA) *image.NRGBA {
	angle := -angleMaxDegrees + t.rng.Float64()*2*angleMaxDegrees
	return imaging.Rotate(img, angle, color.White)
}

// addPixelNoise paints a handful of bright single pixels at random
// coordinates. Noise is applied after rotation so it survives resampling.
func (t *Transformer) addPixelNoise(img *image.NRGBA) *image.NRGBA {
	count := t.randBetween(noisePixelsMin, noisePixelsMax)
	b := img.Bounds()
	for range count {
		x := t.rng.IntN(b.Dx())
		y := t.rng.IntN(b.Dy())
		img.SetNRGBA(b.Min.X+x, b.Min.Y+y, color.NRGBA{
			R: t.randomChannel(noiseChannelMin, noiseChannelMax),
			G: t.randomChannel(noiseChannelMin, noiseChannelMax),
			B: t.randomChannel(noiseChannelMin, noiseChannelMax),
			A: 255,
		})
	}
	return img
}

// randBetween draws an integer uniformly from [low, high] inclusive.
func (t *Transformer) randBetween(low, high int) int {
	if high <= low {
		return low
	}
	return low + t.rng.IntN(high-low+1)
}

func (t *Transformer) randomChannel(low, high int) uint8 {
	return uint8(t.randBetween(low, high)) //nolint:gosec // G115: bounds are within uint8 range
}

// flattenOpaque converts any image to opaque NRGBA, discarding the alpha
// channel the way a plain RGB conversion would rather than compositing.
func flattenOpaque(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xFF
	}
	return out
}
