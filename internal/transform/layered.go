package transform

import (
	"image"
	"image/color"
	"log/slog"
	"math"
	"slices"

	"github.com/disintegration/imaging"

	"github.com/bis0908/naver-blog-image-downloader/internal/utils"
)

const (
	canvasMargin = 1.2

	backgroundLayers = 2

	// Placement bands for the two background layers, as fractions of the
	// slack between canvas and layer. The first layer lands between the
	// near and center marks, the second between center and far, biasing
	// them toward opposite sides of the canvas center.
	placeNear   = 1.0 / 6.0
	placeCenter = 1.0 / 2.0
	placeFar    = 5.0 / 6.0
)

// CreateLayered builds a composite: the main image, randomly transformed,
// centered on top of two randomly transformed and randomly placed
// background layers drawn from candidatePaths. Candidates that fail to
// load are skipped; any deficit below two backgrounds is filled with
// independently re-transformed copies of the main image. The composite is
// capped at MaxOutputWidth. A nil or empty main image yields nil; any
// other input always yields a composite.
func (t *Transformer) CreateLayered(mainImg image.Image, opts Options, candidatePaths []string) image.Image {
	if mainImg == nil || mainImg.Bounds().Empty() {
		return nil
	}

	// Resized but untransformed main, reused for deficit padding.
	base := t.ResizeToMaxWidth(flattenOpaque(mainImg))
	foreground := t.ApplyRandom(base, opts)
	backgrounds := t.prepareBackgrounds(base, opts, candidatePaths)

	canvasW, canvasH := canvasSize(append(slices.Clone(backgrounds), foreground))
	canvas := imaging.New(canvasW, canvasH, color.White)

	bands := [backgroundLayers][2]float64{
		{placeNear, placeCenter},
		{placeCenter, placeFar},
	}
	for i, bg := range backgrounds {
		b := bg.Bounds()
		slackX := canvasW - b.Dx()
		slackY := canvasH - b.Dy()
		if slackX <= 0 || slackY <= 0 {
			slog.Debug("background layer exceeds canvas, skipping placement",
				slog.Int("layer", i), slog.Int("width", b.Dx()), slog.Int("height", b.Dy()))
			continue
		}
		x := t.randBetween(int(float64(slackX)*bands[i][0]), int(float64(slackX)*bands[i][1]))
		y := t.randBetween(int(float64(slackY)*bands[i][0]), int(float64(slackY)*bands[i][1]))
		canvas = imaging.Paste(canvas, bg, image.Pt(x, y))
	}

	// Foreground goes last, centered, so it is never occluded.
	fb := foreground.Bounds()
	canvas = imaging.Paste(canvas, foreground, image.Pt((canvasW-fb.Dx())/2, (canvasH-fb.Dy())/2))

	return t.ResizeToMaxWidth(canvas)
}

// prepareBackgrounds loads, normalizes, and transforms up to two sampled
// candidates, then pads any deficit from the resized main image.
func (t *Transformer) prepareBackgrounds(base image.Image, opts Options, candidatePaths []string) []image.Image {
	backgrounds := make([]image.Image, 0, backgroundLayers)
	for _, path := range t.sampleCandidates(candidatePaths, backgroundLayers) {
		img, _, err := utils.LoadImage(path)
		if err != nil {
			slog.Warn("skipping unreadable background candidate",
				slog.String("path", path), slog.Any("error", err))
			continue
		}
		backgrounds = append(backgrounds, t.ApplyRandom(t.ResizeToMaxWidth(flattenOpaque(img)), opts))
	}
	for len(backgrounds) < backgroundLayers {
		backgrounds = append(backgrounds, t.ApplyRandom(base, opts))
	}
	return backgrounds
}

// sampleCandidates draws up to n distinct paths uniformly without replacement.
func (t *Transformer) sampleCandidates(paths []string, n int) []string {
	if len(paths) == 0 {
		return nil
	}
	shuffled := slices.Clone(paths)
	t.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if len(shuffled) > n {
		shuffled = shuffled[:n]
	}
	return shuffled
}

// canvasSize returns the composition canvas dimensions: the largest layer
// extent on each axis grown by the canvas margin, rounded up.
func canvasSize(layers []image.Image) (int, int) {
	var maxW, maxH int
	for _, layer := range layers {
		b := layer.Bounds()
		maxW = max(maxW, b.Dx())
		maxH = max(maxH, b.Dy())
	}
	return int(math.Ceil(float64(maxW) * canvasMargin)), int(math.Ceil(float64(maxH) * canvasMargin))
}
