package transform

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestPNG(t *testing.T, dir, name string, width, height int, c color.NRGBA) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, newSolidImage(width, height, c)))
	require.NoError(t, f.Close())
	return path
}

func TestCreateLayered_NilAndEmptyMain(t *testing.T) {
	tr := NewSeeded(1)

	assert.Nil(t, tr.CreateLayered(nil, DefaultOptions(), nil))
	assert.Nil(t, tr.CreateLayered(image.NewNRGBA(image.Rect(0, 0, 0, 0)), DefaultOptions(), nil))
}

func TestCreateLayered_NoCandidatesUsesMainForBackgrounds(t *testing.T) {
	red := color.NRGBA{R: 220, G: 20, B: 20, A: 255}
	main := newSolidImage(60, 40, red)

	out := NewSeeded(5).CreateLayered(main, Options{}, nil)

	require.NotNil(t, out)
	b := out.Bounds()
	// ceil(60*1.2) x ceil(40*1.2)
	assert.Equal(t, 72, b.Dx())
	assert.Equal(t, 48, b.Dy())

	clone := imaging.Clone(out)
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	assert.Equal(t, white, clone.NRGBAAt(0, 0))
	assert.Equal(t, white, clone.NRGBAAt(71, 47))
	assert.Equal(t, red, clone.NRGBAAt(36, 24))
}

func TestCreateLayered_CandidateLayersVisible(t *testing.T) {
	dir := t.TempDir()
	blue := color.NRGBA{B: 255, A: 255}
	green := color.NRGBA{G: 255, A: 255}
	red := color.NRGBA{R: 255, A: 255}
	candidates := []string{
		writeTestPNG(t, dir, "a.png", 80, 60, blue),
		writeTestPNG(t, dir, "b.png", 80, 60, green),
	}
	main := newSolidImage(40, 30, red)

	out := NewSeeded(2).CreateLayered(main, Options{}, candidates)

	require.NotNil(t, out)
	b := out.Bounds()
	assert.Equal(t, 96, b.Dx())
	assert.Equal(t, 72, b.Dy())

	clone := imaging.Clone(out)
	// Foreground is centered over cols 28..67, rows 21..50.
	assert.Equal(t, red, clone.NRGBAAt(48, 36))
	// (70,36) lies outside the foreground but inside every possible
	// background placement, so it must show one of the candidates.
	edge := clone.NRGBAAt(70, 36)
	assert.Contains(t, []color.NRGBA{blue, green}, edge)
}

func TestCreateLayered_SkipsUnreadableCandidates(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "broken.png")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o600))
	candidates := []string{
		filepath.Join(dir, "missing.png"),
		garbage,
	}
	main := newSolidImage(60, 40, color.NRGBA{R: 200, A: 255})

	out := NewSeeded(3).CreateLayered(main, Options{}, candidates)

	require.NotNil(t, out)
	b := out.Bounds()
	assert.Equal(t, 72, b.Dx())
	assert.Equal(t, 48, b.Dy())
}

func TestCreateLayered_CapsOutputWidth(t *testing.T) {
	main := newSolidImage(2000, 400, color.NRGBA{R: 50, G: 50, B: 50, A: 255})

	out := NewSeeded(4).CreateLayered(main, Options{}, nil)

	require.NotNil(t, out)
	b := out.Bounds()
	assert.Equal(t, MaxOutputWidth, b.Dx())
	assert.Equal(t, 300, b.Dy())
}

func TestCreateLayered_TransparentMainFlattensToOpaque(t *testing.T) {
	main := image.NewNRGBA(image.Rect(0, 0, 50, 50))
	for y := range 50 {
		for x := range 50 {
			main.SetNRGBA(x, y, color.NRGBA{R: 30, G: 60, B: 90, A: 0})
		}
	}

	out := NewSeeded(6).CreateLayered(main, Options{}, nil)

	require.NotNil(t, out)
	clone := imaging.Clone(out)
	center := clone.NRGBAAt(clone.Bounds().Dx()/2, clone.Bounds().Dy()/2)
	assert.Equal(t, color.NRGBA{R: 30, G: 60, B: 90, A: 255}, center)
}

func TestSampleCandidates(t *testing.T) {
	tr := NewSeeded(8)

	assert.Nil(t, tr.sampleCandidates(nil, 2))
	assert.Equal(t, []string{"only"}, tr.sampleCandidates([]string{"only"}, 2))

	paths := []string{"a", "b", "c", "d", "e"}
	sampled := tr.sampleCandidates(paths, 2)
	require.Len(t, sampled, 2)
	assert.NotEqual(t, sampled[0], sampled[1])
	assert.Contains(t, paths, sampled[0])
	assert.Contains(t, paths, sampled[1])
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, paths)
}

func TestCanvasSize(t *testing.T) {
	tests := []struct {
		name       string
		dims       [][2]int
		wantWidth  int
		wantHeight int
	}{
		{name: "single layer", dims: [][2]int{{100, 50}}, wantWidth: 120, wantHeight: 60},
		{name: "rounds up", dims: [][2]int{{333, 333}}, wantWidth: 400, wantHeight: 400},
		{name: "axes independent", dims: [][2]int{{10, 80}, {70, 20}}, wantWidth: 84, wantHeight: 96},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layers := make([]image.Image, 0, len(tt.dims))
			for _, d := range tt.dims {
				layers = append(layers, newSolidImage(d[0], d[1], color.NRGBA{A: 255}))
			}
			w, h := canvasSize(layers)
			assert.Equal(t, tt.wantWidth, w)
			assert.Equal(t, tt.wantHeight, h)
		})
	}
}
