package support

import (
	"fmt"
	"image"
	_ "image/jpeg" // register decoder for output checks
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/bis0908/naver-blog-image-downloader/internal/testutil"
	"github.com/bis0908/naver-blog-image-downloader/internal/utils"
	"github.com/cucumber/godog"
)

// writePNG encodes img to path, creating parent directories as needed.
func writePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	f, err := os.Create(path) //nolint:gosec // G304: Test image creation with controlled path
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}

// generateSamplePhoto renders a small distinct photo for scenario input.
func generateSamplePhoto(index int) *image.RGBA {
	config := testutil.DefaultPhotoConfig()
	config.Size = testutil.ThumbSize
	config.Label = fmt.Sprintf("IMG_%04d", index)
	config.Gradient = index%2 == 0
	return testutil.GeneratePhoto(config)
}

// aSourceDirectoryWithSampleImages creates a directory of generated photos
// and a fresh output directory for the scenario.
func (testCtx *TestContext) aSourceDirectoryWithSampleImages(count int) error {
	sourceDir := testCtx.GetTempDir("source")
	if err := os.MkdirAll(sourceDir, 0o755); err != nil {
		return fmt.Errorf("failed to create source directory: %w", err)
	}

	for i := 1; i <= count; i++ {
		path := filepath.Join(sourceDir, fmt.Sprintf("photo_%02d.png", i))
		if err := writePNG(path, generateSamplePhoto(i)); err != nil {
			return err
		}
	}

	testCtx.SourceDir = sourceDir
	testCtx.OutputDir = testCtx.GetTempDir("output")
	return nil
}

// aSourceDirectoryContainingACorruptImage creates a directory holding one
// file with an image extension but no decodable pixel data.
func (testCtx *TestContext) aSourceDirectoryContainingACorruptImage() error {
	sourceDir := testCtx.GetTempDir("source")
	if err := os.MkdirAll(sourceDir, 0o755); err != nil {
		return fmt.Errorf("failed to create source directory: %w", err)
	}

	path := filepath.Join(sourceDir, "broken.png")
	if err := os.WriteFile(path, []byte("not image data"), 0o600); err != nil {
		return fmt.Errorf("failed to create corrupt image: %w", err)
	}

	testCtx.SourceDir = sourceDir
	testCtx.OutputDir = testCtx.GetTempDir("output")
	return nil
}

// theOutputDirectoryShouldContainTransformedImages counts files carrying
// the derivative name suffix in the scenario output directory.
func (testCtx *TestContext) theOutputDirectoryShouldContainTransformedImages(expected int) error {
	entries, err := os.ReadDir(testCtx.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to read output directory %s: %w", testCtx.OutputDir, err)
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() || !utils.IsSupportedImage(entry.Name()) {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if strings.HasSuffix(stem, "_transformed") {
			count++
		}
	}

	if count != expected {
		return fmt.Errorf("output directory %s contains %d transformed image(s), expected %d",
			testCtx.OutputDir, count, expected)
	}
	return nil
}

// theTransformedImagesShouldBeDecodable verifies every output image opens
// as a valid image file.
func (testCtx *TestContext) theTransformedImagesShouldBeDecodable() error {
	entries, err := os.ReadDir(testCtx.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to read output directory %s: %w", testCtx.OutputDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !utils.IsSupportedImage(entry.Name()) {
			continue
		}
		path := filepath.Join(testCtx.OutputDir, entry.Name())
		f, err := os.Open(path) //nolint:gosec // G304: Test file reading with controlled path
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		_, _, decodeErr := image.Decode(f)
		_ = f.Close()
		if decodeErr != nil {
			return fmt.Errorf("output image %s does not decode: %w", path, decodeErr)
		}
	}
	return nil
}

// RegisterTransformSteps registers transform scenario steps.
func (testCtx *TestContext) RegisterTransformSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a source directory with (\d+) sample images?$`, testCtx.aSourceDirectoryWithSampleImages)
	sc.Step(`^a source directory containing a corrupt image$`, testCtx.aSourceDirectoryContainingACorruptImage)
	sc.Step(`^the output directory should contain (\d+) transformed images$`,
		testCtx.theOutputDirectoryShouldContainTransformedImages)
	sc.Step(`^the transformed images should be decodable$`, testCtx.theTransformedImagesShouldBeDecodable)
}
