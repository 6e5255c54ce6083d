package transform

import (
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/bis0908/naver-blog-image-downloader/internal/utils"
)

// DefaultJPEGQuality is the encoder quality used when none is given.
const DefaultJPEGQuality = 95

// SaveImage writes img to destPath, picking the encoder from the
// extension: .jpg/.jpeg and .png save natively, anything else is coerced
// to JPEG with a .jpg extension. Parent directories are created as
// needed. Returns the path actually written.
func SaveImage(img image.Image, destPath string, quality int) (string, error) {
	if img == nil {
		return "", &utils.ProcessingError{Operation: "save", Err: errors.New("nil image")}
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	if dir := filepath.Dir(destPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return "", &utils.ProcessingError{Operation: "save", Err: err}
		}
	}

	ext := strings.ToLower(filepath.Ext(destPath))
	asPNG := ext == ".png"
	if ext != ".jpg" && ext != ".jpeg" && !asPNG {
		destPath = strings.TrimSuffix(destPath, filepath.Ext(destPath)) + ".jpg"
	}

	f, err := os.Create(destPath) //nolint:gosec // G304: destination is derived from the caller-provided output directory
	if err != nil {
		return "", &utils.ProcessingError{Operation: "save", Err: err}
	}
	if asPNG {
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(f, img)
	} else {
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: quality})
	}
	if err != nil {
		_ = f.Close()
		return "", &utils.ProcessingError{Operation: "encode", Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &utils.ProcessingError{Operation: "save", Err: err}
	}
	return destPath, nil
}
