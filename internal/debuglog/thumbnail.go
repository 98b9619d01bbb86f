package debuglog

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/nfnt/resize"
)

// DefaultThumbnailWidth is used when a zero width is requested.
const DefaultThumbnailWidth uint = 320

// Thumbnail scales img down to maxWidth keeping its aspect ratio. Images
// already narrower than maxWidth are returned unchanged.
func Thumbnail(img image.Image, maxWidth uint) image.Image {
	if maxWidth == 0 {
		maxWidth = DefaultThumbnailWidth
	}
	bounds := img.Bounds()
	if bounds.Dx() <= int(maxWidth) || bounds.Dx() == 0 {
		return img
	}

	aspectRatio := float64(bounds.Dy()) / float64(bounds.Dx())
	height := uint(float64(maxWidth) * aspectRatio)
	if height == 0 {
		height = 1
	}
	return resize.Resize(maxWidth, height, img, resize.Lanczos3)
}

// SaveThumbnail decodes a PNG screenshot, scales it and writes it to
// dir/<name>.png. It returns the written path.
func SaveThumbnail(dir, name string, screenshot []byte, maxWidth uint) (string, error) {
	img, err := png.Decode(bytes.NewReader(screenshot))
	if err != nil {
		return "", fmt.Errorf("decode screenshot: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create debug dir: %w", err)
	}

	path := filepath.Join(dir, name+".png")
	if err := writePNG(path, Thumbnail(img, maxWidth)); err != nil {
		return "", err
	}
	return path, nil
}

// writePNG encodes img to path. No file is left behind on failure.
func writePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close thumbnail: %w", cerr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	return nil
}
