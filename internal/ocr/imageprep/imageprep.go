// Package imageprep normalizes page images before recognition. Small scans
// are upscaled to a minimum width and converted to grayscale PNG; formats
// Tesseract reads poorly (TIFF, BMP) are re-encoded.
package imageprep

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// DefaultMinWidth approximates an A4 page scanned at 150 DPI.
const DefaultMinWidth = 1240

// Prepare returns data unchanged when it is a PNG or JPEG already at least
// minWidth pixels wide. Data that cannot be decoded is also returned as is so
// the recognizer can report its own error.
func Prepare(data []byte, minWidth int) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, nil
	}
	b := src.Bounds()
	native := format == "png" || format == "jpeg"
	if native && (minWidth <= 0 || b.Dx() >= minWidth) {
		return data, nil
	}

	w, h := b.Dx(), b.Dy()
	if minWidth > 0 && w < minWidth && w > 0 {
		h = h * minWidth / w
		w = minWidth
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode page image: %w", err)
	}
	return buf.Bytes(), nil
}

// IsBlank reports whether every pixel of a decoded image has the same
// luminance. Blank pages are skipped instead of sent to the recognizer.
func IsBlank(data []byte) bool {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return false
	}
	b := img.Bounds()
	if b.Empty() {
		return true
	}
	first := color.GrayModel.Convert(img.At(b.Min.X, b.Min.Y)).(color.Gray).Y
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y != first {
				return false
			}
		}
	}
	return true
}
