package imageprep

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	model.ConfigPath = "disable"
}

// ErrNoImages is returned for PDFs that embed no raster images.
var ErrNoImages = errors.New("pdf has no embedded page images")

// Pages returns the raster images to recognize for a document: the image
// itself, or every image embedded in a PDF.
func Pages(mimeType string, data []byte) ([][]byte, error) {
	switch mimeType {
	case "image/png", "image/jpeg", "image/jpg":
		return [][]byte{data}, nil
	case "application/pdf":
		return pdfImages(data)
	default:
		return nil, fmt.Errorf("unsupported mime type %q", mimeType)
	}
}

func pdfImages(data []byte) ([][]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var images [][]byte
	err := api.ExtractImages(bytes.NewReader(data), nil, func(img model.Image, _ bool, _ int) error {
		raw, err := io.ReadAll(img)
		if err != nil {
			return err
		}
		images = append(images, raw)
		return nil
	}, conf)
	if err != nil {
		return nil, fmt.Errorf("extract pdf images: %w", err)
	}
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	return images, nil
}
