// Package tesseract runs Tesseract through gosseract. Page extraction and
// normalization live in imageprep; this package only drives the engine.
package tesseract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"docflow/internal/ocr"
	"docflow/internal/ocr/imageprep"
)

const (
	NameStandard    = "tesseract"
	NameHandwriting = "tesseract_handwriting"
)

// ErrNoImages is returned for PDFs that embed no raster images.
var ErrNoImages = imageprep.ErrNoImages

// ErrBlank is returned when every page image is a single flat color.
var ErrBlank = errors.New("all page images are blank")

// Preset is a named Tesseract configuration.
type Preset struct {
	Name      string
	PageSeg   gosseract.PageSegMode
	MinWidth  int
	Variables map[gosseract.SettableVariable]string
}

// Standard suits printed invoices and receipts.
func Standard() Preset {
	return Preset{
		Name:     NameStandard,
		PageSeg:  gosseract.PSM_AUTO,
		MinWidth: imageprep.DefaultMinWidth,
		Variables: map[gosseract.SettableVariable]string{
			"preserve_interword_spaces": "1",
		},
	}
}

// Handwriting treats the page as one uniform block and disables the
// dictionaries, which hurt on handwritten notes.
func Handwriting() Preset {
	return Preset{
		Name:     NameHandwriting,
		PageSeg:  gosseract.PSM_SINGLE_BLOCK,
		MinWidth: 2 * imageprep.DefaultMinWidth,
		Variables: map[gosseract.SettableVariable]string{
			"load_system_dawg": "0",
			"load_freq_dawg":   "0",
		},
	}
}

type Strategy struct {
	preset    Preset
	languages []string
}

func New(preset Preset, languages ...string) *Strategy {
	return &Strategy{preset: preset, languages: languages}
}

func (s *Strategy) Name() string { return s.preset.Name }

func (s *Strategy) Attempt(ctx context.Context, c ocr.Content) (ocr.Attempt, error) {
	images, err := imageprep.Pages(c.MimeType, c.Data)
	if err != nil {
		return ocr.Attempt{}, err
	}

	client := gosseract.NewClient()
	defer client.Close()
	if err := s.configure(client); err != nil {
		return ocr.Attempt{}, err
	}

	var (
		texts   []string
		confSum float64
		pages   int
	)
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return ocr.Attempt{}, err
		}
		page, err := imageprep.Prepare(img, s.preset.MinWidth)
		if err != nil {
			return ocr.Attempt{}, err
		}
		if imageprep.IsBlank(page) {
			continue
		}
		text, conf, err := recognize(client, page)
		if err != nil {
			return ocr.Attempt{}, err
		}
		if text != "" {
			texts = append(texts, text)
		}
		confSum += conf
		pages++
	}
	if pages == 0 {
		return ocr.Attempt{}, ErrBlank
	}
	return ocr.Attempt{
		Text:       strings.Join(texts, "\n\n"),
		Confidence: confSum / float64(pages),
	}, nil
}

func (s *Strategy) configure(client *gosseract.Client) error {
	if len(s.languages) > 0 {
		if err := client.SetLanguage(s.languages...); err != nil {
			return fmt.Errorf("set languages: %w", err)
		}
	}
	if err := client.SetPageSegMode(s.preset.PageSeg); err != nil {
		return fmt.Errorf("set page segmentation: %w", err)
	}
	for k, v := range s.preset.Variables {
		if err := client.SetVariable(k, v); err != nil {
			return fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	return nil
}

// recognize returns the page text and mean word confidence in [0,1].
func recognize(client *gosseract.Client, img []byte) (string, float64, error) {
	if err := client.SetImageFromBytes(img); err != nil {
		return "", 0, fmt.Errorf("set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", 0, fmt.Errorf("recognize text: %w", err)
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return strings.TrimSpace(text), 0, nil
	}
	scores := make([]float64, len(boxes))
	for i, b := range boxes {
		scores[i] = b.Confidence
	}
	return strings.TrimSpace(text), ocr.MeanPercent(scores), nil
}
