// Package strategies holds the pure-Go OCR strategies.
package strategies

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"docflow/internal/ocr"
)

// ErrNotPDF is returned by TextLayer for non-PDF content.
var ErrNotPDF = errors.New("content is not a PDF")

const (
	NameTextLayer = "text_layer"

	richTextLayerChars = 50
)

// TextLayer reads the embedded text layer of a PDF. Scanned PDFs have none
// and score zero.
type TextLayer struct{}

func NewTextLayer() TextLayer { return TextLayer{} }

func (TextLayer) Name() string { return NameTextLayer }

func (TextLayer) Attempt(ctx context.Context, c ocr.Content) (att ocr.Attempt, err error) {
	if c.MimeType != "application/pdf" {
		return ocr.Attempt{}, ErrNotPDF
	}
	if err := ctx.Err(); err != nil {
		return ocr.Attempt{}, err
	}

	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			att, err = ocr.Attempt{}, fmt.Errorf("read pdf text layer: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(c.Data), int64(len(c.Data)))
	if err != nil {
		return ocr.Attempt{}, err
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return ocr.Attempt{}, err
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return ocr.Attempt{}, err
	}

	text := strings.TrimSpace(string(raw))
	return ocr.Attempt{Text: text, Confidence: textLayerConfidence(text)}, nil
}

func textLayerConfidence(text string) float64 {
	n := len([]rune(text))
	switch {
	case n == 0:
		return 0
	case n > richTextLayerChars:
		return 0.95
	default:
		return 0.7
	}
}
