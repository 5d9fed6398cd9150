package imageprep

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// textOnlyPDF builds a one-page PDF with a text content stream and no images.
func textOnlyPDF() []byte {
	stream := "BT /F1 12 Tf 72 720 Td (Boleto ACME) Tj ET"
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestPages(t *testing.T) {
	t.Run("images are recognized as a single page", func(t *testing.T) {
		img := encodePNG(t, page(10, 10, true))
		for _, mt := range []string{"image/png", "image/jpeg", "image/jpg"} {
			pages, err := Pages(mt, img)
			require.NoError(t, err, mt)
			assert.Equal(t, [][]byte{img}, pages)
		}
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := Pages("text/plain", []byte("hello"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "text/plain")
	})

	t.Run("pdf without images", func(t *testing.T) {
		_, err := Pages("application/pdf", textOnlyPDF())
		assert.ErrorIs(t, err, ErrNoImages)
	})

	t.Run("malformed pdf is an extraction error", func(t *testing.T) {
		_, err := Pages("application/pdf", []byte("%PDF-1.4 truncated"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoImages)
		assert.Contains(t, err.Error(), "extract pdf images")
	})
}
