package strategies

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"docflow/internal/ocr"
)

const (
	NameFilename = "filename"

	// filenameConfidence keeps filename guesses below any sane threshold.
	filenameConfidence = 0.3
)

var (
	filenameDate     = regexp.MustCompile(`(\d{2})[.\-_](\d{2})[.\-_](\d{4})`)
	filenameCurrency = regexp.MustCompile(`R\$?\s?(\d{1,3}(?:\.\d{3})*(?:,\d{2})?)`)
	filenameTaxID    = regexp.MustCompile(`\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2}|\d{3}\.\d{3}\.\d{3}-\d{2}`)
	filenameCategory = regexp.MustCompile(`(?i)transporte|uber|taxi|combustivel|gasolina|manutencao|pneu|pecas|aluguel|locacao|energia|agua|telefone|internet|material|escritorio`)
	filenameNoise    = regexp.MustCompile(`[\d./\-_]+`)
)

// Filename derives structured text from the file name alone. It is the last
// resort and never reaches the acceptance threshold.
type Filename struct{}

func NewFilename() Filename { return Filename{} }

func (Filename) Name() string { return NameFilename }

func (Filename) Attempt(ctx context.Context, c ocr.Content) (ocr.Attempt, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Attempt{}, err
	}
	base := strings.TrimSuffix(filepath.Base(c.Filename), filepath.Ext(c.Filename))
	text := describeFilename(base)
	if text == "" {
		return ocr.Attempt{}, nil
	}
	return ocr.Attempt{Text: text, Confidence: filenameConfidence}, nil
}

func describeFilename(name string) string {
	var parts []string
	if m := filenameCurrency.FindStringSubmatch(name); m != nil {
		parts = append(parts, "Valor: R$ "+m[1])
	}
	if m := filenameDate.FindStringSubmatch(name); m != nil {
		parts = append(parts, "Data: "+m[1]+"/"+m[2]+"/"+m[3])
	}
	if m := filenameTaxID.FindString(name); m != "" {
		parts = append(parts, "Documento: "+m)
	}
	if cats := uniqueLower(filenameCategory.FindAllString(name, -1)); len(cats) > 0 {
		parts = append(parts, "Categoria: "+strings.Join(cats, ", "))
	}
	desc := strings.Join(strings.Fields(filenameNoise.ReplaceAllString(name, " ")), " ")
	if len(desc) > 5 {
		parts = append(parts, "Descrição: "+desc)
	}
	return strings.Join(parts, "\n")
}

func uniqueLower(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(s)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
