package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"docflow/internal/document/models"
)

const systemPrompt = "Você é um especialista em análise de documentos financeiros brasileiros. Responda sempre em JSON válido."

// maxPromptText keeps prompts within provider context limits.
const maxPromptText = 12000

func buildPrompt(req Request) string {
	text := req.Text
	if r := []rune(text); len(r) > maxPromptText {
		text = string(r[:maxPromptText])
	}
	var b strings.Builder
	b.WriteString("Analise o documento financeiro abaixo e responda apenas com um objeto JSON no formato:\n")
	b.WriteString(`{"categories": ["categoria principal", "..."], "fields": {"amount": "R$ X.XXX,XX", "due_date": "DD/MM/AAAA", "payment_date": "DD/MM/AAAA", "supplier": "...", "tax_id": "CNPJ/CPF", "description": "...", "cost_center": "..."}, "confidence": 0-100}`)
	b.WriteString("\nOmita campos que não puder identificar.\n\n")
	fmt.Fprintf(&b, "Nome do arquivo: %s\n", req.Filename)
	for k, v := range req.Metadata {
		fmt.Fprintf(&b, "%s: %s\n", k, v)
	}
	b.WriteString("\nTexto extraído:\n")
	b.WriteString(text)
	return b.String()
}

type providerResponse struct {
	Categories []string       `json:"categories"`
	Category   string         `json:"category"`
	Fields     map[string]any `json:"fields"`
	Confidence float64        `json:"confidence"`
}

// parseResponse decodes a provider's JSON answer. Markdown fences are
// stripped; confidences above 1 are read as percentages.
func parseResponse(provider, raw string) (models.ProviderResult, error) {
	body := stripFences(raw)
	var resp providerResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return models.ProviderResult{}, NewProviderError(ErrorBadData, provider, "response is not valid JSON", err)
	}

	categories := make([]string, 0, len(resp.Categories)+1)
	if resp.Category != "" {
		categories = append(categories, resp.Category)
	}
	for _, c := range resp.Categories {
		if c = strings.TrimSpace(c); c != "" {
			categories = append(categories, c)
		}
	}

	fields := make(map[string]string, len(resp.Fields))
	for k, v := range resp.Fields {
		if v == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		if s != "" {
			fields[k] = s
		}
	}
	normalizeFields(fields)

	conf := resp.Confidence
	if conf > 1 {
		conf /= 100
	}
	return models.ProviderResult{
		Categories: categories,
		Fields:     fields,
		Confidence: clamp(conf),
	}, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
