package analysis

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"docflow/internal/document/models"
)

// Vertex calls a Gemini model on Vertex AI with JSON output forced.
type Vertex struct {
	name  string
	model *genai.GenerativeModel
}

func NewVertex(name string, client *genai.Client, modelName string) *Vertex {
	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.1),
		MaxOutputTokens:  genai.Ptr[int32](1000),
	}
	return &Vertex{name: name, model: model}
}

func (v *Vertex) Name() string { return v.name }

func (v *Vertex) Analyze(ctx context.Context, req Request) (models.ProviderResult, error) {
	resp, err := v.model.GenerateContent(ctx, genai.Text(buildPrompt(req)))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.ProviderResult{}, NewProviderError(ErrorTimeout, v.name, "generate content timed out", err)
		}
		return models.ProviderResult{}, NewProviderError(ErrorProviderOutage, v.name, "generate content", err)
	}
	text := responseText(resp)
	if text == "" {
		return models.ProviderResult{}, NewProviderError(ErrorBadData, v.name, "empty response", nil)
	}
	return parseResponse(v.name, text)
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}
