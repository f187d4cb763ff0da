package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiAIParser parses PDF and image statements with Gemini.
type GeminiAIParser struct {
	apiKey string
	model  string
}

// NewGeminiAIParser creates a parser. An empty apiKey lets the client read
// GOOGLE_API_KEY or the Vertex AI environment; an empty model uses DefaultModelName.
func NewGeminiAIParser(apiKey, model string) *GeminiAIParser {
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiAIParser{apiKey: apiKey, model: model}
}

// ParseStatement sends the file to Gemini and returns {"transactions": [...]}.
func (p *GeminiAIParser) ParseStatement(ctx context.Context, data []byte, fileType string, maxOutputTokens int) (map[string]interface{}, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      p.apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("ParseStatement: create genai client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: buildStatementPrompt()},
				{
					InlineData: &genai.Blob{
						MIMEType: fileType,
						Data:     data,
					},
				},
			},
		},
	}

	var cfg *genai.GenerateContentConfig
	if maxOutputTokens > 0 {
		cfg = &genai.GenerateContentConfig{MaxOutputTokens: int32(maxOutputTokens)}
	}

	resp, err := client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("ParseStatement: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("ParseStatement: empty response from model")
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(cleanModelJSON(rawText)), &parsed); err != nil {
		return nil, fmt.Errorf("ParseStatement: unmarshal JSON: %w", err)
	}

	return map[string]interface{}{
		"transactions": parsed,
	}, nil
}

// cleanModelJSON strips Markdown fences and any text around the JSON array.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}

var _ AIParser = (*GeminiAIParser)(nil)
