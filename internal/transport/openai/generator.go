// Package openai is the vision/text query-generation collaborator: it asks
// a multimodal model for one best marketplace search query given the
// uploaded photos and an optional user hint.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/snapvalue/snapvalue/internal/domain"
)

const extractionPrompt = `
You generate ONE best eBay search query for the item in the image.

STRICT RULES (MUST FOLLOW):
- Output ONLY raw JSON.
- Do NOT include markdown, code fences, comments, or extra text.
- Do NOT wrap the JSON in ` + "```" + ` or any other formatting.
- All numbers must be valid JSON numbers.
- Confidence MUST be a number between 0 and 1.

IDENTIFICATION RULES:
- The image is the source of truth. User text is a hint only.
- DO NOT invent brand, model, or year unless visible text confirms it.
- If the item appears to be clothing, try and identify the specific color of the item.
- If a distinctive mechanism or material is visible, include it
  (e.g., "eject", "teak", "push button").
- Prefer common eBay wording over technical jargon.

RESPONSE FORMAT (EXACT):
{"query":"<string>","confidence":<number between 0 and 1>}
`

// Generator proposes an initial marketplace query from images.
type Generator struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// Config holds the query generator settings.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Logger    *zap.Logger
}

// NewGenerator creates a vision query generator on an OpenAI-compatible API.
func NewGenerator(cfg *Config) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Generator{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
	}
}

// Generate sends the prompt, the optional user hint, and every image to the
// model and parses the strict-JSON {query, confidence} answer. A transport
// failure maps to ErrCollaboratorUnavailable; a malformed or query-less
// answer maps to ErrBadCollaboratorResponse. Both are fatal to the request.
func (g *Generator) Generate(
	ctx context.Context, images [][]byte, userText string,
) (domain.GeneratedQuery, error) {
	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: extractionPrompt},
	}
	if t := strings.TrimSpace(userText); t != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: "User text: " + t,
		})
	}
	for _, img := range images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL: dataURL(img),
			},
		})
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
	})
	if err != nil {
		return domain.GeneratedQuery{}, fmt.Errorf("%w: %s", domain.ErrCollaboratorUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return domain.GeneratedQuery{}, fmt.Errorf("%w: empty completion", domain.ErrBadCollaboratorResponse)
	}

	raw := resp.Choices[0].Message.Content

	var out domain.GeneratedQuery
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		g.logger.Warn("query generator returned non-JSON", zap.String("raw", truncate(raw, 500)))
		return domain.GeneratedQuery{}, fmt.Errorf("%w: not valid JSON", domain.ErrBadCollaboratorResponse)
	}
	if strings.TrimSpace(out.Query) == "" {
		return domain.GeneratedQuery{}, fmt.Errorf("%w: missing query field", domain.ErrBadCollaboratorResponse)
	}

	g.logger.Debug("query generated",
		zap.String("query", out.Query), zap.Float64("confidence", out.Confidence))
	return out, nil
}

// dataURL inlines image bytes for the multimodal API. JPEG is declared
// regardless of the real codec; the API sniffs the actual content.
func dataURL(img []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
