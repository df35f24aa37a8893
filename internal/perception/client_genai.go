package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"shopagent/internal/logging"
)

// GenAIClient implements LLMClient using the official Google GenAI SDK.
// It is the default provider; GeminiClient remains available for
// deployments that need the raw REST surface.
type GenAIClient struct {
	client *genai.Client
	model  string
}

// NewGenAIClient creates a new SDK-backed Gemini client.
func NewGenAIClient(ctx context.Context, apiKey, model string) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIClient{client: client, model: model}, nil
}

// Complete sends a prompt and returns the completion.
func (c *GenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *GenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.4),
	}
	if strings.TrimSpace(systemPrompt) != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	return c.generate(ctx, []*genai.Content{
		genai.NewContentFromText(userPrompt, genai.RoleUser),
	}, config, "CompleteWithSystem")
}

// CompleteWithSchema requests structured JSON output.
func (c *GenAIClient) CompleteWithSchema(ctx context.Context, systemPrompt, userPrompt, jsonSchema string) (string, error) {
	config, err := c.structuredConfig(systemPrompt, jsonSchema)
	if err != nil {
		return "", err
	}
	return c.generate(ctx, []*genai.Content{
		genai.NewContentFromText(userPrompt, genai.RoleUser),
	}, config, "CompleteWithSchema")
}

// CompleteWithImage requests structured JSON output for a prompt plus an
// inline JPEG image.
func (c *GenAIClient) CompleteWithImage(ctx context.Context, systemPrompt, userPrompt string, image []byte, jsonSchema string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("image payload is empty")
	}
	config, err := c.structuredConfig(systemPrompt, jsonSchema)
	if err != nil {
		return "", err
	}
	content := genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(userPrompt),
		genai.NewPartFromBytes(image, "image/jpeg"),
	}, genai.RoleUser)
	return c.generate(ctx, []*genai.Content{content}, config, "CompleteWithImage")
}

func (c *GenAIClient) structuredConfig(systemPrompt, jsonSchema string) (*genai.GenerateContentConfig, error) {
	var schema map[string]any
	if err := json.Unmarshal([]byte(jsonSchema), &schema); err != nil {
		return nil, fmt.Errorf("invalid json schema: %w", err)
	}
	config := &genai.GenerateContentConfig{
		Temperature:        genai.Ptr[float32](0.2),
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: schema,
	}
	if strings.TrimSpace(systemPrompt) != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	return config, nil
}

func (c *GenAIClient) generate(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig, op string) (string, error) {
	logging.PerceptionDebug("[GenAI] %s: model=%s", op, c.model)
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		logging.PerceptionError("[GenAI] %s failed: %v", op, err)
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("no completion returned")
	}
	logging.Perception("[GenAI] %s: response_len=%d", op, len(text))
	return text, nil
}
