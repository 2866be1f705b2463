package extraction

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAICompat implements the Extractor interface against any provider that
// speaks the OpenAI chat-completions wire format with vision input. Zhipu and
// SiliconFlow endpoints differ from OpenAI only in base URL.
type OpenAICompat struct {
	client *openai.Client
	model  string
}

// NewOpenAICompat creates an Extractor for an OpenAI-compatible endpoint.
// baseURL may be empty for the official OpenAI API.
func NewOpenAICompat(baseURL, apiKey, modelName string) (*OpenAICompat, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}

	return &OpenAICompat{
		client: openai.NewClientWithConfig(cfg),
		model:  modelName,
	}, nil
}

// Extract analyzes an invoice document and returns the structured data.
func (o *OpenAICompat) Extract(ctx context.Context, data []byte, contentType string) (*Invoice, error) {
	// These providers only take inline images, so PDFs are rendered to PNG
	// before the call.
	payload, err := preparePayload(data, contentType)
	if err != nil {
		return nil, newError(ReasonTransportError, err)
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: extractionSystemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: extractionUserPrompt,
					},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURL},
					},
				},
			},
		},
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, newError(classifyOpenAIError(err), err)
	}
	if len(resp.Choices) == 0 {
		return nil, newError(ReasonUnparseableResponse, fmt.Errorf("no choices in response"))
	}

	inv, err := parseInvoiceJSON(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, newError(ReasonUnparseableResponse, err)
	}
	return inv, nil
}

// Close closes the extractor (no-op for HTTP client).
func (o *OpenAICompat) Close() error {
	return nil
}

func classifyOpenAIError(err error) Reason {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return ReasonQuotaExceeded
		}
		if strings.Contains(strings.ToLower(fmt.Sprint(apiErr.Message)), "safety") {
			return ReasonSafetyBlocked
		}
	}
	return ReasonTransportError
}
