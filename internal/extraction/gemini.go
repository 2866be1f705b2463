package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements the Extractor interface using Google Gemini.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini Extractor instance.
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(extractionSystemPrompt)},
	}
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.1)

	return &Gemini{
		client: client,
		model:  model,
	}, nil
}

// Extract analyzes an invoice document and returns the structured data.
func (g *Gemini) Extract(ctx context.Context, data []byte, contentType string) (*Invoice, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	// Gemini accepts images, not PDFs-in-parts, so everything goes through
	// the PNG normalization first.
	payload, err := preparePayload(data, contentType)
	if err != nil {
		return nil, newError(ReasonTransportError, err)
	}

	parts := []genai.Part{
		genai.ImageData("png", payload),
		genai.Text(extractionUserPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, newError(classifyGeminiError(err), err)
	}

	if len(resp.Candidates) == 0 {
		return nil, newError(ReasonUnparseableResponse, fmt.Errorf("no response from gemini"))
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return nil, newError(ReasonSafetyBlocked, fmt.Errorf("response blocked: %s", cand.FinishReason))
	}
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return nil, newError(ReasonUnparseableResponse, fmt.Errorf("empty response from gemini"))
	}

	var responseText strings.Builder
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	inv, err := parseInvoiceJSON(responseText.String())
	if err != nil {
		return nil, newError(ReasonUnparseableResponse, err)
	}
	return inv, nil
}

// Close closes the Gemini client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// classifyGeminiError maps API failures onto the extraction error taxonomy.
// The genai client does not expose typed errors for these cases, so this
// matches on the message the same way the API docs suggest.
func classifyGeminiError(err error) Reason {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "safety"):
		return ReasonSafetyBlocked
	case strings.Contains(msg, "quota") || strings.Contains(msg, "429"):
		return ReasonQuotaExceeded
	default:
		return ReasonTransportError
	}
}
