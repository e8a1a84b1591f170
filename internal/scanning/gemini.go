package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/zombor/receipt-items/internal/extraction"
)

// structuredScanPrompt asks the model for a CORD-style parse of the receipt
const structuredScanPrompt = `You are parsing a purchase receipt. Read every printed line item and return ONLY valid JSON in this exact shape:
{
  "menu": [
    {"nm": "Item name as printed", "cnt": "1", "price": "4.49"}
  ]
}

Rules:
- One entry per purchased line item, in the order printed, even if names repeat
- "price" is the amount printed for that line, as a string
- "cnt" is the printed quantity, or "1" when none is printed
- Do NOT include subtotals, taxes, totals, tips, change or payment lines
- If no items can be read, return {"menu": []}
- Do not include any text before or after the JSON`

// Gemini implements the Scanner interface using Google Gemini. It produces
// structured documents.
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
}

// NewGemini creates a new Gemini Scanner instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)

	return &Gemini{
		client:  client,
		model:   model,
		timeout: 30 * time.Second,
	}, nil
}

// ScanReceipt asks Gemini for the receipt's item tree
func (g *Gemini) ScanReceipt(ctx context.Context, imageData []byte, contentType string) (extraction.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	pngData, err := normalizeImage(imageData, contentType)
	if err != nil {
		return nil, err
	}

	// genai.ImageData takes the format suffix, not the MIME type
	resp, err := g.model.GenerateContent(ctx, genai.ImageData("png", pngData), genai.Text(structuredScanPrompt))
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	return ParseStructured(responseText.String()), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
