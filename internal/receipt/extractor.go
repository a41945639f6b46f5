package receipt

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/welth/internal/domain"
)

// Extractor sends a receipt image to a vision-capable model and returns the
// raw text response. Parsing is the normalizer's job. This interface enables
// mocking the AI call in handler and worker tests.
type Extractor interface {
	// Extract returns the model's raw (fence-stripped) text for the image.
	Extract(ctx context.Context, image []byte, mimeType string) (string, error)
}

// GeminiExtractor is the concrete Extractor backed by the Gemini API.
type GeminiExtractor struct {
	client *genai.Client
	model  string
}

// NewGeminiExtractor creates an extractor using the given model name,
// falling back to DefaultModelName when empty. Credentials come from the
// environment (GEMINI_API_KEY / application default credentials).
func NewGeminiExtractor(ctx context.Context, model string) (*GeminiExtractor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiExtractor: create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiExtractor{client: client, model: model}, nil
}

// Extract implements Extractor. Input constraints are checked before any
// network call; there are no retries at this layer - the caller may let the
// user retry the whole scan.
func (e *GeminiExtractor) Extract(ctx context.Context, image []byte, mimeType string) (string, error) {
	if err := ValidateImage(image, mimeType); err != nil {
		return "", err
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: receiptPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     image,
					},
				},
			},
		},
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("%w: generate content: %v", domain.ErrExtractionService, err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return "", fmt.Errorf("%w: empty response from model", domain.ErrExtractionService)
	}

	return CleanModelJSON(rawText), nil
}

// ValidateImage rejects unusable uploads before any network call.
func ValidateImage(image []byte, mimeType string) error {
	if len(image) == 0 {
		return fmt.Errorf("%w: empty image", domain.ErrInvalidInput)
	}
	if len(image) > MaxImageBytes {
		return fmt.Errorf("%w: image exceeds %d bytes", domain.ErrInvalidInput, MaxImageBytes)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return fmt.Errorf("%w: unsupported content type %q", domain.ErrInvalidInput, mimeType)
	}
	return nil
}

// CleanModelJSON strips accidental Markdown fencing from a model response.
// Models sometimes ignore the no-markdown instruction and wrap the object in
// ```json ... ``` or bare backticks.
func CleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return strings.Trim(s, "` \t")
		}
		s = strings.TrimSpace(s)
	}

	// Remove trailing ``` if present.
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.Trim(strings.TrimSpace(s), "`")
	s = strings.TrimSpace(s)

	// Extra safety: if there's still junk around the JSON object,
	// keep only from the first '{' to the last '}'.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
