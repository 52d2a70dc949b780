// Package gemini implements quality control and metadata generation on
// Google's Gemini API. Both operations send the image together with the
// prompt it was generated from and parse a strict JSON verdict out of the
// model's reply.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/phrazzld/easel-api/internal/domain"
	"github.com/phrazzld/easel-api/internal/platform/logger"
	"github.com/phrazzld/easel-api/internal/provider"
)

const providerName = "gemini"

// Common client failures
var (
	ErrEmptyAPIKey    = errors.New("gemini API key cannot be empty")
	ErrEmptyModelName = errors.New("gemini model name cannot be empty")
	ErrEmptyImage     = errors.New("image data cannot be empty")
)

const qcPromptTemplate = `You are a strict photo editor reviewing one AI-generated image.
The image was generated from this prompt:

%s

Judge whether the image is a usable realization of the prompt: the subject is
present and intact, no obvious artifacts, no garbled text. Respond with JSON
only, matching {"passed": bool, "reason": string}. Keep reason under 200
characters and leave it empty when passed is true.`

const metadataPromptTemplate = `You are writing catalog metadata for one AI-generated image.
The image was generated from this prompt:

%s

Respond with JSON only, matching {"title": string, "description": string,
"tags": [string]}. Title under 60 characters, description under 300, at most
10 short lowercase tags.`

// qcVerdict is the JSON schema the QC prompt demands.
type qcVerdict struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

// metadataResponse is the JSON schema the metadata prompt demands.
type metadataResponse struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Client implements provider.QualityChecker and provider.MetadataGenerator.
type Client struct {
	client *genai.Client
	model  string
}

// NewClient creates a Gemini-backed client for QC and metadata.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if model == "" {
		return nil, ErrEmptyModelName
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{client: client, model: model}, nil
}

// Check judges whether the image is a usable realization of its prompt.
func (c *Client) Check(ctx context.Context, image []byte, prompt string) (*provider.QCResult, error) {
	text, err := c.generate(ctx, "quality_check", image, fmt.Sprintf(qcPromptTemplate, prompt))
	if err != nil {
		return nil, err
	}

	var verdict qcVerdict
	if err := json.Unmarshal([]byte(text), &verdict); err != nil {
		return nil, provider.NewError(providerName, "quality_check", provider.KindRetryable,
			fmt.Errorf("failed to parse verdict: %w", err))
	}

	return &provider.QCResult{Passed: verdict.Passed, Reason: verdict.Reason}, nil
}

// Generate produces title, description, and tags for the image.
func (c *Client) Generate(ctx context.Context, image []byte, prompt string) (*domain.ImageMetadata, error) {
	text, err := c.generate(ctx, "metadata", image, fmt.Sprintf(metadataPromptTemplate, prompt))
	if err != nil {
		return nil, err
	}

	var parsed metadataResponse
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, provider.NewError(providerName, "metadata", provider.KindRetryable,
			fmt.Errorf("failed to parse metadata: %w", err))
	}

	return &domain.ImageMetadata{
		Title:       parsed.Title,
		Description: parsed.Description,
		Tags:        parsed.Tags,
	}, nil
}

// generate runs one multimodal call and returns the model's raw text reply.
func (c *Client) generate(ctx context.Context, operation string, image []byte, prompt string) (string, error) {
	log := logger.FromContext(ctx)

	if len(image) == 0 {
		return "", provider.NewError(providerName, operation, provider.KindFatal, ErrEmptyImage)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, "image/png"),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		log.Error("Gemini API call failed",
			"operation", operation,
			"error", err)
		return "", provider.NewError(providerName, operation, provider.KindRetryable, err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", provider.NewError(providerName, operation, provider.KindRetryable,
			errors.New("no content generated"))
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", provider.NewError(providerName, operation, provider.KindFatal,
			fmt.Errorf("%w: image blocked by safety filters", provider.ErrSafetyRejected))
	}
	if candidate.Content == nil {
		return "", provider.NewError(providerName, operation, provider.KindRetryable,
			errors.New("empty content in response"))
	}

	return extractJSON(replyText(candidate.Content)), nil
}

// replyText concatenates the text parts of the model's reply, skipping any
// non-text parts.
func replyText(content *genai.Content) string {
	var text strings.Builder
	for _, part := range content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}
	return text.String()
}

// extractJSON strips a markdown code fence if the model wrapped its reply in
// one.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	return s
}
