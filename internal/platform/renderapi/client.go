// Package renderapi is the HTTP client for the Render image service. It
// implements the generation, background-removal, and enhancement interfaces
// from internal/provider, translating HTTP failures into the provider error
// taxonomy so the retry engine can classify them.
package renderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/phrazzld/easel-api/internal/provider"
)

const providerName = "render"

// maxImageBytes bounds a downloaded artifact.
const maxImageBytes = 64 << 20

// Client talks to the Render API. Safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// generationIn is the request body for submitting a generation job.
type generationIn struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Seed   int64  `json:"seed,omitempty"`
}

// generationOut is the response for submit and poll.
type generationOut struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	ImageURL string `json:"image_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NewClient creates a Render API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Submit enqueues a generation job and returns its provider-side ID.
func (c *Client) Submit(ctx context.Context, req provider.GenerationRequest) (string, error) {
	jsonData, err := json.Marshal(generationIn{
		Prompt: req.Prompt,
		Model:  req.Model,
		Width:  req.Width,
		Height: req.Height,
		Seed:   req.Seed,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	body, err := c.do(ctx, "submit", http.MethodPost, c.baseURL+"/v1/generations", "application/json", bytes.NewReader(jsonData))
	if err != nil {
		return "", err
	}

	var result generationOut
	if err := json.Unmarshal(body, &result); err != nil {
		return "", provider.NewError(providerName, "submit", provider.KindRetryable,
			fmt.Errorf("failed to decode response: %w", err))
	}
	if result.ID == "" {
		return "", provider.NewError(providerName, "submit", provider.KindRetryable,
			errors.New("response missing job id"))
	}

	return result.ID, nil
}

// Poll fetches the current status of a generation job.
func (c *Client) Poll(ctx context.Context, jobID string) (*provider.JobStatus, error) {
	body, err := c.do(ctx, "poll", http.MethodGet, c.baseURL+"/v1/generations/"+jobID, "", nil)
	if err != nil {
		var pe *provider.Error
		if errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound {
			return nil, provider.NewError(providerName, "poll", provider.KindFatal,
				fmt.Errorf("%w: %s", provider.ErrJobNotFound, jobID))
		}
		return nil, err
	}

	var result generationOut
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, provider.NewError(providerName, "poll", provider.KindRetryable,
			fmt.Errorf("failed to decode response: %w", err))
	}

	status := &provider.JobStatus{
		ImageURL: result.ImageURL,
		Reason:   result.Error,
	}

	switch result.Status {
	case "queued", "pending":
		status.State = provider.JobStateQueued
	case "processing", "running":
		status.State = provider.JobStateProcessing
	case "succeeded", "completed":
		status.State = provider.JobStateSucceeded
	case "failed", "rejected":
		status.State = provider.JobStateFailed
	default:
		return nil, provider.NewError(providerName, "poll", provider.KindRetryable,
			fmt.Errorf("unknown job status %q", result.Status))
	}

	return status, nil
}

// Fetch downloads a finished artifact.
func (c *Client) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	return c.do(ctx, "fetch", http.MethodGet, imageURL, "", nil)
}

// RemoveBackground strips the background from an image.
func (c *Client) RemoveBackground(ctx context.Context, image []byte) ([]byte, error) {
	return c.do(ctx, "remove_background", http.MethodPost,
		c.baseURL+"/v1/edits/background-removal", "application/octet-stream", bytes.NewReader(image))
}

// Enhance runs the provider's enhancement pass over an image.
func (c *Client) Enhance(ctx context.Context, image []byte) ([]byte, error) {
	return c.do(ctx, "enhance", http.MethodPost,
		c.baseURL+"/v1/edits/enhance", "application/octet-stream", bytes.NewReader(image))
}

// do executes one request and returns the response body, classifying any
// failure into the provider error taxonomy.
func (c *Client) do(ctx context.Context, operation, method, url, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("x-api-key", c.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s cancelled: %w", operation, ctx.Err())
		}
		return nil, provider.NewError(providerName, operation, provider.KindRetryable,
			fmt.Errorf("request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, provider.NewError(providerName, operation, provider.KindRetryable,
			fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.errorFromResponse(operation, resp.StatusCode, data)
	}

	return data, nil
}

// errorFromResponse builds a classified error from a non-2xx response.
func (c *Client) errorFromResponse(operation string, status int, body []byte) error {
	message := strings.TrimSpace(string(body))

	var apiErr struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		message = apiErr.Error
	}

	err := &provider.Error{
		Provider:   providerName,
		Operation:  operation,
		Kind:       provider.ClassifyStatus(status),
		StatusCode: status,
		Message:    message,
	}

	if apiErr.Code == "safety_rejection" || strings.Contains(strings.ToLower(message), "safety") {
		err.Kind = provider.KindFatal
		err.Err = provider.ErrSafetyRejected
	}

	return err
}
