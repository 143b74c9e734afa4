// Package gemini wraps the Google Gen AI SDK for the Gemini API behind a
// small interface that speaks the estimator's own types.
package gemini

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// Client defines the Gemini operations the estimator uses.
type Client interface {
	GenerateContent(ctx context.Context, req Request) (*Response, error)
}

// Request is a single generateContent call.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Temperature *float32
	MaxTokens   int32
	JSON        bool
}

// Message is one conversational message. Role is "user" or "model".
type Message struct {
	Role   string
	Text   string
	Images []Image
}

// Image is raw image bytes with their MIME type.
type Image struct {
	MIMEType string
	Data     []byte
}

// Response is the text and token usage of a call.
type Response struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
	CachedTokens int64
}

type sdkClient struct {
	client *genai.Client
}

// NewClient creates a Gemini API client. baseURL may be empty.
func NewClient(ctx context.Context, apiKey, baseURL string, timeout time.Duration) (Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions.BaseURL = baseURL
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: new client")
	}
	return &sdkClient{client: c}, nil
}

func (c *sdkClient) GenerateContent(ctx context.Context, req Request) (*Response, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		contents = append(contents, toContent(m))
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxTokens,
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: generate content")
	}

	out := &Response{Text: resp.Text(), Model: req.Model}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.InputTokens = int64(u.PromptTokenCount)
		out.OutputTokens = int64(u.CandidatesTokenCount)
		out.CachedTokens = int64(u.CachedContentTokenCount)
	}
	return out, nil
}

func toContent(m Message) *genai.Content {
	role := genai.Role(genai.RoleUser)
	if m.Role == "model" || m.Role == "assistant" {
		role = genai.RoleModel
	}
	parts := make([]*genai.Part, 0, len(m.Images)+1)
	for _, img := range m.Images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	if m.Text != "" || len(parts) == 0 {
		parts = append(parts, genai.NewPartFromText(m.Text))
	}
	return genai.NewContentFromParts(parts, role)
}

// StatusCode returns the HTTP status of an API error in err's chain, or 0.
func StatusCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code
	}
	return 0
}
