package gateway

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/sells-group/estimator/internal/cost"
	"github.com/sells-group/estimator/internal/model"
	"github.com/sells-group/estimator/pkg/anthropic"
	"github.com/sells-group/estimator/pkg/gemini"
)

// Provider names used in routing tables and logs.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Provider is one model backend. Implementations translate the
// provider-neutral Call into their own request shape and classify failures
// with classify.
type Provider interface {
	Name() string
	Complete(ctx context.Context, call Call) (*Result, error)
}

// Call is a provider-neutral completion request with images already loaded.
type Call struct {
	Tier        model.Tier
	Model       string
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	JSON        bool
	NoPrefill   bool
}

// Message is one turn of a Call.
type Message struct {
	Role   model.Role
	Text   string
	Images []Image
}

// Image is a loaded photo.
type Image struct {
	MediaType string
	Data      []byte
}

// Result is the text a provider produced and what it cost.
type Result struct {
	Text  string
	Model string
	Usage cost.Usage
}

// AnthropicProvider serves tiers routed to Claude.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider wraps client. A nil client yields a nil provider so
// callers can pass the result straight to New when no key is configured.
func NewAnthropicProvider(client anthropic.Client) Provider {
	if client == nil {
		return nil
	}
	return &AnthropicProvider{client: client}
}

func (p *AnthropicProvider) Name() string { return ProviderAnthropic }

// jsonPrefill opens the assistant reply so Claude continues a JSON object.
const jsonPrefill = "{"

func (p *AnthropicProvider) Complete(ctx context.Context, call Call) (*Result, error) {
	msgs := make([]anthropic.Message, 0, len(call.Messages)+1)
	for _, m := range call.Messages {
		if m.Role == model.RoleSystem {
			continue
		}
		am := anthropic.Message{Role: "user", Content: m.Text}
		if m.Role == model.RoleAssistant {
			am.Role = "assistant"
		}
		for _, img := range m.Images {
			am.Images = append(am.Images, anthropic.Image{
				MediaType: img.MediaType,
				Data:      base64.StdEncoding.EncodeToString(img.Data),
			})
		}
		msgs = append(msgs, am)
	}

	system := call.System
	if call.JSON {
		system += "\n\nRespond with a single valid JSON object and nothing else."
		if !call.NoPrefill {
			msgs = append(msgs, anthropic.Message{Role: "assistant", Content: jsonPrefill})
		}
	}

	temp := call.Temperature
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       call.Model,
		MaxTokens:   int64(call.MaxTokens),
		System:      anthropic.BuildCachedSystemBlocks(strings.TrimSpace(system)),
		Messages:    msgs,
		Temperature: &temp,
	})
	if err != nil {
		return nil, classify(ctx, err, anthropic.StatusCode(err), call.Tier, ProviderAnthropic, settingFor(ProviderAnthropic))
	}

	text := resp.Text()
	if call.JSON && !call.NoPrefill && strings.TrimSpace(text) != "" && !strings.HasPrefix(strings.TrimSpace(text), "{") {
		text = jsonPrefill + text
	}
	return &Result{
		Text:  text,
		Model: resp.Model,
		Usage: cost.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			CacheWrite:   resp.Usage.CacheCreationInputTokens,
			CacheRead:    resp.Usage.CacheReadInputTokens,
		},
	}, nil
}

// GeminiProvider serves tiers routed to Gemini.
type GeminiProvider struct {
	client gemini.Client
}

// NewGeminiProvider wraps client. A nil client yields a nil provider.
func NewGeminiProvider(client gemini.Client) Provider {
	if client == nil {
		return nil
	}
	return &GeminiProvider{client: client}
}

func (p *GeminiProvider) Name() string { return ProviderGemini }

func (p *GeminiProvider) Complete(ctx context.Context, call Call) (*Result, error) {
	msgs := make([]gemini.Message, 0, len(call.Messages))
	for _, m := range call.Messages {
		if m.Role == model.RoleSystem {
			continue
		}
		gm := gemini.Message{Role: "user", Text: m.Text}
		if m.Role == model.RoleAssistant {
			gm.Role = "model"
		}
		for _, img := range m.Images {
			gm.Images = append(gm.Images, gemini.Image{MIMEType: img.MediaType, Data: img.Data})
		}
		msgs = append(msgs, gm)
	}

	temp := float32(call.Temperature)
	resp, err := p.client.GenerateContent(ctx, gemini.Request{
		Model:       call.Model,
		System:      call.System,
		Messages:    msgs,
		Temperature: &temp,
		MaxTokens:   int32(call.MaxTokens),
		JSON:        call.JSON,
	})
	if err != nil {
		return nil, classify(ctx, err, gemini.StatusCode(err), call.Tier, ProviderGemini, settingFor(ProviderGemini))
	}
	return &Result{
		Text:  resp.Text,
		Model: resp.Model,
		Usage: cost.Usage{
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			CacheRead:    resp.CachedTokens,
		},
	}, nil
}

// settingFor names the configuration a provider's credential comes from.
func settingFor(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	}
	return strings.ToUpper(provider) + "_API_KEY"
}
