package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateContent(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "gemini-2.5-flash:generateContent")
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": `{"ready": true}`}},
				},
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]any{
				"promptTokenCount":     42,
				"candidatesTokenCount": 7,
			},
		})
	}))
	defer ts.Close()

	client, err := NewClient(context.Background(), "test-key", ts.URL, 0)
	require.NoError(t, err)

	temp := float32(0)
	resp, err := client.GenerateContent(context.Background(), Request{
		Model:       "gemini-2.5-flash",
		System:      "Classify readiness.",
		Temperature: &temp,
		MaxTokens:   200,
		JSON:        true,
		Messages: []Message{
			{Role: "user", Text: "Need a panel swap", Images: []Image{{MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ready": true}`, resp.Text)
	assert.Equal(t, int64(42), resp.InputTokens)
	assert.Equal(t, int64(7), resp.OutputTokens)

	cfg := body["generationConfig"].(map[string]any)
	assert.Equal(t, "application/json", cfg["responseMimeType"])
	assert.NotNil(t, body["systemInstruction"])

	contents := body["contents"].([]any)
	require.Len(t, contents, 1)
	parts := contents[0].(map[string]any)["parts"].([]any)
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0].(map[string]any), "inlineData")
	assert.Equal(t, "Need a panel swap", parts[1].(map[string]any)["text"])
}

func TestGenerateContent_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`)) //nolint:errcheck
	}))
	defer ts.Close()

	client, err := NewClient(context.Background(), "test-key", ts.URL, 0)
	require.NoError(t, err)

	_, err = client.GenerateContent(context.Background(), Request{
		Model:    "gemini-2.5-flash",
		Messages: []Message{{Role: "user", Text: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini: generate content")
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
}

func TestToContent_Roles(t *testing.T) {
	assert.Equal(t, "model", string(toContent(Message{Role: "assistant", Text: "ok"}).Role))
	assert.Equal(t, "user", string(toContent(Message{Role: "user", Text: "ok"}).Role))
	assert.Len(t, toContent(Message{Role: "user"}).Parts, 1)
}
