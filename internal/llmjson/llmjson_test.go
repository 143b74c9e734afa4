package llmjson

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"prose around", "Here is the estimate:\n{\"a\": {\"b\": [1, 2]}}\nLet me know!", `{"a": {"b": [1, 2]}}`},
		{"trailing braces in prose", `{"a": "x"} and then {"b": 2}`, `{"a": "x"}`},
		{"brace inside string", `{"a": "use } carefully"}`, `{"a": "use } carefully"}`},
		{"truncated array", `{"items": [{"q": 1}, {"q": 2}`, `{"items": [{"q": 1}, {"q": 2}]}`},
		{"truncated string", `{"summary": "Replace pan`, `{"summary": "Replace pan"}`},
		{"dangling key", `{"a": 1, "b":`, `{"a": 1}`},
		{"trailing comma", `{"a": [1, 2,`, `{"a": [1, 2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Extract(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, json.Valid([]byte(got)), "result must be valid JSON: %s", got)
		})
	}
}

func TestExtract_NoObject(t *testing.T) {
	t.Parallel()

	_, err := Extract("I need a few more details before estimating.")
	assert.ErrorIs(t, err, ErrNoObject)
}

func TestDecode(t *testing.T) {
	t.Parallel()

	var out struct {
		Ready         bool   `json:"ready"`
		Justification string `json:"justification"`
	}
	require.NoError(t, Decode("```json\n{\"ready\": true, \"justification\": \"scope known\"}\n```", &out))
	assert.True(t, out.Ready)
	assert.Equal(t, "scope known", out.Justification)

	assert.Error(t, Decode(`{"ready": tru`, &out))
}

func TestRepair_Empty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", Repair(""))
}
