package learning

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/estimator/internal/gateway"
	"github.com/sells-group/estimator/internal/model"
)

type stubCompleter struct {
	out   string
	err   error
	calls atomic.Int32
	last  gateway.CompletionRequest
}

func (s *stubCompleter) Complete(_ context.Context, req gateway.CompletionRequest) (string, error) {
	s.calls.Add(1)
	s.last = req
	return s.out, s.err
}

func items() []model.LineItem {
	return []model.LineItem{
		{Category: model.CategoryLabor, Description: "Electrician", Quantity: 4, Unit: "hours", Rate: 95},
		{Category: model.CategoryMaterials, Description: "200A panel", Quantity: 1, Unit: "each", Rate: 350},
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()

	orig := items()
	edited := items()
	edited[0].Rate = 85
	edited[1].Quantity = 2
	edited[1].Description = "200A main panel"
	edited = append(edited, model.LineItem{Description: "Permit", Quantity: 1, Unit: "each", Rate: 75.5})

	assert.Equal(t, []string{
		`Rate changed for "Electrician": $95 → $85`,
		`Quantity changed for "200A panel": 1 → 2`,
		`Description changed: "200A panel" → "200A main panel"`,
		"Added: Permit - 1 each @ $75.5",
	}, Diff(orig, edited))

	assert.Equal(t, []string{"Removed: 200A panel"}, Diff(orig, orig[:1]))
	assert.Empty(t, Diff(orig, items()))
}

func TestExtractLearnings_NoChangesNoCall(t *testing.T) {
	t.Parallel()

	s := &stubCompleter{}
	mems, err := NewLearner(s, "").ExtractLearnings(context.Background(), items(), items(), "  ")
	require.NoError(t, err)
	assert.Empty(t, mems)
	assert.Equal(t, int32(0), s.calls.Load())
}

func TestExtractLearnings(t *testing.T) {
	t.Parallel()

	s := &stubCompleter{out: `{"pricingCorrections": ["Use $85/hr for residential electrical"],
		"preferences": ["List permits separately", ""], "patterns": ["Adds a permit line on panel swaps"]}`}
	l := NewLearner(s, "")
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	edited := items()
	edited[0].Rate = 85
	mems, err := l.ExtractLearnings(context.Background(), items(), edited, "")
	require.NoError(t, err)
	require.Len(t, mems, 3)

	assert.Equal(t, model.MemoryPricingCorrection, mems[0].Type)
	assert.Equal(t, "high", mems[0].Metadata["confidence"])
	assert.Equal(t, model.MemoryPreference, mems[1].Type)
	assert.Equal(t, "medium", mems[1].Metadata["confidence"])
	assert.Equal(t, model.MemoryPattern, mems[2].Type)
	for _, m := range mems {
		assert.Equal(t, Source, m.Metadata["source"])
		assert.Equal(t, fixed, m.CreatedAt)
		assert.NotEmpty(t, m.ID)
	}

	assert.Equal(t, int32(1), s.calls.Load())
	assert.Equal(t, model.TierPro, s.last.Tier)
	assert.True(t, s.last.JSONMode)
	assert.InDelta(t, 0.2, s.last.Temperature, 1e-9)
	assert.Contains(t, s.last.Messages[0].Content, `Rate changed for "Electrician": $95 → $85`)
}

func TestExtractLearnings_NotesOnly(t *testing.T) {
	t.Parallel()

	s := &stubCompleter{out: `{"preferences": ["Always quote cleanup"]}`}
	mems, err := NewLearner(s, "").ExtractLearnings(context.Background(), items(), items(), "add cleanup next time")
	require.NoError(t, err)
	require.Len(t, mems, 1)
	assert.Contains(t, s.last.Messages[0].Content, "## Contractor Notes:\nadd cleanup next time")
}

func TestExtractLearnings_MalformedIsEmpty(t *testing.T) {
	t.Parallel()

	s := &stubCompleter{out: "I noticed the rate went down."}
	mems, err := NewLearner(s, "").ExtractLearnings(context.Background(), items(), items()[:1], "")
	require.NoError(t, err)
	assert.Empty(t, mems)
}

func TestExtractLearnings_GatewayError(t *testing.T) {
	t.Parallel()

	s := &stubCompleter{err: errors.New("gateway: transport")}
	_, err := NewLearner(s, model.TierExpert).ExtractLearnings(context.Background(), items(), items()[:1], "")
	require.Error(t, err)
	assert.Equal(t, model.TierExpert, s.last.Tier)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var mems []model.Memory
	types := []model.MemoryType{model.MemoryPricingCorrection, model.MemoryPreference, model.MemoryPattern, model.MemoryStyle}
	for i := 0; i < 12; i++ {
		mems = append(mems, model.Memory{
			Type:      types[i%4],
			Content:   string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}

	s := Summarize(mems)
	assert.Equal(t, 3, s.TotalCorrections)
	assert.Equal(t, 3, s.TotalPreferences)
	assert.Equal(t, 3, s.TotalPatterns)
	assert.Equal(t, 3, s.TotalStyles)
	require.Len(t, s.Recent, RecentLimit)
	assert.Equal(t, "l", s.Recent[0].Content)

	assert.NotNil(t, Summarize(nil).Recent)
}
