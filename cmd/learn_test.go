package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/estimator/internal/model"
)

func TestLoadEdits(t *testing.T) {
	path := writeFile(t, t.TempDir(), "edits.yaml", `
notes: Labor rate went up this year
line_items:
  - category: labor
    description: Electrician
    quantity: 4
    unit: hours
    rate: 110
    confidence: high
  - category: Disposal
    description: Haul away old panel
    quantity: 1
    unit: each
    rate: 75
`)

	f, err := loadEdits(path)
	require.NoError(t, err)
	assert.Equal(t, "Labor rate went up this year", f.Notes)

	items, err := f.items()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, model.CategoryLabor, items[0].Category)
	assert.Equal(t, 440.0, items[0].Total)
	assert.Equal(t, model.CategoryOther, items[1].Category)
	assert.Equal(t, model.ConfidenceMedium, items[1].Confidence)
}

func TestEditItems_Invalid(t *testing.T) {
	f := &editFile{LineItems: []editItem{{Category: "Labor", Description: " ", Quantity: 1, Rate: 1}}}
	_, err := f.items()
	assert.ErrorContains(t, err, "line_items[0]")

	f = &editFile{LineItems: []editItem{{Category: "Labor", Description: "x", Quantity: -1, Rate: 1}}}
	_, err = f.items()
	assert.ErrorContains(t, err, "invalid quantity")
}

func TestLearnCommand_NeedsOneSource(t *testing.T) {
	loadTestConfig(t)
	t.Cleanup(func() { learnAccount, learnEstimate, learnEdits, learnXLSX = "", "", "", "" })

	rootCmd.SetArgs([]string{"learn", "--account", "demo", "--estimate", "e1"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.ExecuteContext(context.Background())
	assert.ErrorContains(t, err, "exactly one of --edits or --xlsx")
}

func TestLearnCommand_UnknownEstimate(t *testing.T) {
	dir := loadTestConfig(t)
	path := writeFile(t, dir, "edits.yaml", "line_items:\n  - {category: Labor, description: Electrician, quantity: 1, rate: 95}\n")
	t.Cleanup(func() { learnAccount, learnEstimate, learnEdits, learnXLSX = "", "", "", "" })

	rootCmd.SetArgs([]string{"learn", "--account", "demo", "--estimate", "missing", "--edits", path})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.ExecuteContext(context.Background())
	assert.ErrorContains(t, err, "load estimate missing")
}
