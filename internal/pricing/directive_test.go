package pricing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/estimator/internal/model"
)

func testProfile() *model.CompanyProfile {
	minJob := 250.0
	return &model.CompanyProfile{
		CompanyName:       "Volt Bros Electric",
		Trades:            []string{"electrical", "low voltage"},
		ServiceArea:       model.ServiceArea{City: "Austin", State: "TX"},
		LaborRates:        map[string]float64{"electrician": 95, "apprentice": 47.5, "master electrician": 135},
		MaterialMarkupPct: 25,
		OverheadProfitPct: 15,
		TaxRate:           0.0825,
		MinJobSize:        &minJob,
		CommonJobTypes:    []string{"Panel upgrades", "EV chargers"},
		CrewSizes:         map[string]int{"small": 1, "large": 3},
		EquipmentOwned:    []string{"Bucket truck"},
		PaymentTerms:      "50% deposit",
	}
}

func TestBuild_ProfileIncomplete(t *testing.T) {
	t.Parallel()

	_, err := BuildDirective(nil, nil)
	var pie *ProfileIncompleteError
	require.ErrorAs(t, err, &pie)

	p := testProfile()
	p.LaborRates = nil
	_, err = BuildDirective(p, nil)
	require.ErrorAs(t, err, &pie)
	assert.Contains(t, pie.Error(), "labor rates")
}

func TestBuild_LaborRatesVerbatim(t *testing.T) {
	t.Parallel()

	p := testProfile()
	out, err := BuildDirective(p, nil)
	require.NoError(t, err)

	for role, rate := range p.LaborRates {
		assert.Contains(t, out, fmt.Sprintf("- %s: $%s/hr", role, strconv.FormatFloat(rate, 'f', -1, 64)))
	}
	assert.Contains(t, out, "- apprentice: $47.5/hr")
	assert.Contains(t, out, "Material Markup: 25%")
	assert.Contains(t, out, "Overhead & Profit: 15%")
	assert.Contains(t, out, "Tax Rate: 8.25% (0.0825 of subtotal)")
	assert.Contains(t, out, "Minimum Job Size: $250")
	assert.NotContains(t, out, "Service Call Fee")
	assert.Contains(t, out, "Trades: Electrical, Low Voltage")
	assert.Contains(t, out, "Service Area: Austin, TX")
	assert.Contains(t, out, "NEVER INVENT PRICES")
}

func TestBuild_NeverFabricatesRates(t *testing.T) {
	t.Parallel()

	p := testProfile()
	out, err := BuildDirective(p, []model.Memory{
		{Type: model.MemoryPricingCorrection, Content: "Use the apprentice for conduit runs", CreatedAt: time.Now()},
	})
	require.NoError(t, err)

	allowed := make(map[float64]bool)
	for _, r := range p.LaborRates {
		allowed[r] = true
	}
	matches := regexp.MustCompile(`\$([0-9][0-9.,]*)/hr`).FindAllStringSubmatch(out, -1)
	require.Len(t, matches, len(p.LaborRates))
	for _, m := range matches {
		v, err := strconv.ParseFloat(m[1], 64)
		require.NoError(t, err)
		assert.True(t, allowed[v], "rate %v not present in profile", v)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	t.Parallel()

	p := testProfile()
	first, err := BuildDirective(p, nil)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := BuildDirective(p, nil)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
	assert.Less(t, strings.Index(first, "apprentice"), strings.Index(first, "electrician"))
}

func TestBuild_MemoriesGroupedAndLimited(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mems := []model.Memory{
		{Type: model.MemoryStyle, Content: "Keep descriptions short", CreatedAt: base.Add(4 * time.Hour)},
		{Type: model.MemoryPricingCorrection, Content: "Always use $85/hr for residential\nservice calls", CreatedAt: base.Add(3 * time.Hour)},
		{Type: model.MemoryPreference, Content: "List permits separately.", CreatedAt: base.Add(2 * time.Hour)},
		{Type: model.MemoryPattern, Content: "Adds 10% contingency on remodels", CreatedAt: base.Add(time.Hour)},
		{Type: model.MemoryPricingCorrection, Content: "Oldest correction", CreatedAt: base},
	}

	out, err := Builder{MemoryLimit: 4}.Build(testProfile(), mems)
	require.NoError(t, err)

	assert.Contains(t, out, "- Pricing: Always use $85/hr for residential service calls.")
	assert.Contains(t, out, "- Preference: List permits separately.")
	assert.Contains(t, out, "- Pattern: Adds 10% contingency on remodels.")
	assert.Contains(t, out, "- Style: Keep descriptions short.")
	assert.NotContains(t, out, "Oldest correction")

	pricing := strings.Index(out, "Pricing Corrections:")
	pref := strings.Index(out, "Preferences:")
	pattern := strings.Index(out, "Patterns:")
	style := strings.Index(out, "Styles:")
	assert.True(t, pricing < pref && pref < pattern && pattern < style, "groups must follow the fixed type order")
}

func TestBuild_NoMemories(t *testing.T) {
	t.Parallel()

	out, err := BuildDirective(testProfile(), nil)
	require.NoError(t, err)
	assert.Contains(t, out, "No learned preferences yet.")
}
