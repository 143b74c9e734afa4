package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserTurns(t *testing.T) {
	t.Parallel()

	history := []ConversationTurn{
		{Role: RoleSystem, Content: "setup"},
		{Role: RoleUser, Content: "I need electrical work"},
		{Role: RoleAssistant, Content: "Residential or commercial?"},
		{Role: RoleUser, Content: "Residential, 200A panel swap"},
	}
	assert.Equal(t, 2, UserTurns(history))
	assert.Equal(t, 0, UserTurns(nil))

	last, ok := LastTurn(history)
	require.True(t, ok)
	assert.Equal(t, RoleUser, last.Role)

	asst, ok := LastAssistantTurn(history)
	require.True(t, ok)
	assert.Equal(t, "Residential or commercial?", asst.Content)

	_, ok = LastAssistantTurn(history[:2])
	assert.False(t, ok)
}

func TestTranscript(t *testing.T) {
	t.Parallel()

	got := Transcript([]ConversationTurn{
		{Role: RoleSystem, Content: "hidden"},
		{Role: RoleUser, Content: " Replace a water heater "},
		{Role: RoleAssistant, Content: "Gas or electric?"},
	})
	assert.Equal(t, "Customer: Replace a water heater\n\nEstimator: Gas or electric?", got)
}

func TestMostRecent(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mems := []Memory{
		{Content: "oldest", CreatedAt: base},
		{Content: "newest", CreatedAt: base.Add(2 * time.Hour)},
		{Content: "middle", CreatedAt: base.Add(time.Hour)},
	}

	got := MostRecent(mems, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "newest", got[0].Content)
	assert.Equal(t, "middle", got[1].Content)
	assert.Equal(t, "oldest", mems[0].Content, "input must not be reordered")

	assert.Len(t, MostRecent(mems, 10), 3)
}

func TestParseTier(t *testing.T) {
	t.Parallel()

	tier, err := ParseTier("")
	require.NoError(t, err)
	assert.Equal(t, TierPro, tier)

	tier, err = ParseTier(" Expert ")
	require.NoError(t, err)
	assert.Equal(t, TierExpert, tier)

	_, err = ParseTier("ultra")
	assert.Error(t, err)
}

func TestServiceArea_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Austin, TX, 78701", ServiceArea{City: "Austin", State: "TX", Zip: "78701"}.String())
	assert.Equal(t, "TX", ServiceArea{State: " TX "}.String())
	assert.Equal(t, "", ServiceArea{}.String())
}

func TestCompanyProfile_Validate(t *testing.T) {
	t.Parallel()

	p := &CompanyProfile{CompanyName: "Volt Bros", Trades: []string{"electrical"}, TaxRate: 0.08}
	require.NoError(t, p.Validate())
	assert.False(t, p.HasLaborRates())

	p.LaborRates = map[string]float64{"electrician": 95}
	require.NoError(t, p.Validate())
	assert.True(t, p.HasLaborRates())

	p.TaxRate = 1
	assert.Error(t, p.Validate())

	p.TaxRate = 0.08
	p.Trades = nil
	assert.Error(t, p.Validate())
}
