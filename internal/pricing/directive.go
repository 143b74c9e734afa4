// Package pricing renders a company's pricing profile and learned corrections
// into the directive text that grounds every estimate generation.
package pricing

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/estimator/internal/model"
)

// DefaultMemoryLimit is how many recent memories a directive includes.
const DefaultMemoryLimit = 50

// ProfileIncompleteError means the account cannot be estimated for until
// its company profile is completed.
type ProfileIncompleteError struct {
	Reason string
}

func (e *ProfileIncompleteError) Error() string {
	return "pricing: profile incomplete: " + e.Reason
}

// Builder renders directives. The zero value uses DefaultMemoryLimit.
type Builder struct {
	MemoryLimit int
}

// BuildDirective renders a directive with the default memory limit.
func BuildDirective(profile *model.CompanyProfile, memories []model.Memory) (string, error) {
	return Builder{}.Build(profile, memories)
}

var memoryPrefix = map[model.MemoryType]string{
	model.MemoryPricingCorrection: "Pricing",
	model.MemoryPreference:        "Preference",
	model.MemoryPattern:           "Pattern",
	model.MemoryStyle:             "Style",
}

// Build renders the directive for profile and the most recent memories.
// The output depends only on its inputs: map keys are sorted and memories
// are ordered newest first within each type.
func (b Builder) Build(profile *model.CompanyProfile, memories []model.Memory) (string, error) {
	if profile == nil {
		return "", &ProfileIncompleteError{Reason: "no company profile"}
	}
	if !profile.HasLaborRates() {
		return "", &ProfileIncompleteError{Reason: "no labor rates configured"}
	}

	limit := b.MemoryLimit
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}

	title := cases.Title(language.English)
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are an expert construction estimator for %s.\n\n", profile.CompanyName)

	sb.WriteString("## COMPANY PROFILE\n\n")
	trades := make([]string, len(profile.Trades))
	for i, t := range profile.Trades {
		trades[i] = title.String(t)
	}
	fmt.Fprintf(&sb, "Trades: %s\n", strings.Join(trades, ", "))
	area := profile.ServiceArea.String()
	if area == "" {
		area = "Not specified"
	}
	fmt.Fprintf(&sb, "Service Area: %s\n\n", area)

	sb.WriteString("Labor Rates:\n")
	for _, role := range sortedKeys(profile.LaborRates) {
		fmt.Fprintf(&sb, "- %s: $%s/hr\n", role, formatNumber(profile.LaborRates[role]))
	}

	sb.WriteString("\nPricing Rules:\n")
	fmt.Fprintf(&sb, "- Material Markup: %s%%\n", formatNumber(profile.MaterialMarkupPct))
	fmt.Fprintf(&sb, "- Overhead & Profit: %s%%\n", formatNumber(profile.OverheadProfitPct))
	fmt.Fprintf(&sb, "- Tax Rate: %s%% (%s of subtotal)\n", formatNumber(percent(profile.TaxRate)), formatNumber(profile.TaxRate))
	if profile.MinJobSize != nil {
		fmt.Fprintf(&sb, "- Minimum Job Size: $%s\n", formatNumber(*profile.MinJobSize))
	}
	if profile.ServiceCallFee != nil {
		fmt.Fprintf(&sb, "- Service Call Fee: $%s\n", formatNumber(*profile.ServiceCallFee))
	}

	writeList(&sb, "Common Job Types", profile.CommonJobTypes)
	if len(profile.CrewSizes) > 0 {
		sb.WriteString("\nTypical Crew Sizes:\n")
		for _, job := range sortedKeys(profile.CrewSizes) {
			fmt.Fprintf(&sb, "- %s: %d people\n", job, profile.CrewSizes[job])
		}
	}
	writeList(&sb, "Equipment Owned", profile.EquipmentOwned)
	if len(profile.PreferredSuppliers) > 0 {
		fmt.Fprintf(&sb, "\nPreferred Suppliers: %s\n", strings.Join(profile.PreferredSuppliers, ", "))
	}
	if s := strings.TrimSpace(profile.PaymentTerms); s != "" {
		fmt.Fprintf(&sb, "\nPayment Terms: %s\n", s)
	}
	if s := strings.TrimSpace(profile.Notes); s != "" {
		fmt.Fprintf(&sb, "\nAdditional Notes: %s\n", s)
	}

	sb.WriteString("\n## LEARNED PREFERENCES & CORRECTIONS\n\n")
	writeMemories(&sb, model.MostRecent(memories, limit), title)

	sb.WriteString(coreRules)
	sb.WriteString(outputContract)

	return sb.String(), nil
}

func writeList(sb *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n%s:\n", heading)
	for _, it := range items {
		fmt.Fprintf(sb, "- %s\n", it)
	}
}

func writeMemories(sb *strings.Builder, recent []model.Memory, title cases.Caser) {
	if len(recent) == 0 {
		sb.WriteString("No learned preferences yet.\n")
		return
	}

	grouped := make(map[model.MemoryType][]model.Memory)
	for _, m := range recent {
		grouped[m.Type] = append(grouped[m.Type], m)
	}

	for _, typ := range model.MemoryTypes {
		mems := grouped[typ]
		if len(mems) == 0 {
			continue
		}
		heading := title.String(strings.ReplaceAll(string(typ), "_", " "))
		fmt.Fprintf(sb, "%ss:\n", heading)
		for _, m := range mems {
			fmt.Fprintf(sb, "- %s: %s\n", memoryPrefix[typ], sentence(m.Content))
		}
		sb.WriteString("\n")
	}
}

// sentence collapses whitespace so a memory renders on one line and ends
// with terminal punctuation.
func sentence(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return s
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return s
	}
	return s + "."
}

// formatNumber renders v in its shortest exact decimal form so rates appear
// exactly as configured (95 -> "95", 87.5 -> "87.5").
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// percent converts a fraction to a percentage without float noise
// (0.08 -> 8, not 8.000000000000002).
func percent(fraction float64) float64 {
	return math.Round(fraction*1e6) / 1e4
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
