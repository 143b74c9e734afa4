// Package normalize turns free-form model output into a validated estimate
// whose totals are always recomputed locally.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/estimator/internal/llmjson"
	"github.com/sells-group/estimator/internal/model"
)

// ReviewNote is attached to line items whose confidence the model omitted.
const ReviewNote = "NEEDS REVIEW: confidence not provided by model"

// NormalizationError means the model output could not be turned into a
// well-formed estimate. No partial estimate accompanies it.
type NormalizationError struct {
	Reason string
	Fields []string
	Err    error
}

func (e *NormalizationError) Error() string {
	msg := "normalize: " + e.Reason
	if len(e.Fields) > 0 {
		msg += " (" + strings.Join(e.Fields, ", ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// Normalizer adapts Normalize to an interface-friendly method.
type Normalizer struct{}

// Normalize calls the package-level Normalize.
func (Normalizer) Normalize(raw string, taxRate float64) (*model.Estimate, error) {
	return Normalize(raw, taxRate)
}

// number accepts a JSON number or a numeric string such as "95" or
// "$1,200.50".
type number struct {
	v   float64
	set bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", s)
		}
		n.v, n.set = v, true
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.v, n.set = v, true
	return nil
}

type rawLineItem struct {
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Quantity    number  `json:"quantity"`
	Unit        string  `json:"unit"`
	Rate        number  `json:"rate"`
	Total       *number `json:"total"`
	Confidence  string  `json:"confidence"`
	Notes       string  `json:"notes"`
}

type rawEstimate struct {
	ProjectTitle      string        `json:"projectTitle"`
	Summary           string        `json:"summary"`
	LineItems         []rawLineItem `json:"lineItems"`
	Assumptions       []string      `json:"assumptions"`
	SiteVisitRequired bool          `json:"siteVisitRequired"`
	SiteVisitReason   string        `json:"siteVisitReason"`
	Recommendations   []string      `json:"recommendations"`
	Timeline          string        `json:"timeline"`
	Disclaimers       []string      `json:"disclaimers"`
}

// Normalize parses raw model output into an Estimate. Line totals and the
// estimate's subtotal, tax and total are recomputed with taxRate; any totals
// in raw are ignored.
func Normalize(raw string, taxRate float64) (*model.Estimate, error) {
	obj, err := llmjson.Extract(raw)
	if err != nil {
		return nil, &NormalizationError{Reason: "no JSON object in model output", Err: err}
	}

	var re rawEstimate
	if err := json.Unmarshal([]byte(obj), &re); err != nil {
		return nil, &NormalizationError{Reason: "model output does not match the estimate schema", Err: err}
	}

	var missing []string
	title := strings.TrimSpace(re.ProjectTitle)
	summary := strings.TrimSpace(re.Summary)
	timeline := strings.TrimSpace(re.Timeline)
	if title == "" {
		missing = append(missing, "projectTitle")
	}
	if summary == "" {
		missing = append(missing, "summary")
	}
	if timeline == "" {
		missing = append(missing, "timeline")
	}
	if len(re.LineItems) == 0 {
		missing = append(missing, "lineItems")
	}

	items := make([]model.LineItem, 0, len(re.LineItems))
	for i, rl := range re.LineItems {
		li, bad := lineItem(i, rl)
		missing = append(missing, bad...)
		items = append(items, li)
	}
	if len(missing) > 0 {
		return nil, &NormalizationError{Reason: "missing or invalid fields", Fields: missing}
	}

	est := &model.Estimate{
		ProjectTitle:      title,
		Summary:           summary,
		LineItems:         items,
		Assumptions:       cleanList(re.Assumptions),
		Recommendations:   cleanList(re.Recommendations),
		Disclaimers:       cleanList(re.Disclaimers),
		SiteVisitRequired: re.SiteVisitRequired,
		SiteVisitReason:   strings.TrimSpace(re.SiteVisitReason),
		Timeline:          timeline,
		Status:            model.EstimateStatusDraft,
	}
	est.Recalculate(taxRate)
	return est, nil
}

func lineItem(i int, rl rawLineItem) (model.LineItem, []string) {
	field := func(name string) string { return fmt.Sprintf("lineItems[%d].%s", i, name) }

	var bad []string
	li := model.LineItem{
		Description: strings.TrimSpace(rl.Description),
		Unit:        strings.TrimSpace(rl.Unit),
		Notes:       strings.TrimSpace(rl.Notes),
	}
	if li.Description == "" {
		bad = append(bad, field("description"))
	}
	if !validNumber(rl.Quantity) {
		bad = append(bad, field("quantity"))
	}
	if !validNumber(rl.Rate) {
		bad = append(bad, field("rate"))
	}
	li.Quantity = rl.Quantity.v
	li.Rate = rl.Rate.v

	cat, ok := model.ParseCategory(rl.Category)
	if !ok {
		cat = model.CategoryOther
	}
	li.Category = cat

	conf, ok := model.ParseConfidence(rl.Confidence)
	if !ok {
		conf = model.ConfidenceLow
		if li.Notes == "" {
			li.Notes = ReviewNote
		} else {
			li.Notes = ReviewNote + ". " + li.Notes
		}
	}
	li.Confidence = conf

	li.Recalculate()
	return li, bad
}

func validNumber(n number) bool {
	return n.set && n.v >= 0 && !math.IsNaN(n.v) && !math.IsInf(n.v, 0)
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
