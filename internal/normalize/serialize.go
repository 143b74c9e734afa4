package normalize

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/estimator/internal/model"
)

type contractLineItem struct {
	Category    model.Category   `json:"category"`
	Description string           `json:"description"`
	Quantity    float64          `json:"quantity"`
	Unit        string           `json:"unit"`
	Rate        float64          `json:"rate"`
	Total       float64          `json:"total"`
	Confidence  model.Confidence `json:"confidence"`
	Notes       string           `json:"notes,omitempty"`
}

type contract struct {
	ProjectTitle      string             `json:"projectTitle"`
	Summary           string             `json:"summary"`
	LineItems         []contractLineItem `json:"lineItems"`
	Assumptions       []string           `json:"assumptions"`
	SiteVisitRequired bool               `json:"siteVisitRequired"`
	SiteVisitReason   string             `json:"siteVisitReason,omitempty"`
	Recommendations   []string           `json:"recommendations"`
	Timeline          string             `json:"timeline"`
	Disclaimers       []string           `json:"disclaimers"`
	Subtotal          float64            `json:"subtotal"`
	Tax               float64            `json:"tax"`
	Total             float64            `json:"total"`
}

// Serialize renders e in the JSON shape models are asked to produce, so
// Normalize(Serialize(e), rate) reproduces e's content. Non-finite numbers
// cannot be rendered and return an error.
func Serialize(e *model.Estimate) (string, error) {
	c := contract{
		ProjectTitle:      e.ProjectTitle,
		Summary:           e.Summary,
		LineItems:         make([]contractLineItem, len(e.LineItems)),
		Assumptions:       nonNil(e.Assumptions),
		SiteVisitRequired: e.SiteVisitRequired,
		SiteVisitReason:   e.SiteVisitReason,
		Recommendations:   nonNil(e.Recommendations),
		Timeline:          e.Timeline,
		Disclaimers:       nonNil(e.Disclaimers),
		Subtotal:          e.Subtotal,
		Tax:               e.Tax,
		Total:             e.Total,
	}
	for i, li := range e.LineItems {
		c.LineItems[i] = contractLineItem(li)
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "normalize: serialize estimate")
	}
	return string(b), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
