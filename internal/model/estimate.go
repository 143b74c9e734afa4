package model

import (
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Category groups line items on an estimate.
type Category string

const (
	CategoryLabor     Category = "Labor"
	CategoryMaterials Category = "Materials"
	CategoryEquipment Category = "Equipment"
	CategoryPermits   Category = "Permits"
	CategoryOther     Category = "Other"
)

var categories = []Category{CategoryLabor, CategoryMaterials, CategoryEquipment, CategoryPermits, CategoryOther}

// ParseCategory matches s case-insensitively against the known categories.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range categories {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}

// Confidence tags how directly a line item's price traces to the account's
// own configured rates.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence matches s case-insensitively against the known levels.
func ParseConfidence(s string) (Confidence, bool) {
	switch Confidence(strings.ToLower(strings.TrimSpace(s))) {
	case ConfidenceHigh:
		return ConfidenceHigh, true
	case ConfidenceMedium:
		return ConfidenceMedium, true
	case ConfidenceLow:
		return ConfidenceLow, true
	default:
		return "", false
	}
}

// LineItem is one priced unit of work or material. Total is always derived
// from Quantity and Rate.
type LineItem struct {
	Category    Category   `json:"category"`
	Description string     `json:"description"`
	Quantity    float64    `json:"quantity"`
	Unit        string     `json:"unit"`
	Rate        float64    `json:"rate"`
	Total       float64    `json:"total"`
	Confidence  Confidence `json:"confidence"`
	Notes       string     `json:"notes,omitempty"`
}

// Recalculate derives Total from Quantity and Rate.
func (li *LineItem) Recalculate() {
	li.Total = RoundCents(li.Quantity * li.Rate)
}

// Validate checks the invariants a stored line item must satisfy.
func (li LineItem) Validate() error {
	if _, ok := ParseCategory(string(li.Category)); !ok {
		return eris.Errorf("model: invalid category %q", li.Category)
	}
	if strings.TrimSpace(li.Description) == "" {
		return eris.New("model: line item description is required")
	}
	if li.Quantity < 0 || math.IsNaN(li.Quantity) || math.IsInf(li.Quantity, 0) {
		return eris.Errorf("model: invalid quantity %v for %q", li.Quantity, li.Description)
	}
	if li.Rate < 0 || math.IsNaN(li.Rate) || math.IsInf(li.Rate, 0) {
		return eris.Errorf("model: invalid rate %v for %q", li.Rate, li.Description)
	}
	if _, ok := ParseConfidence(string(li.Confidence)); !ok {
		return eris.Errorf("model: invalid confidence %q for %q", li.Confidence, li.Description)
	}
	return nil
}

// EstimateStatus is the lifecycle state of an estimate.
type EstimateStatus string

const (
	EstimateStatusDraft    EstimateStatus = "draft"
	EstimateStatusApproved EstimateStatus = "approved"
)

// ErrAlreadyApproved is returned when an approved estimate would be edited
// or moved back to draft.
var ErrAlreadyApproved = eris.New("model: estimate already approved")

// Estimate is a priced, itemized construction-job quote.
type Estimate struct {
	ID                string             `json:"id"`
	AccountID         string             `json:"accountId"`
	ProjectTitle      string             `json:"projectTitle"`
	Summary           string             `json:"summary"`
	LineItems         []LineItem         `json:"lineItems"`
	Subtotal          float64            `json:"subtotal"`
	Tax               float64            `json:"tax"`
	Total             float64            `json:"total"`
	Assumptions       []string           `json:"assumptions"`
	Recommendations   []string           `json:"recommendations"`
	Disclaimers       []string           `json:"disclaimers"`
	SiteVisitRequired bool               `json:"siteVisitRequired"`
	SiteVisitReason   string             `json:"siteVisitReason,omitempty"`
	Timeline          string             `json:"timeline"`
	Status            EstimateStatus     `json:"status"`
	Conversation      []ConversationTurn `json:"conversation,omitempty"`
	ModelTier         Tier               `json:"modelTier,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// Recalculate recomputes every line total, the subtotal, tax and grand
// total. Any totals already on the estimate are discarded.
func (e *Estimate) Recalculate(taxRate float64) {
	subtotal := 0.0
	for i := range e.LineItems {
		e.LineItems[i].Recalculate()
		subtotal += e.LineItems[i].Total
	}
	e.Subtotal = RoundCents(subtotal)
	e.Tax = RoundCents(e.Subtotal * taxRate)
	e.Total = RoundCents(e.Subtotal + e.Tax)
}

// ReplaceLineItems swaps in a manually edited item list and recomputes the
// totals. Approved estimates are immutable.
func (e *Estimate) ReplaceLineItems(items []LineItem, taxRate float64) error {
	if e.Status == EstimateStatusApproved {
		return ErrAlreadyApproved
	}
	for _, li := range items {
		if err := li.Validate(); err != nil {
			return err
		}
	}
	e.LineItems = append([]LineItem(nil), items...)
	e.Recalculate(taxRate)
	return nil
}

// SetStatus applies a status transition. Only draft -> approved is allowed;
// setting the current status again is a no-op.
func (e *Estimate) SetStatus(status EstimateStatus) error {
	switch {
	case status == e.Status:
		return nil
	case e.Status == EstimateStatusApproved:
		return ErrAlreadyApproved
	case status == EstimateStatusApproved:
		e.Status = status
		return nil
	default:
		return eris.Errorf("model: invalid estimate status %q", status)
	}
}

// RoundCents rounds v to two decimal places.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
