// Package store persists company profiles, estimates, feedback, learned
// memories and advisor conversations.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/estimator/internal/model"
)

// Sentinel errors shared by every Store implementation.
var (
	ErrNotFound      = eris.New("store: not found")
	ErrProfileExists = eris.New("store: company profile already exists")
)

// DefaultMemoryCap is how many memories are kept per account when no cap is
// configured.
const DefaultMemoryCap = 500

// EstimateFilter narrows ListEstimates.
type EstimateFilter struct {
	Status model.EstimateStatus `json:"status,omitempty"`
	Limit  int                  `json:"limit,omitempty"`
	Offset int                  `json:"offset,omitempty"`
}

// Store is the persistence interface. Every lookup is scoped to an account;
// records of other accounts read as ErrNotFound.
type Store interface {
	// Company profiles
	GetProfile(ctx context.Context, accountID string) (*model.CompanyProfile, error)
	CreateProfile(ctx context.Context, p *model.CompanyProfile) error
	UpdateProfile(ctx context.Context, p *model.CompanyProfile) error

	// Estimates
	CreateEstimate(ctx context.Context, e *model.Estimate) error
	GetEstimate(ctx context.Context, accountID, id string) (*model.Estimate, error)
	ListEstimates(ctx context.Context, accountID string, filter EstimateFilter) ([]model.Estimate, error)
	UpdateEstimate(ctx context.Context, e *model.Estimate) error
	DeleteEstimate(ctx context.Context, accountID, id string) error

	// Feedback and memories
	CreateFeedback(ctx context.Context, f *model.Feedback) error
	AppendMemories(ctx context.Context, accountID string, memories []model.Memory, keep int) error
	RecentMemories(ctx context.Context, accountID string, limit int) ([]model.Memory, error)

	// Advisor conversations
	GetAdvisorConversation(ctx context.Context, accountID, id string) (*model.AdvisorConversation, error)
	SaveAdvisorConversation(ctx context.Context, c *model.AdvisorConversation) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// estimateDoc is the JSON document stored for an estimate. Identity,
// ownership and timestamps live in their own columns.
type estimateDoc struct {
	ProjectTitle      string                   `json:"projectTitle"`
	Summary           string                   `json:"summary"`
	LineItems         []model.LineItem         `json:"lineItems"`
	Subtotal          float64                  `json:"subtotal"`
	Tax               float64                  `json:"tax"`
	Total             float64                  `json:"total"`
	Assumptions       []string                 `json:"assumptions"`
	Recommendations   []string                 `json:"recommendations"`
	Disclaimers       []string                 `json:"disclaimers"`
	SiteVisitRequired bool                     `json:"siteVisitRequired"`
	SiteVisitReason   string                   `json:"siteVisitReason,omitempty"`
	Timeline          string                   `json:"timeline"`
	Conversation      []model.ConversationTurn `json:"conversation,omitempty"`
	ModelTier         model.Tier               `json:"modelTier,omitempty"`
}

func toDoc(e *model.Estimate) estimateDoc {
	return estimateDoc{
		ProjectTitle:      e.ProjectTitle,
		Summary:           e.Summary,
		LineItems:         e.LineItems,
		Subtotal:          e.Subtotal,
		Tax:               e.Tax,
		Total:             e.Total,
		Assumptions:       e.Assumptions,
		Recommendations:   e.Recommendations,
		Disclaimers:       e.Disclaimers,
		SiteVisitRequired: e.SiteVisitRequired,
		SiteVisitReason:   e.SiteVisitReason,
		Timeline:          e.Timeline,
		Conversation:      e.Conversation,
		ModelTier:         e.ModelTier,
	}
}

func (d estimateDoc) apply(e *model.Estimate) {
	e.ProjectTitle = d.ProjectTitle
	e.Summary = d.Summary
	e.LineItems = d.LineItems
	e.Subtotal = d.Subtotal
	e.Tax = d.Tax
	e.Total = d.Total
	e.Assumptions = d.Assumptions
	e.Recommendations = d.Recommendations
	e.Disclaimers = d.Disclaimers
	e.SiteVisitRequired = d.SiteVisitRequired
	e.SiteVisitReason = d.SiteVisitReason
	e.Timeline = d.Timeline
	e.Conversation = d.Conversation
	e.ModelTier = d.ModelTier
}

func memoryCap(keep int) int {
	if keep <= 0 {
		return DefaultMemoryCap
	}
	return keep
}

// decodeProfile fills p from its stored JSON document. Identity and
// timestamps already scanned from columns win over the document.
func decodeProfile(p *model.CompanyProfile, data []byte) (*model.CompanyProfile, error) {
	id, account, created, updated := p.ID, p.AccountID, p.CreatedAt, p.UpdatedAt
	if err := json.Unmarshal(data, p); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal profile")
	}
	p.ID, p.AccountID, p.CreatedAt, p.UpdatedAt = id, account, created, updated
	return p, nil
}

func prepareMemory(m *model.Memory, accountID string) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.AccountID = accountID
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
}

func nullString(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
