package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Profile defaults applied when onboarding omits a value.
const (
	DefaultMaterialMarkupPct = 25.0
	DefaultOverheadProfitPct = 15.0
	DefaultTaxRate           = 0.08
)

// ServiceArea is where a contractor works.
type ServiceArea struct {
	City  string `json:"service_area_city,omitempty"`
	State string `json:"service_area_state,omitempty"`
	Zip   string `json:"service_area_zip,omitempty"`
}

// String joins the non-empty parts with ", ".
func (a ServiceArea) String() string {
	var parts []string
	for _, p := range []string{a.City, a.State, a.Zip} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// CompanyProfile holds the pricing and company details of one account.
type CompanyProfile struct {
	ID                 string             `json:"id"`
	AccountID          string             `json:"user_id"`
	CompanyName        string             `json:"company_name"`
	Trades             []string           `json:"trade"`
	ServiceArea        ServiceArea        `json:"service_area"`
	LaborRates         map[string]float64 `json:"labor_rates"`
	MaterialMarkupPct  float64            `json:"material_markup_pct"`
	OverheadProfitPct  float64            `json:"overhead_profit_pct"`
	TaxRate            float64            `json:"tax_rate"`
	LicenseNumber      string             `json:"license_number,omitempty"`
	BondNumber         string             `json:"bond_number,omitempty"`
	MinJobSize         *float64           `json:"min_job_size,omitempty"`
	ServiceCallFee     *float64           `json:"service_call_fee,omitempty"`
	CommonJobTypes     []string           `json:"common_job_types"`
	PreferredSuppliers []string           `json:"preferred_suppliers"`
	CrewSizes          map[string]int     `json:"typical_crew_sizes"`
	EquipmentOwned     []string           `json:"equipment_owned"`
	PaymentTerms       string             `json:"payment_terms,omitempty"`
	Notes              string             `json:"additional_notes,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Validate checks the fields required to store a profile. Labor rates are
// not required here: onboarding may save a profile before rates are known.
func (p *CompanyProfile) Validate() error {
	if strings.TrimSpace(p.CompanyName) == "" {
		return eris.New("model: company name is required")
	}
	if len(p.Trades) == 0 {
		return eris.New("model: at least one trade is required")
	}
	if p.TaxRate < 0 || p.TaxRate >= 1 {
		return eris.Errorf("model: tax rate %v out of range [0, 1)", p.TaxRate)
	}
	for role, rate := range p.LaborRates {
		if strings.TrimSpace(role) == "" {
			return eris.New("model: labor rate role must not be empty")
		}
		if rate < 0 {
			return eris.Errorf("model: labor rate for %q must not be negative", role)
		}
	}
	return nil
}

// HasLaborRates reports whether estimates can be generated for this profile.
func (p *CompanyProfile) HasLaborRates() bool {
	return p != nil && len(p.LaborRates) > 0
}
