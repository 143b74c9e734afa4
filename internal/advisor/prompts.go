package advisor

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sells-group/estimator/internal/model"
)

type topicSpec struct {
	title string
	role  string
	focus []string
	close string
}

var topics = map[model.AdvisorTopic]topicSpec{
	model.TopicPlaybook: {
		title: "Business Playbook",
		role:  "You are a senior construction business consultant helping %s, a %s contractor in %s, build a business playbook.",
		focus: []string{
			"Company vision and mission",
			"Organizational structure",
			"Hiring and training",
			"Safety protocols and compliance",
			"Quality standards",
			"Customer service approach",
			"Financial management",
			"Marketing and sales",
		},
		close: "Ask questions to learn how the business runs today, then build one section at a time. Stay specific to the trades. Offer a written version of each finished section.",
	},
	model.TopicExitStrategy: {
		title: "Exit Strategy & Valuation",
		role:  "You are an M&A advisor for construction companies helping %s prepare its %s business in %s for a sale.",
		focus: []string{
			"Valuation methods (SDE and EBITDA multiples; small contractors usually trade at 2-4x SDE)",
			"Financial cleanup and documentation",
			"Reducing owner dependency",
			"Recurring revenue and customer contracts",
			"Customer concentration risk",
			"Equipment and asset valuation",
			"License and bond transferability",
			"Finding the right buyer (competitor, private equity, roll-up)",
		},
		close: "Be realistic about construction multiples and what buyers look for. Plan value building over the next 2-5 years.",
	},
	model.TopicSOPs: {
		title: "SOPs & Documentation",
		role:  "You are a construction operations expert helping %s document standard operating procedures for its %s business in %s.",
		focus: []string{
			"Job site setup and breakdown",
			"Daily safety talks",
			"Quality control checklists",
			"Customer communication from first contact to warranty",
			"Estimating and approval workflow",
			"Scheduling and crew assignment",
			"Invoicing and collections",
			"Change orders",
			"Warranty and callbacks",
			"Equipment maintenance",
			"Material ordering",
		},
		close: "Ask what they do today, even informally, and turn it into step-by-step procedures a crew can follow in the field.",
	},
	model.TopicFinancial: {
		title: "Financial Analysis",
		role:  "You are a construction financial analyst helping %s, a %s contractor in %s, improve its financial health.",
		focus: []string{
			"Profit margin by job type",
			"Labor cost ratio (40-50% of revenue for most trades)",
			"Material cost control",
			"Overhead allocation and break-even",
			"Cash flow management",
			"Pricing and markup structure",
			"Job costing accuracy",
			"KPIs: gross profit %, net profit %, revenue per employee",
			"Seasonal cash planning and credit lines",
		},
		close: "Ask for real numbers before giving specific advice. Show which jobs actually make money.",
	},
	model.TopicGrowth: {
		title: "Growth Strategy",
		role:  "You are a growth strategist helping %s grow its %s business in %s.",
		focus: []string{
			"Market and service expansion opportunities",
			"Referral programs and customer retention",
			"Google Local Services Ads, yard signs and truck wraps",
			"Partnerships with suppliers and builders",
			"Online reviews",
			"Hiring and recruiting",
			"Geographic expansion",
			"Commercial vs residential mix",
			"Maintenance contracts and service agreements",
		},
		close: "Keep it practical. These are tradespeople building a business, not MBAs.",
	},
}

// ParseTopic validates s as an advisor topic.
func ParseTopic(s string) (model.AdvisorTopic, bool) {
	t := model.AdvisorTopic(strings.ToLower(strings.TrimSpace(s)))
	_, ok := topics[t]
	return t, ok
}

// Title is the display name of a topic.
func Title(t model.AdvisorTopic) string {
	return topics[t].title
}

// SystemPrompt builds the advisor persona for topic from the profile.
func SystemPrompt(topic model.AdvisorTopic, p *model.CompanyProfile) string {
	spec := topics[topic]
	location := p.ServiceArea.String()
	if location == "" {
		location = "their area"
	}
	trades := strings.Join(p.Trades, ", ")

	var sb strings.Builder
	fmt.Fprintf(&sb, spec.role, p.CompanyName, trades, location)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Company: %s\nTrade(s): %s\nLocation: %s\n", p.CompanyName, trades, location)
	sb.WriteString("Labor Rates: " + rates(p.LaborRates) + "\n")
	jobs := "various"
	if len(p.CommonJobTypes) > 0 {
		jobs = strings.Join(p.CommonJobTypes, ", ")
	}
	sb.WriteString("Common Job Types: " + jobs + "\n")
	sb.WriteString("Crew Sizes: " + crews(p.CrewSizes) + "\n\nFocus on:\n")
	for _, f := range spec.focus {
		sb.WriteString("- " + f + "\n")
	}
	sb.WriteString("\n" + spec.close)
	return sb.String()
}

func rates(m map[string]float64) string {
	if len(m) == 0 {
		return "not set"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + " $" + strconv.FormatFloat(m[k], 'f', -1, 64) + "/hr"
	}
	return strings.Join(parts, ", ")
}

func crews(m map[string]int) string {
	if len(m) == 0 {
		return "not set"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s %d", k, m[k])
	}
	return strings.Join(parts, ", ")
}
