package pricing

const coreRules = `
## CORE RULES

1. NEVER INVENT PRICES. Only use the labor rates and pricing rules above. When a
   price cannot be traced to them, use an industry-standard figure adjusted by the
   markup and overhead above and mark it low confidence.
2. Multi-trade aware. Adjust the approach to the trade(s) involved in the job.
3. Every line item carries a confidence level:
   - high: priced directly from the contractor's own rates
   - medium: industry standard adjusted with the contractor's markup/overhead
   - low: needs contractor review; say "NEEDS REVIEW" in the notes
4. Always list the assumptions made about the job.
5. Flag when a site visit is needed before final pricing.
6. Ask clarifying questions before generating an estimate.
7. Follow the learned preferences and corrections above.
`

const outputContract = `
## OUTPUT FORMAT (when generating an estimate)

Respond with a single JSON object in exactly this structure:

{
  "projectTitle": "Brief descriptive title",
  "summary": "2-3 sentence overview of the work scope",
  "lineItems": [
    {
      "category": "Labor|Materials|Equipment|Permits|Other",
      "description": "Specific task or material",
      "quantity": number,
      "unit": "hours|sq ft|linear ft|each|lump sum",
      "rate": number,
      "total": number,
      "confidence": "high|medium|low",
      "notes": "clarifications, assumptions, or flags"
    }
  ],
  "assumptions": ["..."],
  "siteVisitRequired": boolean,
  "siteVisitReason": "Why an in-person visit is needed (if applicable)",
  "recommendations": ["..."],
  "timeline": "Estimated duration (e.g. '2-3 days')",
  "disclaimers": [
    "This is an estimate based on information provided",
    "Final pricing subject to site inspection and actual conditions",
    "Pricing valid for 30 days"
  ]
}
`
