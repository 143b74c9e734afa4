package orchestrator

const clarifyInstruction = `
## CURRENT TASK: GATHER DETAILS

You do not have enough information to price this job yet. Do NOT produce an
estimate or quote any prices. Ask 2-4 specific, numbered clarifying questions
that would let you price it. Cover what is still unknown among:
- residential or commercial
- dimensions, square footage or quantities
- new installation vs repair or replacement
- desired timeline
- access (stairs, crawlspace, attic, occupied space)

Keep it brief and friendly. Reply in plain text, not JSON.`

const estimateInstruction = `
## CURRENT TASK: GENERATE THE ESTIMATE

You now have enough information. Produce the estimate as a single JSON object
in the OUTPUT FORMAT above. Price labor only from the labor rates listed. Do not
include subtotal, tax or total; they are computed for you.`

const strictRetryInstruction = `Your previous response could not be used as an estimate (%s).

Respond again with ONLY one JSON object that follows the OUTPUT FORMAT exactly:
projectTitle, summary, lineItems (each with category, description, quantity,
unit, rate and confidence), assumptions, siteVisitRequired, siteVisitReason,
recommendations, timeline and disclaimers. Quantities and rates must be plain
numbers. No markdown fences and no commentary.`
