package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// sumAgentHours folds per-agent hour totals into the job-level aggregates.
// First-hour units are all-or-nothing: an agent who logged any time at all
// contributes exactly one unit, because the first-hour premium is charged once
// per person deployed, not per hour.
func sumAgentHours(perAgent []AgentHours) (total decimal.Decimal, firstHourUnits, agentCount int) {
	for _, a := range perAgent {
		total = total.Add(a.Hours)
		agentCount++
		if a.Hours.IsPositive() {
			firstHourUnits++
		}
	}
	return total, firstHourUnits, agentCount
}

// headcountWarning builds the operator-facing mismatch warning. The mismatch
// is surfaced, never silently corrected.
func headcountWarning(jobID int64, invoicedAgents, plannedAgents int) string {
	return fmt.Sprintf("job %d: %d distinct agents invoiced, %d planned", jobID, invoicedAgents, plannedAgents)
}
