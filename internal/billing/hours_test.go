package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSumAgentHoursAllOrNothingUnits(t *testing.T) {
	perAgent := []AgentHours{
		{AgentID: 1, Hours: dec("0.25")},
		{AgentID: 2, Hours: dec("0")},
	}

	total, units, agents := sumAgentHours(perAgent)

	assert.True(t, total.Equal(dec("0.25")))
	// Any time at all earns exactly one unit; zero hours earns none.
	assert.Equal(t, 1, units)
	assert.Equal(t, 2, agents)
}

func TestSumAgentHoursUnitPerAgentNotPerHour(t *testing.T) {
	perAgent := []AgentHours{
		{AgentID: 1, Hours: dec("12")},
		{AgentID: 2, Hours: dec("8.5")},
		{AgentID: 3, Hours: dec("0.5")},
	}

	total, units, agents := sumAgentHours(perAgent)

	assert.True(t, total.Equal(dec("21")))
	assert.Equal(t, 3, units)
	assert.Equal(t, 3, agents)
}

func TestSumAgentHoursEmpty(t *testing.T) {
	total, units, agents := sumAgentHours(nil)

	assert.True(t, total.IsZero())
	assert.Zero(t, units)
	assert.Zero(t, agents)
}

func TestHeadcountWarningNamesBothCounts(t *testing.T) {
	w := headcountWarning(42, 3, 5)
	assert.Contains(t, w, "job 42")
	assert.Contains(t, w, "3 distinct agents")
	assert.Contains(t, w, "5 planned")
}
