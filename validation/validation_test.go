package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePlan_NoShortCircuit(t *testing.T) {
	report := ValidatePlan(Plan{})
	assert.Equal(t, StatusFail, report.Status)
	// tenant, risk config, and operation validators should all have fired.
	assert.GreaterOrEqual(t, len(report.Issues), 3)
}

func TestReport_RoundTrip(t *testing.T) {
	original := NewReport([]Issue{
		{Validator: "tenant_isolation", Severity: SeverityFail, Message: "missing", Field: "tenant_id"},
	}, map[string]string{"k": "v"})

	d := original.ToDict()
	rebuilt := FromDict(d)

	assert.Equal(t, original.Status, rebuilt.Status)
	assert.Equal(t, original.Issues, rebuilt.Issues)
}

func TestStatusRule(t *testing.T) {
	pass := NewReport(nil, nil)
	assert.Equal(t, StatusPass, pass.Status)

	warn := NewReport([]Issue{{Severity: SeverityWarning}}, nil)
	assert.Equal(t, StatusWarning, warn.Status)

	fail := NewReport([]Issue{{Severity: SeverityWarning}, {Severity: SeverityFail}}, nil)
	assert.Equal(t, StatusFail, fail.Status)
}
