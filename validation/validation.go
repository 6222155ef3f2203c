// Package validation implements the Validation Framework (spec §4.8, C8):
// it aggregates issues into a ValidationReport with a PASS/WARNING/FAIL
// status rule, and ValidatePlan runs every validator to completion
// without short-circuiting so the report enumerates every issue.
package validation

import "fmt"

// Severity is the level of a single issue.
type Severity string

const (
	SeverityFail    Severity = "FAIL"
	SeverityWarning Severity = "WARNING"
)

// Status is the aggregate report status.
type Status string

const (
	StatusPass    Status = "PASS"
	StatusWarning Status = "WARNING"
	StatusFail    Status = "FAIL"
)

// Issue is one validator finding.
type Issue struct {
	Validator string   `json:"validator"`
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
	Field     string   `json:"field,omitempty"`
}

// Report is the C8 aggregate (spec §4.8).
type Report struct {
	Status   Status            `json:"status"`
	Issues   []Issue           `json:"issues"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewReport computes Status from the FAIL-beats-WARNING-beats-PASS rule.
func NewReport(issues []Issue, metadata map[string]string) Report {
	status := StatusPass
	for _, i := range issues {
		if i.Severity == SeverityFail {
			status = StatusFail
			break
		}
		if i.Severity == SeverityWarning {
			status = StatusWarning
		}
	}
	return Report{Status: status, Issues: issues, Metadata: metadata}
}

// ToDict renders the report for wire transport (spec §4.8 to_dict()).
func (r Report) ToDict() map[string]any {
	issues := make([]map[string]any, 0, len(r.Issues))
	for _, i := range r.Issues {
		issues = append(issues, map[string]any{
			"validator": i.Validator,
			"severity":  string(i.Severity),
			"message":   i.Message,
			"field":     i.Field,
		})
	}
	return map[string]any{
		"status":   string(r.Status),
		"issues":   issues,
		"metadata": r.Metadata,
	}
}

// ToHumanReadable renders the report for logs (spec §4.8 to_human_readable()).
func (r Report) ToHumanReadable() string {
	s := fmt.Sprintf("Validation: %s", r.Status)
	for _, i := range r.Issues {
		s += fmt.Sprintf("\n  [%s] %s: %s", i.Severity, i.Validator, i.Message)
	}
	return s
}

// FromDict reconstructs a Report from its wire form, making the round-trip
// (report -> dict -> report) lossless per spec §8.
func FromDict(d map[string]any) Report {
	var issues []Issue
	if raw, ok := d["issues"].([]map[string]any); ok {
		for _, ri := range raw {
			issues = append(issues, Issue{
				Validator: str(ri["validator"]),
				Severity:  Severity(str(ri["severity"])),
				Message:   str(ri["message"]),
				Field:     str(ri["field"]),
			})
		}
	}
	meta := map[string]string{}
	if m, ok := d["metadata"].(map[string]string); ok {
		meta = m
	}
	return NewReport(issues, meta)
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// Plan is the subset of a TradingIntent's plan that ValidatePlanUseCase
// inspects (spec §4.8).
type Plan struct {
	TenantID           int64
	MaxDrawdownPercent *float64
	StopLossPercent    *float64
	OperationType      string
	Symbol             string
	Quantity           float64
}

// ValidatePlan runs, in order, the tenant-isolation validator, the
// risk-configuration validator, and the operation validator — ALL to
// completion, no short-circuit (spec §4.8).
func ValidatePlan(p Plan) Report {
	var issues []Issue

	issues = append(issues, validateTenantIsolation(p)...)
	issues = append(issues, validateRiskConfiguration(p)...)
	issues = append(issues, validateOperation(p)...)

	return NewReport(issues, nil)
}

func validateTenantIsolation(p Plan) []Issue {
	if p.TenantID <= 0 {
		return []Issue{{Validator: "tenant_isolation", Severity: SeverityFail, Message: "tenant_id missing or non-positive", Field: "tenant_id"}}
	}
	return nil
}

func validateRiskConfiguration(p Plan) []Issue {
	var issues []Issue
	if p.MaxDrawdownPercent == nil {
		issues = append(issues, Issue{Validator: "risk_configuration", Severity: SeverityWarning, Message: "max_drawdown_percent not set, using default", Field: "max_drawdown_percent"})
	} else if *p.MaxDrawdownPercent <= 0 || *p.MaxDrawdownPercent > 100 {
		issues = append(issues, Issue{Validator: "risk_configuration", Severity: SeverityFail, Message: "max_drawdown_percent out of sane range (0,100]", Field: "max_drawdown_percent"})
	}
	if p.StopLossPercent != nil && (*p.StopLossPercent <= 0 || *p.StopLossPercent > 100) {
		issues = append(issues, Issue{Validator: "risk_configuration", Severity: SeverityFail, Message: "stop_loss_percent out of sane range (0,100]", Field: "stop_loss_percent"})
	}
	return issues
}

func validateOperation(p Plan) []Issue {
	var issues []Issue
	if p.OperationType == "" {
		issues = append(issues, Issue{Validator: "operation", Severity: SeverityFail, Message: "operation type missing", Field: "operation_type"})
	}
	if p.Symbol == "" {
		issues = append(issues, Issue{Validator: "operation", Severity: SeverityFail, Message: "symbol missing", Field: "symbol"})
	}
	if p.Quantity <= 0 {
		issues = append(issues, Issue{Validator: "operation", Severity: SeverityFail, Message: "quantity must be > 0", Field: "quantity"})
	}
	return issues
}
