package api

import (
	"context"
	"time"

	"tradingcore/audit"
	"tradingcore/execution"
)

// executionAuditor adapts the in-process audit.Bus (and the persistent
// audit.Sink) to execution.Auditor for one tenant's requests.
type executionAuditor struct {
	bus      *audit.Bus
	sink     *audit.Sink
	tenantID int64
}

func (s *Server) auditorFor(tenantID int64) execution.Auditor {
	return executionAuditor{bus: s.bus, sink: s.sink, tenantID: tenantID}
}

func (a executionAuditor) RecordAction(ctx context.Context, symbol string, act execution.Action) {
	event := audit.Event{
		Topic:     "execution.action",
		TenantID:  a.tenantID,
		Timestamp: time.Now(),
		Payload: map[string]any{
			"symbol":   symbol,
			"type":     string(act.Type),
			"order_id": act.OrderID,
			"price":    act.Price.String(),
			"qty":      act.Qty.String(),
			"error":    act.Error,
		},
	}
	if a.bus != nil {
		a.bus.Publish(event)
	}
	if a.sink != nil {
		_ = a.sink.Append(event)
	}
}
