// Package clock provides the single injectable time source for the Trading
// Core (spec §4.1 / §9 "global singletons become fields of a composition
// root"). External timestamps are truncated to milliseconds; internal ones
// to microseconds.
package clock

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Clock is implemented by the real wall clock and by fakes in tests.
type Clock interface {
	Now() time.Time
	NowMillis() time.Time
	NowMicros() time.Time
}

// System is the production Clock, backed by time.Now().
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

func (System) NowMillis() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (System) NowMicros() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Fixed is a deterministic Clock for tests.
type Fixed struct {
	At time.Time
}

func (f Fixed) Now() time.Time       { return f.At }
func (f Fixed) NowMillis() time.Time { return f.At.Truncate(time.Millisecond) }
func (f Fixed) NowMicros() time.Time { return f.At.Truncate(time.Microsecond) }

// NewIntentID generates a tenant-unique intent identifier.
func NewIntentID() string {
	return uuid.NewString()
}

// NewDecisionID generates an entry-gate decision identifier.
func NewDecisionID() string {
	return uuid.NewString()
}

// NewTransactionID generates an audit transaction identifier.
func NewTransactionID() string {
	return uuid.NewString()
}

// AdjustmentToken builds the default idempotency token for a trailing-stop
// adjustment: "{position_id}:adjust:{epoch_ms}" (spec §4.1). Callers that
// need deterministic replay safety (spec §9 open question) should pass their
// own token instead of relying on this default.
func AdjustmentToken(c Clock, positionID string) string {
	return fmt.Sprintf("%s:adjust:%d", positionID, c.NowMillis().UnixMilli())
}
