// Package audit implements the Audit & Event Bus (spec §4.15, C15): a
// thread-safe in-process publish/subscribe bus with synchronous, ordered,
// exception-isolated delivery, plus a persistent append-only sink keyed by
// tenant (grounded on the bitunixbot example's bbolt usage, the only
// embedded-KV example in the retrieved pack).
package audit

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"tradingcore/logger"
)

// Event is one domain occurrence recorded to the audit trail.
type Event struct {
	Topic     string
	TenantID  int64
	Timestamp time.Time
	Payload   map[string]any
}

// Handler reacts to a published Event. A panicking handler is caught,
// logged, and swallowed so subsequent handlers still run (spec §4.15).
type Handler func(Event)

// Bus is the in-process topic->ordered-handlers pub/sub (spec §4.15).
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: map[string][]Handler{}}
}

// Subscribe registers a handler for a topic, appended after any existing
// handlers (registration order governs delivery order).
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish delivers the event synchronously, in registration order. A handler
// that panics is recovered, logged, and does not stop later handlers.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[event.Topic]...)
	b.mu.RUnlock()

	for _, h := range hs {
		b.deliver(h, event)
	}
}

func (b *Bus) deliver(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.L().Error().
				Str("topic", event.Topic).
				Int64("tenant_id", event.TenantID).
				Interface("panic", r).
				Msg("audit: handler panicked, continuing to remaining handlers")
		}
	}()
	h(event)
}

// Sink is the persistent append-only store every domain event lands in,
// independent of whatever in-process handlers also subscribed.
type Sink struct {
	db *bolt.DB
}

var rootBucket = []byte("audit_events")

// OpenSink opens (creating if absent) a bbolt-backed audit sink at path.
func OpenSink(path string) (*Sink, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("audit: open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create bucket: %w", err)
	}
	return &Sink{db: db}, nil
}

// Close releases the underlying bbolt file handle.
func (s *Sink) Close() error {
	return s.db.Close()
}

// Append writes the event under a per-tenant, time-ordered key so a later
// cursor scan naturally returns a tenant's history in order.
func (s *Sink) Append(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}
	key := fmt.Sprintf("%020d:%d:%020d", event.TenantID, event.Timestamp.UnixNano(), keySeq())

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(rootBucket)
		return b.Put([]byte(key), payload)
	})
}

// ListByTenant reads back every event recorded for a tenant, oldest first.
func (s *Sink) ListByTenant(tenantID int64) ([]Event, error) {
	prefix := []byte(fmt.Sprintf("%020d:", tenantID))
	var events []Event

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(rootBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var e Event
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("audit: unmarshal event: %w", err)
			}
			events = append(events, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

var seqMu sync.Mutex
var seq uint64

// keySeq disambiguates events sharing a nanosecond timestamp within the same
// tenant, keeping keys strictly increasing without relying on wall-clock
// resolution.
func keySeq() uint64 {
	seqMu.Lock()
	defer seqMu.Unlock()
	seq++
	return seq
}
