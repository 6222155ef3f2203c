package marketdata

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"tradingcore/logger"
)

// tickerMessage is the subset of a Binance-style bookTicker push the stream
// consumer needs.
type tickerMessage struct {
	Symbol string `json:"s"`
	Bid    string `json:"b"`
	Ask    string `json:"a"`
}

// Stream consumes a venue's live book-ticker websocket and pushes fresh
// prices directly into the Cache, so C13's periodic trailing-stop tick can
// read a push-driven price instead of polling BestBid/BestAsk on every tick
// (SPEC_FULL.md domain-stack wiring for gorilla/websocket).
type Stream struct {
	url   string
	cache *Cache

	mu      sync.Mutex
	conn    *websocket.Conn
	closeCh chan struct{}
}

func NewStream(url string, cache *Cache) *Stream {
	return &Stream{url: url, cache: cache}
}

// Run connects and pumps ticker updates into the cache until ctx is done or
// Close is called. After a read error it redials at once; a failed dial is
// retried after 2s. Callers typically run it in its own goroutine.
func (s *Stream) Run(ctx context.Context) error {
	s.mu.Lock()
	s.closeCh = make(chan struct{})
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closeCh:
			return nil
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			logger.L().Warn().Err(err).Str("url", s.url).Msg("marketdata stream dial failed, retrying")
			select {
			case <-time.After(2 * time.Second):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		s.pump(ctx, conn)
	}
}

func (s *Stream) pump(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			logger.L().Warn().Err(err).Msg("marketdata stream read failed")
			return
		}

		var msg tickerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		bid, errB := decimal.NewFromString(msg.Bid)
		ask, errA := decimal.NewFromString(msg.Ask)
		if errB != nil || errA != nil || msg.Symbol == "" {
			continue
		}

		s.cache.mu.Lock()
		now := time.Now()
		s.cache.ticks[tickKey(msg.Symbol, kindBid)] = tickEntry{value: bid, expiresAt: now.Add(s.cache.tickTTL)}
		s.cache.ticks[tickKey(msg.Symbol, kindAsk)] = tickEntry{value: ask, expiresAt: now.Add(s.cache.tickTTL)}
		s.cache.mu.Unlock()
	}
}

// Close stops Run and releases the underlying connection.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeCh != nil {
		select {
		case <-s.closeCh:
		default:
			close(s.closeCh)
		}
	}
	if s.conn != nil {
		s.conn.Close()
	}
}
