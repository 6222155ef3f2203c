// Package marketdata implements the short-TTL cache in front of the
// exchange port (spec §4.3, C3). Cache misses fall through to the Port;
// candle windows get a longer TTL than tick prices. The cache is
// process-local — no distributed coherency is promised (spec §4.3/§5).
package marketdata

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"tradingcore/exchange"

	"github.com/shopspring/decimal"
)

type tickKind int

const (
	kindBid tickKind = iota
	kindAsk
)

type tickEntry struct {
	value     decimal.Decimal
	expiresAt time.Time
}

type klineEntry struct {
	value     []exchange.Kline
	expiresAt time.Time
}

// Cache is a concurrent map guarded by a mutex (spec §5: "market-data cache
// is a concurrent map; stale reads are acceptable"). A singleflight.Group
// deduplicates concurrent misses for the same key so a burst of requests for
// the same symbol only hits the exchange once.
type Cache struct {
	port Port

	tickTTL  time.Duration
	klineTTL time.Duration

	mu     sync.Mutex
	ticks  map[string]tickEntry
	klines map[string]klineEntry

	group singleflight.Group
}

// Port is the subset of exchange.Port the cache needs, kept narrow so tests
// can fake just what's exercised.
type Port interface {
	BestBid(ctx context.Context, symbol string) (decimal.Decimal, error)
	BestAsk(ctx context.Context, symbol string) (decimal.Decimal, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Kline, error)
}

// NewCache builds a Cache with the spec defaults: 5s for ticks, 30s for
// candle windows.
func NewCache(port Port, tickTTL, klineTTL time.Duration) *Cache {
	if tickTTL <= 0 {
		tickTTL = 5 * time.Second
	}
	if klineTTL <= 0 {
		klineTTL = 30 * time.Second
	}
	return &Cache{
		port:     port,
		tickTTL:  tickTTL,
		klineTTL: klineTTL,
		ticks:    map[string]tickEntry{},
		klines:   map[string]klineEntry{},
	}
}

func tickKey(symbol string, kind tickKind) string {
	if kind == kindBid {
		return symbol + "|bid"
	}
	return symbol + "|ask"
}

func (c *Cache) BestBid(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return c.tick(ctx, symbol, kindBid)
}

func (c *Cache) BestAsk(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return c.tick(ctx, symbol, kindAsk)
}

func (c *Cache) tick(ctx context.Context, symbol string, kind tickKind) (decimal.Decimal, error) {
	key := tickKey(symbol, kind)
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.ticks[key]; ok && now.Before(e.expiresAt) {
		c.mu.Unlock()
		return e.value, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		var value decimal.Decimal
		var err error
		if kind == kindBid {
			value, err = c.port.BestBid(ctx, symbol)
		} else {
			value, err = c.port.BestAsk(ctx, symbol)
		}
		if err != nil {
			return decimal.Zero, err
		}
		c.mu.Lock()
		c.ticks[key] = tickEntry{value: value, expiresAt: time.Now().Add(c.tickTTL)}
		c.mu.Unlock()
		return value, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

func klineKey(symbol, interval string, limit int) string {
	return symbol + "|" + interval + "|" + strconv.Itoa(limit)
}

// Klines returns cached candles keyed by (symbol, interval, limit) with a
// 30s default TTL (spec §4.3).
func (c *Cache) Klines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Kline, error) {
	key := klineKey(symbol, interval, limit)
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.klines[key]; ok && now.Before(e.expiresAt) {
		c.mu.Unlock()
		return e.value, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		ks, err := c.port.Klines(ctx, symbol, interval, limit)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.klines[key] = klineEntry{value: ks, expiresAt: time.Now().Add(c.klineTTL)}
		c.mu.Unlock()
		return ks, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]exchange.Kline), nil
}
