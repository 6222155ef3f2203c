// Package api is the HTTP surface (spec §6), grounded on api/tactics.go's
// gin handler style: a Server struct holding every dependency, tenant
// resolved per-request, gin.H response bodies.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"tradingcore/audit"
	"tradingcore/clock"
	"tradingcore/config"
	"tradingcore/exchange"
	"tradingcore/logger"
	"tradingcore/marketdata"
	"tradingcore/store"
)

// CredentialsResolver looks up the exchange credentials a tenant trades
// with (spec §6: "per-tenant credentials override" the process defaults).
type CredentialsResolver func(tenantID int64) exchange.TenantCredentials

// Server wires every package's use cases behind the HTTP surface.
type Server struct {
	router *gin.Engine

	cfg config.Config

	db         *sql.DB
	symbols    store.SymbolStore
	strategies store.StrategyStore
	intents    store.IntentRepository
	operations store.OperationRepository
	policies   store.PolicyRepository

	exchanges   *exchange.Registry
	credentials CredentialsResolver
	bus         *audit.Bus
	sink        *audit.Sink
	clk         clock.Clock

	cacheMu sync.Mutex
	caches  map[int64]*marketdata.Cache
}

// NewServer builds the gin engine and registers every route in the spec §6
// table.
func NewServer(cfg config.Config, db *sql.DB, exchanges *exchange.Registry, credentials CredentialsResolver, bus *audit.Bus, sink *audit.Sink) *Server {
	s := &Server{
		cfg:         cfg,
		db:          db,
		symbols:     store.SymbolStore{DB: db},
		strategies:  store.StrategyStore{DB: db},
		intents:     store.IntentRepository{DB: db},
		operations:  store.OperationRepository{DB: db},
		policies:    store.PolicyRepository{DB: db},
		exchanges:   exchanges,
		credentials: credentials,
		bus:         bus,
		sink:        sink,
		clk:         clock.System{},
		caches:      map[int64]*marketdata.Cache{},
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.resolveTenant)

	r.POST("/trading-intents/create", s.handleCreateIntent)
	r.GET("/trading-intents/:intent_id", s.handleGetIntent)
	r.GET("/trading-intents", s.handleListIntents)
	r.POST("/trading-intents/:intent_id/validate", s.handleValidateIntent)
	r.POST("/trading-intents/:intent_id/execute", s.handleExecuteIntent)
	r.POST("/trading-intents/auto-calculate", s.handleAutoCalculate)
	r.POST("/pattern-triggers", s.handlePatternTrigger)

	r.GET("/operations", s.handleListOperations)
	r.GET("/operations/:id", s.handleGetOperation)
	r.POST("/operations/:id/cancel", s.handleCancelOperation)

	r.POST("/trade/risk-managed/buy", s.handleRiskManagedTrade(exchange.Buy))
	r.POST("/trade/risk-managed/sell", s.handleRiskManagedTrade(exchange.Sell))
	r.POST("/trade/risk-managed/validate", s.handleRiskManagedValidate)
	r.GET("/trade/risk-status", s.handleRiskStatus)

	r.GET("/portfolio/positions", s.handlePortfolioPositions)

	s.router = r
	return s
}

// Router exposes the underlying gin engine, e.g. for httptest or ListenAndServe.
func (s *Server) Router() *gin.Engine { return s.router }

// port resolves the exchange.Port a tenant trades against, through the
// lazily-initialized Registry (spec §5).
func (s *Server) port(tenantID int64) (exchange.Port, error) {
	return s.exchanges.Get(s.credentials(tenantID))
}

// marketCache returns the tenant's short-TTL price/candle cache (spec §4.3,
// C3), building it once per tenant in front of that tenant's Port.
func (s *Server) marketCache(tenantID int64) (*marketdata.Cache, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	if c, ok := s.caches[tenantID]; ok {
		return c, nil
	}
	port, err := s.exchanges.Get(s.credentials(tenantID))
	if err != nil {
		return nil, err
	}
	c := marketdata.NewCache(port, s.cfg.MarketDataTTL, s.cfg.CandleCacheTTL)
	s.caches[tenantID] = c

	if s.cfg.MarketDataStreamURL != "" {
		stream := marketdata.NewStream(s.cfg.MarketDataStreamURL, c)
		go func() {
			if err := stream.Run(context.Background()); err != nil {
				logger.L().Warn().Err(err).Int64("tenant_id", tenantID).Msg("marketdata stream stopped")
			}
		}()
	}

	return c, nil
}

// resolveTenant is the auth/tenant-resolution middleware: it trusts an
// X-Tenant-ID header the way a gateway in front of this service would
// inject it after verifying the caller's credential (spec §6: "tenant
// resolved from the credential").
func (s *Server) resolveTenant(c *gin.Context) {
	raw := c.GetHeader("X-Tenant-ID")
	if raw == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing X-Tenant-ID"})
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid X-Tenant-ID"})
		return
	}
	c.Set("tenant_id", id)
	c.Next()
}

func tenantID(c *gin.Context) int64 {
	v, _ := c.Get("tenant_id")
	id, _ := v.(int64)
	return id
}

func respondError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}
