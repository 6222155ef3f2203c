// Command tradingcore is the composition root: it loads configuration,
// opens the sqlite store and the bbolt audit sink, wires the exchange
// registry and the in-process audit bus, and serves the gin HTTP surface.
package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tradingcore/api"
	"tradingcore/audit"
	"tradingcore/config"
	"tradingcore/exchange"
	"tradingcore/logger"
	"tradingcore/metrics"
	"tradingcore/store"
)

func main() {
	cfg := config.Load()
	logger.Init(zerolog.InfoLevel, true)
	log := logger.L()

	metrics.Init()

	db, err := store.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("open sqlite store")
	}
	defer db.Close()

	sink, err := audit.OpenSink(cfg.AuditBoltPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open audit sink")
	}
	defer sink.Close()

	bus := audit.NewBus()
	bus.Subscribe("execution.action", func(e audit.Event) {
		log.Info().Int64("tenant_id", e.TenantID).Interface("payload", e.Payload).Msg("execution action")
	})

	registry := exchange.NewRegistry(cfg.ExchangeTimeout)
	credentials := credentialsResolver(cfg)

	server := api.NewServer(cfg, db, registry, credentials, bus, sink)
	server.Router().GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
	server.Router().GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Bool("trading_enabled", cfg.TradingEnabled).Msg("tradingcore listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	_ = httpServer.Close()
}

// credentialsResolver builds the per-tenant exchange credential lookup from
// environment defaults (spec §6: "credentials pulled from environment/secret
// store; per-tenant credentials override"). A real deployment swaps this for
// a secret-store-backed lookup keyed by tenant; this process only has the
// process-wide defaults to fall back to.
func credentialsResolver(cfg config.Config) api.CredentialsResolver {
	venue := os.Getenv("EXCHANGE_VENUE")
	if venue == "" {
		venue = "binance"
	}
	apiKey := os.Getenv("EXCHANGE_API_KEY")
	apiSecret := os.Getenv("EXCHANGE_API_SECRET")
	useTestnet := cfg.BinanceUseTestnet
	if venue == "bybit" {
		useTestnet = cfg.BybitUseTestnet
	}

	return func(tenantID int64) exchange.TenantCredentials {
		return exchange.TenantCredentials{
			TenantID:   tenantID,
			Venue:      venue,
			APIKey:     apiKey,
			APISecret:  apiSecret,
			UseTestnet: useTestnet,
		}
	}
}
