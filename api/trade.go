package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tradingcore/exchange"
	"tradingcore/execution"
	"tradingcore/riskguard"
)

type riskManagedTradeRequest struct {
	Symbol       string   `json:"symbol"`
	Quantity     string   `json:"quantity"`
	StopPrice    *string  `json:"stop_price"`
	Capital      *string  `json:"capital"`
	StrategyName string   `json:"strategy_name"`
	Confirmed    bool     `json:"confirmed"`
	Mode         string   `json:"mode"`
	Closing      bool     `json:"closing"`
	MaxRisk      *float64 `json:"max_risk_percent"`
}

// handleRiskManagedTrade builds one of POST /trade/risk-managed/{buy,sell}:
// guard suite runs first (spec §4.7), live trading additionally requires
// TRADING_ENABLED (spec §6).
func (s *Server) handleRiskManagedTrade(side exchange.Side) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req riskManagedTradeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, err)
			return
		}
		if req.Symbol == "" {
			respondError(c, http.StatusBadRequest, errors.New("symbol is required"))
			return
		}
		if req.StopPrice == nil && !req.Closing {
			respondError(c, http.StatusBadRequest, errors.New("stop_price is required"))
			return
		}
		qty, err := decimal.NewFromString(req.Quantity)
		if err != nil {
			respondError(c, http.StatusBadRequest, errors.New("invalid quantity"))
			return
		}

		mode := execution.ModeDryRun
		if req.Mode == "live" {
			mode = execution.ModeLive
		}
		if mode == execution.ModeLive && !s.cfg.TradingEnabled {
			respondError(c, http.StatusForbidden, errors.New("live trading is disabled (TRADING_ENABLED=false)"))
			return
		}

		tid := tenantID(c)
		ctx := c.Request.Context()
		port, err := s.port(tid)
		if err != nil {
			respondError(c, http.StatusBadGateway, err)
			return
		}

		var entry decimal.Decimal
		if side == exchange.Buy {
			entry, err = port.BestAsk(ctx, req.Symbol)
		} else {
			entry, err = port.BestBid(ctx, req.Symbol)
		}
		if err != nil {
			respondError(c, http.StatusBadGateway, err)
			return
		}

		var stopPrice decimal.Decimal
		var stopPtr *decimal.Decimal
		if req.StopPrice != nil {
			stopPrice, err = decimal.NewFromString(*req.StopPrice)
			if err != nil {
				respondError(c, http.StatusBadRequest, errors.New("invalid stop_price"))
				return
			}
			stopPtr = &stopPrice
		}

		capital := decimal.Zero
		if req.Capital != nil {
			capital, err = decimal.NewFromString(*req.Capital)
			if err != nil {
				respondError(c, http.StatusBadRequest, errors.New("invalid capital"))
				return
			}
		}

		maxRisk := decimal.Zero
		if req.MaxRisk != nil {
			maxRisk = decimal.NewFromFloat(*req.MaxRisk)
		}

		guardCtx := riskguard.Context{
			Mode:           mode,
			Side:           side,
			EntryPrice:     entry,
			StopPrice:      stopPtr,
			Quantity:       qty,
			Capital:        capital,
			MaxRiskPercent: maxRisk,
			TenantID:       tid,
			Now:            s.clk.Now(),
			StrategyName:   req.StrategyName,
			Confirmed:      req.Confirmed,
		}

		engine := execution.Engine{Exchange: port, Audit: s.auditorFor(tid)}
		result := engine.Execute(ctx, execution.Request{
			Mode:            mode,
			Symbol:          req.Symbol,
			Side:            side,
			Quantity:        qty,
			StopPrice:       stopPrice,
			GuardCtx:        guardCtx,
			OpeningPosition: !req.Closing,
		})

		if result.Status == execution.StatusBlocked {
			c.JSON(http.StatusForbidden, gin.H{"result": result})
			return
		}
		c.JSON(http.StatusOK, gin.H{"result": result})
	}
}

// handleRiskManagedValidate runs the guard suite as a dry preview: it reads
// the best ask from the exchange as the entry price and places no order. The
// preview always evaluates a BUY.
func (s *Server) handleRiskManagedValidate(c *gin.Context) {
	var req riskManagedTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		respondError(c, http.StatusBadRequest, errors.New("invalid quantity"))
		return
	}
	var stopPtr *decimal.Decimal
	if req.StopPrice != nil {
		stop, err := decimal.NewFromString(*req.StopPrice)
		if err != nil {
			respondError(c, http.StatusBadRequest, errors.New("invalid stop_price"))
			return
		}
		stopPtr = &stop
	}
	capital := decimal.Zero
	if req.Capital != nil {
		capital, err = decimal.NewFromString(*req.Capital)
		if err != nil {
			respondError(c, http.StatusBadRequest, errors.New("invalid capital"))
			return
		}
	}

	side := exchange.Buy
	tid := tenantID(c)
	ctx := c.Request.Context()
	port, err := s.port(tid)
	if err != nil {
		respondError(c, http.StatusBadGateway, err)
		return
	}
	entry, err := port.BestAsk(ctx, req.Symbol)
	if err != nil {
		respondError(c, http.StatusBadGateway, err)
		return
	}

	guards := riskguard.RunAll(riskguard.Context{
		Mode:         riskguard.ModeDryRun,
		Side:         side,
		EntryPrice:   entry,
		StopPrice:    stopPtr,
		Quantity:     qty,
		Capital:      capital,
		TenantID:     tid,
		Now:          s.clk.Now(),
		StrategyName: req.StrategyName,
		Confirmed:    req.Confirmed,
	})
	c.JSON(http.StatusOK, gin.H{"guards": guards, "passed": riskguard.AllPassed(guards)})
}

// handleRiskStatus returns the current month's PolicyState projection (spec
// §6): ACTIVE/PAUSED/SUSPENDED, realized/unrealized P&L, drawdown percent.
func (s *Server) handleRiskStatus(c *gin.Context) {
	tid := tenantID(c)
	now := s.clk.Now()
	state, err := s.policies.Get(c.Request.Context(), tid, now.Year(), int(now.Month()))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if state == nil {
		c.JSON(http.StatusOK, gin.H{"status": "NO_RECORD"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":            state,
		"drawdown_percent": state.DrawdownPercent(),
	})
}
