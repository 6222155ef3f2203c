package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tradingcore/autoparam"
	"tradingcore/exchange"
	"tradingcore/execution"
	"tradingcore/intent"
	"tradingcore/logger"
	"tradingcore/riskguard"
	"tradingcore/store"
	"tradingcore/validation"
)

// createIntentRequest is the POST /trading-intents/create body. Manual mode
// needs all of side/entry_price/stop_price/capital; auto mode needs only
// symbol_id/strategy_id and runs the C6 pipeline to fill the rest (spec §6).
// The mode is inferred from the manual fields (see handleCreateIntent): a
// body with none of them is handled as auto even when it says mode="manual".
type createIntentRequest struct {
	Mode       string `json:"mode"`
	SymbolID   int64  `json:"symbol_id"`
	StrategyID int64  `json:"strategy_id"`
	Side       string `json:"side"`

	EntryPrice *string `json:"entry_price"`
	StopPrice  *string `json:"stop_price"`
	Capital    *string `json:"capital"`

	TargetPrice *string  `json:"target_price"`
	Regime      string   `json:"regime"`
	Confidence  *float64 `json:"confidence"`
	Reason      string   `json:"reason"`
}

func (s *Server) handleCreateIntent(c *gin.Context) {
	var req createIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	tid := tenantID(c)
	ctx := c.Request.Context()

	// Detect auto mode the way trading_intent_views.py does: explicit
	// mode="auto" OR every manual field absent. A partial manual payload
	// (some fields present, not all) is always a 400, even without an
	// explicit mode.
	hasSide := req.Side != ""
	hasEntry := req.EntryPrice != nil
	hasStop := req.StopPrice != nil
	hasCapital := req.Capital != nil
	hasAnyManual := hasSide || hasEntry || hasStop || hasCapital
	hasAllManual := hasSide && hasEntry && hasStop && hasCapital
	isExplicitAuto := req.Mode == "auto"

	if req.Mode != "" && req.Mode != "auto" && req.Mode != "manual" {
		respondError(c, http.StatusBadRequest, errors.New("mode must be \"manual\" or \"auto\""))
		return
	}

	if isExplicitAuto && hasAnyManual {
		var fieldsNotAllowed []string
		if hasSide {
			fieldsNotAllowed = append(fieldsNotAllowed, "side")
		}
		if hasEntry {
			fieldsNotAllowed = append(fieldsNotAllowed, "entry_price")
		}
		if hasStop {
			fieldsNotAllowed = append(fieldsNotAllowed, "stop_price")
		}
		if hasCapital {
			fieldsNotAllowed = append(fieldsNotAllowed, "capital")
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":              "mode=\"auto\" cannot have manual fields: remove manual fields or remove mode=\"auto\"",
			"fields_not_allowed": fieldsNotAllowed,
		})
		return
	}

	isAutoMode := isExplicitAuto || !hasAnyManual

	if hasAnyManual && !hasAllManual && !isExplicitAuto {
		var missingFields []string
		if !hasSide {
			missingFields = append(missingFields, "side")
		}
		if !hasEntry {
			missingFields = append(missingFields, "entry_price")
		}
		if !hasStop {
			missingFields = append(missingFields, "stop_price")
		}
		if !hasCapital {
			missingFields = append(missingFields, "capital")
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":          "partial manual mode: provide ALL of side, entry_price, stop_price and capital, or use auto mode",
			"missing_fields": missingFields,
		})
		return
	}

	mode := "manual"
	if isAutoMode {
		mode = "auto"
	}

	symbolRow, err := s.symbols.GetByID(ctx, req.SymbolID, tid)
	if err != nil {
		respondError(c, http.StatusNotFound, errors.New("symbol not found"))
		return
	}
	strategyRow, err := s.strategies.GetByID(ctx, req.StrategyID, tid)
	if err != nil {
		respondError(c, http.StatusNotFound, errors.New("strategy not found"))
		return
	}

	cmd := intent.Command{
		TenantID:   tid,
		SymbolID:   req.SymbolID,
		StrategyID: req.StrategyID,
		Regime:     req.Regime,
		Reason:     req.Reason,
	}
	if req.Confidence != nil {
		cmd.Confidence = *req.Confidence
	}
	if req.TargetPrice != nil {
		d, err := decimal.NewFromString(*req.TargetPrice)
		if err != nil {
			respondError(c, http.StatusBadRequest, errors.New("invalid target_price"))
			return
		}
		cmd.TargetPrice = &d
	}

	if mode == "manual" {
		side := exchange.Side(req.Side)
		entry, err1 := decimal.NewFromString(*req.EntryPrice)
		stop, err2 := decimal.NewFromString(*req.StopPrice)
		capital, err3 := decimal.NewFromString(*req.Capital)
		if err1 != nil || err2 != nil || err3 != nil {
			respondError(c, http.StatusBadRequest, errors.New("entry_price, stop_price and capital must be decimal strings"))
			return
		}
		cmd.Side = side
		cmd.EntryPrice = entry
		cmd.StopPrice = stop
		cmd.Capital = capital
	} else {
		port, err := s.port(tid)
		if err != nil {
			respondError(c, http.StatusBadGateway, err)
			return
		}
		cache, err := s.marketCache(tid)
		if err != nil {
			respondError(c, http.StatusBadGateway, err)
			return
		}
		pipeline := autoparam.Pipeline{Exchange: port, Market: cache}
		proposal, err := pipeline.Build(ctx, tid, symbolRow.Name, strategyConfigFromRow(strategyRow), 100)
		if err != nil {
			respondError(c, http.StatusUnprocessableEntity, err)
			return
		}
		cmd.Side = proposal.Side
		cmd.EntryPrice = proposal.EntryPrice
		cmd.StopPrice = proposal.StopPrice
		cmd.Capital = proposal.CapitalUsed
		cmd.Quantity = &proposal.Quantity
		cmd.Confidence = proposal.ConfidenceFloat
	}

	uc := intent.CreateTradingIntentUseCase{
		Symbols:    store.NewIntentSymbolRepository(s.symbols),
		Strategies: store.NewIntentStrategyRepository(s.strategies),
		Intents:    s.intents,
	}
	created, err := uc.Execute(ctx, cmd)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"intent": created})
}

func (s *Server) handleGetIntent(c *gin.Context) {
	i, err := s.intents.GetByIntentID(c.Request.Context(), c.Param("intent_id"), tenantID(c))
	if err != nil {
		respondError(c, http.StatusNotFound, errors.New("trading intent not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"intent": i})
}

func (s *Server) handleListIntents(c *gin.Context) {
	var filter intent.ListFilter
	if status := c.Query("status"); status != "" {
		st := intent.Status(status)
		filter.Status = &st
	}
	if v := c.Query("strategy_id"); v != "" {
		id, err := parseInt64(v)
		if err != nil {
			respondError(c, http.StatusBadRequest, errors.New("invalid strategy_id"))
			return
		}
		filter.StrategyID = &id
	}
	if v := c.Query("symbol_id"); v != "" {
		id, err := parseInt64(v)
		if err != nil {
			respondError(c, http.StatusBadRequest, errors.New("invalid symbol_id"))
			return
		}
		filter.SymbolID = &id
	}
	filter.Limit = 100
	if v := c.Query("limit"); v != "" {
		n, err := parseInt64(v)
		if err != nil || n <= 0 || n > 1000 {
			respondError(c, http.StatusBadRequest, errors.New("limit must be between 1 and 1000"))
			return
		}
		filter.Limit = int(n)
	}
	if v := c.Query("offset"); v != "" {
		n, err := parseInt64(v)
		if err != nil || n < 0 {
			respondError(c, http.StatusBadRequest, errors.New("invalid offset"))
			return
		}
		filter.Offset = int(n)
	}

	items, err := s.intents.ListByTenant(c.Request.Context(), tenantID(c), filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"intents": items})
}

func (s *Server) handleValidateIntent(c *gin.Context) {
	ctx := c.Request.Context()
	tid := tenantID(c)
	i, err := s.intents.GetByIntentID(ctx, c.Param("intent_id"), tid)
	if err != nil {
		respondError(c, http.StatusNotFound, errors.New("trading intent not found"))
		return
	}

	guardCtx := riskguard.Context{
		Mode:       riskguard.ModeDryRun,
		Side:       i.Side,
		EntryPrice: i.EntryPrice,
		StopPrice:  &i.StopPrice,
		Quantity:   i.Quantity,
		Capital:    i.Capital,
	}
	guards := riskguard.RunAll(guardCtx)
	report := reportFromGuards(guards)
	s.recordEntryGateDecision(ctx, tid, symbolTicker(ctx, s, i.SymbolID, tid), guards)

	result := map[string]any{"guards": guards, "report": report}
	if err := i.Validate(result, s.clk.Now().UnixMilli()); err != nil {
		respondError(c, http.StatusConflict, err)
		return
	}
	if err := s.intents.Save(ctx, i); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"intent": i, "report": report})
}

// reportFromGuards turns the guard suite's pass/fail outcomes into a C8
// ValidationReport (spec §4.8): a failing guard is a FAIL issue, every guard
// runs to completion regardless of earlier failures.
func reportFromGuards(guards []riskguard.Guard) validation.Report {
	issues := make([]validation.Issue, 0, len(guards))
	for _, g := range guards {
		if g.Passed {
			continue
		}
		issues = append(issues, validation.Issue{
			Validator: g.Name,
			Severity:  validation.SeverityFail,
			Message:   g.Message,
		})
	}
	return validation.NewReport(issues, nil)
}

func (s *Server) handleExecuteIntent(c *gin.Context) {
	ctx := c.Request.Context()
	tid := tenantID(c)
	i, err := s.intents.GetByIntentID(ctx, c.Param("intent_id"), tid)
	if err != nil {
		respondError(c, http.StatusNotFound, errors.New("trading intent not found"))
		return
	}

	mode := execution.ModeDryRun
	if c.Query("mode") == "live" {
		if !s.cfg.TradingEnabled {
			respondError(c, http.StatusForbidden, errors.New("live trading is disabled (TRADING_ENABLED=false)"))
			return
		}
		mode = execution.ModeLive
	}

	port, err := s.port(tid)
	if err != nil {
		respondError(c, http.StatusBadGateway, err)
		return
	}
	engine := execution.Engine{Exchange: port, Audit: s.auditorFor(tid)}

	guardCtx := riskguard.Context{
		Mode:         mode,
		Side:         i.Side,
		EntryPrice:   i.EntryPrice,
		StopPrice:    &i.StopPrice,
		Quantity:     i.Quantity,
		Capital:      i.Capital,
		StrategyName: i.Regime,
		Confirmed:    true,
	}
	result := engine.Execute(ctx, execution.Request{
		Mode:            mode,
		Symbol:          symbolTicker(ctx, s, i.SymbolID, tid),
		Side:            i.Side,
		Quantity:        i.Quantity,
		StopPrice:       i.StopPrice,
		GuardCtx:        guardCtx,
		OpeningPosition: true,
	})

	if result.Status == execution.StatusBlocked {
		_ = i.Fail("execution blocked: " + result.Error)
		_ = s.intents.Save(ctx, i)
		c.JSON(http.StatusOK, gin.H{"result": result})
		return
	}
	if result.Status == execution.StatusFailed {
		_ = i.Fail(result.Error)
		_ = s.intents.Save(ctx, i)
		c.JSON(http.StatusOK, gin.H{"result": result})
		return
	}

	execResult := map[string]any{"status": string(result.Status), "actions": result.Actions}
	if err := i.Execute(execResult, s.clk.Now().UnixMilli()); err != nil {
		respondError(c, http.StatusConflict, err)
		return
	}
	if err := s.intents.Save(ctx, i); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"intent": i, "result": result})
}

// handleAutoCalculate previews the C6 pipeline without persisting anything
// (spec §6: "auto-calculate ... preview the auto pipeline's output").
func (s *Server) handleAutoCalculate(c *gin.Context) {
	var req struct {
		SymbolID     int64  `json:"symbol_id"`
		StrategyID   int64  `json:"strategy_id"`
		CandleWindow int    `json:"candle_window"`
		Timeframe    string `json:"timeframe"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	tid := tenantID(c)
	ctx := c.Request.Context()

	symbolRow, err := s.symbols.GetByID(ctx, req.SymbolID, tid)
	if err != nil {
		respondError(c, http.StatusNotFound, errors.New("symbol not found"))
		return
	}
	strategyRow, err := s.strategies.GetByID(ctx, req.StrategyID, tid)
	if err != nil {
		respondError(c, http.StatusNotFound, errors.New("strategy not found"))
		return
	}

	port, err := s.port(tid)
	if err != nil {
		respondError(c, http.StatusBadGateway, err)
		return
	}
	cache, err := s.marketCache(tid)
	if err != nil {
		respondError(c, http.StatusBadGateway, err)
		return
	}
	pipeline := autoparam.Pipeline{Exchange: port, Market: cache}
	window := req.CandleWindow
	if window <= 0 {
		window = 100
	}
	proposal, err := pipeline.Build(ctx, tid, symbolRow.Name, strategyConfigFromRow(strategyRow), window)
	if err != nil {
		respondError(c, http.StatusUnprocessableEntity, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proposal": proposal})
}

// handlePatternTrigger records a pattern-detector event idempotently,
// creating one auto trading intent per pattern_event_id (spec §6: replaying
// the same pattern_event_id returns ALREADY_PROCESSED, not a duplicate
// intent).
func (s *Server) handlePatternTrigger(c *gin.Context) {
	var req struct {
		SymbolID       int64  `json:"symbol_id"`
		StrategyID     int64  `json:"strategy_id"`
		PatternEventID string `json:"pattern_event_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if req.PatternEventID == "" {
		respondError(c, http.StatusBadRequest, errors.New("pattern_event_id is required"))
		return
	}
	tid := tenantID(c)
	ctx := c.Request.Context()

	if _, found, err := store.GetPatternTrigger(ctx, s.db, tid, req.PatternEventID); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	} else if found {
		c.JSON(http.StatusOK, gin.H{"status": "ALREADY_PROCESSED"})
		return
	}

	symbolRow, err := s.symbols.GetByID(ctx, req.SymbolID, tid)
	if err != nil {
		respondError(c, http.StatusNotFound, errors.New("symbol not found"))
		return
	}
	strategyRow, err := s.strategies.GetByID(ctx, req.StrategyID, tid)
	if err != nil {
		respondError(c, http.StatusNotFound, errors.New("strategy not found"))
		return
	}

	port, err := s.port(tid)
	if err != nil {
		respondError(c, http.StatusBadGateway, err)
		return
	}
	cache, err := s.marketCache(tid)
	if err != nil {
		respondError(c, http.StatusBadGateway, err)
		return
	}
	pipeline := autoparam.Pipeline{Exchange: port, Market: cache}
	proposal, err := pipeline.Build(ctx, tid, symbolRow.Name, strategyConfigFromRow(strategyRow), 100)
	if err != nil {
		respondError(c, http.StatusUnprocessableEntity, err)
		return
	}

	uc := intent.CreateTradingIntentUseCase{
		Symbols:    store.NewIntentSymbolRepository(s.symbols),
		Strategies: store.NewIntentStrategyRepository(s.strategies),
		Intents:    s.intents,
	}
	created, err := uc.Execute(ctx, intent.Command{
		TenantID:   tid,
		SymbolID:   req.SymbolID,
		StrategyID: req.StrategyID,
		Side:       proposal.Side,
		EntryPrice: proposal.EntryPrice,
		StopPrice:  proposal.StopPrice,
		Capital:    proposal.CapitalUsed,
		Quantity:   &proposal.Quantity,
		Confidence: proposal.ConfidenceFloat,
		Reason:     "pattern_trigger:" + req.PatternEventID,
	})
	if err != nil {
		respondError(c, http.StatusUnprocessableEntity, err)
		return
	}

	// A second request for the same pattern_event_id that raced past the
	// check above still can't produce two live intents: RecordPatternTrigger
	// is the atomic idempotency gate (INSERT OR IGNORE on the primary key).
	wasCreated, err := store.RecordPatternTrigger(ctx, s.db, tid, req.PatternEventID, created.IntentID, s.clk.Now())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if !wasCreated {
		_ = created.Cancel()
		_ = s.intents.Save(ctx, created)
		c.JSON(http.StatusOK, gin.H{"status": "ALREADY_PROCESSED"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"intent": created})
}

// recordEntryGateDecision persists the EntryGate sub-guard's outcome (C7) so
// a compliance reviewer can replay why a symbol was or wasn't let through.
// Best-effort: a persistence failure here must not block a validate response
// the trader is waiting on.
func (s *Server) recordEntryGateDecision(ctx context.Context, tenantID int64, symbol string, guards []riskguard.Guard) {
	for _, g := range guards {
		if g.Name != "EntryGate" {
			continue
		}
		reasons := []string{}
		if !g.Passed && g.Message != "" {
			reasons = append(reasons, g.Message)
		}
		if err := store.RecordEntryGateDecision(ctx, s.db, tenantID, symbol, g.Passed, reasons, g.Details, s.clk.Now()); err != nil {
			logger.L().Warn().Err(err).Int64("tenant_id", tenantID).Str("symbol", symbol).Msg("failed to record entry gate decision")
		}
		return
	}
}

func strategyConfigFromRow(row store.StrategyRow) autoparam.StrategyConfig {
	cfg := autoparam.StrategyConfig{MarketBias: autoparam.MarketBias(row.MarketBias)}
	if v, ok := row.Config["capital_mode"].(string); ok {
		cfg.CapitalMode = autoparam.CapitalMode(v)
	}
	if v, ok := row.Config["capital_fixed"].(string); ok {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.CapitalFixed = d
		}
	}
	if v, ok := row.Config["capital_balance_percent"].(string); ok {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.CapitalBalancePercent = d
		}
	}
	if v, ok := row.Config["timeframe"].(string); ok {
		cfg.Timeframe = v
	}
	if v, ok := row.Config["quote_asset"].(string); ok {
		cfg.QuoteAsset = v
	}
	if cfg.CapitalFixed.IsZero() {
		cfg.CapitalFixed = decimal.NewFromInt(1000)
	}
	return cfg
}

func symbolTicker(ctx context.Context, s *Server, symbolID, tenantID int64) string {
	row, err := s.symbols.GetByID(ctx, symbolID, tenantID)
	if err != nil {
		return ""
	}
	return row.Name
}

func parseInt64(v string) (int64, error) {
	return strconv.ParseInt(v, 10, 64)
}
