package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"folio/internal/application/port"
	"folio/internal/application/service"
	"folio/internal/application/usecase/monitor"
	"folio/internal/domain/model"
	dsvc "folio/internal/domain/service"
)

// Handler 持仓、组合、提醒、行情的 REST 接口
type Handler struct {
	book     *service.PositionService
	prices   *service.PriceService
	alerts   *monitor.Service
	quotes   port.QuoteProvider
	currency string
}

func NewHandler(book *service.PositionService, prices *service.PriceService, alerts *monitor.Service, quotes port.QuoteProvider, currency string) *Handler {
	return &Handler{book: book, prices: prices, alerts: alerts, quotes: quotes, currency: currency}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.Health)

	api := router.Group("/api/v1")
	{
		api.GET("/positions", h.ListPositions)
		api.POST("/positions", h.AddPosition)
		api.GET("/positions/:id", h.GetPosition)
		api.PATCH("/positions/:id", h.EditPosition)
		api.POST("/positions/:id/close", h.ClosePosition)
		api.DELETE("/positions/:id", h.DeletePosition)

		api.GET("/view", h.GetView)
		api.PUT("/view", h.SetView)
		api.GET("/portfolio", h.Portfolio)
		api.GET("/export.csv", h.ExportCSV)
		api.POST("/prices/refresh", h.RefreshPrices)

		api.GET("/alerts", h.ListAlerts)
		api.POST("/alerts", h.AddAlert)
		api.GET("/alerts/:id", h.GetAlert)
		api.POST("/alerts/:id/toggle", h.ToggleAlert)
		api.DELETE("/alerts/:id", h.RemoveAlert)
		api.POST("/alerts/check", h.CheckAlerts)

		api.GET("/quotes/:symbol", h.Quote)
		api.GET("/quotes/:symbol/history", h.History)
		api.GET("/search", h.Search)
	}
}

func (h *Handler) Health(c *gin.Context) {
	status := gin.H{"status": "ok"}
	if err := h.book.LastError(); err != nil {
		status["last_storage_error"] = err.Error()
	}
	c.JSON(http.StatusOK, status)
}

// --- positions ---

func (h *Handler) ListPositions(c *gin.Context) {
	c.JSON(http.StatusOK, h.book.Positions())
}

func (h *Handler) AddPosition(c *gin.Context) {
	var in model.PositionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.book.Add(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPosition(c *gin.Context) {
	p, err := h.book.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) EditPosition(c *gin.Context) {
	var e model.PositionEdit
	if err := c.ShouldBindJSON(&e); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.book.Edit(c.Request.Context(), c.Param("id"), e)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type closeRequest struct {
	SellPrice float64 `json:"sell_price"`
}

func (h *Handler) ClosePosition(c *gin.Context) {
	var req closeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.book.Close(c.Request.Context(), c.Param("id"), req.SellPrice)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePosition(c *gin.Context) {
	if err := h.book.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- view & portfolio ---

type viewResponse struct {
	Query     dsvc.Query       `json:"query"`
	Positions []model.Position `json:"positions"`
}

func (h *Handler) GetView(c *gin.Context) {
	c.JSON(http.StatusOK, viewResponse{Query: h.book.Query(), Positions: h.book.Displayed()})
}

type viewRequest struct {
	Search string `json:"search"`
	Filter string `json:"filter"`
	Sort   string `json:"sort"`
}

func (h *Handler) SetView(c *gin.Context) {
	var req viewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f, err := dsvc.ParseFilter(req.Filter)
	if err != nil {
		writeError(c, err)
		return
	}
	k, err := dsvc.ParseSort(req.Sort)
	if err != nil {
		writeError(c, err)
		return
	}
	q := dsvc.Query{Search: req.Search, Filter: f, Sort: k}
	c.JSON(http.StatusOK, viewResponse{Query: q, Positions: h.book.SetQuery(q)})
}

type portfolioResponse struct {
	dsvc.PortfolioMetrics
	Currency string            `json:"currency"`
	Display  map[string]string `json:"display"`
}

func (h *Handler) Portfolio(c *gin.Context) {
	m := h.book.Portfolio()
	c.JSON(http.StatusOK, portfolioResponse{
		PortfolioMetrics: m,
		Currency:         h.currency,
		Display: map[string]string{
			"total_value":       dsvc.FormatCurrency(m.TotalValue, h.currency),
			"total_investment":  dsvc.FormatCurrency(m.TotalInvestment, h.currency),
			"total_pnl":         dsvc.FormatCurrency(m.TotalPnL, h.currency),
			"total_pnl_percent": dsvc.FormatPercent(m.TotalPnLPercent),
			"portfolio_risk":    dsvc.FormatCurrency(m.PortfolioRisk, h.currency),
		},
	})
}

func (h *Handler) ExportCSV(c *gin.Context) {
	name := "portfolio-" + time.Now().Format("2006-01-02") + ".csv"
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := h.book.ExportCSV(c.Writer); err != nil {
		log.Error().Err(err).Msg("csv export failed")
	}
}

func (h *Handler) RefreshPrices(c *gin.Context) {
	if h.prices == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "price refresh not configured"})
		return
	}
	n, err := h.prices.RefreshOnce(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// --- alerts ---

type alertView struct {
	model.PriceAlert
	State       model.AlertState `json:"state"`
	Description string           `json:"description"`
}

func toAlertView(a model.PriceAlert) alertView {
	return alertView{PriceAlert: a, State: a.State(), Description: a.Describe()}
}

func (h *Handler) ListAlerts(c *gin.Context) {
	list, err := h.alerts.Alerts(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]alertView, 0, len(list))
	for _, a := range list {
		out = append(out, toAlertView(a))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) AddAlert(c *gin.Context) {
	var in model.AlertInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := h.alerts.Add(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAlertView(a))
}

func (h *Handler) GetAlert(c *gin.Context) {
	a, err := h.alerts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAlertView(a))
}

func (h *Handler) ToggleAlert(c *gin.Context) {
	a, err := h.alerts.Toggle(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAlertView(a))
}

func (h *Handler) RemoveAlert(c *gin.Context) {
	if err := h.alerts.Remove(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CheckAlerts 立即执行一轮检查
func (h *Handler) CheckAlerts(c *gin.Context) {
	if err := h.alerts.Evaluate(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	h.ListAlerts(c)
}

// --- quotes ---

func (h *Handler) Quote(c *gin.Context) {
	q, err := h.quotes.Quote(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *Handler) History(c *gin.Context) {
	tf, err := model.ParseTimeframe(c.Query("timeframe"))
	if err != nil {
		writeError(c, err)
		return
	}
	bars, err := h.quotes.History(c.Request.Context(), c.Param("symbol"), tf)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": model.NormalizeSymbol(c.Param("symbol")), "timeframe": tf, "bars": bars})
}

func (h *Handler) Search(c *gin.Context) {
	matches, err := h.quotes.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, matches)
}

// writeError 把领域错误映射成 HTTP 状态码
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var se *model.StorageError
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrPositionNotFound), errors.Is(err, model.ErrAlertNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrAlreadyClosed):
		status = http.StatusConflict
	case errors.As(err, &se), errors.Is(err, monitor.ErrStopped):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
