package api

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"QuoteHub/internal/domain/failure"
	models "QuoteHub/internal/domain/models"
	"QuoteHub/internal/service/breaker"
	"QuoteHub/internal/usecase"
	xhttp "QuoteHub/pkg/http"
	xlogger "QuoteHub/pkg/logger"
)

// MarketData is the part of the aggregation service exposed over HTTP.
type MarketData interface {
	Resolve(ctx context.Context, symbol string, fields []models.Field) (*models.Resolution, error)
	Invalidate(ctx context.Context, symbol string) error
	Search(ctx context.Context, query string) ([]*models.Resolution, error)
	Session(ctx context.Context) models.MarketSession
	SessionAt(ts time.Time) models.MarketSession
	Breakers() []breaker.Status
	Stats() usecase.ServiceStats
}

// MarketDataEchoHandler serves quotes, sessions and breaker health.
type MarketDataEchoHandler struct {
	logger *xlogger.Logger
	svc    MarketData
	loc    *time.Location
}

// NewMarketDataEchoHandler builds the handler. loc is used for timestamps
// given without a zone.
func NewMarketDataEchoHandler(logger *xlogger.Logger, svc MarketData, loc *time.Location) *MarketDataEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &MarketDataEchoHandler{logger: logger, svc: svc, loc: loc}
}

func (h *MarketDataEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/quotes/:symbol", h.Quote)
	g.DELETE("/quotes/:symbol/cache", h.Invalidate)
	g.GET("/market/session", h.Session)
	g.GET("/health/breakers", h.Breakers)
	g.GET("/health/stats", h.Stats)
	g.GET("/search", h.Search)
}

func (h *MarketDataEchoHandler) Quote(c echo.Context) error {
	req := &models.QuoteRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	fields, err := models.ParseFields(xhttp.QueryList(req.Fields))
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("fields", err.Error()))
	}

	res, err := h.svc.Resolve(c.Request().Context(), req.Symbol, fields)
	if err != nil {
		return h.fail(c, "quote", req.Symbol, err)
	}
	if res.Staleness == models.StalenessFresh {
		c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketDataEchoHandler) Invalidate(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.svc.Invalidate(c.Request().Context(), req.Symbol); err != nil {
		return h.fail(c, "invalidate", req.Symbol, err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *MarketDataEchoHandler) Session(c echo.Context) error {
	req := &models.SessionRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.At == "" {
		return xhttp.SuccessResponse(c, h.svc.Session(c.Request().Context()))
	}
	ts, ok := xhttp.ParseTimeIn(req.At, h.loc)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("at", "at must be RFC3339 or YYYY-MM-DD[ HH:MM]"))
	}
	return xhttp.SuccessResponse(c, h.svc.SessionAt(ts))
}

func (h *MarketDataEchoHandler) Breakers(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.svc.Breakers())
}

// Stats reports cache and per-stage pipeline counters.
func (h *MarketDataEchoHandler) Stats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.svc.Stats())
}

func (h *MarketDataEchoHandler) Search(c echo.Context) error {
	req := &models.SearchRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.svc.Search(c.Request().Context(), req.Query)
	if err != nil {
		return h.fail(c, "search", req.Query, err)
	}
	return xhttp.SuccessResponse(c, res)
}

const statusClientClosed = 499

// fail maps service errors onto HTTP statuses.
func (h *MarketDataEchoHandler) fail(c echo.Context, op, symbol string, err error) error {
	var ase *failure.AllSourcesExhaustedError
	switch {
	case errors.Is(err, usecase.ErrInvalidSymbol):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("symbol", err.Error()))
	case errors.Is(err, usecase.ErrSymbolNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no listing found for %s", symbol))
	case errors.As(err, &ase):
		h.logger.Warn(op+" unavailable", xlogger.String("symbol", symbol), xlogger.Error(err))
		appErr := xhttp.ServiceUnavailableError("ERR_SOURCES_EXHAUSTED", "all sources exhausted").
			WithParam("causes", len(ase.Causes)).
			WithError(err)
		if ase.Partial != nil {
			appErr = appErr.WithData(ase.Partial)
		}
		if d, ok := ase.RetryAfter(); ok {
			c.Response().Header().Set("Retry-After", retryAfter(d))
		}
		return xhttp.AppErrorResponse(c, appErr)
	case errors.Is(err, context.Canceled):
		return c.NoContent(statusClientClosed)
	default:
		h.logger.Error(op+" failed", xlogger.String("symbol", symbol), xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
}

func retryAfter(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
