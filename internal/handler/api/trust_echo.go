package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"TrustBoard/internal/domain/models"
	"TrustBoard/internal/repository"
	"TrustBoard/internal/usecase"
	xhttp "TrustBoard/pkg/http"
	xlogger "TrustBoard/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RunReports is the read side of the run report store.
type RunReports interface {
	LatestReport(ctx context.Context) (*models.RunReport, error)
	Report(ctx context.Context, runID string) (*models.RunReport, error)
}

// HealthChecker is anything /healthz should probe.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// TrustEchoHandler serves the read API a dashboard consumes.
type TrustEchoHandler struct {
	logger  *xlogger.Logger
	candles *usecase.CandlesUseCase
	quality *usecase.QualityUseCase
	reports RunReports
	checks  map[string]HealthChecker
}

func NewTrustEchoHandler(
	logger *xlogger.Logger,
	candles *usecase.CandlesUseCase,
	quality *usecase.QualityUseCase,
	reports RunReports,
	checks map[string]HealthChecker,
) *TrustEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &TrustEchoHandler{logger: logger, candles: candles, quality: quality, reports: reports, checks: checks}
}

func (h *TrustEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/candles", h.Candles)
	g.GET("/quality", h.Quality)
	g.GET("/runs/latest", h.LatestRun)
	g.GET("/runs/:id", h.Run)
}

func (h *TrustEchoHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	from, ok := parseOptionalTime(req.From)
	if !ok {
		return xhttp.AppErrorResponse(c, badTime("from", req.From))
	}
	to, ok := parseOptionalTime(req.To)
	if !ok {
		return xhttp.AppErrorResponse(c, badTime("to", req.To))
	}

	res, err := h.candles.GetCandles(c.Request().Context(), usecase.GetCandlesParams{
		Symbol: req.Symbol,
		Source: models.Source(req.Source),
		From:   from,
		To:     to,
		Limit:  req.Limit,
	})
	if err != nil {
		return h.fail(c, "candles", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *TrustEchoHandler) Quality(c echo.Context) error {
	req := &models.QualityRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.quality.Quality(c.Request().Context(), req.Symbol, req.Days)
	if err != nil {
		return h.fail(c, "quality", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *TrustEchoHandler) LatestRun(c echo.Context) error {
	rep, err := h.reports.LatestReport(c.Request().Context())
	if err != nil {
		return h.fail(c, "runs.latest", err)
	}
	return xhttp.SuccessResponse(c, rep)
}

func (h *TrustEchoHandler) Run(c echo.Context) error {
	rep, err := h.reports.Report(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "runs.get", err)
	}
	return xhttp.SuccessResponse(c, rep)
}

// Health probes every registered dependency with a short deadline.
func (h *TrustEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := make(map[string]string, len(h.checks))
	healthy := true
	for name, chk := range h.checks {
		if err := chk.Health(ctx); err != nil {
			h.logger.Warn("health check failed", xlogger.String("dependency", name), xlogger.Error(err))
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, status)
	}
	return xhttp.SuccessResponse(c, status)
}

func (h *TrustEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	switch {
	case errors.Is(err, usecase.ErrInvalidQuery):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithError(err))
	case errors.Is(err, repository.ErrNoReport):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no run recorded"))
	}
	h.logger.Error(endpoint+" usecase error", xlogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}

func badTime(field, value string) *xhttp.AppError {
	return xhttp.NewAppError("ERR_TIME", field, field+" must be RFC3339, a date or unix seconds", http.StatusBadRequest).
		WithParam("value", value)
}

func parseOptionalTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, true
	}
	return xhttp.ParseTime(s)
}
