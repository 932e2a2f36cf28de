package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	models "FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	domsvc "FinCast/internal/domain/service"
	"FinCast/internal/service/ratelimit"
	"FinCast/internal/services/forecast"
	"FinCast/internal/usecase"
	xhttp "FinCast/pkg/http"
	xlogger "FinCast/pkg/logger"
	xutil "FinCast/pkg/util"
)

// RateLimit configures the per-client token bucket on forecast routes.
type RateLimit struct {
	Capacity     float64
	RefillPerSec float64
}

// StepLimits bounds the steps query parameter. Zero fields fall back to 5 and 30.
type StepLimits struct {
	Default int
	Max     int
}

// ForecastEchoHandler serves forecasts, features, candles and model management over Echo.
type ForecastEchoHandler struct {
	logger     *xlogger.Logger
	forecasts  *usecase.ForecastUseCase
	candles    *usecase.CandlesUseCase
	trainer    *usecase.TrainUseCase
	dispatcher usecase.TrainDispatcher
	limiter    *ratelimit.Limiter
	rl         RateLimit
	steps      StepLimits
}

func NewForecastEchoHandler(
	logger *xlogger.Logger,
	forecasts *usecase.ForecastUseCase,
	candles *usecase.CandlesUseCase,
	trainer *usecase.TrainUseCase,
	dispatcher usecase.TrainDispatcher,
	rl RateLimit,
	steps StepLimits,
) *ForecastEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if steps.Max <= 0 {
		steps.Max = 30
	}
	if steps.Default <= 0 || steps.Default > steps.Max {
		steps.Default = min(5, steps.Max)
	}
	return &ForecastEchoHandler{
		logger:     logger,
		forecasts:  forecasts,
		candles:    candles,
		trainer:    trainer,
		dispatcher: dispatcher,
		limiter:    ratelimit.New(),
		rl:         rl,
		steps:      steps,
	}
}

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	limited := g.Group("")
	if h.rl.Capacity > 0 {
		limited.Use(h.limiter.Middleware(h.rl.Capacity, h.rl.RefillPerSec))
	}
	limited.GET("/forecast", h.Forecast)
	limited.GET("/forecasts", h.Forecasts)
	g.GET("/features", h.Features)
	g.GET("/candles", h.Candles)
	g.GET("/models", h.Models)
	g.POST("/models/train", h.Train)
}

// SweepLimiter drops idle rate-limit buckets until ctx ends.
func (h *ForecastEchoHandler) SweepLimiter(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.limiter.Sweep(every)
		}
	}
}

func (h *ForecastEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *ForecastEchoHandler) Forecast(c echo.Context) error {
	req := &models.ForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if verr := h.resolveSteps(&req.Steps); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.forecasts.Forecast(c.Request().Context(), usecase.ForecastParams{
		Symbol:    strings.ToUpper(req.Symbol),
		Timeframe: domrepo.Timeframe(req.TF),
		Steps:     req.Steps,
		Mode:      forecast.Mode(req.Mode),
		Fresh:     req.Fresh,
	})
	if err != nil {
		h.logger.Error("forecast usecase error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, MapError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) Forecasts(c echo.Context) error {
	req := &models.BatchForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if verr := h.resolveSteps(&req.Steps); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbols := xutil.SplitSymbols(req.Symbols)
	if len(symbols) == 0 {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("symbols required"))
	}

	res, err := h.forecasts.ForecastMany(c.Request().Context(), usecase.ForecastManyParams{
		Symbols:   symbols,
		Timeframe: domrepo.Timeframe(req.TF),
		Steps:     req.Steps,
		Mode:      forecast.Mode(req.Mode),
	})
	if err != nil {
		h.logger.Error("batch forecast usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, MapError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

// resolveSteps fills an unset steps value and rejects one above the configured maximum.
func (h *ForecastEchoHandler) resolveSteps(steps *int) []xhttp.ValidationError {
	if *steps == 0 {
		*steps = h.steps.Default
		return nil
	}
	if *steps > h.steps.Max {
		return []xhttp.ValidationError{{
			Code:    "ERR_LTE",
			Field:   "steps",
			Message: fmt.Sprintf("steps must be less than or equal to %d", h.steps.Max),
			Params:  map[string]interface{}{"max": h.steps.Max},
		}}
	}
	return nil
}

func (h *ForecastEchoHandler) Features(c echo.Context) error {
	req := &models.FeaturesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.forecasts.Features(c.Request().Context(), strings.ToUpper(req.Symbol), domrepo.Timeframe(req.TF))
	if err != nil {
		h.logger.Error("features usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, MapError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p := usecase.GetCandlesParams{Symbol: strings.ToUpper(req.Symbol), Timeframe: domrepo.Timeframe(req.TF), Limit: req.Limit}
	if req.From != "" || req.To != "" {
		to := xutil.ParseTimeDefault(req.To, time.Now().UTC())
		from, ok := xutil.ParseTime(req.From)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from must be RFC3339 or unix seconds"))
		}
		p.From, p.To = from, to
	}

	res, err := h.candles.GetCandles(c.Request().Context(), p)
	if err != nil {
		h.logger.Error("candles usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastEchoHandler) Models(c echo.Context) error {
	req := &models.ModelsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	metas, err := h.trainer.Models(c.Request().Context(), domrepo.Timeframe(req.TF))
	if err != nil {
		h.logger.Error("models usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, MapError(err))
	}
	return xhttp.ListResponse(c, metas, int64(len(metas)))
}

func (h *ForecastEchoHandler) Train(c echo.Context) error {
	req := &models.TrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.dispatcher == nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("ERR_TRAINING_DISABLED", "training is not enabled"))
	}
	id, err := h.dispatcher.Dispatch(c.Request().Context(), usecase.TrainJobPayload{
		Timeframe: req.TF,
		Symbols:   xutil.NormalizeSymbols(req.Symbols),
		Families:  req.Families,
	})
	if err != nil {
		h.logger.Error("train dispatch error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("ERR_QUEUE", "could not schedule training").WithError(err))
	}
	return xhttp.DataResponse(c, http.StatusAccepted, map[string]string{"job_id": id, "timeframe": req.TF})
}

// MapError converts domain failures into HTTP application errors.
func MapError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, domsvc.ErrInsufficientHistory):
		return xhttp.UnprocessableError("ERR_INSUFFICIENT_HISTORY", err.Error()).WithError(err)
	case errors.Is(err, domsvc.ErrInvalidSteps):
		return xhttp.UnprocessableError("ERR_INVALID_STEPS", err.Error()).WithError(err)
	case errors.Is(err, domsvc.ErrDirectUnsupported):
		return xhttp.UnprocessableError("ERR_DIRECT_UNSUPPORTED", err.Error()).WithError(err)
	case errors.Is(err, domsvc.ErrModelNotFound):
		return xhttp.NewAppError("ERR_MODEL_NOT_FOUND", "", err.Error(), http.StatusNotFound).WithError(err)
	case errors.Is(err, domsvc.ErrSchemaMismatch):
		return xhttp.NewAppError("ERR_SCHEMA_MISMATCH", "", "model and feature schema disagree", http.StatusInternalServerError).WithError(err)
	case errors.Is(err, domsvc.ErrModelInference):
		return xhttp.NewAppError("ERR_MODEL_INFERENCE", "", "model inference failed", http.StatusInternalServerError).WithError(err)
	case errors.Is(err, domsvc.ErrEmptyEnsemble), errors.Is(err, domsvc.ErrInvalidWeights):
		return xhttp.NewAppError("ERR_ENSEMBLE", "", "ensemble is misconfigured", http.StatusInternalServerError).WithError(err)
	case errors.Is(err, usecase.ErrTrainingInProgress):
		return xhttp.NewAppError("ERR_TRAINING_IN_PROGRESS", "", err.Error(), http.StatusConflict).WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.ServiceUnavailableError("ERR_TIMEOUT", "forecast timed out").WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
