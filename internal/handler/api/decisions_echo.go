package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"StaffPulse/internal/domain/models"
	"StaffPulse/internal/service/ratelimit"
	"StaffPulse/internal/usecase"
	xhttp "StaffPulse/pkg/http"
	xlogger "StaffPulse/pkg/logger"
	"StaffPulse/pkg/util"
)

const (
	historyLookback   = 24 * time.Hour
	aggregateLookback = 30 * 24 * time.Hour
)

// HealthCheck checks one dependency for GET /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// DecisionsHandler serves on-demand evaluation and the read-only decision views.
type DecisionsHandler struct {
	logger  *xlogger.Logger
	cycle   *usecase.DecisionCycle
	history *usecase.HistoryService
	limiter *ratelimit.Limiter
	checks  []HealthCheck
	now     func() time.Time
}

func NewDecisionsHandler(
	logger *xlogger.Logger,
	cycle *usecase.DecisionCycle,
	history *usecase.HistoryService,
	limiter *ratelimit.Limiter,
	checks ...HealthCheck,
) *DecisionsHandler {
	return &DecisionsHandler{
		logger:  logger,
		cycle:   cycle,
		history: history,
		limiter: limiter,
		checks:  checks,
		now:     time.Now,
	}
}

func (h *DecisionsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api/v1")
	g.POST("/decisions/evaluate", h.Evaluate)
	g.GET("/units/:unit/state", h.UnitState)
	g.GET("/units/:unit/decisions", h.Decisions)
	g.GET("/units/:unit/aggregates", h.Aggregates)
}

func (h *DecisionsHandler) Evaluate(c echo.Context) error {
	req := &models.EvaluateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.limiter != nil && !h.limiter.Allow(req.UnitID) {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_RATE_LIMITED", "unit_id",
			"too many evaluations for this unit", http.StatusTooManyRequests))
	}

	res, err := h.cycle.Evaluate(c.Request().Context(), req.Snapshot(h.now().UTC()))
	if err != nil {
		return h.fail(c, "evaluate", err)
	}

	out := models.EvaluateResponse{
		RecordID:    res.RecordID,
		Record:      res.Record,
		Unaudited:   res.Unaudited,
		AuditQueued: res.AuditQueued,
	}
	if res.AuditError != nil {
		out.AuditError = res.AuditError.Error()
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *DecisionsHandler) UnitState(c echo.Context) error {
	req := &models.UnitStateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	st, err := h.cycle.State(c.Request().Context(), req.Unit)
	if err != nil {
		return h.fail(c, "unit state", err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *DecisionsHandler) Decisions(c echo.Context) error {
	req := &models.DecisionHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, ok := util.ResolveRange(req.From, req.To, h.now(), historyLookback)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from", "from/to must be RFC3339, a date or unix seconds"))
	}

	rows, err := h.history.List(c.Request().Context(), req.Unit, from, to, req.Limit)
	if err != nil {
		return h.fail(c, "decision history", err)
	}
	if rows == nil {
		rows = []models.StoredDecision{}
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *DecisionsHandler) Aggregates(c echo.Context) error {
	req := &models.DecisionAggregateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, ok := util.ResolveRange(req.From, req.To, h.now(), aggregateLookback)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from", "from/to must be RFC3339, a date or unix seconds"))
	}

	rows, err := h.history.Aggregate(c.Request().Context(), req.Unit, models.Granularity(req.Granularity), from, to)
	if err != nil {
		return h.fail(c, "decision aggregates", err)
	}
	if rows == nil {
		rows = []models.DecisionAggregate{}
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *DecisionsHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	healthy := true
	for _, chk := range h.checks {
		if err := chk.Check(ctx); err != nil {
			healthy = false
			status[chk.Name] = err.Error()
			continue
		}
		status[chk.Name] = "ok"
	}
	if !healthy {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, status)
	}
	return xhttp.SuccessResponse(c, status)
}

// fail maps domain errors onto the AppError envelope.
func (h *DecisionsHandler) fail(c echo.Context, op string, err error) error {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(verr.Field, verr.Error()))
	case errors.Is(err, models.ErrStorage):
		h.logger.Error(op+" failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("decision storage unavailable").WithError(err))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		h.logger.Warn(op+" timed out", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("request timed out").WithError(err))
	default:
		h.logger.Error(op+" failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("internal error").WithError(err))
	}
}
