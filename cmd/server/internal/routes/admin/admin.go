package admin

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	servermiddleware "github.com/aixcyberchallenge/submission-relay/cmd/server/internal/middleware"
	"github.com/aixcyberchallenge/submission-relay/cmd/server/internal/response"
	"github.com/aixcyberchallenge/submission-relay/internal/audit"
	"github.com/aixcyberchallenge/submission-relay/internal/config"
	"github.com/aixcyberchallenge/submission-relay/internal/ledger"
	"github.com/aixcyberchallenge/submission-relay/internal/logger"
	"github.com/aixcyberchallenge/submission-relay/internal/types"
)

const name = "github.com/aixcyberchallenge/submission-relay/cmd/server/internal/routes/admin"

var tracer = otel.Tracer(name)

type Handler struct {
	config *config.Config
	ledger ledger.Ledger
}

func NewHandler(cfg *config.Config, led ledger.Ledger) *Handler {
	return &Handler{config: cfg, ledger: led}
}

func (h *Handler) AddRoutes(e *echo.Echo, middlewareHandler *servermiddleware.Handler) {
	adminGroup := e.Group(
		"/admin",
		middleware.BasicAuth(middlewareHandler.BasicAuthValidator),
		servermiddleware.HasPermissions(config.TeamPermissions{Admin: true}),
	)

	adminGroup.GET("/lock/", h.ListLocks)
	adminGroup.POST("/reset/:team/", h.ResetLock)
}

// Lock state of every configured team plus any other team the ledger knows about, sorted by name
func (h *Handler) ListLocks(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "ListLocks")
	defer span.End()

	snapshot, err := h.ledger.Snapshot(ctx)
	if err != nil {
		logger.Logger.ErrorContext(ctx, "failed to read ledger", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read ledger")
		return response.InternalServerError
	}

	locks := ledger.Statuses(snapshot, h.config.Teams)

	span.SetAttributes(attribute.Int("teams", len(locks)))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, locks)
}

func (h *Handler) ResetLock(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "ResetLock")
	defer span.End()

	actor, err := servermiddleware.TeamFromContext(c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprintf("team: %s", err))
		return response.InternalServerError
	}

	teamName := c.Param("team")
	span.SetAttributes(
		attribute.String("actor", actor.Name),
		attribute.String("team", teamName),
	)

	if h.config.Team(teamName) == nil {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "team not found")
		return response.NotFoundError
	}

	if err := h.ledger.Reset(ctx, teamName); err != nil {
		logger.Logger.ErrorContext(ctx, "failed to reset lock", "team", teamName, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to reset lock")
		return response.InternalServerError
	}

	audit.LogLockReset(audit.Context{Team: teamName}, actor.Name)
	logger.Logger.InfoContext(ctx, "reset submission lock", "team", teamName, "actor", actor.Name)

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "reset lock")
	return c.JSON(http.StatusOK, types.LockStatus{Team: teamName, Submitted: false})
}
