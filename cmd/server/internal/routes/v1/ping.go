package v1

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	servermiddleware "github.com/aixcyberchallenge/submission-relay/cmd/server/internal/middleware"
	"github.com/aixcyberchallenge/submission-relay/cmd/server/internal/response"
	"github.com/aixcyberchallenge/submission-relay/internal/types"
)

func (h *Handler) Ping(c echo.Context) error {
	_, span := tracer.Start(c.Request().Context(), "Ping")
	defer span.End()

	team, err := servermiddleware.TeamFromContext(c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprintf("team: %s", err))
		return response.InternalServerError
	}

	span.SetAttributes(attribute.String("team", team.Name))

	span.AddEvent("received ping")

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, types.PingResponse{Status: "ready"})
}
