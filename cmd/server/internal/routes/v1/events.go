package v1

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	servermiddleware "github.com/aixcyberchallenge/submission-relay/cmd/server/internal/middleware"
	"github.com/aixcyberchallenge/submission-relay/cmd/server/internal/response"
	"github.com/aixcyberchallenge/submission-relay/internal/logger"
)

const mimeEventStream = "text/event-stream"

// Streams the submission's progress events until the closed event.
//
// The channel has a single consumer: a second concurrent stream for the same
// submission splits the events between both clients.
func (h *Handler) SubmissionEvents(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "SubmissionEvents")
	defer span.End()

	team, err := servermiddleware.TeamFromContext(c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprintf("team: %s", err))
		return response.InternalServerError
	}
	span.SetAttributes(
		attribute.String("team", team.Name),
		attribute.String("submission.id", c.Param("submission_id")),
	)

	ch, ok := h.channelForTeam(c, team)
	if !ok {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "submission not found")
		return response.NotFoundError
	}

	l := logger.ForSubmission(ch.SubmissionID(), ch.Owner())

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, mimeEventStream)
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	sent := 0
	for {
		evt, err := ch.Receive(ctx)
		if err != nil {
			// client went away, the worker keeps going
			l.InfoContext(ctx, "event stream client disconnected", "sent", sent)
			span.AddEvent("client disconnected", trace.WithAttributes(attribute.Int("sent", sent)))
			span.RecordError(nil)
			span.SetStatus(codes.Ok, "client disconnected")
			return nil
		}

		frame, err := evt.MarshalSSE()
		if err != nil {
			l.ErrorContext(ctx, "failed to encode event", "kind", evt.Kind, "error", err)
			span.RecordError(err)
			continue
		}

		if _, err := res.Write(frame); err != nil {
			l.InfoContext(ctx, "failed to write event", "kind", evt.Kind, "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to write event")
			return nil
		}
		res.Flush()
		sent++

		if evt.Kind.Terminal() {
			h.registry.Remove(ch.SubmissionID())
			span.SetAttributes(attribute.Int("sent", sent))
			span.RecordError(nil)
			span.SetStatus(codes.Ok, "stream complete")
			return nil
		}
	}
}
