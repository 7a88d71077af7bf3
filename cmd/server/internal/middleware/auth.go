package middleware

import (
	"context"
	"os"

	"github.com/alexedwards/argon2id"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	srverr "github.com/aixcyberchallenge/submission-relay/cmd/server/internal/error"
	"github.com/aixcyberchallenge/submission-relay/cmd/server/internal/response"
	"github.com/aixcyberchallenge/submission-relay/internal/config"
	"github.com/aixcyberchallenge/submission-relay/internal/logger"
)

// Context key the authenticated *config.Team is stored under
const TeamKey = "team"

// Used when doing a fake compare in the error case of BasicAuthValidator
var defaultHashForError string

const name string = "github.com/aixcyberchallenge/submission-relay/server/middleware"

var tracer = otel.Tracer(name)

// Generate a hash
func init() {
	var err error

	defaultHashForError, err = argon2id.CreateHash(
		"Jx0bvXo2M6pUq0l9Sx4wR8m1zNn5Kd7cYtE3hVa+FgQ=",
		argon2id.DefaultParams,
	)
	if err != nil {
		logger.Logger.Error("error creating default hash", "error", err)
		os.Exit(1)
	}
}

// Does a fake hash and compare for a hard coded PIN. Used when BasicAuthValidator sees an unknown team.
func fakePasswordHash(ctx context.Context) {
	_, span := tracer.Start(ctx, "fakePasswordHash")
	defer span.End()

	_, err := argon2id.ComparePasswordAndHash("i am a very real pin", defaultHashForError)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to compare fake pin with default hash for error")
		return
	}

	span.AddEvent("compared fake pin and default hash for error")
}

type Handler struct {
	teams map[string]*config.Team
}

func NewHandler(teams []config.Team) *Handler {
	h := &Handler{teams: make(map[string]*config.Team, len(teams))}
	for i := range teams {
		h.teams[teams[i].Name] = &teams[i]
	}
	return h
}

// Validates basic auth where the username is the team name and the password its PIN
func (h *Handler) BasicAuthValidator(teamName, pin string, c echo.Context) (bool, error) {
	ctx, span := tracer.Start(c.Request().Context(), "BasicAuthValidator")
	defer span.End()

	span.SetAttributes(attribute.String("team", teamName))

	team, ok := h.teams[teamName]
	if !ok {
		// Waste time for unknown teams
		fakePasswordHash(ctx)
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "team not found")
		return false, nil
	}

	span.AddEvent("checking hash")
	match, err := argon2id.ComparePasswordAndHash(pin, team.PINHash)
	if err != nil {
		logger.Logger.ErrorContext(ctx, "invalid pin hash in config", "team", teamName, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to check pin")
		return false, response.InternalServerError
	}

	if !match {
		span.AddEvent("failed login attempt")
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "failed login attempt")
		return false, nil
	}

	span.AddEvent("successful login attempt")
	c.Set(TeamKey, team)

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "authenticated")
	return true, nil
}

// Authenticated team for the request
func TeamFromContext(c echo.Context) (*config.Team, error) {
	team, ok := c.Get(TeamKey).(*config.Team)
	if !ok || team == nil {
		return nil, srverr.ErrTypeAssertMismatch
	}
	return team, nil
}
