package middleware

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aixcyberchallenge/submission-relay/cmd/server/internal/response"
	"github.com/aixcyberchallenge/submission-relay/internal/config"
	"github.com/aixcyberchallenge/submission-relay/internal/logger"
)

// Checks that all `needed` permissions are present on `has`
func hasPermission(
	ctx context.Context,
	needed *config.TeamPermissions,
	has *config.TeamPermissions,
	l *slog.Logger,
) bool {
	ctx, span := tracer.Start(ctx, "hasPermission")
	defer span.End()

	l.DebugContext(ctx, "comparing permissions", "needed", *needed, "has", *has)

	// reflection so a new permission field is never silently ignored
	valNeeded := reflect.Indirect(reflect.ValueOf(needed))
	valHas := reflect.Indirect(reflect.ValueOf(has))

	for i := range valNeeded.NumField() {
		fieldNeeded := valNeeded.Field(i)
		fieldHas := valHas.Field(i)

		if fieldNeeded.Kind() != reflect.Bool || fieldHas.Kind() != reflect.Bool {
			l.WarnContext(ctx, "non boolean fields on permissions skipping")
			continue
		}

		if fieldNeeded.Bool() && !fieldHas.Bool() {
			l.DebugContext(ctx, "missing permission", "permission", valNeeded.Type().Field(i).Name)
			span.RecordError(nil)
			span.SetStatus(codes.Ok, "missing permission")
			return false
		}
	}

	l.DebugContext(ctx, "granting access")
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "granting access")
	return true
}

// The authenticated team must hold every permission set to true on `permissions`
func HasPermissions(permissions config.TeamPermissions) echo.MiddlewareFunc {
	l := logger.Logger.With("permissions", permissions)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, span := tracer.Start(c.Request().Context(), "HasPermissions")
			defer span.End()

			team, err := TeamFromContext(c)
			if err != nil {
				l.WarnContext(ctx, "failed to get team")
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to get team")
				return response.UnauthorizedError
			}
			span.SetAttributes(attribute.String("team", team.Name))

			if !hasPermission(ctx, &permissions, &team.Permissions, l.With("team", team.Name)) {
				span.AddEvent("forbidden", trace.WithAttributes(attribute.String("team", team.Name)))
				span.RecordError(nil)
				span.SetStatus(codes.Ok, "forbidden")
				return response.ForbiddenError
			}

			span.RecordError(nil)
			span.SetStatus(codes.Ok, "checked permissions")
			return next(c)
		}
	}
}
