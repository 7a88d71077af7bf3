package v1

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"

	servermiddleware "github.com/aixcyberchallenge/submission-relay/cmd/server/internal/middleware"
	"github.com/aixcyberchallenge/submission-relay/cmd/server/internal/ratelimit"
	"github.com/aixcyberchallenge/submission-relay/internal/config"
	"github.com/aixcyberchallenge/submission-relay/internal/extract"
	"github.com/aixcyberchallenge/submission-relay/internal/ledger"
	"github.com/aixcyberchallenge/submission-relay/internal/logger"
	"github.com/aixcyberchallenge/submission-relay/internal/progress"
	"github.com/aixcyberchallenge/submission-relay/internal/relay"
	"github.com/aixcyberchallenge/submission-relay/internal/types"
	"github.com/aixcyberchallenge/submission-relay/internal/upload"
)

const name = "github.com/aixcyberchallenge/submission-relay/cmd/server/internal/routes/v1"

var tracer = otel.Tracer(name)

// Starts the upload worker for an accepted submission without blocking
type Launcher interface {
	Launch(sub types.Submission, ch *progress.Channel)
	Go(fn func(ctx context.Context))
}

// Ensure Supervisor implements Launcher interface.
var _ Launcher = (*relay.Supervisor)(nil)

type Handler struct {
	config   *config.Config
	fs       afero.Fs
	unpacker *extract.Unpacker
	registry *progress.Registry
	ledger   ledger.Ledger
	launcher Launcher
	// If nil raw bundles are not archived
	archiver upload.Uploader
}

func NewRedisLimiter(
	redisHost string,
	limiterKey string,
	perMinute int64,
	failOpen bool,
	onlyMethod *string,
) middleware.RateLimiterConfig {
	l := logger.Logger

	rdb := ledger.NewRedisClient(redisHost)
	l.Debug("Setting up rate limiter with Redis", "redis", rdb.Options().Addr)

	store := ratelimit.NewRedisLimitStore(ratelimit.RedisLimiterConfig{
		PerMinute:   perMinute,
		RedisClient: rdb,
		LimiterKey:  limiterKey,
		FailOpen:    failOpen,
	})

	skipper := middleware.DefaultSkipper
	if onlyMethod != nil {
		skipper = func(c echo.Context) bool {
			return c.Request().Method != *onlyMethod
		}
	}

	return middleware.RateLimiterConfig{
		Skipper: skipper,
		Store:   store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			team, err := servermiddleware.TeamFromContext(c)
			if err != nil {
				return "", ratelimit.ErrNoIdentifier
			}
			return team.Name, nil
		},
		ErrorHandler: func(context echo.Context, _ error) error {
			return context.JSON(http.StatusForbidden, nil)
		},
		DenyHandler: func(context echo.Context, _ string, _ error) error {
			return context.JSON(http.StatusTooManyRequests, nil)
		},
	}
}

func NewHandler(
	cfg *config.Config,
	fs afero.Fs,
	unpacker *extract.Unpacker,
	registry *progress.Registry,
	led ledger.Ledger,
	launcher Launcher,
	archiver upload.Uploader,
) *Handler {
	return &Handler{
		config:   cfg,
		fs:       fs,
		unpacker: unpacker,
		registry: registry,
		ledger:   led,
		launcher: launcher,
		archiver: archiver,
	}
}

func (h *Handler) AddRoutes(e *echo.Echo, middlewareHandler *servermiddleware.Handler) {
	l := logger.Logger

	v1Group := e.Group("/v1", middleware.BasicAuth(middlewareHandler.BasicAuthValidator))

	v1Group.GET("/ping/", h.Ping)

	submissionGroup := v1Group.Group("/submission")

	if h.config.RateLimit != nil && h.config.RateLimit.SubmitPerMinute > 0 && h.config.Redis != nil {
		post := http.MethodPost

		submissionGroup.Use(
			middleware.RateLimiterWithConfig(
				NewRedisLimiter(
					h.config.Redis.Host,
					"submit",
					h.config.RateLimit.SubmitPerMinute,
					h.config.RateLimit.FailOpen,
					&post,
				),
			),
		)
	} else {
		l.Warn("not configured to have a submit rate limit")
	}

	submissionGroup.POST(
		"/",
		h.Submit,
		servermiddleware.HasPermissions(config.TeamPermissions{Submit: true}),
		middleware.BodyLimit(h.config.MaxUploadSize),
	)
	submissionGroup.GET("/:submission_id/", h.SubmissionStatus)
	submissionGroup.GET("/:submission_id/events/", h.SubmissionEvents)
}

// Looks up the progress channel named by the submission_id param.
// Teams only see their own submissions, admins see all of them.
func (h *Handler) channelForTeam(c echo.Context, team *config.Team) (*progress.Channel, bool) {
	ch, ok := h.registry.Lookup(c.Param("submission_id"))
	if !ok {
		return nil, false
	}

	if ch.Owner() != team.Name && !team.Permissions.Admin {
		return nil, false
	}

	return ch, true
}
