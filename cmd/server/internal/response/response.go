package response

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aixcyberchallenge/submission-relay/internal/types"
)

var (
	InternalServerError = echo.NewHTTPError(
		http.StatusInternalServerError,
		types.StringError("something went wrong"),
	)
	NotFoundError         = echo.NewHTTPError(http.StatusNotFound, types.StringError("not found"))
	UnauthorizedError     = echo.NewHTTPError(http.StatusUnauthorized, types.StringError("Unauthorized"))
	ForbiddenError        = echo.NewHTTPError(http.StatusForbidden, types.StringError("Forbidden"))
	AlreadySubmittedError = echo.NewHTTPError(
		http.StatusConflict,
		types.StringError("this team has already submitted"),
	)
)
