package exiterr

import (
	"errors"
	"fmt"

	"github.com/aixcyberchallenge/submission-relay/internal/types"
)

// Carries an exit code along with an error so the CLI can exit correctly
type ExitError struct {
	Err  error
	Code int
}

func (e ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}

	return fmt.Sprintf("exit %d: %s", e.Code, e.Err.Error())
}

func (e ExitError) Unwrap() error {
	return e.Err
}

// Wrap an error with an exit code
func Wrap(code int, err error) error {
	return ExitError{Code: code, Err: err}
}

// Usage errors exit with ExitUsage
func Usage(err error) error {
	return Wrap(types.ExitUsage, err)
}

// Exit code for err: ExitNormal for nil, the carried code for an ExitError and ExitErrored otherwise
func Code(err error) int {
	if err == nil {
		return types.ExitNormal
	}

	var ee ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}

	return types.ExitErrored
}
