package error

import "errors"

var ErrTypeAssertMismatch = errors.New("type assertion mismatch")
