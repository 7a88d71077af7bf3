package types

// Milliseconds since the unix epoch
type UnixMilli int64

const (
	ExitNormal  int = 0
	ExitErrored int = 1
	ExitUsage   int = 2
)
