package roster

import "errors"

// Sentinel kinds for projection errors.
var (
	ErrNotLoaded = errors.New("no snapshot loaded for date")
)
