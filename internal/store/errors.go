package store

import "github.com/rotisserie/eris"

// ErrNotFound is returned when a record or entity no longer exists, e.g.
// when it was deleted between batch selection and dispatch. The batch loop
// drops such records silently instead of counting them as errors.
var ErrNotFound = eris.New("store: not found")
