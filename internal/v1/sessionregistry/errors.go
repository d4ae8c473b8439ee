package sessionregistry

import "errors"

// ErrSessionNotFound is returned when a lookup targets a connection id with
// no registered session.
var ErrSessionNotFound = errors.New("sessionregistry: session not found")
