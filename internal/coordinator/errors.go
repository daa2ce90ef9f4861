// Package coordinator holds state shared across the control-plane
// components (the healing queue and the legacy chunk map) and the error
// kinds a handler can see, with their mapping onto HTTP status codes. The
// components themselves are wired together in cmd/coordinator.
package coordinator

import (
	"errors"
	"net/http"
)

// Sentinel error kinds, per the specification's error taxonomy.
var (
	ErrUnknownNode            = errors.New("unknown node")
	ErrNoNodesOnline          = errors.New("no nodes online")
	ErrFileNotFound           = errors.New("file not found")
	ErrKeyMissing             = errors.New("encryption key missing")
	ErrChunkUnavailable       = errors.New("chunk unavailable")
	ErrCorruptManifest        = errors.New("corrupt manifest")
	ErrAuthFailure            = errors.New("authentication failed")
	ErrStorageNodeUnreachable = errors.New("storage node unreachable")
	ErrUnhealable             = errors.New("chunk unhealable")
)

// StatusFor maps a (possibly wrapped) error kind to the HTTP status the
// API surface should return. Unmatched errors are treated as internal.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnknownNode):
		return http.StatusNotFound
	case errors.Is(err, ErrNoNodesOnline):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrKeyMissing):
		return http.StatusInternalServerError
	case errors.Is(err, ErrChunkUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
