// Package media owns the local capture handle and the remote track sinks.
// Capture is acquired at most once per application lifetime and shared
// read-only by every outbound peer transport.
package media

import "errors"

// ErrUnavailable means this platform has no camera capture path. The client
// stays usable as an observer; only outbound media is missing.
var ErrUnavailable = errors.New("local media capture unavailable on this platform")
