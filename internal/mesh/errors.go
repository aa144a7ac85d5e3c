package mesh

import (
	"errors"
	"fmt"
)

var (
	ErrGlare            = errors.New("simultaneous offers")
	ErrUnexpectedSignal = errors.New("unexpected signal")
	ErrLinkUnavailable  = errors.New("peer link unavailable")
)

// LinkError ties a negotiation failure to the operation and remote
// participant it happened on. Link errors are logged and absorbed; the
// transport times out naturally and the edge self-heals on the next
// membership-driven reconciliation.
type LinkError struct {
	Op      string
	Peer    string
	Err     error
	Details string
}

func (e *LinkError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s %s: %v (%s)", e.Op, e.Peer, e.Err, e.Details)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

func newLinkError(op, peer string, err error) *LinkError {
	return &LinkError{Op: op, Peer: peer, Err: err}
}
