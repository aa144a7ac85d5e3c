package mesh

import (
	"github.com/pion/webrtc/v4"

	"github.com/palfrey/tavern/internal/session"
)

// PeerLink is one mesh edge: the transport to a single remote participant
// plus its negotiation bookkeeping. Links are owned by the Manager and only
// ever touched on the owner loop.
type PeerLink struct {
	remote string
	t      Transport
	phase  session.LinkPhase

	// offerer is decided lazily: the first side whose transport reports
	// negotiation needed proceeds as offerer.
	offerer bool

	// remoteSet flips once a remote description has been applied; candidates
	// arriving before that are held here and flushed right after.
	remoteSet      bool
	heldCandidates []webrtc.ICECandidateInit

	// sinkAttached guarantees remote media reaches exactly one display sink.
	sinkAttached bool
}

// Phase returns the link's current lifecycle phase.
func (l *PeerLink) Phase() session.LinkPhase { return l.phase }

// Remote returns the remote participant id this link connects to.
func (l *PeerLink) Remote() string { return l.remote }
