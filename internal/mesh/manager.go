// Package mesh maintains the per-remote-participant connection state
// machine. For every other member of the local participant's sub-room the
// manager keeps exactly one PeerLink, drives its offer/answer/ICE exchange,
// and tears it down when membership no longer implies the edge.
package mesh

import (
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/palfrey/tavern/internal/protocol"
	"github.com/palfrey/tavern/internal/session"
)

// Transport is the negotiation surface of one peer connection. The rtc
// package provides the pion-backed implementation; tests substitute fakes.
type Transport interface {
	AddLocalTracks() error
	CreateOffer() (*webrtc.SessionDescription, error)
	CreateAnswer() (*webrtc.SessionDescription, error)
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(fn func(webrtc.ICECandidateInit))
	OnNegotiationNeeded(fn func())
	OnTrack(fn func(track *webrtc.TrackRemote))
	OnConnected(fn func())
	Close() error
}

// TransportFactory builds the transport for a new link.
type TransportFactory func(remoteID string) (Transport, error)

// SignalSender delivers an encoded signaling body to one remote participant
// via the control channel.
type SignalSender func(toParticipant, content string)

// TrackSink receives each remote track exactly once per remote id.
type TrackSink func(remoteID string, track *webrtc.TrackRemote)

// Manager owns every PeerLink. It is confined to the client event loop:
// transport callbacks re-enter through the run hook, so all transitions are
// processed one at a time to completion.
type Manager struct {
	log     *slog.Logger
	selfID  string
	state   *session.State
	factory TransportFactory
	send    SignalSender
	sink    TrackSink
	run     func(fn func())

	links map[string]*PeerLink
	// held buffers signal envelopes for links that do not exist yet; ICE
	// candidates routinely arrive before the local side has built its
	// connection object. Flushed and cleared exactly once at link creation.
	held map[string][]string
}

// NewManager creates a manager. run marshals transport callbacks onto the
// owning loop; passing nil runs them inline (tests, single-threaded use).
func NewManager(log *slog.Logger, selfID string, state *session.State,
	factory TransportFactory, send SignalSender, sink TrackSink, run func(fn func())) *Manager {
	if run == nil {
		run = func(fn func()) { fn() }
	}
	return &Manager{
		log:     log,
		selfID:  selfID,
		state:   state,
		factory: factory,
		send:    send,
		sink:    sink,
		run:     run,
		links:   make(map[string]*PeerLink),
		held:    make(map[string][]string),
	}
}

// Reconcile makes the link set equal to members minus the local participant.
// It is idempotent and cheap, so callers invoke it after every membership
// change without tracking deltas.
func (m *Manager) Reconcile(members []string) {
	want := make(map[string]bool, len(members))
	for _, id := range members {
		if id == m.selfID {
			continue
		}
		want[id] = true
		m.ensure(id)
	}
	for id := range m.links {
		if !want[id] {
			m.Close(id)
		}
	}
	for id := range m.held {
		if !want[id] {
			delete(m.held, id)
		}
	}
}

// Close tears down the link to one remote participant. Closing a closed or
// nonexistent link is a no-op, never an error.
func (m *Manager) Close(remoteID string) {
	link, ok := m.links[remoteID]
	if !ok {
		delete(m.held, remoteID)
		return
	}
	delete(m.links, remoteID)
	delete(m.held, remoteID)
	link.phase = session.LinkClosed
	if err := link.t.Close(); err != nil {
		m.log.Debug("transport close", "remote", remoteID, "err", err)
	}
	m.state.RemoveLink(remoteID)
	m.log.Info("peer link closed", "remote", remoteID)
}

// CloseAll tears down every link, used on shutdown and when leaving a
// sub-room before the server's membership update lands.
func (m *Manager) CloseAll() {
	for id := range m.links {
		m.Close(id)
	}
}

// HandleSignal applies one inbound signaling envelope. Envelopes for links
// that do not exist yet are buffered, not dropped, and replayed in arrival
// order when the link is created.
func (m *Manager) HandleSignal(fromParticipant, content string) {
	link, ok := m.links[fromParticipant]
	if !ok {
		m.held[fromParticipant] = append(m.held[fromParticipant], content)
		m.log.Debug("buffering signal for absent link",
			"remote", fromParticipant, "held", len(m.held[fromParticipant]))
		return
	}
	m.applySignal(link, content)
}

// Links returns the remote ids with live links, for tests and diagnostics.
func (m *Manager) Links() []string {
	ids := make([]string, 0, len(m.links))
	for id := range m.links {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) ensure(remoteID string) {
	if _, ok := m.links[remoteID]; ok {
		return
	}

	t, err := m.factory(remoteID)
	if err != nil {
		m.log.Error("peer link create failed", "remote", remoteID, "err", err)
		return
	}

	link := &PeerLink{remote: remoteID, t: t, phase: session.LinkConnecting}
	m.links[remoteID] = link

	// Callbacks fire on transport goroutines; every one re-enters the owner
	// loop and checks the link is still current before acting.
	t.OnICECandidate(func(candidate webrtc.ICECandidateInit) {
		m.run(func() {
			if m.links[remoteID] != link {
				return
			}
			m.send(remoteID, protocol.EncodeCandidate(
				candidate.Candidate, candidate.SDPMid, candidate.SDPMLineIndex, candidate.UsernameFragment))
		})
	})
	t.OnNegotiationNeeded(func() {
		m.run(func() {
			if m.links[remoteID] != link {
				return
			}
			m.becomeOfferer(link)
		})
	})
	t.OnTrack(func(track *webrtc.TrackRemote) {
		m.run(func() {
			if m.links[remoteID] != link || link.sinkAttached {
				return
			}
			link.sinkAttached = true
			m.sink(remoteID, track)
		})
	})
	t.OnConnected(func() {
		m.run(func() {
			if m.links[remoteID] != link {
				return
			}
			if link.phase == session.LinkNegotiating {
				link.phase = session.LinkConnected
				m.state.SetLinkPhase(remoteID, session.LinkConnected)
				m.log.Info("peer link connected", "remote", remoteID)
			}
		})
	})

	if err := t.AddLocalTracks(); err != nil {
		m.log.Error("attach local tracks failed", "remote", remoteID, "err", err)
		m.Close(remoteID)
		return
	}

	m.state.SetLinkPhase(remoteID, session.LinkConnecting)
	m.log.Info("peer link created", "remote", remoteID)

	// Replay envelopes that arrived before the link existed, ahead of any
	// new inbound signal.
	if queued := m.held[remoteID]; len(queued) > 0 {
		delete(m.held, remoteID)
		for _, content := range queued {
			if m.links[remoteID] != link {
				return
			}
			m.applySignal(link, content)
		}
	}
}

func (m *Manager) becomeOfferer(link *PeerLink) {
	if link.phase != session.LinkConnecting {
		// Renegotiation is not modelled; the first negotiation wins.
		m.log.Debug("negotiation needed ignored", "remote", link.remote, "phase", link.phase)
		return
	}
	offer, err := link.t.CreateOffer()
	if err != nil {
		m.log.Warn("offer failed", "err", newLinkError("create offer", link.remote, err))
		return
	}
	link.offerer = true
	link.phase = session.LinkNegotiating
	m.state.SetLinkPhase(link.remote, session.LinkNegotiating)
	m.send(link.remote, protocol.EncodeDescription(protocol.SignalOffer, offer.SDP))
}

func (m *Manager) applySignal(link *PeerLink, content string) {
	body, err := protocol.DecodeSignal(content)
	if err != nil {
		m.log.Warn("signal body dropped", "err", newLinkError("decode signal", link.remote, err))
		return
	}
	kind, err := body.Kind()
	if err != nil {
		m.log.Debug("empty signal body dropped", "remote", link.remote)
		return
	}

	switch kind {
	case protocol.SignalOffer:
		m.handleOffer(link, body)

	case protocol.SignalAnswer:
		if !link.offerer {
			m.log.Warn("signal dropped", "err",
				&LinkError{Op: "handle answer", Peer: link.remote, Err: ErrUnexpectedSignal, Details: "not offering"})
			return
		}
		desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: body.SDP}
		if err := link.t.SetRemoteDescription(desc); err != nil {
			m.log.Warn("signal dropped", "err", newLinkError("set remote answer", link.remote, err))
			return
		}
		link.remoteSet = true
		m.flushCandidates(link)

	case protocol.SignalCandidate:
		candidate := webrtc.ICECandidateInit{
			Candidate:        *body.Candidate,
			SDPMid:           body.SDPMid,
			SDPMLineIndex:    body.SDPMLineIndex,
			UsernameFragment: body.UsernameFragment,
		}
		if !link.remoteSet {
			link.heldCandidates = append(link.heldCandidates, candidate)
			return
		}
		if err := link.t.AddICECandidate(candidate); err != nil {
			m.log.Warn("candidate dropped", "err", newLinkError("add candidate", link.remote, err))
		}
	}
}

// handleOffer covers both the answerer path and glare. When both sides
// offered at once, the side with the lexicographically smaller participant
// id yields: it discards its own negotiation by rebuilding the link and
// answers the remote offer. The other side drops the remote offer and waits
// for its answer.
func (m *Manager) handleOffer(link *PeerLink, body protocol.SignalBody) {
	if link.offerer && !link.remoteSet {
		if m.selfID < link.remote {
			m.log.Info("glare: yielding to remote offer", "remote", link.remote)
			remoteID := link.remote
			m.Close(remoteID)
			m.ensure(remoteID)
			fresh, ok := m.links[remoteID]
			if !ok {
				m.log.Warn("glare recovery failed", "err",
					newLinkError("rebuild link", remoteID, ErrLinkUnavailable))
				return
			}
			m.acceptOffer(fresh, body)
			return
		}
		m.log.Info("glare: discarding remote offer", "err",
			&LinkError{Op: "handle offer", Peer: link.remote, Err: ErrGlare, Details: "remote will yield"})
		return
	}
	m.acceptOffer(link, body)
}

func (m *Manager) acceptOffer(link *PeerLink, body protocol.SignalBody) {
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: body.SDP}
	if err := link.t.SetRemoteDescription(desc); err != nil {
		m.log.Warn("signal dropped", "err", newLinkError("set remote offer", link.remote, err))
		return
	}
	link.remoteSet = true
	m.flushCandidates(link)

	answer, err := link.t.CreateAnswer()
	if err != nil {
		m.log.Warn("answer failed", "err", newLinkError("create answer", link.remote, err))
		return
	}
	if link.phase == session.LinkConnecting {
		link.phase = session.LinkNegotiating
		m.state.SetLinkPhase(link.remote, session.LinkNegotiating)
	}
	m.send(link.remote, protocol.EncodeDescription(protocol.SignalAnswer, answer.SDP))
}

func (m *Manager) flushCandidates(link *PeerLink) {
	for _, candidate := range link.heldCandidates {
		if err := link.t.AddICECandidate(candidate); err != nil {
			m.log.Warn("held candidate dropped", "err", newLinkError("add candidate", link.remote, err))
		}
	}
	link.heldCandidates = nil
}
