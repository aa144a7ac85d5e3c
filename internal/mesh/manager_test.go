package mesh

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/palfrey/tavern/internal/protocol"
	"github.com/palfrey/tavern/internal/session"
)

type fakeTransport struct {
	remote     string
	closed     bool
	tracks     int
	remoteDesc *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit

	onICE   func(webrtc.ICECandidateInit)
	onNeg   func()
	onTrack func(*webrtc.TrackRemote)
	onConn  func()

	failSetRemote bool
}

func (f *fakeTransport) AddLocalTracks() error {
	f.tracks++
	return nil
}

func (f *fakeTransport) CreateOffer() (*webrtc.SessionDescription, error) {
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-from-" + f.remote}, nil
}

func (f *fakeTransport) CreateAnswer() (*webrtc.SessionDescription, error) {
	if f.remoteDesc == nil {
		return nil, errors.New("no remote description")
	}
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-for-" + f.remote}, nil
}

func (f *fakeTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if f.failSetRemote {
		return errors.New("bad sdp")
	}
	f.remoteDesc = &desc
	return nil
}

func (f *fakeTransport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	if f.closed {
		return errors.New("transport closed")
	}
	f.candidates = append(f.candidates, candidate)
	return nil
}

func (f *fakeTransport) OnICECandidate(fn func(webrtc.ICECandidateInit)) { f.onICE = fn }
func (f *fakeTransport) OnNegotiationNeeded(fn func())                   { f.onNeg = fn }
func (f *fakeTransport) OnTrack(fn func(*webrtc.TrackRemote))            { f.onTrack = fn }
func (f *fakeTransport) OnConnected(fn func())                           { f.onConn = fn }

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

type sent struct {
	to      string
	content string
}

type harness struct {
	m      *Manager
	state  *session.State
	fakes  map[string][]*fakeTransport // every transport ever built per remote
	sent   []sent
	sinked []string
}

func newHarness(selfID string) *harness {
	h := &harness{fakes: make(map[string][]*fakeTransport)}
	h.state = session.New(selfID)
	factory := func(remoteID string) (Transport, error) {
		f := &fakeTransport{remote: remoteID}
		h.fakes[remoteID] = append(h.fakes[remoteID], f)
		return f, nil
	}
	send := func(to, content string) { h.sent = append(h.sent, sent{to, content}) }
	sink := func(remoteID string, _ *webrtc.TrackRemote) { h.sinked = append(h.sinked, remoteID) }
	h.m = NewManager(slog.Default(), selfID, h.state, factory, send, sink, nil)
	return h
}

func (h *harness) fake(remote string) *fakeTransport {
	fs := h.fakes[remote]
	return fs[len(fs)-1]
}

func (h *harness) sentTo(remote string) []string {
	var out []string
	for _, s := range h.sent {
		if s.to == remote {
			out = append(out, s.content)
		}
	}
	return out
}

func offerContent(sdp string) string {
	return fmt.Sprintf(`{"type":"offer","sdp":"%s"}`, sdp)
}

func candidateContent(c string) string {
	return fmt.Sprintf(`{"candidate":"%s","sdpMid":"0","sdpMLineIndex":0}`, c)
}

func TestReconcileTracksMembership(t *testing.T) {
	h := newHarness("me")

	h.m.Reconcile([]string{"r1", "me", "r2"})
	links := h.m.Links()
	sort.Strings(links)
	if len(links) != 2 || links[0] != "r1" || links[1] != "r2" {
		t.Fatalf("links = %v, want [r1 r2]", links)
	}
	if got := h.state.Links(); got["r1"] != session.LinkConnecting || got["r2"] != session.LinkConnecting {
		t.Fatalf("state links = %v, want both connecting", got)
	}

	// Reconcile is idempotent: no duplicate transports.
	h.m.Reconcile([]string{"r1", "me", "r2"})
	if len(h.fakes["r1"]) != 1 || len(h.fakes["r2"]) != 1 {
		t.Fatal("reconcile rebuilt existing links")
	}

	// r2 leaves: its link goes, r1 survives.
	h.m.Reconcile([]string{"r1", "me"})
	if links := h.m.Links(); len(links) != 1 || links[0] != "r1" {
		t.Fatalf("links = %v, want [r1]", links)
	}
	if !h.fake("r2").closed {
		t.Fatal("r2 transport not closed")
	}
	if _, ok := h.state.Links()["r2"]; ok {
		t.Fatal("r2 still present in session state")
	}
}

func TestOffererRaceAndOutboundSignals(t *testing.T) {
	h := newHarness("me")
	h.m.Reconcile([]string{"r1", "r2"})

	// Local media setup completes for r1 first: it becomes the offerer.
	h.fake("r1").onNeg()
	if got := h.state.Links()["r1"]; got != session.LinkNegotiating {
		t.Fatalf("r1 phase = %v, want negotiating", got)
	}
	if got := h.state.Links()["r2"]; got != session.LinkConnecting {
		t.Fatalf("r2 phase = %v, want still connecting", got)
	}

	msgs := h.sentTo("r1")
	if len(msgs) != 1 {
		t.Fatalf("outbound to r1 = %v, want one offer", msgs)
	}
	body, err := protocol.DecodeSignal(msgs[0])
	if err != nil {
		t.Fatalf("outbound offer undecodable: %v", err)
	}
	if kind, _ := body.Kind(); kind != protocol.SignalOffer {
		t.Fatalf("kind = %v, want offer", kind)
	}

	// Every locally discovered candidate goes out addressed to its remote.
	mid := "0"
	h.fake("r1").onICE(webrtc.ICECandidateInit{Candidate: "cand-1", SDPMid: &mid})
	h.fake("r2").onICE(webrtc.ICECandidateInit{Candidate: "cand-2", SDPMid: &mid})
	if got := h.sentTo("r1"); len(got) != 2 {
		t.Fatalf("r1 outbound = %v, want offer+candidate", got)
	}
	if got := h.sentTo("r2"); len(got) != 1 {
		t.Fatalf("r2 outbound = %v, want one candidate", got)
	}

	// A second negotiation-needed on an already negotiating link is ignored.
	h.fake("r1").onNeg()
	if got := h.sentTo("r1"); len(got) != 2 {
		t.Fatalf("renegotiation produced outbound: %v", got)
	}
}

func TestAnswererPath(t *testing.T) {
	h := newHarness("me")
	h.m.Reconcile([]string{"r1"})

	h.m.HandleSignal("r1", offerContent("v=0 remote"))

	f := h.fake("r1")
	if f.remoteDesc == nil || f.remoteDesc.Type != webrtc.SDPTypeOffer {
		t.Fatal("remote offer not applied")
	}
	msgs := h.sentTo("r1")
	if len(msgs) != 1 {
		t.Fatalf("outbound = %v, want one answer", msgs)
	}
	body, _ := protocol.DecodeSignal(msgs[0])
	if kind, _ := body.Kind(); kind != protocol.SignalAnswer {
		t.Fatalf("kind = %v, want answer", kind)
	}
	if got := h.state.Links()["r1"]; got != session.LinkNegotiating {
		t.Fatalf("phase = %v, want negotiating", got)
	}

	// The transport reports established flow: the link is connected.
	f.onConn()
	if got := h.state.Links()["r1"]; got != session.LinkConnected {
		t.Fatalf("phase = %v, want connected", got)
	}
}

func TestAnswerAppliedWhenOffering(t *testing.T) {
	h := newHarness("me")
	h.m.Reconcile([]string{"r1"})
	h.fake("r1").onNeg()

	h.m.HandleSignal("r1", `{"type":"answer","sdp":"v=0 answer"}`)
	if f := h.fake("r1"); f.remoteDesc == nil || f.remoteDesc.Type != webrtc.SDPTypeAnswer {
		t.Fatal("remote answer not applied")
	}

	// An answer without a local offer outstanding is unexpected and dropped.
	h2 := newHarness("me")
	h2.m.Reconcile([]string{"r1"})
	h2.m.HandleSignal("r1", `{"type":"answer","sdp":"v=0"}`)
	if h2.fake("r1").remoteDesc != nil {
		t.Fatal("unexpected answer applied")
	}
}

func TestCandidatesHeldUntilRemoteDescription(t *testing.T) {
	h := newHarness("me")
	h.m.Reconcile([]string{"r1"})

	h.m.HandleSignal("r1", candidateContent("early-1"))
	h.m.HandleSignal("r1", candidateContent("early-2"))
	if got := h.fake("r1").candidates; len(got) != 0 {
		t.Fatalf("candidates applied before remote description: %v", got)
	}

	h.m.HandleSignal("r1", offerContent("v=0"))
	got := h.fake("r1").candidates
	if len(got) != 2 || got[0].Candidate != "early-1" || got[1].Candidate != "early-2" {
		t.Fatalf("candidates = %v, want early-1 then early-2", got)
	}
}

func TestEnvelopesBufferedForAbsentLink(t *testing.T) {
	h := newHarness("me")

	// Signals arrive before membership implies the edge.
	h.m.HandleSignal("r9", candidateContent("pre-link"))
	h.m.HandleSignal("r9", offerContent("v=0 early"))

	h.m.Reconcile([]string{"r9"})

	f := h.fake("r9")
	if f.remoteDesc == nil {
		t.Fatal("buffered offer not replayed at link creation")
	}
	if len(f.candidates) != 1 || f.candidates[0].Candidate != "pre-link" {
		t.Fatalf("buffered candidate not replayed: %v", f.candidates)
	}

	// New inbound arrives strictly after the replayed backlog.
	h.m.HandleSignal("r9", candidateContent("late"))
	if len(f.candidates) != 2 || f.candidates[1].Candidate != "late" {
		t.Fatalf("candidates = %v, want pre-link then late", f.candidates)
	}
}

func TestBufferedEnvelopesDroppedWhenMemberNeverJoins(t *testing.T) {
	h := newHarness("me")
	h.m.HandleSignal("ghost", offerContent("v=0"))

	h.m.Reconcile([]string{"r1"})
	if len(h.m.held) != 0 {
		t.Fatalf("held = %v, want cleared for non-members", h.m.held)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	h := newHarness("me")
	h.m.Reconcile([]string{"r1"})

	h.m.Close("r1")
	h.m.Close("r1")       // closing twice
	h.m.Close("nobody")   // closing an id with no link
	h.m.CloseAll()        // and again via CloseAll

	if len(h.m.Links()) != 0 {
		t.Fatal("links remain after close")
	}
}

func TestLeaveWhileNegotiatingStopsOutbound(t *testing.T) {
	h := newHarness("me")
	h.m.Reconcile([]string{"r1"})
	f := h.fake("r1")
	f.onNeg()
	if got := h.state.Links()["r1"]; got != session.LinkNegotiating {
		t.Fatalf("phase = %v, want negotiating", got)
	}

	// r1 leaves the sub-room mid-negotiation.
	h.m.Reconcile(nil)
	if _, ok := h.state.Links()["r1"]; ok {
		t.Fatal("closed link still in session state")
	}
	if !f.closed {
		t.Fatal("transport not released")
	}

	// Stale transport callbacks after close must not produce signaling.
	before := len(h.sent)
	mid := "0"
	f.onICE(webrtc.ICECandidateInit{Candidate: "stale", SDPMid: &mid})
	f.onNeg()
	f.onConn()
	if len(h.sent) != before {
		t.Fatalf("outbound after close: %v", h.sent[before:])
	}
}

func TestGlareYieldsByComparator(t *testing.T) {
	// Local id sorts first: this side yields, rebuilds, answers.
	h := newHarness("aaa")
	h.m.Reconcile([]string{"zzz"})
	h.fake("zzz").onNeg()
	if len(h.fakes["zzz"]) != 1 {
		t.Fatal("sanity: one transport so far")
	}

	h.m.HandleSignal("zzz", offerContent("v=0 theirs"))

	if len(h.fakes["zzz"]) != 2 {
		t.Fatalf("expected the link rebuilt for yield, transports = %d", len(h.fakes["zzz"]))
	}
	if !h.fakes["zzz"][0].closed {
		t.Fatal("original offering transport not discarded")
	}
	fresh := h.fake("zzz")
	if fresh.remoteDesc == nil || fresh.remoteDesc.Type != webrtc.SDPTypeOffer {
		t.Fatal("remote offer not applied to the fresh transport")
	}
	msgs := h.sentTo("zzz")
	last, _ := protocol.DecodeSignal(msgs[len(msgs)-1])
	if kind, _ := last.Kind(); kind != protocol.SignalAnswer {
		t.Fatalf("last outbound = %v, want answer", msgs[len(msgs)-1])
	}
}

func TestGlareHoldsByComparator(t *testing.T) {
	// Local id sorts last: the remote yields, so the incoming offer is dropped.
	h := newHarness("zzz")
	h.m.Reconcile([]string{"aaa"})
	h.fake("aaa").onNeg()
	sentBefore := len(h.sent)

	h.m.HandleSignal("aaa", offerContent("v=0 theirs"))

	if len(h.fakes["aaa"]) != 1 {
		t.Fatal("link must not be rebuilt on the holding side")
	}
	if h.fake("aaa").remoteDesc != nil {
		t.Fatal("losing offer must be discarded")
	}
	if len(h.sent) != sentBefore {
		t.Fatalf("holding side produced outbound: %v", h.sent[sentBefore:])
	}
}

func TestTrackRoutedToSinkOnce(t *testing.T) {
	h := newHarness("me")
	h.m.Reconcile([]string{"r1"})

	f := h.fake("r1")
	f.onTrack(nil)
	f.onTrack(nil)

	if len(h.sinked) != 1 || h.sinked[0] != "r1" {
		t.Fatalf("sink attaches = %v, want exactly one for r1", h.sinked)
	}
}

func TestMalformedSignalDropped(t *testing.T) {
	h := newHarness("me")
	h.m.Reconcile([]string{"r1"})

	h.m.HandleSignal("r1", `{"type":`)
	h.m.HandleSignal("r1", `null`)
	h.m.HandleSignal("r1", `{"unrelated":true}`)

	f := h.fake("r1")
	if f.remoteDesc != nil || len(f.candidates) != 0 || len(h.sent) != 0 {
		t.Fatal("malformed signals must have no effect")
	}
}

func TestBadRemoteOfferKeepsLinkAlive(t *testing.T) {
	h := newHarness("me")
	h.m.Reconcile([]string{"r1"})
	h.fake("r1").failSetRemote = true

	h.m.HandleSignal("r1", offerContent("garbage"))

	if len(h.m.Links()) != 1 {
		t.Fatal("link must survive a rejected description")
	}
	if len(h.sentTo("r1")) != 0 {
		t.Fatal("no answer may be produced for a rejected offer")
	}
}
