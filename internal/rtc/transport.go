// Package rtc wraps a pion PeerConnection in the narrow transport surface
// the mesh state machine drives. All pion-specific setup (media engine,
// interceptors, ICE servers) stays here.
package rtc

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/palfrey/tavern/internal/config"
)

// MediaSource supplies local capture to outbound transports. The one capture
// handle is acquired once per application lifetime and shared read-only by
// every transport; implementations must tolerate repeated Populate/Tracks
// calls.
type MediaSource interface {
	Populate(engine *webrtc.MediaEngine) error
	Tracks() []webrtc.TrackLocal
}

// Transport is one peer-to-peer media connection.
type Transport struct {
	pc  *webrtc.PeerConnection
	src MediaSource
}

// ICEServers assembles the pion ICE server list from configuration: STUN
// always, TURN with credentials when configured.
func ICEServers(cfg *config.Config) []webrtc.ICEServer {
	iceServers := []webrtc.ICEServer{{URLs: cfg.GetSTUNServers()}}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}
	return iceServers
}

// New creates a transport. When src is non-nil its codecs are registered with
// the media engine; otherwise the default codecs are used and the transport
// can only receive.
func New(cfg *config.Config, src MediaSource) (*Transport, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if src != nil {
		if err := src.Populate(mediaEngine); err != nil {
			return nil, fmt.Errorf("populate media engine: %w", err)
		}
	} else if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
	)

	policy := webrtc.ICETransportPolicyAll
	if cfg.ForceRelay && cfg.GetTURNServers() != nil {
		policy = webrtc.ICETransportPolicyRelay
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers:         ICEServers(cfg),
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	return &Transport{pc: pc, src: src}, nil
}

// AddLocalTracks attaches the shared capture tracks. Without a source the
// transport gets receive-only transceivers so offers still carry valid
// media sections.
func (t *Transport) AddLocalTracks() error {
	if t.src == nil {
		_, err := t.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		return err
	}
	for _, track := range t.src.Tracks() {
		if _, err := t.pc.AddTrack(track); err != nil {
			return fmt.Errorf("add track: %w", err)
		}
	}
	return nil
}

// CreateOffer builds an offer and sets it as the local description.
func (t *Transport) CreateOffer() (*webrtc.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return t.pc.LocalDescription(), nil
}

// CreateAnswer builds an answer to the current remote offer and sets it as
// the local description.
func (t *Transport) CreateAnswer() (*webrtc.SessionDescription, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return t.pc.LocalDescription(), nil
}

func (t *Transport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(desc)
}

func (t *Transport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}

// OnICECandidate registers fn for every locally discovered candidate. The
// end-of-gathering nil candidate is filtered out.
func (t *Transport) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		fn(c.ToJSON())
	})
}

func (t *Transport) OnNegotiationNeeded(fn func()) {
	t.pc.OnNegotiationNeeded(fn)
}

func (t *Transport) OnTrack(fn func(track *webrtc.TrackRemote)) {
	t.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(track)
	})
}

// OnConnected registers fn for the transition into established media flow.
func (t *Transport) OnConnected(fn func()) {
	t.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateConnected {
			fn()
		}
	})
}

func (t *Transport) Close() error {
	return t.pc.Close()
}
