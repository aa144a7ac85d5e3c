package protocol

import (
	"encoding/json"
	"errors"
)

// ErrEmptySignal marks a signal body that decoded to nothing actionable
// (JSON null, or an object with neither an SDP nor a candidate).
var ErrEmptySignal = errors.New("empty signal body")

// SignalKind discriminates the decoded body of a Data envelope.
type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
)

// SignalBody is the union carried inside Send/Data content: a session
// description ({"type","sdp"}) or an ICE candidate ({"candidate",...}).
// The candidate field shapes match what browser peers emit, so either end
// of a mesh edge can be a browser or this client.
type SignalBody struct {
	Type             string  `json:"type,omitempty"`
	SDP              string  `json:"sdp,omitempty"`
	Candidate        *string `json:"candidate,omitempty"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Kind reports what the body carries. Candidate presence wins over the type
// field, mirroring the "candidate" in-key test browsers rely on.
func (b SignalBody) Kind() (SignalKind, error) {
	if b.Candidate != nil {
		return SignalCandidate, nil
	}
	switch b.Type {
	case "offer":
		return SignalOffer, nil
	case "answer":
		return SignalAnswer, nil
	}
	return "", ErrEmptySignal
}

// DecodeSignal parses the content of a Data envelope. A literal JSON null
// decodes to ErrEmptySignal rather than a parse error, since remote peers
// send null local descriptions during teardown.
func DecodeSignal(content string) (SignalBody, error) {
	var body *SignalBody
	if err := json.Unmarshal([]byte(content), &body); err != nil {
		return SignalBody{}, err
	}
	if body == nil {
		return SignalBody{}, ErrEmptySignal
	}
	return *body, nil
}

// EncodeDescription builds the signal content for a local session description.
func EncodeDescription(kind SignalKind, sdp string) string {
	data, _ := json.Marshal(SignalBody{Type: string(kind), SDP: sdp})
	return string(data)
}

// EncodeCandidate builds the signal content for a local ICE candidate.
func EncodeCandidate(candidate string, sdpMid *string, sdpMLineIndex *uint16, usernameFragment *string) string {
	data, _ := json.Marshal(SignalBody{
		Candidate:        &candidate,
		SDPMid:           sdpMid,
		SDPMLineIndex:    sdpMLineIndex,
		UsernameFragment: usernameFragment,
	})
	return string(data)
}
