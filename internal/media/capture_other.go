//go:build !linux || !cgo

package media

import "github.com/pion/webrtc/v4"

// Capture has no implementation off Linux; camera capture via
// pion/mediadevices needs the V4L2 driver. Peers still get receive-only
// transports, so remote media remains visible.
type Capture struct{}

func Acquire() (*Capture, error) {
	return nil, ErrUnavailable
}

func (c *Capture) Populate(engine *webrtc.MediaEngine) error { return nil }

func (c *Capture) Tracks() []webrtc.TrackLocal { return nil }

func (c *Capture) Close() error { return nil }
