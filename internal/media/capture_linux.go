//go:build linux && cgo

package media

import (
	"fmt"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera" // registers the V4L2 camera driver
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

// Capture wraps the camera stream and the codec selector that has to be
// populated into every transport's media engine.
type Capture struct {
	selector *mediadevices.CodecSelector
	stream   mediadevices.MediaStream
}

// Acquire opens the camera once. Denial or absence of a device surfaces as a
// visible, non-blocking error; control-channel traffic is unaffected.
func Acquire() (*Capture, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 1_500_000 // 1.5 Mbps

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
	)

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.FrameFormat = prop.FrameFormat(frame.FormatI420)
			c.Width = prop.Int(640)
			c.Height = prop.Int(480)
		},
		Codec: selector,
	})
	if err != nil {
		return nil, fmt.Errorf("camera capture: %w", err)
	}

	return &Capture{selector: selector, stream: stream}, nil
}

// Populate registers the capture codecs with a transport's media engine.
func (c *Capture) Populate(engine *webrtc.MediaEngine) error {
	c.selector.Populate(engine)
	return nil
}

// Tracks returns the shared local tracks. Callers attach them but never
// mutate or close them; the capture owns their lifetime.
func (c *Capture) Tracks() []webrtc.TrackLocal {
	raw := c.stream.GetTracks()
	tracks := make([]webrtc.TrackLocal, 0, len(raw))
	for _, t := range raw {
		tracks = append(tracks, t)
	}
	return tracks
}

// Close releases the camera.
func (c *Capture) Close() error {
	for _, t := range c.stream.GetTracks() {
		t.Close()
	}
	return nil
}
