package media

import (
	"errors"
	"io"
	"log/slog"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Drain consumes a remote track so RTCP feedback keeps flowing, counting
// packets and bytes for the closing log line. It returns when the track
// ends. The mesh attaches exactly one drain per remote participant.
func Drain(log *slog.Logger, remoteID string, track *webrtc.TrackRemote) {
	var packets, bytes uint64
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("remote track ended", "remote", remoteID, "err", err)
			}
			log.Info("remote media stopped",
				"remote", remoteID, "packets", packets, "bytes", bytes)
			return
		}
		packets++
		bytes += uint64(packetSize(pkt))
		if packets == 1 {
			log.Info("remote media flowing",
				"remote", remoteID, "kind", track.Kind().String(), "ssrc", track.SSRC())
		}
	}
}

func packetSize(pkt *rtp.Packet) int {
	return pkt.MarshalSize()
}
