// Package router decodes inbound control-channel payloads and dispatches
// them: state-sync messages mutate the session state, signaling envelopes go
// to the mesh. Unknown or malformed payloads are logged and dropped; nothing
// inbound is ever fatal.
package router

import (
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/palfrey/tavern/internal/protocol"
	"github.com/palfrey/tavern/internal/session"
)

// SignalHandler receives relayed signaling envelopes addressed to us.
type SignalHandler interface {
	HandleSignal(fromParticipant, content string)
}

// Router routes one raw payload at a time. It is driven by the client event
// loop and performs no locking of its own beyond what the state provides.
type Router struct {
	state *session.State
	mesh  SignalHandler
	log   *slog.Logger
}

// New creates a router writing into state and forwarding envelopes to mesh.
func New(log *slog.Logger, state *session.State, mesh SignalHandler) *Router {
	return &Router{state: state, mesh: mesh, log: log}
}

// Route parses rawPayload and dispatches it to the owning handler.
func (r *Router) Route(rawPayload []byte) {
	msg, err := protocol.DecodeMessage(rawPayload)
	if err != nil {
		r.log.Warn("malformed payload dropped", "err", err)
		return
	}

	switch msg.Kind {
	case protocol.KindRooms:
		var rooms []protocol.Room
		if err := json.Unmarshal(msg.List, &rooms); err != nil {
			r.log.Warn("bad room list dropped", "err", err)
			return
		}
		// Listing order is user-visible; rooms display name-lexicographic.
		sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
		r.state.SetRooms(rooms)

	case protocol.KindSubRooms:
		var subRooms []protocol.SubRoom
		if err := json.Unmarshal(msg.List, &subRooms); err != nil {
			r.log.Warn("bad sub-room list dropped", "err", err)
			return
		}
		r.state.SetSubRooms(subRooms)

	case protocol.KindRoomCreated:
		var room protocol.Room
		if err := json.Unmarshal(msg.Data, &room); err != nil {
			r.log.Warn("bad room record dropped", "err", err)
			return
		}
		r.state.AddRoom(room)

	case protocol.KindSubRoomCreated:
		var subRoom protocol.SubRoom
		if err := json.Unmarshal(msg.Data, &subRoom); err != nil {
			r.log.Warn("bad sub-room record dropped", "err", err)
			return
		}
		r.state.AddSubRoom(subRoom)

	case protocol.KindParticipant:
		var p protocol.Participant
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.ID == "" {
			r.log.Warn("bad participant record dropped", "err", err)
			return
		}
		r.state.UpsertParticipant(p)

	case protocol.KindData:
		if msg.Author == "" {
			r.log.Warn("signal envelope without author dropped")
			return
		}
		r.mesh.HandleSignal(msg.Author, msg.Content)

	case protocol.KindPong:
		r.log.Debug("pong")

	default:
		r.log.Warn("unknown message kind dropped", "kind", msg.Kind)
	}
}
