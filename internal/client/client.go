// Package client runs the Tavern session: one control channel to the
// coordination server, one mesh manager for peer media links, and a single
// owner goroutine through which every state transition passes. Transport
// callbacks, inbound server messages and UI intents are all funneled onto
// that loop, so each event is processed to completion before the next one
// starts.
package client

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/palfrey/tavern/internal/config"
	"github.com/palfrey/tavern/internal/identity"
	"github.com/palfrey/tavern/internal/media"
	"github.com/palfrey/tavern/internal/mesh"
	"github.com/palfrey/tavern/internal/protocol"
	"github.com/palfrey/tavern/internal/router"
	"github.com/palfrey/tavern/internal/rtc"
	"github.com/palfrey/tavern/internal/session"
	"github.com/palfrey/tavern/internal/signaling"
)

// Client owns the full session lifecycle. Public methods are safe to call
// from any goroutine; they post intents onto the owner loop.
type Client struct {
	log   *slog.Logger
	cfg   *config.Config
	id    *identity.Identity
	state *session.State
	ch    *signaling.Channel
	mesh  *mesh.Manager
	rt    *router.Router

	ops  chan func()
	done chan struct{}

	// acquire opens the local camera; swapped out in tests.
	acquire func() (*media.Capture, error)

	// Owner-loop state, touched only from Run's goroutine.
	capture     *media.Capture
	source      rtc.MediaSource
	captureDone bool
	requested   map[string]bool
}

// New wires a client from its configuration and stored identity. Run must
// be called before any intent method takes effect.
func New(log *slog.Logger, cfg *config.Config, id *identity.Identity) *Client {
	c := &Client{
		log:       log,
		cfg:       cfg,
		id:        id,
		state:     session.New(id.ParticipantID),
		ops:       make(chan func(), 64),
		done:      make(chan struct{}),
		requested: make(map[string]bool),
		acquire:   media.Acquire,
	}
	c.ch = signaling.New(log, signaling.Dial)
	c.mesh = mesh.NewManager(log, id.ParticipantID, c.state,
		c.newTransport, c.sendSignal, c.attachSink, c.post)
	c.rt = router.New(log, c.state, c.mesh)
	return c
}

// State exposes the observable session state for UIs.
func (c *Client) State() *session.State { return c.state }

// Connected reports whether the control channel currently has a live
// websocket.
func (c *Client) Connected() bool { return c.ch.Connected() }

// Run drives the owner loop until ctx is cancelled. It connects the control
// channel, starts camera acquisition, and then processes inbound messages,
// posted intents and the heartbeat in strict sequence.
func (c *Client) Run(ctx context.Context) error {
	c.ch.OnConnect(func() {
		c.post(c.resync)
	})
	c.ch.Connect(c.cfg.WebSocketURL(c.id.ParticipantID))

	go c.acquireCapture()

	heartbeat := time.NewTicker(c.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil

		case payload := <-c.ch.Incoming():
			c.rt.Route(payload)
			c.reconcile()

		case op := <-c.ops:
			op()
			c.reconcile()

		case <-heartbeat.C:
			if c.ch.Connected() {
				c.sendCommand(protocol.Ping())
			} else {
				// The keep-alive doubles as the reconnect trigger: a
				// dropped channel is redialed on the next tick, not only
				// on the next user intent.
				c.ch.Connect(c.cfg.WebSocketURL(c.id.ParticipantID))
			}
		}
	}
}

// acquireCapture opens the camera off the loop; device probing can block
// for seconds. The result, success or failure, is posted back so the mesh
// only ever builds links with a settled media source.
func (c *Client) acquireCapture() {
	capture, err := c.acquire()
	c.post(func() {
		c.captureDone = true
		if err != nil {
			if !errors.Is(err, media.ErrUnavailable) {
				c.log.Warn("camera unavailable, joining receive-only", "err", err)
			}
			c.state.SetCaptureError(err.Error())
			return
		}
		c.capture = capture
		c.source = capture
		c.log.Info("camera capture ready")
	})
}

// resync runs after every (re)connect of the control channel, behind any
// queued outbound commands. The server's state is authoritative, so the
// client re-requests everything it renders.
func (c *Client) resync() {
	if c.id.Name != "" {
		c.sendCommand(protocol.SetName(c.id.Name))
	}
	c.sendCommand(protocol.ListRooms())
	if self, ok := c.state.Self(); ok && self.RoomID != nil {
		c.sendCommand(protocol.ListSubRooms(*self.RoomID))
	}
}

// reconcile aligns the mesh with current sub-room membership. Link creation
// is gated on capture resolution: until the camera has either opened or
// definitively failed, no peer connection is built, so the offer each link
// produces already carries the final track set.
func (c *Client) reconcile() {
	if !c.captureDone {
		return
	}
	members := c.state.SubRoomPeers()
	c.mesh.Reconcile(members)
	for _, id := range members {
		if _, known := c.state.Participant(id); !known && !c.requested[id] {
			c.requested[id] = true
			c.sendCommand(protocol.GetPerson(id))
		}
	}
}

func (c *Client) shutdown() {
	close(c.done)
	if self, ok := c.state.Self(); ok && self.SubRoomID != nil {
		c.sendCommand(protocol.LeaveSubRoom(*self.SubRoomID))
	}
	c.mesh.CloseAll()
	if c.capture != nil {
		if err := c.capture.Close(); err != nil {
			c.log.Debug("capture close", "err", err)
		}
	}
	c.ch.Close()
}

// post hands fn to the owner loop. It never blocks forever: when the loop
// has exited the intent is discarded.
func (c *Client) post(fn func()) {
	select {
	case c.ops <- fn:
	case <-c.done:
	}
}

func (c *Client) newTransport(string) (mesh.Transport, error) {
	t, err := rtc.New(c.cfg, c.source)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (c *Client) sendSignal(toParticipant, content string) {
	c.sendCommand(protocol.Signal(toParticipant, content))
}

func (c *Client) attachSink(remoteID string, track *webrtc.TrackRemote) {
	go media.Drain(c.log, remoteID, track)
}

func (c *Client) sendCommand(cmd protocol.Command) {
	payload, err := cmd.Encode()
	if err != nil {
		c.log.Error("command encode failed", "kind", cmd.Kind, "err", err)
		return
	}
	c.ch.Send(payload)
}

// RefreshRooms requests a fresh room listing.
func (c *Client) RefreshRooms() {
	c.post(func() { c.sendCommand(protocol.ListRooms()) })
}

// CreateRoom asks the server to create a room with the given name.
func (c *Client) CreateRoom(name string) {
	c.post(func() { c.sendCommand(protocol.CreateRoom(name)) })
}

// DeleteRoom asks the server to delete a room.
func (c *Client) DeleteRoom(roomID string) {
	c.post(func() { c.sendCommand(protocol.DeleteRoom(roomID)) })
}

// JoinRoom enters a room; any current sub-room seat and room membership are
// released first so the server only ever sees one residence per client.
func (c *Client) JoinRoom(roomID string) {
	c.post(func() {
		self, ok := c.state.Self()
		if ok && self.SubRoomID != nil {
			c.sendCommand(protocol.LeaveSubRoom(*self.SubRoomID))
			c.mesh.CloseAll()
		}
		if ok && self.RoomID != nil && *self.RoomID != roomID {
			c.sendCommand(protocol.LeaveRoom(*self.RoomID))
		}
		c.sendCommand(protocol.JoinRoom(roomID))
		c.sendCommand(protocol.ListSubRooms(roomID))
	})
}

// LeaveRoom exits the current room, standing up from any sub-room first.
func (c *Client) LeaveRoom() {
	c.post(func() {
		self, ok := c.state.Self()
		if !ok || self.RoomID == nil {
			return
		}
		if self.SubRoomID != nil {
			c.sendCommand(protocol.LeaveSubRoom(*self.SubRoomID))
			c.mesh.CloseAll()
		}
		c.sendCommand(protocol.LeaveRoom(*self.RoomID))
	})
}

// RefreshSubRooms requests the sub-room listing of one room.
func (c *Client) RefreshSubRooms(roomID string) {
	c.post(func() { c.sendCommand(protocol.ListSubRooms(roomID)) })
}

// CreateSubRoom asks the server to create a sub-room in the given room.
func (c *Client) CreateSubRoom(roomID, name string) {
	c.post(func() { c.sendCommand(protocol.CreateSubRoom(roomID, name)) })
}

// DeleteSubRoom asks the server to delete a sub-room.
func (c *Client) DeleteSubRoom(subRoomID string) {
	c.post(func() { c.sendCommand(protocol.DeleteSubRoom(subRoomID)) })
}

// JoinSubRoom takes a seat at a sub-room. Moving between sub-rooms drops
// every existing media link immediately rather than waiting for the
// server's membership update.
func (c *Client) JoinSubRoom(subRoomID string) {
	c.post(func() {
		if self, ok := c.state.Self(); ok && self.SubRoomID != nil {
			if *self.SubRoomID == subRoomID {
				return
			}
			c.sendCommand(protocol.LeaveSubRoom(*self.SubRoomID))
			c.mesh.CloseAll()
		}
		c.sendCommand(protocol.JoinSubRoom(subRoomID))
	})
}

// LeaveSubRoom stands up from the current sub-room, if any.
func (c *Client) LeaveSubRoom() {
	c.post(func() {
		self, ok := c.state.Self()
		if !ok || self.SubRoomID == nil {
			return
		}
		c.sendCommand(protocol.LeaveSubRoom(*self.SubRoomID))
		c.mesh.CloseAll()
	})
}

// SetDisplayName updates the advertised display name and persists it with
// the stored identity.
func (c *Client) SetDisplayName(dir, name string) {
	c.post(func() {
		c.id.Name = name
		c.sendCommand(protocol.SetName(name))
		if err := identity.Save(dir, c.id); err != nil {
			c.log.Warn("identity save failed", "err", err)
		}
	})
}

// AwaitRooms requests a room listing and blocks until the next snapshot
// arrives or ctx expires. Used by one-shot commands.
func (c *Client) AwaitRooms(ctx context.Context) ([]protocol.Room, error) {
	notify, cancel := c.state.Subscribe()
	defer cancel()
	seen := c.state.RoomsVersion()
	c.RefreshRooms()
	for c.state.RoomsVersion() == seen {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-notify:
		}
	}
	return c.state.Rooms(), nil
}

// AwaitRoomCreated sends a create request and waits for the server's
// confirmation push, returning the created room.
func (c *Client) AwaitRoomCreated(ctx context.Context, name string) (protocol.Room, error) {
	notify, cancel := c.state.Subscribe()
	defer cancel()
	seen := c.state.RoomsVersion()
	c.CreateRoom(name)
	for {
		if c.state.RoomsVersion() != seen {
			seen = c.state.RoomsVersion()
			rooms := c.state.Rooms()
			for i := len(rooms) - 1; i >= 0; i-- {
				if rooms[i].Name == name {
					return rooms[i], nil
				}
			}
		}
		select {
		case <-ctx.Done():
			return protocol.Room{}, ctx.Err()
		case <-notify:
		}
	}
}

// AwaitSubRoomCreated sends a create request for a sub-room and waits for
// the server's confirmation push.
func (c *Client) AwaitSubRoomCreated(ctx context.Context, roomID, name string) (protocol.SubRoom, error) {
	notify, cancel := c.state.Subscribe()
	defer cancel()
	seen := c.state.SubRoomsVersion()
	c.CreateSubRoom(roomID, name)
	for {
		if c.state.SubRoomsVersion() != seen {
			seen = c.state.SubRoomsVersion()
			subRooms := c.state.SubRooms()
			for i := len(subRooms) - 1; i >= 0; i-- {
				if subRooms[i].Name == name && subRooms[i].RoomID == roomID {
					return subRooms[i], nil
				}
			}
		}
		select {
		case <-ctx.Done():
			return protocol.SubRoom{}, ctx.Err()
		case <-notify:
		}
	}
}

// AwaitSubRooms requests a sub-room listing for one room and blocks until
// the next snapshot arrives or ctx expires.
func (c *Client) AwaitSubRooms(ctx context.Context, roomID string) ([]protocol.SubRoom, error) {
	notify, cancel := c.state.Subscribe()
	defer cancel()
	seen := c.state.SubRoomsVersion()
	c.RefreshSubRooms(roomID)
	for c.state.SubRoomsVersion() == seen {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-notify:
		}
	}
	return c.state.SubRooms(), nil
}
