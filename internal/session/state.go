// Package session holds the process-wide observable state: the local
// participant identity, known rooms and sub-rooms, participant records, and
// the phase of every live mesh edge. Writers replace whole fields under the
// lock, so readers always observe a complete value, never a partial update.
package session

import (
	"sync"

	"github.com/palfrey/tavern/internal/protocol"
)

// LinkPhase is the externally visible lifecycle phase of one mesh edge.
type LinkPhase string

const (
	LinkConnecting  LinkPhase = "connecting"
	LinkNegotiating LinkPhase = "negotiating"
	LinkConnected   LinkPhase = "connected"
	LinkClosed      LinkPhase = "closed"
)

// State is the single shared state container. One instance lives for the
// application lifetime and is passed explicitly to the router, the mesh
// manager and the UI.
type State struct {
	mu sync.RWMutex

	selfID       string
	rooms        []protocol.Room
	roomsVersion uint64
	subRooms        []protocol.SubRoom
	subRoomsVersion uint64
	participants    map[string]protocol.Participant
	links        map[string]LinkPhase
	captureErr   string

	nextSub int
	subs    map[int]chan struct{}
}

// New creates a state container for the given local participant id.
func New(selfID string) *State {
	return &State{
		selfID:       selfID,
		participants: make(map[string]protocol.Participant),
		links:        make(map[string]LinkPhase),
		subs:         make(map[int]chan struct{}),
	}
}

// SelfID returns the local participant id.
func (s *State) SelfID() string { return s.selfID }

// SetRooms replaces the room collection wholesale. List pushes are total
// snapshots from the authoritative server, already sorted by the router.
func (s *State) SetRooms(rooms []protocol.Room) {
	s.mu.Lock()
	s.rooms = append([]protocol.Room(nil), rooms...)
	s.roomsVersion++
	s.mu.Unlock()
	s.notify()
}

// AddRoom appends a newly created room to the collection.
func (s *State) AddRoom(room protocol.Room) {
	s.mu.Lock()
	s.rooms = append(append([]protocol.Room(nil), s.rooms...), room)
	s.roomsVersion++
	s.mu.Unlock()
	s.notify()
}

// Rooms returns a copy of the known rooms in display order.
func (s *State) Rooms() []protocol.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]protocol.Room(nil), s.rooms...)
}

// RoomsVersion counts room collection replacements, so callers can wait for
// the first listing to arrive even when the list itself is empty.
func (s *State) RoomsVersion() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomsVersion
}

// SubRoomsVersion counts sub-room collection updates.
func (s *State) SubRoomsVersion() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subRoomsVersion
}

// SetSubRooms replaces the sub-room collection wholesale.
func (s *State) SetSubRooms(subRooms []protocol.SubRoom) {
	s.mu.Lock()
	s.subRooms = append([]protocol.SubRoom(nil), subRooms...)
	s.subRoomsVersion++
	s.mu.Unlock()
	s.notify()
}

// AddSubRoom appends a newly created sub-room.
func (s *State) AddSubRoom(subRoom protocol.SubRoom) {
	s.mu.Lock()
	s.subRooms = append(append([]protocol.SubRoom(nil), s.subRooms...), subRoom)
	s.subRoomsVersion++
	s.mu.Unlock()
	s.notify()
}

// SubRooms returns a copy of the known sub-rooms.
func (s *State) SubRooms() []protocol.SubRoom {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]protocol.SubRoom(nil), s.subRooms...)
}

// UpsertParticipant stores a participant record, last write wins.
func (s *State) UpsertParticipant(p protocol.Participant) {
	s.mu.Lock()
	s.participants[p.ID] = p
	s.mu.Unlock()
	s.notify()
}

// Participant looks up one participant record by id.
func (s *State) Participant(id string) (protocol.Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	return p, ok
}

// Self returns the participant record for the local session, if the server
// has pushed one yet.
func (s *State) Self() (protocol.Participant, bool) {
	return s.Participant(s.selfID)
}

// CurrentSubRoom resolves the sub-room the local participant is seated at.
func (s *State) CurrentSubRoom() (protocol.SubRoom, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	self, ok := s.participants[s.selfID]
	if !ok || self.SubRoomID == nil {
		return protocol.SubRoom{}, false
	}
	for _, sr := range s.subRooms {
		if sr.ID == *self.SubRoomID {
			return sr, true
		}
	}
	return protocol.SubRoom{}, false
}

// SubRoomPeers returns the members of the current sub-room excluding the
// local participant: the exact set of remote ids the mesh must keep edges to.
func (s *State) SubRoomPeers() []string {
	sr, ok := s.CurrentSubRoom()
	if !ok {
		return nil
	}
	peers := make([]string, 0, len(sr.Persons))
	for _, id := range sr.Persons {
		if id != s.selfID {
			peers = append(peers, id)
		}
	}
	return peers
}

// SetLinkPhase records the phase of the mesh edge to one remote participant.
func (s *State) SetLinkPhase(remoteID string, phase LinkPhase) {
	s.mu.Lock()
	links := make(map[string]LinkPhase, len(s.links)+1)
	for k, v := range s.links {
		links[k] = v
	}
	links[remoteID] = phase
	s.links = links
	s.mu.Unlock()
	s.notify()
}

// RemoveLink drops the edge record for a remote participant. Removing an
// unknown id is a no-op.
func (s *State) RemoveLink(remoteID string) {
	s.mu.Lock()
	if _, ok := s.links[remoteID]; !ok {
		s.mu.Unlock()
		return
	}
	links := make(map[string]LinkPhase, len(s.links))
	for k, v := range s.links {
		if k != remoteID {
			links[k] = v
		}
	}
	s.links = links
	s.mu.Unlock()
	s.notify()
}

// Links returns a copy of the live edge set keyed by remote participant id.
func (s *State) Links() map[string]LinkPhase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	links := make(map[string]LinkPhase, len(s.links))
	for k, v := range s.links {
		links[k] = v
	}
	return links
}

// SetCaptureError records a visible, non-blocking capture failure. Control
// messages keep flowing; only media edges are affected.
func (s *State) SetCaptureError(msg string) {
	s.mu.Lock()
	s.captureErr = msg
	s.mu.Unlock()
	s.notify()
}

// CaptureError returns the last capture failure, empty when capture is fine.
func (s *State) CaptureError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.captureErr
}

// Subscribe registers an observer. The returned channel receives a coalesced
// tick after every mutation; cancel unregisters it. Observers that lag never
// block writers.
func (s *State) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *State) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
