package router

import (
	"log/slog"
	"testing"

	"github.com/palfrey/tavern/internal/session"
)

type recordingMesh struct {
	from    []string
	content []string
}

func (m *recordingMesh) HandleSignal(from, content string) {
	m.from = append(m.from, from)
	m.content = append(m.content, content)
}

func newTestRouter() (*Router, *session.State, *recordingMesh) {
	state := session.New("me")
	mesh := &recordingMesh{}
	return New(slog.Default(), state, mesh), state, mesh
}

func TestRoomsReplaceAndSortByName(t *testing.T) {
	r, state, _ := newTestRouter()

	r.Route([]byte(`{"kind":"Rooms","list":[{"id":"1","name":"Zeta","persons":[]},{"id":"2","name":"Alpha","persons":[]}]}`))

	rooms := state.Rooms()
	if len(rooms) != 2 || rooms[0].Name != "Alpha" || rooms[1].Name != "Zeta" {
		t.Fatalf("rooms = %v, want [Alpha Zeta]", rooms)
	}

	// A later snapshot fully replaces the collection.
	r.Route([]byte(`{"kind":"Rooms","list":[{"id":"3","name":"Mid","persons":[]}]}`))
	rooms = state.Rooms()
	if len(rooms) != 1 || rooms[0].Name != "Mid" {
		t.Fatalf("rooms = %v, want [Mid]", rooms)
	}
}

func TestCreatedMessagesAppend(t *testing.T) {
	r, state, _ := newTestRouter()

	r.Route([]byte(`{"kind":"Rooms","list":[{"id":"1","name":"Alpha","persons":[]}]}`))
	r.Route([]byte(`{"kind":"RoomCreated","data":{"id":"2","name":"Beta","persons":[]}}`))
	if rooms := state.Rooms(); len(rooms) != 2 || rooms[1].Name != "Beta" {
		t.Fatalf("rooms = %v, want Alpha then Beta", rooms)
	}

	r.Route([]byte(`{"kind":"SubRoomCreated","data":{"id":"t1","name":"Snug","pub_id":"1","persons":[]}}`))
	if subRooms := state.SubRooms(); len(subRooms) != 1 || subRooms[0].Name != "Snug" {
		t.Fatalf("subRooms = %v, want [Snug]", subRooms)
	}
}

func TestParticipantUpsert(t *testing.T) {
	r, state, _ := newTestRouter()

	r.Route([]byte(`{"kind":"Participant","data":{"id":"p1","name":"old","pub_id":null,"table_id":null,"last_updated":"2026-01-01T00:00:00"}}`))
	r.Route([]byte(`{"kind":"Participant","data":{"id":"p1","name":"new","pub_id":"1","table_id":null,"last_updated":"2026-01-02T00:00:00"}}`))

	p, ok := state.Participant("p1")
	if !ok || p.Name == nil || *p.Name != "new" || p.RoomID == nil || *p.RoomID != "1" {
		t.Fatalf("participant = %+v, want the second write", p)
	}
}

func TestDataForwardedToMesh(t *testing.T) {
	r, _, mesh := newTestRouter()

	r.Route([]byte(`{"kind":"Data","author":"r1","content":"{\"type\":\"offer\",\"sdp\":\"v=0\"}"}`))

	if len(mesh.from) != 1 || mesh.from[0] != "r1" {
		t.Fatalf("mesh got %v, want one envelope from r1", mesh.from)
	}
	if mesh.content[0] != `{"type":"offer","sdp":"v=0"}` {
		t.Fatalf("content passed non-verbatim: %q", mesh.content[0])
	}
}

func TestUnknownAndMalformedDropped(t *testing.T) {
	r, state, mesh := newTestRouter()

	r.Route([]byte(`{"kind":"FutureThing","data":{}}`))
	r.Route([]byte(`not json at all`))
	r.Route([]byte(`{"kind":"Rooms","list":"not a list"}`))
	r.Route([]byte(`{"kind":"Data","content":"no author"}`))
	r.Route([]byte(`{"kind":"Pong"}`))

	if len(state.Rooms()) != 0 || len(mesh.from) != 0 {
		t.Fatal("bad payloads must not mutate state or reach the mesh")
	}
}
