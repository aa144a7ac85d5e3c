package protocol

import "encoding/json"

// Message kinds (server -> client).
const (
	KindRooms          = "Rooms"
	KindSubRooms       = "SubRooms"
	KindRoomCreated    = "RoomCreated"
	KindSubRoomCreated = "SubRoomCreated"
	KindParticipant    = "Participant"
	KindData           = "Data"
	KindPong           = "Pong"
)

// Message is the inbound push envelope. List and Data stay raw until the
// kind is known; unknown kinds keep their raw form so the router can log
// and drop them without failing.
type Message struct {
	Kind    string          `json:"kind"`
	List    json.RawMessage `json:"list,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Author  string          `json:"author,omitempty"`
	Content string          `json:"content,omitempty"`
}

// DecodeMessage parses a raw control-channel payload into the envelope.
func DecodeMessage(raw []byte) (Message, error) {
	var msg Message
	err := json.Unmarshal(raw, &msg)
	return msg, err
}

// Participant is one participant record. Identity is the id; all other
// fields are last-write-wins on receipt of a Participant push.
type Participant struct {
	ID          string  `json:"id"`
	Name        *string `json:"name"`
	RoomID      *string `json:"pub_id"`
	SubRoomID   *string `json:"table_id"`
	LastUpdated string  `json:"last_updated"`
}

// Room is a top-level shared space ("pub"). Persons holds member
// participant ids; ordering of the set is irrelevant for membership.
type Room struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Persons []string `json:"persons"`
}

// SubRoom is a scoped group within a room ("table") whose members form the
// media mesh.
type SubRoom struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	RoomID  string   `json:"pub_id"`
	Persons []string `json:"persons"`
}
