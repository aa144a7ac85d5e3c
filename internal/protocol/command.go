// Package protocol defines the JSON wire contract with the Tavern signaling
// server: outbound command envelopes, inbound push messages, and the
// session-description/ICE bodies carried inside Send/Data envelopes.
// Every envelope is tagged by a "kind" field.
package protocol

import "encoding/json"

// Command kinds (client -> server).
const (
	KindListRooms     = "ListRooms"
	KindCreateRoom    = "CreateRoom"
	KindDeleteRoom    = "DeleteRoom"
	KindJoinRoom      = "JoinRoom"
	KindLeaveRoom     = "LeaveRoom"
	KindListSubRooms  = "ListSubRooms"
	KindCreateSubRoom = "CreateSubRoom"
	KindJoinSubRoom   = "JoinSubRoom"
	KindLeaveSubRoom  = "LeaveSubRoom"
	KindDeleteSubRoom = "DeleteSubRoom"
	KindSetName       = "SetName"
	KindGetPerson     = "GetPerson"
	KindSend          = "Send"
	KindPing          = "Ping"
)

// Command is the outbound envelope. Only the fields relevant to the kind are
// populated; the server validates existence and authorization.
type Command struct {
	Kind      string `json:"kind"`
	Name      string `json:"name,omitempty"`
	RoomID    string `json:"room_id,omitempty"`
	SubRoomID string `json:"sub_room_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// Encode serializes the command for the control channel.
func (c Command) Encode() ([]byte, error) {
	return json.Marshal(c)
}

func ListRooms() Command { return Command{Kind: KindListRooms} }

func CreateRoom(name string) Command { return Command{Kind: KindCreateRoom, Name: name} }

func DeleteRoom(roomID string) Command { return Command{Kind: KindDeleteRoom, RoomID: roomID} }

func JoinRoom(roomID string) Command { return Command{Kind: KindJoinRoom, RoomID: roomID} }

func LeaveRoom(roomID string) Command { return Command{Kind: KindLeaveRoom, RoomID: roomID} }

func ListSubRooms(roomID string) Command { return Command{Kind: KindListSubRooms, RoomID: roomID} }

func CreateSubRoom(roomID, name string) Command {
	return Command{Kind: KindCreateSubRoom, RoomID: roomID, Name: name}
}

func JoinSubRoom(subRoomID string) Command {
	return Command{Kind: KindJoinSubRoom, SubRoomID: subRoomID}
}

func LeaveSubRoom(subRoomID string) Command {
	return Command{Kind: KindLeaveSubRoom, SubRoomID: subRoomID}
}

func DeleteSubRoom(subRoomID string) Command {
	return Command{Kind: KindDeleteSubRoom, SubRoomID: subRoomID}
}

func SetName(name string) Command { return Command{Kind: KindSetName, Name: name} }

func GetPerson(userID string) Command { return Command{Kind: KindGetPerson, UserID: userID} }

// Signal wraps a signaling body addressed to one remote participant. The
// content is an already-encoded session description or ICE candidate; the
// server relays it verbatim as a Data push.
func Signal(toParticipant, content string) Command {
	return Command{Kind: KindSend, UserID: toParticipant, Content: content}
}

func Ping() Command { return Command{Kind: KindPing} }
