// Package chat holds the chat contracts: their message types, operation tables,
// server-side interfaces and caller-side proxies.
//
// Contract and message ids are fixed wire constants shared with every other
// implementation of the chat protocol. Do not renumber them.
package chat

import (
	"fmt"

	"node-rpc/message"
)

type LoginResult byte

const (
	LoginOk                LoginResult = 0
	LoginNameInUse         LoginResult = 1
	LoginAlreadyRegistered LoginResult = 2
)

func (r LoginResult) String() string {
	switch r {
	case LoginOk:
		return "Ok"
	case LoginNameInUse:
		return "NameInUse"
	case LoginAlreadyRegistered:
		return "AlreadyRegistered"
	default:
		return fmt.Sprintf("LoginResult(%d)", byte(r))
	}
}

// JoinRoomInvalidRetCode says why JoinRoom or Join turned a caller away.
type JoinRoomInvalidRetCode int32

const (
	RoomNotFound     JoinRoomInvalidRetCode = 0
	ClientNotAwaited JoinRoomInvalidRetCode = 1
)

func (c JoinRoomInvalidRetCode) String() string {
	switch c {
	case RoomNotFound:
		return "RoomNotFound"
	case ClientNotAwaited:
		return "ClientNotAwaited"
	default:
		return fmt.Sprintf("JoinRoomInvalidRetCode(%d)", int32(c))
	}
}

func (c JoinRoomInvalidRetCode) Error() string { return "chat: " + c.String() }

// JoinRoomResponse tells a client which room it was admitted to and where that
// room is hosted. The ticket must be presented to the room's Join.
type JoinRoomResponse struct {
	RoomID         uint32 `json:"room_id"`
	Ticket         int64  `json:"ticket"`
	ServerEndpoint string `json:"server_endpoint"`
}

func writeJoinRoomResponse(w *message.Writer, x *JoinRoomResponse) {
	w.WriteUint32(x.RoomID)
	w.WriteInt64(x.Ticket)
	w.WriteString(x.ServerEndpoint)
}

func readJoinRoomResponse(r *message.Reader, x *JoinRoomResponse) {
	x.RoomID = r.ReadUint32()
	x.Ticket = r.ReadInt64()
	x.ServerEndpoint = r.ReadString()
}

type ChatRoomInfo struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
}

func writeChatRoomInfo(w *message.Writer, x *ChatRoomInfo) {
	w.WriteUint32(x.ID)
	w.WriteString(x.Name)
}

func readChatRoomInfo(r *message.Reader, x *ChatRoomInfo) {
	x.ID = r.ReadUint32()
	x.Name = r.ReadString()
}

// list element codecs: rooms are nullable, strings are not
func writeRoomElem(w *message.Writer, x *ChatRoomInfo) { message.WriteOptional(w, x, writeChatRoomInfo) }
func readRoomElem(r *message.Reader) *ChatRoomInfo     { return message.ReadOptional(r, readChatRoomInfo) }
func writeStringElem(w *message.Writer, s string)      { w.WriteString(s) }
func readStringElem(r *message.Reader) string          { return r.ReadString() }
