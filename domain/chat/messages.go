package chat

import "node-rpc/message"

// Message type ids.
const (
	LoginRequestID            uint32 = 2019756658
	LoginReplyID              uint32 = 1128145376
	GetRoomsRequestID         uint32 = 1938706274
	GetRoomsReplyID           uint32 = 1966421887
	JoinOrCreateRoomRequestID uint32 = 956401361
	JoinOrCreateRoomReplyID   uint32 = 1860964580
	JoinRoomRequestID         uint32 = 4139561538
	JoinRoomReplyID           uint32 = 693987992
	RoomJoinRequestID         uint32 = 3112933142
	RoomJoinReplyID           uint32 = 4292680201
	LeaveRequestID            uint32 = 3592121337
	SayRequestID              uint32 = 999376688
	OnRoomMessageRequestID    uint32 = 673625236
)

// LoginRequest is the IChatLogin.Login request message.
type LoginRequest struct {
	message.Base
	Name string `json:"name"`
}

func (*LoginRequest) TypeID() uint32                   { return LoginRequestID }
func (*LoginRequest) Priority() message.Priority       { return message.Medium }
func (*LoginRequest) Reliability() message.Reliability { return message.ReliableOrdered }
func (*LoginRequest) LockType() message.LockType       { return message.LockFull }

func (m *LoginRequest) Serialize(w *message.Writer) error {
	if err := m.Base.Serialize(w); err != nil {
		return err
	}
	w.WriteString(m.Name)
	return w.Err()
}

func (m *LoginRequest) Deserialize(r *message.Reader) error {
	if err := m.Base.Deserialize(r); err != nil {
		return err
	}
	m.Name = r.ReadString()
	return r.Err()
}

// LoginReply is the IChatLogin.Login reply message.
type LoginReply struct {
	message.Base
	RetVal LoginResult `json:"ret_val"`
}

func (*LoginReply) TypeID() uint32                   { return LoginReplyID }
func (*LoginReply) Priority() message.Priority       { return message.Medium }
func (*LoginReply) Reliability() message.Reliability { return message.ReliableOrdered }
func (*LoginReply) LockType() message.LockType       { return message.LockFull }

func (m *LoginReply) Serialize(w *message.Writer) error {
	if err := m.Base.Serialize(w); err != nil {
		return err
	}
	w.WriteUint8(byte(m.RetVal))
	return w.Err()
}

func (m *LoginReply) Deserialize(r *message.Reader) error {
	if err := m.Base.Deserialize(r); err != nil {
		return err
	}
	m.RetVal = LoginResult(r.ReadUint8())
	return r.Err()
}

// GetRoomsRequest is the IChatService.GetRooms request message.
type GetRoomsRequest struct {
	message.Base
}

func (*GetRoomsRequest) TypeID() uint32                   { return GetRoomsRequestID }
func (*GetRoomsRequest) Priority() message.Priority       { return message.Medium }
func (*GetRoomsRequest) Reliability() message.Reliability { return message.ReliableOrdered }
func (*GetRoomsRequest) LockType() message.LockType       { return message.LockFull }

func (m *GetRoomsRequest) Serialize(w *message.Writer) error {
	if err := m.Base.Serialize(w); err != nil {
		return err
	}
	return w.Err()
}

func (m *GetRoomsRequest) Deserialize(r *message.Reader) error {
	if err := m.Base.Deserialize(r); err != nil {
		return err
	}
	return r.Err()
}

// GetRoomsReply is the IChatService.GetRooms reply message.
type GetRoomsReply struct {
	message.Base
	RetVal []*ChatRoomInfo `json:"ret_val"`
}

func (*GetRoomsReply) TypeID() uint32                   { return GetRoomsReplyID }
func (*GetRoomsReply) Priority() message.Priority       { return message.Medium }
func (*GetRoomsReply) Reliability() message.Reliability { return message.ReliableOrdered }
func (*GetRoomsReply) LockType() message.LockType       { return message.LockFull }

func (m *GetRoomsReply) Serialize(w *message.Writer) error {
	if err := m.Base.Serialize(w); err != nil {
		return err
	}
	message.WriteList(w, m.RetVal, writeRoomElem)
	return w.Err()
}

func (m *GetRoomsReply) Deserialize(r *message.Reader) error {
	if err := m.Base.Deserialize(r); err != nil {
		return err
	}
	m.RetVal = message.ReadList(r, readRoomElem)
	return r.Err()
}

// JoinOrCreateRoomRequest is the IChatService.JoinOrCreateRoom request message.
type JoinOrCreateRoomRequest struct {
	message.Base
	RoomName string `json:"room_name"`
}

func (*JoinOrCreateRoomRequest) TypeID() uint32                   { return JoinOrCreateRoomRequestID }
func (*JoinOrCreateRoomRequest) Priority() message.Priority       { return message.Medium }
func (*JoinOrCreateRoomRequest) Reliability() message.Reliability { return message.ReliableOrdered }
func (*JoinOrCreateRoomRequest) LockType() message.LockType       { return message.LockFull }

func (m *JoinOrCreateRoomRequest) Serialize(w *message.Writer) error {
	if err := m.Base.Serialize(w); err != nil {
		return err
	}
	w.WriteString(m.RoomName)
	return w.Err()
}

func (m *JoinOrCreateRoomRequest) Deserialize(r *message.Reader) error {
	if err := m.Base.Deserialize(r); err != nil {
		return err
	}
	m.RoomName = r.ReadString()
	return r.Err()
}

// JoinOrCreateRoomReply is the IChatService.JoinOrCreateRoom reply message.
type JoinOrCreateRoomReply struct {
	message.Base
	RetVal *JoinRoomResponse `json:"ret_val"`
}

func (*JoinOrCreateRoomReply) TypeID() uint32                   { return JoinOrCreateRoomReplyID }
func (*JoinOrCreateRoomReply) Priority() message.Priority       { return message.Medium }
func (*JoinOrCreateRoomReply) Reliability() message.Reliability { return message.ReliableOrdered }
func (*JoinOrCreateRoomReply) LockType() message.LockType       { return message.LockFull }

func (m *JoinOrCreateRoomReply) Serialize(w *message.Writer) error {
	if err := m.Base.Serialize(w); err != nil {
		return err
	}
	message.WriteOptional(w, m.RetVal, writeJoinRoomResponse)
	return w.Err()
}

func (m *JoinOrCreateRoomReply) Deserialize(r *message.Reader) error {
	if err := m.Base.Deserialize(r); err != nil {
		return err
	}
	m.RetVal = message.ReadOptional(r, readJoinRoomResponse)
	return r.Err()
}

// JoinRoomRequest is the IChatService.JoinRoom request message.
type JoinRoomRequest struct {
	message.Base
	RoomID uint32 `json:"room_id"`
}

func (*JoinRoomRequest) TypeID() uint32                   { return JoinRoomRequestID }
func (*JoinRoomRequest) Priority() message.Priority       { return message.Medium }
func (*JoinRoomRequest) Reliability() message.Reliability { return message.ReliableOrdered }
func (*JoinRoomRequest) LockType() message.LockType       { return message.LockFull }

func (m *JoinRoomRequest) Serialize(w *message.Writer) error {
	if err := m.Base.Serialize(w); err != nil {
		return err
	}
	w.WriteUint32(m.RoomID)
	return w.Err()
}

func (m *JoinRoomRequest) Deserialize(r *message.Reader) error {
	if err := m.Base.Deserialize(r); err != nil {
		return err
	}
	m.RoomID = r.ReadUint32()
	return r.Err()
}

// JoinRoomReply is the IChatService.JoinRoom reply message.
type JoinRoomReply struct {
	message.Base
	RetVal *JoinRoomResponse `json:"ret_val"`
}

func (*JoinRoomReply) TypeID() uint32                   { return JoinRoomReplyID }
func (*JoinRoomReply) Priority() message.Priority       { return message.Medium }
func (*JoinRoomReply) Reliability() message.Reliability { return message.ReliableOrdered }
func (*JoinRoomReply) LockType() message.LockType       { return message.LockFull }

func (m *JoinRoomReply) Serialize(w *message.Writer) error {
	if err := m.Base.Serialize(w); err != nil {
		return err
	}
	message.WriteOptional(w, m.RetVal, writeJoinRoomResponse)
	return w.Err()
}

func (m *JoinRoomReply) Deserialize(r *message.Reader) error {
	if err := m.Base.Deserialize(r); err != nil {
		return err
	}
	m.RetVal = message.ReadOptional(r, readJoinRoomResponse)
	return r.Err()
}

// RoomJoinRequest is the IChatRoomService.Join request message.
type RoomJoinRequest struct {
	message.Base
	Ticket int64 `json:"ticket"`
}

func (*RoomJoinRequest) TypeID() uint32                   { return RoomJoinRequestID }
func (*RoomJoinRequest) Priority() message.Priority       { return message.Medium }
func (*RoomJoinRequest) Reliability() message.Reliability { return message.ReliableOrdered }
func (*RoomJoinRequest) LockType() message.LockType       { return message.LockFull }

func (m *RoomJoinRequest) Serialize(w *message.Writer) error {
	if err := m.Base.Serialize(w); err != nil {
		return err
	}
	w.WriteInt64(m.Ticket)
	return w.Err()
}

func (m *RoomJoinRequest) Deserialize(r *message.Reader) error {
	if err := m.Base.Deserialize(r); err != nil {
		return err
	}
	m.Ticket = r.ReadInt64()
	return r.Err()
}

// RoomJoinReply is the IChatRoomService.Join reply message.
type RoomJoinReply struct {
	message.Base
	RetVal []string `json:"ret_val"`
}

func (*RoomJoinReply) TypeID() uint32                   { return RoomJoinReplyID }
func (*RoomJoinReply) Priority() message.Priority       { return message.Medium }
func (*RoomJoinReply) Reliability() message.Reliability { return message.ReliableOrdered }
func (*RoomJoinReply) LockType() message.LockType       { return message.LockFull }

func (m *RoomJoinReply) Serialize(w *message.Writer) error {
	if err := m.Base.Serialize(w); err != nil {
		return err
	}
	message.WriteList(w, m.RetVal, writeStringElem)
	return w.Err()
}

func (m *RoomJoinReply) Deserialize(r *message.Reader) error {
	if err := m.Base.Deserialize(r); err != nil {
		return err
	}
	m.RetVal = message.ReadList(r, readStringElem)
	return r.Err()
}

// LeaveRequest is the IChatRoomService.Leave message.
type LeaveRequest struct {
	message.Base
}

func (*LeaveRequest) TypeID() uint32                   { return LeaveRequestID }
func (*LeaveRequest) Priority() message.Priority       { return message.Medium }
func (*LeaveRequest) Reliability() message.Reliability { return message.ReliableOrdered }
func (*LeaveRequest) LockType() message.LockType       { return message.LockFull }

func (m *LeaveRequest) Serialize(w *message.Writer) error {
	if err := m.Base.Serialize(w); err != nil {
		return err
	}
	return w.Err()
}

func (m *LeaveRequest) Deserialize(r *message.Reader) error {
	if err := m.Base.Deserialize(r); err != nil {
		return err
	}
	return r.Err()
}

// SayRequest is the IChatRoomService.Say message.
type SayRequest struct {
	message.Base
	Message string `json:"message"`
}

func (*SayRequest) TypeID() uint32                   { return SayRequestID }
func (*SayRequest) Priority() message.Priority       { return message.Medium }
func (*SayRequest) Reliability() message.Reliability { return message.ReliableOrdered }
func (*SayRequest) LockType() message.LockType       { return message.LockFull }

func (m *SayRequest) Serialize(w *message.Writer) error {
	if err := m.Base.Serialize(w); err != nil {
		return err
	}
	w.WriteString(m.Message)
	return w.Err()
}

func (m *SayRequest) Deserialize(r *message.Reader) error {
	if err := m.Base.Deserialize(r); err != nil {
		return err
	}
	m.Message = r.ReadString()
	return r.Err()
}

// OnRoomMessageRequest is the IChatRoomServiceCallback.OnRoomMessage message.
type OnRoomMessageRequest struct {
	message.Base
	RoomID  uint32 `json:"room_id"`
	Message string `json:"message"`
}

func (*OnRoomMessageRequest) TypeID() uint32                   { return OnRoomMessageRequestID }
func (*OnRoomMessageRequest) Priority() message.Priority       { return message.Medium }
func (*OnRoomMessageRequest) Reliability() message.Reliability { return message.ReliableOrdered }
func (*OnRoomMessageRequest) LockType() message.LockType       { return message.LockFull }

func (m *OnRoomMessageRequest) Serialize(w *message.Writer) error {
	if err := m.Base.Serialize(w); err != nil {
		return err
	}
	w.WriteUint32(m.RoomID)
	w.WriteString(m.Message)
	return w.Err()
}

func (m *OnRoomMessageRequest) Deserialize(r *message.Reader) error {
	if err := m.Base.Deserialize(r); err != nil {
		return err
	}
	m.RoomID = r.ReadUint32()
	m.Message = r.ReadString()
	return r.Err()
}
