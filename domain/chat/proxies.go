package chat

import (
	"node-rpc/future"
	"node-rpc/proxy"
)

type ChatLoginProxy struct {
	proxy.ServiceProxy
}

func NewChatLoginProxy(target proxy.Target, serviceID uint64) *ChatLoginProxy {
	p := &ChatLoginProxy{}
	p.Init(serviceID, ChatLoginContract, target)
	return p
}

func (p *ChatLoginProxy) Login(name string) *future.Future[LoginResult] {
	request := &LoginRequest{Name: name}
	reply := proxy.Reply[*LoginReply](p.ExecuteServiceOperation(request))
	return future.Map(reply, func(r *LoginReply) (LoginResult, error) { return r.RetVal, nil })
}

type ChatServiceProxy struct {
	proxy.ServiceProxy
}

func NewChatServiceProxy(target proxy.Target, serviceID uint64) *ChatServiceProxy {
	p := &ChatServiceProxy{}
	p.Init(serviceID, ChatServiceContract, target)
	return p
}

func (p *ChatServiceProxy) GetRooms() *future.Future[[]*ChatRoomInfo] {
	request := &GetRoomsRequest{}
	reply := proxy.Reply[*GetRoomsReply](p.ExecuteServiceOperation(request))
	return future.Map(reply, func(r *GetRoomsReply) ([]*ChatRoomInfo, error) { return r.RetVal, nil })
}

func (p *ChatServiceProxy) JoinOrCreateRoom(roomName string) *future.Future[*JoinRoomResponse] {
	request := &JoinOrCreateRoomRequest{RoomName: roomName}
	reply := proxy.Reply[*JoinOrCreateRoomReply](p.ExecuteServiceOperation(request))
	return future.Map(reply, func(r *JoinOrCreateRoomReply) (*JoinRoomResponse, error) { return r.RetVal, nil })
}

func (p *ChatServiceProxy) JoinRoom(roomID uint32) *future.Future[*JoinRoomResponse] {
	request := &JoinRoomRequest{RoomID: roomID}
	reply := proxy.Reply[*JoinRoomReply](p.ExecuteServiceOperation(request))
	return future.Map(reply, func(r *JoinRoomReply) (*JoinRoomResponse, error) { return r.RetVal, nil })
}

type ChatRoomServiceProxy struct {
	proxy.ServiceProxy
}

func NewChatRoomServiceProxy(target proxy.Target, serviceID uint64) *ChatRoomServiceProxy {
	p := &ChatRoomServiceProxy{}
	p.Init(serviceID, ChatRoomServiceContract, target)
	return p
}

func (p *ChatRoomServiceProxy) Join(ticket int64) *future.Future[[]string] {
	request := &RoomJoinRequest{Ticket: ticket}
	reply := proxy.Reply[*RoomJoinReply](p.ExecuteServiceOperation(request))
	return future.Map(reply, func(r *RoomJoinReply) ([]string, error) { return r.RetVal, nil })
}

func (p *ChatRoomServiceProxy) Leave() error {
	return p.ExecuteOneWayServiceOperation(&LeaveRequest{})
}

func (p *ChatRoomServiceProxy) Say(message string) error {
	return p.ExecuteOneWayServiceOperation(&SayRequest{Message: message})
}

type ChatRoomServiceCallbackProxy struct {
	proxy.ServiceProxy
}

func NewChatRoomServiceCallbackProxy(target proxy.Target, serviceID uint64) *ChatRoomServiceCallbackProxy {
	p := &ChatRoomServiceCallbackProxy{}
	p.Init(serviceID, ChatRoomServiceCallbackContract, target)
	return p
}

func (p *ChatRoomServiceCallbackProxy) OnRoomMessage(roomID uint32, message string) error {
	return p.ExecuteOneWayServiceOperation(&OnRoomMessageRequest{RoomID: roomID, Message: message})
}
