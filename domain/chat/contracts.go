package chat

import (
	"context"

	"node-rpc/message"
	"node-rpc/registry"

	"github.com/pkg/errors"
)

// Contract type ids.
const (
	ChatLoginContractID               uint32 = 1279047273
	ChatServiceContractID             uint32 = 4131147598
	ChatRoomServiceContractID         uint32 = 2616972471
	ChatRoomServiceCallbackContractID uint32 = 3421052361
)

// ChatLogin registers a client under a unique name.
type ChatLogin interface {
	Login(ctx context.Context, name string) (LoginResult, error)
}

// ChatService lists rooms and admits clients to them.
type ChatService interface {
	GetRooms(ctx context.Context) ([]*ChatRoomInfo, error)
	JoinOrCreateRoom(ctx context.Context, roomName string) (*JoinRoomResponse, error)
	JoinRoom(ctx context.Context, roomID uint32) (*JoinRoomResponse, error)
}

// ChatRoomService is one room. Clients reach it directly, so it accepts external
// connections.
type ChatRoomService interface {
	Join(ctx context.Context, ticket int64) ([]string, error)
	Leave(ctx context.Context) error
	Say(ctx context.Context, message string) error
}

// ChatRoomServiceCallback is hosted by room members to receive room traffic.
type ChatRoomServiceCallback interface {
	OnRoomMessage(ctx context.Context, roomID uint32, message string) error
}

var ErrWrongImplementation = errors.New("chat: service does not implement the contract")

func implAs[T any](impl any) (T, error) {
	svc, ok := impl.(T)
	if !ok {
		var zero T
		return zero, errors.Wrapf(ErrWrongImplementation, "%T is not %T", impl, &zero)
	}
	return svc, nil
}

var ChatLoginContract = &registry.ContractDescription{
	TypeID: ChatLoginContractID,
	Name:   "Protocol.Generated.IChatLogin",
	Operations: []*registry.OperationDescription{
		{
			Name:       "Login",
			RequestID:  LoginRequestID,
			ReplyID:    LoginReplyID,
			HasReply:   true,
			NewRequest: func() message.Message { return &LoginRequest{} },
			NewReply:   func() message.Message { return &LoginReply{} },
			Dispatch:   dispatchLogin,
		},
	},
}

func dispatchLogin(ctx context.Context, impl any, input message.Message) (message.Message, error) {
	svc, err := implAs[ChatLogin](impl)
	if err != nil {
		return nil, err
	}
	msg := input.(*LoginRequest)
	retVal, err := svc.Login(ctx, msg.Name)
	if err != nil {
		return nil, err
	}
	return &LoginReply{RetVal: retVal}, nil
}

var ChatServiceContract = &registry.ContractDescription{
	TypeID: ChatServiceContractID,
	Name:   "Protocol.Generated.IChatService",
	Operations: []*registry.OperationDescription{
		{
			Name:       "GetRooms",
			RequestID:  GetRoomsRequestID,
			ReplyID:    GetRoomsReplyID,
			HasReply:   true,
			NewRequest: func() message.Message { return &GetRoomsRequest{} },
			NewReply:   func() message.Message { return &GetRoomsReply{} },
			Dispatch:   dispatchGetRooms,
		},
		{
			Name:       "JoinOrCreateRoom",
			RequestID:  JoinOrCreateRoomRequestID,
			ReplyID:    JoinOrCreateRoomReplyID,
			HasReply:   true,
			NewRequest: func() message.Message { return &JoinOrCreateRoomRequest{} },
			NewReply:   func() message.Message { return &JoinOrCreateRoomReply{} },
			Dispatch:   dispatchJoinOrCreateRoom,
		},
		{
			Name:       "JoinRoom",
			RequestID:  JoinRoomRequestID,
			ReplyID:    JoinRoomReplyID,
			HasReply:   true,
			NewRequest: func() message.Message { return &JoinRoomRequest{} },
			NewReply:   func() message.Message { return &JoinRoomReply{} },
			Dispatch:   dispatchJoinRoom,
		},
	},
}

func dispatchGetRooms(ctx context.Context, impl any, input message.Message) (message.Message, error) {
	svc, err := implAs[ChatService](impl)
	if err != nil {
		return nil, err
	}
	retVal, err := svc.GetRooms(ctx)
	if err != nil {
		return nil, err
	}
	return &GetRoomsReply{RetVal: retVal}, nil
}

func dispatchJoinOrCreateRoom(ctx context.Context, impl any, input message.Message) (message.Message, error) {
	svc, err := implAs[ChatService](impl)
	if err != nil {
		return nil, err
	}
	msg := input.(*JoinOrCreateRoomRequest)
	retVal, err := svc.JoinOrCreateRoom(ctx, msg.RoomName)
	if err != nil {
		return nil, err
	}
	return &JoinOrCreateRoomReply{RetVal: retVal}, nil
}

func dispatchJoinRoom(ctx context.Context, impl any, input message.Message) (message.Message, error) {
	svc, err := implAs[ChatService](impl)
	if err != nil {
		return nil, err
	}
	msg := input.(*JoinRoomRequest)
	retVal, err := svc.JoinRoom(ctx, msg.RoomID)
	if err != nil {
		return nil, err
	}
	return &JoinRoomReply{RetVal: retVal}, nil
}

var ChatRoomServiceContract = &registry.ContractDescription{
	TypeID:                   ChatRoomServiceContractID,
	Name:                     "Protocol.Generated.IChatRoomService",
	AllowExternalConnections: true,
	Operations: []*registry.OperationDescription{
		{
			Name:       "Join",
			RequestID:  RoomJoinRequestID,
			ReplyID:    RoomJoinReplyID,
			HasReply:   true,
			NewRequest: func() message.Message { return &RoomJoinRequest{} },
			NewReply:   func() message.Message { return &RoomJoinReply{} },
			Dispatch:   dispatchJoin,
		},
		{
			Name:       "Leave",
			RequestID:  LeaveRequestID,
			NewRequest: func() message.Message { return &LeaveRequest{} },
			Dispatch:   dispatchLeave,
		},
		{
			Name:       "Say",
			RequestID:  SayRequestID,
			NewRequest: func() message.Message { return &SayRequest{} },
			Dispatch:   dispatchSay,
		},
	},
}

func dispatchJoin(ctx context.Context, impl any, input message.Message) (message.Message, error) {
	svc, err := implAs[ChatRoomService](impl)
	if err != nil {
		return nil, err
	}
	msg := input.(*RoomJoinRequest)
	retVal, err := svc.Join(ctx, msg.Ticket)
	if err != nil {
		return nil, err
	}
	return &RoomJoinReply{RetVal: retVal}, nil
}

func dispatchLeave(ctx context.Context, impl any, input message.Message) (message.Message, error) {
	svc, err := implAs[ChatRoomService](impl)
	if err != nil {
		return nil, err
	}
	return nil, svc.Leave(ctx)
}

func dispatchSay(ctx context.Context, impl any, input message.Message) (message.Message, error) {
	svc, err := implAs[ChatRoomService](impl)
	if err != nil {
		return nil, err
	}
	msg := input.(*SayRequest)
	return nil, svc.Say(ctx, msg.Message)
}

var ChatRoomServiceCallbackContract = &registry.ContractDescription{
	TypeID: ChatRoomServiceCallbackContractID,
	Name:   "Protocol.Generated.IChatRoomServiceCallback",
	Operations: []*registry.OperationDescription{
		{
			Name:       "OnRoomMessage",
			RequestID:  OnRoomMessageRequestID,
			NewRequest: func() message.Message { return &OnRoomMessageRequest{} },
			Dispatch:   dispatchOnRoomMessage,
		},
	},
}

func dispatchOnRoomMessage(ctx context.Context, impl any, input message.Message) (message.Message, error) {
	svc, err := implAs[ChatRoomServiceCallback](impl)
	if err != nil {
		return nil, err
	}
	msg := input.(*OnRoomMessageRequest)
	return nil, svc.OnRoomMessage(ctx, msg.RoomID, msg.Message)
}

// Contracts returns every chat contract in declaration order.
func Contracts() []*registry.ContractDescription {
	return []*registry.ContractDescription{
		ChatLoginContract,
		ChatServiceContract,
		ChatRoomServiceContract,
		ChatRoomServiceCallbackContract,
	}
}
