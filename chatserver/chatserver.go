// Package chatserver hosts the chat services on a node.
//
// Three services share one Server state: Login (unique names per session), Lobby
// (room listing and join tickets) and one Room instance per room. A client logs in,
// asks the lobby for a ticket, then redeems the ticket on the room, possibly over a
// separate external session. Room traffic is pushed to every member through the
// ChatRoomServiceCallback service the member hosts under RoomServiceID(room).
package chatserver

import (
	"context"
	"math/rand/v2"
	"sort"

	"node-rpc/domain/chat"
	"node-rpc/message"
	"node-rpc/node"
	"node-rpc/registry"
	"node-rpc/server"

	"github.com/pkg/errors"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
)

// Well-known service ids on the chat node.
const (
	LoginServiceID uint64 = 1
	LobbyServiceID uint64 = 2

	roomServiceBase uint64 = 1 << 32
)

const DefaultHistorySize = 100

var (
	ErrNoOperation = errors.New("chatserver: called outside an operation")
	ErrNotLoggedIn = errors.New("chatserver: session is not logged in")
	ErrNotMember   = errors.New("chatserver: session is not a room member")
	ErrNoRoom      = errors.New("chatserver: room does not exist")
	ErrNotAttached = errors.New("chatserver: not attached to a service host")
)

// RoomServiceID is the service id of a room, both for the room on the chat node and
// for the member's callback service.
func RoomServiceID(roomID uint32) uint64 { return roomServiceBase + uint64(roomID) }

type member struct {
	name     string
	callback *chat.ChatRoomServiceCallbackProxy
}

type room struct {
	id      uint32
	name    string
	history []string
	members map[server.Channel]*member
}

type ticket struct {
	roomID uint32
	name   string
}

type Server struct {
	endpoint    string
	historySize int
	log         *logrus.Entry

	loginDesc *registry.ServiceDescription
	lobbyDesc *registry.ServiceDescription
	roomDesc  *registry.ServiceDescription

	mu          deadlock.Mutex
	host        *server.Server
	names       map[string]server.Channel
	clients     map[server.Channel]string
	rooms       map[uint32]*room
	roomsByName map[string]*room
	tickets     map[int64]ticket
	lastRoomID  uint32
}

// New returns the chat state. endpoint is handed to clients in JoinRoomResponse as
// the address to reach rooms on.
func New(endpoint string, historySize int, log *logrus.Entry) *Server {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	s := &Server{
		endpoint:    endpoint,
		historySize: historySize,
		log:         log.WithField("component", "chat"),
		names:       make(map[string]server.Channel),
		clients:     make(map[server.Channel]string),
		rooms:       make(map[uint32]*room),
		roomsByName: make(map[string]*room),
		tickets:     make(map[int64]ticket),
	}
	s.loginDesc = &registry.ServiceDescription{
		Name:       "ChatLogin",
		Contract:   chat.ChatLoginContract,
		Persistent: true,
		New:        func() any { return &loginService{s} },
	}
	s.lobbyDesc = &registry.ServiceDescription{
		Name:       "ChatLobby",
		Contract:   chat.ChatServiceContract,
		Persistent: true,
		New:        func() any { return &lobbyService{s} },
	}
	s.roomDesc = &registry.ServiceDescription{
		Name:       "ChatRoom",
		Contract:   chat.ChatRoomServiceContract,
		Persistent: true,
		New:        func() any { return &roomService{s} },
	}
	return s
}

// Register adds the chat contracts and the chat services to b.
func (s *Server) Register(b *registry.Builder) *registry.Builder {
	return b.AddContract(chat.Contracts()...).AddService(s.loginDesc, s.lobbyDesc, s.roomDesc)
}

// Host creates the login and lobby instances on svr. Rooms are created there too as
// clients ask for them.
func (s *Server) Host(svr *server.Server) error {
	if _, err := svr.CreateService(s.loginDesc, LoginServiceID); err != nil {
		return err
	}
	if _, err := svr.CreateService(s.lobbyDesc, LobbyServiceID); err != nil {
		return err
	}
	s.mu.Lock()
	s.host = svr
	s.mu.Unlock()
	return nil
}

// Attach hosts the services on n and forgets sessions as they disconnect.
func (s *Server) Attach(n *node.Node) error {
	if err := s.Host(n.Server()); err != nil {
		return err
	}
	n.OnNodeDisconnected(func(p *node.NodeProxy) { s.Forget(p) })
	return nil
}

// Forget drops everything held for a session: its login name, its room
// memberships and its outstanding tickets.
func (s *Server) Forget(ch server.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.clients[ch]
	if ok {
		delete(s.clients, ch)
		delete(s.names, name)
		for t, tk := range s.tickets {
			if tk.name == name {
				delete(s.tickets, t)
			}
		}
	}
	for _, r := range s.rooms {
		delete(r.members, ch)
	}
	if ok {
		s.log.WithField("name", name).Info("client gone")
	}
}

// Rooms returns the rooms ordered by id.
func (s *Server) Rooms() []*chat.ChatRoomInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*chat.ChatRoomInfo, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, &chat.ChatRoomInfo{ID: r.id, Name: r.name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func source(ctx context.Context) (server.Channel, error) {
	octx, ok := server.FromContext(ctx)
	if !ok || octx.Source == nil {
		return nil, errors.WithStack(ErrNoOperation)
	}
	return octx.Source, nil
}

func (s *Server) login(ctx context.Context, name string) (chat.LoginResult, error) {
	src, err := source(ctx)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.names[name]; ok {
		if owner == src {
			return chat.LoginAlreadyRegistered, nil
		}
		return chat.LoginNameInUse, nil
	}
	if _, ok := s.clients[src]; ok {
		return chat.LoginAlreadyRegistered, nil
	}
	s.names[name] = src
	s.clients[src] = name
	s.log.WithField("name", name).Info("client logged in")
	return chat.LoginOk, nil
}

// issueTicketLocked admits the caller's login name to r. Callers that are not
// logged in get no ticket.
func (s *Server) issueTicketLocked(src server.Channel, r *room) (*chat.JoinRoomResponse, error) {
	name, ok := s.clients[src]
	if !ok {
		s.log.WithError(ErrNotLoggedIn).WithField("room", r.id).Info("join refused")
		return nil, nil
	}
	t := rand.Int64()
	for _, taken := s.tickets[t]; taken; _, taken = s.tickets[t] {
		t = rand.Int64()
	}
	s.tickets[t] = ticket{roomID: r.id, name: name}
	return &chat.JoinRoomResponse{RoomID: r.id, Ticket: t, ServerEndpoint: s.endpoint}, nil
}

func (s *Server) joinOrCreate(ctx context.Context, roomName string) (*chat.JoinRoomResponse, error) {
	src, err := source(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[src]; !ok {
		s.log.WithError(ErrNotLoggedIn).WithField("room", roomName).Info("join refused")
		return nil, nil
	}
	r, ok := s.roomsByName[roomName]
	if !ok {
		if s.host == nil {
			return nil, errors.WithStack(ErrNotAttached)
		}
		id := s.lastRoomID + 1
		if _, err := s.host.CreateService(s.roomDesc, RoomServiceID(id)); err != nil {
			return nil, errors.Wrapf(err, "create room %q", roomName)
		}
		s.lastRoomID = id
		r = &room{id: id, name: roomName, members: make(map[server.Channel]*member)}
		s.rooms[id] = r
		s.roomsByName[roomName] = r
		s.log.WithFields(logrus.Fields{"room": id, "name": roomName}).Info("room created")
	}
	return s.issueTicketLocked(src, r)
}

// joinRoom answers nil for an unknown room or a caller that is not logged in.
func (s *Server) joinRoom(ctx context.Context, roomID uint32) (*chat.JoinRoomResponse, error) {
	src, err := source(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		s.log.WithField("room", roomID).WithError(chat.RoomNotFound).Info("join refused")
		return nil, nil
	}
	return s.issueTicketLocked(src, r)
}

// roomFor resolves the room an operation is addressed to from its ServiceHeader.
func (s *Server) roomFor(ctx context.Context) (server.Channel, *room, error) {
	octx, ok := server.FromContext(ctx)
	if !ok || octx.Source == nil {
		return nil, nil, errors.WithStack(ErrNoOperation)
	}
	hdr, err := message.GetServiceHeader(octx.Message)
	if err != nil {
		return nil, nil, err
	}
	r, ok := s.rooms[uint32(hdr.ServiceID-roomServiceBase)]
	if !ok {
		return nil, nil, errors.Wrapf(ErrNoRoom, "service %d", hdr.ServiceID)
	}
	return octx.Source, r, nil
}

func callbackFor(src server.Channel, roomID uint32) *chat.ChatRoomServiceCallbackProxy {
	if np, ok := src.(*node.NodeProxy); ok {
		return node.GetProxy(np, RoomServiceID(roomID), chat.NewChatRoomServiceCallbackProxy)
	}
	return chat.NewChatRoomServiceCallbackProxy(src, RoomServiceID(roomID))
}

// join redeems t and returns the room history. A nil history means the ticket was
// not issued for this room.
func (s *Server) join(ctx context.Context, t int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, r, err := s.roomFor(ctx)
	if err != nil {
		return nil, err
	}
	tk, ok := s.tickets[t]
	if !ok || tk.roomID != r.id {
		s.log.WithField("room", r.id).WithError(chat.ClientNotAwaited).Info("join refused")
		return nil, nil
	}
	delete(s.tickets, t)
	r.members[src] = &member{name: tk.name, callback: callbackFor(src, r.id)}
	s.log.WithFields(logrus.Fields{"room": r.id, "name": tk.name}).Info("joined room")

	return append(make([]string, 0, len(r.history)), r.history...), nil
}

func (s *Server) leave(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, r, err := s.roomFor(ctx)
	if err != nil {
		return err
	}
	m, ok := r.members[src]
	if !ok {
		return errors.WithStack(ErrNotMember)
	}
	delete(r.members, src)
	s.log.WithFields(logrus.Fields{"room": r.id, "name": m.name}).Info("left room")
	return nil
}

// say records the line and pushes it to every member, the speaker included.
func (s *Server) say(ctx context.Context, text string) error {
	s.mu.Lock()
	src, r, err := s.roomFor(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	m, ok := r.members[src]
	if !ok {
		s.mu.Unlock()
		return errors.WithStack(ErrNotMember)
	}
	line := m.name + ": " + text
	r.history = append(r.history, line)
	if over := len(r.history) - s.historySize; over > 0 {
		r.history = append(r.history[:0], r.history[over:]...)
	}
	callbacks := make([]*member, 0, len(r.members))
	for _, other := range r.members {
		callbacks = append(callbacks, other)
	}
	roomID := r.id
	s.mu.Unlock()

	for _, other := range callbacks {
		if err := other.callback.OnRoomMessage(roomID, line); err != nil {
			s.log.WithError(err).WithField("name", other.name).Warn("room message not delivered")
		}
	}
	return nil
}

type loginService struct{ s *Server }

func (l *loginService) Login(ctx context.Context, name string) (chat.LoginResult, error) {
	return l.s.login(ctx, name)
}

type lobbyService struct{ s *Server }

func (l *lobbyService) GetRooms(context.Context) ([]*chat.ChatRoomInfo, error) {
	return l.s.Rooms(), nil
}

func (l *lobbyService) JoinOrCreateRoom(ctx context.Context, roomName string) (*chat.JoinRoomResponse, error) {
	return l.s.joinOrCreate(ctx, roomName)
}

func (l *lobbyService) JoinRoom(ctx context.Context, roomID uint32) (*chat.JoinRoomResponse, error) {
	return l.s.joinRoom(ctx, roomID)
}

type roomService struct{ s *Server }

func (r *roomService) Join(ctx context.Context, t int64) ([]string, error) { return r.s.join(ctx, t) }
func (r *roomService) Leave(ctx context.Context) error                     { return r.s.leave(ctx) }
func (r *roomService) Say(ctx context.Context, text string) error          { return r.s.say(ctx, text) }
