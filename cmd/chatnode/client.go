package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"node-rpc/chatserver"
	"node-rpc/client"
	"node-rpc/config"
	"node-rpc/domain/chat"
	"node-rpc/loadbalance"
	"node-rpc/node"
	"node-rpc/registry"

	"github.com/fatih/color"
	"github.com/pkg/errors"
)

// chatSession is one CLI invocation talking to a chat node.
type chatSession struct {
	cfg    *config.Config
	client *client.Client
}

// withClient runs fn against a started client. key is what the consistent hash
// balancer places the caller by.
func withClient(configPath, key string, fn func(*chatSession) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, closeLog, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ncfg, err := nodeConfig(cfg, nodeID())
	if err != nil {
		return err
	}
	network, err := newNetwork(cfg.Node.Transport)
	if err != nil {
		return err
	}
	reg, err := registry.NewBuilder().AddContract(chat.Contracts()...).Build()
	if err != nil {
		return err
	}
	n, err := node.New(reg, network, ncfg, logger.WithField("app", "chatnode"))
	if err != nil {
		return err
	}

	bal, err := loadbalance.New(cfg.Client.Balancer, key)
	if err != nil {
		return err
	}
	endpoints := make([]loadbalance.Endpoint, 0, len(cfg.Client.Servers))
	for _, s := range cfg.Client.Servers {
		endpoints = append(endpoints, loadbalance.Endpoint{Addr: s})
	}

	c := client.New(n, bal, endpoints)
	if err := c.Start(pumpTick); err != nil {
		return err
	}
	defer c.Close()
	return fn(&chatSession{cfg: cfg, client: c})
}

func (s *chatSession) callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.cfg.Client.CallTimeout())
}

func (s *chatSession) session() (*node.NodeProxy, error) {
	ctx, cancel := s.callCtx()
	defer cancel()
	return s.client.Session(ctx)
}

func (s *chatSession) login(name string) error {
	p, err := s.session()
	if err != nil {
		return err
	}
	ctx, cancel := s.callCtx()
	defer cancel()
	res, err := node.GetProxy(p, chatserver.LoginServiceID, chat.NewChatLoginProxy).Login(name).Wait(ctx)
	if err != nil {
		return errors.Wrap(err, "login")
	}
	if res != chat.LoginOk {
		fmt.Println(color.RedString("login %s: %s", name, res))
		return errors.Errorf("login refused: %s", res)
	}
	fmt.Println(color.GreenString("logged in as %s", name))
	return nil
}

func (s *chatSession) rooms() error {
	p, err := s.session()
	if err != nil {
		return err
	}
	ctx, cancel := s.callCtx()
	defer cancel()
	rooms, err := node.GetProxy(p, chatserver.LobbyServiceID, chat.NewChatServiceProxy).GetRooms().Wait(ctx)
	if err != nil {
		return errors.Wrap(err, "get rooms")
	}
	if len(rooms) == 0 {
		fmt.Println(color.YellowString("no rooms yet"))
	}
	for _, r := range rooms {
		if r == nil {
			continue
		}
		fmt.Printf("%s %s\n", color.CyanString("%4d", r.ID), r.Name)
	}
	return nil
}

// printer is the room callback service of the CLI: every line goes to stdout.
type printer struct {
	self string
}

func (p *printer) OnRoomMessage(_ context.Context, _ uint32, line string) error {
	if strings.HasPrefix(line, p.self+": ") {
		fmt.Println(color.HiBlackString("%s", line))
		return nil
	}
	fmt.Println(line)
	return nil
}

func (s *chatSession) join(name, roomName string, in io.Reader) error {
	if err := s.login(name); err != nil {
		return err
	}
	p, err := s.session()
	if err != nil {
		return err
	}
	ctx, cancel := s.callCtx()
	resp, err := node.GetProxy(p, chatserver.LobbyServiceID, chat.NewChatServiceProxy).JoinOrCreateRoom(roomName).Wait(ctx)
	cancel()
	if err != nil {
		return errors.Wrap(err, "join or create room")
	}
	if resp == nil {
		return errors.Errorf("room %q refused the join", roomName)
	}

	// the room may live behind a different endpoint than the lobby
	n := s.client.Node()
	ctx, cancel = s.callCtx()
	roomSession, err := n.Connect(resp.ServerEndpoint).Wait(ctx)
	cancel()
	if err != nil {
		return errors.Wrapf(err, "connect to room server %s", resp.ServerEndpoint)
	}

	callback := &registry.ServiceDescription{
		Name:     "RoomPrinter",
		Contract: chat.ChatRoomServiceCallbackContract,
		New:      func() any { return &printer{self: name} },
	}
	if _, err := n.Server().CreateService(callback, chatserver.RoomServiceID(resp.RoomID)); err != nil {
		return err
	}

	room := node.GetProxy(roomSession, chatserver.RoomServiceID(resp.RoomID), chat.NewChatRoomServiceProxy)
	ctx, cancel = s.callCtx()
	history, err := room.Join(resp.Ticket).Wait(ctx)
	cancel()
	if err != nil {
		return errors.Wrap(err, "join room")
	}
	if history == nil {
		return errors.Errorf("ticket for room %q was not accepted", roomName)
	}

	fmt.Println(color.GreenString("joined %s (room %d), %d lines of history", roomName, resp.RoomID, len(history)))
	for _, line := range history {
		fmt.Println(color.HiBlackString("%s", line))
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := room.Say(text); err != nil {
			return errors.Wrap(err, "say")
		}
	}
	if err := room.Leave(); err != nil {
		return errors.Wrap(err, "leave")
	}
	return scanner.Err()
}
