// Package quic carries node links over QUIC. Each connection has one bidirectional
// stream, opened by the dialer, for reliable frames, and uses QUIC datagrams for
// unreliable ones.
package quic

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"io"
	"math/big"
	"net"
	"sync"
	"time"

	"node-rpc/transport"

	"github.com/pkg/errors"
	quicgo "github.com/quic-go/quic-go"
)

const (
	alpn = "node-rpc"

	// acceptStreamTimeout bounds how long an accepted connection may go without
	// opening its stream.
	acceptStreamTimeout = 5 * time.Second

	codeNormal quicgo.ApplicationErrorCode = 0
)

var ErrListenerClosed = errors.New("quic: listener closed")

// Network dials and listens on QUIC with an ephemeral self-signed certificate.
// Peers authenticate each other in the node handshake, not in TLS.
type Network struct {
	server *tls.Config
	client *tls.Config
	conf   *quicgo.Config
}

func New() (*Network, error) {
	cert, err := selfSignedCert()
	if err != nil {
		return nil, errors.Wrap(err, "quic: certificate")
	}
	return &Network{
		server: &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{alpn},
			MinVersion:   tls.VersionTLS13,
		},
		client: &tls.Config{
			InsecureSkipVerify: true,
			NextProtos:         []string{alpn},
			MinVersion:         tls.VersionTLS13,
		},
		conf: &quicgo.Config{
			EnableDatagrams: true,
			KeepAlivePeriod: 2 * time.Second,
			MaxIdleTimeout:  30 * time.Second,
		},
	}, nil
}

func (n *Network) Dial(ctx context.Context, addr string) (transport.Link, error) {
	conn, err := quicgo.DialAddr(ctx, addr, n.client, n.conf)
	if err != nil {
		return nil, errors.Wrapf(err, "quic: dial %s", addr)
	}
	st, err := openStream(ctx, conn.OpenStreamSync)
	if err != nil {
		_ = conn.CloseWithError(codeNormal, "no stream")
		return nil, errors.Wrap(err, "quic: open stream")
	}
	return &link{
		stream:  st,
		local:   conn.LocalAddr(),
		remote:  conn.RemoteAddr(),
		send:    conn.SendDatagram,
		receive: conn.ReceiveDatagram,
		closeFn: conn.CloseWithError,
	}, nil
}

func (n *Network) Listen(addr string) (transport.Listener, error) {
	ql, err := quicgo.ListenAddr(addr, n.server, n.conf)
	if err != nil {
		return nil, errors.Wrapf(err, "quic: listen %s", addr)
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &listener{
		addr:    ql.Addr(),
		closeFn: ql.Close,
		links:   make(chan transport.Link),
		ctx:     ctx,
		cancel:  cancel,
	}
	go l.acceptLoop(func(ctx context.Context) (acceptedConn, error) {
		conn, err := ql.Accept(ctx)
		if err != nil {
			return acceptedConn{}, err
		}
		return acceptedConn{
			acceptStream: func(ctx context.Context) (io.ReadWriteCloser, error) {
				return openStream(ctx, conn.AcceptStream)
			},
			local:   conn.LocalAddr(),
			remote:  conn.RemoteAddr(),
			send:    conn.SendDatagram,
			receive: conn.ReceiveDatagram,
			closeFn: conn.CloseWithError,
		}, nil
	})
	return l, nil
}

// openStream adapts a quic-go stream constructor to a plain io.ReadWriteCloser.
func openStream[S io.ReadWriteCloser](ctx context.Context, open func(context.Context) (S, error)) (io.ReadWriteCloser, error) {
	st, err := open(ctx)
	if err != nil {
		return nil, err
	}
	return st, nil
}

type acceptedConn struct {
	acceptStream func(context.Context) (io.ReadWriteCloser, error)
	local        net.Addr
	remote       net.Addr
	send         func([]byte) error
	receive      func(context.Context) ([]byte, error)
	closeFn      func(quicgo.ApplicationErrorCode, string) error
}

type listener struct {
	addr    net.Addr
	closeFn func() error
	links   chan transport.Link

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (l *listener) acceptLoop(accept func(context.Context) (acceptedConn, error)) {
	for {
		ac, err := accept(l.ctx)
		if err != nil {
			return
		}
		go l.awaitStream(ac)
	}
}

// awaitStream waits for the dialer's stream so that Accept only returns usable links.
func (l *listener) awaitStream(ac acceptedConn) {
	ctx, cancel := context.WithTimeout(l.ctx, acceptStreamTimeout)
	defer cancel()
	st, err := ac.acceptStream(ctx)
	if err != nil {
		_ = ac.closeFn(codeNormal, "no stream")
		return
	}
	lk := &link{
		stream:  st,
		local:   ac.local,
		remote:  ac.remote,
		send:    ac.send,
		receive: ac.receive,
		closeFn: ac.closeFn,
	}
	select {
	case l.links <- lk:
	case <-l.ctx.Done():
		_ = lk.Close()
	}
}

func (l *listener) Accept() (transport.Link, error) {
	select {
	case lk := <-l.links:
		return lk, nil
	case <-l.ctx.Done():
		return nil, errors.WithStack(ErrListenerClosed)
	}
}

func (l *listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.cancel()
		err = l.closeFn()
	})
	return err
}

func (l *listener) Addr() net.Addr { return l.addr }

// link implements transport.DatagramLink on one QUIC connection.
type link struct {
	stream  io.ReadWriteCloser
	local   net.Addr
	remote  net.Addr
	send    func([]byte) error
	receive func(context.Context) ([]byte, error)
	closeFn func(quicgo.ApplicationErrorCode, string) error

	closeOnce sync.Once
}

func (c *link) Read(p []byte) (int, error)  { return c.stream.Read(p) }
func (c *link) Write(p []byte) (int, error) { return c.stream.Write(p) }
func (c *link) LocalAddr() net.Addr         { return c.local }
func (c *link) RemoteAddr() net.Addr        { return c.remote }

func (c *link) SendDatagram(b []byte) error { return c.send(b) }

func (c *link) ReceiveDatagram(ctx context.Context) ([]byte, error) { return c.receive(ctx) }

func (c *link) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.stream.Close()
		err = c.closeFn(codeNormal, "")
	})
	return err
}

func selfSignedCert() (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
