// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer_test

import (
	"net"
	"testing"
	"time"

	"github.com/ndau-spv/spvcore/chaincfg"
	"github.com/ndau-spv/spvcore/peer"
	"github.com/ndau-spv/spvcore/wire"
)

// fakeConn adapts a net.Pipe half to satisfy net.Conn's address methods
// with TCP-shaped addresses, since peer.Peer type-asserts RemoteAddr to
// *net.TCPAddr when building its version message.
type fakeConn struct {
	net.Conn
	remote *net.TCPAddr
}

func (c fakeConn) RemoteAddr() net.Addr { return c.remote }

func pipePair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	return fakeConn{Conn: a, remote: &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 18444}},
		fakeConn{Conn: b, remote: &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 18445}}
}

// remoteHandshake drives the other end of a handshake by hand: reads the
// version, replies with its own version and a verack, then waits for the
// local peer's verack.
func remoteHandshake(t *testing.T, conn net.Conn, params *chaincfg.Params, lastBlock int32) {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	msg, _, err := wire.ReadMessage(conn, wire.ProtocolVersion, params.Net)
	if err != nil {
		t.Fatalf("remote: read version: %v", err)
	}
	if _, ok := msg.(*wire.MsgVersion); !ok {
		t.Fatalf("remote: expected version, got %T", msg)
	}

	reply := &wire.MsgVersion{
		ProtocolVersion: int32(wire.ProtocolVersion),
		Services:        wire.SFNodeNetwork | wire.SFNodeBloom,
		Timestamp:       time.Now().Unix(),
		UserAgent:       "/remote:1.0/",
		LastBlock:       lastBlock,
	}
	if err := wire.WriteMessage(conn, reply, wire.ProtocolVersion, params.Net); err != nil {
		t.Fatalf("remote: write version: %v", err)
	}
	if err := wire.WriteMessage(conn, &wire.MsgVerAck{}, wire.ProtocolVersion, params.Net); err != nil {
		t.Fatalf("remote: write verack: %v", err)
	}

	for {
		msg, _, err := wire.ReadMessage(conn, wire.ProtocolVersion, params.Net)
		if err != nil {
			t.Fatalf("remote: waiting for verack: %v", err)
		}
		if _, ok := msg.(*wire.MsgVerAck); ok {
			return
		}
	}
}

func TestStartNegotiatesHandshakeAndReachesReady(t *testing.T) {
	params := chaincfg.RegressionNetParams()
	local, remote := pipePair(t)

	done := make(chan struct{})
	go func() {
		remoteHandshake(t, remote, params, 42)
		close(done)
	}()

	p := peer.NewOutboundPeer(local, "127.0.0.1:18444", peer.Config{
		ChainParams: params,
		UserAgent:   "/spvcore:1.0/",
		Services:    wire.SFNodeBloom,
		BestHeight:  func() int32 { return 7 },
	})

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Disconnect()

	<-done

	if got := p.State(); got != peer.StateReady {
		t.Fatalf("State() = %v, want %v", got, peer.StateReady)
	}
	if got := p.LastBlock(); got != 42 {
		t.Fatalf("LastBlock() = %d, want 42", got)
	}
	if got := p.UserAgent(); got != "/remote:1.0/" {
		t.Fatalf("UserAgent() = %q, want /remote:1.0/", got)
	}
	if !p.SupportsBloomFilter() {
		t.Fatalf("SupportsBloomFilter() = false, want true")
	}
}

func TestInHandlerRespondsToPing(t *testing.T) {
	params := chaincfg.RegressionNetParams()
	local, remote := pipePair(t)

	done := make(chan struct{})
	go func() {
		remoteHandshake(t, remote, params, 0)
		close(done)
	}()

	p := peer.NewOutboundPeer(local, "127.0.0.1:18444", peer.Config{
		ChainParams: params,
		UserAgent:   "/spvcore:1.0/",
	})
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Disconnect()
	<-done

	if err := wire.WriteMessage(remote, &wire.MsgPing{Nonce: 99}, wire.ProtocolVersion, params.Net); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	_ = remote.SetDeadline(time.Now().Add(5 * time.Second))
	msg, _, err := wire.ReadMessage(remote, wire.ProtocolVersion, params.Net)
	if err != nil {
		t.Fatalf("read pong: %v", err)
	}
	pong, ok := msg.(*wire.MsgPong)
	if !ok {
		t.Fatalf("expected pong, got %T", msg)
	}
	if pong.Nonce != 99 {
		t.Fatalf("pong nonce = %d, want 99", pong.Nonce)
	}
}

func TestOnHeadersHookReceivesHeaders(t *testing.T) {
	params := chaincfg.RegressionNetParams()
	local, remote := pipePair(t)

	done := make(chan struct{})
	go func() {
		remoteHandshake(t, remote, params, 0)
		close(done)
	}()

	received := make(chan *wire.MsgHeaders, 1)
	p := peer.NewOutboundPeer(local, "127.0.0.1:18444", peer.Config{
		ChainParams: params,
		UserAgent:   "/spvcore:1.0/",
		OnHeaders: func(_ *peer.Peer, msg *wire.MsgHeaders) {
			received <- msg
		},
	})
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Disconnect()
	<-done

	headersMsg := &wire.MsgHeaders{}
	if err := headersMsg.AddBlockHeader(&params.GenesisBlock.Header); err != nil {
		t.Fatalf("AddBlockHeader: %v", err)
	}
	if err := wire.WriteMessage(remote, headersMsg, wire.ProtocolVersion, params.Net); err != nil {
		t.Fatalf("write headers: %v", err)
	}

	select {
	case got := <-received:
		if len(got.Headers) != 1 {
			t.Fatalf("len(Headers) = %d, want 1", len(got.Headers))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for OnHeaders")
	}
}

func TestDisconnectClosesConnection(t *testing.T) {
	params := chaincfg.RegressionNetParams()
	local, remote := pipePair(t)

	done := make(chan struct{})
	go func() {
		remoteHandshake(t, remote, params, 0)
		close(done)
	}()

	disconnected := make(chan struct{})
	p := peer.NewOutboundPeer(local, "127.0.0.1:18444", peer.Config{
		ChainParams:  params,
		UserAgent:    "/spvcore:1.0/",
		OnDisconnect: func(_ *peer.Peer) { close(disconnected) },
	})
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-done

	p.Disconnect()

	select {
	case <-disconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for OnDisconnect")
	}
	if got := p.State(); got != peer.StateDisconnected {
		t.Fatalf("State() = %v, want %v", got, peer.StateDisconnected)
	}
}
