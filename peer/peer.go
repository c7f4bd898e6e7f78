// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package peer implements the per-connection wire protocol state machine
// a PeerGroup drives against each remote node: handshake negotiation,
// bloom filter upload, and steady-state message dispatch, per spec.md
// §4.5.
package peer

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ndau-spv/spvcore/bloom"
	"github.com/ndau-spv/spvcore/chaincfg"
	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/wire"
)

// State is a Peer's position in the connection lifecycle:
//
//	DISCONNECTED -> CONNECTING -> HANDSHAKE -> READY -> CLOSING -> DISCONNECTED
//
// CONNECTING is owned by whatever dialed the socket (connmgr); a Peer
// value only exists from HANDSHAKE onward.
type State int

const (
	StateHandshake State = iota
	StateReady
	StateClosing
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateHandshake:
		return "handshake"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// pingInterval is how often a READY peer is pinged to refresh its
// latency estimate, used by a PeerGroup to pick a download peer.
const pingInterval = 2 * time.Minute

// handshakeTimeout bounds how long negotiateHandshake waits for the
// remote version/verack exchange before giving up.
const handshakeTimeout = 15 * time.Second

// outQueueSize is the number of queued outbound messages a Peer will
// buffer before QueueMessage blocks.
const outQueueSize = 50

// Config parameterizes a Peer and supplies the callbacks a PeerGroup
// uses to receive decoded messages. Every On* hook is optional; nil
// hooks are simply not called.
type Config struct {
	ChainParams *chaincfg.Params

	// UserAgent and Services are advertised in this node's version
	// message.
	UserAgent string
	Services  wire.ServiceFlag

	// BestHeight returns this node's current chain tip height, sent as
	// LastBlock in the version message.
	BestHeight func() int32

	// Filter, if non-nil, is uploaded via filterload once the
	// handshake completes.
	Filter *bloom.Filter

	OnVersion     func(p *Peer, msg *wire.MsgVersion)
	OnHeaders     func(p *Peer, msg *wire.MsgHeaders)
	OnMerkleBlock func(p *Peer, msg *wire.MsgMerkleBlock)
	OnTx          func(p *Peer, msg *wire.MsgTx)
	OnInv         func(p *Peer, msg *wire.MsgInv)
	OnGetData     func(p *Peer, msg *wire.MsgGetData)
	OnGetHeaders  func(p *Peer, msg *wire.MsgGetHeaders)
	OnAddr        func(p *Peer, msg *wire.MsgAddr)
	OnReject      func(p *Peer, msg *wire.MsgReject)

	// OnDisconnect is called exactly once when the peer's connection
	// is torn down, whether by the remote side, an I/O error, or a
	// local Disconnect call.
	OnDisconnect func(p *Peer)

	// OnMisbehavior is called when the remote peer violates protocol
	// (malformed data, checksum failure) or supplies data that failed
	// validation upstream (reported via Peer.ReportMisbehavior). The
	// Peer's connection is already closed when the hook runs; a
	// PeerGroup may use this hook to additionally ban the address.
	OnMisbehavior func(p *Peer, err error)
}

// outMsg pairs a queued message with the channel its send completes on.
type outMsg struct {
	msg  wire.Message
	done chan struct{}
}

// Peer drives one remote connection's wire protocol state machine.
type Peer struct {
	conn net.Conn
	addr string
	cfg  Config

	mu              sync.Mutex
	state           State
	protocolVersion uint32
	services        wire.ServiceFlag
	userAgent       string
	lastBlock       int32
	connectedAt     time.Time
	pingNonce       uint64
	pingSent        time.Time
	latency         time.Duration

	outputQueue chan outMsg
	quit        chan struct{}
	quitOnce    sync.Once
}

// NewOutboundPeer returns a Peer ready to negotiate a handshake over an
// already-connected conn.
func NewOutboundPeer(conn net.Conn, addr string, cfg Config) *Peer {
	return &Peer{
		conn:        conn,
		addr:        addr,
		cfg:         cfg,
		state:       StateHandshake,
		outputQueue: make(chan outMsg, outQueueSize),
		quit:        make(chan struct{}),
	}
}

// Addr returns the remote address this Peer was dialed to.
func (p *Peer) Addr() string { return p.addr }

// State returns the peer's current lifecycle state.
func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Peer) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// LastBlock returns the remote peer's advertised best height, valid
// once State() is StateReady or later.
func (p *Peer) LastBlock() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastBlock
}

// UserAgent returns the remote peer's advertised user agent string.
func (p *Peer) UserAgent() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userAgent
}

// Services returns the remote peer's advertised service flags.
func (p *Peer) Services() wire.ServiceFlag {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.services
}

// Latency returns the most recently measured ping/pong round-trip time,
// zero until the first pong arrives.
func (p *Peer) Latency() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latency
}

// SupportsBloomFilter reports whether the remote peer advertised
// SFNodeBloom during the handshake.
func (p *Peer) SupportsBloomFilter() bool {
	return p.Services()&wire.SFNodeBloom != 0
}

// ConnectedSince returns how long the peer has been in StateReady,
// used by a PeerGroup to prefer longer-lived connections when choosing
// which peers to keep.
func (p *Peer) ConnectedSince() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connectedAt.IsZero() {
		return 0
	}
	return time.Since(p.connectedAt)
}

// Start negotiates the handshake synchronously (version/verack exchange
// and, if configured, a filterload upload) and, on success, starts the
// background read and write pumps and transitions to StateReady. On
// failure the peer is torn down and an error is returned.
func (p *Peer) Start() error {
	if err := p.negotiateHandshake(); err != nil {
		p.teardown(err)
		return err
	}

	if p.cfg.Filter != nil {
		if err := p.writeDirect(p.cfg.Filter.MsgFilterLoad()); err != nil {
			p.teardown(err)
			return err
		}
	}

	p.setState(StateReady)
	p.connectedAt = time.Now()

	go p.outHandler()
	go p.inHandler()
	go p.pingLoop()

	return nil
}

// negotiateHandshake performs the synchronous version/verack exchange.
// It runs before outHandler/inHandler start, so it reads and writes the
// connection directly without contending for it.
func (p *Peer) negotiateHandshake() error {
	deadline := time.Now().Add(handshakeTimeout)
	if err := p.conn.SetDeadline(deadline); err != nil {
		return err
	}
	defer p.conn.SetDeadline(time.Time{})

	if err := p.writeDirect(p.localVersionMsg()); err != nil {
		return fmt.Errorf("peer: sending version: %w", err)
	}

	var gotVersion, gotVerAck bool
	for !gotVersion || !gotVerAck {
		msg, _, err := wire.ReadMessage(p.conn, p.negotiatedProtocolVersion(), p.cfg.ChainParams.Net)
		if err != nil {
			return fmt.Errorf("peer: handshake: %w", err)
		}

		switch m := msg.(type) {
		case *wire.MsgVersion:
			if gotVersion {
				return fmt.Errorf("peer: duplicate version message")
			}
			p.mu.Lock()
			p.protocolVersion = minUint32(wire.ProtocolVersion, uint32(m.ProtocolVersion))
			p.services = m.Services
			p.userAgent = m.UserAgent
			p.lastBlock = m.LastBlock
			p.mu.Unlock()
			gotVersion = true

			if p.cfg.OnVersion != nil {
				p.cfg.OnVersion(p, m)
			}
			if err := p.writeDirect(&wire.MsgVerAck{}); err != nil {
				return fmt.Errorf("peer: sending verack: %w", err)
			}

		case *wire.MsgVerAck:
			gotVerAck = true

		default:
			return fmt.Errorf("peer: unexpected message %q during handshake", msg.Command())
		}
	}

	return nil
}

func (p *Peer) localVersionMsg() *wire.MsgVersion {
	var lastBlock int32
	if p.cfg.BestHeight != nil {
		lastBlock = p.cfg.BestHeight()
	}

	return &wire.MsgVersion{
		ProtocolVersion: int32(wire.ProtocolVersion),
		Services:        p.cfg.Services,
		Timestamp:       time.Now().Unix(),
		AddrYou:         remoteNetAddress(p.conn),
		AddrMe:          wire.NetAddress{Timestamp: time.Now(), Services: p.cfg.Services},
		Nonce:           randUint64(),
		UserAgent:       p.cfg.UserAgent,
		LastBlock:       lastBlock,
	}
}

// randUint64 returns a cryptographically random nonce for version and
// ping messages.
func randUint64() uint64 {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return binary.LittleEndian.Uint64(buf[:])
}

// negotiatedProtocolVersion returns the lower of our and the remote's
// protocol version once known, or our own before the handshake completes.
func (p *Peer) negotiatedProtocolVersion() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.protocolVersion != 0 {
		return p.protocolVersion
	}
	return wire.ProtocolVersion
}

// writeDirect writes msg to the connection without going through the
// output queue; used only during the handshake, before outHandler runs.
func (p *Peer) writeDirect(msg wire.Message) error {
	return wire.WriteMessage(p.conn, msg, p.negotiatedProtocolVersion(), p.cfg.ChainParams.Net)
}

// QueueMessage schedules msg for delivery by outHandler. It does not
// block indefinitely: if the peer has been disconnected the message is
// silently dropped.
func (p *Peer) QueueMessage(msg wire.Message) {
	select {
	case p.outputQueue <- outMsg{msg: msg}:
	case <-p.quit:
	}
}

// PushGetHeadersMsg queues a getheaders request built from locator and
// stop.
func (p *Peer) PushGetHeadersMsg(locator []*chainhash.Hash, stop chainhash.Hash) {
	msg := &wire.MsgGetHeaders{
		ProtocolVersion:    p.negotiatedProtocolVersion(),
		BlockLocatorHashes: locator,
		HashStop:           stop,
	}
	p.QueueMessage(msg)
}

// PushGetDataMsg queues a getdata request for the given inventory
// vectors.
func (p *Peer) PushGetDataMsg(invVects []*wire.InvVect) {
	msg := &wire.MsgGetData{}
	for _, iv := range invVects {
		_ = msg.AddInvVect(iv)
	}
	p.QueueMessage(msg)
}

// PushInvMsg queues an inv announcement for the given inventory vectors.
func (p *Peer) PushInvMsg(invVects []*wire.InvVect) {
	msg := &wire.MsgInv{}
	for _, iv := range invVects {
		_ = msg.AddInvVect(iv)
	}
	p.QueueMessage(msg)
}

// ReportMisbehavior tears the peer down and reports err through
// OnMisbehavior, for use by a PeerGroup when data this Peer supplied
// fails validation elsewhere (e.g. a header BlockChain.ProcessHeader
// rejected).
func (p *Peer) ReportMisbehavior(err error) {
	p.teardown(err)
}

// Disconnect tears down the connection without reporting misbehavior.
func (p *Peer) Disconnect() {
	p.teardown(nil)
}

func (p *Peer) teardown(misbehaviorErr error) {
	p.quitOnce.Do(func() {
		p.setState(StateClosing)
		close(p.quit)
		_ = p.conn.Close()
		p.setState(StateDisconnected)

		if misbehaviorErr != nil && p.cfg.OnMisbehavior != nil {
			p.cfg.OnMisbehavior(p, misbehaviorErr)
		}
		if p.cfg.OnDisconnect != nil {
			p.cfg.OnDisconnect(p)
		}
	})
}

// outHandler drains the output queue to the connection until the peer
// disconnects.
func (p *Peer) outHandler() {
	for {
		select {
		case out := <-p.outputQueue:
			if err := p.writeDirect(out.msg); err != nil {
				p.teardown(nil)
				return
			}
			if out.done != nil {
				close(out.done)
			}
		case <-p.quit:
			return
		}
	}
}

// inHandler reads and dispatches inbound messages until the connection
// fails or the peer is disconnected. Ping/pong are handled internally;
// everything else is handed to the matching Config hook.
func (p *Peer) inHandler() {
	for {
		msg, _, err := wire.ReadMessage(p.conn, p.negotiatedProtocolVersion(), p.cfg.ChainParams.Net)
		if err != nil {
			select {
			case <-p.quit:
			default:
				p.teardown(fmt.Errorf("peer: read: %w", err))
			}
			return
		}

		switch m := msg.(type) {
		case *wire.MsgPing:
			p.QueueMessage(&wire.MsgPong{Nonce: m.Nonce})
		case *wire.MsgPong:
			p.handlePong(m)
		case *wire.MsgHeaders:
			if p.cfg.OnHeaders != nil {
				p.cfg.OnHeaders(p, m)
			}
		case *wire.MsgMerkleBlock:
			if p.cfg.OnMerkleBlock != nil {
				p.cfg.OnMerkleBlock(p, m)
			}
		case *wire.MsgTx:
			if p.cfg.OnTx != nil {
				p.cfg.OnTx(p, m)
			}
		case *wire.MsgInv:
			if p.cfg.OnInv != nil {
				p.cfg.OnInv(p, m)
			}
		case *wire.MsgGetData:
			if p.cfg.OnGetData != nil {
				p.cfg.OnGetData(p, m)
			}
		case *wire.MsgGetHeaders:
			if p.cfg.OnGetHeaders != nil {
				p.cfg.OnGetHeaders(p, m)
			}
		case *wire.MsgAddr:
			if p.cfg.OnAddr != nil {
				p.cfg.OnAddr(p, m)
			}
		case *wire.MsgReject:
			if p.cfg.OnReject != nil {
				p.cfg.OnReject(p, m)
			}
		case *wire.MsgVerAck, *wire.MsgVersion:
			// Already negotiated; a second copy is ignored rather than
			// treated as misbehavior, matching common relay-node leniency.
		default:
			// MsgMemPool, MsgFilterLoad/Add/Clear and others carry no
			// client-side handling requirement for this peer's role.
		}
	}
}

func (p *Peer) handlePong(m *wire.MsgPong) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m.Nonce != p.pingNonce || p.pingSent.IsZero() {
		return
	}
	p.latency = time.Since(p.pingSent)
	p.pingSent = time.Time{}
}

// pingLoop periodically pings the peer so Latency stays current.
func (p *Peer) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			nonce := randUint64()
			p.mu.Lock()
			p.pingNonce = nonce
			p.pingSent = time.Now()
			p.mu.Unlock()
			p.QueueMessage(&wire.MsgPing{Nonce: nonce})
		case <-p.quit:
			return
		}
	}
}

func remoteNetAddress(conn net.Conn) wire.NetAddress {
	na := wire.NetAddress{Timestamp: time.Now()}
	tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return na
	}
	ip4 := tcpAddr.IP.To4()
	if ip4 != nil {
		copy(na.IP[12:], ip4)
		na.IP[10] = 0xff
		na.IP[11] = 0xff
	} else if ip16 := tcpAddr.IP.To16(); ip16 != nil {
		copy(na.IP[:], ip16)
	}
	na.Port = uint16(tcpAddr.Port)
	return na
}

func minUint32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
