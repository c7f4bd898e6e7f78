// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package connmgr maintains the PeerGroup's pool of outbound TCP
// connections between a configured minimum and maximum, dialing new
// addresses as slots free up and retrying failed addresses with
// exponential backoff, per spec.md §4.5.
package connmgr

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrNoAddress is returned by a Config.GetAddress implementation (and
// surfaced through maintainSlot's retry loop) when the address pool
// has nothing left to offer.
var ErrNoAddress = errors.New("connmgr: no address available")

// Dialer opens a connection to addr, honoring ctx cancellation.
type Dialer func(ctx context.Context, addr string) (net.Conn, error)

// Config parameterizes a ConnManager.
type Config struct {
	// MinConnections is the number of concurrently maintained outbound
	// slots; each is independently dialed and redialed on failure.
	MinConnections int

	// MaxConnections is the configured upper bound on open connections.
	// ConnManager does not enforce it: Run keeps MinConnections slots
	// and every Connect call adds a connection of its own.
	MaxConnections int

	// Dial opens a TCP connection to an address.
	Dial Dialer

	// GetAddress returns the next candidate address to dial, typically
	// backed by an addrmgr.AddrManager.
	GetAddress func() (string, error)

	// OnConnect is called once a dial succeeds, before the slot blocks
	// waiting for Disconnect.
	OnConnect func(req *ConnReq, conn net.Conn)

	// OnDisconnect is called after a connection is torn down, either by
	// Disconnect or by the ConnManager being stopped.
	OnDisconnect func(req *ConnReq)
}

// ConnReq identifies one outbound connection attempt/connection.
type ConnReq struct {
	id         uint64
	Addr       string
	Permanent  bool
	retryCount uint32
	conn       net.Conn
	done       chan struct{}
}

// ID uniquely identifies this request for the lifetime of the
// ConnManager that created it.
func (r *ConnReq) ID() uint64 { return r.id }

// Conn returns the underlying connection, or nil before it connects.
func (r *ConnReq) Conn() net.Conn { return r.conn }

// ConnManager maintains a pool of outbound connections.
type ConnManager struct {
	cfg Config

	mu     sync.Mutex
	nextID uint64
	conns  map[uint64]*ConnReq

	permMu   sync.Mutex
	permReqs map[string]*ConnReq
}

// New returns a ConnManager ready to Run.
func New(cfg Config) *ConnManager {
	return &ConnManager{
		cfg:      cfg,
		conns:    make(map[uint64]*ConnReq),
		permReqs: make(map[string]*ConnReq),
	}
}

// Run blocks maintaining cfg.MinConnections concurrent outbound slots
// until ctx is canceled, redialing each slot (with backoff) whenever
// its connection is reported disconnected.
func (cm *ConnManager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cm.cfg.MinConnections; i++ {
		g.Go(func() error {
			return cm.maintainSlot(ctx)
		})
	}
	return g.Wait()
}

// maintainSlot repeatedly dials an address (retrying with backoff on
// failure), hands the connection off via OnConnect, then blocks until
// that connection is reported disconnected before dialing again.
func (cm *ConnManager) maintainSlot(ctx context.Context) error {
	var retry uint32
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		addr, err := cm.cfg.GetAddress()
		if err != nil {
			if !sleep(ctx, backoffDuration(retry)) {
				return ctx.Err()
			}
			retry++
			continue
		}

		conn, err := cm.cfg.Dial(ctx, addr)
		if err != nil {
			if !sleep(ctx, backoffDuration(retry)) {
				return ctx.Err()
			}
			retry++
			continue
		}

		req := cm.register(addr, false, conn)
		retry = 0
		if cm.cfg.OnConnect != nil {
			cm.cfg.OnConnect(req, conn)
		}

		select {
		case <-req.done:
		case <-ctx.Done():
			cm.teardown(req)
			return ctx.Err()
		}
	}
}

// Connect establishes (and, if permanent, persistently maintains) a
// connection to addr outside the normal MinConnections slot pool, used
// for user-configured peers that bypass address-book discovery.
func (cm *ConnManager) Connect(ctx context.Context, addr string, permanent bool) error {
	var retry uint32
	for {
		conn, err := cm.cfg.Dial(ctx, addr)
		if err != nil {
			if !permanent {
				return err
			}
			if !sleep(ctx, backoffDuration(retry)) {
				return ctx.Err()
			}
			retry++
			continue
		}

		req := cm.register(addr, permanent, conn)
		if permanent {
			cm.permMu.Lock()
			cm.permReqs[addr] = req
			cm.permMu.Unlock()
		}
		if cm.cfg.OnConnect != nil {
			cm.cfg.OnConnect(req, conn)
		}

		if !permanent {
			return nil
		}

		select {
		case <-req.done:
			retry = 0
			continue
		case <-ctx.Done():
			cm.teardown(req)
			return ctx.Err()
		}
	}
}

func (cm *ConnManager) register(addr string, permanent bool, conn net.Conn) *ConnReq {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.nextID++
	req := &ConnReq{
		id:        cm.nextID,
		Addr:      addr,
		Permanent: permanent,
		conn:      conn,
		done:      make(chan struct{}),
	}
	cm.conns[req.id] = req
	return req
}

// Disconnect tears down the connection identified by id and signals
// its owning slot (maintainSlot or a permanent Connect call) to redial.
func (cm *ConnManager) Disconnect(id uint64) {
	cm.mu.Lock()
	req, ok := cm.conns[id]
	if ok {
		delete(cm.conns, id)
	}
	cm.mu.Unlock()
	if ok {
		cm.teardown(req)
	}
}

func (cm *ConnManager) teardown(req *ConnReq) {
	select {
	case <-req.done:
		return // already torn down
	default:
	}
	close(req.done)
	if req.conn != nil {
		req.conn.Close()
	}
	if cm.cfg.OnDisconnect != nil {
		cm.cfg.OnDisconnect(req)
	}
}

// ConnectedCount returns the number of connections currently open.
func (cm *ConnManager) ConnectedCount() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.conns)
}

// sleep waits for d or ctx cancellation, returning false if ctx was
// the reason it returned.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
