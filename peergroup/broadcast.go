// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peergroup

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/peer"
	"github.com/ndau-spv/spvcore/wire"
)

// broadcastTimeout bounds how long a Broadcast waits for acceptance or
// propagation evidence before its Future fails.
const broadcastTimeout = 30 * time.Second

// ErrBroadcastTimeout is the error a Future resolves with when neither
// acceptance nor propagation evidence arrived before broadcastTimeout.
var ErrBroadcastTimeout = errors.New("peergroup: broadcast timed out waiting for propagation")

// ErrNoPeers is returned immediately when no connected peer exists to
// announce a transaction to.
var ErrNoPeers = errors.New("peergroup: no connected peers to broadcast to")

// broadcastState tracks one in-flight Broadcast: which peers it was
// announced to, and the future its resolution completes.
type broadcastState struct {
	tx     *wire.MsgTx
	sentTo map[uint64]bool

	once  sync.Once
	done  chan struct{}
	err   error
	timer *time.Timer
}

func (s *broadcastState) resolve(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
		if s.timer != nil {
			s.timer.Stop()
		}
	})
}

// Future represents a Broadcast's eventual acceptance or failure.
type Future struct {
	state *broadcastState
}

// Wait blocks until the broadcast resolves or ctx is done, returning
// the broadcast transaction on success.
func (f *Future) Wait(ctx context.Context) (*wire.MsgTx, error) {
	select {
	case <-f.state.done:
		if f.state.err != nil {
			return nil, f.state.err
		}
		return f.state.tx, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TransactionBroadcaster announces signed transactions to a random
// subset of connected peers and tracks their acceptance, per spec.md
// §4.6.
type TransactionBroadcaster struct {
	pg *PeerGroup
}

// NewTransactionBroadcaster returns a Broadcaster sharing pg's
// connection pool.
func NewTransactionBroadcaster(pg *PeerGroup) *TransactionBroadcaster {
	return &TransactionBroadcaster{pg: pg}
}

// Broadcast announces tx to min(connected peer count, redundancy)
// randomly chosen peers and returns a Future that resolves once one of
// them requests it via getdata, or once a peer it wasn't sent to
// echoes an inv for the same hash, whichever happens first. It
// resolves with ErrBroadcastTimeout if neither happens within
// broadcastTimeout, and re-broadcasts are the caller's responsibility
// (a wallet re-invokes Broadcast on reconnect until the transaction
// confirms or is marked dead).
func (b *TransactionBroadcaster) Broadcast(tx *wire.MsgTx) *Future {
	txHash := tx.TxHash()
	pg := b.pg

	pg.mu.Lock()
	handles := make([]*peerHandle, 0, len(pg.peers))
	for _, h := range pg.peers {
		if h.peer.State() == peer.StateReady {
			handles = append(handles, h)
		}
	}
	pg.mu.Unlock()

	redundancy := pg.cfg.BroadcastRedundancy
	if redundancy > len(handles) {
		redundancy = len(handles)
	}

	state := &broadcastState{
		tx:     tx,
		sentTo: make(map[uint64]bool, redundancy),
		done:   make(chan struct{}),
	}

	if redundancy == 0 {
		state.resolve(ErrNoPeers)
		return &Future{state: state}
	}

	rand.Shuffle(len(handles), func(i, j int) { handles[i], handles[j] = handles[j], handles[i] })
	chosen := handles[:redundancy]
	for _, h := range chosen {
		state.sentTo[h.connID] = true
	}

	state.timer = time.AfterFunc(broadcastTimeout, func() {
		pg.mu.Lock()
		delete(pg.broadcasts, txHash)
		pg.mu.Unlock()
		state.resolve(ErrBroadcastTimeout)
	})

	pg.mu.Lock()
	pg.broadcasts[txHash] = state
	pg.mu.Unlock()

	log.Debugf("broadcasting %s to %d peers", txHash, len(chosen))
	inv := &wire.InvVect{Type: wire.InvTypeTx, Hash: txHash}
	for _, h := range chosen {
		msg := &wire.MsgInv{}
		_ = msg.AddInvVect(inv)
		h.peer.QueueMessage(msg)
	}

	return &Future{state: state}
}

// serveBroadcastRequest answers a getdata for hash from p: if hash
// names an in-flight broadcast p was one of the chosen announce
// targets for, the transaction is sent and the broadcast resolves
// successfully (acceptance evidence).
func (pg *PeerGroup) serveBroadcastRequest(p *peer.Peer, hash chainhash.Hash) {
	pg.mu.Lock()
	state, ok := pg.broadcasts[hash]
	pg.mu.Unlock()
	if !ok {
		return
	}

	p.QueueMessage(state.tx)

	handleID, ok := pg.peerConnID(p)
	if ok && state.sentTo[handleID] {
		pg.mu.Lock()
		delete(pg.broadcasts, hash)
		pg.mu.Unlock()
		state.resolve(nil)
	}
}

// echoesBroadcast reports whether hash names an in-flight broadcast
// and p was not one of the peers it was originally sent to, meaning
// p's inv is independent propagation evidence. It resolves the
// broadcast as a side effect and reports true so handleInv does not
// also request the (already-known) transaction from p.
func (pg *PeerGroup) echoesBroadcast(p *peer.Peer, hash chainhash.Hash) bool {
	pg.mu.Lock()
	state, ok := pg.broadcasts[hash]
	pg.mu.Unlock()
	if !ok {
		return false
	}

	handleID, known := pg.peerConnID(p)
	if known && state.sentTo[handleID] {
		return false
	}

	pg.mu.Lock()
	delete(pg.broadcasts, hash)
	pg.mu.Unlock()
	state.resolve(nil)
	return true
}

// peerConnID looks up the connmgr id registered for p, used to tell
// whether an inv/getdata came from a peer a broadcast was sent to.
func (pg *PeerGroup) peerConnID(p *peer.Peer) (uint64, bool) {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	for id, h := range pg.peers {
		if h.peer == groupPeer(p) {
			return id, true
		}
	}
	return 0, false
}
