// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package peergroup maintains a pool of outbound P2P connections,
// discovers addresses, drives the header/merkleblock download pipeline
// against a designated download peer, and keeps every registered
// Wallet's bloom filter installed and current, per spec.md §4.5.
package peergroup

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/decred/dcrd/container/apbf"
	"github.com/decred/dcrd/lru"
	"golang.org/x/sync/errgroup"

	"github.com/ndau-spv/spvcore/addrmgr"
	"github.com/ndau-spv/spvcore/blockchain"
	"github.com/ndau-spv/spvcore/blockstore"
	"github.com/ndau-spv/spvcore/bloom"
	"github.com/ndau-spv/spvcore/chaincfg"
	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/connmgr"
	"github.com/ndau-spv/spvcore/peer"
	"github.com/ndau-spv/spvcore/wallet"
	"github.com/ndau-spv/spvcore/wire"
)

// defaultFilterFalsePositiveRate is the BIP37 false-positive rate applied
// to a derived filter when Config.FilterFalsePositiveRate is zero.
const defaultFilterFalsePositiveRate = 1e-5

// defaultBroadcastRedundancy is how many connected peers a broadcast
// announces to when Config.BroadcastRedundancy is zero.
const defaultBroadcastRedundancy = 2

// defaultFilterRebuildElements is the minimum number of newly added elements
// that forces a filter rebuild regardless of how little time has
// elapsed since the last upload.
const defaultFilterRebuildElements = 50

// defaultFilterRebuildInterval is the minimum time between filter re-uploads
// when only a few new elements accumulated.
const defaultFilterRebuildInterval = 10 * time.Minute

// maxHeadersPerMsg mirrors the protocol's headers response size, used
// to detect whether more headers remain to be fetched.
const maxHeadersPerMsg = 2000

// groupPeer is the subset of *peer.Peer's behavior PeerGroup depends
// on. It exists so broadcast and download-pipeline logic can be
// exercised against fakes without opening real sockets.
type groupPeer interface {
	Addr() string
	State() peer.State
	LastBlock() int32
	Latency() time.Duration
	QueueMessage(msg wire.Message)
	PushGetHeadersMsg(locator []*chainhash.Hash, stop chainhash.Hash)
	Disconnect()
}

// peerHandle pairs a connected peer with the connmgr request that
// dialed it, so PeerGroup can tear the connection down through
// ConnManager.Disconnect when it decides a peer misbehaved.
type peerHandle struct {
	connID uint64
	peer   groupPeer
}

// Config parameterizes a PeerGroup.
type Config struct {
	ChainParams *chaincfg.Params

	// Chain receives validated headers and reorganize/best-block
	// notifications flow out of it to any registered Wallets.
	Chain *blockchain.BlockChain

	// Store gives PeerGroup read access to headers Chain has already
	// validated and persisted, needed to resolve a merkleblock's
	// header hash back to its height for delivering confirmed
	// transactions to Wallets.
	Store *blockstore.Store

	// Wallets receive matched/relayed transactions and contribute
	// their keychains' script hashes to the bloom filter.
	Wallets []*wallet.Wallet

	// Peers lists user-configured "host:port" addresses dialed first
	// and maintained as permanent connections.
	Peers []string

	MinConnections int
	MaxConnections int

	UserAgent string

	// Dial opens a TCP connection to an address; defaults to a plain
	// net.Dialer when nil.
	Dial connmgr.Dialer

	// FilterFalsePositiveRate is the BIP37 false-positive rate; zero
	// selects defaultFilterFalsePositiveRate.
	FilterFalsePositiveRate float64

	// BroadcastRedundancy is how many connected peers a broadcast
	// announces to; zero selects defaultBroadcastRedundancy.
	BroadcastRedundancy int
}

// PeerGroup owns the connection pool, peer discovery, chain download
// pipeline, and bloom filter lifecycle described in spec.md §4.5, plus
// the transaction broadcaster of §4.6.
type PeerGroup struct {
	cfg     Config
	addrMgr *addrmgr.AddrManager
	connMgr *connmgr.ConnManager

	// worker serializes every callback from every peer onto one
	// goroutine, matching the "chain+wallet worker" architecture of
	// spec.md §5: dispatch to BlockChain/Wallet is never interleaved.
	worker *wallet.EventQueue

	mu           sync.Mutex
	peers        map[uint64]*peerHandle
	downloadPeer *peerHandle

	filter           *bloom.Filter
	filterTweak      uint32
	filterElements   int
	lastFilterUpload time.Time

	pending map[chainhash.Hash]*pendingBlock

	broadcasts map[chainhash.Hash]*broadcastState

	banned  *lru.Cache[string]
	seenInv *apbf.Filter
}

// pendingBlock tracks a merkleblock whose matched transactions have not
// all arrived yet.
type pendingBlock struct {
	block     blockstore.StoredBlock
	remaining map[chainhash.Hash]bool
}

// New returns a PeerGroup ready to Run. cfg.Chain, cfg.Store, and at
// least one of cfg.Wallets must be set.
func New(cfg Config) (*PeerGroup, error) {
	if cfg.Chain == nil || cfg.Store == nil {
		return nil, fmt.Errorf("peergroup: Chain and Store are required")
	}
	if cfg.MinConnections <= 0 {
		cfg.MinConnections = 1
	}
	if cfg.MaxConnections < cfg.MinConnections {
		cfg.MaxConnections = cfg.MinConnections
	}
	if cfg.Dial == nil {
		var d net.Dialer
		cfg.Dial = func(ctx context.Context, addr string) (net.Conn, error) {
			return d.DialContext(ctx, "tcp", addr)
		}
	}
	if cfg.FilterFalsePositiveRate == 0 {
		cfg.FilterFalsePositiveRate = defaultFilterFalsePositiveRate
	}
	if cfg.BroadcastRedundancy == 0 {
		cfg.BroadcastRedundancy = defaultBroadcastRedundancy
	}

	pg := &PeerGroup{
		cfg:        cfg,
		addrMgr:    addrmgr.New(),
		worker:     wallet.NewEventQueue(),
		peers:      make(map[uint64]*peerHandle),
		pending:    make(map[chainhash.Hash]*pendingBlock),
		broadcasts: make(map[chainhash.Hash]*broadcastState),
		banned:     newMisbehaviorCache(),
		seenInv:    newSeenInvFilter(),
	}

	pg.connMgr = connmgr.New(connmgr.Config{
		MinConnections: cfg.MinConnections,
		MaxConnections: cfg.MaxConnections,
		Dial:           cfg.Dial,
		GetAddress:     pg.getAddress,
		OnConnect:      pg.onConnect,
		OnDisconnect:   pg.onDisconnect,
	})

	return pg, nil
}

// Run seeds address discovery, starts the connection pool and the
// dispatch worker, and blocks until ctx is canceled.
func (pg *PeerGroup) Run(ctx context.Context) error {
	pg.seedAddresses()

	go pg.worker.Run()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pg.connMgr.Run(ctx) })
	for _, addr := range pg.cfg.Peers {
		addr := addr
		g.Go(func() error { return pg.connMgr.Connect(ctx, addr, true) })
	}

	err := g.Wait()
	pg.Stop()
	return err
}

// Stop drains and halts the dispatch worker. Safe to call once, after
// Run's context has been canceled.
func (pg *PeerGroup) Stop() {
	pg.worker.Stop()
	pg.worker.Wait()
}

// ConnectedPeers returns the number of peers currently in the ready
// connection pool, for status reporting.
func (pg *PeerGroup) ConnectedPeers() int {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	return len(pg.peers)
}

// SyncHeight returns the download peer's last-announced chain height,
// or 0 if no download peer is currently chosen.
func (pg *PeerGroup) SyncHeight() int32 {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	if pg.downloadPeer == nil {
		return 0
	}
	return pg.downloadPeer.peer.LastBlock()
}

// seedAddresses populates the address manager from DNS seeds and
// hard-coded seed IPs, the discovery sources below user-configured
// peers (which connmgr.Connect dials directly and never needs the
// address manager for).
func (pg *PeerGroup) seedAddresses() {
	for _, seed := range pg.cfg.ChainParams.DNSSeeds {
		hosts, err := net.LookupHost(seed.Host)
		if err != nil {
			continue
		}
		for _, host := range hosts {
			if na, ok := parseHostPort(net.JoinHostPort(host, pg.cfg.ChainParams.DefaultPort)); ok {
				pg.addrMgr.AddAddress(na, na)
			}
		}
	}
	for _, addr := range pg.cfg.ChainParams.SeedIPs {
		if na, ok := parseHostPort(addr); ok {
			pg.addrMgr.AddAddress(na, na)
		}
	}
}

// maxGetAddressAttempts bounds how many candidates getAddress discards
// for being recently banned before giving up for this call.
const maxGetAddressAttempts = 8

// getAddress satisfies connmgr.Config.GetAddress, backing the
// connection pool's slot-maintenance loop with the address manager; it
// skips any candidate a misbehaving peer was banned under.
func (pg *PeerGroup) getAddress() (string, error) {
	for i := 0; i < maxGetAddressAttempts; i++ {
		ka := pg.addrMgr.GetAddress()
		if ka == nil {
			return "", connmgr.ErrNoAddress
		}
		na := ka.NetAddress()
		addr := net.JoinHostPort(net.IP(na.IP[:]).String(), strconv.Itoa(int(na.Port)))
		if pg.isBanned(addr) {
			continue
		}
		pg.addrMgr.Attempt(na)
		return addr, nil
	}
	return "", connmgr.ErrNoAddress
}

// onConnect negotiates the wire protocol handshake over a freshly
// dialed connection and, on success, registers the resulting Peer.
func (pg *PeerGroup) onConnect(req *connmgr.ConnReq, conn net.Conn) {
	p := peer.NewOutboundPeer(conn, req.Addr, pg.peerConfig())
	if err := p.Start(); err != nil {
		log.Debugf("handshake with %s failed: %v", req.Addr, err)
		pg.connMgr.Disconnect(req.ID())
		return
	}
	log.Infof("connected to peer %s", req.Addr)

	pg.mu.Lock()
	pg.peers[req.ID()] = &peerHandle{connID: req.ID(), peer: p}
	pg.mu.Unlock()

	if na, ok := parseHostPort(req.Addr); ok {
		pg.addrMgr.Good(na)
	}

	pg.maybeChooseDownloadPeer()
	pg.maybeUploadFilter(p)
}

// onDisconnect forgets a torn-down peer and, if it was the download
// peer, picks a replacement so chain download resumes rather than
// stalling.
func (pg *PeerGroup) onDisconnect(req *connmgr.ConnReq) {
	pg.mu.Lock()
	delete(pg.peers, req.ID())
	wasDownloadPeer := pg.downloadPeer != nil && pg.downloadPeer.connID == req.ID()
	if wasDownloadPeer {
		pg.downloadPeer = nil
	}
	pg.mu.Unlock()

	if wasDownloadPeer {
		pg.maybeChooseDownloadPeer()
	}
}

// peerConfig builds the per-connection Config whose On* hooks forward
// decoded messages onto the serialized dispatch worker.
func (pg *PeerGroup) peerConfig() peer.Config {
	return peer.Config{
		ChainParams: pg.cfg.ChainParams,
		UserAgent:   pg.cfg.UserAgent,
		Services:    wire.SFNodeNetwork,
		BestHeight:  func() int32 { return pg.cfg.Chain.Tip().Height },
		OnHeaders: func(p *peer.Peer, msg *wire.MsgHeaders) {
			pg.worker.Post(func(ctx context.Context) { pg.handleHeaders(p, msg) })
		},
		OnMerkleBlock: func(p *peer.Peer, msg *wire.MsgMerkleBlock) {
			pg.worker.Post(func(ctx context.Context) { pg.handleMerkleBlock(p, msg) })
		},
		OnTx: func(p *peer.Peer, msg *wire.MsgTx) {
			pg.worker.Post(func(ctx context.Context) { pg.handleTx(p, msg) })
		},
		OnInv: func(p *peer.Peer, msg *wire.MsgInv) {
			pg.worker.Post(func(ctx context.Context) { pg.handleInv(p, msg) })
		},
		OnGetData: func(p *peer.Peer, msg *wire.MsgGetData) {
			pg.worker.Post(func(ctx context.Context) { pg.handleGetData(p, msg) })
		},
		OnAddr: func(p *peer.Peer, msg *wire.MsgAddr) {
			pg.worker.Post(func(ctx context.Context) { pg.handleAddr(p, msg) })
		},
		OnDisconnect: func(p *peer.Peer) {
			pg.worker.Post(func(ctx context.Context) { pg.handlePeerDisconnect(p) })
		},
		OnMisbehavior: func(p *peer.Peer, err error) {
			pg.worker.Post(func(ctx context.Context) { pg.handleMisbehavior(p, err) })
		},
	}
}

// maybeChooseDownloadPeer selects the READY peer with the highest
// advertised height, breaking ties toward lower latency, and sends it
// the next getheaders request if no download was already in flight.
func (pg *PeerGroup) maybeChooseDownloadPeer() {
	pg.mu.Lock()
	if pg.downloadPeer != nil {
		pg.mu.Unlock()
		return
	}
	var best *peerHandle
	for _, h := range pg.peers {
		if h.peer.State() != peer.StateReady {
			continue
		}
		switch {
		case best == nil:
			best = h
		case h.peer.LastBlock() > best.peer.LastBlock():
			best = h
		case h.peer.LastBlock() == best.peer.LastBlock() && h.peer.Latency() < best.peer.Latency():
			best = h
		}
	}
	pg.downloadPeer = best
	pg.mu.Unlock()

	if best != nil {
		log.Debugf("chose download peer %s at height %d", best.peer.Addr(), best.peer.LastBlock())
		pg.requestHeaders(best.peer)
	}
}

// requestHeaders sends a getheaders request built from the current
// best chain's locator.
func (pg *PeerGroup) requestHeaders(p groupPeer) {
	p.PushGetHeadersMsg(buildLocator(pg.cfg.Chain), chainhash.Hash{})
}

// buildLocator returns a block locator for chain's current tip: the
// ten most recent block hashes followed by exponentially sparser
// ancestors back to genesis, the standard shape a getheaders peer
// walks to find the fork point.
func buildLocator(chain *blockchain.BlockChain) []*chainhash.Hash {
	tip := chain.Tip()
	var locator []*chainhash.Hash
	step := int32(1)
	height := tip.Height
	for {
		if blk, ok, err := chain.BlockAtHeight(height); err == nil && ok {
			h := blk.Hash()
			locator = append(locator, &h)
		}
		if height == 0 {
			break
		}
		if len(locator) >= 10 {
			step *= 2
		}
		if height < step {
			height = 0
		} else {
			height -= step
		}
	}
	return locator
}

// maybeUploadFilter derives the current bloom filter from every
// registered Wallet's keychains and installs it on p if one hasn't
// already been uploaded this session.
func (pg *PeerGroup) maybeUploadFilter(p groupPeer) {
	f := pg.currentFilter()
	if f == nil {
		return
	}
	p.QueueMessage(f.MsgFilterLoad())
}

// currentFilter lazily builds the bloom filter from all registered
// Wallets' script hashes, rebuilding only when enough new elements
// accumulated or enough time has passed since the last rebuild, per
// spec.md §4.5's rate-limited re-upload policy.
func (pg *PeerGroup) currentFilter() *bloom.Filter {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	hashes := pg.collectScriptHashesLocked()
	if len(hashes) == 0 {
		return nil
	}

	added := len(hashes) - pg.filterElements
	stale := pg.filter == nil ||
		(added > 0 && (added >= defaultFilterRebuildElements ||
			time.Since(pg.lastFilterUpload) >= defaultFilterRebuildInterval))
	if !stale {
		return pg.filter
	}

	var tweakBuf [4]byte
	_, _ = rand.Read(tweakBuf[:])
	tweak := binary.LittleEndian.Uint32(tweakBuf[:])

	f := bloom.NewFilter(uint32(len(hashes)), tweak, pg.cfg.FilterFalsePositiveRate, wire.BloomUpdateAll)
	for _, h := range hashes {
		h := h
		f.Add(h[:])
	}

	pg.filter = f
	pg.filterTweak = tweak
	pg.filterElements = len(hashes)
	pg.lastFilterUpload = time.Now()
	return f
}

func (pg *PeerGroup) collectScriptHashesLocked() [][20]byte {
	var out [][20]byte
	for _, w := range pg.cfg.Wallets {
		for _, kc := range w.Keychains() {
			out = append(out, kc.ScriptHashes()...)
		}
	}
	return out
}

// rebuildAndReuploadFilter recomputes the filter and pushes it to
// every connected peer, used when key issuance crosses the rebuild
// threshold outside of a new connection being established.
func (pg *PeerGroup) rebuildAndReuploadFilter() {
	f := pg.currentFilter()
	if f == nil {
		return
	}
	pg.mu.Lock()
	handles := make([]*peerHandle, 0, len(pg.peers))
	for _, h := range pg.peers {
		handles = append(handles, h)
	}
	pg.mu.Unlock()

	for _, h := range handles {
		h.peer.QueueMessage(f.MsgFilterLoad())
	}
}

// handlePeerDisconnect mirrors onDisconnect's bookkeeping for the
// chain+wallet worker, discarding any merkleblock assembly in flight
// that depended on the departed peer's continued cooperation; a
// replacement download peer re-requests the range from BlockStore's
// current tip.
func (pg *PeerGroup) handlePeerDisconnect(p *peer.Peer) {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	if pg.downloadPeer != nil && pg.downloadPeer.peer == groupPeer(p) {
		pg.downloadPeer = nil
		pg.pending = make(map[chainhash.Hash]*pendingBlock)
	}
}

// parseHostPort resolves an "ip:port" or "host:port" string into a
// wire.NetAddress suitable for the address manager. Hostnames are
// resolved synchronously; callers on a hot path should prefer
// addresses already in IP form.
func parseHostPort(addr string) (*wire.NetAddress, bool) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupHost(host)
		if err != nil || len(ips) == 0 {
			return nil, false
		}
		ip = net.ParseIP(ips[0])
		if ip == nil {
			return nil, false
		}
	}
	na := &wire.NetAddress{
		Timestamp: time.Now(),
		Services:  wire.SFNodeNetwork,
		Port:      uint16(port),
	}
	copy(na.IP[:], ip.To16())
	return na, true
}

