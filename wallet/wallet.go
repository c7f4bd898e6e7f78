// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wallet binds keys, UTXOs, and on-chain confidence into the
// state machine that tracks what a set of KeyChains owns and spends.
// It is the real implementer of blockchain.WalletNotifiee: OnBestBlock
// and OnReorganize below are what a BlockChain calls as the best chain
// advances or reorganizes.
package wallet

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ndau-spv/spvcore/address"
	"github.com/ndau-spv/spvcore/blockstore"
	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/keychain"
	"github.com/ndau-spv/spvcore/txscript"
	"github.com/ndau-spv/spvcore/walleterrors"
	"github.com/ndau-spv/spvcore/wire"
)

// DefaultDustThreshold is the output value, in satoshis, below which a
// change output is rolled into the fee instead of being created.
const DefaultDustThreshold = 546

// autoSaveInterval rate-limits automatic persistence so a burst of
// incoming blocks/transactions triggers at most one disk write per
// interval; Save always runs immediately regardless of this limit.
const autoSaveInterval = 3 * time.Second

// estimatedSigScriptSize is a worst-case P2PKH signature script size
// (a DER signature up to 72 bytes plus its hash-type byte, a compressed
// pubkey, and their push opcodes), used to estimate a draft
// transaction's fee before it is actually signed.
const estimatedSigScriptSize = 108

// DefaultFeeRate is the satoshis-per-byte rate SendRequest callers fall
// back to when they have no fee estimate of their own.
const DefaultFeeRate = 10

// UTXO is an unspent transaction output this Wallet recognizes as its
// own: it either pays one of the Wallet's keys or was already tracked
// and simply hasn't been spent yet.
type UTXO struct {
	OutPoint wire.OutPoint
	Output   wire.TxOut
	KeyHash  [20]byte
	Height   int32 // 0 for an unconfirmed output
}

// Listener receives Wallet state-change notifications, dispatched on
// the Wallet's EventQueue consumer goroutine. ctx reports true from
// wallet.IsDispatching(ctx); a listener must never block waiting on
// the Wallet's own EventQueue or future machinery.
type Listener interface {
	// OnTransaction fires once per transaction the Wallet newly
	// recognizes as relevant, whether pending or already confirmed.
	OnTransaction(ctx context.Context, tx *wire.MsgTx, conf Confidence)

	// OnConfidenceChanged fires whenever an already-known transaction's
	// Confidence transitions (PENDING→BUILDING, a depth increment, or a
	// move to DEAD).
	OnConfidenceChanged(ctx context.Context, txHash chainhash.Hash, conf Confidence)

	// OnBalanceChanged fires after any mutation that can change the
	// confirmed or unconfirmed spendable balance.
	OnBalanceChanged(ctx context.Context, confirmed, unconfirmed int64)
}

// Wallet is reentrant only via its exported methods; all mutation runs
// under mu. Listener dispatch happens off the EventQueue so no caller
// ever blocks on user code while holding mu, matching the "no listener
// dispatch while a wallet lock is held" invariant.
type Wallet struct {
	mu sync.Mutex

	networkID string
	keychains []*keychain.KeyChain

	minConfirmations int32

	utxos      map[wire.OutPoint]*UTXO
	txs        map[chainhash.Hash]*wire.MsgTx
	confidence map[chainhash.Hash]*Confidence
	txBlock    map[chainhash.Hash]chainhash.Hash // confirmed tx hash -> confirming block hash

	lastBlockSeen blockstore.StoredBlock

	path     string
	index    *secondaryIndex
	lastSave time.Time

	events    *EventQueue
	listeners []Listener
}

// New opens or creates a Wallet persisted under path (a directory
// holding the flat wallet file and the goleveldb secondary index),
// tracking the given KeyChains. If a wallet file already exists there,
// its UTXO and confidence state is loaded and the secondary index is
// rebuilt from it.
func New(path, networkID string, keychains ...*keychain.KeyChain) (*Wallet, error) {
	if len(keychains) == 0 {
		return nil, walleterrors.E(walleterrors.Invalid, "wallet requires at least one keychain", nil)
	}
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, walleterrors.E(walleterrors.StoreIO, "create wallet directory", err)
	}

	idx, err := openSecondaryIndex(filepath.Join(path, "index"))
	if err != nil {
		return nil, err
	}

	w := &Wallet{
		networkID:        networkID,
		keychains:        keychains,
		minConfirmations: 1,
		utxos:            make(map[wire.OutPoint]*UTXO),
		txs:              make(map[chainhash.Hash]*wire.MsgTx),
		confidence:       make(map[chainhash.Hash]*Confidence),
		txBlock:          make(map[chainhash.Hash]chainhash.Hash),
		path:             filepath.Join(path, "wallet.dat"),
		index:            idx,
		events:           NewEventQueue(),
	}

	if _, err := os.Stat(w.path); err == nil {
		if err := w.load(); err != nil {
			idx.close()
			return nil, err
		}
	}
	if err := idx.rebuildIndex(w); err != nil {
		idx.close()
		return nil, err
	}

	go w.events.Run()
	return w, nil
}

// Close stops the EventQueue consumer and closes the secondary index.
// It does not save; callers should Save explicitly first if the latest
// state must be durable.
func (w *Wallet) Close() error {
	w.events.Stop()
	w.events.Wait()
	return w.index.close()
}

// AddListener registers l to receive future notifications.
func (w *Wallet) AddListener(l Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, l)
}

// Keychains returns the KeyChains this Wallet tracks, in the order
// given to New.
func (w *Wallet) Keychains() []*keychain.KeyChain {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*keychain.KeyChain(nil), w.keychains...)
}

// ConfidenceOf returns the current Confidence for hash, if the Wallet
// has any record of it.
func (w *Wallet) ConfidenceOf(hash chainhash.Hash) (Confidence, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.confidence[hash]
	if !ok {
		return Confidence{}, false
	}
	return *c, true
}

// TxRecord pairs a tracked transaction with its current confidence, the
// shape RPC listing commands and on-disk dumps both want.
type TxRecord struct {
	Hash       chainhash.Hash
	Tx         *wire.MsgTx
	Confidence Confidence
}

// Transactions returns every transaction this Wallet tracks, regardless
// of confidence state, in no particular order.
func (w *Wallet) Transactions() []TxRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]TxRecord, 0, len(w.txs))
	for hash, tx := range w.txs {
		out = append(out, TxRecord{Hash: hash, Tx: tx, Confidence: *w.confidence[hash]})
	}
	return out
}

// UnspentOutputs returns a snapshot of every UTXO this Wallet currently
// tracks as unspent, regardless of confirmation depth.
func (w *Wallet) UnspentOutputs() []UTXO {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]UTXO, 0, len(w.utxos))
	for _, u := range w.utxos {
		out = append(out, *u)
	}
	return out
}

// SetMinConfirmations overrides the confirmation count coin selection
// requires before a UTXO is spendable without falling back to the
// unconfirmed-from-self exception.
func (w *Wallet) SetMinConfirmations(n int32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.minConfirmations = n
}

// findKeyLocked returns the Key and owning KeyChain for hash160, if any
// of the Wallet's KeyChains has issued or derived it into its lookahead
// index. Callers must hold w.mu.
func (w *Wallet) findKeyLocked(hash160 [20]byte) (*keychain.Key, *keychain.KeyChain, bool) {
	for _, kc := range w.keychains {
		if k, ok := kc.FindKeyByHash(hash160); ok {
			return k, kc, true
		}
	}
	return nil, nil, false
}

// ownsScriptLocked reports whether pkScript pays a key this Wallet
// tracks, returning its HASH160. Callers must hold w.mu.
func (w *Wallet) ownsScriptLocked(pkScript []byte) ([20]byte, bool) {
	var hash160 [20]byte
	h := txscript.ExtractPubKeyHash(pkScript)
	if h == nil {
		return hash160, false
	}
	copy(hash160[:], h)
	_, _, ok := w.findKeyLocked(hash160)
	return hash160, ok
}

// relevantLocked reports whether tx pays one of the Wallet's keys or
// spends one of its known UTXOs. Callers must hold w.mu.
func (w *Wallet) relevantLocked(tx *wire.MsgTx) bool {
	for _, out := range tx.TxOut {
		if _, ok := w.ownsScriptLocked(out.PkScript); ok {
			return true
		}
	}
	for _, in := range tx.TxIn {
		if _, ok := w.utxos[in.PreviousOutPoint]; ok {
			return true
		}
	}
	return false
}

// ReceivePending records tx as observed in mempool (spec.md §4.4's
// receivePending). dependencies are the unconfirmed parent transactions
// the caller already resolved for tx's inputs, used only to help
// recognize a wallet-relevant transaction whose inputs spend outputs
// this wallet has not seen confirmed yet; dependencies belonging to
// other wallets are ignored.
func (w *Wallet) ReceivePending(tx *wire.MsgTx, dependencies []*wire.MsgTx) error {
	w.mu.Lock()
	if !w.relevantLocked(tx) && !w.dependenciesPayUsLocked(tx, dependencies) {
		w.mu.Unlock()
		return nil
	}

	hash := tx.TxHash()
	if _, known := w.confidence[hash]; known {
		w.mu.Unlock()
		return nil
	}

	fromSelf := true
	for _, in := range tx.TxIn {
		if _, ok := w.utxos[in.PreviousOutPoint]; !ok {
			fromSelf = false
			break
		}
	}

	conf := w.addPendingLocked(tx, fromSelf)
	w.mu.Unlock()

	log.Debugf("received pending transaction %s (fromSelf=%v)", hash, fromSelf)
	w.postTransaction(tx, conf)
	w.postBalanceChanged()
	w.maybeAutoSave()
	return nil
}

// dependenciesPayUsLocked reports whether any transaction in deps is
// itself relevant, meaning tx (which spends or follows from deps)
// deserves a look even though its own outputs/inputs didn't directly
// match. Callers must hold w.mu.
func (w *Wallet) dependenciesPayUsLocked(_ *wire.MsgTx, deps []*wire.MsgTx) bool {
	for _, d := range deps {
		if w.relevantLocked(d) {
			return true
		}
	}
	return false
}

// addPendingLocked inserts tx into the pending pool with PENDING
// confidence, indexes any outputs paying this Wallet as pending UTXOs,
// removes any UTXOs its inputs spend, and marks the owning keys used.
// Callers must hold w.mu.
func (w *Wallet) addPendingLocked(tx *wire.MsgTx, fromSelf bool) Confidence {
	hash := tx.TxHash()
	conf := &Confidence{State: Pending, FromSelf: fromSelf}
	w.confidence[hash] = conf
	w.txs[hash] = tx

	for i, out := range tx.TxOut {
		hash160, ok := w.ownsScriptLocked(out.PkScript)
		if !ok {
			continue
		}
		if _, kc, ok := w.findKeyLocked(hash160); ok {
			_ = kc.MarkUsed(hash160)
		}
		op := wire.OutPoint{Hash: hash, Index: uint32(i)}
		u := &UTXO{OutPoint: op, Output: *out, KeyHash: hash160}
		w.utxos[op] = u
		_ = w.index.putUTXO(u)
	}
	for _, in := range tx.TxIn {
		if u, ok := w.utxos[in.PreviousOutPoint]; ok {
			delete(w.utxos, in.PreviousOutPoint)
			_ = w.index.deleteUTXO(u.OutPoint)
		}
	}
	_ = w.index.putConfidence(hash, *conf)
	return *conf
}

// ReceiveFromBlock records tx as confirmed in block (spec.md §4.4's
// receiveFromBlock). block.Height already carries everything a
// separate "relativity" argument would (the confirming height the
// depth count is measured from), so it is not threaded through as a
// distinct parameter.
func (w *Wallet) ReceiveFromBlock(tx *wire.MsgTx, block blockstore.StoredBlock) error {
	w.mu.Lock()
	hash := tx.TxHash()
	wasKnown := w.confidence[hash] != nil
	if !wasKnown && !w.relevantLocked(tx) {
		w.mu.Unlock()
		return nil
	}

	var conf Confidence
	if c, ok := w.confidence[hash]; ok {
		conf = *c
	}
	conf.State = Building
	conf.Height = block.Height
	conf.Depth = 1
	w.confidence[hash] = &conf
	w.txs[hash] = tx
	w.txBlock[hash] = block.Hash()

	for i, out := range tx.TxOut {
		hash160, ok := w.ownsScriptLocked(out.PkScript)
		if !ok {
			continue
		}
		op := wire.OutPoint{Hash: hash, Index: uint32(i)}
		u := &UTXO{OutPoint: op, Output: *out, KeyHash: hash160, Height: block.Height}
		w.utxos[op] = u
		_ = w.index.putUTXO(u)
	}

	spent := make(map[wire.OutPoint]bool, len(tx.TxIn))
	for _, in := range tx.TxIn {
		spent[in.PreviousOutPoint] = true
		if u, ok := w.utxos[in.PreviousOutPoint]; ok {
			delete(w.utxos, in.PreviousOutPoint)
			_ = w.index.deleteUTXO(u.OutPoint)
		}
	}
	_ = w.index.putConfidence(hash, conf)

	var overridden []chainhash.Hash
	for otherHash, otherTx := range w.txs {
		if otherHash == hash {
			continue
		}
		oc, ok := w.confidence[otherHash]
		if !ok || oc.State != Pending {
			continue
		}
		for _, in := range otherTx.TxIn {
			if spent[in.PreviousOutPoint] {
				oc.State = Dead
				oc.OverriddenBy = hash
				_ = w.index.putConfidence(otherHash, *oc)
				overridden = append(overridden, otherHash)
				break
			}
		}
	}
	w.mu.Unlock()

	log.Debugf("confirmed transaction %s in block %s at height %d", hash, block.Hash(), block.Height)
	if wasKnown {
		w.postConfidenceChanged(hash, conf)
	} else {
		w.postTransaction(tx, conf)
	}
	for _, h := range overridden {
		log.Debugf("transaction %s double-spent, overridden by %s", h, hash)
		w.postConfidenceChanged(h, *w.confidenceSnapshot(h))
	}
	w.postBalanceChanged()
	w.maybeAutoSave()
	return nil
}

func (w *Wallet) confidenceSnapshot(hash chainhash.Hash) *Confidence {
	w.mu.Lock()
	defer w.mu.Unlock()
	c := *w.confidence[hash]
	return &c
}

// OnBestBlock implements blockchain.WalletNotifiee, the concrete form
// of spec.md §4.4's notifyNewBestBlock: every BUILDING transaction's
// depth advances with the new tip.
func (w *Wallet) OnBestBlock(tip blockstore.StoredBlock) {
	w.mu.Lock()
	w.lastBlockSeen = tip
	var changed []chainhash.Hash
	for hash, c := range w.confidence {
		if c.State != Building {
			continue
		}
		newDepth := tip.Height - c.Height + 1
		if newDepth != c.Depth {
			c.Depth = newDepth
			changed = append(changed, hash)
		}
	}
	w.mu.Unlock()

	for _, hash := range changed {
		w.postConfidenceChanged(hash, *w.confidenceSnapshot(hash))
	}
	w.maybeAutoSave()
}

// OnReorganize implements blockchain.WalletNotifiee, the concrete form
// of spec.md §4.4's reorganize: transactions confirmed in a disconnected
// block move back to PENDING. Transactions belonging to newly connected
// blocks are not resurrected here (the BlockChain does not retain
// transaction bodies); they arrive the ordinary way, through
// ReceiveFromBlock, as the caller re-downloads the new branch's blocks.
func (w *Wallet) OnReorganize(disconnected, connected []blockstore.StoredBlock) {
	w.mu.Lock()
	disconnectedHashes := make(map[chainhash.Hash]bool, len(disconnected))
	for _, b := range disconnected {
		disconnectedHashes[b.Hash()] = true
	}

	var changed []chainhash.Hash
	for hash, blockHash := range w.txBlock {
		if !disconnectedHashes[blockHash] {
			continue
		}
		c := w.confidence[hash]
		c.State = Pending
		c.Height = 0
		c.Depth = 0
		delete(w.txBlock, hash)
		_ = w.index.putConfidence(hash, *c)
		changed = append(changed, hash)
	}
	w.mu.Unlock()

	if len(disconnected) > 0 {
		log.Infof("reorganize disconnected %d block(s), %d transaction(s) reverted to pending",
			len(disconnected), len(changed))
	}
	for _, hash := range changed {
		w.postConfidenceChanged(hash, *w.confidenceSnapshot(hash))
	}
	if len(changed) > 0 {
		w.postBalanceChanged()
	}
	w.maybeAutoSave()
}

// spendableCandidatesLocked returns confirmed UTXOs with at least
// minConfirmations, oldest (lowest height) first, followed by
// unconfirmed-from-self UTXOs; unconfirmed-from-others UTXOs are never
// included. Callers must hold w.mu.
func (w *Wallet) spendableCandidatesLocked() []*UTXO {
	var confirmed, unconfirmedSelf []*UTXO
	for op, u := range w.utxos {
		c, ok := w.confidence[op.Hash]
		switch {
		case ok && c.State == Building && (w.lastBlockSeen.Height-u.Height+1) >= w.minConfirmations:
			confirmed = append(confirmed, u)
		case ok && c.State == Pending && c.FromSelf:
			unconfirmedSelf = append(unconfirmedSelf, u)
		case !ok && u.Height > 0:
			// A confirmed UTXO created before any confidence record
			// existed for its transaction (e.g. after a fresh index
			// rebuild) is still spendable.
			confirmed = append(confirmed, u)
		}
	}
	sort.Slice(confirmed, func(i, j int) bool { return confirmed[i].Height < confirmed[j].Height })
	return append(confirmed, unconfirmedSelf...)
}

// SendRequest implements spec.md §4.4's outgoing path: selects coins
// via selector (DefaultCoinSelector if nil), assembles a to-output and
// an optional change output, computes the fee, signs every input
// through the owning KeyChain, and commits the result to the pending
// pool.
func (w *Wallet) SendRequest(to *address.Address, value, feeRate int64, selector CoinSelector) (*wire.MsgTx, error) {
	if selector == nil {
		selector = DefaultCoinSelector{}
	}
	toScript, err := txscript.PayToPubKeyHashScript(to.Hash160()[:])
	if err != nil {
		return nil, walleterrors.E(walleterrors.Invalid, "build destination script", err)
	}

	w.mu.Lock()

	candidates := w.spendableCandidatesLocked()

	var selected []*UTXO
	var total, fee int64
	for attempt := 0; attempt < 4; attempt++ {
		sel, tot, err := selector.SelectCoins(candidates, value+fee)
		if err != nil {
			w.mu.Unlock()
			return nil, err
		}
		selected, total = sel, tot

		change := total - value - fee
		numOutputs := 1
		if change >= DefaultDustThreshold {
			numOutputs = 2
		}
		size := estimatedTxSize(len(selected), numOutputs)
		newFee := size * feeRate
		if newFee == fee {
			break
		}
		fee = newFee
	}

	change := total - value - fee
	tx := &wire.MsgTx{Version: 1}
	const finalSequence = 0xffffffff
	for _, u := range selected {
		tx.TxIn = append(tx.TxIn, &wire.TxIn{PreviousOutPoint: u.OutPoint, Sequence: finalSequence})
	}
	tx.TxOut = append(tx.TxOut, &wire.TxOut{Value: value, PkScript: toScript})
	if change >= DefaultDustThreshold {
		changeKC := w.keychains[0]
		changeKey, err := changeKC.FreshKey(keychain.Internal)
		if err != nil {
			w.mu.Unlock()
			return nil, err
		}
		h160 := changeKey.Hash160()
		changeScript, err := txscript.PayToPubKeyHashScript(h160[:])
		if err != nil {
			w.mu.Unlock()
			return nil, walleterrors.E(walleterrors.Invalid, "build change script", err)
		}
		tx.TxOut = append(tx.TxOut, &wire.TxOut{Value: change, PkScript: changeScript})
	}

	for i, u := range selected {
		sigHash, err := txscript.CalcSignatureHash(u.Output.PkScript, txscript.SigHashAll, tx, i)
		if err != nil {
			w.mu.Unlock()
			return nil, walleterrors.E(walleterrors.Invalid, "compute signature hash", err)
		}
		key, kc, ok := w.findKeyLocked(u.KeyHash)
		if !ok {
			w.mu.Unlock()
			return nil, walleterrors.E(walleterrors.KeyMissing, "no keychain owns the selected UTXO's key", nil)
		}
		sig, err := kc.Sign(key, sigHash, txscript.SigHashAll)
		if err != nil {
			w.mu.Unlock()
			return nil, err
		}
		pub, err := key.ExtendedKey().ECPubKey()
		if err != nil {
			w.mu.Unlock()
			return nil, walleterrors.E(walleterrors.Invalid, "recover public key", err)
		}
		tx.TxIn[i].SignatureScript = txscript.SignatureScriptFromSig(sig, pub.SerializeCompressed())
	}

	conf := w.addPendingLocked(tx, true)
	w.mu.Unlock()

	w.postTransaction(tx, conf)
	w.postBalanceChanged()
	w.maybeAutoSave()
	return tx, nil
}

// estimatedTxSize approximates a transaction's serialized size from P2PKH
// input/output counts, used to converge on a fee before signing (the
// final signed size may differ by a byte or two from DER length
// variance, which spec.md §4.4 tolerates as a one-bucket re-iteration).
func estimatedTxSize(numIn, numOut int) int64 {
	const overhead = 10 // version(4) + locktime(4) + two tiny varints
	const inSize = 32 + 4 + 4 + estimatedSigScriptSize
	const outSize = 8 + 1 + 25
	return int64(overhead + numIn*inSize + numOut*outSize)
}

func (w *Wallet) postTransaction(tx *wire.MsgTx, conf Confidence) {
	w.events.Post(func(ctx context.Context) {
		w.mu.Lock()
		listeners := append([]Listener(nil), w.listeners...)
		w.mu.Unlock()
		for _, l := range listeners {
			l.OnTransaction(ctx, tx, conf)
		}
	})
}

func (w *Wallet) postConfidenceChanged(hash chainhash.Hash, conf Confidence) {
	w.events.Post(func(ctx context.Context) {
		w.mu.Lock()
		listeners := append([]Listener(nil), w.listeners...)
		w.mu.Unlock()
		for _, l := range listeners {
			l.OnConfidenceChanged(ctx, hash, conf)
		}
	})
}

// postBalanceChanged snapshots the current balance and notifies
// listeners. Called after any mutation that can move spendable value
// across the confirmed/unconfirmed boundary.
func (w *Wallet) postBalanceChanged() {
	confirmed, unconfirmed := w.Balance()
	w.events.Post(func(ctx context.Context) {
		w.mu.Lock()
		listeners := append([]Listener(nil), w.listeners...)
		w.mu.Unlock()
		for _, l := range listeners {
			l.OnBalanceChanged(ctx, confirmed, unconfirmed)
		}
	})
}

// Balance returns the confirmed and unconfirmed balances: confirmed sums
// every tracked UTXO whose transaction is Building, at any depth
// (minConfirmations is not applied); unconfirmed sums all other tracked
// UTXOs, whether or not coin selection would spend them.
func (w *Wallet) Balance() (confirmed, unconfirmed int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for op, u := range w.utxos {
		c, ok := w.confidence[op.Hash]
		if ok && c.State == Building {
			confirmed += u.Output.Value
		} else {
			unconfirmed += u.Output.Value
		}
	}
	return confirmed, unconfirmed
}

// maybeAutoSave snapshots and saves the wallet if at least
// autoSaveInterval has elapsed since the last save.
func (w *Wallet) maybeAutoSave() {
	w.mu.Lock()
	due := time.Since(w.lastSave) >= autoSaveInterval
	w.mu.Unlock()
	if due {
		_ = w.Save()
	}
}

// Save snapshots the wallet's state under mu, then writes it without
// holding the lock: a temp file is written, fsynced, renamed over the
// previous wallet file, and the containing directory is fsynced in
// turn, so a crash mid-write never corrupts the previous durable copy.
func (w *Wallet) Save() error {
	w.mu.Lock()
	buf := w.encodeLocked()
	w.lastSave = time.Now()
	w.mu.Unlock()

	dir := filepath.Dir(w.path)
	tmp, err := os.CreateTemp(dir, "wallet-*.tmp")
	if err != nil {
		return walleterrors.E(walleterrors.StoreIO, "create wallet temp file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return walleterrors.E(walleterrors.StoreIO, "write wallet temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return walleterrors.E(walleterrors.StoreIO, "fsync wallet temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return walleterrors.E(walleterrors.StoreIO, "close wallet temp file", err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return walleterrors.E(walleterrors.StoreIO, "rename wallet file into place", err)
	}

	dirFile, err := os.Open(dir)
	if err != nil {
		return walleterrors.E(walleterrors.StoreIO, "open wallet directory", err)
	}
	defer dirFile.Close()
	return dirFile.Sync()
}

const walletFileVersion = 1

// encodeLocked serializes the wallet's mutable state: version, network
// ID, last block seen, the UTXO set and the confidence table. Callers
// must hold w.mu.
//
// Per-KeyChain private material is not round-tripped here: each
// KeyChain is responsible for its own at-rest encryption (see
// keychain.KeyChain.Encrypt), and restoring a KeyChain's derivation
// state from seed/account material is the caller's responsibility when
// constructing the Wallet via New. This record covers exactly the state
// that only the Wallet itself can reconstruct: what it has seen on the
// chain.
func (w *Wallet) encodeLocked() []byte {
	var buf []byte
	put32 := func(v uint32) { var b [4]byte; binary.BigEndian.PutUint32(b[:], v); buf = append(buf, b[:]...) }
	put64 := func(v int64) { var b [8]byte; binary.BigEndian.PutUint64(b[:], uint64(v)); buf = append(buf, b[:]...) }

	put32(walletFileVersion)
	put32(uint32(len(w.networkID)))
	buf = append(buf, w.networkID...)
	lastHash := w.lastBlockSeen.Hash()
	buf = append(buf, lastHash[:]...)
	put32(uint32(w.lastBlockSeen.Height))

	put32(uint32(len(w.utxos)))
	for _, u := range w.utxos {
		buf = append(buf, u.OutPoint.Hash[:]...)
		put32(u.OutPoint.Index)
		put64(u.Output.Value)
		put32(uint32(len(u.Output.PkScript)))
		buf = append(buf, u.Output.PkScript...)
		buf = append(buf, u.KeyHash[:]...)
		put32(uint32(u.Height))
	}

	put32(uint32(len(w.confidence)))
	for hash, c := range w.confidence {
		buf = append(buf, hash[:]...)
		buf = append(buf, byte(c.State))
		put32(uint32(c.Height))
		put32(uint32(c.Depth))
		buf = append(buf, c.OverriddenBy[:]...)
	}
	return buf
}

// load reads and applies a previously-Saved record from w.path.
func (w *Wallet) load() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return walleterrors.E(walleterrors.StoreIO, "read wallet file", err)
	}
	r := &byteReader{buf: data}

	version := r.u32()
	if version != walletFileVersion {
		return walleterrors.E(walleterrors.ProtocolMalformed, "unsupported wallet file version", nil)
	}
	idLen := r.u32()
	w.networkID = string(r.bytes(int(idLen)))
	var lastHash chainhash.Hash
	copy(lastHash[:], r.bytes(chainhash.HashSize))
	lastHeight := int32(r.u32())
	w.lastBlockSeen = blockstore.StoredBlock{Height: lastHeight}
	_ = lastHash // the saved header hash is read past but not used; lastBlockSeen keeps only the height

	numUTXOs := r.u32()
	for i := uint32(0); i < numUTXOs; i++ {
		var op wire.OutPoint
		copy(op.Hash[:], r.bytes(chainhash.HashSize))
		op.Index = r.u32()
		value := r.i64()
		scriptLen := r.u32()
		script := r.bytes(int(scriptLen))
		var keyHash [20]byte
		copy(keyHash[:], r.bytes(20))
		height := int32(r.u32())
		w.utxos[op] = &UTXO{
			OutPoint: op,
			Output:   wire.TxOut{Value: value, PkScript: append([]byte(nil), script...)},
			KeyHash:  keyHash,
			Height:   height,
		}
	}

	numConf := r.u32()
	for i := uint32(0); i < numConf; i++ {
		var hash chainhash.Hash
		copy(hash[:], r.bytes(chainhash.HashSize))
		state := ConfidenceState(r.byte())
		height := int32(r.u32())
		depth := int32(r.u32())
		var overriddenBy chainhash.Hash
		copy(overriddenBy[:], r.bytes(chainhash.HashSize))
		w.confidence[hash] = &Confidence{State: state, Height: height, Depth: depth, OverriddenBy: overriddenBy}
		// The confirming block hash itself is not persisted (only height);
		// a reorganize affecting a transaction loaded this way is only
		// caught once it is seen fresh from the chain again, since
		// txBlock is rebuilt empty on load.
	}
	if r.err != nil {
		return walleterrors.E(walleterrors.ProtocolMalformed, "truncated wallet file", r.err)
	}
	return nil
}

// byteReader is a tiny cursor over a []byte that records the first
// short-read error instead of panicking, so load can check r.err once
// at the end instead of after every field.
type byteReader struct {
	buf []byte
	pos int
	err error
}

func (r *byteReader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.buf) {
		r.err = walleterrors.E(walleterrors.ProtocolMalformed, "unexpected end of wallet file", nil)
		return make([]byte, n)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *byteReader) byte() byte {
	b := r.bytes(1)
	return b[0]
}

func (r *byteReader) u32() uint32 {
	return binary.BigEndian.Uint32(r.bytes(4))
}

func (r *byteReader) i64() int64 {
	return int64(binary.BigEndian.Uint64(r.bytes(8)))
}
