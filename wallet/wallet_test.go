// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ndau-spv/spvcore/address"
	"github.com/ndau-spv/spvcore/blockstore"
	"github.com/ndau-spv/spvcore/chaincfg"
	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/hdkeychain"
	"github.com/ndau-spv/spvcore/keychain"
	"github.com/ndau-spv/spvcore/txscript"
	"github.com/ndau-spv/spvcore/wallet"
	"github.com/ndau-spv/spvcore/walleterrors"
	"github.com/ndau-spv/spvcore/wire"
)

func testSeed(t *testing.T) []byte {
	t.Helper()
	seed, err := hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
	if err != nil {
		t.Fatalf("generate seed: %v", err)
	}
	return seed
}

func newTestWallet(t *testing.T, kcs ...*keychain.KeyChain) *wallet.Wallet {
	t.Helper()
	if len(kcs) == 0 {
		kc, err := keychain.New(testSeed(t), chaincfg.MainNetParams(), 0)
		if err != nil {
			t.Fatalf("keychain.New: %v", err)
		}
		kcs = []*keychain.KeyChain{kc}
	}
	w, err := wallet.New(filepath.Join(t.TempDir(), "wallet"), "mainnet", kcs...)
	if err != nil {
		t.Fatalf("wallet.New: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

// payToKeychain builds a one-output transaction paying value satoshis
// to the keychain's next fresh external address.
func payToKeychain(t *testing.T, kc *keychain.KeyChain, value int64) *wire.MsgTx {
	t.Helper()
	key, err := kc.FreshKey(keychain.External)
	if err != nil {
		t.Fatalf("FreshKey: %v", err)
	}
	hash160 := key.Hash160()
	script, err := txscript.PayToPubKeyHashScript(hash160[:])
	if err != nil {
		t.Fatalf("PayToPubKeyHashScript: %v", err)
	}
	return &wire.MsgTx{
		Version: 1,
		TxIn: []*wire.TxIn{{
			PreviousOutPoint: wire.OutPoint{Index: 0xffffffff},
		}},
		TxOut: []*wire.TxOut{{Value: value, PkScript: script}},
	}
}

func testBlock(height int32, nonce uint32) blockstore.StoredBlock {
	return blockstore.StoredBlock{
		Header: wire.BlockHeader{Version: 1, Nonce: nonce},
		Height: height,
	}
}

type recordingListener struct {
	txs        []chainhash.Hash
	confidence []chainhash.Hash
	balance    int
}

func (r *recordingListener) OnTransaction(_ context.Context, tx *wire.MsgTx, _ wallet.Confidence) {
	r.txs = append(r.txs, tx.TxHash())
}

func (r *recordingListener) OnConfidenceChanged(_ context.Context, hash chainhash.Hash, _ wallet.Confidence) {
	r.confidence = append(r.confidence, hash)
}

func (r *recordingListener) OnBalanceChanged(_ context.Context, _, _ int64) {
	r.balance++
}

func TestReceivePendingTracksOwnedOutput(t *testing.T) {
	w := newTestWallet(t)
	tx := payToKeychain(t, w.Keychains()[0], 50000)

	if err := w.ReceivePending(tx, nil); err != nil {
		t.Fatalf("ReceivePending: %v", err)
	}

	_, unconfirmed := w.Balance()
	if unconfirmed != 50000 {
		t.Fatalf("unconfirmed balance = %d, want 50000", unconfirmed)
	}
}

func TestTransactionsAndUnspentOutputsReflectReceivedTx(t *testing.T) {
	w := newTestWallet(t)
	tx := payToKeychain(t, w.Keychains()[0], 50000)

	if err := w.ReceivePending(tx, nil); err != nil {
		t.Fatalf("ReceivePending: %v", err)
	}

	records := w.Transactions()
	if len(records) != 1 {
		t.Fatalf("Transactions() returned %d records, want 1", len(records))
	}
	if records[0].Hash != tx.TxHash() {
		t.Fatalf("Transactions()[0].Hash = %s, want %s", records[0].Hash, tx.TxHash())
	}
	if records[0].Confidence.State != wallet.Pending {
		t.Fatalf("Transactions()[0].Confidence.State = %v, want Pending", records[0].Confidence.State)
	}

	utxos := w.UnspentOutputs()
	if len(utxos) != 1 {
		t.Fatalf("UnspentOutputs() returned %d outputs, want 1", len(utxos))
	}
	if utxos[0].OutPoint.Hash != tx.TxHash() {
		t.Fatalf("UnspentOutputs()[0].OutPoint.Hash = %s, want %s", utxos[0].OutPoint.Hash, tx.TxHash())
	}
}

func TestReceiveFromBlockConfirmsAndAdvancesDepth(t *testing.T) {
	w := newTestWallet(t)
	tx := payToKeychain(t, w.Keychains()[0], 75000)

	block := testBlock(10, 1)
	if err := w.ReceiveFromBlock(tx, block); err != nil {
		t.Fatalf("ReceiveFromBlock: %v", err)
	}

	confirmed, _ := w.Balance()
	if confirmed != 75000 {
		t.Fatalf("confirmed balance = %d, want 75000", confirmed)
	}

	w.OnBestBlock(testBlock(12, 2))

	conf, ok := w.ConfidenceOf(tx.TxHash())
	if !ok {
		t.Fatal("expected confidence record after confirmation")
	}
	if conf.State != wallet.Building {
		t.Fatalf("state = %v, want Building", conf.State)
	}
	if conf.Depth != 3 {
		t.Fatalf("depth = %d, want 3 (12-10+1)", conf.Depth)
	}
}

func TestOnReorganizeMovesConfirmedBackToPending(t *testing.T) {
	w := newTestWallet(t)
	tx := payToKeychain(t, w.Keychains()[0], 20000)

	block := testBlock(5, 7)
	if err := w.ReceiveFromBlock(tx, block); err != nil {
		t.Fatalf("ReceiveFromBlock: %v", err)
	}

	w.OnReorganize([]blockstore.StoredBlock{block}, nil)

	conf, ok := w.ConfidenceOf(tx.TxHash())
	if !ok {
		t.Fatal("expected confidence record to survive reorganize")
	}
	if conf.State != wallet.Pending {
		t.Fatalf("state = %v, want Pending after disconnect", conf.State)
	}
	if conf.Height != 0 || conf.Depth != 0 {
		t.Fatalf("height/depth = %d/%d, want 0/0", conf.Height, conf.Depth)
	}
}

func TestReceiveFromBlockMarksConflictingPendingTxDead(t *testing.T) {
	w := newTestWallet(t)
	funding := payToKeychain(t, w.Keychains()[0], 100000)
	if err := w.ReceiveFromBlock(funding, testBlock(1, 1)); err != nil {
		t.Fatalf("ReceiveFromBlock(funding): %v", err)
	}

	spentOutpoint := wire.OutPoint{Hash: funding.TxHash(), Index: 0}

	loser := &wire.MsgTx{
		Version: 1,
		TxIn:    []*wire.TxIn{{PreviousOutPoint: spentOutpoint}},
		TxOut:   []*wire.TxOut{{Value: 90000, PkScript: funding.TxOut[0].PkScript}},
	}
	if err := w.ReceivePending(loser, []*wire.MsgTx{funding}); err != nil {
		t.Fatalf("ReceivePending(loser): %v", err)
	}

	winner := &wire.MsgTx{
		Version: 1,
		TxIn:    []*wire.TxIn{{PreviousOutPoint: spentOutpoint}},
		TxOut:   []*wire.TxOut{{Value: 80000, PkScript: funding.TxOut[0].PkScript}},
	}
	if err := w.ReceiveFromBlock(winner, testBlock(2, 2)); err != nil {
		t.Fatalf("ReceiveFromBlock(winner): %v", err)
	}

	conf, ok := w.ConfidenceOf(loser.TxHash())
	if !ok {
		t.Fatal("expected the double-spent transaction to remain tracked")
	}
	if conf.State != wallet.Dead {
		t.Fatalf("loser state = %v, want Dead", conf.State)
	}
	if conf.OverriddenBy != winner.TxHash() {
		t.Fatalf("OverriddenBy = %v, want %v", conf.OverriddenBy, winner.TxHash())
	}
}

func TestSendRequestSelectsSignsAndCommits(t *testing.T) {
	sender := newTestWallet(t)
	kc := sender.Keychains()[0]

	funding := payToKeychain(t, kc, 1000000)
	if err := sender.ReceiveFromBlock(funding, testBlock(1, 1)); err != nil {
		t.Fatalf("ReceiveFromBlock: %v", err)
	}
	sender.OnBestBlock(testBlock(1, 1))

	recipientKC, err := keychain.New(testSeed(t), chaincfg.MainNetParams(), 1)
	if err != nil {
		t.Fatalf("keychain.New(recipient): %v", err)
	}
	recipientKey, err := recipientKC.FreshKey(keychain.External)
	if err != nil {
		t.Fatalf("FreshKey: %v", err)
	}
	recipientHash := recipientKey.Hash160()
	to, err := address.NewAddressPubKeyHash(recipientHash[:], chaincfg.MainNetParams())
	if err != nil {
		t.Fatalf("NewAddressPubKeyHash: %v", err)
	}

	tx, err := sender.SendRequest(to, 250000, 10, nil)
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}

	if len(tx.TxIn) == 0 {
		t.Fatal("expected at least one input")
	}
	for i, in := range tx.TxIn {
		if len(in.SignatureScript) == 0 {
			t.Fatalf("input %d was not signed", i)
		}
	}
	if tx.TxOut[0].Value != 250000 {
		t.Fatalf("first output value = %d, want 250000", tx.TxOut[0].Value)
	}

	conf, ok := sender.ConfidenceOf(tx.TxHash())
	if !ok || conf.State != wallet.Pending || !conf.FromSelf {
		t.Fatalf("sent transaction not tracked as pending-from-self: %+v, ok=%v", conf, ok)
	}
}

func TestSendRequestInsufficientFunds(t *testing.T) {
	w := newTestWallet(t)
	kc := w.Keychains()[0]

	funding := payToKeychain(t, kc, 1000)
	if err := w.ReceiveFromBlock(funding, testBlock(1, 1)); err != nil {
		t.Fatalf("ReceiveFromBlock: %v", err)
	}
	w.OnBestBlock(testBlock(1, 1))

	destKey, err := kc.FreshKey(keychain.External)
	if err != nil {
		t.Fatalf("FreshKey: %v", err)
	}
	destHash := destKey.Hash160()
	to, err := address.NewAddressPubKeyHash(destHash[:], chaincfg.MainNetParams())
	if err != nil {
		t.Fatalf("NewAddressPubKeyHash: %v", err)
	}

	_, err = w.SendRequest(to, 500000, 10, nil)
	if !errors.Is(err, walleterrors.InsufficientMoney) {
		t.Fatalf("err = %v, want InsufficientMoney", err)
	}
}

func TestListenersNotifiedOnTransactionAndBalance(t *testing.T) {
	w := newTestWallet(t)
	l := &recordingListener{}
	w.AddListener(l)

	tx := payToKeychain(t, w.Keychains()[0], 30000)
	if err := w.ReceivePending(tx, nil); err != nil {
		t.Fatalf("ReceivePending: %v", err)
	}

	w.Close() // drains the EventQueue before we inspect the listener

	if len(l.txs) != 1 || l.txs[0] != tx.TxHash() {
		t.Fatalf("OnTransaction calls = %v, want [%v]", l.txs, tx.TxHash())
	}
	if l.balance == 0 {
		t.Fatal("expected at least one OnBalanceChanged notification")
	}
}

func TestSaveAndLoadRoundTripsUTXOsAndConfidence(t *testing.T) {
	dir := t.TempDir()
	kc, err := keychain.New(testSeed(t), chaincfg.MainNetParams(), 0)
	if err != nil {
		t.Fatalf("keychain.New: %v", err)
	}

	w, err := wallet.New(filepath.Join(dir, "wallet"), "mainnet", kc)
	if err != nil {
		t.Fatalf("wallet.New: %v", err)
	}
	tx := payToKeychain(t, kc, 60000)
	if err := w.ReceiveFromBlock(tx, testBlock(3, 9)); err != nil {
		t.Fatalf("ReceiveFromBlock: %v", err)
	}
	if err := w.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	w.Close()

	reopened, err := wallet.New(filepath.Join(dir, "wallet"), "mainnet", kc)
	if err != nil {
		t.Fatalf("wallet.New (reopen): %v", err)
	}
	defer reopened.Close()

	confirmed, _ := reopened.Balance()
	if confirmed != 60000 {
		t.Fatalf("confirmed balance after reload = %d, want 60000", confirmed)
	}
	conf, ok := reopened.ConfidenceOf(tx.TxHash())
	if !ok || conf.State != wallet.Building {
		t.Fatalf("confidence after reload = %+v, ok=%v, want Building", conf, ok)
	}
}
