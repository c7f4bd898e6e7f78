// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import "github.com/ndau-spv/spvcore/chaincfg/chainhash"

// ConfidenceState classifies how sure the Wallet is that a transaction
// will remain part of the best chain.
type ConfidenceState int

const (
	// Unknown is the zero value: no confidence record exists yet.
	Unknown ConfidenceState = iota

	// Pending transactions have been observed (in a peer's mempool, or
	// just created by this wallet) but are not yet in any block.
	Pending

	// Building transactions are confirmed in a block on the current
	// best chain, at Height, Depth blocks deep (the confirming block
	// itself is depth 1).
	Building

	// Dead transactions lost a double-spend race: OverriddenBy names
	// the transaction that spent the same input(s) and was confirmed
	// instead.
	Dead
)

func (s ConfidenceState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Building:
		return "building"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// Confidence records a transaction's position relative to the best
// chain. A transaction is never simultaneously Building and Pending.
type Confidence struct {
	State        ConfidenceState
	Height       int32
	Depth        int32
	OverriddenBy chainhash.Hash

	// FromSelf marks a Pending transaction whose inputs are all known
	// to spend this wallet's own outputs, the BIP 'trust my own
	// unconfirmed change' exception coin selection relies on.
	FromSelf bool
}
