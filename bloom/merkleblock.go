// Copyright (c) 2018 The ExchangeCoin team
// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bloom

import (
	"errors"

	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/wire"
)

// ErrInvalidPartialMerkleTree is returned by ExtractMatches when a
// received merkleblock's flag/hash pair fails to reconstruct a
// consistent tree: too many or too few hashes consumed, or whole bytes
// of flag bits left unconsumed.
var ErrInvalidPartialMerkleTree = errors.New("bloom: invalid partial merkle tree")

// merkleTreeBuilder accumulates the hash and flag-bit streams of a BIP37
// partial merkle tree while walking the full tree depth-first.
type merkleTreeBuilder struct {
	txHashes []*chainhash.Hash
	matches  []bool
	bits     []bool
	hashes   []*chainhash.Hash
}

func treeWidth(numTx, height uint32) uint32 {
	return (numTx + (1 << height) - 1) >> height
}

func (b *merkleTreeBuilder) calcHash(height, pos uint32) chainhash.Hash {
	if height == 0 {
		return *b.txHashes[pos]
	}
	left := b.calcHash(height-1, pos*2)
	width := treeWidth(uint32(len(b.txHashes)), height-1)
	var right chainhash.Hash
	if pos*2+1 < width {
		right = b.calcHash(height-1, pos*2+1)
	} else {
		right = left
	}
	return chainhash.HashH(append(append([]byte(nil), left[:]...), right[:]...))
}

// traverseAndBuild walks the tree from height down to the leaves, at
// each node recording a single flag bit (whether the subtree beneath it
// contains a match) and, for non-matching subtrees and leaves, the
// subtree's hash.
func (b *merkleTreeBuilder) traverseAndBuild(height, pos uint32) {
	var anyMatch bool
	firstLeaf := pos << height
	numTx := uint32(len(b.txHashes))
	width := treeWidth(numTx, height)
	for i := uint32(0); i < 1<<height && firstLeaf+i < numTx; i++ {
		if b.matches[firstLeaf+i] {
			anyMatch = true
		}
	}
	b.bits = append(b.bits, anyMatch)
	if height == 0 || !anyMatch {
		h := b.calcHash(height, pos)
		b.hashes = append(b.hashes, &h)
		return
	}
	_ = width
	b.traverseAndBuild(height-1, pos*2)
	if pos*2+1 < treeWidth(numTx, height-1) {
		b.traverseAndBuild(height-1, pos*2+1)
	}
}

// NewMerkleBlock returns the BIP37 merkleblock message a full-validating
// peer sends an SPV client in response to a getdata for a block that
// matched filter, together with the block-order indices of the matched
// transactions.
func NewMerkleBlock(block *wire.MsgBlock, filter *Filter) (*wire.MsgMerkleBlock, []uint32) {
	numTx := uint32(len(block.Transactions))
	b := &merkleTreeBuilder{
		txHashes: make([]*chainhash.Hash, numTx),
		matches:  make([]bool, numTx),
	}

	var matchedIndexes []uint32
	for i, tx := range block.Transactions {
		txHash := tx.TxHash()
		b.txHashes[i] = &txHash
		if txMatchesFilter(tx, filter) {
			b.matches[i] = true
			matchedIndexes = append(matchedIndexes, uint32(i))
		}
	}

	height := uint32(0)
	for treeWidth(numTx, height) > 1 {
		height++
	}
	b.traverseAndBuild(height, 0)

	flags := make([]byte, (len(b.bits)+7)/8)
	for i, bit := range b.bits {
		if bit {
			flags[i/8] |= 1 << (uint(i) % 8)
		}
	}

	msg := &wire.MsgMerkleBlock{
		Header:       block.Header,
		Transactions: numTx,
		Hashes:       b.hashes,
		Flags:        flags,
	}
	return msg, matchedIndexes
}

// txMatchesFilter reports whether any of tx's inputs or outputs match
// filter: its own hash, the hash of any previous outpoint it spends, a
// whole input or output script, or any direct data push (opcodes 0x01
// through 0x4b) in one. Scanning a script stops at OP_PUSHDATA1/2/4.
func txMatchesFilter(tx *wire.MsgTx, filter *Filter) bool {
	matchesPush := func(script []byte) bool {
		for i := 0; i < len(script) && (script[i] < 0x4c || script[i] > 0x4e); i++ {
			if n := int(script[i]); n >= 0x01 && n <= 0x4b && i+1+n <= len(script) {
				if filter.Matches(script[i+1 : i+1+n]) {
					return true
				}
				i += n
			}
		}
		return false
	}
	txHash := tx.TxHash()
	if filter.MatchesHash(&txHash) {
		return true
	}
	for _, out := range tx.TxOut {
		if filter.Matches(out.PkScript) || matchesPush(out.PkScript) {
			return true
		}
	}
	for _, in := range tx.TxIn {
		if filter.Matches(in.SignatureScript) || matchesPush(in.SignatureScript) {
			return true
		}
		if filter.MatchesHash(&in.PreviousOutPoint.Hash) {
			return true
		}
	}
	return false
}

// partialTreeExtractor mirrors merkleTreeBuilder but walks a received
// flag/hash stream instead of a full transaction list, recovering the
// merkle root and the matched leaf hashes.
type partialTreeExtractor struct {
	numTx   uint32
	bits    []bool
	hashes  []*chainhash.Hash
	bitsUsed   uint32
	hashesUsed uint32
	matched    []*chainhash.Hash
	matchedIdx []uint32
}

func (e *partialTreeExtractor) traverseAndExtract(height, pos uint32) (chainhash.Hash, error) {
	if e.bitsUsed >= uint32(len(e.bits)) {
		return chainhash.Hash{}, ErrInvalidPartialMerkleTree
	}
	bit := e.bits[e.bitsUsed]
	e.bitsUsed++

	if height == 0 || !bit {
		if e.hashesUsed >= uint32(len(e.hashes)) {
			return chainhash.Hash{}, ErrInvalidPartialMerkleTree
		}
		h := e.hashes[e.hashesUsed]
		e.hashesUsed++
		if height == 0 && bit {
			e.matched = append(e.matched, h)
			e.matchedIdx = append(e.matchedIdx, pos)
		}
		return *h, nil
	}

	left, err := e.traverseAndExtract(height-1, pos*2)
	if err != nil {
		return chainhash.Hash{}, err
	}
	width := treeWidth(e.numTx, height-1)
	right := left
	if pos*2+1 < width {
		right, err = e.traverseAndExtract(height-1, pos*2+1)
		if err != nil {
			return chainhash.Hash{}, err
		}
	}
	return chainhash.HashH(append(append([]byte(nil), left[:]...), right[:]...)), nil
}

// ExtractMatches verifies msg's partial merkle tree and returns the
// recomputed merkle root along with the hashes of the transactions the
// sending peer claims matched the filter it was sent, in block order. A
// non-nil error means the message is malformed and must be discarded;
// the caller must separately compare the returned root against the
// block header it trusts before accepting the matches.
func ExtractMatches(msg *wire.MsgMerkleBlock) (chainhash.Hash, []*chainhash.Hash, error) {
	if msg.Transactions == 0 {
		return chainhash.Hash{}, nil, ErrInvalidPartialMerkleTree
	}

	bits := make([]bool, len(msg.Flags)*8)
	for i := range bits {
		bits[i] = msg.Flags[i/8]&(1<<(uint(i)%8)) != 0
	}

	height := uint32(0)
	for treeWidth(msg.Transactions, height) > 1 {
		height++
	}

	e := &partialTreeExtractor{
		numTx:  msg.Transactions,
		bits:   bits,
		hashes: msg.Hashes,
	}
	root, err := e.traverseAndExtract(height, 0)
	if err != nil {
		return chainhash.Hash{}, nil, err
	}
	if e.hashesUsed != uint32(len(e.hashes)) {
		return chainhash.Hash{}, nil, ErrInvalidPartialMerkleTree
	}
	if (e.bitsUsed+7)/8 != uint32(len(msg.Flags)) {
		return chainhash.Hash{}, nil, ErrInvalidPartialMerkleTree
	}
	return root, e.matched, nil
}
