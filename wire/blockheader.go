// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"io"
	"time"

	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
)

// BlockHeaderLen is the number of bytes in a bit-exact serialized block
// header: version(4) + prev-hash(32) + merkle-root(32) + time(4) + bits(4)
// + nonce(4).
const BlockHeaderLen = 80

// BlockHeader defines information about a block and is used in the bitcoin
// block (MsgBlock) and headers (MsgHeaders) messages.
type BlockHeader struct {
	Version    int32
	PrevBlock  chainhash.Hash
	MerkleRoot chainhash.Hash
	Timestamp  time.Time
	Bits       uint32
	Nonce      uint32
}

// BlockHash computes the double-SHA256 hash of the header, interpreted as
// the block's identifying hash.
func (h *BlockHeader) BlockHash() chainhash.Hash {
	var buf bytes.Buffer
	buf.Grow(BlockHeaderLen)
	_ = h.Serialize(&buf)
	return chainhash.HashH(buf.Bytes())
}

// Serialize writes the 80-byte bit-exact encoding of the header to w.
func (h *BlockHeader) Serialize(w io.Writer) error {
	if err := writeInt32(w, h.Version); err != nil {
		return err
	}
	if err := writeHash(w, h.PrevBlock); err != nil {
		return err
	}
	if err := writeHash(w, h.MerkleRoot); err != nil {
		return err
	}
	if err := writeUnixTime32(w, h.Timestamp); err != nil {
		return err
	}
	if err := writeUint32(w, h.Bits); err != nil {
		return err
	}
	return writeUint32(w, h.Nonce)
}

// Deserialize reads the 80-byte bit-exact encoding of a header from r.
func (h *BlockHeader) Deserialize(r io.Reader) error {
	var err error
	if h.Version, err = readInt32(r); err != nil {
		return err
	}
	if h.PrevBlock, err = readHash(r); err != nil {
		return err
	}
	if h.MerkleRoot, err = readHash(r); err != nil {
		return err
	}
	if h.Timestamp, err = readUnixTime32(r); err != nil {
		return err
	}
	if h.Bits, err = readUint32(r); err != nil {
		return err
	}
	h.Nonce, err = readUint32(r)
	return err
}

// NewBlockHeader returns a new BlockHeader using the provided fields.
func NewBlockHeader(version int32, prevHash, merkleRootHash *chainhash.Hash, bits uint32, nonce uint32) *BlockHeader {
	return &BlockHeader{
		Version:    version,
		PrevBlock:  *prevHash,
		MerkleRoot: *merkleRootHash,
		Timestamp:  time.Unix(time.Now().Unix(), 0),
		Bits:       bits,
		Nonce:      nonce,
	}
}
