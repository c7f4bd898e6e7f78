// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"

	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
)

// maxFlagsPerMerkleBlock bounds the flag-bit byte string of a merkleblock.
const maxFlagsPerMerkleBlock = 1 << 16

// MsgMerkleBlock implements the Message interface and represents a block's
// header together with a partial merkle tree proving inclusion of the
// transactions the sending peer believes match the receiver's bloom
// filter, per BIP37.
type MsgMerkleBlock struct {
	Header       BlockHeader
	Transactions uint32
	Hashes       []*chainhash.Hash
	Flags        []byte
}

// AddTxHash adds a new transaction hash to the merkle block.
func (msg *MsgMerkleBlock) AddTxHash(hash *chainhash.Hash) error {
	if len(msg.Hashes)+1 > maxBlockTxPerMessage {
		return fmt.Errorf("too many tx hashes for message [max %d]", maxBlockTxPerMessage)
	}
	msg.Hashes = append(msg.Hashes, hash)
	return nil
}

func (msg *MsgMerkleBlock) BtcEncode(w io.Writer, pver uint32) error {
	if err := msg.Header.Serialize(w); err != nil {
		return err
	}
	if err := writeUint32(w, msg.Transactions); err != nil {
		return err
	}
	if err := writeVarInt(w, uint64(len(msg.Hashes))); err != nil {
		return err
	}
	for _, hash := range msg.Hashes {
		if err := writeHash(w, *hash); err != nil {
			return err
		}
	}
	return writeVarBytes(w, msg.Flags)
}

func (msg *MsgMerkleBlock) BtcDecode(r io.Reader, pver uint32) error {
	if err := msg.Header.Deserialize(r); err != nil {
		return err
	}
	var err error
	if msg.Transactions, err = readUint32(r); err != nil {
		return err
	}
	count, err := readVarInt(r)
	if err != nil {
		return err
	}
	if count > maxBlockTxPerMessage {
		return fmt.Errorf("too many tx hashes for message [count %d, max %d]", count, maxBlockTxPerMessage)
	}
	msg.Hashes = make([]*chainhash.Hash, 0, count)
	for i := uint64(0); i < count; i++ {
		hash, err := readHash(r)
		if err != nil {
			return err
		}
		msg.Hashes = append(msg.Hashes, &hash)
	}
	msg.Flags, err = readVarBytes(r, maxFlagsPerMerkleBlock, "merkleblock flags")
	return err
}

func (msg *MsgMerkleBlock) Command() string                    { return CmdMerkleBlock }
func (msg *MsgMerkleBlock) MaxPayloadLength(pver uint32) uint32 { return MaxMessagePayload }
