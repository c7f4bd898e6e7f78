// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
)

// maxBlockTxPerMessage bounds the transaction count of a decoded block as a
// denial-of-service guard; it is generous since the core downloads
// merkleblocks and decodes a full block only when a peer sends one.
const maxBlockTxPerMessage = 1 << 20

// MsgBlock implements the Message interface and represents a full block.
type MsgBlock struct {
	Header       BlockHeader
	Transactions []*MsgTx
}

// BlockHash returns the block's identifying hash, the hash of its header.
func (msg *MsgBlock) BlockHash() chainhash.Hash {
	return msg.Header.BlockHash()
}

// AddTransaction adds a transaction to the message.
func (msg *MsgBlock) AddTransaction(tx *MsgTx) {
	msg.Transactions = append(msg.Transactions, tx)
}

// BtcEncode implements the Message interface.
func (msg *MsgBlock) BtcEncode(w io.Writer, pver uint32) error {
	if err := msg.Header.Serialize(w); err != nil {
		return err
	}
	if err := writeVarInt(w, uint64(len(msg.Transactions))); err != nil {
		return err
	}
	for _, tx := range msg.Transactions {
		if err := tx.Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

// BtcDecode implements the Message interface.
func (msg *MsgBlock) BtcDecode(r io.Reader, pver uint32) error {
	if err := msg.Header.Deserialize(r); err != nil {
		return err
	}
	count, err := readVarInt(r)
	if err != nil {
		return err
	}
	if count > maxBlockTxPerMessage {
		return errTooManyBlockTxs
	}
	msg.Transactions = make([]*MsgTx, 0, count)
	for i := uint64(0); i < count; i++ {
		tx := &MsgTx{}
		if err := tx.Deserialize(r); err != nil {
			return err
		}
		msg.Transactions = append(msg.Transactions, tx)
	}
	return nil
}

// Command implements the Message interface.
func (msg *MsgBlock) Command() string { return CmdBlock }

// MaxPayloadLength implements the Message interface.
func (msg *MsgBlock) MaxPayloadLength(pver uint32) uint32 { return MaxMessagePayload }

const errTooManyBlockTxs = txEncodingError("too many transactions in block")
