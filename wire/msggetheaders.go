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

// MsgGetHeaders implements the Message interface and requests a headers
// message containing up to 2000 headers beginning just after the first
// known block in BlockLocatorHashes, terminating at HashStop (a zero hash
// requests as many as are available).
type MsgGetHeaders struct {
	ProtocolVersion    uint32
	BlockLocatorHashes []*chainhash.Hash
	HashStop           chainhash.Hash
}

// AddBlockLocatorHash adds a new hash to the message's locator, a sequence
// of hashes the requesting peer believes may be on the best chain, most
// recent first, thinning exponentially toward genesis.
func (msg *MsgGetHeaders) AddBlockLocatorHash(hash *chainhash.Hash) error {
	if len(msg.BlockLocatorHashes)+1 > maxBlockLocatorsPerMsg {
		return fmt.Errorf("too many block locator hashes for message [max %d]", maxBlockLocatorsPerMsg)
	}
	msg.BlockLocatorHashes = append(msg.BlockLocatorHashes, hash)
	return nil
}

func (msg *MsgGetHeaders) BtcEncode(w io.Writer, pver uint32) error {
	if err := writeUint32(w, msg.ProtocolVersion); err != nil {
		return err
	}
	if len(msg.BlockLocatorHashes) > maxBlockLocatorsPerMsg {
		return fmt.Errorf("too many block locator hashes for message [max %d]", maxBlockLocatorsPerMsg)
	}
	if err := writeVarInt(w, uint64(len(msg.BlockLocatorHashes))); err != nil {
		return err
	}
	for _, hash := range msg.BlockLocatorHashes {
		if err := writeHash(w, *hash); err != nil {
			return err
		}
	}
	return writeHash(w, msg.HashStop)
}

func (msg *MsgGetHeaders) BtcDecode(r io.Reader, pver uint32) error {
	var err error
	if msg.ProtocolVersion, err = readUint32(r); err != nil {
		return err
	}
	count, err := readVarInt(r)
	if err != nil {
		return err
	}
	if count > maxBlockLocatorsPerMsg {
		return fmt.Errorf("too many block locator hashes for message [count %d, max %d]",
			count, maxBlockLocatorsPerMsg)
	}
	msg.BlockLocatorHashes = make([]*chainhash.Hash, 0, count)
	for i := uint64(0); i < count; i++ {
		hash, err := readHash(r)
		if err != nil {
			return err
		}
		msg.BlockLocatorHashes = append(msg.BlockLocatorHashes, &hash)
	}
	msg.HashStop, err = readHash(r)
	return err
}

func (msg *MsgGetHeaders) Command() string { return CmdGetHeaders }

func (msg *MsgGetHeaders) MaxPayloadLength(pver uint32) uint32 {
	return 4 + 9 + (maxBlockLocatorsPerMsg * chainhash.HashSize) + chainhash.HashSize
}

// MsgHeaders implements the Message interface and carries a batch of block
// headers (without transactions) in response to a getheaders request.
type MsgHeaders struct {
	Headers []*BlockHeader
}

// AddBlockHeader adds a new block header to the message.
func (msg *MsgHeaders) AddBlockHeader(bh *BlockHeader) error {
	if len(msg.Headers)+1 > maxBlockHeadersPerMsg {
		return fmt.Errorf("too many block headers for message [max %d]", maxBlockHeadersPerMsg)
	}
	msg.Headers = append(msg.Headers, bh)
	return nil
}

func (msg *MsgHeaders) BtcEncode(w io.Writer, pver uint32) error {
	if len(msg.Headers) > maxBlockHeadersPerMsg {
		return fmt.Errorf("too many block headers for message [max %d]", maxBlockHeadersPerMsg)
	}
	if err := writeVarInt(w, uint64(len(msg.Headers))); err != nil {
		return err
	}
	for _, bh := range msg.Headers {
		if err := bh.Serialize(w); err != nil {
			return err
		}
		// Headers messages carry a transaction count of zero after each
		// header; no transactions are ever included.
		if err := writeVarInt(w, 0); err != nil {
			return err
		}
	}
	return nil
}

func (msg *MsgHeaders) BtcDecode(r io.Reader, pver uint32) error {
	count, err := readVarInt(r)
	if err != nil {
		return err
	}
	if count > maxBlockHeadersPerMsg {
		return fmt.Errorf("too many block headers for message [count %d, max %d]",
			count, maxBlockHeadersPerMsg)
	}
	msg.Headers = make([]*BlockHeader, 0, count)
	for i := uint64(0); i < count; i++ {
		bh := &BlockHeader{}
		if err := bh.Deserialize(r); err != nil {
			return err
		}
		txCount, err := readVarInt(r)
		if err != nil {
			return err
		}
		if txCount != 0 {
			return fmt.Errorf("headers message header %d claims %d transactions, want 0", i, txCount)
		}
		msg.Headers = append(msg.Headers, bh)
	}
	return nil
}

func (msg *MsgHeaders) Command() string { return CmdHeaders }

func (msg *MsgHeaders) MaxPayloadLength(pver uint32) uint32 {
	return 9 + (maxBlockHeadersPerMsg * (BlockHeaderLen + 1))
}
