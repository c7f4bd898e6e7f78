// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"
)

// maxFilterLoadFilterSize and maxFilterLoadHashFuncs bound a filterload
// message's parameters per BIP37.
const (
	maxFilterLoadFilterSize = 36000
	maxFilterLoadHashFuncs  = 50
)

// BloomUpdateType controls how matching outputs update an installed filter.
type BloomUpdateType uint8

const (
	// BloomUpdateNone never updates the filter from matched data.
	BloomUpdateNone BloomUpdateType = 0
	// BloomUpdateAll adds the outpoint of any matched output to the
	// filter so future spends of it are also matched.
	BloomUpdateAll BloomUpdateType = 1
	// BloomUpdateP2PubkeyOnly is like BloomUpdateAll but restricted to
	// pay-to-pubkey and multisig outputs.
	BloomUpdateP2PubkeyOnly BloomUpdateType = 2
)

// MsgFilterLoad implements the Message interface and installs a bloom
// filter on the receiving peer's connection, per BIP37.
type MsgFilterLoad struct {
	Filter    []byte
	HashFuncs uint32
	Tweak     uint32
	Flags     BloomUpdateType
}

func (msg *MsgFilterLoad) BtcEncode(w io.Writer, pver uint32) error {
	if len(msg.Filter) > maxFilterLoadFilterSize {
		return fmt.Errorf("filterload filter size %d exceeds max %d", len(msg.Filter), maxFilterLoadFilterSize)
	}
	if msg.HashFuncs > maxFilterLoadHashFuncs {
		return fmt.Errorf("filterload hash func count %d exceeds max %d", msg.HashFuncs, maxFilterLoadHashFuncs)
	}
	if err := writeVarBytes(w, msg.Filter); err != nil {
		return err
	}
	if err := writeUint32(w, msg.HashFuncs); err != nil {
		return err
	}
	if err := writeUint32(w, msg.Tweak); err != nil {
		return err
	}
	_, err := w.Write([]byte{byte(msg.Flags)})
	return err
}

func (msg *MsgFilterLoad) BtcDecode(r io.Reader, pver uint32) error {
	var err error
	if msg.Filter, err = readVarBytes(r, maxFilterLoadFilterSize, "filterload filter"); err != nil {
		return err
	}
	if msg.HashFuncs, err = readUint32(r); err != nil {
		return err
	}
	if msg.HashFuncs > maxFilterLoadHashFuncs {
		return fmt.Errorf("filterload hash func count %d exceeds max %d", msg.HashFuncs, maxFilterLoadHashFuncs)
	}
	if msg.Tweak, err = readUint32(r); err != nil {
		return err
	}
	var flags [1]byte
	if _, err := io.ReadFull(r, flags[:]); err != nil {
		return err
	}
	msg.Flags = BloomUpdateType(flags[0])
	return nil
}

func (msg *MsgFilterLoad) Command() string                    { return CmdFilterLoad }
func (msg *MsgFilterLoad) MaxPayloadLength(pver uint32) uint32 { return 9 + maxFilterLoadFilterSize + 9 }

// MsgFilterAdd implements the Message interface and adds a single element
// (a script, pubkey, or outpoint) to an already-installed filter, avoiding
// a full filter rebuild for every newly issued key.
type MsgFilterAdd struct {
	Data []byte
}

const maxFilterAddDataSize = 520

func (msg *MsgFilterAdd) BtcEncode(w io.Writer, pver uint32) error {
	if len(msg.Data) > maxFilterAddDataSize {
		return fmt.Errorf("filteradd data size %d exceeds max %d", len(msg.Data), maxFilterAddDataSize)
	}
	return writeVarBytes(w, msg.Data)
}

func (msg *MsgFilterAdd) BtcDecode(r io.Reader, pver uint32) error {
	var err error
	msg.Data, err = readVarBytes(r, maxFilterAddDataSize, "filteradd data")
	return err
}

func (msg *MsgFilterAdd) Command() string                    { return CmdFilterAdd }
func (msg *MsgFilterAdd) MaxPayloadLength(pver uint32) uint32 { return 9 + maxFilterAddDataSize }
