// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"
)

// invList implements the shared encode/decode logic of inv and getdata,
// which differ only in command string.
type invList struct {
	InvList []*InvVect
}

func (msg *invList) addInvVect(iv *InvVect) error {
	if len(msg.InvList)+1 > maxInvPerMsg {
		return fmt.Errorf("too many inventory vectors in message [max %d]", maxInvPerMsg)
	}
	msg.InvList = append(msg.InvList, iv)
	return nil
}

func (msg *invList) encode(w io.Writer) error {
	if len(msg.InvList) > maxInvPerMsg {
		return fmt.Errorf("too many inventory vectors for message [max %d]", maxInvPerMsg)
	}
	if err := writeVarInt(w, uint64(len(msg.InvList))); err != nil {
		return err
	}
	for _, iv := range msg.InvList {
		if err := writeInvVect(w, iv); err != nil {
			return err
		}
	}
	return nil
}

func (msg *invList) decode(r io.Reader) error {
	count, err := readVarInt(r)
	if err != nil {
		return err
	}
	if count > maxInvPerMsg {
		return fmt.Errorf("too many inventory vectors for message [count %d, max %d]", count, maxInvPerMsg)
	}
	msg.InvList = make([]*InvVect, 0, count)
	for i := uint64(0); i < count; i++ {
		iv, err := readInvVect(r)
		if err != nil {
			return err
		}
		msg.InvList = append(msg.InvList, iv)
	}
	return nil
}

// MsgInv implements the Message interface and is used to advertise
// knowledge of transactions and/or blocks.
type MsgInv struct{ invList }

// AddInvVect adds an inventory vector to the message.
func (msg *MsgInv) AddInvVect(iv *InvVect) error { return msg.addInvVect(iv) }

func (msg *MsgInv) BtcEncode(w io.Writer, pver uint32) error { return msg.encode(w) }
func (msg *MsgInv) BtcDecode(r io.Reader, pver uint32) error { return msg.decode(r) }
func (msg *MsgInv) Command() string                          { return CmdInv }
func (msg *MsgInv) MaxPayloadLength(pver uint32) uint32       { return 9 + (maxInvPerMsg * 36) }

// MsgGetData implements the Message interface and is used to request
// specific data (transactions or blocks) previously advertised via inv,
// and, with InvTypeFilteredBlock, to request merkleblock delivery.
type MsgGetData struct{ invList }

// AddInvVect adds an inventory vector to the message.
func (msg *MsgGetData) AddInvVect(iv *InvVect) error { return msg.addInvVect(iv) }

func (msg *MsgGetData) BtcEncode(w io.Writer, pver uint32) error { return msg.encode(w) }
func (msg *MsgGetData) BtcDecode(r io.Reader, pver uint32) error { return msg.decode(r) }
func (msg *MsgGetData) Command() string                          { return CmdGetData }
func (msg *MsgGetData) MaxPayloadLength(pver uint32) uint32       { return 9 + (maxInvPerMsg * 36) }
