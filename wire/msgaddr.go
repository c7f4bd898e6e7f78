// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"
)

// MsgAddr implements the Message interface and is used to relay peer
// addresses gossiped across the network (spec.md §4.5, discovery sources).
type MsgAddr struct {
	AddrList []*NetAddress
}

// AddAddress adds a single address to the message, enforcing the protocol
// maximum.
func (msg *MsgAddr) AddAddress(na *NetAddress) error {
	if len(msg.AddrList)+1 > maxAddrPerMsg {
		return fmt.Errorf("too many addresses in message [max %d]", maxAddrPerMsg)
	}
	msg.AddrList = append(msg.AddrList, na)
	return nil
}

func (msg *MsgAddr) BtcEncode(w io.Writer, pver uint32) error {
	if len(msg.AddrList) > maxAddrPerMsg {
		return fmt.Errorf("too many addresses for message [max %d]", maxAddrPerMsg)
	}
	if err := writeVarInt(w, uint64(len(msg.AddrList))); err != nil {
		return err
	}
	for _, na := range msg.AddrList {
		if err := writeNetAddress(w, na, true); err != nil {
			return err
		}
	}
	return nil
}

func (msg *MsgAddr) BtcDecode(r io.Reader, pver uint32) error {
	count, err := readVarInt(r)
	if err != nil {
		return err
	}
	if count > maxAddrPerMsg {
		return fmt.Errorf("too many addresses for message [count %d, max %d]", count, maxAddrPerMsg)
	}
	msg.AddrList = make([]*NetAddress, 0, count)
	for i := uint64(0); i < count; i++ {
		na, err := readNetAddress(r, true)
		if err != nil {
			return err
		}
		msg.AddrList = append(msg.AddrList, na)
	}
	return nil
}

func (msg *MsgAddr) Command() string                    { return CmdAddr }
func (msg *MsgAddr) MaxPayloadLength(pver uint32) uint32 { return 3 + (maxAddrPerMsg * 30) }
