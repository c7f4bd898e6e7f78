// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgVersion implements the Message interface and is the first message a
// peer sends when opening a connection, advertising its protocol version,
// services, and current best height.
type MsgVersion struct {
	ProtocolVersion int32
	Services        ServiceFlag
	Timestamp       int64
	AddrYou         NetAddress
	AddrMe          NetAddress
	Nonce           uint64
	UserAgent       string
	LastBlock       int32
	DisableRelayTx  bool
}

// BtcEncode implements the Message interface.
func (msg *MsgVersion) BtcEncode(w io.Writer, pver uint32) error {
	if err := writeInt32(w, msg.ProtocolVersion); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(msg.Services)); err != nil {
		return err
	}
	if err := writeInt64(w, msg.Timestamp); err != nil {
		return err
	}
	if err := writeNetAddress(w, &msg.AddrYou, false); err != nil {
		return err
	}
	if err := writeNetAddress(w, &msg.AddrMe, false); err != nil {
		return err
	}
	if err := writeUint64(w, msg.Nonce); err != nil {
		return err
	}
	if err := writeVarString(w, msg.UserAgent); err != nil {
		return err
	}
	if err := writeInt32(w, msg.LastBlock); err != nil {
		return err
	}
	relay := byte(1)
	if msg.DisableRelayTx {
		relay = 0
	}
	_, err := w.Write([]byte{relay})
	return err
}

// BtcDecode implements the Message interface.
func (msg *MsgVersion) BtcDecode(r io.Reader, pver uint32) error {
	var err error
	if msg.ProtocolVersion, err = readInt32(r); err != nil {
		return err
	}
	services, err := readUint64(r)
	if err != nil {
		return err
	}
	msg.Services = ServiceFlag(services)
	if msg.Timestamp, err = readInt64(r); err != nil {
		return err
	}
	addrYou, err := readNetAddress(r, false)
	if err != nil {
		return err
	}
	msg.AddrYou = *addrYou
	addrMe, err := readNetAddress(r, false)
	if err != nil {
		return err
	}
	msg.AddrMe = *addrMe
	if msg.Nonce, err = readUint64(r); err != nil {
		return err
	}
	if msg.UserAgent, err = readVarString(r); err != nil {
		return err
	}
	if msg.LastBlock, err = readInt32(r); err != nil {
		return err
	}

	// The relay flag is optional on old protocol versions and at the very
	// tail of the message; treat EOF here as "relay enabled" rather than
	// an error.
	var relay [1]byte
	if _, err := io.ReadFull(r, relay[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			msg.DisableRelayTx = false
			return nil
		}
		return err
	}
	msg.DisableRelayTx = relay[0] == 0
	return nil
}

// Command implements the Message interface.
func (msg *MsgVersion) Command() string { return CmdVersion }

// MaxPayloadLength implements the Message interface.
func (msg *MsgVersion) MaxPayloadLength(pver uint32) uint32 { return 358 }
