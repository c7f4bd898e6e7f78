// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgVerAck defines a message with no payload exchanged after MsgVersion to
// acknowledge a peer's version announcement.
type MsgVerAck struct{}

func (msg *MsgVerAck) BtcEncode(w io.Writer, pver uint32) error { return nil }
func (msg *MsgVerAck) BtcDecode(r io.Reader, pver uint32) error { return nil }
func (msg *MsgVerAck) Command() string                         { return CmdVerAck }
func (msg *MsgVerAck) MaxPayloadLength(pver uint32) uint32      { return 0 }

// MsgPing carries a nonce a peer echoes back in a pong to measure latency
// and detect stalled connections.
type MsgPing struct {
	Nonce uint64
}

func (msg *MsgPing) BtcEncode(w io.Writer, pver uint32) error { return writeUint64(w, msg.Nonce) }
func (msg *MsgPing) BtcDecode(r io.Reader, pver uint32) error {
	n, err := readUint64(r)
	msg.Nonce = n
	return err
}
func (msg *MsgPing) Command() string                    { return CmdPing }
func (msg *MsgPing) MaxPayloadLength(pver uint32) uint32 { return 8 }

// MsgPong is a reply to MsgPing, echoing the same nonce.
type MsgPong struct {
	Nonce uint64
}

func (msg *MsgPong) BtcEncode(w io.Writer, pver uint32) error { return writeUint64(w, msg.Nonce) }
func (msg *MsgPong) BtcDecode(r io.Reader, pver uint32) error {
	n, err := readUint64(r)
	msg.Nonce = n
	return err
}
func (msg *MsgPong) Command() string                    { return CmdPong }
func (msg *MsgPong) MaxPayloadLength(pver uint32) uint32 { return 8 }

// MsgMemPool requests the set of transactions the receiving peer has
// accepted into its mempool. It carries no payload.
type MsgMemPool struct{}

func (msg *MsgMemPool) BtcEncode(w io.Writer, pver uint32) error { return nil }
func (msg *MsgMemPool) BtcDecode(r io.Reader, pver uint32) error { return nil }
func (msg *MsgMemPool) Command() string                         { return CmdMemPool }
func (msg *MsgMemPool) MaxPayloadLength(pver uint32) uint32      { return 0 }

// MsgFilterClear requests that the receiving peer remove any bloom filter
// that was previously installed via MsgFilterLoad. It carries no payload.
type MsgFilterClear struct{}

func (msg *MsgFilterClear) BtcEncode(w io.Writer, pver uint32) error { return nil }
func (msg *MsgFilterClear) BtcDecode(r io.Reader, pver uint32) error { return nil }
func (msg *MsgFilterClear) Command() string                         { return CmdFilterClear }
func (msg *MsgFilterClear) MaxPayloadLength(pver uint32) uint32      { return 0 }

// RejectCode represents a reason a message was rejected, per the original
// "reject" message (removed from mainline Bitcoin Core but still useful for
// the core's own error reporting to misbehaving test peers).
type RejectCode uint8

const (
	RejectMalformed       RejectCode = 0x01
	RejectInvalid         RejectCode = 0x10
	RejectObsolete        RejectCode = 0x11
	RejectDuplicate       RejectCode = 0x12
	RejectNonstandard     RejectCode = 0x40
	RejectDust            RejectCode = 0x41
	RejectInsufficientFee RejectCode = 0x42
	RejectCheckpoint      RejectCode = 0x43
)

// MsgReject implements the Message interface and represents a rejection of
// a message previously sent, carrying the offending command, a reason code,
// a human-readable reason, and (for block/tx rejections) the hash
// identifying the rejected item.
type MsgReject struct {
	Cmd    string
	Code   RejectCode
	Reason string
	Hash   [32]byte
}

func (msg *MsgReject) BtcEncode(w io.Writer, pver uint32) error {
	if err := writeVarString(w, msg.Cmd); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(msg.Code)}); err != nil {
		return err
	}
	if err := writeVarString(w, msg.Reason); err != nil {
		return err
	}
	if msg.Cmd == CmdBlock || msg.Cmd == CmdTx {
		if _, err := w.Write(msg.Hash[:]); err != nil {
			return err
		}
	}
	return nil
}

func (msg *MsgReject) BtcDecode(r io.Reader, pver uint32) error {
	var err error
	if msg.Cmd, err = readVarString(r); err != nil {
		return err
	}
	var code [1]byte
	if _, err := io.ReadFull(r, code[:]); err != nil {
		return err
	}
	msg.Code = RejectCode(code[0])
	if msg.Reason, err = readVarString(r); err != nil {
		return err
	}
	if msg.Cmd == CmdBlock || msg.Cmd == CmdTx {
		if _, err := io.ReadFull(r, msg.Hash[:]); err != nil {
			// Some reference implementations omit the hash for
			// obsolete-version rejections; treat a clean EOF as absent
			// rather than malformed.
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
	return nil
}

func (msg *MsgReject) Command() string                    { return CmdReject }
func (msg *MsgReject) MaxPayloadLength(pver uint32) uint32 { return MaxMessagePayload }

// MsgAlert represents the legacy alert system message. Per spec.md §6 its
// content is intentionally ignored: Bitcoin Core retired the alert key in
// 2016 and no core subsystem acts on alert payloads, but old peers may
// still send them and the envelope must still decode cleanly so the
// connection isn't penalized for it.
type MsgAlert struct {
	Payload   []byte
	Signature []byte
}

func (msg *MsgAlert) BtcEncode(w io.Writer, pver uint32) error {
	if err := writeVarBytes(w, msg.Payload); err != nil {
		return err
	}
	return writeVarBytes(w, msg.Signature)
}

func (msg *MsgAlert) BtcDecode(r io.Reader, pver uint32) error {
	var err error
	if msg.Payload, err = readVarBytes(r, MaxMessagePayload, "alert payload"); err != nil {
		return err
	}
	msg.Signature, err = readVarBytes(r, MaxMessagePayload, "alert signature")
	return err
}

func (msg *MsgAlert) Command() string                    { return CmdAlert }
func (msg *MsgAlert) MaxPayloadLength(pver uint32) uint32 { return MaxMessagePayload }
