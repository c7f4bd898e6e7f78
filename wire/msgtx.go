// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"io"

	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
)

// maxTxInPerMessage and maxTxOutPerMessage bound the input/output counts of
// a single decoded transaction as a denial-of-service guard.
const (
	maxTxInPerMessage  = 1 << 20
	maxTxOutPerMessage = 1 << 20
	maxScriptSize      = 10000

	// witnessMarker and witnessFlag are the two bytes inserted after the
	// version field of a segwit-encoded transaction, per BIP144.
	witnessMarker = 0x00
	witnessFlag   = 0x01
)

// OutPoint defines a combination of a transaction hash and index n into its
// vout that uniquely identifies a transaction output.
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

// NewOutPoint returns a new OutPoint for the given hash and index.
func NewOutPoint(hash *chainhash.Hash, index uint32) *OutPoint {
	return &OutPoint{Hash: *hash, Index: index}
}

func (o OutPoint) String() string {
	return o.Hash.String() + ":" + itoa(int(o.Index))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// TxIn defines a transaction input.
type TxIn struct {
	PreviousOutPoint OutPoint
	SignatureScript  []byte
	Witness          [][]byte
	Sequence         uint32
}

// SerializeSize returns the number of bytes it would take to serialize the
// transaction input, excluding witness data (which is accounted for
// separately by MsgTx when the witness encoding is in use).
func (t *TxIn) SerializeSize() int {
	return 32 + 4 + varIntSize(uint64(len(t.SignatureScript))) + len(t.SignatureScript) + 4
}

// TxOut defines a transaction output.
type TxOut struct {
	Value    int64
	PkScript []byte
}

// SerializeSize returns the number of bytes it would take to serialize the
// transaction output.
func (t *TxOut) SerializeSize() int {
	return 8 + varIntSize(uint64(len(t.PkScript))) + len(t.PkScript)
}

func varIntSize(v uint64) int {
	switch {
	case v < 0xfd:
		return 1
	case v <= 0xffff:
		return 3
	case v <= 0xffffffff:
		return 5
	default:
		return 9
	}
}

// MsgTx implements the Message interface and represents a bitcoin-family
// transaction. When Witness data is present on any input, Serialize (and so
// BtcEncode, whatever pver) uses the BIP144 encoding with the marker/flag
// bytes; otherwise the legacy encoding applies. TxHash always hashes the
// legacy encoding.
type MsgTx struct {
	Version  int32
	TxIn     []*TxIn
	TxOut    []*TxOut
	LockTime uint32
}

// hasWitness reports whether any input carries witness data.
func (msg *MsgTx) hasWitness() bool {
	for _, in := range msg.TxIn {
		if len(in.Witness) > 0 {
			return true
		}
	}
	return false
}

// Serialize writes the canonical bit-exact encoding of the transaction,
// using the segwit marker/flag encoding only when witness data is present.
func (msg *MsgTx) Serialize(w io.Writer) error {
	useWitness := msg.hasWitness()

	if err := writeInt32(w, msg.Version); err != nil {
		return err
	}

	if useWitness {
		if _, err := w.Write([]byte{witnessMarker, witnessFlag}); err != nil {
			return err
		}
	}

	if err := writeVarInt(w, uint64(len(msg.TxIn))); err != nil {
		return err
	}
	for _, ti := range msg.TxIn {
		if err := writeTxIn(w, ti); err != nil {
			return err
		}
	}

	if err := writeVarInt(w, uint64(len(msg.TxOut))); err != nil {
		return err
	}
	for _, to := range msg.TxOut {
		if err := writeTxOut(w, to); err != nil {
			return err
		}
	}

	if useWitness {
		for _, ti := range msg.TxIn {
			if err := writeVarInt(w, uint64(len(ti.Witness))); err != nil {
				return err
			}
			for _, item := range ti.Witness {
				if err := writeVarBytes(w, item); err != nil {
					return err
				}
			}
		}
	}

	return writeUint32(w, msg.LockTime)
}

func writeTxIn(w io.Writer, ti *TxIn) error {
	if err := writeHash(w, ti.PreviousOutPoint.Hash); err != nil {
		return err
	}
	if err := writeUint32(w, ti.PreviousOutPoint.Index); err != nil {
		return err
	}
	if err := writeVarBytes(w, ti.SignatureScript); err != nil {
		return err
	}
	return writeUint32(w, ti.Sequence)
}

func readTxIn(r io.Reader) (*TxIn, error) {
	ti := &TxIn{}
	var err error
	if ti.PreviousOutPoint.Hash, err = readHash(r); err != nil {
		return nil, err
	}
	if ti.PreviousOutPoint.Index, err = readUint32(r); err != nil {
		return nil, err
	}
	if ti.SignatureScript, err = readVarBytes(r, maxScriptSize, "signature script"); err != nil {
		return nil, err
	}
	if ti.Sequence, err = readUint32(r); err != nil {
		return nil, err
	}
	return ti, nil
}

func writeTxOut(w io.Writer, to *TxOut) error {
	if err := writeInt64(w, to.Value); err != nil {
		return err
	}
	return writeVarBytes(w, to.PkScript)
}

func readTxOut(r io.Reader) (*TxOut, error) {
	to := &TxOut{}
	var err error
	if to.Value, err = readInt64(r); err != nil {
		return nil, err
	}
	if to.PkScript, err = readVarBytes(r, maxScriptSize, "pk script"); err != nil {
		return nil, err
	}
	return to, nil
}

// Deserialize decodes a transaction from r, transparently handling the
// BIP144 witness marker/flag if present.
func (msg *MsgTx) Deserialize(r io.Reader) error {
	var err error
	if msg.Version, err = readInt32(r); err != nil {
		return err
	}

	count, err := readVarInt(r)
	if err != nil {
		return err
	}

	useWitness := false
	if count == 0 {
		// Possible segwit marker: a zero tx-in count is otherwise invalid,
		// so a zero followed by the flag byte signals the witness encoding.
		var flag [1]byte
		if _, err := io.ReadFull(r, flag[:]); err != nil {
			return err
		}
		if flag[0] != witnessFlag {
			return errInvalidTxEncoding
		}
		useWitness = true
		if count, err = readVarInt(r); err != nil {
			return err
		}
	}

	if count > maxTxInPerMessage {
		return errTooManyTxIns
	}
	msg.TxIn = make([]*TxIn, 0, count)
	for i := uint64(0); i < count; i++ {
		ti, err := readTxIn(r)
		if err != nil {
			return err
		}
		msg.TxIn = append(msg.TxIn, ti)
	}

	outCount, err := readVarInt(r)
	if err != nil {
		return err
	}
	if outCount > maxTxOutPerMessage {
		return errTooManyTxOuts
	}
	msg.TxOut = make([]*TxOut, 0, outCount)
	for i := uint64(0); i < outCount; i++ {
		to, err := readTxOut(r)
		if err != nil {
			return err
		}
		msg.TxOut = append(msg.TxOut, to)
	}

	if useWitness {
		for _, ti := range msg.TxIn {
			witCount, err := readVarInt(r)
			if err != nil {
				return err
			}
			ti.Witness = make([][]byte, 0, witCount)
			for i := uint64(0); i < witCount; i++ {
				item, err := readVarBytes(r, maxScriptSize, "witness item")
				if err != nil {
					return err
				}
				ti.Witness = append(ti.Witness, item)
			}
		}
	}

	msg.LockTime, err = readUint32(r)
	return err
}

// TxHash computes the transaction's identifying double-SHA256 hash. Per
// BIP141, the txid always excludes witness data even when the transaction
// carries one, so TxHash forces the legacy (non-witness) encoding.
func (msg *MsgTx) TxHash() chainhash.Hash {
	var buf bytes.Buffer
	_ = msg.serializeNoWitness(&buf)
	return chainhash.HashH(buf.Bytes())
}

func (msg *MsgTx) serializeNoWitness(w io.Writer) error {
	if err := writeInt32(w, msg.Version); err != nil {
		return err
	}
	if err := writeVarInt(w, uint64(len(msg.TxIn))); err != nil {
		return err
	}
	for _, ti := range msg.TxIn {
		if err := writeTxIn(w, ti); err != nil {
			return err
		}
	}
	if err := writeVarInt(w, uint64(len(msg.TxOut))); err != nil {
		return err
	}
	for _, to := range msg.TxOut {
		if err := writeTxOut(w, to); err != nil {
			return err
		}
	}
	return writeUint32(w, msg.LockTime)
}

// Copy returns a deep copy of the transaction, suitable for mutating
// while computing a signature hash without disturbing the original.
func (msg *MsgTx) Copy() *MsgTx {
	txCopy := &MsgTx{
		Version:  msg.Version,
		LockTime: msg.LockTime,
		TxIn:     make([]*TxIn, len(msg.TxIn)),
		TxOut:    make([]*TxOut, len(msg.TxOut)),
	}
	for i, ti := range msg.TxIn {
		sigScript := append([]byte(nil), ti.SignatureScript...)
		var witness [][]byte
		if ti.Witness != nil {
			witness = make([][]byte, len(ti.Witness))
			for j, item := range ti.Witness {
				witness[j] = append([]byte(nil), item...)
			}
		}
		txCopy.TxIn[i] = &TxIn{
			PreviousOutPoint: ti.PreviousOutPoint,
			SignatureScript:  sigScript,
			Witness:          witness,
			Sequence:         ti.Sequence,
		}
	}
	for i, to := range msg.TxOut {
		txCopy.TxOut[i] = &TxOut{
			Value:    to.Value,
			PkScript: append([]byte(nil), to.PkScript...),
		}
	}
	return txCopy
}

// BtcEncode implements the Message interface.
func (msg *MsgTx) BtcEncode(w io.Writer, pver uint32) error {
	return msg.Serialize(w)
}

// BtcDecode implements the Message interface.
func (msg *MsgTx) BtcDecode(r io.Reader, pver uint32) error {
	return msg.Deserialize(r)
}

// Command implements the Message interface.
func (msg *MsgTx) Command() string { return CmdTx }

// MaxPayloadLength implements the Message interface.
func (msg *MsgTx) MaxPayloadLength(pver uint32) uint32 { return MaxMessagePayload }

type txEncodingError string

func (e txEncodingError) Error() string { return string(e) }

const (
	errInvalidTxEncoding txEncodingError = "invalid transaction encoding: zero inputs without witness flag"
	errTooManyTxIns      txEncodingError = "too many transaction inputs"
	errTooManyTxOuts     txEncodingError = "too many transaction outputs"
)
