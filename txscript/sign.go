// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/wire"
)

// SigHashType represents the signature hash flags appended to a DER
// signature, controlling which parts of the spending transaction the
// signature commits to.
type SigHashType uint32

const (
	SigHashAll          SigHashType = 0x1
	SigHashNone         SigHashType = 0x2
	SigHashSingle       SigHashType = 0x3
	SigHashAnyOneCanPay SigHashType = 0x80
)

// CalcSignatureHash computes the legacy (pre-segwit) signature hash for
// the input at idx of tx, spending a previous output locked by
// subscript, under the given hash type.
func CalcSignatureHash(subscript []byte, hashType SigHashType, tx *wire.MsgTx, idx int) (chainhash.Hash, error) {
	if idx < 0 || idx >= len(tx.TxIn) {
		return chainhash.Hash{}, fmt.Errorf("input index %d out of range", idx)
	}

	txCopy := tx.Copy()
	for i := range txCopy.TxIn {
		if i == idx {
			txCopy.TxIn[i].SignatureScript = subscript
		} else {
			txCopy.TxIn[i].SignatureScript = nil
			if hashType&0x1f == SigHashNone || hashType&0x1f == SigHashSingle {
				txCopy.TxIn[i].Sequence = 0
			}
		}
		txCopy.TxIn[i].Witness = nil
	}

	switch hashType & 0x1f {
	case SigHashNone:
		txCopy.TxOut = nil
	case SigHashSingle:
		if idx >= len(txCopy.TxOut) {
			return chainhash.Hash{}, fmt.Errorf("SigHashSingle index %d exceeds output count", idx)
		}
		txCopy.TxOut = txCopy.TxOut[:idx+1]
		for i := 0; i < idx; i++ {
			txCopy.TxOut[i].Value = -1
			txCopy.TxOut[i].PkScript = nil
		}
	}

	if hashType&SigHashAnyOneCanPay != 0 {
		txCopy.TxIn = []*wire.TxIn{txCopy.TxIn[idx]}
	}

	var buf bytes.Buffer
	if err := txCopy.Serialize(&buf); err != nil {
		return chainhash.Hash{}, err
	}
	_ = binary.Write(&buf, binary.LittleEndian, uint32(hashType))

	return chainhash.HashH(buf.Bytes()), nil
}

// CalcWitnessSignatureHash computes the BIP143 witness signature hash for
// the input at idx of tx, spending amount value satoshis of a previous
// output locked by subscript.
func CalcWitnessSignatureHash(subscript []byte, hashType SigHashType, tx *wire.MsgTx, idx int, value int64) (chainhash.Hash, error) {
	if idx < 0 || idx >= len(tx.TxIn) {
		return chainhash.Hash{}, fmt.Errorf("input index %d out of range", idx)
	}

	var hashPrevouts, hashSequence, hashOutputs chainhash.Hash

	if hashType&SigHashAnyOneCanPay == 0 {
		var b bytes.Buffer
		for _, in := range tx.TxIn {
			b.Write(in.PreviousOutPoint.Hash[:])
			_ = binary.Write(&b, binary.LittleEndian, in.PreviousOutPoint.Index)
		}
		hashPrevouts = chainhash.HashH(b.Bytes())
	}

	if hashType&SigHashAnyOneCanPay == 0 && hashType&0x1f != SigHashSingle && hashType&0x1f != SigHashNone {
		var b bytes.Buffer
		for _, in := range tx.TxIn {
			_ = binary.Write(&b, binary.LittleEndian, in.Sequence)
		}
		hashSequence = chainhash.HashH(b.Bytes())
	}

	switch hashType & 0x1f {
	case SigHashAll:
		var b bytes.Buffer
		for _, out := range tx.TxOut {
			_ = binary.Write(&b, binary.LittleEndian, out.Value)
			b.Write(encodeVarBytes(out.PkScript))
		}
		hashOutputs = chainhash.HashH(b.Bytes())
	case SigHashSingle:
		if idx < len(tx.TxOut) {
			var b bytes.Buffer
			out := tx.TxOut[idx]
			_ = binary.Write(&b, binary.LittleEndian, out.Value)
			b.Write(encodeVarBytes(out.PkScript))
			hashOutputs = chainhash.HashH(b.Bytes())
		}
	}

	var b bytes.Buffer
	_ = binary.Write(&b, binary.LittleEndian, tx.Version)
	b.Write(hashPrevouts[:])
	b.Write(hashSequence[:])
	in := tx.TxIn[idx]
	b.Write(in.PreviousOutPoint.Hash[:])
	_ = binary.Write(&b, binary.LittleEndian, in.PreviousOutPoint.Index)
	b.Write(encodeVarBytes(subscript))
	_ = binary.Write(&b, binary.LittleEndian, value)
	_ = binary.Write(&b, binary.LittleEndian, in.Sequence)
	b.Write(hashOutputs[:])
	_ = binary.Write(&b, binary.LittleEndian, tx.LockTime)
	_ = binary.Write(&b, binary.LittleEndian, uint32(hashType))

	return chainhash.HashH(b.Bytes()), nil
}

// encodeVarBytes prefixes data with its compact-size length, matching the
// wire encoding used elsewhere in the module.
func encodeVarBytes(data []byte) []byte {
	var b bytes.Buffer
	n := uint64(len(data))
	switch {
	case n < 0xfd:
		b.WriteByte(byte(n))
	case n <= 0xffff:
		b.WriteByte(0xfd)
		_ = binary.Write(&b, binary.LittleEndian, uint16(n))
	case n <= 0xffffffff:
		b.WriteByte(0xfe)
		_ = binary.Write(&b, binary.LittleEndian, uint32(n))
	default:
		b.WriteByte(0xff)
		_ = binary.Write(&b, binary.LittleEndian, n)
	}
	b.Write(data)
	return b.Bytes()
}

// RawTxInSignature signs sigHash with privKey and appends the hashType
// byte, producing the DER-encoded signature used in a P2PKH or P2PK
// signature script or witness.
func RawTxInSignature(sigHash chainhash.Hash, hashType SigHashType, privKey *secp256k1.PrivateKey) []byte {
	sig := ecdsa.Sign(privKey, sigHash[:])
	return append(sig.Serialize(), byte(hashType))
}

// SignatureScript builds the standard P2PKH signature script <sig>
// <pubkey> for spending an output locked by a P2PKH script, given a
// precomputed signature hash.
func SignatureScript(sigHash chainhash.Hash, hashType SigHashType, privKey *secp256k1.PrivateKey, compress bool) ([]byte, error) {
	sig := RawTxInSignature(sigHash, hashType, privKey)
	pubKey := privKey.PubKey()
	var serialized []byte
	if compress {
		serialized = pubKey.SerializeCompressed()
	} else {
		serialized = pubKey.SerializeUncompressed()
	}

	script := addData(nil, sig)
	script = addData(script, serialized)
	return script, nil
}

// SignatureScriptFromSig builds the standard P2PKH signature script
// <sig> <pubkey> from an already-produced hashType-tagged DER signature
// (as returned by keychain.KeyChain.Sign) and the spending key's
// serialized public key, letting a caller assemble a signature script
// without ever holding the private key itself.
func SignatureScriptFromSig(sig, pubKey []byte) []byte {
	script := addData(nil, sig)
	return addData(script, pubKey)
}
