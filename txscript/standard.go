// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import "fmt"

// ScriptType identifies which of the standard output script templates a
// script matches. All other scripts are non-standard as far as this
// package is concerned; an SPV wallet has no use for validating them
// since it never receives funds to a script it did not itself generate.
type ScriptType byte

const (
	// STNonStandard indicates a script matches none of the recognized
	// standard forms.
	STNonStandard ScriptType = iota

	// STPubKey identifies a pay-to-pubkey (P2PK) script.
	STPubKey

	// STPubKeyHash identifies a pay-to-pubkey-hash (P2PKH) script.
	STPubKeyHash

	// STScriptHash identifies a pay-to-script-hash (P2SH) script.
	STScriptHash

	// STMultiSig identifies a bare n-of-m multisig script.
	STMultiSig

	// STNullData identifies a provably prunable OP_RETURN script.
	STNullData
)

// String returns a human-readable name for t.
func (t ScriptType) String() string {
	switch t {
	case STPubKey:
		return "pubkey"
	case STPubKeyHash:
		return "pubkeyhash"
	case STScriptHash:
		return "scripthash"
	case STMultiSig:
		return "multisig"
	case STNullData:
		return "nulldata"
	default:
		return "nonstandard"
	}
}

// addData appends the minimal-length push opcode for data followed by
// data itself to script.
func addData(script []byte, data []byte) []byte {
	dlen := len(data)
	switch {
	case dlen == 0:
		return append(script, OP_0)
	case dlen == 1 && data[0] >= 1 && data[0] <= 16:
		op, _ := smallIntOpcode(int(data[0]))
		return append(script, op)
	case dlen <= 75:
		script = append(script, byte(dlen))
	case dlen <= 255:
		script = append(script, OP_PUSHDATA1, byte(dlen))
	case dlen <= 65535:
		script = append(script, OP_PUSHDATA2, byte(dlen), byte(dlen>>8))
	default:
		script = append(script, OP_PUSHDATA4, byte(dlen), byte(dlen>>8), byte(dlen>>16), byte(dlen>>24))
	}
	return append(script, data...)
}

// PayToPubKeyHashScript creates a standard P2PKH locking script paying to
// the passed 20-byte HASH160 of a public key.
func PayToPubKeyHashScript(pubKeyHash []byte) ([]byte, error) {
	if len(pubKeyHash) != 20 {
		return nil, fmt.Errorf("pubKeyHash must be 20 bytes, got %d", len(pubKeyHash))
	}
	script := []byte{OP_DUP, OP_HASH160}
	script = addData(script, pubKeyHash)
	script = append(script, OP_EQUALVERIFY, OP_CHECKSIG)
	return script, nil
}

// PayToScriptHashScript creates a standard P2SH locking script paying to
// the passed 20-byte HASH160 of a redeem script.
func PayToScriptHashScript(scriptHash []byte) ([]byte, error) {
	if len(scriptHash) != 20 {
		return nil, fmt.Errorf("scriptHash must be 20 bytes, got %d", len(scriptHash))
	}
	script := []byte{OP_HASH160}
	script = addData(script, scriptHash)
	script = append(script, OP_EQUAL)
	return script, nil
}

// PayToPubKeyScript creates a standard P2PK locking script paying to the
// passed serialized (compressed or uncompressed) public key.
func PayToPubKeyScript(serializedPubKey []byte) ([]byte, error) {
	if len(serializedPubKey) != 33 && len(serializedPubKey) != 65 {
		return nil, fmt.Errorf("invalid public key length %d", len(serializedPubKey))
	}
	script := addData(nil, serializedPubKey)
	script = append(script, OP_CHECKSIG)
	return script, nil
}

// MultiSigScript creates a bare n-of-m multisig locking script requiring
// threshold valid signatures out of the given public keys.
func MultiSigScript(threshold int, pubKeys ...[]byte) ([]byte, error) {
	if threshold < 1 || threshold > len(pubKeys) {
		return nil, fmt.Errorf("invalid threshold %d for %d keys", threshold, len(pubKeys))
	}
	if len(pubKeys) > 16 {
		return nil, fmt.Errorf("too many public keys: %d", len(pubKeys))
	}
	op, _ := smallIntOpcode(threshold)
	script := []byte{op}
	for _, pk := range pubKeys {
		if len(pk) != 33 && len(pk) != 65 {
			return nil, fmt.Errorf("invalid public key length %d", len(pk))
		}
		script = addData(script, pk)
	}
	nOp, _ := smallIntOpcode(len(pubKeys))
	script = append(script, nOp, OP_CHECKMULTISIG)
	return script, nil
}

// NullDataScript creates a provably prunable OP_RETURN script carrying
// the passed data as an arbitrary payload.
func NullDataScript(data []byte) ([]byte, error) {
	if len(data) > 80 {
		return nil, fmt.Errorf("data carrier push %d exceeds standard limit 80", len(data))
	}
	script := []byte{OP_RETURN}
	return addData(script, data), nil
}

// ExtractPubKeyHash returns the 20-byte HASH160 encoded in script if it is
// a standard P2PKH script, or nil otherwise.
func ExtractPubKeyHash(script []byte) []byte {
	if len(script) == 25 &&
		script[0] == OP_DUP && script[1] == OP_HASH160 &&
		script[2] == OP_DATA_20 &&
		script[23] == OP_EQUALVERIFY && script[24] == OP_CHECKSIG {
		return script[3:23]
	}
	return nil
}

// IsPubKeyHashScript reports whether script is a standard P2PKH script.
func IsPubKeyHashScript(script []byte) bool {
	return ExtractPubKeyHash(script) != nil
}

// ExtractScriptHash returns the 20-byte HASH160 encoded in script if it
// is a standard P2SH script, or nil otherwise.
func ExtractScriptHash(script []byte) []byte {
	if len(script) == 23 &&
		script[0] == OP_HASH160 && script[1] == OP_DATA_20 &&
		script[22] == OP_EQUAL {
		return script[2:22]
	}
	return nil
}

// IsScriptHashScript reports whether script is a standard P2SH script.
func IsScriptHashScript(script []byte) bool {
	return ExtractScriptHash(script) != nil
}

// ExtractPubKey returns the serialized public key encoded in script if it
// is a standard P2PK script, or nil otherwise.
func ExtractPubKey(script []byte) []byte {
	if len(script) == 35 && script[0] == OP_DATA_33 && script[34] == OP_CHECKSIG {
		return script[1:34]
	}
	if len(script) == 67 && script[0] == OP_DATA_65 && script[66] == OP_CHECKSIG {
		return script[1:66]
	}
	return nil
}

// IsPubKeyScript reports whether script is a standard P2PK script.
func IsPubKeyScript(script []byte) bool {
	return ExtractPubKey(script) != nil
}

// IsNullDataScript reports whether script is a provably prunable
// OP_RETURN script.
func IsNullDataScript(script []byte) bool {
	return len(script) > 0 && script[0] == OP_RETURN
}

// DetermineScriptType classifies script as one of the standard script
// templates this package recognizes.
func DetermineScriptType(script []byte) ScriptType {
	switch {
	case IsPubKeyHashScript(script):
		return STPubKeyHash
	case IsScriptHashScript(script):
		return STScriptHash
	case IsPubKeyScript(script):
		return STPubKey
	case IsNullDataScript(script):
		return STNullData
	case len(script) > 0 && script[len(script)-1] == OP_CHECKMULTISIG:
		return STMultiSig
	default:
		return STNonStandard
	}
}
