// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package primitives holds the small, dependency-free building blocks shared
// by every other package in the core: compact-size (var-int) encoding and
// the HASH160 function used to derive pay-to-pubkey-hash scripts.
package primitives

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/ripemd160"
)

// VarIntError is returned when a compact-size prefix cannot be decoded
// because the underlying reader ran out of bytes.
type VarIntError string

func (e VarIntError) Error() string { return string(e) }

// VarIntSerializeSize returns the number of bytes it would take to serialize
// val as a variable length integer.
func VarIntSerializeSize(val uint64) int {
	switch {
	case val < 0xfd:
		return 1
	case val <= 0xffff:
		return 3
	case val <= 0xffffffff:
		return 5
	default:
		return 9
	}
}

// WriteVarInt serializes val to w using the variable length integer
// encoding: values under 0xfd are a single byte, otherwise a discriminant
// byte (0xfd, 0xfe, 0xff) followed by 2, 4, or 8 little-endian bytes.
func WriteVarInt(w io.Writer, val uint64) error {
	switch {
	case val < 0xfd:
		_, err := w.Write([]byte{byte(val)})
		return err
	case val <= 0xffff:
		buf := make([]byte, 3)
		buf[0] = 0xfd
		binary.LittleEndian.PutUint16(buf[1:], uint16(val))
		_, err := w.Write(buf)
		return err
	case val <= 0xffffffff:
		buf := make([]byte, 5)
		buf[0] = 0xfe
		binary.LittleEndian.PutUint32(buf[1:], uint32(val))
		_, err := w.Write(buf)
		return err
	default:
		buf := make([]byte, 9)
		buf[0] = 0xff
		binary.LittleEndian.PutUint64(buf[1:], val)
		_, err := w.Write(buf)
		return err
	}
}

// ReadVarInt reads a variable length integer from r and returns it as a
// uint64, along with the number of bytes consumed.
func ReadVarInt(r io.Reader) (uint64, int, error) {
	var prefix [1]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return 0, 0, VarIntError(fmt.Sprintf("read var-int prefix: %v", err))
	}

	switch prefix[0] {
	case 0xff:
		buf := make([]byte, 8)
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, 0, VarIntError(fmt.Sprintf("read var-int body: %v", err))
		}
		return binary.LittleEndian.Uint64(buf), 9, nil
	case 0xfe:
		buf := make([]byte, 4)
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, 0, VarIntError(fmt.Sprintf("read var-int body: %v", err))
		}
		return uint64(binary.LittleEndian.Uint32(buf)), 5, nil
	case 0xfd:
		buf := make([]byte, 2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, 0, VarIntError(fmt.Sprintf("read var-int body: %v", err))
		}
		return uint64(binary.LittleEndian.Uint16(buf)), 3, nil
	default:
		return uint64(prefix[0]), 1, nil
	}
}

// calcHash runs hasher over buf and returns the digest.
func calcHash(buf []byte, hasher hash.Hash) []byte {
	hasher.Write(buf)
	return hasher.Sum(nil)
}

// Hash160 calculates RIPEMD160(SHA256(buf)) — the digest used to derive
// pay-to-pubkey-hash and pay-to-script-hash scripts.
func Hash160(buf []byte) []byte {
	single := sha256.Sum256(buf)
	return calcHash(single[:], ripemd160.New())
}
