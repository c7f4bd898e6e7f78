// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/primitives"
)

// maxVarStringLen is a sanity bound on the length prefix of a var-string so
// a corrupt or hostile payload cannot trigger an enormous allocation.
const maxVarStringLen = 1 << 20

func writeVarInt(w io.Writer, val uint64) error {
	return primitives.WriteVarInt(w, val)
}

func readVarInt(r io.Reader) (uint64, error) {
	val, _, err := primitives.ReadVarInt(r)
	return val, err
}

func writeVarBytes(w io.Writer, b []byte) error {
	if err := writeVarInt(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readVarBytes(r io.Reader, maxLen uint32, fieldName string) ([]byte, error) {
	count, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	if count > uint64(maxLen) {
		return nil, fmt.Errorf("%s exceeds max length %d", fieldName, maxLen)
	}
	b := make([]byte, count)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writeVarString(w io.Writer, s string) error {
	return writeVarBytes(w, []byte(s))
}

func readVarString(r io.Reader) (string, error) {
	b, err := readVarBytes(r, maxVarStringLen, "variable length string")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func writeInt32(w io.Writer, v int32) error {
	return writeUint32(w, uint32(v))
}

func readInt32(r io.Reader) (int32, error) {
	v, err := readUint32(r)
	return int32(v), err
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func writeInt64(w io.Writer, v int64) error {
	return writeUint64(w, uint64(v))
}

func readInt64(r io.Reader) (int64, error) {
	v, err := readUint64(r)
	return int64(v), err
}

func writeHash(w io.Writer, h chainhash.Hash) error {
	_, err := w.Write(h[:])
	return err
}

func readHash(r io.Reader) (chainhash.Hash, error) {
	var h chainhash.Hash
	_, err := io.ReadFull(r, h[:])
	return h, err
}

// unixTime32 round-trips a time.Time through a 32-bit little-endian Unix
// timestamp, the representation used by block headers and version messages.
func writeUnixTime32(w io.Writer, t time.Time) error {
	return writeUint32(w, uint32(t.Unix()))
}

func readUnixTime32(r io.Reader) (time.Time, error) {
	secs, err := readUint32(r)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(secs), 0), nil
}

// ServiceFlag identifies the services advertised by a peer in its version
// message and in addr entries.
type ServiceFlag uint64

const (
	// SFNodeNetwork indicates a peer serves the full chain of blocks.
	SFNodeNetwork ServiceFlag = 1 << 0
	// SFNodeBloom indicates a peer supports bloom filtering per BIP111.
	SFNodeBloom ServiceFlag = 1 << 2
)

// NetAddress represents a peer address as exchanged in version and addr
// messages: a last-seen timestamp, advertised services, and an IP/port.
type NetAddress struct {
	Timestamp time.Time
	Services  ServiceFlag
	IP        [16]byte
	Port      uint16
}

func writeNetAddress(w io.Writer, na *NetAddress, withTimestamp bool) error {
	if withTimestamp {
		if err := writeUnixTime32(w, na.Timestamp); err != nil {
			return err
		}
	}
	if err := writeUint64(w, uint64(na.Services)); err != nil {
		return err
	}
	if _, err := w.Write(na.IP[:]); err != nil {
		return err
	}
	// Port is encoded big-endian, matching Bitcoin's network-byte-order
	// convention for this one field.
	var portBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], na.Port)
	_, err := w.Write(portBuf[:])
	return err
}

func readNetAddress(r io.Reader, withTimestamp bool) (*NetAddress, error) {
	na := &NetAddress{}
	if withTimestamp {
		ts, err := readUnixTime32(r)
		if err != nil {
			return nil, err
		}
		na.Timestamp = ts
	}

	services, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	na.Services = ServiceFlag(services)

	if _, err := io.ReadFull(r, na.IP[:]); err != nil {
		return nil, err
	}

	var portBuf [2]byte
	if _, err := io.ReadFull(r, portBuf[:]); err != nil {
		return nil, err
	}
	na.Port = binary.BigEndian.Uint16(portBuf[:])
	return na, nil
}

// InvType identifies what an inventory vector refers to.
type InvType uint32

const (
	InvTypeError InvType = 0
	InvTypeTx    InvType = 1
	InvTypeBlock InvType = 2
	// InvTypeFilteredBlock requests a merkleblock plus matched
	// transactions rather than a full block, per BIP37.
	InvTypeFilteredBlock InvType = 3
)

// InvVect is a single entry of an inv, getdata, or notfound message.
type InvVect struct {
	Type InvType
	Hash chainhash.Hash
}

func writeInvVect(w io.Writer, iv *InvVect) error {
	if err := writeUint32(w, uint32(iv.Type)); err != nil {
		return err
	}
	return writeHash(w, iv.Hash)
}

func readInvVect(r io.Reader) (*InvVect, error) {
	typ, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	hash, err := readHash(r)
	if err != nil {
		return nil, err
	}
	return &InvVect{Type: InvType(typ), Hash: hash}, nil
}

// maxInvPerMsg is the maximum number of inventory vectors allowed in a
// single inv/getdata/notfound message, matching the reference limit.
const maxInvPerMsg = 50000

// maxBlockLocatorsPerMsg bounds the hash count in a getheaders/getblocks
// locator.
const maxBlockLocatorsPerMsg = 500

// maxBlockHeadersPerMsg bounds the number of headers returned by a single
// headers message.
const maxBlockHeadersPerMsg = 2000

// maxAddrPerMsg bounds the number of addresses in a single addr message.
const maxAddrPerMsg = 1000
