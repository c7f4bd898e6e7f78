// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package blockstore implements a durable, fixed-capacity ring of
// StoredBlock header records with a colocated open-addressing hash
// index, giving a BlockChain O(1) average-case lookup by block hash and
// a crash-safe mutable chain-tip pointer.
package blockstore

import (
	"bytes"
	"encoding/binary"
	"math/big"
	"os"
	"sync"

	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/walleterrors"
	"github.com/ndau-spv/spvcore/wire"
	"golang.org/x/sys/unix"
)

const (
	magic       = 0x53505642 // "SPVB"
	formatVersion = 1

	// headerSize is the fixed size of the file's leading metadata
	// block: magic(4) + version(4) + tipHash(32) + tipHeight(4) +
	// capacity(4) + writeCursor(4) + filled(4), zero-padded out to 4KB.
	headerSize = 4096

	// recordSize is a single StoredBlock's on-disk size: an 80-byte
	// block header, a 12-byte cumulative work value, and a 4-byte
	// height.
	recordSize = wire.BlockHeaderLen + 12 + 4

	// slotSize is a recordSize plus the 4-byte hash-chain pointer used
	// by the colocated open-addressing index.
	slotSize = recordSize + 4

	emptySlot int32 = -1
)

// DefaultCapacity is the number of StoredBlock slots a newly created
// store reserves. At this size, the ring holds roughly 19 years of
// mainnet blocks before the oldest entries are overwritten.
const DefaultCapacity = 1_000_000

// StoredBlock is a block header together with the information needed to
// select the best chain without re-deriving it from the full header
// history: its cumulative proof-of-work and its height above genesis.
type StoredBlock struct {
	Header wire.BlockHeader
	Work   *big.Int
	Height int32
}

// Hash returns the StoredBlock's identifying hash, that of its header.
func (sb *StoredBlock) Hash() chainhash.Hash {
	return sb.Header.BlockHash()
}

// Store is a process-exclusive, durable ring of StoredBlock records.
// All mutating operations are ordered so that a crash between writes
// never corrupts the file: the new record is written and fsynced before
// any header pointer referencing it is updated and fsynced in turn.
type Store struct {
	mu       sync.Mutex
	file     *os.File
	capacity uint32

	tipHash     chainhash.Hash
	tipHeight   int32
	writeCursor uint32
	filled      uint32
}

// New creates a new block store file at path with the given slot
// capacity, or opens and validates an existing one if path already
// exists. The returned Store holds an exclusive advisory lock on the
// file for the lifetime of the process; a second Open/New against the
// same path fails with walleterrors.StoreIO.
func New(path string, capacity uint32) (*Store, error) {
	if capacity == 0 {
		capacity = DefaultCapacity
	}

	_, statErr := os.Stat(path)
	exists := statErr == nil

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, walleterrors.E(walleterrors.StoreIO, "open block store file", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, walleterrors.E(walleterrors.StoreIO, "block store already open by another process", err)
	}

	s := &Store{file: f, capacity: capacity}
	if exists {
		if err := s.readHeader(); err != nil {
			f.Close()
			return nil, err
		}
		return s, nil
	}

	if err := s.initialize(capacity); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) fileSize() int64 {
	return headerSize + int64(s.capacity)*4 + int64(s.capacity)*slotSize
}

func (s *Store) bucketsOffset() int64 { return headerSize }
func (s *Store) slotsOffset() int64   { return headerSize + int64(s.capacity)*4 }

// initialize lays out a fresh file: header, an all-empty bucket table,
// and an uninitialized slot region.
func (s *Store) initialize(capacity uint32) error {
	if err := s.file.Truncate(s.fileSize()); err != nil {
		return walleterrors.E(walleterrors.StoreIO, "allocate block store file", err)
	}

	buckets := make([]byte, capacity*4)
	for i := uint32(0); i < capacity; i++ {
		binary.BigEndian.PutUint32(buckets[i*4:], uint32(emptySlot))
	}
	if _, err := s.file.WriteAt(buckets, s.bucketsOffset()); err != nil {
		return walleterrors.E(walleterrors.StoreIO, "initialize bucket table", err)
	}

	s.capacity = capacity
	s.writeCursor = 0
	s.filled = 0
	if err := s.writeHeader(); err != nil {
		return err
	}
	return s.sync()
}

func (s *Store) sync() error {
	if err := s.file.Sync(); err != nil {
		return walleterrors.E(walleterrors.StoreIO, "fsync block store", err)
	}
	return nil
}

func (s *Store) writeHeader() error {
	buf := make([]byte, headerSize)
	binary.BigEndian.PutUint32(buf[0:], magic)
	binary.BigEndian.PutUint32(buf[4:], formatVersion)
	copy(buf[8:40], s.tipHash[:])
	binary.BigEndian.PutUint32(buf[40:], uint32(s.tipHeight))
	binary.BigEndian.PutUint32(buf[44:], s.capacity)
	binary.BigEndian.PutUint32(buf[48:], s.writeCursor)
	binary.BigEndian.PutUint32(buf[52:], s.filled)
	if _, err := s.file.WriteAt(buf, 0); err != nil {
		return walleterrors.E(walleterrors.StoreIO, "write block store header", err)
	}
	return nil
}

func (s *Store) readHeader() error {
	buf := make([]byte, headerSize)
	if _, err := s.file.ReadAt(buf, 0); err != nil {
		return walleterrors.E(walleterrors.StoreIO, "read block store header", err)
	}
	if got := binary.BigEndian.Uint32(buf[0:]); got != magic {
		return walleterrors.E(walleterrors.Invalid, "block store file has the wrong magic", nil)
	}
	if got := binary.BigEndian.Uint32(buf[4:]); got != formatVersion {
		return walleterrors.E(walleterrors.Invalid, "block store file has an unsupported version", nil)
	}
	copy(s.tipHash[:], buf[8:40])
	s.tipHeight = int32(binary.BigEndian.Uint32(buf[40:]))
	s.capacity = binary.BigEndian.Uint32(buf[44:])
	s.writeCursor = binary.BigEndian.Uint32(buf[48:])
	s.filled = binary.BigEndian.Uint32(buf[52:])
	return nil
}

// Close releases the store's advisory lock and closes its file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

func bucketIndex(hash chainhash.Hash, capacity uint32) uint32 {
	return binary.BigEndian.Uint32(hash[:4]) % capacity
}

func encodeRecord(sb StoredBlock) ([]byte, error) {
	buf := make([]byte, recordSize)
	var hdr bytes.Buffer
	if err := sb.Header.Serialize(&hdr); err != nil {
		return nil, walleterrors.E(walleterrors.Invalid, "serialize stored block header", err)
	}
	copy(buf, hdr.Bytes())

	work := sb.Work
	if work == nil {
		work = new(big.Int)
	}
	workBytes := work.Bytes()
	if len(workBytes) > 12 {
		return nil, walleterrors.E(walleterrors.Invalid, "cumulative work overflows 96-bit field", nil)
	}
	copy(buf[wire.BlockHeaderLen+(12-len(workBytes)):wire.BlockHeaderLen+12], workBytes)

	binary.BigEndian.PutUint32(buf[wire.BlockHeaderLen+12:], uint32(sb.Height))
	return buf, nil
}

func decodeRecord(buf []byte) (StoredBlock, error) {
	var sb StoredBlock
	r := bytes.NewReader(buf[:wire.BlockHeaderLen])
	if err := sb.Header.Deserialize(r); err != nil {
		return sb, walleterrors.E(walleterrors.Invalid, "deserialize stored block header", err)
	}
	sb.Work = new(big.Int).SetBytes(buf[wire.BlockHeaderLen : wire.BlockHeaderLen+12])
	sb.Height = int32(binary.BigEndian.Uint32(buf[wire.BlockHeaderLen+12:]))
	return sb, nil
}

// readSlot reads the record and chain-next pointer at slot index idx.
func (s *Store) readSlot(idx uint32) (StoredBlock, int32, error) {
	buf := make([]byte, slotSize)
	if _, err := s.file.ReadAt(buf, s.slotsOffset()+int64(idx)*slotSize); err != nil {
		return StoredBlock{}, emptySlot, walleterrors.E(walleterrors.StoreIO, "read block store slot", err)
	}
	sb, err := decodeRecord(buf[:recordSize])
	if err != nil {
		return StoredBlock{}, emptySlot, err
	}
	next := int32(binary.BigEndian.Uint32(buf[recordSize:]))
	return sb, next, nil
}

// writeSlot writes sb and its chain-next pointer to slot index idx.
func (s *Store) writeSlot(idx uint32, sb StoredBlock, next int32) error {
	record, err := encodeRecord(sb)
	if err != nil {
		return err
	}
	buf := make([]byte, slotSize)
	copy(buf, record)
	binary.BigEndian.PutUint32(buf[recordSize:], uint32(next))
	if _, err := s.file.WriteAt(buf, s.slotsOffset()+int64(idx)*slotSize); err != nil {
		return walleterrors.E(walleterrors.StoreIO, "write block store slot", err)
	}
	return nil
}

func (s *Store) readBucketHead(bucket uint32) (int32, error) {
	buf := make([]byte, 4)
	if _, err := s.file.ReadAt(buf, s.bucketsOffset()+int64(bucket)*4); err != nil {
		return emptySlot, walleterrors.E(walleterrors.StoreIO, "read block store bucket", err)
	}
	return int32(binary.BigEndian.Uint32(buf)), nil
}

func (s *Store) writeBucketHead(bucket uint32, head int32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(head))
	if _, err := s.file.WriteAt(buf, s.bucketsOffset()+int64(bucket)*4); err != nil {
		return walleterrors.E(walleterrors.StoreIO, "write block store bucket", err)
	}
	return nil
}

// unlink removes the slot at idx, identified by oldHash, from its
// bucket's chain, walking the chain to splice it out. Called before a
// ring wraparound overwrites that slot with a new record.
func (s *Store) unlink(idx uint32, oldHash chainhash.Hash) error {
	bucket := bucketIndex(oldHash, s.capacity)
	head, err := s.readBucketHead(bucket)
	if err != nil {
		return err
	}

	if head == int32(idx) {
		_, next, err := s.readSlot(idx)
		if err != nil {
			return err
		}
		return s.writeBucketHead(bucket, next)
	}

	cur := head
	for cur != emptySlot {
		_, next, err := s.readSlot(uint32(cur))
		if err != nil {
			return err
		}
		if next == int32(idx) {
			_, idxNext, err := s.readSlot(idx)
			if err != nil {
				return err
			}
			curSB, _, err := s.readSlot(uint32(cur))
			if err != nil {
				return err
			}
			return s.writeSlot(uint32(cur), curSB, idxNext)
		}
		cur = next
	}
	return nil
}

// Put inserts sb into the ring, evicting and unlinking the oldest entry
// if the ring is already at capacity. The new record is written and
// fsynced before the header's ring-position metadata is updated and
// fsynced in turn.
func (s *Store) Put(sb StoredBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.writeCursor
	if s.filled == s.capacity {
		oldSB, _, err := s.readSlot(idx)
		if err != nil {
			return err
		}
		if err := s.unlink(idx, oldSB.Hash()); err != nil {
			return err
		}
	}

	hash := sb.Hash()
	bucket := bucketIndex(hash, s.capacity)
	head, err := s.readBucketHead(bucket)
	if err != nil {
		return err
	}
	if err := s.writeSlot(idx, sb, head); err != nil {
		return err
	}
	if err := s.writeBucketHead(bucket, int32(idx)); err != nil {
		return err
	}
	if err := s.sync(); err != nil {
		return err
	}

	s.writeCursor = (s.writeCursor + 1) % s.capacity
	if s.filled < s.capacity {
		s.filled++
	}
	if err := s.writeHeader(); err != nil {
		return err
	}
	return s.sync()
}

// Get looks up the StoredBlock with the given hash.
func (s *Store) Get(hash chainhash.Hash) (StoredBlock, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := bucketIndex(hash, s.capacity)
	cur, err := s.readBucketHead(bucket)
	if err != nil {
		return StoredBlock{}, false, err
	}
	for cur != emptySlot {
		sb, next, err := s.readSlot(uint32(cur))
		if err != nil {
			return StoredBlock{}, false, err
		}
		if sb.Hash() == hash {
			return sb, true, nil
		}
		cur = next
	}
	return StoredBlock{}, false, nil
}

// GetChainHead returns the StoredBlock the header points at as the
// current best-chain tip.
func (s *Store) GetChainHead() (StoredBlock, bool, error) {
	s.mu.Lock()
	tip := s.tipHash
	s.mu.Unlock()
	return s.Get(tip)
}

// SetChainHead durably updates the tip pointer to sb, which must
// already have been Put. The header update is fsynced before returning.
func (s *Store) SetChainHead(sb StoredBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tipHash = sb.Hash()
	s.tipHeight = sb.Height
	if err := s.writeHeader(); err != nil {
		return err
	}
	return s.sync()
}
