// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"encoding/binary"

	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/walleterrors"
	"github.com/ndau-spv/spvcore/wire"
	"github.com/syndtr/goleveldb/leveldb"
)

// secondaryIndex is a goleveldb-backed cache layered over the Wallet's
// atomically-serialized flat file record. It exists purely for fast
// outpoint→UTXO and txid→confidence lookups on a large wallet; the flat
// file remains the durable source of truth and the index is rebuilt
// from it (see rebuildIndex) every time New opens the Wallet.
type secondaryIndex struct {
	db *leveldb.DB
}

const (
	utxoKeyPrefix       = 'u'
	confidenceKeyPrefix = 'c'
)

// openSecondaryIndex opens (creating if absent) the leveldb directory
// at path.
func openSecondaryIndex(path string) (*secondaryIndex, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, walleterrors.E(walleterrors.StoreIO, "open wallet secondary index", err)
	}
	return &secondaryIndex{db: db}, nil
}

func (idx *secondaryIndex) close() error {
	return idx.db.Close()
}

func utxoKey(op wire.OutPoint) []byte {
	key := make([]byte, 1+chainhash.HashSize+4)
	key[0] = utxoKeyPrefix
	copy(key[1:], op.Hash[:])
	binary.BigEndian.PutUint32(key[1+chainhash.HashSize:], op.Index)
	return key
}

func confidenceKey(hash chainhash.Hash) []byte {
	key := make([]byte, 1+chainhash.HashSize)
	key[0] = confidenceKeyPrefix
	copy(key[1:], hash[:])
	return key
}

// putUTXO upserts u's cache entry. value(8) + hash160(20) + pkScriptLen(4) + pkScript.
func (idx *secondaryIndex) putUTXO(u *UTXO) error {
	buf := make([]byte, 8+20+4+len(u.Output.PkScript))
	binary.BigEndian.PutUint64(buf[0:], uint64(u.Output.Value))
	copy(buf[8:28], u.KeyHash[:])
	binary.BigEndian.PutUint32(buf[28:32], uint32(len(u.Output.PkScript)))
	copy(buf[32:], u.Output.PkScript)
	if err := idx.db.Put(utxoKey(u.OutPoint), buf, nil); err != nil {
		return walleterrors.E(walleterrors.StoreIO, "index UTXO", err)
	}
	return nil
}

func (idx *secondaryIndex) deleteUTXO(op wire.OutPoint) error {
	if err := idx.db.Delete(utxoKey(op), nil); err != nil {
		return walleterrors.E(walleterrors.StoreIO, "remove indexed UTXO", err)
	}
	return nil
}

// putConfidence upserts hash's confidence cache entry: state(1) + height(4) + depth(4) + overriddenBy(32).
func (idx *secondaryIndex) putConfidence(hash chainhash.Hash, c Confidence) error {
	buf := make([]byte, 1+4+4+chainhash.HashSize)
	buf[0] = byte(c.State)
	binary.BigEndian.PutUint32(buf[1:5], uint32(c.Height))
	binary.BigEndian.PutUint32(buf[5:9], uint32(c.Depth))
	copy(buf[9:], c.OverriddenBy[:])
	if err := idx.db.Put(confidenceKey(hash), buf, nil); err != nil {
		return walleterrors.E(walleterrors.StoreIO, "index confidence", err)
	}
	return nil
}

// rebuildIndex repopulates the secondary index from the Wallet's
// authoritative in-memory state. New calls it on every open, after
// loading the flat file record if one exists.
func (idx *secondaryIndex) rebuildIndex(w *Wallet) error {
	iter := idx.db.NewIterator(nil, nil)
	for iter.Next() {
		if err := idx.db.Delete(iter.Key(), nil); err != nil {
			iter.Release()
			return walleterrors.E(walleterrors.StoreIO, "clear stale wallet index", err)
		}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return walleterrors.E(walleterrors.StoreIO, "scan wallet index", err)
	}

	for _, u := range w.utxos {
		if err := idx.putUTXO(u); err != nil {
			return err
		}
	}
	for hash, c := range w.confidence {
		if err := idx.putConfidence(hash, *c); err != nil {
			return err
		}
	}
	return nil
}
