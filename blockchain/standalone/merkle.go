// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2020 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package standalone

import "github.com/ndau-spv/spvcore/chaincfg/chainhash"

// CalcMerkleRoot computes the merkle root of the given leaf hashes, in
// the order given, using double-SHA256 pairwise combination and
// duplicating the final hash at any level with an odd number of nodes.
// An empty leaf set returns the zero hash.
func CalcMerkleRoot(leaves []chainhash.Hash) chainhash.Hash {
	if len(leaves) == 0 {
		return chainhash.Hash{}
	}

	level := make([]chainhash.Hash, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		next := make([]chainhash.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			var buf [chainhash.HashSize * 2]byte
			copy(buf[:chainhash.HashSize], left[:])
			copy(buf[chainhash.HashSize:], right[:])
			next = append(next, chainhash.HashH(buf[:]))
		}
		level = next
	}
	return level[0]
}
