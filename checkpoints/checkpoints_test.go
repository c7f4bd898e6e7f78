// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package checkpoints_test

import (
	"testing"

	"github.com/ndau-spv/spvcore/chaincfg"
	"github.com/ndau-spv/spvcore/checkpoints"
)

func TestLatestAndNextAfter(t *testing.T) {
	net := chaincfg.MainNetParams()

	latest, ok := checkpoints.Latest(net, 100000)
	if !ok {
		t.Fatalf("expected a checkpoint at or below height 100000")
	}
	if latest.Height > 100000 {
		t.Fatalf("Latest returned checkpoint above requested height")
	}

	next, ok := checkpoints.NextAfter(net, latest.Height)
	if ok && next.Height <= latest.Height {
		t.Fatalf("NextAfter must return a strictly higher checkpoint")
	}
}

func TestVerifyMismatchRejected(t *testing.T) {
	net := chaincfg.MainNetParams()
	cp := net.Checkpoints[0]

	wrongHash := *cp.Hash
	wrongHash[0] ^= 0xff

	if checkpoints.Verify(net, cp.Height, *cp.Hash) != true {
		t.Fatalf("Verify should accept the correct hash")
	}
	if checkpoints.Verify(net, cp.Height, wrongHash) {
		t.Fatalf("Verify should reject a mismatched hash at a checkpoint height")
	}
}
