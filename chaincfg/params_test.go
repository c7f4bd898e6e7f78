// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg_test

import (
	"testing"

	"github.com/ndau-spv/spvcore/chaincfg"
)

func TestNetworkParamSets(t *testing.T) {
	sets := []struct {
		name   string
		params *chaincfg.Params
	}{
		{"mainnet", chaincfg.MainNetParams()},
		{"testnet3", chaincfg.TestNet3Params()},
		{"regtest", chaincfg.RegressionNetParams()},
	}

	seen := make(map[uint32]string)
	for _, s := range sets {
		p := s.params
		if p.GenesisHash != p.GenesisBlock.BlockHash() {
			t.Errorf("%s: cached genesis hash does not match computed hash", s.name)
		}
		if p.RetargetInterval <= 0 {
			t.Errorf("%s: RetargetInterval must be positive", s.name)
		}
		if p.SubsidyReductionInterval <= 0 {
			t.Errorf("%s: SubsidyReductionInterval must be positive", s.name)
		}
		if other, ok := seen[p.Net]; ok {
			t.Errorf("%s and %s share magic %#x", s.name, other, p.Net)
		}
		seen[p.Net] = s.name

		for i := 1; i < len(p.Checkpoints); i++ {
			if p.Checkpoints[i].Height <= p.Checkpoints[i-1].Height {
				t.Errorf("%s: checkpoints not strictly ascending at index %d", s.name, i)
			}
		}
	}
}

func TestTotalSubsidyHalvings(t *testing.T) {
	p := chaincfg.MainNetParams()
	halvings := p.TotalSubsidyHalvings()
	if halvings <= 0 || halvings > 64 {
		t.Fatalf("unreasonable halving count: %d", halvings)
	}
}
