// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr_test

import (
	"testing"
	"time"

	"github.com/ndau-spv/spvcore/addrmgr"
	"github.com/ndau-spv/spvcore/wire"
)

func testAddr(t *testing.T, a, b, c, d byte, port uint16) *wire.NetAddress {
	t.Helper()
	var ip [16]byte
	ip[10] = 0xff
	ip[11] = 0xff
	ip[12], ip[13], ip[14], ip[15] = a, b, c, d
	return &wire.NetAddress{
		Timestamp: time.Now(),
		Services:  wire.SFNodeNetwork,
		IP:        ip,
		Port:      port,
	}
}

func TestAddAddressIsIdempotent(t *testing.T) {
	am := addrmgr.New()
	src := testAddr(t, 1, 1, 1, 1, 8333)
	na := testAddr(t, 10, 0, 0, 1, 8333)

	am.AddAddress(na, src)
	am.AddAddress(na, src)

	if got := am.AddressCount(); got != 1 {
		t.Fatalf("AddressCount = %d, want 1 after adding the same address twice", got)
	}
}

func TestGoodMovesAddressFromNewToTried(t *testing.T) {
	am := addrmgr.New()
	src := testAddr(t, 1, 1, 1, 1, 8333)
	na := testAddr(t, 10, 0, 0, 1, 8333)

	am.AddAddress(na, src)
	am.Good(na)

	// chance() discounts an address attempted in the last 10 minutes
	// heavily, so GetAddress's selection is probabilistic; try enough
	// times that the absence of any hit is not plausibly chance alone.
	found := false
	for i := 0; i < 200; i++ {
		if am.GetAddress() != nil {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected GetAddress to eventually return the address after Good")
	}
}

func TestGetAddressOnEmptyManagerReturnsNil(t *testing.T) {
	am := addrmgr.New()
	if ka := am.GetAddress(); ka != nil {
		t.Fatalf("expected nil from an empty address manager, got %+v", ka)
	}
}

func TestNeedMoreAddressesWhenSparse(t *testing.T) {
	am := addrmgr.New()
	if !am.NeedMoreAddresses() {
		t.Fatalf("an empty manager should report needing more addresses")
	}
}
