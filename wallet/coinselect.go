// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import "github.com/ndau-spv/spvcore/walleterrors"

// CoinSelector picks a subset of candidates summing to at least target.
// candidates arrive pre-ordered by the Wallet's policy (confirmed
// oldest-first, then unconfirmed-from-self); a selector is free to
// choose any subset but the Default implementation walks the list in
// order, which is what makes that ordering meaningful.
type CoinSelector interface {
	SelectCoins(candidates []*UTXO, target int64) (selected []*UTXO, total int64, err error)
}

// DefaultCoinSelector accumulates candidates in the order given until
// their sum reaches target, per spec.md §4.4's "minimum UTXO set"
// selection rule applied greedily over a pre-sorted candidate list.
type DefaultCoinSelector struct{}

// SelectCoins implements CoinSelector.
func (DefaultCoinSelector) SelectCoins(candidates []*UTXO, target int64) ([]*UTXO, int64, error) {
	var selected []*UTXO
	var total int64
	for _, u := range candidates {
		if total >= target {
			break
		}
		selected = append(selected, u)
		total += u.Output.Value
	}
	if total < target {
		return nil, 0, walleterrors.E(walleterrors.InsufficientMoney,
			"not enough spendable outputs to cover the requested value and fee", nil)
	}
	return selected, total, nil
}
