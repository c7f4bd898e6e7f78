// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"context"

	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/wallet"
	"github.com/ndau-spv/spvcore/wire"
)

// notificationMessage is the envelope every websocket push carries, so
// a single stream can multiplex the three Wallet.Listener events.
type notificationMessage struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

// notifier implements wallet.Listener, translating Wallet events into
// websocket pushes on the control RPC's notification stream.
type notifier struct {
	s *Server
}

func (n *notifier) OnTransaction(_ context.Context, tx *wire.MsgTx, conf wallet.Confidence) {
	n.s.broadcastNotification(notificationMessage{
		Method: "transaction",
		Params: confidenceResult(tx.TxHash(), conf),
	})
}

func (n *notifier) OnConfidenceChanged(_ context.Context, txHash chainhash.Hash, conf wallet.Confidence) {
	n.s.broadcastNotification(notificationMessage{
		Method: "confidencechanged",
		Params: confidenceResult(txHash, conf),
	})
}

func (n *notifier) OnBalanceChanged(_ context.Context, confirmed, unconfirmed int64) {
	n.s.broadcastNotification(notificationMessage{
		Method: "balancechanged",
		Params: map[string]int64{
			"confirmedsatoshis":   confirmed,
			"unconfirmedsatoshis": unconfirmed,
		},
	})
}
