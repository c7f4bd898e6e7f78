// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"encoding/json"

	"github.com/ndau-spv/spvcore/chaincfg/chainhash"
	"github.com/ndau-spv/spvcore/keychain"
	"github.com/ndau-spv/spvcore/rpc/jsonrpc/types"
	"github.com/ndau-spv/spvcore/wallet"
)

// handlers maps a JSON-RPC method name to the function that answers
// it, the hand-rolled analogue of the teacher's rpcHandlers map.
var handlers = map[string]handler{
	"getbalance":       handleGetBalance,
	"getnewaddress":    handleGetNewAddress,
	"sendtoaddress":    handleSendToAddress,
	"gettransaction":   handleGetTransaction,
	"listtransactions": handleListTransactions,
	"listunspent":      handleListUnspent,
	"getinfo":          handleGetInfo,
	"walletpassphrase": handleWalletPassphrase,
	"walletlock":       handleWalletLock,
}

func unmarshalParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func confidenceResult(hash chainhash.Hash, conf wallet.Confidence) types.GetTransactionResult {
	return types.GetTransactionResult{
		TxID:          hash.String(),
		Confidence:    conf.State.String(),
		Confirmations: conf.Depth,
		BlockHeight:   conf.Height,
	}
}

func handleGetBalance(s *Server, raw json.RawMessage) (interface{}, error) {
	confirmed, unconfirmed := s.cfg.Wallet.Balance()
	return types.GetBalanceResult{
		ConfirmedSatoshis:   confirmed,
		UnconfirmedSatoshis: unconfirmed,
	}, nil
}

func handleGetNewAddress(s *Server, raw json.RawMessage) (interface{}, error) {
	kcs := s.cfg.Wallet.Keychains()
	if len(kcs) == 0 {
		return nil, types.NewRPCError(types.ErrRPCInternal, "wallet has no keychains")
	}
	key, err := kcs[0].FreshKey(keychain.External)
	if err != nil {
		return nil, err
	}
	addr, err := key.Address(s.cfg.ChainParams)
	if err != nil {
		return nil, err
	}
	return types.GetNewAddressResult{Address: addr.String()}, nil
}

func handleSendToAddress(s *Server, raw json.RawMessage) (interface{}, error) {
	var cmd types.SendToAddressCmd
	if err := unmarshalParams(raw, &cmd); err != nil {
		return nil, types.NewRPCError(types.ErrRPCInvalidParameter, err.Error())
	}
	if cmd.Amount <= 0 {
		return nil, types.NewRPCError(types.ErrRPCInvalidParameter, "amount must be positive")
	}

	addr, err := parseAddress(s, cmd.Address)
	if err != nil {
		return nil, types.NewRPCError(types.ErrRPCInvalidParameter, err.Error())
	}

	feeRate := cmd.FeeRate
	if feeRate <= 0 {
		feeRate = wallet.DefaultFeeRate
	}

	tx, err := s.cfg.Wallet.SendRequest(addr, cmd.Amount, feeRate, wallet.DefaultCoinSelector{})
	if err != nil {
		return nil, err
	}

	if s.cfg.Broadcaster != nil {
		s.cfg.Broadcaster.Broadcast(tx)
	}

	return types.SendToAddressResult{TxID: tx.TxHash().String()}, nil
}

func handleGetTransaction(s *Server, raw json.RawMessage) (interface{}, error) {
	var cmd types.GetTransactionCmd
	if err := unmarshalParams(raw, &cmd); err != nil {
		return nil, types.NewRPCError(types.ErrRPCInvalidParameter, err.Error())
	}
	hash, err := hashFromString(cmd.TxID)
	if err != nil {
		return nil, types.NewRPCError(types.ErrRPCInvalidParameter, err.Error())
	}
	conf, ok := s.cfg.Wallet.ConfidenceOf(hash)
	if !ok {
		return nil, types.NewRPCError(types.ErrRPCInvalidParameter, "unknown transaction")
	}
	return confidenceResult(hash, conf), nil
}

func handleListTransactions(s *Server, raw json.RawMessage) (interface{}, error) {
	records := s.cfg.Wallet.Transactions()
	out := make([]types.GetTransactionResult, 0, len(records))
	for _, r := range records {
		out = append(out, confidenceResult(r.Hash, r.Confidence))
	}
	return types.ListTransactionsResult{Transactions: out}, nil
}

func handleListUnspent(s *Server, raw json.RawMessage) (interface{}, error) {
	utxos := s.cfg.Wallet.UnspentOutputs()
	out := make([]types.UnspentResult, 0, len(utxos))
	for _, u := range utxos {
		conf, _ := s.cfg.Wallet.ConfidenceOf(u.OutPoint.Hash)
		out = append(out, types.UnspentResult{
			TxID:          u.OutPoint.Hash.String(),
			Vout:          u.OutPoint.Index,
			Amount:        u.Output.Value,
			Confirmations: conf.Depth,
		})
	}
	return types.ListUnspentResult{Unspent: out}, nil
}

func handleGetInfo(s *Server, raw json.RawMessage) (interface{}, error) {
	var connections int
	var syncHeight int32
	if s.cfg.PeerGroup != nil {
		connections = s.cfg.PeerGroup.ConnectedPeers()
		syncHeight = s.cfg.PeerGroup.SyncHeight()
	}
	return types.GetInfoResult{
		Version:     s.cfg.Version,
		Network:     s.cfg.ChainParams.Name,
		Connections: connections,
		SyncHeight:  syncHeight,
	}, nil
}

func handleWalletPassphrase(s *Server, raw json.RawMessage) (interface{}, error) {
	var cmd types.WalletPassphraseCmd
	if err := unmarshalParams(raw, &cmd); err != nil {
		return nil, types.NewRPCError(types.ErrRPCInvalidParameter, err.Error())
	}
	for _, kc := range s.cfg.Wallet.Keychains() {
		if err := kc.Decrypt([]byte(cmd.Passphrase)); err != nil {
			return nil, types.NewRPCError(types.ErrRPCWalletUnlockNeeded, err.Error())
		}
	}
	return nil, nil
}

func handleWalletLock(s *Server, raw json.RawMessage) (interface{}, error) {
	for _, kc := range s.cfg.Wallet.Keychains() {
		if err := kc.Lock(); err != nil {
			return nil, types.NewRPCError(types.ErrRPCInternal, err.Error())
		}
	}
	return nil, nil
}
