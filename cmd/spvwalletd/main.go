// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command spvwalletd wires together the blockchain, blockstore,
// wallet, peer group, and control RPC described by this module into a
// long-running daemon, in the tradition of the teacher's own
// exccd/exccwallet entry points.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ndau-spv/spvcore/blockchain"
	"github.com/ndau-spv/spvcore/blockstore"
	"github.com/ndau-spv/spvcore/keychain"
	"github.com/ndau-spv/spvcore/peergroup"
	"github.com/ndau-spv/spvcore/rpc"
	"github.com/ndau-spv/spvcore/wallet"
)

// appVersion is reported in getinfo replies and the self-signed TLS
// certificate's organization field.
const appVersion = "spvwalletd 0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	closeLog, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	log.Infof("%s starting, network %s", appVersion, cfg.chainParams.Name)

	store, err := blockstore.New(filepath.Join(cfg.DataDir, "blocks"), 0)
	if err != nil {
		return fmt.Errorf("open block store: %w", err)
	}

	chain, err := blockchain.New(store, cfg.chainParams)
	if err != nil {
		return fmt.Errorf("open block chain: %w", err)
	}

	kc, err := loadKeychain(cfg)
	if err != nil {
		return err
	}

	w, err := wallet.New(filepath.Join(cfg.DataDir, "wallet"), cfg.chainParams.Name, kc)
	if err != nil {
		return fmt.Errorf("open wallet: %w", err)
	}
	defer w.Close()

	chain.AddListener(w)

	pg, err := peergroup.New(peergroup.Config{
		ChainParams:    cfg.chainParams,
		Chain:          chain,
		Store:          store,
		Wallets:        []*wallet.Wallet{w},
		Peers:          cfg.Peers,
		MinConnections: cfg.MinConnections,
		MaxConnections: cfg.MaxConnections,
		UserAgent:      appVersion,
	})
	if err != nil {
		return fmt.Errorf("create peer group: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	broadcaster := peergroup.NewTransactionBroadcaster(pg)

	rpcServer := rpc.NewServer(rpc.Config{
		Listen:      cfg.RPCListen,
		Username:    cfg.RPCUser,
		Password:    cfg.RPCPass,
		CertFile:    cfg.RPCCert,
		KeyFile:     cfg.RPCKey,
		ChainParams: cfg.chainParams,
		Wallet:      w,
		PeerGroup:   pg,
		Broadcaster: broadcaster,
		Version:     appVersion,
	})

	errCh := make(chan error, 2)
	go func() { errCh <- pg.Run(ctx) }()
	go func() { errCh <- rpcServer.Run(ctx) }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Errorf("component exited: %v", err)
		}
	}

	pg.Stop()
	log.Infof("%s shutting down", appVersion)
	return nil
}

// loadKeychain derives the wallet's single keychain from cfg.WalletSeed.
// A production deployment would prompt for (or load an encrypted copy
// of) this seed rather than accept it as a flag; per this module's
// scope, the daemon only wires the KeyChain together, it does not
// implement a provisioning UI.
func loadKeychain(cfg *config) (*keychain.KeyChain, error) {
	if cfg.WalletSeed == "" {
		return nil, fmt.Errorf("-walletseed is required (hex-encoded BIP32 seed)")
	}
	seed, err := hex.DecodeString(cfg.WalletSeed)
	if err != nil {
		return nil, fmt.Errorf("decode -walletseed: %w", err)
	}
	return keychain.New(seed, cfg.chainParams, 0)
}
