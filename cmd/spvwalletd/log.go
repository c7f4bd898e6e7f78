// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"

	"github.com/ndau-spv/spvcore/blockchain"
	"github.com/ndau-spv/spvcore/keychain"
	"github.com/ndau-spv/spvcore/peergroup"
	"github.com/ndau-spv/spvcore/rpc"
	"github.com/ndau-spv/spvcore/wallet"
)

// log is this command's own subsystem logger, the "spwd" backend.
var log = slog.Disabled

// subsystemLoggers maps each package's backend name to the UseLogger
// hook it exposes, so setupLogging can wire every subsystem from one
// place, the way the teacher's log.go does for exccd's own packages.
var subsystemLoggers = map[string]func(slog.Logger){
	"wallet": wallet.UseLogger,
	"pgrp":   peergroup.UseLogger,
	"bcdb":   blockchain.UseLogger,
	"kchn":   keychain.UseLogger,
	"rpcs":   rpc.UseLogger,
}

// setupLogging creates the rotating log file under cfg.LogDir, builds
// a slog backend writing to both stdout and that file, and wires every
// subsystem logger at cfg.DebugLevel. The returned func closes the log
// file and must be deferred by the caller.
func setupLogging(cfg *config) (func(), error) {
	logFile := filepath.Join(cfg.LogDir, "spvwalletd.log")
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return nil, err
	}

	level, ok := slog.LevelFromString(cfg.DebugLevel)
	if !ok {
		level = slog.LevelInfo
	}

	backend := slog.NewBackend(io.MultiWriter(os.Stdout, r))
	log = backend.Logger("spwd")
	log.SetLevel(level)

	for subsystem, use := range subsystemLoggers {
		l := backend.Logger(subsystem)
		l.SetLevel(level)
		use(l)
	}

	return func() { r.Close() }, nil
}
