// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"

	"github.com/ndau-spv/spvcore/chaincfg"
)

const (
	defaultConfigFilename = "spvwalletd.conf"
	defaultDataDirname    = "data"
	defaultLogDirname     = "logs"
	defaultLogLevel       = "info"
	defaultRPCListen      = "127.0.0.1:19110"
	defaultMinConnections = 4
	defaultMaxConnections = 8
)

// config defines the daemon's command-line and INI-file options,
// following the teacher's jessevdk/go-flags convention.
type config struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"Directory to store wallet and block data"`
	LogDir     string `long:"logdir" description:"Directory to log output"`
	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level: trace, debug, info, warn, error, critical"`

	TestNet bool `long:"testnet" description:"Use the test network"`
	RegTest bool `long:"regtest" description:"Use the regression test network"`

	Peers          []string `long:"addpeer" description:"Add a peer to connect to, in addition to discovered peers"`
	MinConnections int      `long:"minconnections" description:"Minimum number of peer connections to maintain"`
	MaxConnections int      `long:"maxconnections" description:"Maximum number of peer connections to maintain"`

	WalletSeed string `long:"walletseed" description:"Hex-encoded BIP32 seed for the wallet's keychain (dev/test use only; production deployments should prompt for this)"`

	RPCListen string `long:"rpclisten" description:"Address the control RPC listens on"`
	RPCUser   string `long:"rpcuser" description:"Username for control RPC authentication"`
	RPCPass   string `long:"rpcpass" description:"Password for control RPC authentication"`
	RPCCert   string `long:"rpccert" description:"Path to the control RPC's TLS certificate"`
	RPCKey    string `long:"rpckey" description:"Path to the control RPC's TLS key"`

	chainParams *chaincfg.Params
}

// defaultConfig returns a config populated with every default, before
// CLI/INI overrides are applied.
func defaultConfig() *config {
	appDir := defaultAppDataDir()
	return &config{
		ConfigFile:     filepath.Join(appDir, defaultConfigFilename),
		DataDir:        filepath.Join(appDir, defaultDataDirname),
		LogDir:         filepath.Join(appDir, defaultLogDirname),
		DebugLevel:     defaultLogLevel,
		MinConnections: defaultMinConnections,
		MaxConnections: defaultMaxConnections,
		RPCListen:      defaultRPCListen,
	}
}

// defaultAppDataDir returns the OS-appropriate per-user application
// data directory for spvwalletd.
func defaultAppDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".", ".spvwalletd")
	}
	return filepath.Join(home, ".spvwalletd")
}

// loadConfig parses the default config, then the config file (if it
// exists), then the command line, matching the precedence order of the
// teacher's own loadConfig.
func loadConfig() (*config, error) {
	preCfg := defaultConfig()
	parser := flags.NewParser(preCfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, err
	}

	if _, err := os.Stat(preCfg.ConfigFile); err == nil {
		iniParser := flags.NewIniParser(parser)
		if err := iniParser.ParseFile(preCfg.ConfigFile); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		// Command-line flags override the config file: parse again.
		if _, err := parser.Parse(); err != nil {
			return nil, err
		}
	}

	if preCfg.RegTest {
		preCfg.chainParams = chaincfg.RegressionNetParams()
	} else if preCfg.TestNet {
		preCfg.chainParams = chaincfg.TestNet3Params()
	} else {
		preCfg.chainParams = chaincfg.MainNetParams()
	}

	if err := os.MkdirAll(preCfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.MkdirAll(preCfg.LogDir, 0700); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	if preCfg.RPCCert == "" {
		preCfg.RPCCert = filepath.Join(preCfg.DataDir, "rpc.cert")
	}
	if preCfg.RPCKey == "" {
		preCfg.RPCKey = filepath.Join(preCfg.DataDir, "rpc.key")
	}

	return preCfg, nil
}
