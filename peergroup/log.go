// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peergroup

import "github.com/decred/slog"

// log is this package's subsystem logger, the "pgrp" backend; it is
// disabled until UseLogger wires a real one in.
var log = slog.Disabled

// UseLogger sets the subsystem logger used by this package.
func UseLogger(logger slog.Logger) {
	log = logger
}
