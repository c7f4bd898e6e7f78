// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walleterrors_test

import (
	"errors"
	"testing"

	"github.com/ndau-spv/spvcore/walleterrors"
)

func TestErrorIsKind(t *testing.T) {
	cause := errors.New("connection reset")
	err := walleterrors.E(walleterrors.StoreIO, "failed to fsync block store", cause)

	if !errors.Is(err, walleterrors.StoreIO) {
		t.Fatalf("errors.Is should match the error's Kind")
	}
	if errors.Is(err, walleterrors.Locked) {
		t.Fatalf("errors.Is should not match an unrelated Kind")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is should see through to the wrapped cause")
	}
}

func TestErrorMessageFallsBackToKind(t *testing.T) {
	err := walleterrors.E(walleterrors.Locked, "", nil)
	if err.Error() != string(walleterrors.Locked) {
		t.Fatalf("Error() = %q, want %q", err.Error(), walleterrors.Locked)
	}
}
