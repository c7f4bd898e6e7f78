// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package walleterrors defines the typed error kind used across the
// core: operations that classify their failures return an *Error
// carrying a Kind drawn from a small closed set, letting callers branch
// on errors.Is(err, walleterrors.SomeKind) instead of parsing error
// strings. Some packages (wire, txscript) return plain errors instead.
package walleterrors

import "fmt"

// Kind identifies a class of error. Kind satisfies the error interface
// so that errors.Is(err, SomeKind) works directly against it.
type Kind string

// Error satisfies the error interface.
func (k Kind) Error() string { return string(k) }

const (
	// Verification describes a cryptographic check that failed: a
	// signature, a merkle proof, or a checksum.
	Verification Kind = "verification failed"

	// ProtocolMalformed describes a wire message that violates the
	// protocol's own encoding rules, distinct from one that is merely
	// unexpected in context.
	ProtocolMalformed Kind = "malformed protocol message"

	// StoreIO describes a failure reading or writing durable storage:
	// the block store file, the wallet transaction database.
	StoreIO Kind = "storage I/O error"

	// InsufficientMoney describes a coin selection failure caused by
	// the wallet's known-spendable balance being too low.
	InsufficientMoney Kind = "insufficient money"

	// KeyMissing describes a request for a key or address the keychain
	// has not issued and cannot derive without more information.
	KeyMissing Kind = "key not found"

	// Locked describes an operation requiring the private keys that was
	// attempted while the wallet is encrypted and locked.
	Locked Kind = "wallet locked"

	// Duplicate describes an attempt to insert a value already present
	// under a uniqueness constraint: a transaction, a block, a key.
	Duplicate Kind = "duplicate"

	// NetworkMismatch describes a peer or message that identifies a
	// different network than the one this instance is configured for.
	NetworkMismatch Kind = "network mismatch"

	// NotFound describes a lookup that found nothing for the given key,
	// distinct from KeyMissing which is specific to keychain lookups.
	NotFound Kind = "not found"

	// Invalid describes a value that fails a structural or semantic
	// validity check not covered by a more specific kind.
	Invalid Kind = "invalid"
)

// Error wraps a Kind with a human-readable description and, optionally,
// the lower-level error that caused it.
type Error struct {
	Kind        Kind
	Description string
	Err         error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Description != "" {
		return e.Description
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

// Unwrap returns the wrapped error, if any, letting errors.Is and
// errors.As see through to the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the Error's Kind, letting
// errors.Is(err, walleterrors.SomeKind) work without a type assertion.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && e.Kind == k
}

// E constructs an *Error with the given kind, description and optional
// wrapped cause.
func E(kind Kind, description string, err error) *Error {
	return &Error{Kind: kind, Description: description, Err: err}
}
