// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package crypter_test

import (
	"bytes"
	"testing"

	"github.com/ndau-spv/spvcore/crypter"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	params, err := crypter.NewParams()
	if err != nil {
		t.Fatalf("NewParams: %v", err)
	}

	c, err := crypter.New(params, []byte("correct horse battery staple"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	plaintext := []byte("a 32-byte BIP32 master seed or similar secret")
	ciphertext, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Fatalf("ciphertext leaks plaintext bytes")
	}

	got, err := c.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestDecryptWithWrongPassphraseFails(t *testing.T) {
	params, err := crypter.NewParams()
	if err != nil {
		t.Fatalf("NewParams: %v", err)
	}

	c, err := crypter.New(params, []byte("right passphrase"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ciphertext, err := c.Encrypt([]byte("secret key bytes"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	wrong, err := crypter.New(params, []byte("wrong passphrase"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := wrong.Decrypt(ciphertext); err == nil {
		t.Fatalf("Decrypt should fail under the wrong passphrase")
	}
}

func TestEncryptProducesDistinctCiphertextsForSamePlaintext(t *testing.T) {
	params, err := crypter.NewParams()
	if err != nil {
		t.Fatalf("NewParams: %v", err)
	}
	c, err := crypter.New(params, []byte("passphrase"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	a, err := c.Encrypt([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := c.Encrypt([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("two encryptions of the same plaintext should differ due to random IVs")
	}
}
