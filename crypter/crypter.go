// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package crypter implements the passphrase-based encryption a wallet
// uses to protect its keychain's private key material at rest, per
// spec.md's Crypter component.
package crypter

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"

	"github.com/ndau-spv/spvcore/walleterrors"
	"golang.org/x/crypto/scrypt"
)

const (
	// keyLen is the AES-256 key length derived from the passphrase.
	keyLen = 32

	// saltLen is the length of the random salt mixed into the KDF.
	saltLen = 32

	// scryptN, scryptR and scryptP are the scrypt cost parameters. N is
	// a power of two chosen to make brute-forcing a stolen keychain
	// file expensive while keeping interactive unlock under a second on
	// typical hardware.
	scryptN = 1 << 18
	scryptR = 8
	scryptP = 1
)

// ErrWrongPassphrase is returned by Decrypt when the derived key fails
// to produce a validly padded plaintext, almost always because the
// passphrase was wrong.
var ErrWrongPassphrase = errors.New("crypter: wrong passphrase")

// Params holds the salt and cost parameters needed to re-derive the same
// encryption key from a passphrase. It is stored alongside the
// ciphertext; the passphrase itself never is.
type Params struct {
	Salt []byte
	N, R, P int
}

// NewParams returns a fresh Params with a random salt and the package's
// default scrypt cost parameters.
func NewParams() (*Params, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, walleterrors.E(walleterrors.StoreIO, "generate crypter salt", err)
	}
	return &Params{Salt: salt, N: scryptN, R: scryptR, P: scryptP}, nil
}

// deriveKey runs scrypt over passphrase with p's salt and cost
// parameters to produce an AES-256 key.
func (p *Params) deriveKey(passphrase []byte) ([]byte, error) {
	return scrypt.Key(passphrase, p.Salt, p.N, p.R, p.P, keyLen)
}

// Crypter encrypts and decrypts byte slices (private keys, seeds) under
// a single passphrase-derived key. A Crypter is created locked, via
// NewParams plus a passphrase, and holds the derived key only in memory
// for as long as the wallet is unlocked.
type Crypter struct {
	params *Params
	key     []byte
}

// New derives a Crypter's key from passphrase using params.
func New(params *Params, passphrase []byte) (*Crypter, error) {
	key, err := params.deriveKey(passphrase)
	if err != nil {
		return nil, walleterrors.E(walleterrors.StoreIO, "derive encryption key", err)
	}
	return &Crypter{params: params, key: key}, nil
}

// Zero wipes the derived key from memory. The Crypter must not be used
// again afterward.
func (c *Crypter) Zero() {
	for i := range c.key {
		c.key[i] = 0
	}
	c.key = nil
}

// Encrypt encrypts plaintext with AES-256-CBC under the Crypter's
// derived key, returning a random IV prepended to the ciphertext. The
// plaintext is PKCS#7 padded to the cipher's block size.
func (c *Crypter) Encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, walleterrors.E(walleterrors.Invalid, "construct AES cipher", err)
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())
	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, walleterrors.E(walleterrors.StoreIO, "generate IV", err)
	}

	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(out[aes.BlockSize:], padded)
	return out, nil
}

// Decrypt reverses Encrypt, returning ErrWrongPassphrase if the
// ciphertext's padding is invalid after decryption under the Crypter's
// key — the only signal available that the passphrase was wrong, since
// AES-CBC itself has no integrity check.
func (c *Crypter) Decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, walleterrors.E(walleterrors.Invalid, "construct AES cipher", err)
	}
	if len(ciphertext) < aes.BlockSize || (len(ciphertext)-aes.BlockSize)%block.BlockSize() != 0 {
		return nil, ErrWrongPassphrase
	}

	iv := ciphertext[:aes.BlockSize]
	body := append([]byte(nil), ciphertext[aes.BlockSize:]...)

	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(body, body)

	return pkcs7Unpad(body, block.BlockSize())
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrWrongPassphrase
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, ErrWrongPassphrase
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, ErrWrongPassphrase
		}
	}
	return data[:len(data)-padLen], nil
}
