package signer

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of a secp256k1 private scalar.
const KeySize = 32

// hkdfInfo provides domain separation for the sealing key derivation.
const hkdfInfo = "teneo-secure-secret-v1"

// SecureSecret wraps a private key so the only long-lived in-memory
// representation is ciphertext. Each instance seals under its own random
// key; there is no way to extract the plaintext except through Use.
type SecureSecret struct {
	mu         sync.Mutex
	sealKey    []byte
	ciphertext []byte
	destroyed  bool
}

// NewSecureSecret seals a copy of the given 32-byte scalar. The caller
// still owns its input slice and should wipe it after this returns.
func NewSecureSecret(priv []byte) (*SecureSecret, error) {
	if len(priv) != KeySize || allZero(priv) {
		return nil, ErrInvalidKey
	}

	master := make([]byte, KeySize)
	if _, err := rand.Read(master); err != nil {
		return nil, errors.Join(ErrSealFailed, err)
	}
	sealKey, err := deriveSealKey(master)
	wipe(master)
	if err != nil {
		return nil, err
	}

	aead, err := newAEAD(sealKey)
	if err != nil {
		wipe(sealKey)
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		wipe(sealKey)
		return nil, errors.Join(ErrSealFailed, err)
	}

	return &SecureSecret{
		sealKey:    sealKey,
		ciphertext: aead.Seal(nonce, nonce, priv, nil),
	}, nil
}

// Use decrypts the scalar, passes it to fn, and wipes the plaintext
// buffer before returning. fn must not retain the slice.
func (s *SecureSecret) Use(fn func(priv []byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ErrDestroyed
	}

	aead, err := newAEAD(s.sealKey)
	if err != nil {
		return err
	}
	nonceSize := aead.NonceSize()
	if len(s.ciphertext) < nonceSize {
		return ErrUnsealFailed
	}
	nonce, sealed := s.ciphertext[:nonceSize], s.ciphertext[nonceSize:]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return errors.Join(ErrUnsealFailed, err)
	}
	defer wipe(plain)

	return fn(plain)
}

// Destroy wipes the sealing key and ciphertext. Idempotent; any later
// Use returns ErrDestroyed.
func (s *SecureSecret) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}
	wipe(s.sealKey)
	wipe(s.ciphertext)
	s.sealKey = nil
	s.ciphertext = nil
	s.destroyed = true
}

// Destroyed reports whether Destroy has been called.
func (s *SecureSecret) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

func deriveSealKey(master []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, master, nil, []byte(hkdfInfo))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, errors.Join(ErrSealFailed, err)
	}
	return key, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Join(ErrSealFailed, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Join(ErrSealFailed, err)
	}
	return aead, nil
}

func allZero(b []byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return acc == 0
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
