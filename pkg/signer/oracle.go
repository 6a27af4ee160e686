package signer

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// personalPrefix is the Ethereum personal-message prefix. Signing over
// it keeps signatures incompatible with raw transaction payloads.
const personalPrefix = "\x19Ethereum Signed Message:\n"

// Oracle signs UTF-8 messages with the wrapped secret and verifies
// signatures from others by public-key recovery. The address is derived
// once at construction; signing is the only operation that touches the
// plaintext scalar.
type Oracle struct {
	secret  *SecureSecret
	address string
}

// NewOracle derives the signer's address from the secret.
func NewOracle(secret *SecureSecret) (*Oracle, error) {
	if secret == nil {
		return nil, ErrInvalidKey
	}
	var address string
	err := secret.Use(func(priv []byte) error {
		key := secp256k1.PrivKeyFromBytes(priv)
		defer key.Zero()
		address = pubKeyAddress(key.PubKey())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Oracle{secret: secret, address: address}, nil
}

// Address returns the EIP-55 checksummed 0x-address of the signer.
func (o *Oracle) Address() string { return o.address }

// Sign produces a 65-byte r||s||v signature (hex, 0x-prefixed) over the
// personal-message hash of msg. v is 27 or 28.
func (o *Oracle) Sign(msg string) (string, error) {
	digest := personalHash(msg)
	var sig []byte
	err := o.secret.Use(func(priv []byte) error {
		key := secp256k1.PrivKeyFromBytes(priv)
		defer key.Zero()
		// SignCompact returns v||r||s with v already offset by 27 for
		// uncompressed keys; Ethereum wants r||s||v.
		compact := secpecdsa.SignCompact(key, digest, false)
		sig = make([]byte, 65)
		copy(sig[0:64], compact[1:65])
		sig[64] = compact[0]
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDestroyed) {
			return "", err
		}
		return "", errors.Join(ErrSignFailed, err)
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// Verify reports whether sigHex is a valid signature over msg by the
// holder of expectedAddress. Both v in {0,1} and v in {27,28} are
// accepted. Malformed input verifies false with an error describing why.
func (o *Oracle) Verify(msg, sigHex, expectedAddress string) (bool, error) {
	recovered, err := RecoverAddress(msg, sigHex)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(recovered, expectedAddress), nil
}

// RecoverAddress recovers the signing address from a personal-message
// signature.
func RecoverAddress(msg, sigHex string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if len(raw) != 65 {
		return "", fmt.Errorf("%w: got %d bytes, want 65", ErrInvalidSignature, len(raw))
	}
	v := raw[64]
	if v < 27 {
		v += 27
	}
	if v != 27 && v != 28 {
		return "", fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, raw[64])
	}
	compact := make([]byte, 65)
	compact[0] = v
	copy(compact[1:], raw[:64])

	pub, _, err := secpecdsa.RecoverCompact(compact, personalHash(msg))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return pubKeyAddress(pub), nil
}

// personalHash computes keccak256(prefix || len(msg) || msg).
func personalHash(msg string) []byte {
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "%s%d%s", personalPrefix, len(msg), msg)
	return h.Sum(nil)
}

// pubKeyAddress maps a public key to its checksummed address: the last
// 20 bytes of keccak256 over the uncompressed point without the prefix.
func pubKeyAddress(pub *secp256k1.PublicKey) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(pub.SerializeUncompressed()[1:])
	return ChecksumAddress(hex.EncodeToString(h.Sum(nil)[12:]))
}

// ChecksumAddress applies EIP-55 mixed-case checksumming to a bare or
// 0x-prefixed hex address.
func ChecksumAddress(addr string) string {
	lower := strings.ToLower(strings.TrimPrefix(addr, "0x"))
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	hashHex := hex.EncodeToString(h.Sum(nil))

	out := make([]byte, len(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c >= 'a' && c <= 'f' && hashHex[i] >= '8' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return "0x" + string(out)
}
