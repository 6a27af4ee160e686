// Package signer holds the client's secp256k1 identity.
//
// SecureSecret keeps the 32-byte private scalar encrypted in memory with
// a per-instance AES-256-GCM key; plaintext exists only inside a signing
// call and is wiped before the call returns. Oracle derives the
// Ethereum-style address once, signs UTF-8 strings with the personal
// message prefix, and verifies signatures by public-key recovery.
package signer
