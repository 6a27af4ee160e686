package signer_test

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teneoprotocol/teneo-go/pkg/signer"
)

// Fixed test scalar; never used outside tests.
const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func testSecret(t *testing.T) *signer.SecureSecret {
	t.Helper()
	raw, err := hex.DecodeString(testKeyHex)
	require.NoError(t, err)
	secret, err := signer.NewSecureSecret(raw)
	require.NoError(t, err)
	return secret
}

func TestNewSecureSecret_RejectsBadKeys(t *testing.T) {
	t.Parallel()

	_, err := signer.NewSecureSecret(nil)
	assert.ErrorIs(t, err, signer.ErrInvalidKey)

	_, err = signer.NewSecureSecret(make([]byte, 31))
	assert.ErrorIs(t, err, signer.ErrInvalidKey)

	_, err = signer.NewSecureSecret(make([]byte, 32))
	assert.ErrorIs(t, err, signer.ErrInvalidKey, "all-zero scalar must be rejected")
}

func TestSecureSecret_DestroyIsTerminalAndIdempotent(t *testing.T) {
	t.Parallel()

	secret := testSecret(t)
	oracle, err := signer.NewOracle(secret)
	require.NoError(t, err)

	secret.Destroy()
	secret.Destroy()
	assert.True(t, secret.Destroyed())

	_, err = oracle.Sign("anything")
	assert.ErrorIs(t, err, signer.ErrDestroyed)
}

func TestOracle_AddressIsStableAndChecksummed(t *testing.T) {
	t.Parallel()

	oracle, err := signer.NewOracle(testSecret(t))
	require.NoError(t, err)

	addr := oracle.Address()
	assert.True(t, strings.HasPrefix(addr, "0x"))
	assert.Len(t, addr, 42)
	assert.Equal(t, addr, signer.ChecksumAddress(strings.ToLower(addr)))

	again, err := signer.NewOracle(testSecret(t))
	require.NoError(t, err)
	assert.Equal(t, addr, again.Address())
}

func TestOracle_SignVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	oracle, err := signer.NewOracle(testSecret(t))
	require.NoError(t, err)

	msg := "Teneo authentication challenge: abc123"
	sig, err := oracle.Sign(msg)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sig, "0x"))
	assert.Len(t, sig, 2+130, "65 bytes of hex")

	ok, err := oracle.Verify(msg, sig, oracle.Address())
	require.NoError(t, err)
	assert.True(t, ok)

	// Any other address fails verification.
	ok, err = oracle.Verify(msg, sig, "0x0000000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.False(t, ok)

	// A different message fails too.
	ok, err = oracle.Verify(msg+"x", sig, oracle.Address())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOracle_VerifyAcceptsBothRecoveryIDConventions(t *testing.T) {
	t.Parallel()

	oracle, err := signer.NewOracle(testSecret(t))
	require.NoError(t, err)

	sig, err := oracle.Sign("hello")
	require.NoError(t, err)

	raw, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, raw[64], byte(27))

	// Re-encode with v in {0,1}.
	raw[64] -= 27
	legacy := "0x" + hex.EncodeToString(raw)
	ok, err := oracle.Verify("hello", legacy, oracle.Address())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRecoverAddress_MalformedSignatures(t *testing.T) {
	t.Parallel()

	_, err := signer.RecoverAddress("msg", "0xzz")
	assert.ErrorIs(t, err, signer.ErrInvalidSignature)

	_, err = signer.RecoverAddress("msg", "0x"+strings.Repeat("00", 64))
	assert.ErrorIs(t, err, signer.ErrInvalidSignature)
}

func TestChecksumAddress(t *testing.T) {
	t.Parallel()

	// EIP-55 reference vector.
	assert.Equal(t,
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		signer.ChecksumAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"))
}
