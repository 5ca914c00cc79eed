package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundtrip(t *testing.T) {
	secrets := []string{
		"bybit-api-key-0001",
		"",
		"secret with spaces and unicode ✓",
	}

	for _, secret := range secrets {
		encoded, err := EncryptString(secret)
		require.NoError(t, err)
		assert.NotEqual(t, secret, encoded)

		decoded, err := DecryptString(encoded)
		require.NoError(t, err)
		assert.Equal(t, secret, decoded)
	}
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	first, err := EncryptString("same plaintext")
	require.NoError(t, err)

	second, err := EncryptString("same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	encoded, err := EncryptString("api-secret")
	require.NoError(t, err)

	tampered := []byte(encoded)
	tampered[len(tampered)-5] ^= 'x'

	_, err = DecryptString(string(tampered))
	assert.Error(t, err)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	_, err := DecryptString("not-base64!!!")
	assert.Error(t, err)

	_, err = DecryptString("c2hvcnQ=") // valid base64, shorter than a nonce
	assert.Error(t, err)
}
