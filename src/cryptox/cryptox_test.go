package cryptox

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := DeriveKEK([]byte("s3cret"))
	require.NoError(t, err)

	blob, err := Encrypt("4111111111111111", key)
	require.NoError(t, err)
	require.NotContains(t, blob, "4111")

	value, err := Decrypt(blob, key)
	require.NoError(t, err)
	require.Equal(t, "4111111111111111", value)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	key, err := DeriveKEK([]byte("s3cret"))
	require.NoError(t, err)
	wrongKey, err := DeriveKEK([]byte("wrong"))
	require.NoError(t, err)

	blob, err := Encrypt("hello", key)
	require.NoError(t, err)

	_, err = Decrypt(blob, wrongKey)
	require.Error(t, err)
}

func TestTamperedBlobFailsHMAC(t *testing.T) {
	key, err := DeriveKEK([]byte("s3cret"))
	require.NoError(t, err)

	blob, err := Encrypt("hello", key)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = Decrypt(tampered, key)
	require.Error(t, err)
}

func TestRandomDEKWrapUnwrap(t *testing.T) {
	kek, err := DeriveKEK([]byte("top-secret"))
	require.NoError(t, err)

	wrapped, err := RandomDEK(kek)
	require.NoError(t, err)

	dek, err := UnwrapDEK(wrapped, kek)
	require.NoError(t, err)
	require.Len(t, dek, 32)
}

func TestRandomIDIsHex(t *testing.T) {
	id, err := RandomID(8)
	require.NoError(t, err)
	require.Len(t, id, 16)
	for _, r := range id {
		require.True(t, (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f'))
	}
}
