package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewAESGCMFromBase64Key(t *testing.T) {
	t.Run("valid key", func(t *testing.T) {
		enc, err := NewAESGCMFromBase64Key(testKey())
		require.NoError(t, err)
		assert.NotNil(t, enc)
	})

	t.Run("empty key", func(t *testing.T) {
		_, err := NewAESGCMFromBase64Key("")
		assert.ErrorIs(t, err, ErrEmptyKey)
	})

	t.Run("invalid base64", func(t *testing.T) {
		_, err := NewAESGCMFromBase64Key("not-valid-base64!!!")
		assert.Error(t, err)
	})

	t.Run("wrong size", func(t *testing.T) {
		_, err := NewAESGCMFromBase64Key(base64.StdEncoding.EncodeToString([]byte("short")))
		assert.ErrorIs(t, err, ErrKeySize)
	})
}

func TestAESEncrypter_RoundTrip(t *testing.T) {
	enc, err := NewAESGCMFromBase64Key(testKey())
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt([]byte("sleep issues since january"))
	require.NoError(t, err)
	assert.NotContains(t, string(ciphertext), "sleep")

	plaintext, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "sleep issues since january", string(plaintext))
}

func TestAESEncrypter_NonceIsRandom(t *testing.T) {
	enc, err := NewAESGCMFromBase64Key(testKey())
	require.NoError(t, err)

	a, err := enc.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := enc.Encrypt([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestAESEncrypter_DecryptRejectsTampering(t *testing.T) {
	enc, err := NewAESGCMFromBase64Key(testKey())
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt([]byte("secret"))
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xff

	_, err = enc.Decrypt(ciphertext)
	assert.Error(t, err)

	_, err = enc.Decrypt([]byte{1, 2})
	assert.Error(t, err)
}

func TestAESEncrypter_SealString(t *testing.T) {
	enc, err := NewAESGCMFromBase64Key(testKey())
	require.NoError(t, err)

	sealed, err := enc.SealString(`{"concern":"anxiety"}`)
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.NotContains(t, sealed, "anxiety")

	opened, err := enc.OpenString(sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"concern":"anxiety"}`, opened)

	empty, err := enc.SealString("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = enc.OpenString("plain text")
	assert.ErrorIs(t, err, ErrNotSealed)
}

func TestAESEncrypter_DifferentKeyCannotOpen(t *testing.T) {
	enc, err := NewAESGCMFromBase64Key(testKey())
	require.NoError(t, err)

	other := make([]byte, 32)
	other[0] = 9
	otherEnc, err := NewAESGCMFromBase64Key(base64.StdEncoding.EncodeToString(other))
	require.NoError(t, err)

	sealed, err := enc.SealString("private")
	require.NoError(t, err)
	_, err = otherEnc.OpenString(sealed)
	assert.Error(t, err)
}
