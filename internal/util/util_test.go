package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testArgon2idParams() Argon2idParams {
	return Argon2idParams{Time: 1, MemoryKiB: 64, Parallelism: 1, KeyLen: 32}
}

func TestAES(t *testing.T) {
	key, err := NewAESKey()
	require.NoError(t, err)
	plain := []byte("refresh-token")
	aad := []byte("context")

	sealed, err := EncryptAESWithAAD(plain, key, aad)
	require.NoError(t, err)

	opened, err := DecryptAESWithAAD(sealed, key, aad)
	require.NoError(t, err)
	assert.Equal(t, plain, opened)

	t.Run("TamperAAD", func(t *testing.T) {
		_, err := DecryptAESWithAAD(sealed, key, []byte("other"))
		assert.Error(t, err)
	})

	t.Run("RejectBadKeySize", func(t *testing.T) {
		_, err := EncryptAESWithAAD(plain, key[:16], aad)
		assert.ErrorContains(t, err, "invalid AES key size")
		_, err = DecryptAESWithAAD(sealed, key[:16], aad)
		assert.ErrorContains(t, err, "invalid AES key size")
	})

	t.Run("ShortCiphertext", func(t *testing.T) {
		_, err := DecryptAESWithAAD([]byte("short"), key, aad)
		assert.ErrorContains(t, err, "shorter than nonce")
	})
}

func TestKDF(t *testing.T) {
	t.Run("Argon2idDeterministic", func(t *testing.T) {
		salt := []byte("0123456789abcdef")
		k1, err := DeriveArgon2idKey("passphrase", salt, testArgon2idParams())
		require.NoError(t, err)
		k2, err := DeriveArgon2idKey("passphrase", salt, testArgon2idParams())
		require.NoError(t, err)
		assert.Equal(t, k1, k2)
		assert.Len(t, k1, 32)
	})

	t.Run("Argon2idRejectsBadParams", func(t *testing.T) {
		tests := map[string]Argon2idParams{
			"KeyLen":      {Time: 1, MemoryKiB: 64, Parallelism: 1, KeyLen: 16},
			"Time":        {Time: 0, MemoryKiB: 64, Parallelism: 1, KeyLen: 32},
			"Memory":      {Time: 1, MemoryKiB: 4, Parallelism: 1, KeyLen: 32},
			"Parallelism": {Time: 1, MemoryKiB: 64, Parallelism: 0, KeyLen: 32},
		}
		for name, p := range tests {
			t.Run(name, func(t *testing.T) {
				assert.Error(t, ValidateArgon2idParams(p))
			})
		}
		assert.NoError(t, ValidateArgon2idParams(DefaultArgon2idParams()))
	})

	t.Run("HKDF", func(t *testing.T) {
		k1, err := HKDF([]byte("seed"), nil, []byte("a"))
		require.NoError(t, err)
		k2, err := HKDF([]byte("seed"), nil, []byte("b"))
		require.NoError(t, err)
		assert.Len(t, k1, HKDFKeyLength)
		assert.NotEqual(t, k1, k2)
	})

	t.Run("TwoSecretKeyNeedsBothInputs", func(t *testing.T) {
		salt := []byte("0123456789abcdef")
		base, err := NewTwoSecretKey("pw", salt, testArgon2idParams(), []byte("secret"), salt, []byte("info"))
		require.NoError(t, err)
		otherPass, err := NewTwoSecretKey("pw2", salt, testArgon2idParams(), []byte("secret"), salt, []byte("info"))
		require.NoError(t, err)
		otherSecret, err := NewTwoSecretKey("pw", salt, testArgon2idParams(), []byte("secret2"), salt, []byte("info"))
		require.NoError(t, err)
		assert.NotEqual(t, base, otherPass)
		assert.NotEqual(t, base, otherSecret)
	})
}

func TestBytes(t *testing.T) {
	b := []byte{1, 2, 3}
	c := CopyBytes(b)
	c[0] = 9
	assert.Equal(t, byte(1), b[0])
	assert.Nil(t, CopyBytes(nil))

	WipeBytes(b)
	assert.Equal(t, []byte{0, 0, 0}, b)

	x, err := Xor([]byte{0xff, 0x0f}, []byte{0x0f, 0x0f})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xf0, 0x00}, x)

	_, err = Xor([]byte{1}, []byte{1, 2})
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	// "é" precomposed vs. decomposed must normalize identically.
	assert.Equal(t, Normalize("caf\u00e9"), Normalize("cafe\u0301"))

	assert.Equal(t, "Jane@Example.COM", NormalizeIdentifier("  Jane@Example.COM "))
	// Fullwidth letters fold to ASCII under NFKC.
	assert.Equal(t, "AB@c.d", NormalizeIdentifier("\uff21\uff22@c.d"))
}

func TestRandomBytes(t *testing.T) {
	a, err := RandomBytes(32)
	require.NoError(t, err)
	b, err := RandomBytes(32)
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
