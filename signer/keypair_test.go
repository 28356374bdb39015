package signer

import (
	"bytes"
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_SignsVerifiably(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	msg := []byte("relocate record")
	sig, err := kp.Sign(msg)
	require.NoError(t, err)

	pub := kp.PublicKey()
	assert.True(t, ed25519.Verify(pub[:], msg, sig))
	assert.False(t, pub.IsZero())
}

func TestFromSeed(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, ed25519.SeedSize)

	a, err := FromSeed(seed)
	require.NoError(t, err)
	b, err := FromSeed(seed)
	require.NoError(t, err)
	assert.Equal(t, a.PublicKey(), b.PublicKey())

	_, err = FromSeed([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidKeypair)
}

func TestFromPrivateKey_RejectsMismatchedPublicKey(t *testing.T) {
	kp, err := FromSeed(bytes.Repeat([]byte{1}, ed25519.SeedSize))
	require.NoError(t, err)

	raw := append([]byte(nil), kp.private...)
	raw[63] ^= 0xff

	_, err = FromPrivateKey(raw)
	assert.ErrorIs(t, err, ErrInvalidKeypair)
}

func TestSaveAndLoadFile(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id.json")

	require.NoError(t, kp.SaveFile(path))
	loaded, err := LoadFile(path)

	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey(), loaded.PublicKey())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(dir, "missing.json"))
		assert.Error(t, err)
	})

	t.Run("not json", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("nope"), 0o600))

		_, err := LoadFile(path)
		assert.ErrorIs(t, err, ErrInvalidKeypair)
	})

	t.Run("out of range value", func(t *testing.T) {
		path := filepath.Join(dir, "range.json")
		require.NoError(t, os.WriteFile(path, []byte("[256]"), 0o600))

		_, err := LoadFile(path)
		assert.ErrorIs(t, err, ErrInvalidKeypair)
	})

	t.Run("wrong length", func(t *testing.T) {
		path := filepath.Join(dir, "short.json")
		require.NoError(t, os.WriteFile(path, []byte("[1,2,3]"), 0o600))

		_, err := LoadFile(path)
		assert.ErrorIs(t, err, ErrInvalidKeypair)
	})
}
