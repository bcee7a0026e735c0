package encryption

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) string {
	t.Helper()
	k, err := GenerateKey()
	require.NoError(t, err)
	return k.Encode()
}

func TestEncryptDecrypt(t *testing.T) {
	enc, err := NewEncryptor(newKey(t))
	require.NoError(t, err)

	tok, err := enc.Encrypt("shpat_123")
	require.NoError(t, err)
	assert.NotEqual(t, "shpat_123", tok)

	plain, err := enc.Decrypt(tok)
	require.NoError(t, err)
	assert.Equal(t, "shpat_123", plain)
}

func TestEmptyPassesThrough(t *testing.T) {
	enc, err := NewEncryptor(newKey(t))
	require.NoError(t, err)

	tok, err := enc.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, tok)

	plain, err := enc.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, plain)
}

func TestKeyRotation(t *testing.T) {
	oldKey, newK := newKey(t), newKey(t)
	old, err := NewEncryptor(oldKey)
	require.NoError(t, err)
	tok, err := old.Encrypt("secret")
	require.NoError(t, err)

	rotated, err := NewEncryptor(newK + "," + oldKey)
	require.NoError(t, err)
	plain, err := rotated.Decrypt(tok)
	require.NoError(t, err)
	assert.Equal(t, "secret", plain)

	fresh, err := NewEncryptor(newK)
	require.NoError(t, err)
	_, err = fresh.Decrypt(tok)
	assert.Error(t, err)
}

func TestNewEncryptorRejectsBadKeys(t *testing.T) {
	_, err := NewEncryptor("  ")
	assert.Error(t, err)
	_, err = NewEncryptor("not-a-key")
	assert.Error(t, err)
}

func TestLoadKey(t *testing.T) {
	k, err := LoadKey(" inline ", "/nonexistent")
	require.NoError(t, err)
	assert.Equal(t, "inline", k)

	k, err = LoadKey("", filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, k)

	path := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(path, []byte("fromfile\n"), 0o600))
	k, err = LoadKey("", path)
	require.NoError(t, err)
	assert.Equal(t, "fromfile", k)
}
