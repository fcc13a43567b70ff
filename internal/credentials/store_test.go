package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lotirium/blockchain-supply-chain-fintech/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testSession() domain.Session {
	return domain.Session{
		Token:    "tok-123",
		UserID:   "user-1",
		Role:     "user",
		UserType: "buyer",
	}
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewStore(path, zap.NewNop())

	require.NoError(t, store.Save(testSession()))
	assert.Equal(t, testSession(), store.Load())

	// A fresh store reading the same file sees the same session.
	reloaded := NewStore(path, zap.NewNop())
	assert.Equal(t, testSession(), reloaded.Load())
}

func TestStoreLoadEmptyWhenNothingPersisted(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing.json"), zap.NewNop())
	assert.True(t, store.Load().Empty())
	assert.False(t, store.Load().Authenticated())
}

func TestStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewStore(path, zap.NewNop())

	require.NoError(t, store.Save(testSession()))
	require.NoError(t, store.Clear())

	assert.True(t, store.Load().Empty())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Clearing twice is harmless.
	require.NoError(t, store.Clear())
}

func TestStoreCorruptFileTreatedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store := NewStore(path, zap.NewNop())
	assert.True(t, store.Load().Empty())
}

func TestStoreDegradesToMemoryOnWriteFailure(t *testing.T) {
	// Pointing the store below a regular file makes MkdirAll fail.
	base := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(base, nil, 0o600))
	store := NewStore(filepath.Join(base, "credentials.json"), zap.NewNop())

	require.NoError(t, store.Save(testSession()))
	assert.Equal(t, testSession(), store.Load(), "in-memory mode keeps serving the session")

	require.NoError(t, store.Clear())
	assert.True(t, store.Load().Empty())
}

func TestStoreToken(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "credentials.json"), zap.NewNop())
	assert.Empty(t, store.Token())

	require.NoError(t, store.Save(testSession()))
	assert.Equal(t, "tok-123", store.Token())
}
