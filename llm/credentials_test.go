package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptedKeyStoreSetResolve(t *testing.T) {
	store, err := NewEncryptedKeyStore("test-master-key")
	require.NoError(t, err)

	require.NoError(t, store.Set("user-1", "openai", "sk-test-123"))

	key, err := store.Resolve(context.Background(), "user-1", "openai")
	require.NoError(t, err)
	require.Equal(t, "sk-test-123", key)
}

func TestEncryptedKeyStoreResolveMissingReturnsEmpty(t *testing.T) {
	store, err := NewEncryptedKeyStore("test-master-key")
	require.NoError(t, err)

	key, err := store.Resolve(context.Background(), "user-1", "anthropic")
	require.NoError(t, err)
	require.Empty(t, key)
}

func TestEncryptedKeyStoreRejectsEmptyMasterKey(t *testing.T) {
	_, err := NewEncryptedKeyStore("")
	require.Error(t, err)
}

func TestEncryptedKeyStoreScopesByUserAndProvider(t *testing.T) {
	store, err := NewEncryptedKeyStore("test-master-key")
	require.NoError(t, err)

	require.NoError(t, store.Set("user-1", "openai", "key-a"))
	require.NoError(t, store.Set("user-2", "openai", "key-b"))
	require.NoError(t, store.Set("user-1", "anthropic", "key-c"))

	a, _ := store.Resolve(context.Background(), "user-1", "openai")
	b, _ := store.Resolve(context.Background(), "user-2", "openai")
	c, _ := store.Resolve(context.Background(), "user-1", "anthropic")
	require.Equal(t, "key-a", a)
	require.Equal(t, "key-b", b)
	require.Equal(t, "key-c", c)
}
