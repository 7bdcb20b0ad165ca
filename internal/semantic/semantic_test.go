package semantic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHook_DisabledYieldsNilHookNoError(t *testing.T) {
	hook, err := NewHook(Config{Enabled: false, Model: "BAAI/bge-small-en-v1.5"})
	require.NoError(t, err)
	assert.Nil(t, hook)
}

func TestNewHook_NoneModelYieldsNilHook(t *testing.T) {
	hook, err := NewHook(Config{Enabled: true, Model: "none"})
	require.NoError(t, err)
	assert.Nil(t, hook)
}

func TestEmbedOrNil_NilHookReturnsNilVector(t *testing.T) {
	vec := EmbedOrNil(context.Background(), nil, "some content", false)
	assert.Nil(t, vec)
}

func TestCache_NilHookOperationsAreNoOps(t *testing.T) {
	cache, err := OpenCache(t.TempDir(), nil, nil)
	require.NoError(t, err)

	require.NoError(t, cache.Upsert(context.Background(), "bullet-1", "some content"))

	matches, err := cache.Query(context.Background(), "query text", 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}
