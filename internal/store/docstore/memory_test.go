package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDoc struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

func TestMemoryStoreAddAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, err := store.Add(ctx, "things", testDoc{Name: "one"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	doc, err := store.Get(ctx, "things", id)
	require.NoError(t, err)

	var decoded testDoc
	require.NoError(t, doc.Decode(&decoded))
	assert.Equal(t, "one", decoded.Name)
	// Add writes the generated id into the payload.
	assert.Equal(t, id, decoded.ID)
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "things", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreQueryEquality(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, d := range []testDoc{
		{Name: "a", Status: "active"},
		{Name: "b", Status: "inactive"},
		{Name: "c", Status: "active"},
	} {
		_, err := store.Add(ctx, "things", d)
		require.NoError(t, err)
	}

	docs, err := store.Query(ctx, "things", Eq("status", "active"))
	require.NoError(t, err)
	require.Len(t, docs, 2)

	// Insertion order is preserved.
	var first, second testDoc
	require.NoError(t, docs[0].Decode(&first))
	require.NoError(t, docs[1].Decode(&second))
	assert.Equal(t, "a", first.Name)
	assert.Equal(t, "c", second.Name)

	count, err := store.Count(ctx, "things", Eq("status", "inactive"))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryStoreQueryMissingFieldNeverMatches(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Add(ctx, "things", testDoc{Name: "bare"})
	require.NoError(t, err)

	docs, err := store.Query(ctx, "things", Eq("status", "active"))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestMemoryStoreUpdatePatchesAndRemoves(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "things", "t1", testDoc{Name: "one", Status: "active"}))

	require.NoError(t, store.Update(ctx, "things", "t1", map[string]interface{}{
		"name":   "renamed",
		"status": nil,
	}))

	doc, err := store.Get(ctx, "things", "t1")
	require.NoError(t, err)
	var decoded testDoc
	require.NoError(t, doc.Decode(&decoded))
	assert.Equal(t, "renamed", decoded.Name)
	assert.Empty(t, decoded.Status)

	assert.ErrorIs(t, store.Update(ctx, "things", "missing", map[string]interface{}{"name": "x"}), ErrNotFound)
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "things", "t1", testDoc{Name: "one"}))
	require.NoError(t, store.Delete(ctx, "things", "t1"))
	assert.ErrorIs(t, store.Delete(ctx, "things", "t1"), ErrNotFound)
}

func TestMemoryStoreSetReplaces(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "things", "t1", testDoc{Name: "one", Status: "active"}))
	require.NoError(t, store.Set(ctx, "things", "t1", testDoc{Name: "two"}))

	doc, err := store.Get(ctx, "things", "t1")
	require.NoError(t, err)
	var decoded testDoc
	require.NoError(t, doc.Decode(&decoded))
	assert.Equal(t, "two", decoded.Name)
	// Replace drops fields the new value does not carry.
	assert.Empty(t, decoded.Status)
}
