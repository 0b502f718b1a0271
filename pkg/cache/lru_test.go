package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGet(t *testing.T) {
	c := NewLRU[string, int](4, nil)

	c.Put("a", 1)
	c.Put("b", 2)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[string, int](3, nil)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	// Touch "a" so "b" becomes the oldest.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("d", 4)

	_, ok = c.Get("b")
	assert.False(t, ok, "b should have been evicted")
	for _, key := range []string{"a", "c", "d"} {
		_, ok := c.Get(key)
		assert.True(t, ok, "%s should survive", key)
	}
}

func TestPeekDoesNotTouchRecency(t *testing.T) {
	c := NewLRU[string, int](2, nil)

	c.Put("a", 1)
	c.Put("b", 2)

	// Peek must not rescue "a" from eviction.
	_, ok := c.Peek("a")
	require.True(t, ok)

	c.Put("c", 3)

	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestPutReplacesValue(t *testing.T) {
	c := NewLRU[string, int](2, nil)

	c.Put("a", 1)
	c.Put("a", 10)

	v, _ := c.Get("a")
	assert.Equal(t, 10, v)
	assert.Equal(t, 1, c.Len())
}

func TestGetOrPut(t *testing.T) {
	c := NewLRU[string, int](2, nil)

	v, existed := c.GetOrPut("a", 1)
	assert.False(t, existed)
	assert.Equal(t, 1, v)

	v, existed = c.GetOrPut("a", 99)
	assert.True(t, existed)
	assert.Equal(t, 1, v)
}

func TestOnEvictCallback(t *testing.T) {
	var evicted []string
	c := NewLRU[string, int](2, func(key string, _ int) {
		evicted = append(evicted, key)
	})

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)
	assert.Equal(t, []string{"a"}, evicted)

	require.True(t, c.Remove("b"))
	assert.Equal(t, []string{"a", "b"}, evicted)

	assert.False(t, c.Remove("b"))
	assert.Equal(t, 1, c.Len())
}

func TestKeysMostRecentFirst(t *testing.T) {
	c := NewLRU[string, int](3, nil)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)
	c.Get("a")

	assert.Equal(t, []string{"a", "c", "b"}, c.Keys())
}
