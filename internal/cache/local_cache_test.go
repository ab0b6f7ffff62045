package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocalCache_Expiry(t *testing.T) {
	c := NewLocalCache[string](time.Minute, 0)
	defer c.Close()

	current := time.Now()
	c.now = func() time.Time { return current }

	c.Set("a", "1", 0)
	c.Set("b", "2", 2*time.Minute)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	current = current.Add(90 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok, "默认 TTL 到期后应失效")

	v, ok = c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	current = current.Add(time.Hour)
	c.purge()
	assert.Equal(t, 0, c.Len())
}

func TestLocalCache_GetOrSet(t *testing.T) {
	c := NewLocalCache[int](time.Minute, 0)
	defer c.Close()

	calls := 0
	create := func() int {
		calls++
		return 42
	}

	assert.Equal(t, 42, c.GetOrSet("k", create))
	assert.Equal(t, 42, c.GetOrSet("k", create))
	assert.Equal(t, 1, calls)

	c.Delete("k")
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestLocalCache_ZeroTTLNeverExpires(t *testing.T) {
	c := NewLocalCache[string](0, 0)
	defer c.Close()

	current := time.Now()
	c.now = func() time.Time { return current }

	c.Set("a", "1", 0)
	c.GetOrSet("b", func() string { return "2" })
	c.Set("c", "3", time.Minute)

	current = current.Add(24 * 365 * time.Hour)
	c.purge()

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	v, ok = c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "2", v)
	_, ok = c.Get("c")
	assert.False(t, ok, "显式 TTL 仍然生效")
}
