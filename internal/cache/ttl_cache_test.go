package cache

import (
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c := NewTTLCache[string, int]()
	c.Set("a", 1, time.Minute)

	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Fatalf("got %d %v", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss")
	}
}

func TestExpiry(t *testing.T) {
	c := NewTTLCache[string, int]()
	c.Set("a", 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := NewTTLCache[string, int]()
	c.Set("a", 1, 0)
	time.Sleep(2 * time.Millisecond)

	if _, ok := c.Get("a"); !ok {
		t.Fatal("zero ttl must not expire")
	}
}

func TestDelete(t *testing.T) {
	c := NewTTLCache[string, int]()
	c.Set("a", 1, time.Minute)
	c.Delete("a")

	if _, ok := c.Get("a"); ok {
		t.Fatal("expected deleted entry to miss")
	}
}

func TestNoopCacheAlwaysMisses(t *testing.T) {
	var c NoopCache[string, int]
	c.Set("a", 1, time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatal("noop cache must miss")
	}
}
