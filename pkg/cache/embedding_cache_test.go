package cache

import (
	"testing"
	"time"
)

func TestEmbeddingCacheGetSet(t *testing.T) {
	c, err := New(2, time.Minute)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected miss on empty cache")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 {
		t.Fatalf("expected hit with 3 values, got %v ok=%v", v, ok)
	}
}

func TestEmbeddingCacheExpiry(t *testing.T) {
	c, err := New(2, time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Set("a", []float32{1})
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected expired entry to miss")
	}
}

func TestEmbeddingCacheEvictsAtCapacity(t *testing.T) {
	c, err := New(1, time.Minute)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	if c.Len() != 1 {
		t.Fatalf("expected capacity-bounded cache to hold 1 entry, got %d", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected oldest entry to be evicted")
	}
}
