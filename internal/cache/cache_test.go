package cache

import (
	"testing"
	"time"
)

func TestAnalysisKey(t *testing.T) {
	a := AnalysisKey("hash-a", "seo-rules/v1")
	b := AnalysisKey("hash-a", "seo-rules/v2")
	c := AnalysisKey("hash-b", "seo-rules/v1")

	if a == b {
		t.Error("different rule-set versions must produce different keys")
	}
	if a == c {
		t.Error("different content hashes must produce different keys")
	}
	if a != AnalysisKey("hash-a", "seo-rules/v1") {
		t.Error("key derivation must be deterministic")
	}
}

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if err := c.Set("k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, found := c.Get("k")
	if !found {
		t.Fatal("expected a hit")
	}
	if string(got) != "v" {
		t.Errorf("got %q, want v", got)
	}

	if _, found := c.Get("missing"); found {
		t.Error("unexpected hit for a missing key")
	}
}

func TestMemoryCache_Delete(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	_ = c.Set("k", []byte("v"), time.Minute)
	_ = c.Delete("k")

	if _, found := c.Get("k"); found {
		t.Error("expected a miss after delete")
	}
}

func TestDiskCache_SetGet(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Minute)

	if err := c.Set("k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, found := c.Get("k")
	if !found || string(got) != "v" {
		t.Errorf("got %q found=%v, want v/true", got, found)
	}
}

func TestDiskCache_Expiry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Minute)

	if err := c.Set("k", []byte("v"), time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, found := c.Get("k"); found {
		t.Error("expected an expired entry to miss")
	}
}

func TestLayeredCache_PromotesFromDisk(t *testing.T) {
	c := NewLayeredCache(time.Minute, t.TempDir(), time.Minute)

	// Write only to the disk layer.
	if err := c.disk.Set("k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("disk Set: %v", err)
	}

	got, found := c.Get("k")
	if !found || string(got) != "v" {
		t.Fatalf("got %q found=%v, want v/true", got, found)
	}

	// Now present in memory too.
	if _, found := c.memory.Get("k"); !found {
		t.Error("expected promotion to the memory layer")
	}
}
