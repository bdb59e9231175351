package cache

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestKey_DistinguishesEmbedders(t *testing.T) {
	a := Key("remote", "same text")
	b := Key("local", "same text")
	if a == b {
		t.Error("Expected different keys for different embedders")
	}

	if Key("remote", "same text") != a {
		t.Error("Expected stable keys for identical inputs")
	}
}

func TestVectorRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 0, 3.75}

	got := DecodeVector(EncodeVector(vec))
	if diff := cmp.Diff(vec, got); diff != "" {
		t.Errorf("Vector round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeVector_Malformed(t *testing.T) {
	if DecodeVector(nil) != nil {
		t.Error("Expected nil for empty payload")
	}
	if DecodeVector([]byte{1, 2, 3}) != nil {
		t.Error("Expected nil for truncated payload")
	}
}

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, found := c.Get("k")
	if !found || string(val) != "v" {
		t.Errorf("Expected hit with value v, got %q found=%v", val, found)
	}

	if _, found := c.Get("missing"); found {
		t.Error("Expected miss for unknown key")
	}
}

func TestDiskCache_SetGet(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Minute)

	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, found := c.Get("k")
	if !found || string(val) != "v" {
		t.Errorf("Expected hit with value v, got %q found=%v", val, found)
	}
}

func TestDiskCache_Expiry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Minute)

	if err := c.Set("k", []byte("v"), -time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, found := c.Get("k"); found {
		t.Error("Expected expired entry to be a miss")
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	c := NewLayeredCache(time.Minute, dir, time.Minute)

	// Write through the disk layer only, simulating a previous process.
	if err := NewDiskCache(dir, time.Minute).Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, found := c.Get("k")
	if !found || string(val) != "v" {
		t.Fatalf("Expected disk hit, got %q found=%v", val, found)
	}

	// Now present in the memory layer too.
	if _, found := c.memory.Get("k"); !found {
		t.Error("Expected disk hit to be promoted to memory")
	}
}
