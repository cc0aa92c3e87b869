package embcache

import (
	"context"
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/snapvalue/snapvalue/internal/domain"
)

var (
	fastCrops = domain.CropSet{1.0}
	fullCrops = domain.CropSet{1.0, 0.85}
)

func newTestCache(t *testing.T) *MemoryCache {
	t.Helper()
	c, err := NewMemory(16, fullCrops, nil)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	return c
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("exact hit", func(t *testing.T) {
		c := newTestCache(t)
		vecs := [][]float32{{1, 0}}

		c.Put(ctx, "k1", fastCrops, vecs)

		got, ok := c.Get(ctx, "k1", fastCrops)
		if !ok || !reflect.DeepEqual(got, vecs) {
			t.Errorf("expected hit with %v, got %v ok=%v", vecs, got, ok)
		}
	})

	t.Run("miss on unknown key", func(t *testing.T) {
		c := newTestCache(t)
		if _, ok := c.Get(ctx, "nope", fastCrops); ok {
			t.Error("expected miss")
		}
	})

	t.Run("crop sets coexist for one key", func(t *testing.T) {
		c := newTestCache(t)
		fastVecs := [][]float32{{1, 0}}
		fullVecs := [][]float32{{0, 1}, {0.6, 0.8}}

		c.Put(ctx, "k1", fastCrops, fastVecs)
		c.Put(ctx, "k1", fullCrops, fullVecs)

		got, ok := c.Get(ctx, "k1", fastCrops)
		if !ok || !reflect.DeepEqual(got, fastVecs) {
			t.Errorf("fast entry clobbered: %v", got)
		}
		got, ok = c.Get(ctx, "k1", fullCrops)
		if !ok || !reflect.DeepEqual(got, fullVecs) {
			t.Errorf("full entry clobbered: %v", got)
		}
	})

	t.Run("fast lookup served from full entry prefix", func(t *testing.T) {
		c := newTestCache(t)
		fullVecs := [][]float32{{1, 0}, {0.6, 0.8}}

		c.Put(ctx, "k1", fullCrops, fullVecs)

		got, ok := c.Get(ctx, "k1", fastCrops)
		if !ok {
			t.Fatal("expected prefix hit")
		}
		if !reflect.DeepEqual(got, fullVecs[:1]) {
			t.Errorf("expected first full vector, got %v", got)
		}
	})

	t.Run("empty key never stored", func(t *testing.T) {
		c := newTestCache(t)
		c.Put(ctx, "", fastCrops, [][]float32{{1}})
		if _, ok := c.Get(ctx, "", fastCrops); ok {
			t.Error("empty key must not be cached")
		}
	})

	t.Run("capacity is bounded", func(t *testing.T) {
		c, err := NewMemory(2, fullCrops, nil)
		if err != nil {
			t.Fatalf("NewMemory: %v", err)
		}
		c.Put(ctx, "a", fastCrops, [][]float32{{1}})
		c.Put(ctx, "b", fastCrops, [][]float32{{2}})
		c.Put(ctx, "c", fastCrops, [][]float32{{3}})

		if _, ok := c.Get(ctx, "a", fastCrops); ok {
			t.Error("oldest entry should have been evicted")
		}
	})
}

func TestVectorCodec(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		vecs := [][]float32{{1.5, -2.25}, {0, 3}}

		got, err := bytesToVectors(vectorsToBytes(vecs))
		if err != nil {
			t.Fatalf("bytesToVectors: %v", err)
		}
		if !reflect.DeepEqual(got, vecs) {
			t.Errorf("round trip mismatch: %v vs %v", got, vecs)
		}
	})

	t.Run("truncated payload rejected", func(t *testing.T) {
		data := vectorsToBytes([][]float32{{1, 2, 3}})
		if _, err := bytesToVectors(data[:len(data)-2]); err == nil {
			t.Error("expected error for truncated payload")
		}
	})

	t.Run("huge claimed dimension rejected", func(t *testing.T) {
		// A corrupt payload whose dim*4 wraps uint32 must still fail the
		// bounds check instead of reading past the buffer.
		data := binary.LittleEndian.AppendUint32(nil, 1)
		data = binary.LittleEndian.AppendUint32(data, 1<<30)
		data = append(data, 0, 0, 0, 0)
		if _, err := bytesToVectors(data); err == nil {
			t.Error("expected error for oversized dimension")
		}
	})
}
