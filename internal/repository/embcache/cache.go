// Package embcache caches thumbnail embeddings across requests, keyed by
// listing identity and crop-set signature, so repeated searches never
// re-embed the same marketplace image.
package embcache

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/snapvalue/snapvalue/internal/domain"
)

// Cache is the embedding cache contract shared by the memory and redis
// drivers. Multiple crop-set entries for the same key coexist.
//
// A Get for a single-fraction crop set may be satisfied by a cached
// multi-crop entry when the requested set is an ordered prefix of the
// cached one: the full entry's first vector IS the fast-crop vector. The
// prefix requirement is enforced at config validation.
type Cache interface {
	Get(ctx context.Context, key string, crops domain.CropSet) ([][]float32, bool)
	Put(ctx context.Context, key string, crops domain.CropSet, vectors [][]float32)
}

// vectorsToBytes encodes a vector sequence as length-framed little-endian
// float32s for the redis driver.
func vectorsToBytes(vecs [][]float32) []byte {
	size := 4
	for _, v := range vecs {
		size += 4 + len(v)*4
	}
	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(vecs)))
	for _, v := range vecs {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v)))
		for _, f := range v {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
		}
	}
	return buf
}

func bytesToVectors(data []byte) ([][]float32, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d", len(data))
	}
	count := binary.LittleEndian.Uint32(data)
	data = data[4:]

	vecs := make([][]float32, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(data) < 4 {
			return nil, fmt.Errorf("truncated embedding cache data at vector %d", i)
		}
		dim := binary.LittleEndian.Uint32(data)
		data = data[4:]
		// Compare in uint64: a corrupt dim near MaxUint32 must not wrap the
		// byte count and slip past the bounds check.
		if uint64(len(data)) < uint64(dim)*4 {
			return nil, fmt.Errorf("truncated embedding cache data at vector %d", i)
		}
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[j*4:]))
		}
		vecs = append(vecs, vec)
		data = data[dim*4:]
	}
	return vecs, nil
}
