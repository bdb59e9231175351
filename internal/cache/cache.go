// Package cache provides the embedding cache: a memory layer over an
// optional disk layer, keyed by hashed text so repeated queries skip the
// embedding service.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives a cache key from an embedder name and input text. Embedder
// name is part of the key so switching providers never serves stale vectors.
func Key(embedder, text string) string {
	hash := sha256.Sum256([]byte(embedder + "\x00" + text))
	return "claimlens:v1:" + hex.EncodeToString(hash[:])
}

// EncodeVector serializes an embedding vector for cache storage.
func EncodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector deserializes a cached embedding vector. Returns nil for
// malformed payloads so a corrupt entry behaves like a miss.
func DecodeVector(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec
}
