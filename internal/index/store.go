package index

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

const (
	vectorsFile = "vectors.bin"
	metaFile    = "meta.json"

	storeMagic   = "CLVX"
	storeVersion = 1
)

// indexMeta is the JSON metadata artifact written next to the vector file.
// The embedder name ties persisted vectors to the embedding space that
// produced them.
type indexMeta struct {
	Version  int        `json:"version"`
	Embedder string     `json:"embedder"`
	Dims     int        `json:"dims"`
	Docs     []Document `json:"docs"`
}

// saveArtifacts persists vectors and metadata under dir. Both files are
// written to a temp name and renamed so a crash never leaves a readable but
// partial index.
func saveArtifacts(dir string, meta indexMeta, vectors [][]float32) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	if err := writeVectors(filepath.Join(dir, vectorsFile), meta.Dims, vectors); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index metadata: %w", err)
	}
	return atomicWrite(filepath.Join(dir, metaFile), raw)
}

// loadArtifacts reads a persisted index. A missing directory or file returns
// os.ErrNotExist wrapped; callers treat that as "rebuild from corpus".
func loadArtifacts(dir string) (indexMeta, [][]float32, error) {
	raw, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		return indexMeta{}, nil, fmt.Errorf("read index metadata: %w", err)
	}
	var meta indexMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return indexMeta{}, nil, fmt.Errorf("parse index metadata: %w", err)
	}
	if meta.Version != storeVersion {
		return indexMeta{}, nil, fmt.Errorf("index version %d not supported", meta.Version)
	}

	vectors, err := readVectors(filepath.Join(dir, vectorsFile))
	if err != nil {
		return indexMeta{}, nil, err
	}
	if len(vectors) != len(meta.Docs) {
		return indexMeta{}, nil, fmt.Errorf("index has %d vectors for %d documents", len(vectors), len(meta.Docs))
	}
	return meta, vectors, nil
}

func writeVectors(path string, dims int, vectors [][]float32) error {
	buf := make([]byte, 0, len(storeMagic)+8+len(vectors)*dims*4)
	buf = append(buf, storeMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(vectors)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dims))
	for _, vec := range vectors {
		if len(vec) != dims {
			return fmt.Errorf("vector has %d dims, index expects %d", len(vec), dims)
		}
		for _, x := range vec {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(x))
		}
	}
	return atomicWrite(path, buf)
}

func readVectors(path string) ([][]float32, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index vectors: %w", err)
	}
	header := len(storeMagic) + 8
	if len(raw) < header || string(raw[:len(storeMagic)]) != storeMagic {
		return nil, fmt.Errorf("index vectors: bad header")
	}
	count := int(binary.LittleEndian.Uint32(raw[len(storeMagic):]))
	dims := int(binary.LittleEndian.Uint32(raw[len(storeMagic)+4:]))
	body := raw[header:]
	if len(body) != count*dims*4 {
		return nil, fmt.Errorf("index vectors: truncated payload")
	}

	vectors := make([][]float32, count)
	off := 0
	for i := range vectors {
		vec := make([]float32, dims)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(body[off:]))
			off += 4
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalize %s: %w", filepath.Base(path), err)
	}
	return nil
}
