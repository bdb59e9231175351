package index

import "sort"

// flatIndex performs exact inner-product search over normalized vectors.
// With unit-length vectors inner product equals cosine similarity.
type flatIndex struct {
	vectors [][]float32
}

type hit struct {
	row   int
	score float32
}

// search returns up to k hits ordered by descending score. Ties keep corpus
// order so results are deterministic.
func (f *flatIndex) search(query []float32, k int) []hit {
	if k <= 0 || len(f.vectors) == 0 {
		return nil
	}
	hits := make([]hit, 0, len(f.vectors))
	for row, vec := range f.vectors {
		hits = append(hits, hit{row: row, score: dot(query, vec)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
