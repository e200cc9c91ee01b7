package vector

import "sort"

// Scored pairs a candidate's position in insertion order with its similarity score.
type Scored struct {
	Pos   int
	Score float64
}

// Rank scores every candidate against query by inner product and returns the
// top k, highest score first. Ties keep insertion order (stable sort), so
// re-ranking the same candidates is deterministic.
func Rank(query []float32, candidates [][]float32, k int) []Scored {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	scored := make([]Scored, len(candidates))
	for i, vec := range candidates {
		scored[i] = Scored{Pos: i, Score: InnerProduct(query, vec)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}
