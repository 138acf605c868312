// Package corpus provides a read-mostly in-memory view over the stored
// artifact corpus: embeddings, type frequencies, and tracked ingredients.
// The pipeline updates it immediately after every successful storage so
// the next cycle's selection and validation observe it (read-after-write
// within a session); cross-session staleness is acceptable.
package corpus

import (
	"sync"

	"github.com/bracketlabs/bracket/internal/model"
)

// Index is the queryable corpus view. Safe for concurrent readers; the
// single pipeline writer serializes its own updates.
type Index struct {
	mu          sync.RWMutex
	embeddings  [][]float32
	typeCounts  map[string]int
	ingredients []*model.Ingredient
	total       int
}

// NewIndex returns an empty corpus index.
func NewIndex() *Index {
	return &Index{typeCounts: make(map[string]int)}
}

// IsEmpty reports whether the corpus holds any artifacts.
func (ix *Index) IsEmpty() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.total == 0
}

// Size returns the number of artifacts in the view.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.total
}

// AllEmbeddings returns a snapshot of every artifact embedding.
func (ix *Index) AllEmbeddings() [][]float32 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([][]float32, len(ix.embeddings))
	copy(out, ix.embeddings)
	return out
}

// MaxSimilarity returns the maximum cosine similarity between embedding
// and any artifact in the corpus, or 0 if the corpus is empty.
func (ix *Index) MaxSimilarity(embedding []float32) float64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	best := 0.0
	for _, e := range ix.embeddings {
		if sim := CosineSimilarity(embedding, e); sim > best {
			best = sim
		}
	}
	return best
}

// TypeFrequencies returns structure-type counts normalized by corpus
// size. Empty map for an empty corpus.
func (ix *Index) TypeFrequencies() map[string]float64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	freqs := make(map[string]float64, len(ix.typeCounts))
	if ix.total == 0 {
		return freqs
	}
	for t, n := range ix.typeCounts {
		freqs[t] = float64(n) / float64(ix.total)
	}
	return freqs
}

// AddArtifact records a newly stored artifact's embedding and type.
func (ix *Index) AddArtifact(embedding []float32, structureType string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.embeddings = append(ix.embeddings, embedding)
	ix.typeCounts[structureType]++
	ix.total++
}

// Ingredients returns the tracked ingredient list. The returned pointers
// are shared; callers mutate usage counts only through the resolver.
func (ix *Index) Ingredients() []*model.Ingredient {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]*model.Ingredient, len(ix.ingredients))
	copy(out, ix.ingredients)
	return out
}

// AddIngredient tracks a newly created ingredient.
func (ix *Index) AddIngredient(ing *model.Ingredient) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.ingredients = append(ix.ingredients, ing)
}
