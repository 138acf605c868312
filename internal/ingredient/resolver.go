// Package ingredient deduplicates the sub-concepts an artifact is built
// from. Each frame and bounded text resolves to a canonical ingredient:
// an exact normalized-text match, then an embedding match above the
// similarity threshold, and only then a freshly created ingredient.
package ingredient

import (
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bracketlabs/bracket/internal/corpus"
	"github.com/bracketlabs/bracket/internal/model"
)

// Resolver maps raw ingredient text to canonical ingredients tracked in
// the corpus index.
type Resolver struct {
	index     *corpus.Index
	threshold float64
	now       func() time.Time
}

// NewResolver creates a resolver over the given corpus view.
func NewResolver(index *corpus.Index, cfg model.IngredientConfig) *Resolver {
	return &Resolver{
		index:     index,
		threshold: cfg.SimilarityThreshold,
		now:       time.Now,
	}
}

// Resolve returns the canonical ingredient for text, reusing an existing
// one when the normalized text matches exactly or the embedding clears
// the similarity threshold. Matching is restricted to ingredients of the
// same kind: a frame never merges with a bounded concept even at
// identical text. Reused ingredients get their usage counter bumped;
// new ones record artifactID as immutable first-seen provenance.
func (r *Resolver) Resolve(text string, kind model.IngredientKind, embedding []float32, artifactID uuid.UUID) *model.IngredientUse {
	norm := Normalize(text)

	// Pass 1: exact normalized text.
	for _, ing := range r.index.Ingredients() {
		if ing.Kind != kind {
			continue
		}
		if Normalize(ing.Text) == norm {
			ing.UsageCount++
			return &model.IngredientUse{Ingredient: ing, Reused: true}
		}
	}

	// Pass 2: embedding similarity against same-kind ingredients.
	if len(embedding) > 0 {
		var best *model.Ingredient
		bestSim := 0.0
		for _, ing := range r.index.Ingredients() {
			if ing.Kind != kind || len(ing.Embedding) == 0 {
				continue
			}
			if sim := corpus.CosineSimilarity(embedding, ing.Embedding); sim > bestSim {
				best, bestSim = ing, sim
			}
		}
		if best != nil && bestSim >= r.threshold {
			best.UsageCount++
			log.Printf("ingredient: %q matched existing %q (sim=%.3f)", text, best.Text, bestSim)
			return &model.IngredientUse{Ingredient: best, Reused: true}
		}
	}

	ing := &model.Ingredient{
		ID:              uuid.New(),
		Text:            strings.TrimSpace(text),
		Kind:            kind,
		Embedding:       embedding,
		UsageCount:      1,
		FirstArtifactID: artifactID,
		FirstSeenAt:     r.now().UTC(),
	}
	r.index.AddIngredient(ing)
	return &model.IngredientUse{Ingredient: ing, Reused: false}
}

// ResolveArtifact resolves all three positions of an assembled artifact
// and tags each use with its role.
func (r *Resolver) ResolveArtifact(art *model.AssembledArtifact, embs model.ArtifactEmbeddings, artifactID uuid.UUID) []*model.IngredientUse {
	top := r.Resolve(art.Candidate.FrameTop, model.IngredientFrame, embs.FrameTop, artifactID)
	top.Role = model.RoleFrameTop

	bottom := r.Resolve(art.Candidate.FrameBottom, model.IngredientFrame, embs.FrameBottom, artifactID)
	bottom.Role = model.RoleFrameBottom

	bounded := r.Resolve(art.Candidate.Bounded, model.IngredientBounded, embs.Bounded, artifactID)
	bounded.Role = model.RoleBounded

	return []*model.IngredientUse{top, bottom, bounded}
}

// Normalize lowercases and collapses internal whitespace so surface
// variants of the same concept compare equal.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
