// Package analysis is the out-of-band consumer of the corpus: relation
// detection, similarity clustering, and corpus metrics. It never blocks
// the pipeline and touches only derived artifact fields.
package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bracketlabs/bracket/internal/corpus"
	"github.com/bracketlabs/bracket/internal/model"
)

// DetectRelations compares one artifact against the rest of the corpus
// and returns every typed edge it finds:
//
//	similar          embedding cosine similarity at or above the threshold
//	shares_frame     any frame text matches any frame text of the other
//	inverse          the two frames appear swapped
//	domain_transfer  same structure type, similar bounded concept,
//	                 dissimilar frames — the structure moved domains
func DetectRelations(art *model.StoredArtifact, others []*model.StoredArtifact, threshold float64) []model.Relation {
	var relations []model.Relation

	top := normalizeText(art.FrameTop)
	bottom := normalizeText(art.FrameBottom)

	for _, other := range others {
		if other.ID == art.ID {
			continue
		}

		sim := corpus.CosineSimilarity(art.Embeddings.Artifact, other.Embeddings.Artifact)
		otherTop := normalizeText(other.FrameTop)
		otherBottom := normalizeText(other.FrameBottom)

		if sim >= threshold {
			relations = append(relations, newRelation(art.ID, other.ID, model.RelationSimilar, sim,
				fmt.Sprintf("embedding similarity %.3f >= %.2f", sim, threshold)))
		}

		sharesFrame := top == otherTop || top == otherBottom || bottom == otherTop || bottom == otherBottom
		if sharesFrame {
			relations = append(relations, newRelation(art.ID, other.ID, model.RelationSharesFrame, sim,
				"shared frame concept"))
		}

		if top == otherBottom && bottom == otherTop {
			relations = append(relations, newRelation(art.ID, other.ID, model.RelationInverse, sim,
				"frame elements swapped"))
		}

		if art.StructureType == other.StructureType && !sharesFrame {
			boundedSim := corpus.CosineSimilarity(art.Embeddings.Bounded, other.Embeddings.Bounded)
			frameSim := maxFrameSimilarity(art, other)
			if boundedSim >= threshold && frameSim < threshold {
				relations = append(relations, newRelation(art.ID, other.ID, model.RelationDomainTransfer, boundedSim,
					fmt.Sprintf("same %s structure, bounded similarity %.3f with unrelated frames", art.StructureType, boundedSim)))
			}
		}
	}
	return relations
}

func newRelation(a, b uuid.UUID, typ model.RelationType, sim float64, rationale string) model.Relation {
	return model.Relation{
		ID:         uuid.New(),
		ArtifactA:  a,
		ArtifactB:  b,
		Type:       typ,
		Similarity: sim,
		Rationale:  rationale,
		CreatedAt:  time.Now().UTC(),
	}
}

// maxFrameSimilarity is the highest similarity between any frame pair
// of the two artifacts.
func maxFrameSimilarity(a, b *model.StoredArtifact) float64 {
	best := 0.0
	for _, x := range [][]float32{a.Embeddings.FrameTop, a.Embeddings.FrameBottom} {
		for _, y := range [][]float32{b.Embeddings.FrameTop, b.Embeddings.FrameBottom} {
			if sim := corpus.CosineSimilarity(x, y); sim > best {
				best = sim
			}
		}
	}
	return best
}

func normalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
