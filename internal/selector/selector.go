// Package selector ranks extraction candidates by confidence plus
// corpus-novelty and type-diversity bonuses, returning the single best
// candidate for assembly.
package selector

import (
	"fmt"
	"log"

	"github.com/bracketlabs/bracket/internal/corpus"
	"github.com/bracketlabs/bracket/internal/model"
)

// Selected is the winning candidate with its scoring breakdown.
type Selected struct {
	Candidate      model.Candidate
	Index          int // Position in the original candidate list
	FinalScore     float64
	NoveltyBonus   float64
	DiversityBonus float64
	Rationale      string
}

// Select filters candidates below the confidence floor, scores the
// survivors, and returns the argmax. Ties break to the earliest
// candidate in the original list order, which keeps selection
// deterministic for a fixed candidate set and corpus state. Returns nil
// when no candidate passes the floor.
//
// Scoring per candidate:
//
//	final = confidence + noveltyWeight*noveltyBonus + diversityWeight*diversityBonus
//
// embeddings is parallel to candidates; a missing embedding yields the
// maximal novelty bonus, as does an empty corpus.
func Select(candidates []model.Candidate, embeddings [][]float32, ix *corpus.Index, cfg model.SelectionConfig) *Selected {
	if len(candidates) == 0 {
		return nil
	}

	typeFreqs := ix.TypeFrequencies()

	var best *Selected

	for i, cand := range candidates {
		if cand.Confidence < cfg.MinConfidence {
			continue
		}

		noveltyBonus := 1.0
		if !ix.IsEmpty() && i < len(embeddings) && len(embeddings[i]) > 0 {
			noveltyBonus = clamp01(1.0 - ix.MaxSimilarity(embeddings[i]))
		}

		diversityBonus := 1.0
		if freq, ok := typeFreqs[cand.StructureType]; ok {
			// Less common types earn a higher bonus; unseen types get the max.
			diversityBonus = clamp01(1.0 - freq)
		}

		finalScore := cand.Confidence + cfg.NoveltyWeight*noveltyBonus + cfg.DiversityWeight*diversityBonus

		// Strict > keeps the first of equal scores.
		if best == nil || finalScore > best.FinalScore {
			best = &Selected{
				Candidate:      cand,
				Index:          i,
				FinalScore:     finalScore,
				NoveltyBonus:   noveltyBonus,
				DiversityBonus: diversityBonus,
				Rationale: fmt.Sprintf(
					"confidence=%.2f, novelty_bonus=%.2f (w=%.2f), diversity_bonus=%.2f (w=%.2f), final=%.3f",
					cand.Confidence, noveltyBonus, cfg.NoveltyWeight, diversityBonus, cfg.DiversityWeight, finalScore),
			}
		}
	}

	if best == nil {
		log.Printf("selector: all %d candidates below min_confidence=%.2f", len(candidates), cfg.MinConfidence)
		return nil
	}

	log.Printf("selector: picked candidate %d (type=%s): %s", best.Index, best.Candidate.StructureType, best.Rationale)
	return best
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
