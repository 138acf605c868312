// Package validate scores assembled artifacts with a hybrid of judged
// and computed components. Frame compatibility and containment come from
// the model judge; non-triviality and novelty are computed from
// embeddings so the judge cannot flatter its own output on those axes.
package validate

import (
	"context"
	"fmt"
	"log"

	"github.com/bracketlabs/bracket/internal/corpus"
	"github.com/bracketlabs/bracket/internal/llm"
	"github.com/bracketlabs/bracket/internal/model"
)

// Judge is the semantic-judgment dependency, satisfied by *llm.Client.
type Judge interface {
	JudgeArtifact(ctx context.Context, art *model.AssembledArtifact, sourceText string) (*llm.Judgment, error)
}

// Validator combines two judged and two computed component scores into a
// weighted overall score and a threshold-banded recommendation.
type Validator struct {
	judge Judge
	index *corpus.Index
	cfg   model.ValidationConfig
}

// New creates a validator.
func New(judge Judge, index *corpus.Index, cfg model.ValidationConfig) *Validator {
	return &Validator{judge: judge, index: index, cfg: cfg}
}

// Validate scores the artifact. The judge call can fail with any of the
// model-call errors; computed components never fail.
func (v *Validator) Validate(ctx context.Context, art *model.AssembledArtifact, sourceText string, embs model.ArtifactEmbeddings) (*model.ValidationResult, error) {
	judgment, err := v.judge.JudgeArtifact(ctx, art, sourceText)
	if err != nil {
		return nil, fmt.Errorf("judge artifact: %w", err)
	}

	nonTriviality := NonTriviality(embs)
	novelty := v.novelty(embs.Artifact)

	overall := v.cfg.FrameCompatibilityWeight*clamp01(judgment.FrameCompatibility) +
		v.cfg.ContainmentWeight*clamp01(judgment.Containment) +
		v.cfg.NonTrivialityWeight*nonTriviality +
		v.cfg.NoveltyWeight*novelty

	result := &model.ValidationResult{
		FrameCompatibility: clamp01(judgment.FrameCompatibility),
		Containment:        clamp01(judgment.Containment),
		NonTriviality:      nonTriviality,
		Novelty:            novelty,
		OverallScore:       overall,
		Rationale:          judgment.Rationale,
		Recommendation:     v.recommend(overall),
	}

	log.Printf("validate: %q compat=%.2f contain=%.2f nontrivial=%.2f novelty=%.2f overall=%.3f -> %s",
		art.Name, result.FrameCompatibility, result.Containment,
		result.NonTriviality, result.Novelty, overall, result.Recommendation)
	return result, nil
}

// NonTriviality measures how far the bounded concept sits from its
// nearer frame: 1 minus the larger of the two bounded-to-frame
// similarities. A bounded concept that restates a frame scores near 0.
func NonTriviality(embs model.ArtifactEmbeddings) float64 {
	simTop := corpus.CosineSimilarity(embs.Bounded, embs.FrameTop)
	simBottom := corpus.CosineSimilarity(embs.Bounded, embs.FrameBottom)
	nearest := simTop
	if simBottom > nearest {
		nearest = simBottom
	}
	return clamp01(1.0 - nearest)
}

// novelty is 1 minus the highest corpus similarity; an empty corpus
// makes everything maximally novel.
func (v *Validator) novelty(artifactEmb []float32) float64 {
	if v.index.IsEmpty() {
		return 1.0
	}
	return clamp01(1.0 - v.index.MaxSimilarity(artifactEmb))
}

// recommend bands the overall score: accept at or above the accept
// threshold, reject strictly below the reject threshold, review between.
func (v *Validator) recommend(overall float64) model.Recommendation {
	switch {
	case overall >= v.cfg.AcceptThreshold:
		return model.RecommendAccept
	case overall < v.cfg.RejectThreshold:
		return model.RecommendReject
	default:
		return model.RecommendReview
	}
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
