// Package pipeline sequences one content cycle: preprocess, identify,
// select, assemble, embed, validate, store. Stage short-circuits (skip,
// no candidates, none viable, reject) are normal cycle outcomes, not
// errors; only abnormal failures surface through the error taxonomy.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bracketlabs/bracket/internal/cache"
	"github.com/bracketlabs/bracket/internal/corpus"
	"github.com/bracketlabs/bracket/internal/embed"
	"github.com/bracketlabs/bracket/internal/errs"
	"github.com/bracketlabs/bracket/internal/ingredient"
	"github.com/bracketlabs/bracket/internal/model"
	"github.com/bracketlabs/bracket/internal/selector"
)

// Stage events emitted through the Tracker as the cycle advances. The
// session state machine owns the legality of each transition.
const (
	EventContentReady      = "content_ready"
	EventPreprocessed      = "preprocessed"
	EventCandidatesFound   = "candidates_found"
	EventCandidateSelected = "candidate_selected"
	EventAssembled         = "assembled"
	EventValidated         = "validated"
	EventStored            = "stored"
	EventCycleAborted      = "cycle_aborted"
)

// Outcome classifies how a cycle ended.
type Outcome string

const (
	OutcomeStored       Outcome = "stored"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeNoCandidates Outcome = "no_candidates"
	OutcomeNoneViable   Outcome = "none_viable"
	OutcomeRejected     Outcome = "rejected"
	OutcomeReview       Outcome = "review"
)

// CycleResult is the outcome of one cycle. Artifact and Validation are
// set only for OutcomeStored (Validation also for review/reject, for
// calibration logging).
type CycleResult struct {
	Outcome    Outcome
	Reason     string
	Artifact   *model.StoredArtifact
	Validation *model.ValidationResult
}

// ModelClient is the slice of the language-model client the cycle uses.
type ModelClient interface {
	IdentifyCandidates(ctx context.Context, content string) ([]model.Candidate, error)
	AssembleArtifact(ctx context.Context, cand model.Candidate, sourceText string) (*model.AssembledArtifact, error)
}

// Validator scores an assembled artifact.
type Validator interface {
	Validate(ctx context.Context, art *model.AssembledArtifact, sourceText string, embs model.ArtifactEmbeddings) (*model.ValidationResult, error)
}

// ArtifactStore persists an artifact with its ingredient uses as one
// atomic unit. SaveArtifact must be idempotent on the artifact id so a
// replayed storing phase cannot double-store.
type ArtifactStore interface {
	SaveArtifact(ctx context.Context, art *model.StoredArtifact, uses []*model.IngredientUse) error
}

// Tracker receives stage-transition events. The session state machine
// implements it; a Tracker error aborts the cycle (it means the
// transition was illegal or its checkpoint could not be persisted).
type Tracker interface {
	Advance(event string, payload map[string]any) error
}

// NopTracker ignores all events, for cycles run outside a session.
type NopTracker struct{}

// Advance implements Tracker.
func (NopTracker) Advance(string, map[string]any) error { return nil }

// Pipeline runs cycles against a fixed set of collaborators.
type Pipeline struct {
	llm       ModelClient
	embedder  embed.Embedder
	validator Validator
	resolver  *ingredient.Resolver
	store     ArtifactStore
	index     *corpus.Index
	seen      cache.Cache
	cfg       model.PipelineConfig
	selCfg    model.SelectionConfig
}

// New creates a pipeline.
func New(llm ModelClient, embedder embed.Embedder, validator Validator, resolver *ingredient.Resolver, store ArtifactStore, index *corpus.Index, seen cache.Cache, cfg model.PipelineConfig, selCfg model.SelectionConfig) *Pipeline {
	return &Pipeline{
		llm:       llm,
		embedder:  embedder,
		validator: validator,
		resolver:  resolver,
		store:     store,
		index:     index,
		seen:      seen,
		cfg:       cfg,
		selCfg:    selCfg,
	}
}

// RunCycle processes one piece of foraged content end to end. It
// returns a CycleResult for every normal ending, including early
// short-circuits; an error return means the cycle failed abnormally and
// the caller must route it by taxonomy. Retryable failures of external
// calls are retried locally with backoff before escalating.
func (p *Pipeline) RunCycle(ctx context.Context, tracker Tracker, src *model.SourceResult) (*CycleResult, error) {
	if err := tracker.Advance(EventContentReady, map[string]any{
		"source": src.SourceName, "url": src.URL, "title": src.Title,
	}); err != nil {
		return nil, err
	}

	text, skip := p.preprocess(src.Content)
	if skip != "" {
		return p.abort(tracker, OutcomeSkipped, string(skip))
	}
	if err := tracker.Advance(EventPreprocessed, map[string]any{"length": len(text)}); err != nil {
		return nil, err
	}

	var candidates []model.Candidate
	err := p.retry(ctx, func() error {
		var e error
		candidates, e = p.llm.IdentifyCandidates(ctx, text)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("identify: %w", err)
	}
	if len(candidates) == 0 {
		return p.abort(tracker, OutcomeNoCandidates, "extraction yielded zero candidates")
	}
	if err := tracker.Advance(EventCandidatesFound, map[string]any{"count": len(candidates)}); err != nil {
		return nil, err
	}

	candEmbs, err := p.embedCandidates(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("embed candidates: %w", err)
	}
	sel := selector.Select(candidates, candEmbs, p.index, p.selCfg)
	if sel == nil {
		return p.abort(tracker, OutcomeNoneViable, "no candidate above the confidence floor")
	}
	if err := tracker.Advance(EventCandidateSelected, map[string]any{
		"index": sel.Index, "structure_type": sel.Candidate.StructureType, "score": sel.FinalScore,
	}); err != nil {
		return nil, err
	}

	var art *model.AssembledArtifact
	err = p.retry(ctx, func() error {
		var e error
		art, e = p.llm.AssembleArtifact(ctx, sel.Candidate, text)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}
	if err := tracker.Advance(EventAssembled, map[string]any{"name": art.Name}); err != nil {
		return nil, err
	}

	embs, err := p.embedArtifact(ctx, art)
	if err != nil {
		return nil, fmt.Errorf("embed artifact: %w", err)
	}

	var validation *model.ValidationResult
	err = p.retry(ctx, func() error {
		var e error
		validation, e = p.validator.Validate(ctx, art, text, embs)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	switch validation.Recommendation {
	case model.RecommendReject:
		res, err := p.abort(tracker, OutcomeRejected, validation.Rationale)
		if res != nil {
			res.Validation = validation
		}
		return res, err
	case model.RecommendReview:
		// Review is not stored, but recorded distinctly for calibration.
		log.Printf("pipeline: %q scored %.3f, held for review", art.Name, validation.OverallScore)
		res, err := p.abort(tracker, OutcomeReview, validation.Rationale)
		if res != nil {
			res.Validation = validation
		}
		return res, err
	}

	stored := buildStored(art, src, embs, validation)
	uses := p.resolver.ResolveArtifact(art, embs, stored.ID)

	// Checkpoint-then-commit: the storing checkpoint carries the full
	// artifact so a crash between checkpoint and commit can replay the
	// store idempotently on recovery.
	if err := tracker.Advance(EventValidated, map[string]any{
		"artifact": stored, "uses": uses,
	}); err != nil {
		return nil, err
	}

	if err := p.retry(ctx, func() error { return p.store.SaveArtifact(ctx, stored, uses) }); err != nil {
		return nil, fmt.Errorf("store artifact: %w", err)
	}
	p.index.AddArtifact(embs.Artifact, stored.StructureType)

	if err := tracker.Advance(EventStored, map[string]any{"artifact_id": stored.ID.String()}); err != nil {
		return nil, err
	}
	log.Printf("pipeline: stored %q (%s) score=%.3f", stored.Name, stored.ID, validation.OverallScore)

	return &CycleResult{Outcome: OutcomeStored, Artifact: stored, Validation: validation}, nil
}

// abort records an early cycle ending and returns its outcome.
func (p *Pipeline) abort(tracker Tracker, outcome Outcome, reason string) (*CycleResult, error) {
	log.Printf("pipeline: cycle ended early: %s (%s)", outcome, reason)
	if err := tracker.Advance(EventCycleAborted, map[string]any{
		"outcome": string(outcome), "reason": reason,
	}); err != nil {
		return nil, err
	}
	return &CycleResult{Outcome: outcome, Reason: reason}, nil
}

// embedCandidates batches one composite text per candidate for the
// selector's novelty scoring.
func (p *Pipeline) embedCandidates(ctx context.Context, candidates []model.Candidate) ([][]float32, error) {
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = candidateText(c)
	}
	var out [][]float32
	err := p.retry(ctx, func() error {
		var e error
		out, e = p.embedder.EmbedBatch(ctx, texts)
		return e
	})
	return out, err
}

// embedArtifact batches the four per-artifact texts into one call.
func (p *Pipeline) embedArtifact(ctx context.Context, art *model.AssembledArtifact) (model.ArtifactEmbeddings, error) {
	texts := []string{
		art.Candidate.FrameTop,
		art.Candidate.FrameBottom,
		art.Candidate.Bounded,
		artifactText(art),
	}
	var vecs [][]float32
	err := p.retry(ctx, func() error {
		var e error
		vecs, e = p.embedder.EmbedBatch(ctx, texts)
		return e
	})
	if err != nil {
		return model.ArtifactEmbeddings{}, err
	}
	if len(vecs) != 4 {
		return model.ArtifactEmbeddings{}, fmt.Errorf("embedding batch returned %d vectors, want 4", len(vecs))
	}
	return model.ArtifactEmbeddings{
		FrameTop:    vecs[0],
		FrameBottom: vecs[1],
		Bounded:     vecs[2],
		Artifact:    vecs[3],
	}, nil
}

// retry runs fn with the configured local retry policy; only retryable
// failures are retried, everything else escalates immediately.
func (p *Pipeline) retry(ctx context.Context, fn func() error) error {
	return errs.Retry(ctx, p.cfg.RetryMaxAttempts, time.Duration(p.cfg.RetryBaseDelayMS)*time.Millisecond, fn)
}

func buildStored(art *model.AssembledArtifact, src *model.SourceResult, embs model.ArtifactEmbeddings, validation *model.ValidationResult) *model.StoredArtifact {
	return &model.StoredArtifact{
		ID:                  uuid.New(),
		Name:                art.Name,
		Description:         art.Description,
		FrameTop:            art.Candidate.FrameTop,
		FrameBottom:         art.Candidate.FrameBottom,
		Bounded:             art.Candidate.Bounded,
		StructureType:       art.Candidate.StructureType,
		ContainmentArgument: art.ContainmentArgument,
		Commentary:          art.Commentary,
		SourceName:          src.SourceName,
		SourceURL:           src.URL,
		SourceSnippet:       art.SourceSnippet,
		Embeddings:          embs,
		Validation:          *validation,
		CreatedAt:           time.Now().UTC(),
	}
}

func candidateText(c model.Candidate) string {
	return strings.Join([]string{c.FrameTop, c.Bounded, c.FrameBottom}, " | ")
}

// artifactText is the whole-artifact text used for the corpus-novelty
// embedding.
func artifactText(art *model.AssembledArtifact) string {
	return art.Name + "\n" + art.Description
}
