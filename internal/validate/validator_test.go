package validate

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/bracketlabs/bracket/internal/corpus"
	"github.com/bracketlabs/bracket/internal/llm"
	"github.com/bracketlabs/bracket/internal/model"
)

type fixedJudge struct {
	judgment llm.Judgment
	err      error
}

func (j *fixedJudge) JudgeArtifact(ctx context.Context, art *model.AssembledArtifact, sourceText string) (*llm.Judgment, error) {
	if j.err != nil {
		return nil, j.err
	}
	out := j.judgment
	return &out, nil
}

func valCfg() model.ValidationConfig {
	return model.ValidationConfig{
		FrameCompatibilityWeight: 0.25,
		ContainmentWeight:        0.35,
		NonTrivialityWeight:      0.20,
		NoveltyWeight:            0.20,
		AcceptThreshold:          0.70,
		RejectThreshold:          0.50,
	}
}

func testArtifact() *model.AssembledArtifact {
	return &model.AssembledArtifact{
		Name: "Bounded estimate",
		Candidate: model.Candidate{
			FrameTop:    "upper bound",
			FrameBottom: "lower bound",
			Bounded:     "estimate",
		},
	}
}

// Distinct orthogonal-ish embeddings: bounded far from both frames,
// artifact embedding independent.
func testEmbeddings() model.ArtifactEmbeddings {
	return model.ArtifactEmbeddings{
		FrameTop:    []float32{1, 0, 0, 0},
		FrameBottom: []float32{0, 1, 0, 0},
		Bounded:     []float32{0, 0, 1, 0},
		Artifact:    []float32{0, 0, 0, 1},
	}
}

func TestValidate_EmptyCorpusFullNovelty(t *testing.T) {
	judge := &fixedJudge{judgment: llm.Judgment{FrameCompatibility: 0.8, Containment: 0.9, Rationale: "solid"}}
	v := New(judge, corpus.NewIndex(), valCfg())

	res, err := v.Validate(context.Background(), testArtifact(), "src", testEmbeddings())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Novelty != 1.0 {
		t.Errorf("novelty = %v, want 1.0 on empty corpus", res.Novelty)
	}
	if res.NonTriviality != 1.0 {
		t.Errorf("non-triviality = %v, want 1.0 for orthogonal bounded", res.NonTriviality)
	}

	want := 0.25*0.8 + 0.35*0.9 + 0.20*1.0 + 0.20*1.0
	if math.Abs(res.OverallScore-want) > 1e-9 {
		t.Errorf("overall = %v, want %v", res.OverallScore, want)
	}
	if res.Recommendation != model.RecommendAccept {
		t.Errorf("recommendation = %q, want accept", res.Recommendation)
	}
}

func TestValidate_ThresholdBands(t *testing.T) {
	tests := []struct {
		name    string
		compat  float64
		contain float64
		want    model.Recommendation
	}{
		// judged 1.0/1.0 with both computed components at 1.0 -> 1.0
		{"accept", 1.0, 1.0, model.RecommendAccept},
		// 0.25*0.5 + 0.35*0.5 + 0.4 = 0.70 exactly, accept is inclusive
		{"accept boundary", 0.5, 0.5, model.RecommendAccept},
		// 0.25*0.2 + 0.35*0.2 + 0.4 = 0.52, review band
		{"review", 0.2, 0.2, model.RecommendReview},
		// 0.25*0 + 0.35*0 + 0.4 = 0.40 < 0.50
		{"reject", 0.0, 0.0, model.RecommendReject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			judge := &fixedJudge{judgment: llm.Judgment{FrameCompatibility: tt.compat, Containment: tt.contain}}
			v := New(judge, corpus.NewIndex(), valCfg())

			res, err := v.Validate(context.Background(), testArtifact(), "src", testEmbeddings())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Recommendation != tt.want {
				t.Errorf("overall %.3f -> %q, want %q", res.OverallScore, res.Recommendation, tt.want)
			}
		})
	}
}

func TestValidate_NoveltyDropsWithSimilarCorpus(t *testing.T) {
	judge := &fixedJudge{judgment: llm.Judgment{FrameCompatibility: 0.8, Containment: 0.8}}

	ix := corpus.NewIndex()
	emptyRes, err := New(judge, ix, valCfg()).Validate(context.Background(), testArtifact(), "src", testEmbeddings())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Store an artifact identical to the candidate's embedding.
	ix.AddArtifact([]float32{0, 0, 0, 1}, "bound")
	dupRes, err := New(judge, ix, valCfg()).Validate(context.Background(), testArtifact(), "src", testEmbeddings())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dupRes.Novelty >= emptyRes.Novelty {
		t.Errorf("novelty should drop: empty=%v dup=%v", emptyRes.Novelty, dupRes.Novelty)
	}
	if dupRes.Novelty != 0.0 {
		t.Errorf("novelty against identical artifact = %v, want 0", dupRes.Novelty)
	}
	if dupRes.OverallScore >= emptyRes.OverallScore {
		t.Error("overall score must be monotone in novelty")
	}
}

func TestNonTriviality_BoundedRestatingFrameScoresZero(t *testing.T) {
	embs := model.ArtifactEmbeddings{
		FrameTop:    []float32{1, 0},
		FrameBottom: []float32{0, 1},
		Bounded:     []float32{1, 0}, // identical to frame top
	}
	if got := NonTriviality(embs); got != 0.0 {
		t.Errorf("non-triviality = %v, want 0 when bounded equals a frame", got)
	}
}

func TestNonTriviality_UsesNearerFrame(t *testing.T) {
	near := model.ArtifactEmbeddings{
		FrameTop:    []float32{1, 0},
		FrameBottom: []float32{0, 1},
		Bounded:     []float32{0.9, 0.1},
	}
	far := model.ArtifactEmbeddings{
		FrameTop:    []float32{1, 0},
		FrameBottom: []float32{0, 1},
		Bounded:     []float32{0.5, 0.5},
	}
	if NonTriviality(near) >= NonTriviality(far) {
		t.Error("bounded closer to a frame must score lower")
	}
}

// Raising any single component while holding the rest fixed must never
// lower the overall score.
func TestValidate_OverallMonotoneInEachComponent(t *testing.T) {
	base := llm.Judgment{FrameCompatibility: 0.5, Containment: 0.5}

	overall := func(j llm.Judgment, embs model.ArtifactEmbeddings, ix *corpus.Index) float64 {
		t.Helper()
		res, err := New(&fixedJudge{judgment: j}, ix, valCfg()).Validate(context.Background(), testArtifact(), "src", embs)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return res.OverallScore
	}

	baseline := overall(base, testEmbeddings(), corpus.NewIndex())

	higherCompat := base
	higherCompat.FrameCompatibility = 0.9
	if got := overall(higherCompat, testEmbeddings(), corpus.NewIndex()); got < baseline {
		t.Errorf("raising frame compatibility lowered overall: %v -> %v", baseline, got)
	}

	higherContain := base
	higherContain.Containment = 0.9
	if got := overall(higherContain, testEmbeddings(), corpus.NewIndex()); got < baseline {
		t.Errorf("raising containment lowered overall: %v -> %v", baseline, got)
	}

	// Non-triviality: baseline's bounded is orthogonal to both frames
	// (score 1.0); pulling it toward a frame lowers the component and
	// must not raise the overall.
	lowNonTrivial := testEmbeddings()
	lowNonTrivial.Bounded = []float32{0.9, 0.1, 0.1, 0}
	if got := overall(base, lowNonTrivial, corpus.NewIndex()); got > baseline {
		t.Errorf("lowering non-triviality raised overall: %v -> %v", baseline, got)
	}

	// Novelty: a corpus holding an identical artifact drops the
	// component from 1.0 to 0.0.
	dup := corpus.NewIndex()
	dup.AddArtifact([]float32{0, 0, 0, 1}, "bound")
	if got := overall(base, testEmbeddings(), dup); got > baseline {
		t.Errorf("lowering novelty raised overall: %v -> %v", baseline, got)
	}
}

func TestValidate_JudgeErrorPropagates(t *testing.T) {
	judge := &fixedJudge{err: errors.New("model unavailable")}
	v := New(judge, corpus.NewIndex(), valCfg())

	if _, err := v.Validate(context.Background(), testArtifact(), "src", testEmbeddings()); err == nil {
		t.Fatal("expected judge error to propagate")
	}
}

func TestValidate_ClampsOutOfRangeJudgment(t *testing.T) {
	judge := &fixedJudge{judgment: llm.Judgment{FrameCompatibility: 1.7, Containment: -0.3}}
	v := New(judge, corpus.NewIndex(), valCfg())

	res, err := v.Validate(context.Background(), testArtifact(), "src", testEmbeddings())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FrameCompatibility != 1.0 || res.Containment != 0.0 {
		t.Errorf("clamped scores = %v/%v, want 1.0/0.0", res.FrameCompatibility, res.Containment)
	}
}
