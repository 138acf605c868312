package selector

import (
	"math"
	"testing"

	"github.com/bracketlabs/bracket/internal/corpus"
	"github.com/bracketlabs/bracket/internal/model"
)

func selCfg() model.SelectionConfig {
	return model.SelectionConfig{
		MinConfidence:   0.4,
		NoveltyWeight:   0.3,
		DiversityWeight: 0.2,
	}
}

func cand(conf float64, typ string) model.Candidate {
	return model.Candidate{
		FrameTop:      "upper",
		FrameBottom:   "lower",
		Bounded:       "middle",
		StructureType: typ,
		Confidence:    conf,
	}
}

func TestSelect_EmptyCorpusMaximalBonuses(t *testing.T) {
	ix := corpus.NewIndex()
	candidates := []model.Candidate{cand(0.9, "bound"), cand(0.6, "bound")}

	sel := Select(candidates, nil, ix, selCfg())
	if sel == nil {
		t.Fatal("expected a selection")
	}
	if sel.Index != 0 {
		t.Fatalf("selected index = %d, want 0", sel.Index)
	}
	// Empty corpus: novelty and diversity bonuses are both maximal.
	want := 0.9 + 0.3*1.0 + 0.2*1.0
	if math.Abs(sel.FinalScore-want) > 1e-9 {
		t.Errorf("final score = %v, want %v", sel.FinalScore, want)
	}
}

func TestSelect_ConfidenceFloorFiltersAll(t *testing.T) {
	ix := corpus.NewIndex()
	candidates := []model.Candidate{cand(0.39, "bound"), cand(0.1, "tension")}

	if sel := Select(candidates, nil, ix, selCfg()); sel != nil {
		t.Fatalf("expected nil, got %+v", sel)
	}
}

func TestSelect_NoCandidates(t *testing.T) {
	if sel := Select(nil, nil, corpus.NewIndex(), selCfg()); sel != nil {
		t.Fatalf("expected nil, got %+v", sel)
	}
}

func TestSelect_DiversityFavorsRareType(t *testing.T) {
	ix := corpus.NewIndex()
	for i := 0; i < 9; i++ {
		ix.AddArtifact([]float32{0, 1}, "bound")
	}
	ix.AddArtifact([]float32{0, 1}, "tension")

	// Equal confidence; candidate embeddings orthogonal to the corpus so
	// novelty bonuses are equal too. Diversity must decide.
	candidates := []model.Candidate{cand(0.7, "bound"), cand(0.7, "tension")}
	embs := [][]float32{{1, 0}, {1, 0}}

	sel := Select(candidates, embs, ix, selCfg())
	if sel == nil {
		t.Fatal("expected a selection")
	}
	if sel.Candidate.StructureType != "tension" {
		t.Errorf("selected type = %q, want the rarer tension", sel.Candidate.StructureType)
	}
}

func TestSelect_NoveltyPenalizesNearDuplicate(t *testing.T) {
	ix := corpus.NewIndex()
	ix.AddArtifact([]float32{1, 0}, "bound")

	candidates := []model.Candidate{cand(0.7, "bound"), cand(0.7, "bound")}
	// First candidate is identical to the stored artifact, second orthogonal.
	embs := [][]float32{{1, 0}, {0, 1}}

	sel := Select(candidates, embs, ix, selCfg())
	if sel == nil {
		t.Fatal("expected a selection")
	}
	if sel.Index != 1 {
		t.Errorf("selected index = %d, want the novel candidate 1", sel.Index)
	}
}

func TestSelect_TieBreaksToFirst(t *testing.T) {
	ix := corpus.NewIndex()
	candidates := []model.Candidate{cand(0.8, "bound"), cand(0.8, "bound"), cand(0.8, "bound")}

	sel := Select(candidates, nil, ix, selCfg())
	if sel == nil {
		t.Fatal("expected a selection")
	}
	if sel.Index != 0 {
		t.Errorf("selected index = %d, want first of tied candidates", sel.Index)
	}
}
