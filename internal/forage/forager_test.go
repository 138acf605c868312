package forage

import (
	"context"
	"errors"
	"testing"

	"github.com/bracketlabs/bracket/internal/model"
	"github.com/bracketlabs/bracket/internal/source"
)

// stubSource returns canned content or an error.
type stubSource struct {
	name    string
	content string
	err     error
	fetches int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(ctx context.Context, query string) (*model.SourceResult, error) {
	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	return &model.SourceResult{Content: s.content, SourceName: s.name, Query: query}, nil
}

func (s *stubSource) FetchRandom(ctx context.Context) (*model.SourceResult, error) {
	return s.Fetch(ctx, "")
}

func tiered(t1, t2, t3 []source.Source) map[int][]source.Source {
	m := make(map[int][]source.Source)
	if len(t1) > 0 {
		m[1] = t1
	}
	if len(t2) > 0 {
		m[2] = t2
	}
	if len(t3) > 0 {
		m[3] = t3
	}
	return m
}

func TestForager_PromotionAfterFiveSuccesses(t *testing.T) {
	f := New(tiered(
		[]source.Source{&stubSource{name: "a", content: "x"}},
		[]source.Source{&stubSource{name: "b", content: "x"}},
		nil,
	), DefaultConfig())

	for i := 0; i < 4; i++ {
		f.RecordSuccess()
	}
	if f.CurrentTier() != 1 {
		t.Fatalf("tier = %d after 4 successes, want 1", f.CurrentTier())
	}

	f.RecordSuccess()
	if f.CurrentTier() != 2 {
		t.Fatalf("tier = %d after 5 successes, want 2", f.CurrentTier())
	}
	if f.State().ConsecutiveSuccesses != 0 {
		t.Error("success streak should reset on promotion")
	}
}

func TestForager_DemotionAfterThreeFailures(t *testing.T) {
	f := New(tiered(
		[]source.Source{&stubSource{name: "a", content: "x"}},
		[]source.Source{&stubSource{name: "b", content: "x"}},
		nil,
	), DefaultConfig())
	f.Restore(State{CurrentTier: 2})

	for i := 0; i < 3; i++ {
		f.RecordFailure()
	}
	if f.CurrentTier() != 1 {
		t.Fatalf("tier = %d after 3 failures, want 1", f.CurrentTier())
	}
}

func TestForager_TierFloorAndCeiling(t *testing.T) {
	f := New(tiered(
		[]source.Source{&stubSource{name: "a", content: "x"}},
		[]source.Source{&stubSource{name: "b", content: "x"}},
		nil,
	), DefaultConfig())

	// Floor: failures at tier 1 never go below 1
	for i := 0; i < 10; i++ {
		f.RecordFailure()
	}
	if f.CurrentTier() != 1 {
		t.Errorf("tier = %d, want floor 1", f.CurrentTier())
	}

	// Ceiling: successes at the top tier never exceed it
	for i := 0; i < 30; i++ {
		f.RecordSuccess()
	}
	if f.CurrentTier() != 2 {
		t.Errorf("tier = %d, want ceiling 2", f.CurrentTier())
	}
}

func TestForager_OppositeEventResetsStreak(t *testing.T) {
	f := New(tiered([]source.Source{&stubSource{name: "a", content: "x"}}, nil, nil), DefaultConfig())

	f.RecordFailure()
	f.RecordFailure()
	f.RecordSuccess()
	if s := f.State(); s.ConsecutiveFailures != 0 || s.ConsecutiveSuccesses != 1 {
		t.Errorf("state after success = %+v", s)
	}

	f.RecordFailure()
	if s := f.State(); s.ConsecutiveSuccesses != 0 || s.ConsecutiveFailures != 1 {
		t.Errorf("state after failure = %+v", s)
	}
}

func TestForager_RoundRobinWithinTier(t *testing.T) {
	a := &stubSource{name: "a", content: "x"}
	b := &stubSource{name: "b", content: "x"}
	f := New(tiered([]source.Source{a, b}, nil, nil), DefaultConfig())

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := f.Forage(ctx, "query"); err != nil {
			t.Fatalf("forage %d: %v", i, err)
		}
	}
	if a.fetches != 2 || b.fetches != 2 {
		t.Errorf("fetch distribution a=%d b=%d, want 2/2", a.fetches, b.fetches)
	}
}

func TestForager_FallsBackToLowerTier(t *testing.T) {
	a := &stubSource{name: "a", content: "x"}
	f := New(map[int][]source.Source{1: {a}}, DefaultConfig())
	f.state.CurrentTier = 2 // tier 2 has no sources

	if _, err := f.Forage(context.Background(), "q"); err != nil {
		t.Fatalf("expected fallback to tier 1, got %v", err)
	}
	if a.fetches == 0 {
		t.Error("tier-1 source should have been used")
	}
}

func TestForager_SourceErrorPropagates(t *testing.T) {
	bad := &stubSource{name: "bad", err: errors.New("boom")}
	f := New(tiered([]source.Source{bad}, nil, nil), DefaultConfig())

	if _, err := f.Forage(context.Background(), "q"); err == nil {
		t.Fatal("expected error from failing source")
	}
}

func TestForager_RestoreClampsTier(t *testing.T) {
	f := New(tiered([]source.Source{&stubSource{name: "a", content: "x"}}, nil, nil), DefaultConfig())

	f.Restore(State{CurrentTier: 9})
	if f.CurrentTier() != 1 {
		t.Errorf("tier = %d, want clamp to max configured tier 1", f.CurrentTier())
	}

	f.Restore(State{CurrentTier: -2})
	if f.CurrentTier() != 1 {
		t.Errorf("tier = %d, want clamp to 1", f.CurrentTier())
	}
}
