package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bracketlabs/bracket/internal/cache"
	"github.com/bracketlabs/bracket/internal/corpus"
	"github.com/bracketlabs/bracket/internal/errs"
	"github.com/bracketlabs/bracket/internal/forage"
	"github.com/bracketlabs/bracket/internal/ingredient"
	"github.com/bracketlabs/bracket/internal/model"
	"github.com/bracketlabs/bracket/internal/pipeline"
	"github.com/bracketlabs/bracket/internal/source"
)

// memStore implements Store in memory. SaveArtifact is idempotent on
// the artifact id, like the real store.
type memStore struct {
	sessions    map[uuid.UUID]*model.Session
	checkpoints []*model.Checkpoint
	artifacts   map[uuid.UUID]*model.StoredArtifact
	saveCalls   int
}

func newMemStore() *memStore {
	return &memStore{
		sessions:  make(map[uuid.UUID]*model.Session),
		artifacts: make(map[uuid.UUID]*model.StoredArtifact),
	}
}

func (s *memStore) SaveCheckpoint(ctx context.Context, cp *model.Checkpoint) error {
	s.checkpoints = append(s.checkpoints, cp)
	return nil
}

func (s *memStore) CreateSession(ctx context.Context, session *model.Session) error {
	s.sessions[session.ID] = session
	return nil
}

func (s *memStore) UpdateSession(ctx context.Context, session *model.Session) error {
	s.sessions[session.ID] = session
	return nil
}

func (s *memStore) GetSession(ctx context.Context, sessionID uuid.UUID) (*model.Session, error) {
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("no session %s", sessionID)
	}
	copied := *session
	return &copied, nil
}

func (s *memStore) LatestCheckpoint(ctx context.Context, sessionID uuid.UUID) (*model.Checkpoint, error) {
	for i := len(s.checkpoints) - 1; i >= 0; i-- {
		if s.checkpoints[i].SessionID == sessionID {
			return s.checkpoints[i], nil
		}
	}
	return nil, fmt.Errorf("no checkpoint for session %s", sessionID)
}

func (s *memStore) SaveArtifact(ctx context.Context, art *model.StoredArtifact, uses []*model.IngredientUse) error {
	s.saveCalls++
	if _, exists := s.artifacts[art.ID]; exists {
		return nil
	}
	s.artifacts[art.ID] = art
	return nil
}

// countingSource yields unique long content per fetch and can cancel a
// context or fail after a set number of fetches.
type countingSource struct {
	fetches  int
	failFrom int
	onFetch  func(n int)
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) Fetch(ctx context.Context, query string) (*model.SourceResult, error) {
	s.fetches++
	if s.onFetch != nil {
		s.onFetch(s.fetches)
	}
	if s.failFrom > 0 && s.fetches >= s.failFrom {
		return nil, errors.New("source down")
	}
	content := strings.Repeat(fmt.Sprintf("Fetch %d: the estimate stays between the bounds. ", s.fetches), 20)
	return &model.SourceResult{Content: content, SourceName: s.Name(), Query: query}, nil
}

func (s *countingSource) FetchRandom(ctx context.Context) (*model.SourceResult, error) {
	return s.Fetch(ctx, "")
}

type stubModel struct {
	identifyErr error
}

func (m *stubModel) IdentifyCandidates(ctx context.Context, content string) ([]model.Candidate, error) {
	if m.identifyErr != nil {
		return nil, m.identifyErr
	}
	return []model.Candidate{{
		FrameTop:      "upper bound",
		FrameBottom:   "lower bound",
		Bounded:       "estimate " + content[:9],
		StructureType: "bound",
		Confidence:    0.9,
	}}, nil
}

func (m *stubModel) AssembleArtifact(ctx context.Context, cand model.Candidate, sourceText string) (*model.AssembledArtifact, error) {
	return &model.AssembledArtifact{
		Name:        "Bracket for " + cand.Bounded,
		Description: cand.Bounded + " between " + cand.FrameTop + " and " + cand.FrameBottom,
		Candidate:   cand,
	}, nil
}

type stubEmbedder struct{ seen map[string]int }

func (e *stubEmbedder) vec(text string) []float32 {
	if e.seen == nil {
		e.seen = make(map[string]int)
	}
	idx, ok := e.seen[text]
	if !ok {
		idx = len(e.seen)
		e.seen[text] = idx
	}
	v := make([]float32, 64)
	v[idx%64] = 1
	return v
}

func (e *stubEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return e.vec(text), nil
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vec(t)
	}
	return out, nil
}

type acceptAllValidator struct{}

func (acceptAllValidator) Validate(ctx context.Context, art *model.AssembledArtifact, sourceText string, embs model.ArtifactEmbeddings) (*model.ValidationResult, error) {
	return &model.ValidationResult{OverallScore: 0.8, Recommendation: model.RecommendAccept}, nil
}

type fixedCuriosity struct{ query string }

func (c fixedCuriosity) GenerateCuriosity(ctx context.Context, recentTopics []string) (string, error) {
	return c.query, nil
}

func newTestAgent(src source.Source, m pipeline.ModelClient, store *memStore) *Agent {
	ix := corpus.NewIndex()
	resolver := ingredient.NewResolver(ix, model.IngredientConfig{SimilarityThreshold: 0.92})
	pipe := pipeline.New(
		m,
		&stubEmbedder{},
		acceptAllValidator{},
		resolver,
		store,
		ix,
		cache.NewMemoryCache(time.Hour, time.Hour),
		model.PipelineConfig{MinContentLength: 100, MaxContentLength: 12000, RetryMaxAttempts: 2, RetryBaseDelayMS: 1},
		model.SelectionConfig{MinConfidence: 0.4, NoveltyWeight: 0.3, DiversityWeight: 0.2},
	)
	forager := forage.New(map[int][]source.Source{1: {src}}, forage.DefaultConfig())
	return New(forager, pipe, fixedCuriosity{query: "bounds"}, store)
}

func TestRun_StopsAtMaxArtifacts(t *testing.T) {
	store := newMemStore()
	agent := newTestAgent(&countingSource{}, &stubModel{}, store)

	summary, err := agent.Run(context.Background(), RunOptions{MaxArtifacts: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Successes != 2 || summary.Attempts != 2 {
		t.Errorf("summary = %d/%d, want 2 successes in 2 attempts", summary.Successes, summary.Attempts)
	}
	if summary.Disposition != model.DispositionCompleted {
		t.Errorf("disposition = %s, want completed", summary.Disposition)
	}
	if summary.MeanValidity != 0.8 {
		t.Errorf("mean validity = %v, want 0.8", summary.MeanValidity)
	}
	if len(store.artifacts) != 2 {
		t.Errorf("stored %d artifacts, want 2", len(store.artifacts))
	}
	if agent.machine.Current() != StateSessionEnd {
		t.Errorf("final state = %s, want session_end", agent.machine.Current())
	}

	sess := store.sessions[summary.SessionID]
	if sess == nil || sess.EndedAt == nil {
		t.Fatal("session record should be closed")
	}
}

func TestRun_FatalErrorEndsSession(t *testing.T) {
	store := newMemStore()
	m := &stubModel{identifyErr: errs.NewFatal("identify", errors.New("bad credentials"))}
	agent := newTestAgent(&countingSource{}, m, store)

	summary, err := agent.Run(context.Background(), RunOptions{MaxArtifacts: 5})
	if err == nil {
		t.Fatal("expected fatal error")
	}
	if !errs.IsFatal(err) {
		t.Errorf("error should keep fatal classification: %v", err)
	}
	if summary == nil || summary.Disposition != model.DispositionFatal {
		t.Fatalf("summary = %+v, want fatal disposition", summary)
	}
	if agent.machine.Current() != StateSessionEnd {
		t.Errorf("final state = %s, want session_end", agent.machine.Current())
	}
	if len(store.artifacts) != 0 {
		t.Error("no artifact should be stored")
	}
}

func TestRun_ForageFailureContinuesLoop(t *testing.T) {
	store := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	src := &countingSource{failFrom: 1, onFetch: func(n int) {
		if n >= 3 {
			cancel()
		}
	}}
	agent := newTestAgent(src, &stubModel{}, store)

	summary, err := agent.Run(ctx, RunOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Attempts < 3 {
		t.Errorf("attempts = %d, want the loop to keep foraging past failures", summary.Attempts)
	}
	if summary.Successes != 0 {
		t.Errorf("successes = %d, want 0", summary.Successes)
	}
	if summary.Disposition != model.DispositionCompleted {
		t.Errorf("disposition = %s, want completed (shutdown is not fatal)", summary.Disposition)
	}
}

func TestRun_ResumeReplaysStoringIdempotently(t *testing.T) {
	store := newMemStore()
	sessionID := uuid.New()
	store.sessions[sessionID] = &model.Session{ID: sessionID, Attempts: 4, Successes: 1, Disposition: model.DispositionRunning}

	art := &model.StoredArtifact{
		ID:            uuid.New(),
		Name:          "Replayed bracket",
		StructureType: "bound",
	}
	// The artifact already committed before the crash; the storing
	// checkpoint survived, so recovery replays the save.
	store.artifacts[art.ID] = art

	payload := jsonRoundtrip(t, map[string]any{"artifact": art, "forage": forage.State{CurrentTier: 1}})
	store.checkpoints = append(store.checkpoints, &model.Checkpoint{
		ID:        uuid.New(),
		SessionID: sessionID,
		Seq:       5,
		State:     string(StateStoring),
		Payload:   payload,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // stop immediately after recovery
	agent := newTestAgent(&countingSource{}, &stubModel{}, store)

	summary, err := agent.Run(ctx, RunOptions{ResumeSessionID: sessionID.String()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.SessionID != sessionID {
		t.Errorf("summary session = %s, want resumed %s", summary.SessionID, sessionID)
	}
	if len(store.artifacts) != 1 {
		t.Fatalf("stored %d artifacts, want exactly 1 after replay", len(store.artifacts))
	}
	if store.saveCalls == 0 {
		t.Error("recovery should replay the checkpointed save")
	}
	if agent.machine.Current() != StateSessionEnd {
		t.Errorf("final state = %s, want session_end", agent.machine.Current())
	}
}

func TestRun_ResumeEndedSessionFails(t *testing.T) {
	store := newMemStore()
	sessionID := uuid.New()
	store.sessions[sessionID] = &model.Session{ID: sessionID, Disposition: model.DispositionCompleted}
	store.checkpoints = append(store.checkpoints, &model.Checkpoint{
		SessionID: sessionID,
		Seq:       9,
		State:     string(StateSessionEnd),
	})

	agent := newTestAgent(&countingSource{}, &stubModel{}, store)
	_, err := agent.Run(context.Background(), RunOptions{ResumeSessionID: sessionID.String()})
	if err == nil {
		t.Fatal("resuming an ended session should fail")
	}
	if !errs.IsFatal(err) {
		t.Errorf("expected fatal classification, got %v", err)
	}
}

func TestRun_ResumeKeepsSessionCounters(t *testing.T) {
	store := newMemStore()
	sessionID := uuid.New()
	store.sessions[sessionID] = &model.Session{ID: sessionID, Attempts: 7, Successes: 3, Disposition: model.DispositionRunning}
	store.checkpoints = append(store.checkpoints, &model.Checkpoint{
		ID:        uuid.New(),
		SessionID: sessionID,
		Seq:       12,
		State:     string(StateIdle),
	})

	agent := newTestAgent(&countingSource{}, &stubModel{}, store)
	summary, err := agent.Run(context.Background(), RunOptions{ResumeSessionID: sessionID.String(), MaxArtifacts: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The budget was met before the interruption: no new work.
	if len(store.artifacts) != 0 {
		t.Errorf("stored %d artifacts, want 0 (resumed budget already met)", len(store.artifacts))
	}
	if summary.Attempts != 7 || summary.Successes != 3 {
		t.Errorf("summary = %d attempts / %d successes, want resumed 7/3", summary.Attempts, summary.Successes)
	}
	if summary.Disposition != model.DispositionCompleted {
		t.Errorf("disposition = %s, want completed", summary.Disposition)
	}

	sess := store.sessions[sessionID]
	if sess.Attempts != 7 || sess.Successes != 3 {
		t.Errorf("session row regressed to %d/%d, want 7/3 preserved", sess.Attempts, sess.Successes)
	}
}

type countingCuriosity struct{ calls int }

func (c *countingCuriosity) GenerateCuriosity(ctx context.Context, recentTopics []string) (string, error) {
	c.calls++
	return "bounds", nil
}

func TestRun_CuriosityOptionGatesGenerator(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		gen := &countingCuriosity{}
		agent := newTestAgent(&countingSource{}, &stubModel{}, newMemStore())
		agent.curiosity = gen

		if _, err := agent.Run(context.Background(), RunOptions{MaxArtifacts: 1}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gen.calls != 0 {
			t.Errorf("curiosity generator called %d times with the option off, want 0", gen.calls)
		}
	})

	t.Run("enabled", func(t *testing.T) {
		gen := &countingCuriosity{}
		agent := newTestAgent(&countingSource{}, &stubModel{}, newMemStore())
		agent.curiosity = gen

		if _, err := agent.Run(context.Background(), RunOptions{MaxArtifacts: 1, Curiosity: true}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gen.calls == 0 {
			t.Error("curiosity generator never called with the option on")
		}
	})
}

func TestRun_CheckpointsCarryForageState(t *testing.T) {
	store := newMemStore()
	agent := newTestAgent(&countingSource{}, &stubModel{}, store)

	if _, err := agent.Run(context.Background(), RunOptions{MaxArtifacts: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.checkpoints) == 0 {
		t.Fatal("no checkpoints written")
	}
	for _, cp := range store.checkpoints {
		if _, ok := cp.Payload["forage"]; !ok {
			t.Errorf("checkpoint seq=%d state=%s has no forage state", cp.Seq, cp.State)
		}
	}
}

func TestRun_ResumeRestoresForageTierFromStoringCheckpoint(t *testing.T) {
	store := newMemStore()
	sessionID := uuid.New()
	store.sessions[sessionID] = &model.Session{ID: sessionID, Disposition: model.DispositionRunning}

	art := &model.StoredArtifact{ID: uuid.New(), Name: "Replayed bracket", StructureType: "bound"}
	payload := jsonRoundtrip(t, map[string]any{
		"artifact": art,
		"forage":   forage.State{CurrentTier: 2, ConsecutiveSuccesses: 1},
	})
	store.checkpoints = append(store.checkpoints, &model.Checkpoint{
		ID:        uuid.New(),
		SessionID: sessionID,
		Seq:       5,
		State:     string(StateStoring),
		Payload:   payload,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // stop immediately after recovery
	src := &countingSource{}
	agent := newTestAgent(src, &stubModel{}, store)
	agent.forager = forage.New(map[int][]source.Source{1: {src}, 2: {src}}, forage.DefaultConfig())

	if _, err := agent.Run(ctx, RunOptions{ResumeSessionID: sessionID.String()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := agent.forager.CurrentTier(); got != 2 {
		t.Errorf("resumed tier = %d, want 2 from the storing checkpoint", got)
	}
}

// jsonRoundtrip simulates a payload that went through the store's JSON
// column and back.
func jsonRoundtrip(t *testing.T, payload map[string]any) map[string]any {
	t.Helper()
	buf, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(buf, &out); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	return out
}
