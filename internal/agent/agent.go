package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/bracketlabs/bracket/internal/errs"
	"github.com/bracketlabs/bracket/internal/forage"
	"github.com/bracketlabs/bracket/internal/model"
	"github.com/bracketlabs/bracket/internal/pipeline"
)

// Store is the persistence surface the session loop needs: the
// checkpoint log, the session table, and idempotent artifact replay.
type Store interface {
	CheckpointSink
	CreateSession(ctx context.Context, s *model.Session) error
	UpdateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, sessionID uuid.UUID) (*model.Session, error)
	LatestCheckpoint(ctx context.Context, sessionID uuid.UUID) (*model.Checkpoint, error)
	SaveArtifact(ctx context.Context, art *model.StoredArtifact, uses []*model.IngredientUse) error
}

// CuriosityGenerator produces the next exploration query.
type CuriosityGenerator interface {
	GenerateCuriosity(ctx context.Context, recentTopics []string) (string, error)
}

// RunOptions is the control surface of one run.
type RunOptions struct {
	MaxArtifacts    int           // Stop after N stored artifacts (0 = unbounded)
	MaxDuration     time.Duration // Wall-clock budget (0 = unbounded)
	ResumeSessionID string        // Resume from this session's latest checkpoint
	Curiosity       bool          // Generate exploration queries between cycles
}

// Summary is the terminal report of a session.
type Summary struct {
	SessionID    uuid.UUID
	Attempts     int
	Successes    int
	MeanValidity float64
	Duration     time.Duration
	Disposition  model.SessionDisposition
}

// String renders the one-line human-readable summary.
func (s *Summary) String() string {
	return fmt.Sprintf("session %s: %d attempts, %d artifacts, mean validity %.3f, %s (%s)",
		s.SessionID, s.Attempts, s.Successes, s.MeanValidity, s.Duration.Round(time.Second), s.Disposition)
}

// Agent drives the session control loop: forage, run one pipeline
// cycle, route failures by taxonomy, checkpoint every phase change.
type Agent struct {
	machine   *Machine
	forager   *forage.Forager
	pipe      *pipeline.Pipeline
	curiosity CuriosityGenerator
	store     Store
	now       func() time.Time

	curiosityOn  bool
	recentTopics []string
	validitySum  float64
	newSuccesses int // Artifacts stored by this run (excludes resumed counters)
}

// New creates an agent. curiosity may be nil to disable query
// generation entirely.
func New(forager *forage.Forager, pipe *pipeline.Pipeline, curiosity CuriosityGenerator, store Store) *Agent {
	return &Agent{
		forager:   forager,
		pipe:      pipe,
		curiosity: curiosity,
		store:     store,
		now:       time.Now,
	}
}

// Run executes the session loop until a stop condition or a fatal
// error. Stop conditions are checked between cycles only, so a cycle
// always completes or fails cleanly before the loop exits. The summary
// is returned even on fatal failure.
func (a *Agent) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	started := a.now()
	a.curiosityOn = opts.Curiosity

	session, err := a.openSession(ctx, opts)
	if err != nil {
		return nil, err
	}

	var deadline time.Time
	if opts.MaxDuration > 0 {
		deadline = started.Add(opts.MaxDuration)
	}

	var fatalErr error

loop:
	for {
		if reason := a.stopReason(ctx, session, opts, deadline); reason != "" {
			log.Printf("agent: stopping: %s", reason)
			if _, err := a.machine.Transition(ctx, EventEndSession, a.withForage(map[string]any{"reason": reason})); err != nil {
				fatalErr = err
			}
			break
		}

		if _, err := a.machine.Transition(ctx, EventStartForaging, a.withForage(nil)); err != nil {
			fatalErr = err
			break
		}
		session.Attempts++

		src, err := a.forager.Forage(ctx, a.nextCuriosity(ctx))
		if err != nil {
			log.Printf("agent: forage failed: %v", err)
			a.forager.RecordFailure()
			if _, err := a.machine.Transition(ctx, EventForageFailed, a.withForage(map[string]any{"error": err.Error()})); err != nil {
				fatalErr = err
				break
			}
			a.persistSession(ctx, session)
			continue
		}

		res, err := a.pipe.RunCycle(ctx, machineTracker{ctx: ctx, a: a}, src)
		if err != nil {
			switch {
			case errs.IsFatal(err):
				fatalErr = err
				if _, terr := a.machine.Transition(ctx, EventError, a.withForage(map[string]any{"error": err.Error()})); terr != nil {
					break loop
				}
				if _, terr := a.machine.Transition(ctx, EventFatal, a.withForage(nil)); terr != nil {
					break loop
				}
				break loop
			default:
				// Retryable (retries exhausted), content, and parse
				// failures all route back to foraging.
				log.Printf("agent: cycle failed: %v", err)
				a.forager.RecordFailure()
				if _, terr := a.machine.Transition(ctx, EventError, a.withForage(map[string]any{"error": err.Error()})); terr != nil {
					fatalErr = terr
					break loop
				}
				if _, terr := a.machine.Transition(ctx, EventRecovered, a.withForage(nil)); terr != nil {
					fatalErr = terr
					break loop
				}
				a.persistSession(ctx, session)
				continue
			}
		}

		if res.Outcome == pipeline.OutcomeStored {
			session.Successes++
			a.newSuccesses++
			a.validitySum += res.Validation.OverallScore
			a.forager.RecordSuccess()
			a.rememberTopic(res.Artifact.Bounded)
		} else {
			a.forager.RecordFailure()
		}
		a.persistSession(ctx, session)
	}

	return a.closeSession(ctx, session, started, fatalErr)
}

// openSession either resumes an interrupted session from its latest
// checkpoint or creates a fresh one.
func (a *Agent) openSession(ctx context.Context, opts RunOptions) (*model.Session, error) {
	if opts.ResumeSessionID == "" {
		session := &model.Session{
			ID:          uuid.New(),
			StartedAt:   a.now().UTC(),
			Disposition: model.DispositionRunning,
		}
		a.machine = NewMachine(session.ID, a.store)
		if err := a.store.CreateSession(ctx, session); err != nil {
			return nil, errs.NewFatal("create session", err)
		}
		return session, nil
	}

	sessionID, err := uuid.Parse(opts.ResumeSessionID)
	if err != nil {
		return nil, errs.NewFatal("parse resume session id", err)
	}
	// Resuming continues the existing session record: attempts and
	// successes carry over, so a budget met before the interruption is
	// still met.
	session, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, errs.NewFatal("load session", err)
	}
	session.EndedAt = nil
	session.Disposition = model.DispositionRunning

	cp, err := a.store.LatestCheckpoint(ctx, sessionID)
	if err != nil {
		return nil, errs.NewFatal("load checkpoint", err)
	}

	a.machine = NewMachine(sessionID, a.store)
	a.machine.RecoverFromCheckpoint(cp)

	// Restore the forage ladder before settling the phase: checkpoints
	// written while settling carry the restored state, not the default.
	if st := decodeForageState(cp.Payload); st != nil {
		a.forager.Restore(*st)
	}
	if err := a.resumePhase(ctx, cp); err != nil {
		return nil, err
	}
	return session, nil
}

// resumePhase settles an in-flight phase back to idle. A session
// interrupted mid-store replays the checkpointed artifact (the store is
// idempotent on artifact id, so a commit that already happened is a
// no-op). Any other mid-cycle phase cannot be resumed without its
// transient inputs and is abandoned through error recovery.
func (a *Agent) resumePhase(ctx context.Context, cp *model.Checkpoint) error {
	switch a.machine.Current() {
	case StateIdle:
		return nil
	case StateSessionEnd:
		return errs.NewFatal("resume session", fmt.Errorf("session %s already ended", cp.SessionID))
	case StateStoring:
		art, uses, err := decodeStoringPayload(cp.Payload)
		if err != nil {
			return errs.NewFatal("decode storing checkpoint", err)
		}
		if err := a.store.SaveArtifact(ctx, art, uses); err != nil {
			return errs.NewFatal("replay store", err)
		}
		_, err = a.machine.Transition(ctx, "stored", a.withForage(map[string]any{"artifact_id": art.ID.String(), "replayed": true}))
		return err
	case StateForaging:
		_, err := a.machine.Transition(ctx, EventForageFailed, a.withForage(map[string]any{"error": "interrupted"}))
		return err
	case StateErrorRecovery:
		_, err := a.machine.Transition(ctx, EventRecovered, a.withForage(nil))
		return err
	default:
		if _, err := a.machine.Transition(ctx, EventError, a.withForage(map[string]any{"error": "interrupted mid-cycle"})); err != nil {
			return err
		}
		_, err := a.machine.Transition(ctx, EventRecovered, a.withForage(nil))
		return err
	}
}

func (a *Agent) closeSession(ctx context.Context, session *model.Session, started time.Time, fatalErr error) (*Summary, error) {
	ended := a.now().UTC()
	session.EndedAt = &ended
	if fatalErr != nil {
		session.Disposition = model.DispositionFatal
	} else {
		session.Disposition = model.DispositionCompleted
	}
	a.persistSession(ctx, session)

	summary := &Summary{
		SessionID:   session.ID,
		Attempts:    session.Attempts,
		Successes:   session.Successes,
		Duration:    a.now().Sub(started),
		Disposition: session.Disposition,
	}
	if a.newSuccesses > 0 {
		summary.MeanValidity = a.validitySum / float64(a.newSuccesses)
	}
	return summary, fatalErr
}

// stopReason returns a non-empty reason when the loop should end.
func (a *Agent) stopReason(ctx context.Context, session *model.Session, opts RunOptions, deadline time.Time) string {
	select {
	case <-ctx.Done():
		return "shutdown signal"
	default:
	}
	if opts.MaxArtifacts > 0 && session.Successes >= opts.MaxArtifacts {
		return fmt.Sprintf("max artifacts reached (%d)", opts.MaxArtifacts)
	}
	if !deadline.IsZero() && !a.now().Before(deadline) {
		return "max duration elapsed"
	}
	return ""
}

// nextCuriosity asks for an exploration query; any failure falls back
// to an empty query, which makes the source fetch random content.
// Curiosity must be both wired and enabled for this run.
func (a *Agent) nextCuriosity(ctx context.Context) string {
	if !a.curiosityOn || a.curiosity == nil {
		return ""
	}
	q, err := a.curiosity.GenerateCuriosity(ctx, a.recentTopics)
	if err != nil {
		log.Printf("agent: curiosity generation failed, falling back to random fetch: %v", err)
		return ""
	}
	return q
}

func (a *Agent) rememberTopic(topic string) {
	const keep = 10
	a.recentTopics = append(a.recentTopics, topic)
	if len(a.recentTopics) > keep {
		a.recentTopics = a.recentTopics[len(a.recentTopics)-keep:]
	}
}

func (a *Agent) persistSession(ctx context.Context, session *model.Session) {
	if err := a.store.UpdateSession(ctx, session); err != nil {
		log.Printf("agent: persist session: %v", err)
	}
}

// withForage copies the payload and attaches the current forage ladder
// state, so any checkpoint can restore the ladder on resume.
func (a *Agent) withForage(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out["forage"] = a.forager.State()
	return out
}

// machineTracker adapts the state machine to the pipeline's Tracker.
type machineTracker struct {
	ctx context.Context
	a   *Agent
}

func (t machineTracker) Advance(event string, payload map[string]any) error {
	_, err := t.a.machine.Transition(t.ctx, event, t.a.withForage(payload))
	return err
}

// decodeForageState extracts the forage counters from a checkpoint
// payload, tolerating both in-memory and JSON-roundtripped shapes.
func decodeForageState(payload map[string]any) *forage.State {
	raw, ok := payload["forage"]
	if !ok {
		return nil
	}
	if st, ok := raw.(forage.State); ok {
		return &st
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var st forage.State
	if err := json.Unmarshal(buf, &st); err != nil {
		return nil
	}
	return &st
}

// decodeStoringPayload reconstructs the artifact and its ingredient
// uses from the storing-phase checkpoint.
func decodeStoringPayload(payload map[string]any) (*model.StoredArtifact, []*model.IngredientUse, error) {
	rawArt, ok := payload["artifact"]
	if !ok {
		return nil, nil, fmt.Errorf("storing checkpoint has no artifact payload")
	}

	art := new(model.StoredArtifact)
	if direct, ok := rawArt.(*model.StoredArtifact); ok {
		art = direct
	} else {
		buf, err := json.Marshal(rawArt)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal artifact payload: %w", err)
		}
		if err := json.Unmarshal(buf, art); err != nil {
			return nil, nil, fmt.Errorf("decode artifact payload: %w", err)
		}
	}

	var uses []*model.IngredientUse
	if rawUses, ok := payload["uses"]; ok {
		if direct, ok := rawUses.([]*model.IngredientUse); ok {
			uses = direct
		} else {
			buf, err := json.Marshal(rawUses)
			if err != nil {
				return nil, nil, fmt.Errorf("marshal uses payload: %w", err)
			}
			if err := json.Unmarshal(buf, &uses); err != nil {
				return nil, nil, fmt.Errorf("decode uses payload: %w", err)
			}
		}
	}
	return art, uses, nil
}
