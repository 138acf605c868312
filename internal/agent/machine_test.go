package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/bracketlabs/bracket/internal/model"
)

// memSink collects checkpoints in memory and can be told to fail.
type memSink struct {
	checkpoints []*model.Checkpoint
	err         error
}

func (s *memSink) SaveCheckpoint(ctx context.Context, cp *model.Checkpoint) error {
	if s.err != nil {
		return s.err
	}
	s.checkpoints = append(s.checkpoints, cp)
	return nil
}

func TestMachine_LegalTransitionSequence(t *testing.T) {
	sink := &memSink{}
	m := NewMachine(uuid.New(), sink)
	ctx := context.Background()

	steps := []struct {
		event string
		want  State
	}{
		{EventStartForaging, StateForaging},
		{"content_ready", StatePreprocessing},
		{"preprocessed", StateIdentifying},
		{"candidates_found", StateSelecting},
		{"candidate_selected", StateAssembling},
		{"assembled", StateValidating},
		{"validated", StateStoring},
		{"stored", StateIdle},
		{EventEndSession, StateSessionEnd},
	}
	for _, step := range steps {
		got, err := m.Transition(ctx, step.event, nil)
		if err != nil {
			t.Fatalf("transition %q: %v", step.event, err)
		}
		if got != step.want {
			t.Fatalf("after %q state = %s, want %s", step.event, got, step.want)
		}
	}

	if len(sink.checkpoints) != len(steps) {
		t.Fatalf("persisted %d checkpoints, want %d", len(sink.checkpoints), len(steps))
	}
	for i, cp := range sink.checkpoints {
		if cp.Seq != int64(i+1) {
			t.Errorf("checkpoint %d seq = %d, want strictly increasing from 1", i, cp.Seq)
		}
	}
}

func TestMachine_IllegalTransitionLeavesStateUnchanged(t *testing.T) {
	sink := &memSink{}
	m := NewMachine(uuid.New(), sink)

	_, err := m.Transition(context.Background(), "validated", nil)
	var illegal *IllegalTransition
	if !errors.As(err, &illegal) {
		t.Fatalf("expected IllegalTransition, got %v", err)
	}
	if illegal.From != StateIdle || illegal.Event != "validated" {
		t.Errorf("illegal = %+v", illegal)
	}
	if m.Current() != StateIdle {
		t.Errorf("state = %s, want unchanged idle", m.Current())
	}
	if len(sink.checkpoints) != 0 {
		t.Error("illegal transition must not persist a checkpoint")
	}
}

func TestMachine_SessionEndIsTerminal(t *testing.T) {
	m := NewMachine(uuid.New(), &memSink{})
	ctx := context.Background()

	if _, err := m.Transition(ctx, EventEndSession, nil); err != nil {
		t.Fatalf("end session: %v", err)
	}
	for _, event := range []string{EventStartForaging, EventError, EventRecovered, "stored"} {
		if _, err := m.Transition(ctx, event, nil); err == nil {
			t.Errorf("transition %q out of session_end should fail", event)
		}
	}
}

func TestMachine_CheckpointFailureBlocksCommit(t *testing.T) {
	sink := &memSink{err: errors.New("disk full")}
	m := NewMachine(uuid.New(), sink)

	_, err := m.Transition(context.Background(), EventStartForaging, nil)
	if err == nil {
		t.Fatal("expected checkpoint persistence error")
	}
	if m.Current() != StateIdle {
		t.Errorf("state = %s, want idle: state must not advance past an unpersisted checkpoint", m.Current())
	}
}

func TestMachine_RecoverFromCheckpoint(t *testing.T) {
	sessionID := uuid.New()
	m := NewMachine(uuid.New(), &memSink{})

	m.RecoverFromCheckpoint(&model.Checkpoint{
		SessionID: sessionID,
		Seq:       7,
		State:     string(StateStoring),
	})
	if m.Current() != StateStoring {
		t.Errorf("state = %s, want storing", m.Current())
	}
	if m.SessionID() != sessionID {
		t.Error("session id should follow the checkpoint")
	}

	// The next checkpoint continues the sequence.
	sink := &memSink{}
	m.sink = sink
	if _, err := m.Transition(context.Background(), "stored", nil); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if sink.checkpoints[0].Seq != 8 {
		t.Errorf("seq = %d, want 8", sink.checkpoints[0].Seq)
	}
}

func TestMachine_ErrorRecoveryPath(t *testing.T) {
	m := NewMachine(uuid.New(), &memSink{})
	ctx := context.Background()

	m.Transition(ctx, EventStartForaging, nil)
	m.Transition(ctx, "content_ready", nil)
	if _, err := m.Transition(ctx, EventError, map[string]any{"error": "timeout"}); err != nil {
		t.Fatalf("error transition: %v", err)
	}
	if m.Current() != StateErrorRecovery {
		t.Fatalf("state = %s, want error_recovery", m.Current())
	}
	if _, err := m.Transition(ctx, EventRecovered, nil); err != nil {
		t.Fatalf("recovered transition: %v", err)
	}
	if m.Current() != StateIdle {
		t.Errorf("state = %s, want idle", m.Current())
	}
}
