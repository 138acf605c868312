package agent

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/bracketlabs/bracket/internal/model"
)

// CheckpointSink persists checkpoints durably. SaveCheckpoint must not
// return until the checkpoint is committed.
type CheckpointSink interface {
	SaveCheckpoint(ctx context.Context, cp *model.Checkpoint) error
}

// Machine enforces the transition table and persists a checkpoint for
// every transition before the in-memory state changes, so recovery
// never observes a state with no matching checkpoint.
type Machine struct {
	sessionID uuid.UUID
	current   State
	seq       int64
	sink      CheckpointSink
	now       func() time.Time
}

// NewMachine creates a machine in the idle state for a fresh session.
func NewMachine(sessionID uuid.UUID, sink CheckpointSink) *Machine {
	return &Machine{
		sessionID: sessionID,
		current:   StateIdle,
		sink:      sink,
		now:       time.Now,
	}
}

// Current returns the current state.
func (m *Machine) Current() State { return m.current }

// SessionID returns the owning session id.
func (m *Machine) SessionID() uuid.UUID { return m.sessionID }

// CanTransition reports whether event is legal from the current state.
func (m *Machine) CanTransition(event string) bool {
	_, ok := transitions[m.current][event]
	return ok
}

// Transition applies event with a phase payload. The checkpoint is
// persisted first; only after the sink confirms does the in-memory
// state advance. An IllegalTransition leaves the state unchanged.
func (m *Machine) Transition(ctx context.Context, event string, payload map[string]any) (State, error) {
	next, ok := transitions[m.current][event]
	if !ok {
		return m.current, &IllegalTransition{From: m.current, Event: event}
	}

	cp := &model.Checkpoint{
		ID:        uuid.New(),
		SessionID: m.sessionID,
		Seq:       m.seq + 1,
		State:     string(next),
		Timestamp: m.now().UTC(),
		Payload:   payload,
		Reason:    fmt.Sprintf("%s --[%s]--> %s", m.current, event, next),
	}
	if err := m.sink.SaveCheckpoint(ctx, cp); err != nil {
		return m.current, fmt.Errorf("persist checkpoint: %w", err)
	}

	log.Printf("agent: %s", cp.Reason)
	m.seq = cp.Seq
	m.current = next
	return next, nil
}

// RecoverFromCheckpoint restores the machine to a previously persisted
// state without writing a new checkpoint; the sequence continues from
// the recovered point.
func (m *Machine) RecoverFromCheckpoint(cp *model.Checkpoint) {
	m.sessionID = cp.SessionID
	m.current = State(cp.State)
	m.seq = cp.Seq
	log.Printf("agent: recovered session %s to state %s (seq %d)", m.sessionID, m.current, m.seq)
}
