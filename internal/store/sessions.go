package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bracketlabs/bracket/internal/errs"
	"github.com/bracketlabs/bracket/internal/model"
)

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, session *model.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at, attempts, successes, disposition) VALUES (?, ?, ?, ?, ?)`,
		session.ID.String(), session.StartedAt.Format(time.RFC3339Nano),
		session.Attempts, session.Successes, string(session.Disposition))
	if err != nil {
		return classifyStoreErr("create session", err)
	}
	return nil
}

// UpdateSession persists the session counters and disposition.
func (s *Store) UpdateSession(ctx context.Context, session *model.Session) error {
	var endedAt any
	if session.EndedAt != nil {
		endedAt = session.EndedAt.Format(time.RFC3339Nano)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, attempts = ?, successes = ?, disposition = ? WHERE id = ?`,
		endedAt, session.Attempts, session.Successes, string(session.Disposition), session.ID.String())
	if err != nil {
		return classifyStoreErr("update session", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Resumed sessions may predate this process; upsert keeps the
		// record alive either way.
		return s.CreateSession(ctx, session)
	}
	return nil
}

// SaveCheckpoint appends one entry to the session's checkpoint log. The
// UNIQUE (session_id, seq) constraint enforces the strictly increasing
// sequence.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *model.Checkpoint) error {
	var payload any
	if len(cp.Payload) > 0 {
		buf, err := json.Marshal(cp.Payload)
		if err != nil {
			return fmt.Errorf("marshal checkpoint payload: %w", err)
		}
		payload = string(buf)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, session_id, seq, state, timestamp, payload, reason) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cp.ID.String(), cp.SessionID.String(), cp.Seq, cp.State,
		cp.Timestamp.Format(time.RFC3339Nano), payload, cp.Reason)
	if err != nil {
		return classifyStoreErr("save checkpoint", err)
	}
	return nil
}

// LatestCheckpoint returns the recovery point of a session: its highest
// sequence checkpoint.
func (s *Store) LatestCheckpoint(ctx context.Context, sessionID uuid.UUID) (*model.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, seq, state, timestamp, payload, reason
		 FROM checkpoints WHERE session_id = ? ORDER BY seq DESC LIMIT 1`, sessionID.String())

	var cp model.Checkpoint
	var id, sid, timestamp string
	var payload sql.NullString
	if err := row.Scan(&id, &sid, &cp.Seq, &cp.State, &timestamp, &payload, &cp.Reason); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no checkpoint for session %s", sessionID)
		}
		return nil, classifyStoreErr("load checkpoint", err)
	}

	var err error
	if cp.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("checkpoint id: %w", err)
	}
	if cp.SessionID, err = uuid.Parse(sid); err != nil {
		return nil, fmt.Errorf("checkpoint session id: %w", err)
	}
	if cp.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp); err != nil {
		return nil, fmt.Errorf("checkpoint timestamp: %w", err)
	}
	if payload.Valid && payload.String != "" {
		if err := json.Unmarshal([]byte(payload.String), &cp.Payload); err != nil {
			return nil, fmt.Errorf("decode checkpoint payload: %w", err)
		}
	}
	return &cp, nil
}

// GetSession loads one session row.
func (s *Store) GetSession(ctx context.Context, sessionID uuid.UUID) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, ended_at, attempts, successes, disposition FROM sessions WHERE id = ?`,
		sessionID.String())

	var session model.Session
	var id, startedAt, disposition string
	var endedAt sql.NullString
	if err := row.Scan(&id, &startedAt, &endedAt, &session.Attempts, &session.Successes, &disposition); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no session %s", sessionID)
		}
		return nil, classifyStoreErr("load session", err)
	}

	var err error
	if session.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	if session.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, fmt.Errorf("session started at: %w", err)
	}
	if endedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("session ended at: %w", err)
		}
		session.EndedAt = &t
	}
	session.Disposition = model.SessionDisposition(disposition)
	return &session, nil
}

// classifyStoreErr maps database failures onto the error taxonomy:
// contention is retryable, everything else means the store cannot be
// trusted and the session must end.
func classifyStoreErr(op string, err error) error {
	low := strings.ToLower(err.Error())
	if strings.Contains(low, "database is locked") || strings.Contains(low, "busy") ||
		strings.Contains(low, "timeout") {
		return errs.NewRetryable(op, err)
	}
	return errs.NewFatal(op, err)
}
