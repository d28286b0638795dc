package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evcraddock/proptech-copilot/internal/db"
)

const sessionColumns = `session_id, user_id, started_at, last_activity, ended_at,
	changes_count, active, device_info, ip_address`

// CreateSession starts a new session for the user.
func (l *Ledger) CreateSession(ctx context.Context, userID, deviceInfo, ipAddress string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	now := l.now().UTC()
	s := &Session{
		SessionID:    "session_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
		UserID:       userID,
		StartedAt:    now,
		LastActivity: now,
		Active:       true,
		DeviceInfo:   deviceInfo,
		IPAddress:    ipAddress,
	}

	err := db.InTx(ctx, l.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_sessions (session_id, user_id, started_at, last_activity, device_info, ip_address)
			VALUES (?, ?, ?, ?, ?, ?)`,
			s.SessionID, userID, db.FormatTime(now), db.FormatTime(now), deviceInfo, ipAddress,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	slog.Info("session created", "session_id", s.SessionID, "user_id", userID)
	return s, nil
}

// Touch records activity on a session and increments its change counter.
func (l *Ledger) Touch(ctx context.Context, userID, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	err := db.InTx(ctx, l.db, func(tx *sql.Tx) error {
		return touchTx(ctx, tx, userID, sessionID, 1, l.now().UTC())
	})
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

func touchTx(ctx context.Context, tx *sql.Tx, userID, sessionID string, n int, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE user_sessions SET changes_count = changes_count + ?, last_activity = ?
		WHERE session_id = ? AND user_id = ?`,
		n, db.FormatTime(now), sessionID, userID,
	)
	if err != nil {
		return fmt.Errorf("updating session activity: %w", err)
	}
	return nil
}

// EndSession marks a session inactive. Ending an ended session is a no-op.
func (l *Ledger) EndSession(ctx context.Context, userID, sessionID string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	err := db.InTx(ctx, l.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE user_sessions SET active = 0, ended_at = COALESCE(ended_at, ?)
			WHERE session_id = ? AND user_id = ?`,
			db.FormatTime(l.now()), sessionID, userID,
		)
		if err != nil {
			return fmt.Errorf("ending session: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l.GetSession(ctx, userID, sessionID)
}

// GetSession returns one of the user's sessions.
func (l *Ledger) GetSession(ctx context.Context, userID, sessionID string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	row := l.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM user_sessions WHERE session_id = ? AND user_id = ?`,
		sessionID, userID,
	)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, db.Classify(ctx, err)
	}
	return s, nil
}

// ListSessions returns the user's sessions, most recent first.
func (l *Ledger) ListSessions(ctx context.Context, userID string, limit int) ([]*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM user_sessions WHERE user_id = ?
		ORDER BY started_at DESC, session_id LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", db.Classify(ctx, err))
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("closing rows", "error", closeErr)
		}
	}()

	sessions := []*Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// Summary returns a session with its changes grouped by entity.
func (l *Ledger) Summary(ctx context.Context, userID, sessionID string) (*SessionSummary, error) {
	s, err := l.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	changes, err := l.SessionChanges(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	entities := map[string][]string{}
	for _, c := range changes {
		key := c.EntityType + "/" + c.EntityID
		entities[key] = append(entities[key], c.Field)
	}

	return &SessionSummary{
		Session:          *s,
		Changes:          changes,
		EntitiesModified: entities,
		TotalChanges:     len(changes),
	}, nil
}

func scanSession(s scanner) (*Session, error) {
	var sess Session
	var started, last string
	var ended sql.NullString
	var active int
	if err := s.Scan(&sess.SessionID, &sess.UserID, &started, &last, &ended,
		&sess.ChangesCount, &active, &sess.DeviceInfo, &sess.IPAddress); err != nil {
		return nil, err
	}
	sess.Active = active == 1

	var err error
	if sess.StartedAt, err = db.ParseTime(started); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if sess.LastActivity, err = db.ParseTime(last); err != nil {
		return nil, fmt.Errorf("parsing last_activity: %w", err)
	}
	if ended.Valid {
		t, err := db.ParseTime(ended.String)
		if err != nil {
			return nil, fmt.Errorf("parsing ended_at: %w", err)
		}
		sess.EndedAt = &t
	}
	return &sess, nil
}
