package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/scribelabs/scribe-core/internal/config"
	"github.com/scribelabs/scribe-core/internal/delivery"
	_ "modernc.org/sqlite"
)

// Store is the append-only transcript history: an in-memory read view for
// the presentation layer, optionally backed by SQLite so sessions survive
// restarts. Entries are never edited or removed by the pipeline; pruning is
// a retention concern applied between sessions.
type Store struct {
	db        *sql.DB
	cfg       config.HistoryConfig
	log       *slog.Logger
	clock     func() time.Time
	sessionID string

	mu       sync.RWMutex
	segments []delivery.Segment
}

// Open initializes the history store according to config. In ephemeral mode
// no database is touched and history lives in memory only.
func Open(ctx context.Context, cfg config.HistoryConfig, sessionID string, log *slog.Logger) (*Store, error) {
	s := &Store{cfg: cfg, log: log, clock: time.Now, sessionID: sessionID}
	if cfg.RetentionMode == "ephemeral" {
		return s, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s.db = db

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.registerSession(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("history vacuum failed", slog.String("error", err.Error()))
		}
	}
	if err := s.Prune(ctx); err != nil {
		log.Warn("history prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS segments (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    speaker_id TEXT NOT NULL,
    text TEXT NOT NULL,
    spoken_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_segments_session_created ON segments(session_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) registerSession(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, created_at) VALUES(?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		s.sessionID, s.clock().UTC())
	return err
}

// Append records one finalized segment. The in-memory view always gets the
// entry; persistence failures are surfaced but do not roll it back, so the
// presentation layer never loses a final.
func (s *Store) Append(ctx context.Context, seg delivery.Segment) error {
	s.mu.Lock()
	s.segments = append(s.segments, seg)
	s.mu.Unlock()

	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO segments(id, session_id, speaker_id, text, spoken_at, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		seg.ID, s.sessionID, seg.SpeakerID, seg.Text, seg.Timestamp.UTC(), s.clock().UTC())
	return err
}

// Segments returns a copy of the current session's transcript in arrival
// order.
func (s *Store) Segments() []delivery.Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]delivery.Segment, len(s.segments))
	copy(out, s.segments)
	return out
}

// ListSession retrieves up to limit persisted segments for a session,
// ordered ascending by insertion time.
func (s *Store) ListSession(ctx context.Context, sessionID string, limit int) ([]delivery.Segment, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, speaker_id, text, spoken_at
		 FROM segments WHERE session_id = ? ORDER BY created_at ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var segments []delivery.Segment
	for rows.Next() {
		var seg delivery.Segment
		var spoken string
		if err := rows.Scan(&seg.ID, &seg.SpeakerID, &seg.Text, &spoken); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, spoken); err == nil {
			seg.Timestamp = ts
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// Prune applies the configured retention policy.
func (s *Store) Prune(ctx context.Context) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour).UTC()
		if _, err = tx.ExecContext(ctx, `DELETE FROM segments WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// Close releases the underlying database, if any.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
