package trajectory

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Timestamps are stored as Unix nanoseconds so ordering never depends on
// text formatting.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS trajectories (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	started_at_ns INTEGER NOT NULL,
	ended_at_ns   INTEGER NULL
);
CREATE INDEX IF NOT EXISTS trajectories_started_idx ON trajectories (started_at_ns DESC);
CREATE TABLE IF NOT EXISTS trajectory_points (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	trajectory_id TEXT NOT NULL REFERENCES trajectories(id) ON DELETE CASCADE,
	ts_ns         INTEGER NOT NULL,
	angle         REAL NULL,
	ac            REAL NULL,
	en            INTEGER NULL
);
CREATE INDEX IF NOT EXISTS trajectory_points_order_idx ON trajectory_points (trajectory_id, ts_ns, id);
`

// SQLiteStore is the single-box store used when the control station runs
// without a postgres server.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(conn *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: conn}
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

func (s *SQLiteStore) CreateSession(ctx context.Context, session Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trajectories (id, name, started_at_ns) VALUES (?, ?, ?)`,
		session.ID, session.Name, session.StartedAt.UnixNano())
	return err
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, started_at_ns, ended_at_ns FROM trajectories WHERE id = ?`, id)
	session, err := scanSQLiteSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return session, err
}

func (s *SQLiteStore) CloseSession(ctx context.Context, id string, endedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE trajectories SET ended_at_ns = ? WHERE id = ? AND ended_at_ns IS NULL`,
		endedAt.UnixNano(), id)
	return err
}

func (s *SQLiteStore) AppendPoint(ctx context.Context, p Point) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trajectory_points (trajectory_id, ts_ns, angle, ac, en) VALUES (?, ?, ?, ?, ?)`,
		p.SessionID, p.Timestamp.UnixNano(), p.Angle, p.AC, p.EN)
	return err
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, started_at_ns, ended_at_ns FROM trajectories ORDER BY started_at_ns DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		session, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) ListPoints(ctx context.Context, sessionID string) ([]Point, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ts_ns, angle, ac, en FROM trajectory_points WHERE trajectory_id = ? ORDER BY ts_ns, id`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := []Point{}
	for rows.Next() {
		var (
			tsNS      int64
			angle, ac sql.NullFloat64
			en        sql.NullInt64
		)
		if err := rows.Scan(&tsNS, &angle, &ac, &en); err != nil {
			return nil, err
		}
		p := Point{SessionID: sessionID, Timestamp: time.Unix(0, tsNS).UTC()}
		if angle.Valid {
			p.Angle = &angle.Float64
		}
		if ac.Valid {
			p.AC = &ac.Float64
		}
		if en.Valid {
			v := int(en.Int64)
			p.EN = &v
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSession(row rowScanner) (Session, error) {
	var (
		session   Session
		startedNS int64
		endedNS   sql.NullInt64
	)
	if err := row.Scan(&session.ID, &session.Name, &startedNS, &endedNS); err != nil {
		return Session{}, err
	}
	session.StartedAt = time.Unix(0, startedNS).UTC()
	if endedNS.Valid {
		ended := time.Unix(0, endedNS.Int64).UTC()
		session.EndedAt = &ended
	}
	return session, nil
}
