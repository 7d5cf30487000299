package trajectory

import (
	"context"
	"errors"
	"time"

	"github.com/fiemcasals/controlador/internal/db"

	"github.com/jackc/pgx/v5"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS trajectories (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at   TIMESTAMPTZ NULL
);
CREATE INDEX IF NOT EXISTS trajectories_started_at_idx ON trajectories (started_at DESC);
CREATE TABLE IF NOT EXISTS trajectory_points (
	id            BIGSERIAL PRIMARY KEY,
	trajectory_id TEXT NOT NULL REFERENCES trajectories(id) ON DELETE CASCADE,
	ts            TIMESTAMPTZ NOT NULL,
	angle         DOUBLE PRECISION NULL,
	ac            DOUBLE PRECISION NULL,
	en            INTEGER NULL
);
CREATE INDEX IF NOT EXISTS trajectory_points_order_idx ON trajectory_points (trajectory_id, ts, id);
`

type PostgresStore struct {
	db    db.Querier
	close func()
}

// NewPostgresStore wraps q. closeFn, when non-nil, is called by Close.
func NewPostgresStore(q db.Querier, closeFn func()) *PostgresStore {
	return &PostgresStore{db: q, close: closeFn}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, postgresSchema)
	return err
}

func (s *PostgresStore) CreateSession(ctx context.Context, session Session) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO trajectories (id, name, started_at)
		VALUES ($1,$2,$3)
	`, session.ID, session.Name, session.StartedAt)
	return err
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, started_at, ended_at
		FROM trajectories WHERE id=$1
	`, id)
	var session Session
	if err := row.Scan(&session.ID, &session.Name, &session.StartedAt, &session.EndedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	return session, nil
}

func (s *PostgresStore) CloseSession(ctx context.Context, id string, endedAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE trajectories SET ended_at=$2
		WHERE id=$1 AND ended_at IS NULL
	`, id, endedAt)
	return err
}

func (s *PostgresStore) AppendPoint(ctx context.Context, p Point) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO trajectory_points (trajectory_id, ts, angle, ac, en)
		VALUES ($1,$2,$3,$4,$5)
	`, p.SessionID, p.Timestamp, p.Angle, p.AC, p.EN)
	return err
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, started_at, ended_at
		FROM trajectories
		ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var session Session
		if err := rows.Scan(&session.ID, &session.Name, &session.StartedAt, &session.EndedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *PostgresStore) ListPoints(ctx context.Context, sessionID string) ([]Point, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT ts, angle, ac, en
		FROM trajectory_points WHERE trajectory_id=$1
		ORDER BY ts, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := []Point{}
	for rows.Next() {
		p := Point{SessionID: sessionID}
		if err := rows.Scan(&p.Timestamp, &p.Angle, &p.AC, &p.EN); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *PostgresStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
