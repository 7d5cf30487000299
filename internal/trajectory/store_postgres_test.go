package trajectory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

func TestPostgresStoreSessionLifecycle(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock, nil)
	ctx := context.Background()
	start := time.Date(2025, 11, 9, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS trajectories`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}

	mock.ExpectExec(`INSERT INTO trajectories`).
		WithArgs("s1", "lap1", start).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if err := store.CreateSession(ctx, Session{ID: "s1", Name: "lap1", StartedAt: start}); err != nil {
		t.Fatalf("create: %v", err)
	}

	mock.ExpectQuery(`SELECT id, name, started_at, ended_at\s+FROM trajectories WHERE id=\$1`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "started_at", "ended_at"}).
			AddRow("s1", "lap1", start, (*time.Time)(nil)))
	session, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !session.Active() || session.Name != "lap1" {
		t.Fatalf("unexpected session: %+v", session)
	}

	mock.ExpectExec(`UPDATE trajectories SET ended_at=\$2\s+WHERE id=\$1 AND ended_at IS NULL`).
		WithArgs("s1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := store.CloseSession(ctx, "s1", start.Add(time.Minute)); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStorePoints(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock, nil)
	ctx := context.Background()
	start := time.Date(2025, 11, 9, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO trajectory_points`).
		WithArgs("s1", start, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if err := store.AppendPoint(ctx, Point{SessionID: "s1", Timestamp: start, Angle: f64(10), AC: f64(5)}); err != nil {
		t.Fatalf("append: %v", err)
	}

	mock.ExpectQuery(`SELECT id, name, started_at, ended_at`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "started_at", "ended_at"}).
			AddRow("s1", "lap1", start, (*time.Time)(nil)))
	en := 1
	mock.ExpectQuery(`SELECT ts, angle, ac, en\s+FROM trajectory_points WHERE trajectory_id=\$1\s+ORDER BY ts, id`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"ts", "angle", "ac", "en"}).
			AddRow(start, f64(10), f64(5), &en).
			AddRow(start.Add(time.Second), f64(12), f64(6), (*int)(nil)))

	points, err := store.ListPoints(ctx, "s1")
	if err != nil {
		t.Fatalf("points: %v", err)
	}
	if len(points) != 2 || *points[1].Angle != 12 || points[1].EN != nil {
		t.Fatalf("unexpected points: %+v", points)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, name, started_at, ended_at`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	store := NewPostgresStore(mock, nil)
	if _, err := store.ListPoints(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestPostgresStoreListSessions(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	start := time.Date(2025, 11, 9, 12, 0, 0, 0, time.UTC)
	ended := start.Add(time.Minute)
	mock.ExpectQuery(`SELECT id, name, started_at, ended_at\s+FROM trajectories\s+ORDER BY started_at DESC`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "started_at", "ended_at"}).
			AddRow("s2", "lap2", start.Add(time.Hour), (*time.Time)(nil)).
			AddRow("s1", "lap1", start, &ended))

	store := NewPostgresStore(mock, nil)
	sessions, err := store.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "s2" || sessions[1].Active() {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
}

func TestPostgresStoreQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, name, started_at, ended_at`).
		WillReturnError(errStore)

	store := NewPostgresStore(mock, nil)
	if _, err := store.ListSessions(context.Background()); !errors.Is(err, errStore) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestPostgresStoreCloseCallsHook(t *testing.T) {
	closed := false
	store := NewPostgresStore(nil, func() { closed = true })
	_ = store.Close()
	if !closed {
		t.Fatalf("expected close hook")
	}
}
