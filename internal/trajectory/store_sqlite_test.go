package trajectory

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/fiemcasals/controlador/internal/config"
	"github.com/fiemcasals/controlador/internal/db"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	conn, err := db.OpenSQLite(config.Config{SQLitePath: filepath.Join(t.TempDir(), "rec.sqlite")})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store := NewSQLiteStore(conn)
	t.Cleanup(func() { _ = store.Close() })
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	start := time.Date(2025, 11, 9, 12, 0, 0, 0, time.UTC)

	if err := store.CreateSession(ctx, Session{ID: "s1", Name: "lap1", StartedAt: start}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.CreateSession(ctx, Session{ID: "s2", Name: "lap2", StartedAt: start.Add(time.Hour)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	en := 1
	late := Point{SessionID: "s1", Timestamp: start.Add(2 * time.Second), Angle: f64(12), AC: f64(6), EN: &en}
	early := Point{SessionID: "s1", Timestamp: start.Add(time.Second), Angle: f64(10)}
	if err := store.AppendPoint(ctx, late); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendPoint(ctx, early); err != nil {
		t.Fatalf("append: %v", err)
	}

	points, err := store.ListPoints(ctx, "s1")
	if err != nil {
		t.Fatalf("points: %v", err)
	}
	if len(points) != 2 || *points[0].Angle != 10 || *points[1].Angle != 12 {
		t.Fatalf("unexpected order: %+v", points)
	}
	if points[0].AC != nil || points[0].EN != nil {
		t.Fatalf("absent fields must stay null")
	}
	if *points[1].EN != 1 {
		t.Fatalf("expected en=1")
	}

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "s2" {
		t.Fatalf("expected most recent first: %+v", sessions)
	}

	end := start.Add(time.Minute)
	if err := store.CloseSession(ctx, "s1", end); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := store.CloseSession(ctx, "s1", end.Add(time.Hour)); err != nil {
		t.Fatalf("close again: %v", err)
	}
	s1, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s1.EndedAt == nil || !s1.EndedAt.Equal(end) {
		t.Fatalf("end timestamp must be set once: %v", s1.EndedAt)
	}
}

func TestSQLiteStoreNotFound(t *testing.T) {
	store := newSQLiteStore(t)
	if _, err := store.GetSession(context.Background(), "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := store.ListPoints(context.Background(), "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSQLiteStoreBacksRecorder(t *testing.T) {
	store := newSQLiteStore(t)
	rec := newTestRecorder(store)
	ctx := context.Background()

	session, err := rec.Start(ctx, "c", "lap1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = rec.Point(ctx, "c", PointInput{Angle: f64(10), AC: f64(5)})
	_ = rec.Point(ctx, "c", PointInput{Angle: f64(12), AC: f64(6)})
	_ = rec.Stop(ctx, "c")

	points, err := rec.ListPoints(ctx, session.ID)
	if err != nil || len(points) != 2 {
		t.Fatalf("points: %v %d", err, len(points))
	}
}

func TestSQLiteRecorderFarFutureTimestampUsesServerTime(t *testing.T) {
	store := newSQLiteStore(t)
	rec := newTestRecorder(store)
	ctx := context.Background()

	session, err := rec.Start(ctx, "c", "lap1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := rec.Point(ctx, "c", PointInput{Angle: f64(1), TS: json.RawMessage(`"2025-11-09T11:00:00Z"`)}); err != nil {
		t.Fatalf("point: %v", err)
	}
	if err := rec.Point(ctx, "c", PointInput{Angle: f64(2), TS: json.RawMessage(`"2300-01-01T00:00:00Z"`)}); err != nil {
		t.Fatalf("point: %v", err)
	}
	if err := rec.Point(ctx, "c", PointInput{Angle: f64(3), TS: json.RawMessage(`1e11`)}); err != nil {
		t.Fatalf("point: %v", err)
	}

	points, err := rec.ListPoints(ctx, session.ID)
	if err != nil {
		t.Fatalf("points: %v", err)
	}
	if len(points) != 3 || *points[0].Angle != 1 || *points[1].Angle != 2 || *points[2].Angle != 3 {
		t.Fatalf("unexpected order: %+v", points)
	}
	for i := 1; i < len(points); i++ {
		if points[i].Timestamp.Before(points[i-1].Timestamp) {
			t.Fatalf("points not ascending: %v before %v", points[i].Timestamp, points[i-1].Timestamp)
		}
	}
	if points[1].Timestamp.Year() != 2025 || points[2].Timestamp.Year() != 2025 {
		t.Fatalf("out of range timestamps should fall back to server time: %v %v", points[1].Timestamp, points[2].Timestamp)
	}
}
