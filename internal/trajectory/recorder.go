package trajectory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fiemcasals/controlador/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Recorder enforces at most one active session per operator context and
// turns incoming commands into ordered points.
//
// Calls for the same context are serialized; different contexts never
// contend beyond the map lookup. Only contexts with an active session are
// kept in the map.
type Recorder struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	contexts map[string]*contextState
}

type contextState struct {
	mu       sync.Mutex
	activeID string
	// removed is set once the state left the map; holders must look it up again.
	removed bool
}

func NewRecorder(store Store, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:    store,
		logger:   logger,
		now:      time.Now,
		contexts: map[string]*contextState{},
	}
}

// acquire returns the context's state locked, or nil when the context has
// none and create is false.
func (r *Recorder) acquire(contextID string, create bool) *contextState {
	for {
		r.mu.Lock()
		st, ok := r.contexts[contextID]
		if !ok {
			if !create {
				r.mu.Unlock()
				return nil
			}
			st = &contextState{}
			r.contexts[contextID] = st
		}
		r.mu.Unlock()

		st.mu.Lock()
		if !st.removed {
			return st
		}
		st.mu.Unlock()
	}
}

// release unlocks st, dropping it from the map when it has gone idle.
func (r *Recorder) release(contextID string, st *contextState) {
	if st.activeID == "" && !st.removed {
		r.mu.Lock()
		if r.contexts[contextID] == st {
			delete(r.contexts, contextID)
		}
		r.mu.Unlock()
		st.removed = true
	}
	st.mu.Unlock()
}

// Start closes any session still active for the context and opens a new one.
func (r *Recorder) Start(ctx context.Context, contextID, name string) (Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Session{}, &ValidationError{Msg: "name requerido"}
	}

	st := r.acquire(contextID, true)
	defer r.release(contextID, st)

	now := r.now().UTC()
	if st.activeID != "" {
		if err := r.store.CloseSession(ctx, st.activeID, now); err != nil && !errors.Is(err, ErrSessionNotFound) {
			return Session{}, fmt.Errorf("close superseded session: %w", err)
		}
		r.logger.Info().Str("context", contextID).Str("session", st.activeID).Msg("superseded active session closed")
		st.activeID = ""
	}

	session := Session{
		ID:        uuid.NewString(),
		Name:      name,
		StartedAt: now,
	}
	if err := r.store.CreateSession(ctx, session); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	st.activeID = session.ID

	metrics.RecordSessionStarted()
	r.logger.Info().Str("context", contextID).Str("session", session.ID).Str("name", name).Msg("recording started")
	return session, nil
}

// Point appends one point to the context's active session.
func (r *Recorder) Point(ctx context.Context, contextID string, in PointInput) error {
	st := r.acquire(contextID, false)
	if st == nil {
		metrics.RecordPoint("rejected")
		return ErrNoActiveSession
	}
	defer r.release(contextID, st)

	if st.activeID == "" {
		metrics.RecordPoint("rejected")
		return ErrNoActiveSession
	}

	session, err := r.store.GetSession(ctx, st.activeID)
	if errors.Is(err, ErrSessionNotFound) || (err == nil && !session.Active()) {
		r.logger.Warn().Str("context", contextID).Str("session", st.activeID).Msg("active reference no longer valid")
		st.activeID = ""
		metrics.RecordPoint("rejected")
		return ErrStaleSession
	}
	if err != nil {
		metrics.RecordPoint("error")
		return fmt.Errorf("load active session: %w", err)
	}

	ts, ok := ParseTimestamp(in.TS)
	if !ok {
		ts = r.now().UTC()
	}

	p := Point{
		SessionID: session.ID,
		Timestamp: ts,
		Angle:     in.Angle,
		AC:        in.AC,
		EN:        in.EN,
	}
	if err := r.store.AppendPoint(ctx, p); err != nil {
		metrics.RecordPoint("error")
		return fmt.Errorf("append point: %w", err)
	}
	metrics.RecordPoint("ok")
	return nil
}

// Stop ends the active session, if any. It is safe to call in any state.
func (r *Recorder) Stop(ctx context.Context, contextID string) error {
	st := r.acquire(contextID, false)
	if st == nil {
		return nil
	}
	defer r.release(contextID, st)

	if st.activeID == "" {
		return nil
	}
	if err := r.store.CloseSession(ctx, st.activeID, r.now().UTC()); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("close session: %w", err)
	}
	r.logger.Info().Str("context", contextID).Str("session", st.activeID).Msg("recording stopped")
	st.activeID = ""
	return nil
}

// Active returns the context's active session, or ok=false when idle.
func (r *Recorder) Active(ctx context.Context, contextID string) (Session, bool, error) {
	st := r.acquire(contextID, false)
	if st == nil {
		return Session{}, false, nil
	}
	defer r.release(contextID, st)

	if st.activeID == "" {
		return Session{}, false, nil
	}
	session, err := r.store.GetSession(ctx, st.activeID)
	if errors.Is(err, ErrSessionNotFound) || (err == nil && !session.Active()) {
		st.activeID = ""
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	return session, true, nil
}

func (r *Recorder) ListSessions(ctx context.Context) ([]Session, error) {
	return r.store.ListSessions(ctx)
}

func (r *Recorder) ListPoints(ctx context.Context, sessionID string) ([]Point, error) {
	return r.store.ListPoints(ctx, sessionID)
}
