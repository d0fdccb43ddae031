package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Nixie-Tech-LLC/minaret/internal/geo"
	"github.com/Nixie-Tech-LLC/minaret/internal/metrics"
	"github.com/rs/zerolog/log"
)

type Config struct {
	ThresholdMeters float64
	ReadTimeout     time.Duration
	// OnEnd, if set, runs after End so per-user state elsewhere can be
	// released. It runs even when the user had no session.
	OnEnd func(userID string)
}

// Manager owns one Session per user, started on first use.
type Manager struct {
	cfg      Config
	resolver Resolver
	fixes    FixRequester
	listener Listener

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func NewManager(cfg Config) *Manager {
	if cfg.ThresholdMeters <= 0 {
		cfg.ThresholdMeters = geo.OrgUpdateThresholdMeters
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Start binds the resolver and optional collaborators. It must be called
// before any event is dispatched. The resolver usually reads live
// locations back from this Manager, which is why it is not a constructor
// argument.
func (m *Manager) Start(r Resolver, fixes FixRequester, listener Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolver = r
	m.fixes = fixes
	m.listener = listener
}

func (m *Manager) session(userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if s, ok := m.sessions[userID]; ok {
		return s, nil
	}

	ctx, cancel := context.WithCancel(m.ctx)
	s := &Session{
		userID:      userID,
		resolver:    m.resolver,
		fixes:       m.fixes,
		listener:    m.listener,
		threshold:   m.cfg.ThresholdMeters,
		readTimeout: m.cfg.ReadTimeout,
		inbox:       make(chan Event, inboxSize),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	m.sessions[userID] = s
	metrics.TrackingSessions.Inc()

	go s.run()
	return s, nil
}

// Dispatch queues ev on the user's session, starting it if needed.
func (m *Manager) Dispatch(ctx context.Context, userID string, ev Event) error {
	s, err := m.session(userID)
	if err != nil {
		return err
	}
	return s.Send(ctx, ev)
}

func (m *Manager) Position(ctx context.Context, userID string, c geo.Coordinates) error {
	return m.Dispatch(ctx, userID, PositionEvent{Coordinates: c})
}

func (m *Manager) Resume(ctx context.Context, userID string, c *geo.Coordinates) error {
	return m.Dispatch(ctx, userID, ResumeEvent{Coordinates: c})
}

func (m *Manager) Permission(ctx context.Context, userID string, granted bool) error {
	return m.Dispatch(ctx, userID, PermissionEvent{Granted: granted})
}

// State returns the user's tracking state. Users without a session get a
// zero State.
func (m *Manager) State(ctx context.Context, userID string) (State, error) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	m.mu.Unlock()
	if !ok {
		return State{}, nil
	}
	return s.Snapshot(ctx)
}

// Current reports the latest known position of the user.
func (m *Manager) Current(ctx context.Context, userID string) (geo.Coordinates, error) {
	st, err := m.State(ctx, userID)
	if err != nil {
		return geo.Coordinates{}, err
	}
	if st.Current == nil {
		if errors.Is(st.Err, ErrPermissionDenied) {
			return geo.Coordinates{}, ErrPermissionDenied
		}
		return geo.Coordinates{}, ErrNoFix
	}
	return *st.Current, nil
}

// End stops the user's session, for example when the app is closed.
func (m *Manager) End(userID string) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if ok {
		m.stop(s)
	}
	if m.cfg.OnEnd != nil {
		m.cfg.OnEnd(userID)
	}
}

// Close stops every session and rejects further events.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	m.cancel()
	for _, s := range sessions {
		<-s.done
		metrics.TrackingSessions.Dec()
	}
	log.Info().Int("sessions", len(sessions)).Msg("tracking manager closed")
}

func (m *Manager) stop(s *Session) {
	s.cancel()
	<-s.done
	metrics.TrackingSessions.Dec()
}
