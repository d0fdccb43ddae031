// Package tracking follows each user's reported position and re-runs
// organization resolution when they move far enough or the app resumes.
//
// Every session owns its state from a single goroutine. Position reports,
// lifecycle changes, permission changes and resolution results all arrive
// as messages on one inbox and are handled one at a time.
package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Nixie-Tech-LLC/minaret/internal/geo"
	"github.com/Nixie-Tech-LLC/minaret/internal/resolver"
	"github.com/rs/zerolog/log"
)

// Cadence hints handed to devices for their platform location watch.
const (
	UpdateIntervalSeconds = 10
	UpdateDistanceMeters  = 100
)

const inboxSize = 32

var (
	ErrPermissionDenied = errors.New("location permission denied")
	ErrNoFix            = errors.New("no location fix")
	ErrClosed           = errors.New("tracking session closed")
)

type Resolver interface {
	Resolve(ctx context.Context, userID string, opts resolver.Options) (*resolver.Result, error)
}

// FixRequester asks a device for a single fresh position report.
type FixRequester interface {
	RequestFix(ctx context.Context, userID string) error
}

// Listener receives every resolution outcome that is still current. It is
// called from the session goroutine and must not block.
type Listener func(userID string, res *resolver.Result, err error)

// Event is a message accepted by a session inbox.
type Event interface{ event() }

type PermissionEvent struct {
	Granted bool
}

type PositionEvent struct {
	Coordinates geo.Coordinates
}

// ResumeEvent marks the app returning to the foreground. Without
// coordinates the session waits for the next position report, up to the
// read timeout, before resolving.
type ResumeEvent struct {
	Coordinates *geo.Coordinates
}

type resolvedEvent struct {
	generation uint64
	coords     *geo.Coordinates
	res        *resolver.Result
	err        error
}

type fixTimeoutEvent struct {
	seq uint64
}

type snapshotEvent struct {
	reply chan State
}

func (PermissionEvent) event() {}
func (PositionEvent) event()   {}
func (ResumeEvent) event()     {}
func (resolvedEvent) event()   {}
func (fixTimeoutEvent) event() {}
func (snapshotEvent) event()   {}

// State is a copy of a session's tracking state.
type State struct {
	Current    *geo.Coordinates `json:"current,omitempty"`
	Ready      bool             `json:"ready"`
	Checkpoint *geo.Coordinates `json:"checkpoint,omitempty"`
	Err        error            `json:"-"`
	Result     *resolver.Result `json:"result,omitempty"`
	// Generation counts resolutions started by the session.
	Generation uint64    `json:"generation"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Session struct {
	userID      string
	resolver    Resolver
	fixes       FixRequester
	listener    Listener
	threshold   float64
	readTimeout time.Duration

	inbox  chan Event
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	// owned by the run goroutine
	state       State
	awaitingFix bool
	fixSeq      uint64
}

func (s *Session) run() {
	defer close(s.done)
	defer s.wg.Wait()
	log.Debug().Str("user_id", s.userID).Msg("tracking session started")

	for {
		select {
		case <-s.ctx.Done():
			log.Debug().Str("user_id", s.userID).Msg("tracking session stopped")
			return
		case ev := <-s.inbox:
			s.handle(ev)
		}
	}
}

// Send queues ev for the session.
func (s *Session) Send(ctx context.Context, ev Event) error {
	select {
	case s.inbox <- ev:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the state after every previously queued event has been
// handled.
func (s *Session) Snapshot(ctx context.Context) (State, error) {
	reply := make(chan State, 1)
	if err := s.Send(ctx, snapshotEvent{reply: reply}); err != nil {
		return State{}, err
	}
	select {
	case st := <-reply:
		return st, nil
	case <-s.done:
		return State{}, ErrClosed
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

func (s *Session) post(ev Event) {
	select {
	case s.inbox <- ev:
	case <-s.ctx.Done():
	}
}

func (s *Session) handle(ev Event) {
	switch ev := ev.(type) {
	case PermissionEvent:
		s.onPermission(ev)
	case PositionEvent:
		s.onPosition(ev)
	case ResumeEvent:
		s.onResume(ev)
	case fixTimeoutEvent:
		if !s.awaitingFix || ev.seq != s.fixSeq {
			return
		}
		s.awaitingFix = false
		log.Debug().Str("user_id", s.userID).Msg("no fresh fix after resume, resolving without one")
		s.resolve(nil, "resume")
	case resolvedEvent:
		s.onResolved(ev)
	case snapshotEvent:
		ev.reply <- s.state
	}
}

func (s *Session) onPermission(ev PermissionEvent) {
	s.state.UpdatedAt = time.Now()
	if ev.Granted {
		if errors.Is(s.state.Err, ErrPermissionDenied) {
			s.state.Err = nil
		}
		return
	}
	s.state.Current = nil
	s.state.Ready = true
	s.state.Err = ErrPermissionDenied
	s.emit(nil, ErrPermissionDenied)
}

func (s *Session) onPosition(ev PositionEvent) {
	c := ev.Coordinates
	if !c.Valid() {
		log.Warn().Str("user_id", s.userID).Float64("lat", c.Lat).Float64("lon", c.Lon).Msg("ignoring invalid position")
		return
	}
	s.state.Current = &c
	s.state.Ready = true
	s.state.UpdatedAt = time.Now()
	if errors.Is(s.state.Err, ErrPermissionDenied) {
		s.state.Err = nil
	}

	if s.awaitingFix {
		s.awaitingFix = false
		s.resolve(&c, "resume")
		return
	}
	if s.movedBeyondCheckpoint(c) {
		s.resolve(&c, "movement")
	}
}

func (s *Session) onResume(ev ResumeEvent) {
	if ev.Coordinates != nil && ev.Coordinates.Valid() {
		c := *ev.Coordinates
		s.state.Current = &c
		s.state.Ready = true
		s.state.UpdatedAt = time.Now()
		s.resolve(&c, "resume")
		return
	}

	s.awaitingFix = true
	s.fixSeq++
	seq := s.fixSeq
	time.AfterFunc(s.readTimeout, func() { s.post(fixTimeoutEvent{seq: seq}) })

	if s.fixes != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ctx, cancel := context.WithTimeout(s.ctx, s.readTimeout)
			defer cancel()
			if err := s.fixes.RequestFix(ctx, s.userID); err != nil {
				log.Warn().Err(err).Str("user_id", s.userID).Msg("failed to request location fix")
			}
		}()
	}
}

func (s *Session) onResolved(ev resolvedEvent) {
	if ev.generation != s.state.Generation {
		log.Debug().Str("user_id", s.userID).Uint64("generation", ev.generation).Msg("discarding superseded resolution")
		return
	}
	s.state.UpdatedAt = time.Now()
	if ev.err != nil {
		// The checkpoint stays put so the next qualifying movement retries.
		s.state.Err = ev.err
		s.emit(nil, ev.err)
		return
	}
	s.state.Err = nil
	s.state.Result = ev.res
	if ev.coords != nil {
		s.state.Checkpoint = ev.coords
	}
	s.emit(ev.res, nil)
}

// movedBeyondCheckpoint treats a missing checkpoint as always moved.
func (s *Session) movedBeyondCheckpoint(c geo.Coordinates) bool {
	if s.state.Checkpoint == nil {
		return true
	}
	return geo.Between(*s.state.Checkpoint, c) > s.threshold
}

// resolve starts a resolution in the background. Its result comes back
// through the inbox tagged with the generation it was started under.
func (s *Session) resolve(coords *geo.Coordinates, trigger string) {
	s.state.Generation++
	gen := s.state.Generation
	log.Debug().Str("user_id", s.userID).Str("trigger", trigger).Uint64("generation", gen).Msg("resolving organization")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := s.resolver.Resolve(s.ctx, s.userID, resolver.Options{Override: coords})
		s.post(resolvedEvent{generation: gen, coords: coords, res: res, err: err})
	}()
}

func (s *Session) emit(res *resolver.Result, err error) {
	if s.listener != nil {
		s.listener(s.userID, res, err)
	}
}
