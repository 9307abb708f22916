package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/session"
)

// ErrNoSession is returned when an operation targets a session that is not mounted.
var ErrNoSession = errors.New("no live session for this exam")

type sessionKey struct {
	studentID string
	examID    string
}

type liveSession struct {
	ctrl  *session.Controller
	refs  int
	ready chan struct{}
	err   error
	// pinned is set once a REST mount holds a reference until Unmount.
	pinned bool
}

// SessionService keeps at most one live controller per (student, exam) in this process.
// Every transport that mounts a session holds a reference; the controller is closed when
// the last reference is released, or evicted once it reaches a terminal state.
type SessionService struct {
	deps session.Deps
	log  zerolog.Logger

	mu   sync.Mutex
	live map[sessionKey]*liveSession
}

// NewSessionService creates a new SessionService. deps is the template every controller
// is built from.
func NewSessionService(deps session.Deps, log zerolog.Logger) *SessionService {
	deps.Log = log
	return &SessionService{
		deps: deps,
		log:  log.With().Str("component", "session_service").Logger(),
		live: make(map[sessionKey]*liveSession),
	}
}

// Acquire mounts (or joins) the session and returns it with a release func that must be
// called exactly once.
func (s *SessionService) Acquire(ctx context.Context, studentID, examID string) (*session.Controller, func(), error) {
	key := sessionKey{studentID, examID}

	s.mu.Lock()
	ls, ok := s.live[key]
	if ok && isDone(ls.ctrl) {
		delete(s.live, key)
		ok = false
	}
	if ok {
		ls.refs++
		s.mu.Unlock()

		select {
		case <-ls.ready:
		case <-ctx.Done():
			s.release(key, ls)
			return nil, nil, ctx.Err()
		}
		if ls.err != nil {
			s.release(key, ls)
			return nil, nil, ls.err
		}
		return ls.ctrl, s.releaser(key, ls), nil
	}

	ls = &liveSession{
		ctrl:  session.NewController(s.deps, studentID, examID),
		refs:  1,
		ready: make(chan struct{}),
	}
	s.live[key] = ls
	s.mu.Unlock()

	ls.err = ls.ctrl.Start(ctx)
	close(ls.ready)

	if ls.err != nil {
		s.mu.Lock()
		if s.live[key] == ls {
			delete(s.live, key)
		}
		s.mu.Unlock()
		return nil, nil, ls.err
	}

	go s.evictWhenDone(key, ls)
	return ls.ctrl, s.releaser(key, ls), nil
}

// Mount acquires the session on behalf of a client without a long-lived connection.
// The reference it takes is held until Unmount; repeated mounts share it.
func (s *SessionService) Mount(ctx context.Context, studentID, examID string) (*session.Controller, error) {
	ctrl, release, err := s.Acquire(ctx, studentID, examID)
	if err != nil {
		return nil, err
	}

	key := sessionKey{studentID, examID}
	s.mu.Lock()
	ls, ok := s.live[key]
	keep := ok && ls.ctrl == ctrl && !ls.pinned
	if keep {
		ls.pinned = true
	}
	s.mu.Unlock()

	if !keep {
		release()
	}
	return ctrl, nil
}

// Get returns the mounted session without taking a reference.
func (s *SessionService) Get(studentID, examID string) (*session.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ls, ok := s.live[sessionKey{studentID, examID}]
	if !ok {
		return nil, ErrNoSession
	}
	select {
	case <-ls.ready:
	default:
		return nil, ErrNoSession
	}
	if ls.err != nil {
		return nil, ErrNoSession
	}
	return ls.ctrl, nil
}

// Unmount drops every reference and closes the session.
func (s *SessionService) Unmount(ctx context.Context, studentID, examID string) error {
	key := sessionKey{studentID, examID}

	s.mu.Lock()
	ls, ok := s.live[key]
	if ok {
		delete(s.live, key)
	}
	s.mu.Unlock()

	if !ok {
		return ErrNoSession
	}
	<-ls.ready
	if ls.err != nil {
		return nil
	}
	return ls.ctrl.Close(ctx)
}

// Live returns the number of mounted sessions.
func (s *SessionService) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Shutdown closes every live session. Attempts stay resumable.
func (s *SessionService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	all := make([]*liveSession, 0, len(s.live))
	for k, ls := range s.live {
		all = append(all, ls)
		delete(s.live, k)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, ls := range all {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-ls.ready:
			case <-ctx.Done():
				return
			}
			if ls.err == nil {
				ls.ctrl.Close(ctx)
			}
		}()
	}
	wg.Wait()
	s.log.Info().Int("count", len(all)).Msg("Live sessions closed")
}

func (s *SessionService) releaser(key sessionKey, ls *liveSession) func() {
	var once sync.Once
	return func() {
		once.Do(func() { s.release(key, ls) })
	}
}

func (s *SessionService) release(key sessionKey, ls *liveSession) {
	s.mu.Lock()
	ls.refs--
	last := ls.refs <= 0
	if last && s.live[key] == ls {
		delete(s.live, key)
	}
	s.mu.Unlock()

	if !last {
		return
	}
	select {
	case <-ls.ready:
		if ls.err == nil {
			ls.ctrl.Close(context.Background())
		}
	default:
	}
}

func (s *SessionService) evictWhenDone(key sessionKey, ls *liveSession) {
	<-ls.ctrl.Done()
	s.mu.Lock()
	if s.live[key] == ls {
		delete(s.live, key)
	}
	s.mu.Unlock()
}

func isDone(c *session.Controller) bool {
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}
