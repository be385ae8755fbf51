package casefile

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Session is the narrow get/commit view of one conversation's case file.
type Session interface {
	ID() string
	Get() (CaseFile, bool)
	// Commit atomically replaces the stored case file. It fails if next would
	// break an invariant relative to the current value.
	Commit(next CaseFile) error
}

type session struct {
	id string

	// turn is held by the dispatcher for a whole conversational turn.
	turn sync.Mutex

	mu      sync.Mutex
	current *CaseFile
}

func (s *session) ID() string { return s.id }

func (s *session) Lock()   { s.turn.Lock() }
func (s *session) Unlock() { s.turn.Unlock() }

func (s *session) Get() (CaseFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return CaseFile{}, false
	}
	return s.current.Clone(), true
}

func (s *session) Commit(next CaseFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := Validate(s.current, next); err != nil {
		return err
	}
	stored := next.Clone()
	s.current = &stored
	return nil
}

// Reset discards the current case and stores cf as the start of a new one.
func (s *session) Reset(cf CaseFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := Validate(nil, cf); err != nil {
		return err
	}
	stored := cf.Clone()
	s.current = &stored
	return nil
}

// Sessions tracks live sessions. Idle sessions expire after the TTL and their
// case files are dropped with them.
type Sessions struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, *session]
}

const (
	defaultMaxSessions = 4096
	defaultSessionTTL  = 2 * time.Hour
)

func NewSessions(maxSessions int, ttl time.Duration) *Sessions {
	if maxSessions <= 0 {
		maxSessions = defaultMaxSessions
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Sessions{cache: expirable.NewLRU[string, *session](maxSessions, nil, ttl)}
}

// Open returns the session for id, creating an empty one if needed.
func (s *Sessions) Open(id string) (Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("casefile: session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.cache.Get(id); ok {
		return sess, nil
	}
	sess := &session{id: id}
	s.cache.Add(id, sess)
	return sess, nil
}

func (s *Sessions) Lookup(id string) (Session, bool) {
	sess, ok := s.cache.Get(strings.TrimSpace(id))
	if !ok {
		return nil, false
	}
	return sess, true
}

func (s *Sessions) Drop(id string) {
	s.cache.Remove(strings.TrimSpace(id))
}

func (s *Sessions) Len() int { return s.cache.Len() }

// Reset starts a new case in sess, replacing whatever it held.
func Reset(sess Session, cf CaseFile) error {
	if r, ok := sess.(interface{ Reset(CaseFile) error }); ok {
		return r.Reset(cf)
	}
	return fmt.Errorf("casefile: session %s cannot be reset", sess.ID())
}

// Lock serializes turns on sess and returns the matching unlock. The lock
// lives on the session, so it is released with it when the session expires.
func Lock(sess Session) (unlock func()) {
	l, ok := sess.(sync.Locker)
	if !ok {
		return func() {}
	}
	l.Lock()
	return l.Unlock
}

// Detached returns a standalone session not tracked by any registry. It is
// used for one-shot runs from the command line.
func Detached(id string) Session {
	return &session{id: id}
}
