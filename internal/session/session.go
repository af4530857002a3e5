// Package session implements the Session State Machine (§4.8): per
// (playerId, matchId) lifecycle with reconnection, abandonment, and a
// stale-expiry sweep.
package session

import (
	"sync"
	"time"

	"github.com/simfleet/simfleet/internal/simerr"
)

// Status is one of the four session states of §3/§4.8.
type Status string

const (
	Active       Status = "ACTIVE"
	Disconnected Status = "DISCONNECTED"
	Expired      Status = "EXPIRED"
	Abandoned    Status = "ABANDONED"
)

// Session is a per-(playerId, matchId) membership record.
type Session struct {
	ID             int64
	PlayerID       int64
	MatchID        int64
	Status         Status
	CreatedAt      time.Time
	LastActivityAt time.Time
	DisconnectedAt time.Time
}

type key struct {
	playerID int64
	matchID  int64
}

// Store tracks every session in one container, enforcing the uniqueness
// invariant: at most one session per (playerId, matchId) at any instant.
type Store struct {
	mu     sync.Mutex
	byKey  map[key]*Session
	nextID int64
	now    func() time.Time
}

// New builds an empty session Store using time.Now for timestamps.
func New() *Store {
	return &Store{byKey: make(map[key]*Session), now: time.Now}
}

// NewWithClock builds a Store using now for every timestamp, letting tests
// control the passage of time deterministically.
func NewWithClock(now func() time.Time) *Store {
	return &Store{byKey: make(map[key]*Session), now: now}
}

// Create starts a new ACTIVE session for (playerID, matchID). A session in
// any state other than {EXPIRED, ABANDONED, absent} is rejected: an ACTIVE
// session yields CONFLICT (§4.8's "ACTIVE --create--> CONFLICT").
func (s *Store) Create(playerID, matchID int64) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{playerID, matchID}
	if existing, ok := s.byKey[k]; ok && existing.Status != Expired && existing.Status != Abandoned {
		return nil, simerr.Conflictf("session already active for player %d in match %d", playerID, matchID)
	}
	s.nextID++
	now := s.now()
	sess := &Session{
		ID:             s.nextID,
		PlayerID:       playerID,
		MatchID:        matchID,
		Status:         Active,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	s.byKey[k] = sess
	return sess, nil
}

// Disconnect moves an ACTIVE session to DISCONNECTED. A no-op (logged by
// the caller, not an error) on any other status, per §7.
func (s *Store) Disconnect(playerID, matchID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byKey[key{playerID, matchID}]
	if !ok {
		return simerr.NotFoundf("session for player %d in match %d", playerID, matchID)
	}
	if sess.Status != Active {
		return nil
	}
	sess.Status = Disconnected
	sess.DisconnectedAt = s.now()
	return nil
}

// Reconnect moves a DISCONNECTED session back to ACTIVE. Reconnecting an
// ACTIVE, EXPIRED, or ABANDONED session is rejected INVALID_STATE.
func (s *Store) Reconnect(playerID, matchID int64) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byKey[key{playerID, matchID}]
	if !ok {
		return nil, simerr.NotFoundf("session for player %d in match %d", playerID, matchID)
	}
	if sess.Status != Disconnected {
		return nil, simerr.InvalidStatef("cannot reconnect session in state %s", sess.Status)
	}
	sess.Status = Active
	sess.LastActivityAt = s.now()
	return sess, nil
}

// Abandon moves an ACTIVE session to ABANDONED.
func (s *Store) Abandon(playerID, matchID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byKey[key{playerID, matchID}]
	if !ok {
		return simerr.NotFoundf("session for player %d in match %d", playerID, matchID)
	}
	if sess.Status != Active {
		return simerr.InvalidStatef("cannot abandon session in state %s", sess.Status)
	}
	sess.Status = Abandoned
	return nil
}

// ExpireStale transitions every DISCONNECTED session whose disconnectedAt
// is older than timeout to EXPIRED, returning the count transitioned.
func (s *Store) ExpireStale(timeout time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	count := 0
	for _, sess := range s.byKey {
		if sess.Status != Disconnected {
			continue
		}
		if sess.DisconnectedAt.Add(timeout).Before(now) {
			sess.Status = Expired
			count++
		}
	}
	return count
}

// Get looks up the current session for (playerID, matchID), if any.
func (s *Store) Get(playerID, matchID int64) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byKey[key{playerID, matchID}]
	return sess, ok
}
