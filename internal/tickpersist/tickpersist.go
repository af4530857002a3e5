// Package tickpersist implements the bundled document-style
// TickCompleteListener from §6: one document per (container, match,
// tick) snapshot, sunk into memory and optionally appended to a
// JSON-lines file. Persistent storage backends are out of scope (see
// spec Non-goals), so this is the in-process reference sink a real
// document store would sit behind.
package tickpersist

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/simfleet/simfleet/internal/snapshot"
)

// Document is the exact snapshot document shape of §6.
type Document struct {
	ID          string                          `json:"id"`
	ContainerID int64                           `json:"containerId"`
	MatchID     int64                           `json:"matchId"`
	Tick        int64                           `json:"tick"`
	Timestamp   string                          `json:"timestamp"`
	Data        map[string]map[string][]float32 `json:"data"`
}

func toDocument(containerID int64, snap snapshot.Snapshot, now time.Time) Document {
	data := make(map[string]map[string][]float32, len(snap.Modules))
	for _, mod := range snap.Modules {
		comps := make(map[string][]float32, len(mod.Components))
		for _, c := range mod.Components {
			comps[c.Name] = c.Values
		}
		data[mod.ModuleName] = comps
	}
	return Document{
		ID:          uuid.NewString(),
		ContainerID: containerID,
		MatchID:     snap.MatchID,
		Tick:        snap.Tick,
		Timestamp:   now.UTC().Format(time.RFC3339Nano),
		Data:        data,
	}
}

// MatchSource resolves the set of matches a listener should snapshot and
// persist on every tick completion. A container supplies this from its
// match registry.
type MatchSource func() []int64

// SnapshotSource builds a Snapshot for one match at one tick. A
// container supplies this from its *snapshot.Engine.
type SnapshotSource func(matchID, tick int64) (snapshot.Snapshot, error)

// Listener is the bundled TickCompleteListener: on every completed tick
// it snapshots every active match and persists the resulting documents.
type Listener struct {
	containerID int64
	matches     MatchSource
	snapshotter SnapshotSource
	sink        *Sink
	onError     func(matchID int64, err error)
}

// New builds a Listener writing through to sink.
func New(containerID int64, matches MatchSource, snapshotter SnapshotSource, sink *Sink, onError func(matchID int64, err error)) *Listener {
	return &Listener{containerID: containerID, matches: matches, snapshotter: snapshotter, sink: sink, onError: onError}
}

// OnTickComplete implements loop.TickCompleteListener.
func (l *Listener) OnTickComplete(tickNo int64) {
	now := time.Now()
	for _, matchID := range l.matches() {
		snap, err := l.snapshotter(matchID, tickNo)
		if err != nil {
			if l.onError != nil {
				l.onError(matchID, err)
			}
			continue
		}
		doc := toDocument(l.containerID, snap, now)
		if err := l.sink.Append(doc); err != nil && l.onError != nil {
			l.onError(matchID, err)
		}
	}
}

// Sink stores documents in memory, keyed by match id, and optionally
// mirrors every append as a line of newline-delimited JSON to a file.
type Sink struct {
	mu      sync.Mutex
	byMatch map[int64][]Document
	file    *os.File
	encoder *json.Encoder
}

// NewSink builds an in-memory Sink with no file mirror.
func NewSink() *Sink {
	return &Sink{byMatch: make(map[int64][]Document)}
}

// NewFileSink builds a Sink that also appends every document as one
// JSON-lines record to path.
func NewFileSink(path string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Sink{byMatch: make(map[int64][]Document), file: f, encoder: json.NewEncoder(f)}, nil
}

// Append stores doc and, if a file mirror is configured, writes it out.
func (s *Sink) Append(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byMatch[doc.MatchID] = append(s.byMatch[doc.MatchID], doc)
	if s.encoder != nil {
		return s.encoder.Encode(doc)
	}
	return nil
}

// ForMatch returns every document persisted so far for matchID, oldest
// first.
func (s *Sink) ForMatch(matchID int64) []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Document, len(s.byMatch[matchID]))
	copy(out, s.byMatch[matchID])
	return out
}

// Latest returns the most recently appended document for matchID, if
// any.
func (s *Sink) Latest(matchID int64) (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.byMatch[matchID]
	if len(docs) == 0 {
		return Document{}, false
	}
	return docs[len(docs)-1], true
}

// Close closes the file mirror, if any.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
