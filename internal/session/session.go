package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/protocol"
)

// State is the session lifecycle state.
type State int

const (
	// StateActive accepts chunks and turn completions.
	StateActive State = iota
	// StateCompletingTurn marks a turn in flight. Chunks are still
	// accepted and land in the next window.
	StateCompletingTurn
	// StateClosed is terminal. All operations on a closed session fail.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCompletingTurn:
		return "completing_turn"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Session is one device streaming session. The coarse registry lock is
// never held while touching a session; each session guards its own
// state with mu, and turnMu serializes turn completions.
type Session struct {
	ID            string
	DeviceID      string
	ClientVersion string
	Capabilities  protocol.Capabilities
	CreatedAt     time.Time

	buffer *Buffer

	mu           sync.Mutex
	state        State
	lastActivity time.Time
	lastSeq      map[protocol.ChunkType]int64
	turnCount    int64

	// turnMu serializes CompleteTurn per session so concurrent turn
	// requests see one drain each, never a shared snapshot.
	turnMu sync.Mutex

	// ingestMu serializes the duplicate-check/append/commit span per
	// session. Without it, concurrent retries of the same sequence
	// number all pass the duplicate check and all append.
	ingestMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

func newSession(id, deviceID, clientVersion string, caps protocol.Capabilities, buf *Buffer) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	return &Session{
		ID:            id,
		DeviceID:      deviceID,
		ClientVersion: clientVersion,
		Capabilities:  caps,
		CreatedAt:     now,
		buffer:        buf,
		state:         StateActive,
		lastActivity:  now,
		lastSeq:       make(map[protocol.ChunkType]int64),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Buffer returns the session's sensor buffer.
func (s *Session) Buffer() *Buffer {
	return s.buffer
}

// Context is cancelled when the session closes; in-flight turn work
// should abort when it fires.
func (s *Session) Context() context.Context {
	return s.ctx
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Touch records client activity for idle eviction.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// LastActivity returns the time of the most recent client activity.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// IsDuplicate reports whether seq is at or below the highest committed
// sequence number for the chunk type. Sequence spaces are independent
// per type.
func (s *Session) IsDuplicate(t protocol.ChunkType, seq int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastSeq[t]
	return ok && seq <= last
}

// CommitSeq records a successfully ingested sequence number.
func (s *Session) CommitSeq(t protocol.ChunkType, seq int64) {
	s.mu.Lock()
	if last, ok := s.lastSeq[t]; !ok || seq > last {
		s.lastSeq[t] = seq
	}
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// IngestLock serializes chunk commits on this session. Hold it across
// the duplicate re-check, the buffer mutation and CommitSeq so a
// sequence number is applied at most once.
func (s *Session) IngestLock() {
	s.ingestMu.Lock()
}

// IngestUnlock releases the ingest lock.
func (s *Session) IngestUnlock() {
	s.ingestMu.Unlock()
}

// TurnLock serializes turn completions on this session. Hold it across
// the whole drain-call-respond sequence.
func (s *Session) TurnLock() {
	s.turnMu.Lock()
}

// TurnUnlock releases the turn lock.
func (s *Session) TurnUnlock() {
	s.turnMu.Unlock()
}

// BeginTurn transitions Active -> CompletingTurn. Call with the turn
// lock held.
func (s *Session) BeginTurn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return fmt.Errorf("session %s is closed: %w", s.ID, protocol.ErrSessionNotFound)
	}
	s.state = StateCompletingTurn
	s.lastActivity = time.Now()
	return nil
}

// EndTurn transitions back to Active unless the session closed while
// the turn was in flight.
func (s *Session) EndTurn() {
	s.mu.Lock()
	if s.state == StateCompletingTurn {
		s.state = StateActive
	}
	s.turnCount++
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// TurnCount returns the number of turns completed on this session.
func (s *Session) TurnCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnCount
}

// close marks the session terminal, cancels its context and releases
// buffered data. Idempotent; reports whether this call performed the
// transition.
func (s *Session) close() bool {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return false
	}
	s.state = StateClosed
	s.mu.Unlock()

	s.cancel()
	s.buffer.Clear()
	return true
}

// Info is a read-only session snapshot for the sessions listing.
type Info struct {
	SessionID     string                `json:"session_id"`
	DeviceID      string                `json:"device_id"`
	ClientVersion string                `json:"client_version"`
	Capabilities  protocol.Capabilities `json:"capabilities"`
	State         string                `json:"state"`
	CreatedAt     time.Time             `json:"created_at"`
	LastActivity  time.Time             `json:"last_activity"`
	TurnCount     int64                 `json:"turn_count"`
	Buffer        BufferStats           `json:"buffer"`
}

// Snapshot returns a read-only view of the session.
func (s *Session) Snapshot() Info {
	s.mu.Lock()
	state := s.state
	last := s.lastActivity
	turns := s.turnCount
	s.mu.Unlock()

	return Info{
		SessionID:     s.ID,
		DeviceID:      s.DeviceID,
		ClientVersion: s.ClientVersion,
		Capabilities:  s.Capabilities,
		State:         state.String(),
		CreatedAt:     s.CreatedAt,
		LastActivity:  last,
		TurnCount:     turns,
		Buffer:        s.buffer.Stats(),
	}
}
