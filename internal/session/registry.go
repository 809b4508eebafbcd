package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/metrics"
	"github.com/farmountain/SmartGlass-AI-Agent-sub000/internal/protocol"
)

// ReleaseFunc is invoked after a session leaves the registry, whether by
// client close or idle eviction. Collaborators use it to release
// per-session resources they key by session id.
type ReleaseFunc func(sessionID string)

// RegistryConfig bounds registry behavior.
type RegistryConfig struct {
	IdleTimeout        time.Duration
	SweepInterval      time.Duration
	AudioWindowSeconds float64
	IMUMaxSamples      int
}

// Registry owns the id-to-session map. The registry lock guards only
// the map; per-session state lives behind each session's own mutex.
type Registry struct {
	config  RegistryConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	release ReleaseFunc

	mu       sync.RWMutex
	sessions map[string]*Session

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewRegistry creates a session registry and starts its idle sweep.
func NewRegistry(config RegistryConfig, logger *slog.Logger, m *metrics.Metrics) *Registry {
	r := &Registry{
		config:   config,
		logger:   logger,
		metrics:  m,
		sessions: make(map[string]*Session),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// SetReleaseFunc installs the post-removal hook. Must be called during
// wiring, before traffic arrives.
func (r *Registry) SetReleaseFunc(f ReleaseFunc) {
	r.release = f
}

// Create validates the init request and registers a new session.
func (r *Registry) Create(req *protocol.SessionInitRequest) (*Session, error) {
	if req.DeviceID == "" {
		return nil, fmt.Errorf("device_id is required: %w", protocol.ErrInvalidRequest)
	}
	if _, err := semver.NewVersion(req.ClientVersion); err != nil {
		return nil, fmt.Errorf("client_version %q is not valid semver: %w", req.ClientVersion, protocol.ErrInvalidRequest)
	}

	caps := protocol.DefaultCapabilities()
	if req.Capabilities != nil {
		caps = *req.Capabilities
	}

	buf := NewBuffer(r.config.AudioWindowSeconds, r.config.IMUMaxSamples)
	sess := newSession(uuid.NewString(), req.DeviceID, req.ClientVersion, caps, buf)

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()

	r.metrics.RecordSessionCreated()
	r.logger.Info("session created",
		slog.String("session_id", sess.ID),
		slog.String("device_id", sess.DeviceID),
		slog.String("client_version", sess.ClientVersion))

	return sess, nil
}

// Get returns the session or ErrSessionNotFound. Closed sessions are
// removed from the map, so a stale id resolves the same as an unknown
// one.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, protocol.ErrSessionNotFound)
	}
	return sess, nil
}

// Close removes and closes a session. The first close wins; later calls
// for the same id report not found, matching the idempotent-close
// contract on the wire (callers translate to closed=true either way).
func (r *Registry) Close(id string) (*Session, error) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, protocol.ErrSessionNotFound)
	}

	sess.close()
	r.metrics.RecordSessionClosed(time.Since(sess.CreatedAt).Seconds())
	r.logger.Info("session closed",
		slog.String("session_id", sess.ID),
		slog.String("device_id", sess.DeviceID),
		slog.Int64("turns", sess.TurnCount()))

	if r.release != nil {
		r.release(id)
	}
	return sess, nil
}

// ActiveCount returns the number of registered sessions.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns read-only views of all registered sessions.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Snapshot())
	}
	return infos
}

// Stop halts the sweep loop and closes all remaining sessions.
// Idempotent; later calls wait for the first to finish and return.
func (r *Registry) Stop() {
	r.stopOnce.Do(r.stop)
}

func (r *Registry) stop() {
	close(r.stopCh)
	<-r.doneCh

	r.mu.Lock()
	remaining := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		remaining = append(remaining, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range remaining {
		s.close()
		r.metrics.RecordSessionClosed(time.Since(s.CreatedAt).Seconds())
		if r.release != nil {
			r.release(s.ID)
		}
	}
	r.logger.Info("session registry stopped", slog.Int("closed", len(remaining)))
}

func (r *Registry) sweepLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep evicts sessions idle past the timeout. A session mid-turn
// counts as active; BeginTurn refreshes lastActivity.
func (r *Registry) sweep() {
	cutoff := time.Now().Add(-r.config.IdleTimeout)

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s.LastActivity().Before(cutoff) && s.State() != StateCompletingTurn {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.close()
		r.metrics.RecordSessionEvicted(time.Since(s.CreatedAt).Seconds())
		r.logger.Info("session evicted",
			slog.String("session_id", s.ID),
			slog.String("device_id", s.DeviceID),
			slog.Duration("idle", time.Since(s.LastActivity())))
		if r.release != nil {
			r.release(s.ID)
		}
	}
}
