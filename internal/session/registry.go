package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Registry is the concurrent-safe store of live sessions. It enforces a
// per-caller session cap and reaps sessions untouched past their TTL.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	maxPerCaller int
	ttl          time.Duration
	logger       *slog.Logger

	// onReap is invoked (outside the lock) for every reaped session.
	onReap func(*Session)
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// WithOnReap registers a callback fired for each session the reaper
// removes.
func WithOnReap(fn func(*Session)) RegistryOption {
	return func(r *Registry) { r.onReap = fn }
}

// NewRegistry creates a Registry. maxPerCaller <= 0 disables the cap;
// ttl <= 0 disables reaping.
func NewRegistry(maxPerCaller int, ttl time.Duration, opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions:     make(map[string]*Session),
		maxPerCaller: maxPerCaller,
		ttl:          ttl,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Create stores a new session. It rejects a duplicate live identifier
// with a ConflictError and a caller over the cap with a CapacityError.
func (r *Registry) Create(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID]; exists {
		return &ConflictError{ID: s.ID}
	}

	if r.maxPerCaller > 0 {
		live := 0
		for _, existing := range r.sessions {
			if existing.Caller == s.Caller && !existing.State().Terminal() {
				live++
			}
		}
		if live >= r.maxPerCaller {
			return &CapacityError{Caller: s.Caller, Limit: live}
		}
	}

	r.sessions[s.ID] = s
	return nil
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return s, nil
}

// Delete removes a session. Deleting an unknown id is a no-op.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// ListActive returns snapshots of all non-terminal sessions, ordered by
// creation time.
func (r *Registry) ListActive() []Snapshot {
	r.mu.RLock()
	var active []*Session
	for _, s := range r.sessions {
		if !s.State().Terminal() {
			active = append(active, s)
		}
	}
	r.mu.RUnlock()

	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt().Before(active[j].CreatedAt())
	})

	snaps := make([]Snapshot, len(active))
	for i, s := range active {
		snaps[i] = s.Snapshot()
	}
	return snaps
}

// Len returns the total number of stored sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// RunReaper sweeps expired sessions at the given interval until ctx is
// cancelled. A session expires when untouched for longer than the TTL;
// running sessions are cancelled first and collected on a later sweep
// once their cycle observes the flag.
func (r *Registry) RunReaper(ctx context.Context, interval time.Duration) {
	if r.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Reap(time.Now())
		}
	}
}

// Reap removes sessions untouched since before now-ttl and returns how
// many were removed.
func (r *Registry) Reap(now time.Time) int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := now.Add(-r.ttl)

	r.mu.Lock()
	var reaped []*Session
	for id, s := range r.sessions {
		if !s.UpdatedAt().Before(cutoff) {
			continue
		}
		if !s.State().Terminal() && !s.TryAcquire() {
			// A cycle is in flight; ask it to stop and retry next sweep.
			s.Cancel()
			continue
		}
		delete(r.sessions, id)
		reaped = append(reaped, s)
	}
	r.mu.Unlock()

	for _, s := range reaped {
		r.logger.Info("reaped abandoned session",
			slog.String("session_id", s.ID),
			slog.String("state", string(s.State())))
		if r.onReap != nil {
			r.onReap(s)
		}
	}
	return len(reaped)
}
