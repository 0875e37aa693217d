package sessions

import (
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-discord-auth/internal/errors"
	"github.com/pkg/errors"
)

// InMemoryRepo keeps sessions in a map. Expired sessions are removed when
// they are read or by Sweep.
type InMemoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

type InMemoryRepoOption func(*InMemoryRepo)

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(now func() time.Time) InMemoryRepoOption {
	return func(r *InMemoryRepo) {
		r.now = now
	}
}

func NewInMemoryRepo(opts ...InMemoryRepoOption) *InMemoryRepo {
	r := &InMemoryRepo{
		sessions: make(map[string]Session),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *InMemoryRepo) Upsert(session Session) error {
	if session.ID == "" {
		return errors.New("[InMemoryRepo.Upsert] session id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	return nil
}

func (r *InMemoryRepo) Get(sessionID string) (Session, error) {
	if sessionID == "" {
		return Session{}, errors.Wrap(apperrors.ErrSessionNotFound, "[InMemoryRepo.Get] session id is required")
	}

	r.mu.RLock()
	session, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return Session{}, errors.Wrapf(apperrors.ErrSessionNotFound, "[InMemoryRepo.Get] %s", sessionID)
	}

	if session.Expired(r.now()) {
		_ = r.Delete(sessionID)
		return Session{}, errors.Wrapf(apperrors.ErrSessionExpired, "[InMemoryRepo.Get] %s", sessionID)
	}
	return session, nil
}

// Delete is a no-op for unknown ids.
func (r *InMemoryRepo) Delete(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

// Sweep removes expired sessions and returns how many were removed.
func (r *InMemoryRepo) Sweep() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, session := range r.sessions {
		if session.Expired(now) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}
