package session

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type entry struct {
	mu      sync.Mutex
	session *Session
	removed bool
	info    atomic.Pointer[Info]
}

// Store keeps sessions keyed by user id. Each session has its own mutex so turns of
// one user are serialized while different users proceed in parallel.
type Store struct {
	mu                sync.RWMutex
	entries           map[string]*entry
	inactivityTimeout time.Duration
	onExpire          func(Info)
}

func NewStore(inactivityTimeout time.Duration) *Store {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Store{
		entries:           make(map[string]*entry),
		inactivityTimeout: inactivityTimeout,
	}
}

func (st *Store) SetExpireHook(hook func(Info)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.onExpire = hook
}

// Lease is exclusive access to one session. Exactly one of Release or Remove must
// be called.
type Lease struct {
	Session *Session

	store *Store
	e     *entry
	done  bool
}

// Acquire blocks until the session for userID is free and returns it locked. A
// missing session is created first and init is applied to it; created reports that.
func (st *Store) Acquire(userID string, init func(*Session)) (lease *Lease, created bool) {
	for {
		st.mu.Lock()
		e, ok := st.entries[userID]
		if !ok {
			now := time.Now().UTC()
			s := &Session{
				UserID:         userID,
				Step:           Step{Kind: StepIntro},
				CreatedAt:      now,
				LastActivityAt: now,
			}
			if init != nil {
				init(s)
			}
			e = &entry{session: s}
			info := s.Info()
			e.info.Store(&info)
			st.entries[userID] = e
			created = true
		}
		st.mu.Unlock()

		e.mu.Lock()
		if e.removed {
			// Lost a race with Remove or the janitor; start over on a fresh entry.
			e.mu.Unlock()
			created = false
			continue
		}
		return &Lease{Session: e.session, store: st, e: e}, created
	}
}

// Release records activity and unlocks the session.
func (l *Lease) Release() {
	if l.done {
		return
	}
	l.done = true
	l.Session.LastActivityAt = time.Now().UTC()
	info := l.Session.Info()
	l.e.info.Store(&info)
	l.e.mu.Unlock()
}

// Remove destroys the session while holding it, so no later turn can observe it.
func (l *Lease) Remove() {
	if l.done {
		return
	}
	l.done = true
	l.store.detach(l.Session.UserID, l.e)
	l.e.removed = true
	l.e.mu.Unlock()
}

func (st *Store) detach(userID string, e *entry) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if cur, ok := st.entries[userID]; ok && cur == e {
		delete(st.entries, userID)
	}
}

// Remove deletes a session by id, waiting for any in-flight turn on it to finish.
func (st *Store) Remove(userID string) bool {
	st.mu.Lock()
	e, ok := st.entries[userID]
	if ok {
		delete(st.entries, userID)
	}
	st.mu.Unlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
	return true
}

// Exists reports whether a live session is stored for userID.
func (st *Store) Exists(userID string) bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	_, ok := st.entries[userID]
	return ok
}

// List returns snapshots taken at the end of each session's last turn, oldest first.
func (st *Store) List() []Info {
	st.mu.RLock()
	out := make([]Info, 0, len(st.entries))
	for _, e := range st.entries {
		if info := e.info.Load(); info != nil {
			out = append(out, *info)
		}
	}
	st.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (st *Store) ActiveCount() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.entries)
}

// StartJanitor expires idle sessions until ctx is done. The returned channel is
// closed once the janitor goroutine has exited.
func (st *Store) StartJanitor(ctx context.Context, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = time.Minute
	}
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st.expireInactive()
			}
		}
	}()
	return done
}

func (st *Store) expireInactive() {
	now := time.Now().UTC()
	var expired []Info

	st.mu.Lock()
	for id, e := range st.entries {
		// A held session is mid-turn and therefore not idle.
		if !e.mu.TryLock() {
			continue
		}
		if now.Sub(e.session.LastActivityAt) >= st.inactivityTimeout {
			e.removed = true
			delete(st.entries, id)
			expired = append(expired, e.session.Info())
		}
		e.mu.Unlock()
	}
	hook := st.onExpire
	st.mu.Unlock()

	if hook != nil {
		for _, info := range expired {
			hook(info)
		}
	}
}
