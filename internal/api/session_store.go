package api

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/purposesproject7/vista-sub001/internal/filter"
)

var errSessionNotFound = errors.New("filter session not found")

type filterSession struct {
	id          string
	adminID     string
	resolver    *filter.Resolver
	unsubscribe func()
	loadErr     string
	expiresAt   time.Time
}

// sessionStore 筛选会话，空闲超时后关闭
type sessionStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]*filterSession
	now   func() time.Time
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{
		ttl:   ttl,
		items: make(map[string]*filterSession),
		now:   time.Now,
	}
}

func (s *sessionStore) put(sess *filterSession) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked(s.now())

	if sess.id == "" {
		sess.id = uuid.NewString()
	}
	sess.expiresAt = s.now().Add(s.ttl)
	s.items[sess.id] = sess
	return sess.id
}

// get 命中即续期
func (s *sessionStore) get(id string) (*filterSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked(s.now())

	sess, ok := s.items[id]
	if !ok {
		return nil, errSessionNotFound
	}
	sess.expiresAt = s.now().Add(s.ttl)
	return sess, nil
}

func (s *sessionStore) delete(id string) bool {
	s.mu.Lock()
	sess, ok := s.items[id]
	delete(s.items, id)
	s.mu.Unlock()

	if ok {
		sess.close()
	}
	return ok
}

func (s *sessionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpiredLocked(s.now())
	return len(s.items)
}

func (s *sessionStore) closeAll() {
	s.mu.Lock()
	items := s.items
	s.items = make(map[string]*filterSession)
	s.mu.Unlock()

	for _, sess := range items {
		sess.close()
	}
}

func (s *sessionStore) purgeExpiredLocked(now time.Time) {
	for k, v := range s.items {
		if now.After(v.expiresAt) {
			delete(s.items, k)
			// Close 只加自身锁，这里调用不会死锁
			v.close()
		}
	}
}

func (sess *filterSession) close() {
	if sess.unsubscribe != nil {
		sess.unsubscribe()
	}
	sess.resolver.Close()
}
