package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agenda_os/backend/internal/models"
)

const (
	sessionKeyPrefix  = "agenda:session:"
	DefaultSessionTTL = 24 * time.Hour
)

// SessionStore persists one session per normalized sender.
type SessionStore interface {
	Get(ctx context.Context, sender string) (models.Session, bool, error)
	Put(ctx context.Context, s models.Session) error
	Delete(ctx context.Context, sender string) error
}

type MemorySessions struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: map[string]models.Session{}}
}

func (m *MemorySessions) Get(_ context.Context, sender string) (models.Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sender]
	return s.Clone(), ok, nil
}

func (m *MemorySessions) Put(_ context.Context, s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Sender] = s.Clone()
	return nil
}

func (m *MemorySessions) Delete(_ context.Context, sender string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sender)
	return nil
}

// RedisSessions stores sessions as JSON with a sliding TTL, so abandoned
// conversations disappear on their own.
type RedisSessions struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessions(client *redis.Client, ttl time.Duration) *RedisSessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSessions{client: client, ttl: ttl}
}

func (r *RedisSessions) Get(ctx context.Context, sender string) (models.Session, bool, error) {
	data, err := r.client.Get(ctx, sessionKeyPrefix+sender).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Session{}, false, nil
	}
	if err != nil {
		return models.Session{}, false, err
	}
	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return models.Session{}, false, err
	}
	return s, true, nil
}

func (r *RedisSessions) Put(ctx context.Context, s models.Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, sessionKeyPrefix+s.Sender, b, r.ttl).Err()
}

func (r *RedisSessions) Delete(ctx context.Context, sender string) error {
	return r.client.Del(ctx, sessionKeyPrefix+sender).Err()
}

// senderLocks serializes turns of the same sender inside one process.
type senderLocks struct {
	mu    sync.Mutex
	locks map[string]*senderLock
}

type senderLock struct {
	mu   sync.Mutex
	refs int
}

func (l *senderLocks) lock(sender string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*senderLock{}
	}
	sl, ok := l.locks[sender]
	if !ok {
		sl = &senderLock{}
		l.locks[sender] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, sender)
		}
		l.mu.Unlock()
	}
}
