// Package dedup drops webhook events that the messaging provider delivers
// more than once.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agenda_os/backend/internal/models"
	"github.com/agenda_os/backend/internal/utils"
)

const (
	DefaultTTL        = 2 * time.Minute
	DefaultMaxEntries = 10000
)

// Store keeps the last time each key was recorded.
type Store interface {
	Get(ctx context.Context, key string) (time.Time, bool, error)
	Put(ctx context.Context, key string, at time.Time) error
	// Add records key at the given time only when it is absent and reports
	// whether it did. It is atomic across everything sharing the store.
	Add(ctx context.Context, key string, at time.Time) (bool, error)
	Delete(ctx context.Context, key string) error
	// Prune drops entries recorded before cutoff.
	Prune(ctx context.Context, cutoff time.Time) error
}

type Guard struct {
	Store  Store
	TTL    time.Duration
	Logger zerolog.Logger
	Now    func() time.Time

	mu        sync.Mutex
	startedAt time.Time
}

func NewGuard(store Store, ttl time.Duration, logger zerolog.Logger) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	g := &Guard{Store: store, TTL: ttl, Logger: logger}
	g.startedAt = g.now()
	return g
}

func (g *Guard) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// Seen reports whether key was already recorded within the TTL by this
// process. Either way the key is recorded at now, so a provider that keeps
// redelivering stays suppressed.
func (g *Guard) Seen(ctx context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if err := g.Store.Prune(ctx, now.Add(-g.TTL)); err != nil {
		return false, err
	}
	added, err := g.Store.Add(ctx, key, now)
	if err != nil {
		return false, err
	}
	if added {
		return false, nil
	}
	at, ok, err := g.Store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if ok && !at.Before(g.startedAt) && now.Sub(at) < g.TTL {
		g.Logger.Debug().Str("key", key).Time("last_seen", at).Msg("duplicate event dropped")
		if err := g.Store.Put(ctx, key, now); err != nil {
			g.Logger.Warn().Err(err).Str("key", key).Msg("dedup refresh failed")
		}
		return true, nil
	}
	return false, g.Store.Put(ctx, key, now)
}

// Forget drops key so a redelivery of an event whose turn failed is
// processed again.
func (g *Guard) Forget(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Store.Delete(ctx, key)
}

// KeyFor derives the dedup key of an inbound message: the provider message
// id when present, the content key otherwise, always scoped by sender.
func KeyFor(msg models.InboundMessage) string {
	if msg.MessageID != "" {
		return msg.Sender + "|id:" + msg.MessageID
	}
	return msg.Sender + "|body:" + ContentKey(msg.Text)
}

// ContentKey maps bodies that mean the same thing to one key. A body that
// holds exactly eleven digits (a CPF, however punctuated) reduces to the
// digits; anything else is folded.
func ContentKey(text string) string {
	if d := utils.OnlyDigits(text); len(d) == 11 {
		return d
	}
	return utils.Fold(text)
}
