package dedup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/agenda_os/backend/internal/models"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestGuard(store Store, ttl time.Duration) (*Guard, *clock) {
	c := &clock{now: time.Date(2025, 9, 22, 10, 0, 0, 0, time.UTC)}
	g := NewGuard(store, ttl, zerolog.Nop())
	g.Now = c.Now
	g.startedAt = c.Now()
	return g, c
}

func TestSeenWithinTTL(t *testing.T) {
	g, c := newTestGuard(NewMemoryStore(10), time.Minute)
	ctx := context.Background()

	if dup, err := g.Seen(ctx, "k"); err != nil || dup {
		t.Fatalf("first delivery must be fresh, got dup=%v err=%v", dup, err)
	}
	c.Advance(30 * time.Second)
	if dup, _ := g.Seen(ctx, "k"); !dup {
		t.Fatalf("redelivery within ttl must be a duplicate")
	}
	// The duplicate refreshed the entry.
	c.Advance(59 * time.Second)
	if dup, _ := g.Seen(ctx, "k"); !dup {
		t.Fatalf("redelivery within ttl of the last sight must be a duplicate")
	}
	c.Advance(61 * time.Second)
	if dup, _ := g.Seen(ctx, "k"); dup {
		t.Fatalf("entry must expire ttl after the last sight")
	}
}

func TestSeenIgnoresEntriesBeforeStart(t *testing.T) {
	store := NewMemoryStore(10)
	g, c := newTestGuard(store, time.Minute)
	ctx := context.Background()
	if err := store.Put(ctx, "k", c.Now().Add(-10*time.Second)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if dup, _ := g.Seen(ctx, "k"); dup {
		t.Fatalf("entry recorded before process start must count as fresh")
	}
	if dup, _ := g.Seen(ctx, "k"); !dup {
		t.Fatalf("second sight after restart must be a duplicate")
	}
}

func TestForgetReopensKey(t *testing.T) {
	g, _ := newTestGuard(NewMemoryStore(10), time.Minute)
	ctx := context.Background()
	_, _ = g.Seen(ctx, "k")
	if err := g.Forget(ctx, "k"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if dup, _ := g.Seen(ctx, "k"); dup {
		t.Fatalf("forgotten key must be fresh")
	}
}

func TestSeenConcurrentDeliveries(t *testing.T) {
	g, _ := newTestGuard(NewMemoryStore(10), time.Minute)
	var fresh int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dup, err := g.Seen(context.Background(), "same")
			if err == nil && !dup {
				atomic.AddInt32(&fresh, 1)
			}
		}()
	}
	wg.Wait()
	if fresh != 1 {
		t.Fatalf("expected exactly one fresh delivery, got %d", fresh)
	}
}

func TestMemoryStoreEvictsOldestInserted(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()
	base := time.Date(2025, 9, 22, 10, 0, 0, 0, time.UTC)
	_ = store.Put(ctx, "a", base)
	_ = store.Put(ctx, "b", base.Add(time.Second))
	_ = store.Put(ctx, "c", base.Add(2*time.Second))

	if _, ok, _ := store.Get(ctx, "a"); ok {
		t.Fatalf("oldest entry must be evicted")
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", store.Len())
	}
	_ = store.Prune(ctx, base.Add(2*time.Second))
	if _, ok, _ := store.Get(ctx, "b"); ok {
		t.Fatalf("b is older than the cutoff")
	}
	if _, ok, _ := store.Get(ctx, "c"); !ok {
		t.Fatalf("c is at the cutoff and must survive")
	}
}

func TestKeyFor(t *testing.T) {
	withID := models.InboundMessage{Sender: "+5511987654321", Text: "oi", MessageID: "wamid.1"}
	if KeyFor(withID) != "+5511987654321|id:wamid.1" {
		t.Fatalf("unexpected key %q", KeyFor(withID))
	}

	a := models.InboundMessage{Sender: "+5511987654321", Text: "529.982.247-25"}
	b := models.InboundMessage{Sender: "+5511987654321", Text: "52998224725"}
	if KeyFor(a) != KeyFor(b) {
		t.Fatalf("punctuated and bare cpf must share a key")
	}

	c := models.InboundMessage{Sender: "+5511987654321", Text: "Amanhã  de MANHÃ"}
	d := models.InboundMessage{Sender: "+5511987654321", Text: "amanha de manha"}
	if KeyFor(c) != KeyFor(d) {
		t.Fatalf("folded bodies must share a key")
	}

	other := models.InboundMessage{Sender: "+5521999990000", Text: "amanha de manha"}
	if KeyFor(other) == KeyFor(d) {
		t.Fatalf("keys must be scoped by sender")
	}
}
