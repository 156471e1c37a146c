package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// redisBus is the production Bus, backed by Redis Pub/Sub. It generalizes
// the teacher's internal/realtime/bus/redis_bus.go -- which publishes a
// single fixed SSE channel -- into an arbitrary-subject pub/sub client,
// since the coordination engine needs dozens of per-worker subjects
// rather than one.
type redisBus struct {
	rdb *goredis.Client

	mu   sync.Mutex
	subs map[*redisSub]struct{}
}

// NewRedis dials addr and returns a Bus, failing fast if Redis is
// unreachable.
func NewRedis(addr string) (Bus, error) {
	if addr == "" {
		return nil, fmt.Errorf("bus: missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("bus: redis ping: %w", err)
	}
	return &redisBus{rdb: rdb, subs: make(map[*redisSub]struct{})}, nil
}

func (b *redisBus) Publish(ctx context.Context, subject string, data []byte) error {
	return b.rdb.Publish(ctx, subject, data).Err()
}

type redisSub struct {
	bus *redisBus
	ps  *goredis.PubSub
	cancel context.CancelFunc
}

func (b *redisBus) Subscribe(ctx context.Context, subject string, h Handler) (Subscription, error) {
	if h == nil {
		return nil, fmt.Errorf("bus: nil handler")
	}
	ps := b.rdb.Subscribe(ctx, subject)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("bus: subscribe %s: %w", subject, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisSub{bus: b, ps: ps, cancel: cancel}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		ch := ps.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				h(Message{Subject: m.Channel, Data: []byte(m.Payload)})
			}
		}
	}()

	return sub, nil
}

func (s *redisSub) Unsubscribe() error {
	s.cancel()
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	return s.ps.Close()
}

func (b *redisBus) Close() error {
	b.mu.Lock()
	subs := make([]*redisSub, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()
	for _, s := range subs {
		_ = s.Unsubscribe()
	}
	return b.rdb.Close()
}
