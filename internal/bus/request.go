package bus

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// inboxSeq gives each Request call a unique, process-local inbox subject.
var inboxSeq uint64

// NewInbox mints a reply subject unique to this process, used as the
// ReplyTo field on a request message. The underlying bus has no native
// request/reply primitive (unlike NATS), so every requester subscribes to
// its own inbox subject and every responder is expected to publish its
// answer there.
func NewInbox(prefix string) string {
	n := atomic.AddUint64(&inboxSeq, 1)
	return fmt.Sprintf("%s.inbox.%d.%d", prefix, time.Now().UnixNano(), n)
}

// Request publishes data to subject with a fresh inbox as its implicit
// reply address, then waits up to timeout for exactly one reply on that
// inbox. build must stamp the inbox into the outgoing payload (the
// wire envelope's ReplyTo field) before Request sends it.
func Request(ctx context.Context, b Bus, subject string, build func(replyTo string) ([]byte, error), timeout time.Duration) ([]byte, error) {
	inbox := NewInbox(subject)

	replies := make(chan []byte, 1)
	sub, err := b.Subscribe(ctx, inbox, func(m Message) {
		select {
		case replies <- m.Data:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("bus: request subscribe inbox: %w", err)
	}
	defer sub.Unsubscribe()

	payload, err := build(inbox)
	if err != nil {
		return nil, fmt.Errorf("bus: request build payload: %w", err)
	}
	if err := b.Publish(ctx, subject, payload); err != nil {
		return nil, fmt.Errorf("bus: request publish: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case data := <-replies:
		return data, nil
	case <-timer.C:
		return nil, fmt.Errorf("bus: request to %s timed out after %s", subject, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
