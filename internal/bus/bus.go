// Package bus abstracts the message bus: publish/subscribe over named
// subjects, with a request/reply helper layered on top.
package bus

import "context"

// Message is one delivery on a subject.
type Message struct {
	Subject string
	Data    []byte
}

// Handler processes one delivered Message. Handlers run on a goroutine
// owned by the Bus implementation; they must not block indefinitely and
// must not assume anything about which goroutine invokes them.
type Handler func(Message)

// Subscription is a live subscription that can be torn down.
type Subscription interface {
	Unsubscribe() error
}

// Bus is the message bus client contract. Every subject in spec.md
// section 6.1 is just a string passed to Publish/Subscribe; the bus
// itself has no notion of Brain/Worker/API.
type Bus interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(ctx context.Context, subject string, h Handler) (Subscription, error)
	Close() error
}
