// Package eventstore persists validated events: a content sub-document
// plus a base index document that references it, mirroring the two-
// collection layout the original event pipeline used.
package eventstore

import (
	"context"
	"time"
)

// BaseEvent is the index document: everything needed to list/filter
// events without loading their (potentially large) content.
type BaseEvent struct {
	ID         string
	AnalyzerID string
	Type       string
	AppName    string
	Timestamp  float64
	Date       time.Time
	ContentID  string
}

// Store persists event content and its base index document.
type Store interface {
	// InsertContents stores each content document and returns a content
	// ID per input item, in order.
	InsertContents(ctx context.Context, contents []map[string]any) ([]string, error)
	// InsertBaseEvents stores the index documents for already-validated
	// events.
	InsertBaseEvents(ctx context.Context, events []BaseEvent) error
	Close() error
}
