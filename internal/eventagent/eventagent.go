// Package eventagent drains a worker's event queue and persists validated
// events.
package eventagent

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/weitingchou/jagereye/internal/eventstore"
	"github.com/weitingchou/jagereye/internal/observability"
	"github.com/weitingchou/jagereye/internal/platform/logger"
	"github.com/weitingchou/jagereye/internal/store"
)

//go:embed schema/base_event.json
var baseEventSchemaJSON []byte

var baseEventSchema = gojsonschema.NewBytesLoader(baseEventSchemaJSON)

func queueKey(workerID string) string {
	return fmt.Sprintf("event:brain:%s", workerID)
}

// Agent drains per-worker event queues and writes validated events to
// persistent storage.
type Agent struct {
	store   store.Store
	db      eventstore.Store
	metrics *observability.Metrics
	log     *logger.Logger
}

// New returns an event Agent. metrics may be nil.
func New(s store.Store, db eventstore.Store, metrics *observability.Metrics, log *logger.Logger) *Agent {
	return &Agent{store: s, db: db, metrics: metrics, log: log.With("component", "eventagent")}
}

// Event is the wire shape a worker publishes into its event queue.
type Event struct {
	Type      string         `json:"type"`
	AppName   string         `json:"app_name"`
	Timestamp json.Number    `json:"timestamp"`
	Content   map[string]any `json:"content"`
}

// ConsumeFromWorker reads the full event queue for workerID and trims off
// exactly the entries it read. The read and the trim are two separate
// store calls, not atomic; trimming only the count actually read is what
// keeps a concurrent producer's append from being lost.
func (a *Agent) ConsumeFromWorker(ctx context.Context, workerID string) ([]Event, error) {
	key := queueKey(workerID)
	raw, err := a.store.LRange(ctx, key, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("eventagent: lrange %s: %w", key, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	if err := a.store.LTrim(ctx, key, int64(len(raw)), -1); err != nil {
		return nil, fmt.Errorf("eventagent: ltrim %s: %w", key, err)
	}

	events := make([]Event, 0, len(raw))
	for i, item := range raw {
		var e Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			a.log.Warn("dropping malformed event", "worker_id", workerID, "index", i, "error", err)
			if a.metrics != nil {
				a.metrics.EventDropped(workerID, "malformed_json")
			}
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// SaveInDB validates each event against the base event schema, stamps it
// with the analyzer id and a derived date, and persists the content
// sub-document plus the base index document. Events that fail validation
// are logged and dropped individually; the rest are still saved.
func (a *Agent) SaveInDB(ctx context.Context, events []Event, analyzerID, workerID string) error {
	if len(events) == 0 {
		return nil
	}

	contents := make([]map[string]any, len(events))
	for i, e := range events {
		contents[i] = e.Content
	}
	contentIDs, err := a.db.InsertContents(ctx, contents)
	if err != nil {
		a.log.Error("failed to save event contents", "analyzer_id", analyzerID, "error", err)
		return fmt.Errorf("eventagent: insert contents: %w", err)
	}

	var valid []eventstore.BaseEvent
	for i, e := range events {
		ts, err := e.Timestamp.Float64()
		if err != nil {
			a.log.Warn("dropping event with non-numeric timestamp", "analyzer_id", analyzerID, "error", err)
			if a.metrics != nil {
				a.metrics.EventDropped(workerID, "invalid_timestamp")
			}
			continue
		}
		candidate := map[string]any{
			"analyzerId": analyzerID,
			"timestamp":  ts,
			"type":       e.Type,
			"appName":    e.AppName,
			"content":    contentIDs[i],
		}
		result, err := gojsonschema.Validate(baseEventSchema, gojsonschema.NewGoLoader(candidate))
		if err != nil {
			a.log.Error("schema validation error", "analyzer_id", analyzerID, "error", err)
			if a.metrics != nil {
				a.metrics.EventDropped(workerID, "schema_error")
			}
			continue
		}
		if !result.Valid() {
			a.log.Warn("event failed schema validation", "analyzer_id", analyzerID, "errors", result.Errors())
			if a.metrics != nil {
				a.metrics.EventDropped(workerID, "schema_invalid")
			}
			continue
		}
		valid = append(valid, eventstore.BaseEvent{
			AnalyzerID: analyzerID,
			Type:       e.Type,
			AppName:    e.AppName,
			Timestamp:  ts,
			Date:       time.Unix(int64(ts), 0),
			ContentID:  contentIDs[i],
		})
	}
	if len(valid) == 0 {
		return nil
	}
	if err := a.db.InsertBaseEvents(ctx, valid); err != nil {
		a.log.Error("failed to save base events", "analyzer_id", analyzerID, "error", err)
		return fmt.Errorf("eventagent: insert base events: %w", err)
	}
	return nil
}
