package eventagent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weitingchou/jagereye/internal/eventstore"
	"github.com/weitingchou/jagereye/internal/platform/logger"
	"github.com/weitingchou/jagereye/internal/store"
)

func newTestAgent(t *testing.T) (*Agent, *eventstore.MemoryStore) {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	db := eventstore.NewMemory()
	return New(store.NewMemory(), db, nil, log), db
}

func TestConsumeFromWorkerTrimsExactlyWhatWasRead(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAgent(t)
	s := store.NewMemory()
	a.store = s

	key := queueKey("worker-1")
	require.NoError(t, s.RPush(ctx, key, `{"type":"motion","app_name":"tripwire","timestamp":1.0,"content":{"x":1}}`))
	require.NoError(t, s.RPush(ctx, key, `{"type":"motion","app_name":"tripwire","timestamp":2.0,"content":{"x":2}}`))

	events, err := a.ConsumeFromWorker(ctx, "worker-1")
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.NoError(t, s.RPush(ctx, key, `{"type":"motion","app_name":"tripwire","timestamp":3.0,"content":{"x":3}}`))

	remaining, err := s.LRange(ctx, key, 0, -1)
	require.NoError(t, err)
	assert.Len(t, remaining, 1, "trim must not drop the concurrently appended entry")
}

func TestSaveInDBPersistsValidEvents(t *testing.T) {
	ctx := context.Background()
	a, db := newTestAgent(t)

	events := []Event{
		{Type: "motion", AppName: "tripwire", Timestamp: "1700000000.5", Content: map[string]any{"x": 1}},
	}
	require.NoError(t, a.SaveInDB(ctx, events, "anal-1", "worker-1"))

	base := db.BaseEvents()
	require.Len(t, base, 1)
	assert.Equal(t, "anal-1", base[0].AnalyzerID)
	assert.Equal(t, "motion", base[0].Type)

	content, ok := db.Content(base[0].ContentID)
	require.True(t, ok)
	assert.Equal(t, 1, content["x"])
}

func TestSaveInDBDropsEventsMissingRequiredFields(t *testing.T) {
	ctx := context.Background()
	a, db := newTestAgent(t)

	events := []Event{
		{Type: "", AppName: "tripwire", Timestamp: "1.0", Content: map[string]any{"x": 1}},
	}
	require.NoError(t, a.SaveInDB(ctx, events, "anal-1", "worker-1"))

	assert.Empty(t, db.BaseEvents())
}

func TestSaveInDBEmptyInputNoOp(t *testing.T) {
	ctx := context.Background()
	a, db := newTestAgent(t)

	require.NoError(t, a.SaveInDB(ctx, nil, "anal-1", "worker-1"))
	assert.Empty(t, db.BaseEvents())
}
