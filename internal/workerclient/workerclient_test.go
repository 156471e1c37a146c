package workerclient

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weitingchou/jagereye/internal/bus"
	"github.com/weitingchou/jagereye/internal/domain"
	"github.com/weitingchou/jagereye/internal/pipeline"
	"github.com/weitingchou/jagereye/internal/platform/logger"
	"github.com/weitingchou/jagereye/internal/store"
	"github.com/weitingchou/jagereye/internal/wire"
)

// fakeRunner records Start/Stop calls and lets a test push events through
// the SendEvent callback it was handed.
type fakeRunner struct {
	started chan pipeline.RunParams
	stopped chan struct{}
	send    pipeline.SendEvent
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{started: make(chan pipeline.RunParams, 1), stopped: make(chan struct{}, 1)}
}

func (r *fakeRunner) Start(ctx context.Context, params pipeline.RunParams, filesDir string, send pipeline.SendEvent) error {
	r.send = send
	r.started <- params
	<-ctx.Done()
	return nil
}

func (r *fakeRunner) Stop() {
	select {
	case r.stopped <- struct{}{}:
	default:
	}
}

type listener struct {
	t   *testing.T
	ch  chan []byte
	sub bus.Subscription
}

func listen(t *testing.T, b bus.Bus, subject string) *listener {
	t.Helper()
	ch := make(chan []byte, 8)
	sub, err := b.Subscribe(context.Background(), subject, func(m bus.Message) {
		select {
		case ch <- m.Data:
		default:
		}
	})
	require.NoError(t, err)
	return &listener{t: t, ch: ch, sub: sub}
}

func (l *listener) await(timeout time.Duration) []byte {
	l.t.Helper()
	select {
	case data := <-l.ch:
		return data
	case <-time.After(timeout):
		l.t.Fatal("timed out waiting for message")
		return nil
	}
}

func (l *listener) close() { _ = l.sub.Unsubscribe() }

func publish(t *testing.T, b bus.Bus, subject string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), subject, data))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestHandshakeThroughConfigOk(t *testing.T) {
	b := bus.NewMemory()
	s := store.NewMemory()
	log, err := logger.New("test")
	require.NoError(t, err)

	runner := newFakeRunner()
	registry := pipeline.NewRegistry()
	registry.Register("tripwire", func() pipeline.Runner { return runner })

	hshake1L := listen(t, b, "ch_brain")
	defer hshake1L.close()

	client := New(Config{Name: "tripwire_worker", WorkerID: "w1", SharedDir: "/tmp", HeartbeatInterval: 20 * time.Millisecond, PipelineName: "tripwire"}, b, s, registry, nil, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = client.Run(ctx) }()

	var hs1 wire.WorkerMessage
	require.NoError(t, json.Unmarshal(hshake1L.await(time.Second), &hs1))
	require.Equal(t, wire.VerbHshake1, hs1.Verb)
	require.Equal(t, "w1", hs1.Context.WorkerID)
	require.Equal(t, "ch_w1_brain", hs1.Context.ChToBrain)
	require.Equal(t, "ch_brain_w1", hs1.Context.ChToWorker)

	hs3L := listen(t, b, hs1.Context.ChToBrain)
	defer hs3L.close()

	publish(t, b, hs1.Context.ChToWorker, wire.WorkerMessage{Verb: wire.VerbHshake2, Context: hs1.Context})

	var hs3 wire.WorkerMessage
	require.NoError(t, json.Unmarshal(hs3L.await(time.Second), &hs3))
	require.Equal(t, wire.VerbHshake3, hs3.Verb)

	waitFor(t, time.Second, func() bool { return client.getStatus() == domain.StatusReady })

	var hbeat wire.WorkerMessage
	require.NoError(t, json.Unmarshal(hs3L.await(time.Second), &hbeat))
	require.Equal(t, wire.VerbHbeat, hbeat.Verb)

	ticket := wire.TicketPayload{
		TicketID: "a1",
		Request: wire.ApiRequest{
			Params: wire.ApiParams{
				Source:    domain.Source{"url": "rtsp://cam"},
				Pipelines: []domain.Pipeline{{Name: "tripwire"}},
			},
		},
	}
	cfgCtx := hs1.Context
	cfgCtx.Ticket = &ticket
	publish(t, b, hs1.Context.ChToWorker, wire.WorkerMessage{Verb: wire.VerbConfig, Context: cfgCtx})

	params := <-runner.started
	require.Equal(t, "rtsp://cam", params.Source.URL())
	require.Equal(t, []domain.Pipeline{{Name: "tripwire"}}, params.Pipelines)

	var configOk wire.WorkerMessage
	found := false
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !found {
		data := hs3L.await(2 * time.Second)
		require.NoError(t, json.Unmarshal(data, &configOk))
		if configOk.Verb == wire.VerbConfigOk {
			found = true
		}
	}
	require.True(t, found, "expected a config_ok among the messages received")

	waitFor(t, time.Second, func() bool { return client.getStatus() == domain.StatusRunning })

	eventL := listen(t, b, hs1.Context.ChToBrain)
	defer eventL.close()
	runner.send("motion", 123.0, map[string]any{"n": 1})

	var evtMsg wire.WorkerMessage
	evtFound := false
	evtDeadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(evtDeadline) && !evtFound {
		require.NoError(t, json.Unmarshal(eventL.await(2*time.Second), &evtMsg))
		if evtMsg.Verb == wire.VerbEvent {
			evtFound = true
		}
	}
	require.True(t, evtFound, "expected an event verb message among the messages received")

	raw, err := s.LRange(context.Background(), queueKey("w1"), 0, -1)
	require.NoError(t, err)
	require.Len(t, raw, 1)

	var stored wireEvent
	require.NoError(t, json.Unmarshal([]byte(raw[0]), &stored))
	require.Equal(t, "motion", stored.Type)
	require.Equal(t, "tripwire_worker", stored.AppName)

	cancel()
	waitFor(t, time.Second, func() bool {
		select {
		case <-runner.stopped:
			return true
		default:
			return false
		}
	})
}

func TestHshake2IgnoredUnlessLocalStatusIsHshake1(t *testing.T) {
	b := bus.NewMemory()
	s := store.NewMemory()
	log, err := logger.New("test")
	require.NoError(t, err)

	registry := pipeline.NewRegistry()
	client := New(Config{WorkerID: "w2", HeartbeatInterval: time.Second, PipelineName: "none"}, b, s, registry, nil, log)

	// Directly dispatch hshake-2 before the client has ever moved out of
	// "initial" (i.e. before Run's hshake-1 publish would have fired): the
	// guard must drop it without changing status.
	client.handleMessage(context.Background(), wire.WorkerMessage{
		Verb:    wire.VerbHshake2,
		Context: wire.MessageContext{WorkerID: "w2", ChToBrain: "ch_w2_brain", ChToWorker: "ch_brain_w2"},
	})

	require.Equal(t, domain.StatusInitial, client.getStatus())
}
