package brain

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weitingchou/jagereye/internal/bus"
	"github.com/weitingchou/jagereye/internal/domain"
	"github.com/weitingchou/jagereye/internal/eventagent"
	"github.com/weitingchou/jagereye/internal/eventstore"
	"github.com/weitingchou/jagereye/internal/platform/logger"
	"github.com/weitingchou/jagereye/internal/store"
	"github.com/weitingchou/jagereye/internal/ticket"
	"github.com/weitingchou/jagereye/internal/wire"
	"github.com/weitingchou/jagereye/internal/workeragent"
)

const typename = "tripwire"

type harness struct {
	t      *testing.T
	bus    bus.Bus
	store  store.Store
	worker *workeragent.Agent
	ticket *ticket.Agent
	coord  *Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := bus.NewMemory()
	s := store.NewMemory()
	log, err := logger.New("test")
	require.NoError(t, err)

	workerAgent := workeragent.New(typename, s)
	ticketAgent := ticket.New(s)
	eventAgent := eventagent.New(s, eventstore.NewMemory(), nil, log)

	coord := New(Config{Typename: typename, ExamineInterval: 50 * time.Millisecond, ExamineThreshold: 100 * time.Millisecond}, b, workerAgent, ticketAgent, eventAgent, nil, log)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = coord.Run(ctx)
	}()
	time.Sleep(10 * time.Millisecond)

	t.Cleanup(cancel)
	return &harness{t: t, bus: b, store: s, worker: workerAgent, ticket: ticketAgent, coord: coord}
}

// listener subscribes to subject before the caller triggers whatever
// produces the message, then await() blocks for the first delivery.
type listener struct {
	t    *testing.T
	ch   chan []byte
	sub  bus.Subscription
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

// runHandshake drives a worker through hshake-1..config_ok, asserting a
// pending ticket is injected into the config dispatch along the way.
func runHandshake(t *testing.T, h *harness, workerID string) {
	t.Helper()
	chToBrain := "ch_" + workerID + "_brain"
	chToWorker := "ch_brain_" + workerID

	hshake2L := listen(t, h.bus, chToWorker)
	defer hshake2L.close()

	publish(t, h.bus, "ch_brain", wire.WorkerMessage{
		Verb: wire.VerbHshake1,
		Context: wire.MessageContext{
			WorkerID:   workerID,
			ChToBrain:  chToBrain,
			ChToWorker: chToWorker,
		},
	})

	var wm wire.WorkerMessage
	require.NoError(t, json.Unmarshal(hshake2L.await(time.Second), &wm))
	require.Equal(t, wire.VerbHshake2, wm.Verb)

	// The Brain subscribes to chToBrain as part of handling hshake-1; by
	// the time hshake-2 is observed that subscription is already live.
	publish(t, h.bus, chToBrain, wire.WorkerMessage{
		Verb:    wire.VerbHshake3,
		Context: wm.Context,
	})

	waitFor(t, time.Second, func() bool {
		status, _, _ := h.worker.GetStatus(context.Background(), "", workerID)
		return status == domain.StatusReady || status == domain.StatusConfig
	})

	status, _, err := h.worker.GetStatus(context.Background(), "", workerID)
	require.NoError(t, err)
	if status != domain.StatusConfig {
		return
	}

	var cfgWm wire.WorkerMessage
	require.NoError(t, json.Unmarshal(hshake2L.await(time.Second), &cfgWm))
	require.Equal(t, wire.VerbConfig, cfgWm.Verb)
	require.NotNil(t, cfgWm.Context.Ticket)

	publish(t, h.bus, chToBrain, wire.WorkerMessage{
		Verb:    wire.VerbConfigOk,
		Context: cfgWm.Context,
	})

	waitFor(t, time.Second, func() bool {
		status, _, _ := h.worker.GetStatus(context.Background(), "", workerID)
		return status == domain.StatusRunning
	})
}

func TestS1StartHappyPath(t *testing.T) {
	h := newHarness(t)

	replyL := listen(t, h.bus, "test.s1.reply")
	defer replyL.close()
	resMgrL := listen(t, h.bus, "ch_brain_res")
	defer resMgrL.close()

	publish(t, h.bus, "ch_api_brain", wire.ApiRequest{
		Command: wire.CmdStartAnalyzer,
		Params: wire.ApiParams{
			ID:     "a1",
			Type:   typename,
			Source: domain.Source{"url": "u"},
			Pipelines: []domain.Pipeline{
				{Name: "p"},
			},
		},
		ReplyTo: "test.s1.reply",
	})

	var reply wire.ApiReply
	require.NoError(t, json.Unmarshal(replyL.await(time.Second), &reply))
	require.NotNil(t, reply.Result)
	require.Equal(t, "create", reply.Result.Status)

	var resReq wire.ResMgrRequest
	require.NoError(t, json.Unmarshal(resMgrL.await(time.Second), &resReq))
	require.Equal(t, wire.CmdCreateWorker, resReq.Command)
	require.Equal(t, "a1", resReq.AnalyzerID)
	require.Equal(t, "a1", resReq.TicketID)
	resMgrL.close()

	publish(t, h.bus, "ch_res_brain", wire.ResMgrResponse{
		Command:    wire.CmdCreateWorker,
		AnalyzerID: "a1",
		Response:   &wire.ResMgrResult{WorkerID: "w1"},
	})

	waitFor(t, time.Second, func() bool {
		status, _, _ := h.worker.GetStatus(context.Background(), "a1", "")
		return status == domain.StatusInitial
	})

	runHandshake(t, h, "w1")

	status, pipelines, found, err := h.worker.GetInfo(context.Background(), "a1", "")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, domain.StatusRunning, status)
	require.Equal(t, []domain.Pipeline{{Name: "p"}}, pipelines)

	_, held, err := h.ticket.Holder(context.Background(), "a1")
	require.NoError(t, err)
	require.False(t, held)
}

func TestS2DoubleStartIsRejected(t *testing.T) {
	h := newHarness(t)

	reply1L := listen(t, h.bus, "test.s2.reply1")
	defer reply1L.close()
	resMgrL := listen(t, h.bus, "ch_brain_res")
	defer resMgrL.close()

	publish(t, h.bus, "ch_api_brain", wire.ApiRequest{
		Command: wire.CmdStartAnalyzer,
		Params: wire.ApiParams{
			ID: "a2", Type: typename,
			Source:    domain.Source{"url": "u"},
			Pipelines: []domain.Pipeline{{Name: "p"}},
		},
		ReplyTo: "test.s2.reply1",
	})
	var r1 wire.ApiReply
	require.NoError(t, json.Unmarshal(reply1L.await(time.Second), &r1))
	require.NotNil(t, r1.Result)
	require.Equal(t, "create", r1.Result.Status)
	resMgrL.await(time.Second) // the single CREATE_WORKER request for this id

	reply2L := listen(t, h.bus, "test.s2.reply2")
	defer reply2L.close()

	publish(t, h.bus, "ch_api_brain", wire.ApiRequest{
		Command: wire.CmdStartAnalyzer,
		Params: wire.ApiParams{
			ID: "a2", Type: typename,
			Source:    domain.Source{"url": "u"},
			Pipelines: []domain.Pipeline{{Name: "p"}},
		},
		ReplyTo: "test.s2.reply2",
	})
	var r2 wire.ApiReply
	require.NoError(t, json.Unmarshal(reply2L.await(time.Second), &r2))
	require.NotNil(t, r2.Error)
	require.Equal(t, wire.ReplyNotAvailable, r2.Error.Code)
}

func TestS3StopUnknownAnalyzer(t *testing.T) {
	h := newHarness(t)

	replyL := listen(t, h.bus, "test.s3.reply")
	defer replyL.close()

	publish(t, h.bus, "ch_api_brain", wire.ApiRequest{
		Command: wire.CmdStopAnalyzer,
		Params:  wire.ApiParams{ID: "ghost", Type: typename},
		ReplyTo: "test.s3.reply",
	})

	var reply wire.ApiReply
	require.NoError(t, json.Unmarshal(replyL.await(time.Second), &reply))
	require.NotNil(t, reply.Error)
	require.Equal(t, wire.ReplyNotFound, reply.Error.Code)
}

func TestS4HeartbeatTimeout(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.worker.CreateAnalyzer(context.Background(), "a3", "w3"))
	_, err := h.worker.UpdateStatus(context.Background(), "", "w3", domain.StatusRunning)
	require.NoError(t, err)
	require.NoError(t, h.worker.StartListenHeartbeat(context.Background(), "w3"))

	waitFor(t, 2*time.Second, func() bool {
		status, _, _ := h.worker.GetStatus(context.Background(), "", "w3")
		return status == domain.StatusDown
	})
}

func TestS5EventDrain(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.worker.CreateAnalyzer(context.Background(), "a4", "w4"))

	for _, evt := range []map[string]any{
		{"type": "e1", "app_name": "app", "timestamp": 1.0, "content": map[string]any{"n": 1}},
		{"type": "e2", "app_name": "app", "timestamp": 2.0, "content": map[string]any{"n": 2}},
		{"type": "e3", "app_name": "app", "timestamp": 3.0, "content": map[string]any{"n": 3}},
	} {
		data, err := json.Marshal(evt)
		require.NoError(t, err)
		require.NoError(t, h.store.RPush(context.Background(), "event:brain:w4", string(data)))
	}

	notifL := listen(t, h.bus, "ch_notification")
	defer notifL.close()

	// Dispatch the event verb directly: only the handshake path subscribes
	// a private subject, and this scenario exercises event draining alone.
	h.coord.handlePrivate(context.Background(), wire.WorkerMessage{
		Verb:    wire.VerbEvent,
		Context: wire.MessageContext{WorkerID: "w4"},
	})

	var events []eventagent.Event
	require.NoError(t, json.Unmarshal(notifL.await(time.Second), &events))
	require.Len(t, events, 3)
	require.Equal(t, "e1", events[0].Type)
	require.Equal(t, "e2", events[1].Type)
	require.Equal(t, "e3", events[2].Type)

	remaining, err := h.store.LRange(context.Background(), "event:brain:w4", 0, -1)
	require.NoError(t, err)
	require.Empty(t, remaining)

	// A subsequent drain with nothing queued writes nothing and publishes
	// nothing further.
	h.coord.handlePrivate(context.Background(), wire.WorkerMessage{
		Verb:    wire.VerbEvent,
		Context: wire.MessageContext{WorkerID: "w4"},
	})
	select {
	case <-notifL.ch:
		t.Fatal("unexpected second notification with no new events")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestS6OutOfOrderHshake3(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.worker.CreateAnalyzer(context.Background(), "a5", "w5"))

	// Exercise the hshake-3 guard directly: a hshake-3 that races ahead of
	// the worker's own hshake-1/hshake-2 round trip finds status still
	// "initial" and must be logged and dropped, never mutating state.
	h.coord.handlePrivate(context.Background(), wire.WorkerMessage{
		Verb:    wire.VerbHshake3,
		Context: wire.MessageContext{WorkerID: "w5", ChToBrain: "ch_w5_brain", ChToWorker: "ch_brain_w5"},
	})

	status, _, err := h.worker.GetStatus(context.Background(), "", "w5")
	require.NoError(t, err)
	require.Equal(t, domain.StatusInitial, status)
}
