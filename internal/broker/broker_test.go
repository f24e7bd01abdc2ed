package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/incstep-network/incstep/internal/broker/logstore"
	"github.com/incstep-network/incstep/internal/message"
)

type fakePublisher struct {
	mu   sync.Mutex
	sent []message.Message
}

func (p *fakePublisher) Send(m message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, m)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

type fakeSubscriber struct {
	msgs chan message.Message
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{msgs: make(chan message.Message, 16)}
}

func (s *fakeSubscriber) Recv(ctx context.Context) (message.Message, error) {
	select {
	case m := <-s.msgs:
		return m, nil
	case <-ctx.Done():
		return message.Message{}, ctx.Err()
	}
}

func openTestLog(t *testing.T) *logstore.Store {
	t.Helper()
	s, err := logstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("logstore.Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testConfig() Config {
	return Config{
		Models:        []string{"trade", "population"},
		MaxIncstep:    5,
		InitialYear:   2020,
		BootTimer:     200 * time.Millisecond,
		WatchdogTimer: 200 * time.Millisecond,
	}
}

func TestStatusReflectsConstructedState(t *testing.T) {
	b := New(testConfig(), nil, &fakePublisher{}, newFakeSubscriber(), openTestLog(t))
	status := b.Status()

	if status["status"] != string(message.StatusBooting) {
		t.Errorf("status[\"status\"] = %v, want %q", status["status"], message.StatusBooting)
	}
	if status["incstep"] != 1 {
		t.Errorf("status[\"incstep\"] = %v, want 1", status["incstep"])
	}
	declared, ok := status["declared"].([]string)
	if !ok || len(declared) != 2 {
		t.Errorf("status[\"declared\"] = %v, want 2 declared models", status["declared"])
	}
	if runID, _ := status["run_id"].(string); runID == "" {
		t.Error("status[\"run_id\"] should be a non-empty identifier")
	}
}

func TestEachBrokerGetsADistinctRunID(t *testing.T) {
	a := New(testConfig(), nil, &fakePublisher{}, newFakeSubscriber(), openTestLog(t))
	b := New(testConfig(), nil, &fakePublisher{}, newFakeSubscriber(), openTestLog(t))
	if a.runID == b.runID {
		t.Error("two brokers should not share a run ID")
	}
}

func TestRunShutsDownOnContextCancel(t *testing.T) {
	b := New(testConfig(), nil, &fakePublisher{}, newFakeSubscriber(), openTestLog(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}

func TestRunEmitsHeartbeats(t *testing.T) {
	pub := &fakePublisher{}
	cfg := testConfig()
	cfg.BootTimer = 5 * time.Second
	b := New(cfg, nil, pub, newFakeSubscriber(), openTestLog(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	time.Sleep(1200 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}

	if pub.count() == 0 {
		t.Error("expected at least one heartbeat status message to have been published")
	}
}

func TestWatchdogShutsDownOnBootTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.BootTimer = 100 * time.Millisecond
	b := New(cfg, nil, &fakePublisher{}, newFakeSubscriber(), openTestLog(t))

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected the boot watchdog to trigger shutdown after no models reported in")
	}
}

func TestSubscriberObservesStatusAndLogsData(t *testing.T) {
	sub := newFakeSubscriber()
	b := New(testConfig(), nil, &fakePublisher{}, sub, openTestLog(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.subscriberLoop(ctx)

	sub.msgs <- message.Message{Source: "trade", Signal: message.SignalStatus, Status: message.StatusReady, Incstep: 1}
	sub.msgs <- message.Message{
		Source: "trade", Signal: message.SignalData, Schema: "trade",
		Payload: map[string]message.Envelope{"consumption": {Data: map[string]float64{"us": 1}, Granularity: "country"}},
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if b.registry.AllReadyAt(1) && !b.logQueue.Empty() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if !b.registry.AllReadyAt(1) {
		t.Error("expected the status message to update the registry")
	}
	if b.logQueue.Empty() {
		t.Error("expected the data message to be enqueued for the log writer")
	}
}

func TestSubscriberIgnoresBootedStatus(t *testing.T) {
	sub := newFakeSubscriber()
	b := New(testConfig(), nil, &fakePublisher{}, sub, openTestLog(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.subscriberLoop(ctx)

	sub.msgs <- message.Message{Source: "trade", Signal: message.SignalStatus, Status: message.StatusBooted, Incstep: 1}
	time.Sleep(100 * time.Millisecond)

	if b.registry.TrackerComplete() {
		t.Error("a booted status from a model should be ignored, not recorded in the tracker")
	}
}
