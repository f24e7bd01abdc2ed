package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/incstep-network/incstep/internal/domain"
	"github.com/incstep-network/incstep/internal/graph"
	"github.com/incstep-network/incstep/internal/message"
	"github.com/incstep-network/incstep/internal/schema"
)

const envelopeSchemaJSON = `{
  "type": "object",
  "properties": {
    "consumption": {
      "type": "object",
      "properties": {"data": {"type": "object"}, "granularity": {"type": "string"}},
      "required": ["data", "granularity"]
    }
  },
  "required": ["consumption"]
}`

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

func (p *fakePublisher) snapshot() []message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]message.Message, len(p.sent))
	copy(out, p.sent)
	return out
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

type fakeModel struct {
	mu         sync.Mutex
	configured map[string]interface{}
	increments int
	lastInputs map[string]map[string]message.Envelope
}

func (m *fakeModel) Configure(initialConditions map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configured = initialConditions
	return nil
}

func (m *fakeModel) Increment(inputs map[string]map[string]message.Envelope) (
	outputs map[string]map[string]message.Envelope,
	htmlFiles map[string]string,
	byteFiles map[string][]byte,
	err error,
) {
	m.mu.Lock()
	m.increments++
	m.lastInputs = inputs
	m.mu.Unlock()
	outputs = map[string]map[string]message.Envelope{
		"trade_out": {"consumption": {Data: map[string]float64{"us": 1}, Granularity: "country"}},
	}
	return outputs, nil, nil, nil
}

func writeSchema(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".json"), []byte(envelopeSchemaJSON), 0o644); err != nil {
		t.Fatalf("write schema fixture: %v", err)
	}
}

func testRegistries(t *testing.T) (*schema.Registry, *schema.Registry) {
	t.Helper()
	inDir, outDir := t.TempDir(), t.TempDir()
	writeSchema(t, inDir, "trade_in")
	writeSchema(t, outDir, "trade_out")

	in, err := schema.LoadDir(inDir)
	if err != nil {
		t.Fatalf("LoadDir(in) error: %v", err)
	}
	out, err := schema.LoadDir(outDir)
	if err != nil {
		t.Fatalf("LoadDir(out) error: %v", err)
	}
	return in, out
}

func newTestWrapper(t *testing.T, model Model, numInputs int, pub Publisher, sub Subscriber) *Wrapper {
	t.Helper()
	in, out := testRegistries(t)
	return New("trade", numInputs, model, graph.NewAbstractGraph(), graph.NewInstanceGraph(), in, out, pub, sub)
}

func TestStatusBeforeRun(t *testing.T) {
	w := newTestWrapper(t, &fakeModel{}, 1, &fakePublisher{}, newFakeSubscriber())
	status := w.Status()
	if status["model_id"] != "trade" {
		t.Errorf("status[model_id] = %v, want trade", status["model_id"])
	}
	if status["status"] != string(message.StatusBooting) {
		t.Errorf("status[status] = %v, want %q", status["status"], message.StatusBooting)
	}
	if status["connected_to_broker"] != false {
		t.Error("connected_to_broker should start false")
	}
}

func TestBuildStatusBeforeBrokerConnection(t *testing.T) {
	w := newTestWrapper(t, &fakeModel{}, 1, &fakePublisher{}, newFakeSubscriber())
	msg := w.buildStatus()
	if msg.Status != message.StatusBooting {
		t.Errorf("status = %v, want booting before broker connection", msg.Status)
	}
}

func TestBuildStatusReadyOnFirstIncstep(t *testing.T) {
	w := newTestWrapper(t, &fakeModel{}, 1, &fakePublisher{}, newFakeSubscriber())
	w.connectedToBroker = true
	msg := w.buildStatus()
	if msg.Status != message.StatusReady {
		t.Errorf("status = %v, want ready at incstep 1", msg.Status)
	}
}

func TestBuildStatusWaitingUntilInputsComplete(t *testing.T) {
	w := newTestWrapper(t, &fakeModel{}, 2, &fakePublisher{}, newFakeSubscriber())
	w.connectedToBroker = true
	w.incstep = 2
	w.validatedSchemas = map[string]map[string]message.Envelope{"trade_in": {}}
	msg := w.buildStatus()
	if msg.Status != message.StatusWaiting {
		t.Errorf("status = %v, want waiting with incomplete inputs", msg.Status)
	}

	w.validatedSchemas["extra"] = map[string]message.Envelope{}
	msg = w.buildStatus()
	if msg.Status != message.StatusReady {
		t.Errorf("status = %v, want ready once expected input count is reached", msg.Status)
	}
}

func TestBuildStatusIncrementingTakesPriority(t *testing.T) {
	w := newTestWrapper(t, &fakeModel{}, 1, &fakePublisher{}, newFakeSubscriber())
	w.connectedToBroker = true
	w.incrementFlag = true
	msg := w.buildStatus()
	if msg.Status != message.StatusIncrementing {
		t.Errorf("status = %v, want incrementing", msg.Status)
	}
}

func TestInsertDataMessageStoresOnMatch(t *testing.T) {
	w := newTestWrapper(t, &fakeModel{}, 1, &fakePublisher{}, newFakeSubscriber())
	msg := message.Message{
		Signal: message.SignalData,
		Schema: "trade_in",
		Payload: map[string]message.Envelope{
			"consumption": {Data: map[string]float64{"us": 1}, Granularity: "country"},
		},
	}
	if err := w.insertDataMessage(msg); err != nil {
		t.Fatalf("insertDataMessage() error: %v", err)
	}
	if _, ok := w.validatedSchemas["trade_in"]; !ok {
		t.Error("expected validatedSchemas to contain trade_in after a matching message")
	}
}

func TestInsertDataMessageNoMatchIsNonFatal(t *testing.T) {
	w := newTestWrapper(t, &fakeModel{}, 1, &fakePublisher{}, newFakeSubscriber())
	msg := message.Message{
		Signal:  message.SignalData,
		Schema:  "unknown",
		Payload: map[string]message.Envelope{"other": {Data: map[string]float64{"x": 1}, Granularity: "county"}},
	}
	if err := w.insertDataMessage(msg); err != nil {
		t.Errorf("a non-matching message should not be treated as fatal: %v", err)
	}
	if len(w.validatedSchemas) != 0 {
		t.Error("a non-matching message should not populate validatedSchemas")
	}
}

func TestInsertDataMessageDuplicateIsFatal(t *testing.T) {
	w := newTestWrapper(t, &fakeModel{}, 1, &fakePublisher{}, newFakeSubscriber())
	msg := message.Message{
		Signal:  message.SignalData,
		Schema:  "trade_in",
		Payload: map[string]message.Envelope{"consumption": {Data: map[string]float64{"us": 1}, Granularity: "country"}},
	}
	if err := w.insertDataMessage(msg); err != nil {
		t.Fatalf("first insertDataMessage() should succeed, got: %v", err)
	}
	err := w.insertDataMessage(msg)
	if err == nil {
		t.Fatal("a second match for the same schema before a pulse should be fatal")
	}
	if !errors.Is(err, domain.ErrDuplicateSchemaMatch) {
		t.Errorf("error = %v, want one wrapping ErrDuplicateSchemaMatch", err)
	}
}

func TestIncrementHandlerCallsModelAndPublishesOutput(t *testing.T) {
	model := &fakeModel{}
	pub := &fakePublisher{}
	w := newTestWrapper(t, model, 0, pub, newFakeSubscriber())

	if err := w.incrementHandler(1); err != nil {
		t.Fatalf("incrementHandler() error: %v", err)
	}
	if model.increments != 1 {
		t.Errorf("model.increments = %d, want 1", model.increments)
	}

	msg, ok := w.pubQueue.PopTimeout(time.Second)
	if !ok {
		t.Fatal("expected a data message to be enqueued for publishing")
	}
	if msg.Signal != message.SignalData || msg.Schema != "trade_out" {
		t.Errorf("published message = %+v, want a trade_out data message", msg)
	}
	if w.incstep != 2 {
		t.Errorf("incstep = %d, want 2 after a successful increment", w.incstep)
	}
}

func TestIncrementHandlerRejectsIncompleteInputsAfterFirstStep(t *testing.T) {
	w := newTestWrapper(t, &fakeModel{}, 1, &fakePublisher{}, newFakeSubscriber())
	if err := w.incrementHandler(2); err == nil {
		t.Error("expected an error when validated inputs don't match the expected count past incstep 1")
	}
}

func TestRunShutsDownOnContextCancel(t *testing.T) {
	model := &fakeModel{}
	sub := newFakeSubscriber()
	w := newTestWrapper(t, model, 0, &fakePublisher{}, sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, map[string]interface{}{"seed": 1.0}) }()

	// Keep feeding the watchdog a heartbeat so it never blocks on its full
	// 10s miss window while we wait for the context to cancel.
	heartbeats := make(chan struct{})
	go func() {
		for {
			select {
			case <-heartbeats:
				return
			case sub.msgs <- message.Message{Source: brokerSource, Signal: message.SignalStatus, Status: message.StatusBooting}:
				time.Sleep(10 * time.Millisecond)
			}
		}
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		close(heartbeats)
		if err != nil {
			t.Errorf("Run() error: %v", err)
		}
	case <-time.After(2 * time.Second):
		close(heartbeats)
		t.Fatal("Run() did not return after context cancellation")
	}

	if model.configured == nil {
		t.Error("expected Configure to have been called with the initial conditions")
	}
}

func TestWatchdogTripsWithoutBrokerHeartbeat(t *testing.T) {
	w := newTestWrapper(t, &fakeModel{}, 0, &fakePublisher{}, newFakeSubscriber())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.watchdogLoop(ctx)

	select {
	case <-w.shutdown:
	case <-time.After(watchdogTimeout + 2*time.Second):
		t.Fatal("expected the watchdog to trigger shutdown after missing the broker heartbeat")
	}
}

func TestWatchdogIgnoresPeerModelStatus(t *testing.T) {
	sub := newFakeSubscriber()
	w := newTestWrapper(t, &fakeModel{}, 0, &fakePublisher{}, sub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.subscriberLoop(ctx)

	sub.msgs <- message.Message{Source: "population", Signal: message.SignalStatus, Status: message.StatusReady}

	if _, ok := w.brokerQueue.PopTimeout(100 * time.Millisecond); ok {
		t.Fatal("a peer model's status message should not be routed to brokerQueue")
	}
}

func TestWatchdogRecordsBrokerConnection(t *testing.T) {
	w := newTestWrapper(t, &fakeModel{}, 0, &fakePublisher{}, newFakeSubscriber())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.watchdogLoop(ctx)

	year := 1999
	w.brokerQueue.Push(message.Message{Source: brokerSource, Signal: message.SignalStatus, Status: message.StatusBooted, InitialYear: &year})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		w.mu.Lock()
		connected := w.connectedToBroker
		w.mu.Unlock()
		if connected {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.connectedToBroker {
		t.Error("expected connectedToBroker to be true after a booted broker message")
	}
	if w.initialYear != year {
		t.Errorf("initialYear = %d, want %d", w.initialYear, year)
	}
}
