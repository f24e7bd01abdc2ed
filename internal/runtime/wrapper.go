// Package runtime implements the model wrapper (spec §4.4): the process
// every simulation model embeds, which handles transport, schema
// validation, the arrival barrier, and granularity translation so the
// model itself only has to implement Configure/Increment. Grounded in
// outer_wrapper.py's OuterWrapper class.
package runtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/incstep-network/incstep/internal/domain"
	"github.com/incstep-network/incstep/internal/graph"
	"github.com/incstep-network/incstep/internal/infra/metrics"
	"github.com/incstep-network/incstep/internal/message"
	"github.com/incstep-network/incstep/internal/queue"
	"github.com/incstep-network/incstep/internal/schema"
	"github.com/incstep-network/incstep/internal/transport"
	"github.com/incstep-network/incstep/internal/translator"
)

const (
	statusInterval  = 1 * time.Second
	watchdogTimeout = 10 * time.Second
	queuePoll       = 100 * time.Millisecond
	brokerSource    = "broker"
)

// Publisher and Subscriber are the narrow transport interfaces the wrapper
// depends on, satisfied by *transport.Publisher/*transport.Subscriber in
// production and by in-memory fakes in tests (spec AMBIENT STACK: "test
// tooling... in-memory transport fakes").
type Publisher interface {
	Send(message.Message) error
}

type Subscriber interface {
	Recv(ctx context.Context) (message.Message, error)
}

var (
	_ Publisher  = (*transport.Publisher)(nil)
	_ Subscriber = (*transport.Subscriber)(nil)
)

// Wrapper hosts one model (spec §4.4 "Model Runtime").
type Wrapper struct {
	ModelID           string
	NumExpectedInputs int

	model Model

	abstract    *graph.AbstractGraph
	instance    *graph.InstanceGraph
	translator  *translator.Translator
	inputSchemas  *schema.Registry
	outputSchemas *schema.Registry

	pub Publisher
	sub Subscriber

	pubQueue    *queue.Queue[message.Message]
	brokerQueue *queue.Queue[message.Message]
	actionQueue *queue.Queue[message.Message]

	mu                sync.Mutex
	status            message.Status
	incstep           int
	initialYear       int
	incrementFlag     bool
	connectedToBroker bool
	validatedSchemas  map[string]map[string]message.Envelope

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New builds a Wrapper around model, ready to Run.
func New(
	modelID string,
	numExpectedInputs int,
	model Model,
	abstractGraph *graph.AbstractGraph,
	instanceGraph *graph.InstanceGraph,
	inputSchemas, outputSchemas *schema.Registry,
	pub Publisher,
	sub Subscriber,
) *Wrapper {
	return &Wrapper{
		ModelID:           modelID,
		NumExpectedInputs: numExpectedInputs,
		model:             model,
		abstract:          abstractGraph,
		instance:          instanceGraph,
		translator:        translator.New(abstractGraph, instanceGraph),
		inputSchemas:      inputSchemas,
		outputSchemas:     outputSchemas,
		pub:               pub,
		sub:               sub,
		pubQueue:          queue.New[message.Message](),
		brokerQueue:       queue.New[message.Message](),
		actionQueue:       queue.New[message.Message](),
		status:            message.StatusBooting,
		incstep:           1,
		validatedSchemas:  make(map[string]map[string]message.Envelope),
		shutdown:          make(chan struct{}),
	}
}

// Status returns a snapshot of the model's current state for the HTTP
// status surface.
func (w *Wrapper) Status() map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return map[string]interface{}{
		"model_id":            w.ModelID,
		"status":              string(w.status),
		"incstep":             w.incstep,
		"connected_to_broker": w.connectedToBroker,
	}
}

func (w *Wrapper) triggerShutdown(reason string, args ...interface{}) {
	log.Printf("[%s] critical: "+reason, append([]interface{}{w.ModelID}, args...)...)
	w.shutdownOnce.Do(func() { close(w.shutdown) })
}

// Run loads nothing itself (the caller loads schemas/graphs/config and
// constructs the Wrapper); it calls Configure, then launches the
// subscriber, publisher, status ticker, action worker, and watchdog tasks
// (spec §5 table) and blocks until shutdown.
func (w *Wrapper) Run(ctx context.Context, initialConditions map[string]interface{}) error {
	if err := w.model.Configure(initialConditions); err != nil {
		return fmt.Errorf("runtime: configure: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-w.shutdown:
		case <-ctx.Done():
		}
		cancel()
	}()

	var wg sync.WaitGroup
	for _, task := range []func(context.Context){
		w.subscriberLoop,
		w.publisherLoop,
		w.statusTickerLoop,
		w.actionWorkerLoop,
		w.watchdogLoop,
	} {
		wg.Add(1)
		go func(fn func(context.Context)) {
			defer wg.Done()
			fn(runCtx)
		}(task)
	}
	wg.Wait()

	log.Printf("[%s] model has shut down", w.ModelID)
	return nil
}

func (w *Wrapper) setStatus(s message.Status) {
	w.mu.Lock()
	w.status = s
	w.mu.Unlock()
}

// subscriberLoop classifies inbound traffic: broker status goes to the
// watchdog queue, data goes through schema matching and input translation,
// everything else (increment pulses) goes to the action queue (spec §4.4
// item 4).
func (w *Wrapper) subscriberLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg, err := w.sub.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[%s] subscriber recv error: %v", w.ModelID, err)
			continue
		}
		switch {
		case msg.Signal == message.SignalStatus && msg.Source == brokerSource:
			w.brokerQueue.Push(msg)
		case msg.Signal == message.SignalData:
			if err := w.insertDataMessage(msg); err != nil {
				if errors.Is(err, domain.ErrDuplicateSchemaMatch) {
					metrics.DuplicateSchemaMatches.WithLabelValues(w.ModelID, msg.Schema).Inc()
				}
				w.triggerShutdown("%v", err)
				return
			}
		default:
			w.actionQueue.Push(msg)
		}
		metrics.QueueDepth.WithLabelValues(w.ModelID, "action").Set(float64(w.actionQueue.Len()))
	}
}

// insertDataMessage validates an incoming data payload against the input
// schemas, translating and storing it in validatedSchemas on a match
// (spec §4.3). A non-nil error is always fatal to the caller.
func (w *Wrapper) insertDataMessage(msg message.Message) error {
	generic, err := toGenericJSON(msg.Payload)
	if err != nil {
		log.Printf("[%s] failed to re-encode payload for validation: %v", w.ModelID, err)
		return nil
	}
	names := w.inputSchemas.Match(generic)
	if len(names) == 0 {
		metrics.SchemaValidationFailures.WithLabelValues(w.ModelID, msg.Schema).Inc()
		log.Printf("[%s] message didn't match any input schema: %s", w.ModelID, msg.Schema)
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, name := range names {
		if _, exists := w.validatedSchemas[name]; exists {
			return fmt.Errorf("%w: schema %s already validated a message since last pulse", domain.ErrDuplicateSchemaMatch, name)
		}
		translated, err := w.translateToHints(w.inputSchemas.Get(name), msg.Payload)
		if err != nil {
			return err
		}
		w.validatedSchemas[name] = translated
	}
	return nil
}

// translateToHints moves every variable in payload to the granularity (and
// named aggregator/disaggregator) its schema's hint declares, leaving
// variables without a hint untouched. A missing translation path (spec §7
// "no path is fatal to the caller") is returned as an error; every other
// translation failure is logged and the untranslated envelope passes
// through.
func (w *Wrapper) translateToHints(s *schema.Schema, payload map[string]message.Envelope) (map[string]message.Envelope, error) {
	out := make(map[string]message.Envelope, len(payload))
	for variable, env := range payload {
		if s == nil {
			out[variable] = env
			continue
		}
		dest, aggHint, daggHint, ok := s.VariableHint(variable)
		if !ok || dest == env.Granularity {
			out[variable] = env
			continue
		}
		data, err := w.translator.Translate(env.Data, env.Granularity, dest, variable, aggHint, daggHint)
		if err != nil {
			metrics.TranslationFailures.WithLabelValues(w.ModelID, variable).Inc()
			if errors.Is(err, domain.ErrNoTranslationPath) {
				return nil, fmt.Errorf("runtime: translate %s from %s to %s: %w", variable, env.Granularity, dest, err)
			}
			log.Printf("[%s] translation error for %s: %v", w.ModelID, variable, err)
			out[variable] = env
			continue
		}
		out[variable] = message.Envelope{Data: data, Granularity: dest}
	}
	return out, nil
}

// publisherLoop drains the outbound queue. Status and file messages pass
// through untouched; data messages are re-validated against the output
// schemas as a consistency check before being sent (spec §4.4 item 5 /
// pub() in outer_wrapper.py).
func (w *Wrapper) publisherLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg, ok := w.pubQueue.PopTimeout(queuePoll)
		if !ok {
			continue
		}
		if msg.Signal != message.SignalData {
			if err := w.pub.Send(msg); err != nil {
				log.Printf("[%s] publish error: %v", w.ModelID, err)
			}
			continue
		}
		generic, err := toGenericJSON(msg.Payload)
		if err != nil {
			log.Printf("[%s] failed to re-encode outgoing payload: %v", w.ModelID, err)
			continue
		}
		matches := w.outputSchemas.Match(generic)
		switch len(matches) {
		case 0:
			log.Printf("[%s] outgoing message didn't match any output schema: %s", w.ModelID, msg.Schema)
		case 1:
			if err := w.pub.Send(msg); err != nil {
				log.Printf("[%s] publish error: %v", w.ModelID, err)
			}
		default:
			w.triggerShutdown("outgoing message matched more than one output schema: %v", matches)
			return
		}
	}
}

// statusTickerLoop publishes a status message once a second, computing
// status from the deterministic state machine of spec §4.4 item 3.
func (w *Wrapper) statusTickerLoop(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		w.pubQueue.Push(w.buildStatus())
	}
}

func (w *Wrapper) buildStatus() message.Message {
	w.mu.Lock()
	defer w.mu.Unlock()

	var status message.Status
	switch {
	case !w.connectedToBroker:
		status = message.StatusBooting
	case w.incrementFlag:
		status = message.StatusIncrementing
	case w.incstep == 1:
		status = message.StatusReady
	case len(w.validatedSchemas) == w.NumExpectedInputs:
		status = message.StatusReady
	default:
		status = message.StatusWaiting
	}
	w.status = status
	return message.NewStatus(w.ModelID, w.incstep, w.initialYear+w.incstep, status, nowUnix())
}

// actionWorkerLoop drains the action queue, handling increment pulses
// (spec §4.4 item 5 / §5 "action worker (model)").
func (w *Wrapper) actionWorkerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg, ok := w.actionQueue.PopTimeout(queuePoll)
		if !ok {
			continue
		}
		if msg.Signal == message.SignalIncrement {
			if err := w.incrementHandler(msg.Incstep); err != nil {
				w.triggerShutdown("increment handler failed: %v", err)
				return
			}
		}
	}
}

// incrementHandler implements the barrier-gated increment (spec §4.4
// item 5): validates the input snapshot is complete, calls the model,
// validates and translates its outputs, and enqueues result messages.
func (w *Wrapper) incrementHandler(incstep int) error {
	w.mu.Lock()
	w.incrementFlag = true
	w.incstep = incstep
	if incstep > 1 && len(w.validatedSchemas) != w.NumExpectedInputs {
		w.mu.Unlock()
		return fmt.Errorf("runtime: expected %d validated input schemas, have %d", w.NumExpectedInputs, len(w.validatedSchemas))
	}
	snapshot := w.validatedSchemas
	w.validatedSchemas = make(map[string]map[string]message.Envelope)
	w.mu.Unlock()

	start := time.Now()
	outputs, htmlFiles, byteFiles, err := w.model.Increment(snapshot)
	metrics.IncrementDuration.WithLabelValues(w.ModelID).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("runtime: model increment: %w", err)
	}

	if len(outputs) != w.outputSchemas.Len() {
		return fmt.Errorf("%w: model returned %d output payloads, expected %d", domain.ErrOutputCountMismatch, len(outputs), w.outputSchemas.Len())
	}

	translatedOutputs := make(map[string]map[string]message.Envelope, len(outputs))
	for name, payload := range outputs {
		s := w.outputSchemas.Get(name)
		if s == nil {
			return fmt.Errorf("runtime: model returned unknown output schema %q", name)
		}
		generic, err := toGenericJSON(payload)
		if err != nil {
			return fmt.Errorf("runtime: re-encode output %s: %w", name, err)
		}
		if err := schema.ValidateGenericEnvelope(generic); err != nil {
			return fmt.Errorf("%w: %s failed generic envelope validation: %v", domain.ErrSchemaValidation, name, err)
		}
		if err := s.Validate(generic); err != nil {
			return fmt.Errorf("%w: %s failed schema %s: %v", domain.ErrSchemaValidation, name, name, err)
		}
		translated, err := w.translateToHints(s, payload)
		if err != nil {
			return err
		}
		translatedOutputs[name] = translated
	}

	year := w.currentYear()
	for name, payload := range translatedOutputs {
		w.pubQueue.Push(message.NewData(w.ModelID, name, w.incstep, year, payload, nowUnix()))
	}
	for filename, html := range htmlFiles {
		w.pubQueue.Push(message.NewFileString(w.ModelID, filename, w.incstep, year, html, nowUnix()))
	}
	for filename, bytes := range byteFiles {
		w.pubQueue.Push(message.NewFileBytes(w.ModelID, filename, w.incstep, year, base64.StdEncoding.EncodeToString(bytes), nowUnix()))
	}

	w.mu.Lock()
	w.incrementFlag = false
	w.incstep++
	w.mu.Unlock()
	metrics.Incstep.WithLabelValues(w.ModelID).Set(float64(incstep))
	metrics.IncrementsCompleted.WithLabelValues(w.ModelID).Inc()
	log.Printf("[%s] finished increment %d, year %d", w.ModelID, incstep, year)
	return nil
}

func (w *Wrapper) currentYear() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.initialYear + w.incstep
}

// watchdogLoop waits for the broker's heartbeat, learning initial_year and
// connectedness from the first `booted` message; a single 10s miss is
// fatal (spec §4.4 item 6).
func (w *Wrapper) watchdogLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg, ok := w.brokerQueue.PopTimeout(watchdogTimeout)
		if !ok {
			metrics.WatchdogTrips.WithLabelValues(w.ModelID).Inc()
			w.triggerShutdown("%v", domain.ErrWatchdogTimeout)
			return
		}
		if msg.Status == message.StatusBooted {
			w.mu.Lock()
			w.connectedToBroker = true
			if msg.InitialYear != nil {
				w.initialYear = *msg.InitialYear
			}
			w.mu.Unlock()
		}
	}
}

// toGenericJSON round-trips v through JSON so it can be handed to the
// schema validator, which operates on generic decoded JSON values rather
// than concrete Go structs.
func toGenericJSON(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
