package broker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/incstep-network/incstep/internal/broker/logstore"
	"github.com/incstep-network/incstep/internal/domain"
	"github.com/incstep-network/incstep/internal/infra/metrics"
	"github.com/incstep-network/incstep/internal/message"
	"github.com/incstep-network/incstep/internal/queue"
)

const (
	statusInterval = 1 * time.Second
	pacemakerTick  = 1 * time.Second
	queuePoll      = 100 * time.Millisecond
	brokerSource   = "broker"
)

// Publisher and Subscriber are the narrow transport dependencies of the
// broker, satisfied by *transport.Publisher/*transport.Subscriber or an
// in-memory test fake.
type Publisher interface {
	Send(message.Message) error
}

type Subscriber interface {
	Recv(ctx context.Context) (message.Message, error)
}

// Forwarder is the frontend/backend proxy the broker owns (spec §4.5
// "Forwarder").
type Forwarder interface {
	Run(ctx context.Context) error
}

// Config holds the broker's process-wide tunables (spec §3 "Broker
// state"), loaded from the process TOML config (SPEC_FULL.md AMBIENT
// STACK) plus /opt/config.json's declared model set.
type Config struct {
	Models      []string
	MaxIncstep  int
	InitialYear int
	BootTimer   time.Duration
	WatchdogTimer time.Duration
}

// Broker owns the forwarder, bookkeeping subscriber, heartbeat/pulse
// publisher, boot watchdog, and log writer (spec §4.5). Grounded in
// original_source/broker/handler.py's Broker class.
type Broker struct {
	cfg Config

	// runID distinguishes this broker's log lines and status payload from
	// a prior or concurrent run against the same data directory.
	runID string

	forwarder Forwarder
	pub       Publisher
	sub       Subscriber
	log       *logstore.Store

	registry *Registry

	pubQueue *queue.Queue[message.Message]
	logQueue *queue.Queue[logEntry]

	mu      sync.Mutex
	status  message.Status
	incstep int

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

type logEntry struct {
	collection string
	msg        message.Message
}

// New builds a Broker. forwarder may be nil if the caller runs the
// forwarder as a separate process.
func New(cfg Config, forwarder Forwarder, pub Publisher, sub Subscriber, store *logstore.Store) *Broker {
	return &Broker{
		cfg:       cfg,
		runID:     uuid.NewString(),
		forwarder: forwarder,
		pub:       pub,
		sub:       sub,
		log:       store,
		registry:  NewRegistry(cfg.Models),
		pubQueue:  queue.New[message.Message](),
		logQueue:  queue.New[logEntry](),
		status:    message.StatusBooting,
		incstep:   1,
		shutdown:  make(chan struct{}),
	}
}

// Status returns a snapshot of the broker's current state for the HTTP
// status surface.
func (b *Broker) Status() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]interface{}{
		"run_id":   b.runID,
		"status":   string(b.status),
		"incstep":  b.incstep,
		"declared": b.registry.Declared(),
		"missing":  b.registry.Missing(),
	}
}

func (b *Broker) triggerShutdown(reason string, args ...interface{}) {
	log.Printf("[broker] critical: "+reason, args...)
	b.shutdownOnce.Do(func() { close(b.shutdown) })
}

// Run launches every broker task and blocks until shutdown (spec §4.5 +
// §5 task table).
func (b *Broker) Run(ctx context.Context) error {
	log.Printf("[broker] starting run %s", b.runID)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-b.shutdown:
		case <-ctx.Done():
		}
		cancel()
	}()

	var wg sync.WaitGroup
	tasks := []func(context.Context){
		b.subscriberLoop,
		b.publisherLoop,
		b.statusLoop,
		b.watchdogLoop,
		b.pacemakerLoop,
		b.logWriterLoop,
	}
	if b.forwarder != nil {
		tasks = append(tasks, b.forwarderLoop)
	}
	for _, task := range tasks {
		wg.Add(1)
		go func(fn func(context.Context)) {
			defer wg.Done()
			fn(runCtx)
		}(task)
	}
	wg.Wait()

	log.Printf("[broker] broker has shut down")
	return nil
}

func (b *Broker) forwarderLoop(ctx context.Context) {
	if err := b.forwarder.Run(ctx); err != nil && ctx.Err() == nil {
		b.triggerShutdown("forwarder failed: %v", err)
	}
}

// subscriberLoop consumes the backend stream for bookkeeping (spec §4.5
// "Broker subscriber"): declared-model status updates the registry; data
// messages are enqueued to the log writer.
func (b *Broker) subscriberLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg, err := b.sub.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[broker] subscriber recv error: %v", err)
			continue
		}
		switch {
		case msg.Signal == message.SignalStatus && msg.Status == message.StatusBooted:
			// Open Question (a): booted is a broker-self transition only.
			log.Printf("[broker] ignoring booted status from model %s", msg.Source)
		case msg.Signal == message.SignalStatus:
			b.registry.Observe(msg)
			metrics.ModelsReporting.Set(float64(len(b.registry.Declared()) - len(b.registry.Missing())))
		case msg.Signal == message.SignalData:
			b.logQueue.Push(logEntry{collection: msg.Schema, msg: msg})
			metrics.QueueDepth.WithLabelValues(brokerSource, "log").Set(float64(b.logQueue.Len()))
		}
	}
}

// publisherLoop drains the outbound queue to the forwarder's ingress
// (spec §4.5 "Broker publisher").
func (b *Broker) publisherLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg, ok := b.pubQueue.PopTimeout(queuePoll)
		if !ok {
			continue
		}
		if err := b.pub.Send(msg); err != nil {
			log.Printf("[broker] publish error: %v", err)
		}
	}
}

// statusLoop publishes the broker's heartbeat every second (spec §4.5
// "Heartbeat").
func (b *Broker) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		b.mu.Lock()
		status, incstep := b.status, b.incstep
		b.mu.Unlock()
		year := b.cfg.InitialYear + incstep
		b.pubQueue.Push(message.NewBrokerStatus(brokerSource, incstep, year, status, b.cfg.InitialYear, nowUnix()))
		metrics.Incstep.WithLabelValues(brokerSource).Set(float64(incstep))
		for _, s := range []message.Status{message.StatusBooting, message.StatusBooted} {
			active := 0.0
			if s == status {
				active = 1
			}
			metrics.BrokerStatus.WithLabelValues(string(s)).Set(active)
		}
	}
}

// watchdogLoop implements the boot and steady-state watchdog windows
// (spec §4.5 "Boot watchdog").
func (b *Broker) watchdogLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		b.mu.Lock()
		booting := b.status == message.StatusBooting
		b.mu.Unlock()

		window := b.cfg.WatchdogTimer
		if booting {
			window = b.cfg.BootTimer
		}

		deadline := time.Now().Add(window)
		filled := false
		for time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			if b.registry.TrackerComplete() {
				filled = true
				break
			}
		}

		if filled {
			if booting {
				b.mu.Lock()
				b.status = message.StatusBooted
				b.mu.Unlock()
				log.Printf("[broker] all models reported in, broker is booted")
			}
			b.registry.ClearTracker()
			continue
		}

		missing := b.registry.Missing()
		sentinel := domain.ErrWatchdogTimeout
		suffix := ""
		if booting {
			sentinel = domain.ErrBootTimeout
			suffix = " to initialize"
		}
		metrics.WatchdogTrips.WithLabelValues(brokerSource).Inc()
		err := fmt.Errorf("%w: waiting for %v%s", sentinel, missing, suffix)
		b.triggerShutdown("%v", err)
		return
	}
}

// pacemakerLoop emits the next increment pulse once every declared model
// is ready at the current step, and initiates shutdown after the last
// pulse's results have drained (spec §4.5 "Pacemaker").
func (b *Broker) pacemakerLoop(ctx context.Context) {
	ticker := time.NewTicker(pacemakerTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		b.mu.Lock()
		if b.status != message.StatusBooted {
			b.mu.Unlock()
			continue
		}
		incstep := b.incstep
		b.mu.Unlock()

		if !b.registry.AllReadyAt(incstep) {
			continue
		}

		if incstep > b.cfg.MaxIncstep && b.logQueue.Empty() {
			log.Printf("[broker] successfully finished last increment %d", b.cfg.MaxIncstep)
			b.shutdownOnce.Do(func() { close(b.shutdown) })
			return
		}

		log.Printf("[broker] sending increment pulse %d", incstep)
		year := b.cfg.InitialYear + incstep
		b.pubQueue.Push(message.NewIncrement(brokerSource, incstep, year, message.StatusBooted, nowUnix()))
		metrics.IncrementsCompleted.WithLabelValues(brokerSource).Inc()

		b.mu.Lock()
		b.incstep++
		b.mu.Unlock()
	}
}

// logWriterLoop pops (collection, message) pairs and inserts them into the
// store (spec §4.5 "Log writer"); shutdown must drain the queue first.
func (b *Broker) logWriterLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if b.drainLog() > 0 {
				continue
			}
			return
		default:
		}
		entry, ok := b.logQueue.PopTimeout(queuePoll)
		if !ok {
			continue
		}
		if err := b.log.Insert(entry.collection, entry.msg); err != nil {
			log.Printf("[broker] log insert failed: %v", err)
		}
	}
}

func (b *Broker) drainLog() int {
	drained := 0
	for {
		entry, ok := b.logQueue.PopTimeout(10 * time.Millisecond)
		if !ok {
			return drained
		}
		if err := b.log.Insert(entry.collection, entry.msg); err != nil {
			log.Printf("[broker] log insert failed during drain: %v", err)
		}
		drained++
	}
}

func nowUnix() float64 { return float64(time.Now().UnixNano()) / 1e9 }
