// Package broker implements the central coordinator (spec §4.5): the
// forwarder proxy, bookkeeping subscriber, heartbeat/pulse publisher,
// pacemaker, boot watchdog, and log writer. Grounded in
// original_source/broker/handler.py's Broker class, adapted in the shape
// of the teacher's internal/infra/registry/manager.go (a name-keyed map
// under a mutex with accessor methods) but storing model liveness instead
// of downloaded-model metadata.
package broker

import (
	"sort"
	"sync"

	"github.com/incstep-network/incstep/internal/message"
)

// Registry tracks the declared model set and the latest status each has
// reported (spec §3 "Broker state": model_tracker, latest_status).
type Registry struct {
	mu           sync.RWMutex
	declared     map[string]struct{}
	tracker      map[string]struct{}
	latestStatus map[string]message.Message
}

// NewRegistry builds a registry for the given declared model ids (from
// /opt/config.json's "models" array, spec §6).
func NewRegistry(declaredModels []string) *Registry {
	declared := make(map[string]struct{}, len(declaredModels))
	for _, m := range declaredModels {
		declared[m] = struct{}{}
	}
	return &Registry{
		declared:     declared,
		tracker:      make(map[string]struct{}),
		latestStatus: make(map[string]message.Message),
	}
}

// Observe records a status message from a declared model, updating
// latest_status and adding it to the current window's tracker. Messages
// from undeclared sources are ignored here without logging. A model
// reporting status=booted (reserved for the broker's own internal
// transition, spec Open Question (a)) is logged and ignored by the caller
// before reaching here.
func (r *Registry) Observe(msg message.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, declared := r.declared[msg.Source]; !declared {
		return
	}
	r.latestStatus[msg.Source] = msg
	r.tracker[msg.Source] = struct{}{}
}

// TrackerComplete reports whether every declared model has reported in
// during the current window.
func (r *Registry) TrackerComplete() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tracker) == len(r.declared)
}

// ClearTracker resets the current window, called when a boot or watchdog
// window closes successfully.
func (r *Registry) ClearTracker() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracker = make(map[string]struct{})
}

// Missing returns the declared model ids that have not reported in the
// current window, sorted for deterministic logging.
func (r *Registry) Missing() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var missing []string
	for m := range r.declared {
		if _, ok := r.tracker[m]; !ok {
			missing = append(missing, m)
		}
	}
	sort.Strings(missing)
	return missing
}

// AllReadyAt reports whether every declared model's latest status is
// `ready` at the given incstep (spec §4.5 "Pacemaker").
func (r *Registry) AllReadyAt(incstep int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for m := range r.declared {
		status, ok := r.latestStatus[m]
		if !ok || status.Status != message.StatusReady || status.Incstep != incstep {
			return false
		}
	}
	return true
}

// Declared returns the declared model ids, sorted.
func (r *Registry) Declared() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.declared))
	for m := range r.declared {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
