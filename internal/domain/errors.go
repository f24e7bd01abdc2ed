// Package domain holds sentinel errors and small shared types used across
// the broker, the model runtime, and the granularity graph.
package domain

import "errors"

// Sentinel errors are pure — no infrastructure dependency, matching the
// teacher's domain error style (one var block, grouped by concern).
var (
	// Translation errors (§4.2, §7 "Translation failures").
	ErrNoTranslationPath = errors.New("no translation path between granularities")
	ErrAmbiguousParent   = errors.New("instance has more than one parent of the target kind")
	ErrUnknownGranularity = errors.New("unknown or non-canonical granularity kind")

	// Schema / protocol errors (§4.3, §7 "Protocol failures").
	ErrDuplicateSchemaMatch = errors.New("payload matched a schema already validated since the last pulse")
	ErrOutputCountMismatch  = errors.New("number of output payloads does not match number of output schemas")
	ErrSchemaValidation     = errors.New("payload failed schema validation")

	// Liveness errors (§7 "Liveness failures").
	ErrWatchdogTimeout = errors.New("watchdog timed out waiting for a heartbeat")
	ErrBootTimeout     = errors.New("boot watchdog timed out waiting for all models to report in")
)
