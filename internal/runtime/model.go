package runtime

import "github.com/incstep-network/incstep/internal/message"

// Model is the extension point every embedded simulation implements (spec
// §4.4, §9: "represent the embedded model as an interface with two
// methods, not as inheritance"). Grounded in outer_wrapper.py's abstract
// configure/increment pair.
type Model interface {
	// Configure is called once after boot with every initial-condition
	// file from the configuration directory, keyed by filename stem.
	Configure(initialConditions map[string]interface{}) error

	// Increment is called once per increment pulse with the validated
	// input snapshot, keyed by input schema name. It returns one payload
	// per output schema name, plus optional HTML and binary artifacts
	// keyed by filename.
	Increment(inputs map[string]map[string]message.Envelope) (
		outputs map[string]map[string]message.Envelope,
		htmlFiles map[string]string,
		byteFiles map[string][]byte,
		err error,
	)
}
