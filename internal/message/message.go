// Package message defines the wire object exchanged between the broker and
// every model process (spec §3). Every Message is serialized as a UTF-8 JSON
// object; file payloads carry base64-encoded bytes inside the same envelope.
package message

import "encoding/json"

// Signal names the kind of message on the wire.
type Signal string

const (
	SignalStatus    Signal = "status"
	SignalData      Signal = "data"
	SignalIncrement Signal = "increment"
	SignalFileStr   Signal = "file_string"
	SignalFileBytes Signal = "file_bytes"
)

// Status is the per-model (and broker) state-machine value carried by
// status messages.
type Status string

const (
	StatusBooting      Status = "booting"
	StatusBooted       Status = "booted" // broker-only
	StatusReady        Status = "ready"
	StatusWaiting      Status = "waiting"
	StatusIncrementing Status = "incrementing"
)

// Envelope is the `{data, granularity}` wrapper every output variable is
// reported in, and the unit the Translator operates on (spec §3, §4.2).
type Envelope struct {
	Data        map[string]float64 `json:"data"`
	Granularity string             `json:"granularity"`
}

// Message is the single wire object of the system. Not every field is set
// for every Signal; see the Signal-specific constructors below.
type Message struct {
	Source  string `json:"source"`
	Signal  Signal `json:"signal"`
	Incstep int    `json:"incstep"`
	Year    int    `json:"year"`
	Time    float64 `json:"time"`

	// status
	Status      Status `json:"status,omitempty"`
	InitialYear *int   `json:"initial_year,omitempty"`

	// data
	Schema  string              `json:"schema,omitempty"`
	Payload map[string]Envelope `json:"payload,omitempty"`

	// file_string / file_bytes
	Name        string `json:"name,omitempty"`
	FilePayload string `json:"file_payload,omitempty"`
}

// Marshal serializes the message to its wire form.
func (m Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal parses a wire-form message.
func Unmarshal(b []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(b, &m)
	return m, err
}

// DataPayload decodes a data message's payload generically, used by the
// broker subscriber which only needs to forward/log it, not interpret
// individual variables.
func (m Message) DataPayload() map[string]Envelope {
	return m.Payload
}

// NewStatus builds a status message, the heartbeat every process emits
// once a second (spec §4.4, §4.5).
func NewStatus(source string, incstep, year int, status Status, now float64) Message {
	return Message{Source: source, Signal: SignalStatus, Incstep: incstep, Year: year, Time: now, Status: status}
}

// NewBrokerStatus builds the broker's status message, which additionally
// carries the initial_year a freshly-booted model needs to compute its
// own calendar year from an incstep.
func NewBrokerStatus(source string, incstep, year int, status Status, initialYear int, now float64) Message {
	m := NewStatus(source, incstep, year, status, now)
	m.InitialYear = &initialYear
	return m
}

// NewIncrement builds an increment pulse (spec §4.4: broker -> models).
func NewIncrement(source string, incstep, year int, status Status, now float64) Message {
	return Message{Source: source, Signal: SignalIncrement, Incstep: incstep, Year: year, Time: now, Status: status}
}

// NewData builds a data message carrying one named schema's payload
// (spec §3, §4.2).
func NewData(source, schema string, incstep, year int, payload map[string]Envelope, now float64) Message {
	return Message{Source: source, Signal: SignalData, Incstep: incstep, Year: year, Time: now, Schema: schema, Payload: payload}
}

// NewFileString builds a file_string artifact message (e.g. an HTML
// report), carried inline as text.
func NewFileString(source, name string, incstep, year int, payload string, now float64) Message {
	return Message{Source: source, Signal: SignalFileStr, Incstep: incstep, Year: year, Time: now, Name: name, FilePayload: payload}
}

// NewFileBytes builds a file_bytes artifact message (e.g. a rendered
// image), carried as base64 text in the same FilePayload field.
func NewFileBytes(source, name string, incstep, year int, base64Payload string, now float64) Message {
	return Message{Source: source, Signal: SignalFileBytes, Incstep: incstep, Year: year, Time: now, Name: name, FilePayload: base64Payload}
}
