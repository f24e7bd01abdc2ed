// Package transport implements the ZeroMQ wire layer (spec §4.5, §4.6):
// a forwarder proxy connecting every broker and model process, and thin
// publisher/subscriber wrappers used by both sides. Grounded in the
// original implementation's forwarder/pub/sub threads (broker/handler.py,
// outer_wrapper.py), translated from pyzmq's PUB/SUB sockets to
// github.com/pebbe/zmq4.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall"
	"time"

	zmq "github.com/pebbe/zmq4"

	"github.com/incstep-network/incstep/internal/message"
)

// isTimeout reports whether err is the EAGAIN a SetRcvtimeo deadline
// produces, meaning "no message arrived, try again" rather than a real
// failure.
func isTimeout(err error) bool {
	errno, ok := err.(zmq.Errno)
	return ok && errno == zmq.Errno(syscall.EAGAIN)
}

// pollInterval is how often a blocking recv times out so it can notice
// context cancellation, mirroring the original's RCVTIMEO-driven poll loop.
const pollInterval = 100 * time.Millisecond

// lingerPeriod matches the original's zmq.LINGER of 1000ms, giving
// in-flight sends a chance to drain before a socket closes.
const lingerPeriod = 1000 * time.Millisecond

// Publisher wraps a ZeroMQ PUB socket connected to the forwarder's
// ingress (the frontend every process sends into).
type Publisher struct {
	sock *zmq.Socket
}

// NewPublisher dials endpoint (e.g. "tcp://broker:5555") and returns a
// ready-to-use publisher.
func NewPublisher(endpoint string) (*Publisher, error) {
	sock, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, fmt.Errorf("transport: new pub socket: %w", err)
	}
	if err := sock.SetLinger(lingerPeriod); err != nil {
		sock.Close()
		return nil, fmt.Errorf("transport: set linger: %w", err)
	}
	if err := sock.Connect(endpoint); err != nil {
		sock.Close()
		return nil, fmt.Errorf("transport: connect %s: %w", endpoint, err)
	}
	return &Publisher{sock: sock}, nil
}

// Send marshals msg and sends it as a single-frame message.
func (p *Publisher) Send(msg message.Message) error {
	b, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("transport: marshal: %w", err)
	}
	if _, err := p.sock.SendBytes(b, 0); err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

// Close releases the underlying socket.
func (p *Publisher) Close() error { return p.sock.Close() }

// Subscriber wraps a ZeroMQ SUB socket connected to the forwarder's
// egress (the backend every process listens on), subscribed to all topics.
type Subscriber struct {
	sock *zmq.Socket
}

// NewSubscriber dials endpoint (e.g. "tcp://broker:5556") and subscribes
// to every message (empty filter, matching the original's `SUBSCRIBE ""`).
func NewSubscriber(endpoint string) (*Subscriber, error) {
	sock, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		return nil, fmt.Errorf("transport: new sub socket: %w", err)
	}
	if err := sock.SetSubscribe(""); err != nil {
		sock.Close()
		return nil, fmt.Errorf("transport: subscribe: %w", err)
	}
	if err := sock.SetRcvtimeo(pollInterval); err != nil {
		sock.Close()
		return nil, fmt.Errorf("transport: set rcvtimeo: %w", err)
	}
	if err := sock.SetLinger(lingerPeriod); err != nil {
		sock.Close()
		return nil, fmt.Errorf("transport: set linger: %w", err)
	}
	if err := sock.Connect(endpoint); err != nil {
		sock.Close()
		return nil, fmt.Errorf("transport: connect %s: %w", endpoint, err)
	}
	return &Subscriber{sock: sock}, nil
}

// Recv blocks until a message arrives, ctx is cancelled, or a poll timeout
// elapses and is retried. It returns ctx.Err() once the context is done.
func (s *Subscriber) Recv(ctx context.Context) (message.Message, error) {
	for {
		select {
		case <-ctx.Done():
			return message.Message{}, ctx.Err()
		default:
		}
		b, err := s.sock.RecvBytes(0)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return message.Message{}, fmt.Errorf("transport: recv: %w", err)
		}
		var msg message.Message
		if err := json.Unmarshal(b, &msg); err != nil {
			return message.Message{}, fmt.Errorf("transport: unmarshal: %w", err)
		}
		return msg, nil
	}
}

// Close releases the underlying socket.
func (s *Subscriber) Close() error { return s.sock.Close() }

// Forwarder is the central proxy every publisher and subscriber connects
// through: a SUB frontend bound for ingress and a PUB backend bound for
// egress, relaying every received frame verbatim (spec §4.5's classic
// XSUB/XPUB-style proxy; grounded in broker/handler.py's forwarder thread).
type Forwarder struct {
	frontend *zmq.Socket
	backend  *zmq.Socket
}

// NewForwarder binds the frontend and backend endpoints (e.g.
// "tcp://*:5555" and "tcp://*:5556").
func NewForwarder(frontendEndpoint, backendEndpoint string) (*Forwarder, error) {
	frontend, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		return nil, fmt.Errorf("transport: new frontend socket: %w", err)
	}
	if err := frontend.SetSubscribe(""); err != nil {
		frontend.Close()
		return nil, fmt.Errorf("transport: frontend subscribe: %w", err)
	}
	if err := frontend.SetRcvtimeo(pollInterval); err != nil {
		frontend.Close()
		return nil, fmt.Errorf("transport: frontend rcvtimeo: %w", err)
	}
	if err := frontend.SetLinger(lingerPeriod); err != nil {
		frontend.Close()
		return nil, fmt.Errorf("transport: frontend linger: %w", err)
	}
	if err := frontend.Bind(frontendEndpoint); err != nil {
		frontend.Close()
		return nil, fmt.Errorf("transport: bind frontend %s: %w", frontendEndpoint, err)
	}

	backend, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		frontend.Close()
		return nil, fmt.Errorf("transport: new backend socket: %w", err)
	}
	if err := backend.SetLinger(lingerPeriod); err != nil {
		frontend.Close()
		backend.Close()
		return nil, fmt.Errorf("transport: backend linger: %w", err)
	}
	if err := backend.Bind(backendEndpoint); err != nil {
		frontend.Close()
		backend.Close()
		return nil, fmt.Errorf("transport: bind backend %s: %w", backendEndpoint, err)
	}

	return &Forwarder{frontend: frontend, backend: backend}, nil
}

// Run relays frames from the frontend to the backend until ctx is
// cancelled.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		b, err := f.frontend.RecvBytes(0)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return fmt.Errorf("transport: forwarder recv: %w", err)
		}
		if _, err := f.backend.SendBytes(b, 0); err != nil {
			return fmt.Errorf("transport: forwarder send: %w", err)
		}
	}
}

// Close releases both underlying sockets.
func (f *Forwarder) Close() error {
	ferr := f.frontend.Close()
	berr := f.backend.Close()
	if ferr != nil {
		return ferr
	}
	return berr
}
