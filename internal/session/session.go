// Package session owns the lifetime of the direct-link sockets and drives
// the producer/consumer loop for one peer's side of a connection: a
// single reusable runtime taking sockets the caller has already bound,
// stopping when its context is canceled, and guaranteeing teardown.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"robotlink/internal/burst"
	"robotlink/internal/codec"
	"robotlink/internal/transport"
)

// Sender lets a producer emit one burst at a time under the socket's
// critical section: all fragments of one message are written before
// another burst may interleave.
type Sender struct {
	ep    *transport.Endpoint
	mu    sync.Mutex
	msgID byte
}

// NewSender wraps ep for burst-atomic sends.
func NewSender(ep *transport.Endpoint) *Sender { return &Sender{ep: ep} }

// Send fragments payload (an already-encoded record), then writes every
// fragment of the burst to the network while holding the endpoint's send
// mutex as a single critical section.
func (s *Sender) Send(payload []byte, chunk int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	uid := s.msgID
	s.msgID++

	s.ep.Lock()
	defer s.ep.Unlock()
	for _, f := range burst.BuildFragments(payload, uid, chunk) {
		if err := s.ep.SendLocked(f.Encode()); err != nil {
			return err
		}
	}
	return nil
}

// Producer is called once with the send socket; it is expected to loop
// until ctx is canceled, pacing itself at the target sample rate.
type Producer func(ctx context.Context, sender *Sender) error

// Handler reacts to one decoded record dispatched by type name.
type Handler func(record interface{})

// Consumer is called once with the receive socket; it loops receiving
// datagrams, reassembling bursts, decoding complete messages, and
// dispatching them through a type-indexed handler map.
type Consumer struct {
	Catalog  *codec.Catalog
	Handlers map[string]Handler
	// OnPartial, if set, is invoked with bytes salvaged from an
	// interrupted burst; callers that don't care about partial deliveries
	// just log it and never feed it to Decode.
	OnPartial func(body []byte)
	// RecvTimeout bounds each blocking Recv call; this is the runtime's
	// only suspension point besides producer pacing.
	RecvTimeout time.Duration
}

func (c *Consumer) recvTimeout() time.Duration {
	if c.RecvTimeout > 0 {
		return c.RecvTimeout
	}
	return time.Second
}

// Run drives the consumer loop against ep until ctx is canceled.
func (c *Consumer) Run(ctx context.Context, ep *transport.Endpoint) error {
	r := burst.NewReassembler()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		b, err := ep.Recv(c.recvTimeout())
		if err == transport.ErrTimeout {
			continue
		}
		if err != nil {
			return err
		}

		frag, ok := burst.DecodeFragment(b)
		if !ok {
			log.Printf("session: dropping malformed datagram (%d bytes)", len(b))
			continue
		}

		for _, d := range r.Feed(frag) {
			if d.Partial {
				if c.OnPartial != nil {
					c.OnPartial(d.Body)
				}
				continue
			}
			c.dispatch(d.Body)
		}
	}
}

func (c *Consumer) dispatch(body []byte) {
	obj, err := codec.Decode(c.Catalog, body)
	if err != nil {
		log.Printf("session: decode failed: %v", err)
		return
	}
	fielder, ok := obj.(codec.Fielder)
	if !ok {
		log.Printf("session: decoded object does not implement Fielder: %T", obj)
		return
	}
	h, ok := c.Handlers[fielder.TypeName()]
	if !ok {
		log.Printf("session: no handler registered for type %q", fielder.TypeName())
		return
	}
	h(obj)
}

// Runtime owns the two direct-link sockets and guarantees scoped release:
// both sockets are closed and, if Teardown is set, prior network state is
// restored on every exit path, including cancellation.
type Runtime struct {
	Send *transport.Endpoint
	Recv *transport.Endpoint
	// Teardown restores whatever OS network state the rendezvous strategy
	// changed; it is always called, even if the producer or consumer
	// returns an error.
	Teardown func() error
}

// Run starts the producer and consumer concurrently and blocks until
// both have returned. When ctx is canceled, or when one of them fails,
// the context passed to both is canceled. It returns the first error
// other than context.Canceled, after always running Teardown.
func (r *Runtime) Run(ctx context.Context, producer Producer, consumer *Consumer) error {
	defer func() {
		_ = r.Send.Close()
		_ = r.Recv.Close()
		if r.Teardown != nil {
			if err := r.Teardown(); err != nil {
				log.Printf("session: teardown failed (swallowed): %v", err)
			}
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- producer(ctx, NewSender(r.Send)) }()
	go func() { errCh <- consumer.Run(ctx, r.Recv) }()

	var first error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && err != context.Canceled && first == nil {
			first = err
			cancel()
		}
	}
	return first
}
