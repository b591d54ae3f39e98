package rendezvous

import (
	"errors"
	"reflect"
	"time"

	"robotlink/internal/codec"
	"robotlink/internal/transport"
)

// ErrHandshakeTimeout names the expiry of a wait state. StatelessHandshake
// recovers from an expiry locally by transitioning back to sendObj (the
// server resends its object, the client keeps waiting for one), so Run
// never returns it.
var ErrHandshakeTimeout = errors.New("rendezvous: handshake wait timed out")

// statelessState is one state in the SEND_OBJ/WAIT_FOR_OBJ/SEND_ACK/
// SEND_NACK/WAIT_FOR_ACK/COMPLETE machine, used as a fallback handshake
// when the reliable TCP transport is unavailable.
type statelessState int

const (
	sendObj statelessState = iota
	waitForObj
	sendAck
	sendNack
	waitForAck
	complete
)

// StatelessHandshake drives a RADIO/DISH-style fallback handshake over an
// already-bound transport.Endpoint pair.
type StatelessHandshake struct {
	cat     *codec.Catalog
	send    *transport.Endpoint
	recv    *transport.Endpoint
	timeout time.Duration

	// verify is called on every received object; the server variant
	// checks it strictly against its own object (field-wise equality),
	// the client variant accepts unconditionally.
	verify func(obj codec.Fielder, received interface{}) bool

	obj      codec.Fielder
	received interface{}
	state    statelessState
}

// NewServerStatelessHandshake builds the verifying (server) side, which
// holds the authoritative obj and rejects any reply that doesn't match it
// field-for-field.
func NewServerStatelessHandshake(cat *codec.Catalog, send, recv *transport.Endpoint, obj codec.Fielder, timeout time.Duration) *StatelessHandshake {
	return &StatelessHandshake{
		cat: cat, send: send, recv: recv, obj: obj, timeout: timeout,
		verify: verifyFieldwiseEqual,
		state:  sendObj,
	}
}

// NewClientStatelessHandshake builds the accepting (client) side, which
// starts by waiting for an object and accepts whatever arrives.
func NewClientStatelessHandshake(cat *codec.Catalog, send, recv *transport.Endpoint, timeout time.Duration) *StatelessHandshake {
	return &StatelessHandshake{
		cat: cat, send: send, recv: recv, timeout: timeout,
		verify: func(codec.Fielder, interface{}) bool { return true },
		state:  waitForObj,
	}
}

// Run drives the state machine to completion, returning the agreed-upon
// object (the server's obj on the server side, the received object on the
// client side).
func (h *StatelessHandshake) Run() (interface{}, error) {
	for h.state != complete {
		switch h.state {
		case sendObj:
			if err := h.doSendObj(); err != nil {
				return nil, err
			}
		case waitForObj:
			h.doWaitForObj()
		case sendAck:
			h.doSendAck()
		case sendNack:
			h.doSendNack()
		case waitForAck:
			h.doWaitForAck()
		}
	}
	if h.obj != nil {
		return h.obj, nil
	}
	return h.received, nil
}

func (h *StatelessHandshake) doSendObj() error {
	if h.obj == nil {
		// The client side has no object of its own to send; an expired
		// wait returns it to waiting for the server's object.
		h.state = waitForObj
		return nil
	}
	b, err := codec.Encode(h.cat, h.obj)
	if err != nil {
		// A local encode failure cannot be retried away; surface it
		// instead of re-entering sendObj.
		return err
	}
	_ = h.send.Send(b)
	h.state = waitForAck
	return nil
}

func (h *StatelessHandshake) doWaitForObj() {
	b, err := h.recv.Recv(h.timeout)
	if err == transport.ErrTimeout {
		h.state = sendObj
		return
	}
	if err != nil {
		h.state = sendObj
		return
	}
	obj, err := codec.Decode(h.cat, b)
	if err != nil {
		h.state = sendNack
		return
	}
	if !h.verify(h.obj, obj) {
		h.state = sendNack
		return
	}
	h.received = obj
	h.state = sendAck
}

func (h *StatelessHandshake) doSendAck() {
	_ = h.send.Send([]byte("ACK"))
	h.state = complete
}

func (h *StatelessHandshake) doSendNack() {
	_ = h.send.Send([]byte("NACK"))
	h.state = waitForObj
}

func (h *StatelessHandshake) doWaitForAck() {
	b, err := h.recv.Recv(h.timeout)
	if err == transport.ErrTimeout {
		h.state = sendObj
		return
	}
	if err != nil {
		h.state = sendObj
		return
	}
	switch string(b) {
	case "ACK":
		h.state = complete
	case "NACK":
		h.state = sendObj
	default:
		h.state = sendObj
	}
}

// verifyFieldwiseEqual compares received against expected's field values
// by strict equality.
func verifyFieldwiseEqual(expected codec.Fielder, received interface{}) bool {
	recFielder, ok := received.(codec.Fielder)
	if !ok {
		return false
	}
	if expected.TypeName() != recFielder.TypeName() {
		return false
	}
	want := expected.FieldValues()
	got := recFielder.FieldValues()
	if len(want) != len(got) {
		return false
	}
	for k, v := range want {
		gv, ok := got[k]
		if !ok || !reflect.DeepEqual(gv, v) {
			return false
		}
	}
	return true
}
