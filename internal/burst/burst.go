// Package burst fragments a payload into fixed-size, role-tagged
// datagrams and reassembles them on the receiving side, tolerating loss,
// reordering, and interleaving between distinct messages. Each fragment
// only carries a role (start/middle/end/solo) and a uid byte; the receiver
// never needs to know the total fragment count ahead of time.
package burst

import "sync/atomic"

// Role identifies a fragment's position within its burst.
type Role byte

const (
	RoleStart  Role = 0x01
	RoleMiddle Role = 0x02
	RoleEnd    Role = 0x03
	RoleSolo   Role = 0x04
)

// CHUNK is the default body size per fragment; with the 2-byte header
// (role + uid) a fragment is at most CHUNK+2 bytes.
const CHUNK = 4096

// Fragment lays out one datagram payload: role (1 byte) || uid (1 byte) || body.
type Fragment struct {
	Role Role
	UID  byte
	Body []byte
}

// Encode serializes a fragment to its wire form.
func (f Fragment) Encode() []byte {
	out := make([]byte, 2+len(f.Body))
	out[0] = byte(f.Role)
	out[1] = f.UID
	copy(out[2:], f.Body)
	return out
}

// DecodeFragment parses a datagram payload into a Fragment. A datagram
// shorter than 2 bytes is malformed and must be dropped.
func DecodeFragment(b []byte) (Fragment, bool) {
	if len(b) < 2 {
		return Fragment{}, false
	}
	return Fragment{Role: Role(b[0]), UID: b[1], Body: b[2:]}, true
}

// Split breaks payload into sequential chunks of size chunk, or CHUNK when
// chunk is not positive (the last chunk may be shorter). Used by Send to decide how many fragments to emit.
func Split(payload []byte, chunk int) [][]byte {
	if chunk <= 0 {
		chunk = CHUNK
	}
	if len(payload) == 0 {
		return [][]byte{{}}
	}
	var chunks [][]byte
	for start := 0; start < len(payload); start += chunk {
		end := start + chunk
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, payload[start:end])
	}
	return chunks
}

// BuildFragments lays payload out as the fragment sequence for one burst
// tagged with uid: a single RoleSolo fragment if it fits in one chunk,
// otherwise start, middle*, end.
func BuildFragments(payload []byte, uid byte, chunk int) []Fragment {
	chunks := Split(payload, chunk)
	if len(chunks) == 1 {
		return []Fragment{{Role: RoleSolo, UID: uid, Body: chunks[0]}}
	}

	frags := make([]Fragment, 0, len(chunks))
	for i, c := range chunks {
		role := RoleMiddle
		switch i {
		case 0:
			role = RoleStart
		case len(chunks) - 1:
			role = RoleEnd
		}
		frags = append(frags, Fragment{Role: role, UID: uid, Body: c})
	}
	return frags
}

// state is the reassembler's internal phase: waiting for a fresh burst
// to start, or mid-way through accumulating one.
type state int

const (
	stateWaitStart state = iota
	stateReceiving
)

// Reassembler drives the receive-side state machine for one inbound
// stream. It is owned by a single consumer task; no locking is needed.
type Reassembler struct {
	state state
	uid   byte
	parts [][]byte

	corruptions uint64
}

// NewReassembler returns a reassembler in WAIT_START.
func NewReassembler() *Reassembler {
	return &Reassembler{state: stateWaitStart}
}

// Delivery describes the outcome of feeding one fragment to the reassembler.
type Delivery struct {
	// Complete is true when Body was assembled via the solo or end path.
	Complete bool
	// Partial is true when Body was abandoned early (a new burst arrived,
	// or a uid mismatch was detected) and is being surfaced only for
	// observability.
	Partial bool
	Body    []byte
}

// Feed processes one incoming fragment against the current state,
// returning zero, one, or (on the cross-burst paths) two deliveries: a
// partial for the abandoned burst and, for RoleSolo after RECEIVING, a
// complete delivery for the new one.
func (r *Reassembler) Feed(f Fragment) []Delivery {
	switch r.state {
	case stateWaitStart:
		return r.feedWaitStart(f)
	default:
		return r.feedReceiving(f)
	}
}

func (r *Reassembler) feedWaitStart(f Fragment) []Delivery {
	switch f.Role {
	case RoleSolo:
		return []Delivery{{Complete: true, Body: cloneBody(f.Body)}}
	case RoleStart:
		r.state = stateReceiving
		r.uid = f.UID
		r.parts = [][]byte{cloneBody(f.Body)}
		return nil
	case RoleMiddle, RoleEnd:
		atomic.AddUint64(&r.corruptions, 1)
		return nil
	default:
		atomic.AddUint64(&r.corruptions, 1)
		return nil
	}
}

func (r *Reassembler) feedReceiving(f Fragment) []Delivery {
	switch f.Role {
	case RoleMiddle:
		if f.UID == r.uid {
			r.parts = append(r.parts, cloneBody(f.Body))
			return nil
		}
		return r.abandonAndDrop()
	case RoleEnd:
		if f.UID == r.uid {
			r.parts = append(r.parts, cloneBody(f.Body))
			body := concat(r.parts)
			r.reset()
			return []Delivery{{Complete: true, Body: body}}
		}
		return r.abandonAndDrop()
	case RoleStart:
		partial := concat(r.parts)
		r.uid = f.UID
		r.parts = [][]byte{cloneBody(f.Body)}
		return []Delivery{{Partial: true, Body: partial}}
	case RoleSolo:
		partial := concat(r.parts)
		r.reset()
		return []Delivery{
			{Partial: true, Body: partial},
			{Complete: true, Body: cloneBody(f.Body)},
		}
	default:
		return r.abandonAndDrop()
	}
}

// abandonAndDrop handles a middle/end fragment whose uid doesn't match the
// in-flight burst: the accumulated bytes are delivered as a partial, the
// mismatched fragment itself is dropped, and the state returns to WAIT_START.
func (r *Reassembler) abandonAndDrop() []Delivery {
	partial := concat(r.parts)
	atomic.AddUint64(&r.corruptions, 1)
	r.reset()
	return []Delivery{{Partial: true, Body: partial}}
}

func (r *Reassembler) reset() {
	r.state = stateWaitStart
	r.uid = 0
	r.parts = nil
}

// Corruptions returns the running count of ReassemblyCorruption events
// (role/uid mismatches) observed by this reassembler.
func (r *Reassembler) Corruptions() uint64 {
	return atomic.LoadUint64(&r.corruptions)
}

func cloneBody(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func concat(parts [][]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
