package burst

import (
	"bytes"
	"testing"
)

func TestSoloIdempotence(t *testing.T) {
	body := []byte("small payload")
	frags := BuildFragments(body, 7, CHUNK)
	if len(frags) != 1 || frags[0].Role != RoleSolo {
		t.Fatalf("expected one solo fragment, got %+v", frags)
	}

	r := NewReassembler()
	deliveries := r.Feed(frags[0])
	if len(deliveries) != 1 || !deliveries[0].Complete {
		t.Fatalf("expected one complete delivery, got %+v", deliveries)
	}
	if !bytes.Equal(deliveries[0].Body, body) {
		t.Fatalf("body mismatch: got %q want %q", deliveries[0].Body, body)
	}
	if r.state != stateWaitStart {
		t.Fatalf("expected reassembler back in WAIT_START")
	}
}

func TestFragmentAndReassemble(t *testing.T) {
	payload := make([]byte, 10240)
	for i := range payload {
		payload[i] = byte(i)
	}

	frags := BuildFragments(payload, 9, 4096)
	if len(frags) != 3 {
		t.Fatalf("expected 3 fragments, got %d", len(frags))
	}
	if frags[0].Role != RoleStart || len(frags[0].Body) != 4096 {
		t.Fatalf("fragment 0 = %+v", frags[0])
	}
	if frags[1].Role != RoleMiddle || len(frags[1].Body) != 4096 {
		t.Fatalf("fragment 1 = %+v", frags[1])
	}
	if frags[2].Role != RoleEnd || len(frags[2].Body) != 2048 {
		t.Fatalf("fragment 2 = %+v", frags[2])
	}

	r := NewReassembler()
	var out []byte
	for _, f := range frags {
		for _, d := range r.Feed(f) {
			if d.Complete {
				out = d.Body
			}
		}
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("reassembled payload mismatch")
	}
}

func TestChunkSizeProducesCeilFragments(t *testing.T) {
	sizes := []struct{ payload, chunk int }{
		{100, 30}, {4096, 4096}, {4097, 4096}, {1, 1},
	}
	for _, s := range sizes {
		payload := make([]byte, s.payload)
		frags := BuildFragments(payload, 1, s.chunk)
		want := (s.payload + s.chunk - 1) / s.chunk
		if want <= 1 {
			if len(frags) != 1 || frags[0].Role != RoleSolo {
				t.Fatalf("payload=%d chunk=%d: expected solo, got %+v", s.payload, s.chunk, frags)
			}
			continue
		}
		if len(frags) != want {
			t.Fatalf("payload=%d chunk=%d: got %d fragments, want %d", s.payload, s.chunk, len(frags), want)
		}
	}
}

// TestCrossBurstInterleaving feeds [start,1,A] [middle,2,B] [end,2,C]: the
// uid mismatch on the second fragment must deliver A as a partial, drop the
// mismatched end fragment, and leave the reassembler back in WAIT_START.
func TestCrossBurstInterleaving(t *testing.T) {
	r := NewReassembler()

	d := r.Feed(Fragment{Role: RoleStart, UID: 1, Body: []byte("A")})
	if len(d) != 0 {
		t.Fatalf("expected no delivery from start, got %+v", d)
	}

	d = r.Feed(Fragment{Role: RoleMiddle, UID: 2, Body: []byte("B")})
	if len(d) != 1 || !d[0].Partial || !bytes.Equal(d[0].Body, []byte("A")) {
		t.Fatalf("expected partial delivery of A, got %+v", d)
	}
	if r.state != stateWaitStart {
		t.Fatalf("expected WAIT_START after cross-burst middle")
	}

	before := r.Corruptions()
	d = r.Feed(Fragment{Role: RoleEnd, UID: 2, Body: []byte("C")})
	if len(d) != 0 {
		t.Fatalf("expected end to be dropped, got %+v", d)
	}
	if r.Corruptions() != before+1 {
		t.Fatalf("expected corruption counter to increment")
	}
	if r.state != stateWaitStart {
		t.Fatalf("expected final state WAIT_START")
	}
}

func TestReorderingNeverMixesBursts(t *testing.T) {
	r := NewReassembler()

	fragsA := BuildFragments([]byte("burst-one-payload"), 10, 4)
	fragsB := BuildFragments([]byte("burst-two-payload!!"), 20, 4)

	interleaved := make([]Fragment, 0, len(fragsA)+len(fragsB))
	for i := 0; i < len(fragsA) || i < len(fragsB); i++ {
		if i < len(fragsA) {
			interleaved = append(interleaved, fragsA[i])
		}
		if i < len(fragsB) {
			interleaved = append(interleaved, fragsB[i])
		}
	}

	var completes [][]byte
	for _, f := range interleaved {
		for _, d := range r.Feed(f) {
			if d.Complete {
				completes = append(completes, d.Body)
			}
		}
	}

	for _, c := range completes {
		if !bytes.Equal(c, []byte("burst-one-payload")) && !bytes.Equal(c, []byte("burst-two-payload!!")) {
			t.Fatalf("delivered body mixes bursts: %q", c)
		}
	}
	if len(completes) > 1 {
		t.Fatalf("expected at most one complete delivery out of interleaved bursts, got %d", len(completes))
	}
}
