package rendezvous

import (
	"fmt"
	"strings"
	"testing"
)

func TestParseIP(t *testing.T) {
	cases := []struct {
		msg  string
		want string
	}{
		{"PING from server: 192.168.2.1", "192.168.2.1"},
		{"PING_RESPONSE from client: 10.0.0.42", "10.0.0.42"},
		{"PING from server:  172.16.0.9", "172.16.0.9"},
		{"no colon here", ""},
	}
	for _, c := range cases {
		if got := parseIP(c.msg); got != c.want {
			t.Errorf("parseIP(%q) = %q, want %q", c.msg, got, c.want)
		}
	}
}

func TestDiscoveryWireStrings(t *testing.T) {
	// Both sides match on substrings, so the full message must carry the
	// exact labels the other side scans for.
	ping := fmt.Sprintf("PING from server: %s", "192.168.2.1")
	if !strings.Contains(ping, "PING from server") {
		t.Fatalf("ping message lost its label: %q", ping)
	}
	if parseIP(ping) != "192.168.2.1" {
		t.Fatalf("ping message does not round-trip its ip: %q", ping)
	}

	pong := fmt.Sprintf("PING_RESPONSE from client: %s", "192.168.2.2")
	if !strings.Contains(pong, "PING_RESPONSE from client") {
		t.Fatalf("pong message lost its label: %q", pong)
	}
	if parseIP(pong) != "192.168.2.2" {
		t.Fatalf("pong message does not round-trip its ip: %q", pong)
	}
}
