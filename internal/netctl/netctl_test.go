package netctl

import (
	"context"
	"strings"
	"testing"

	"robotlink/internal/rendezvous"
)

type fakeExec struct {
	calls []string
	// reply returns (stdout, stderr, exitCode) for a given command.
	reply func(command string) (string, string, int)
}

func (f *fakeExec) Run(_ context.Context, name string, args ...string) (string, string, int, error) {
	command := strings.Join(args, " ")
	f.calls = append(f.calls, command)
	stdout, stderr, code := f.reply(command)
	return stdout, stderr, code, nil
}

func TestSetHotspotSkipsDeleteWhenAbsent(t *testing.T) {
	fe := &fakeExec{reply: func(command string) (string, string, int) {
		if strings.Contains(command, "con show") {
			return "", "", 10 // absent
		}
		return "ok", "", 0
	}}
	c := &Controller{Exec: fe}

	lp := rendezvous.LinkParameters{SSID: "robot_wifi", ServerIP: "192.168.2.1", ClientIP: "192.168.2.2"}
	if err := c.SetHotspot(context.Background(), lp, "wlan0", "192.168.2.1"); err != nil {
		t.Fatalf("SetHotspot: %v", err)
	}

	for _, call := range fe.calls {
		if strings.Contains(call, "con delete") {
			t.Fatalf("unexpected delete when connection was absent: %v", fe.calls)
		}
	}
	foundAdhoc := false
	for _, call := range fe.calls {
		if strings.Contains(call, "adhoc_pair") {
			t.Fatalf("must use adhoc mode, not adhoc_pair: %q", call)
		}
		if strings.Contains(call, "802-11-wireless.mode adhoc ") {
			foundAdhoc = true
		}
	}
	if !foundAdhoc {
		t.Fatalf("expected an adhoc mode command, got %v", fe.calls)
	}
}

func TestSetHotspotDeletesExisting(t *testing.T) {
	fe := &fakeExec{reply: func(command string) (string, string, int) {
		if strings.Contains(command, "con show") {
			return "robot_wifi", "", 0
		}
		return "ok", "", 0
	}}
	c := &Controller{Exec: fe}

	lp := rendezvous.LinkParameters{SSID: "robot_wifi", ServerIP: "192.168.2.1", ClientIP: "192.168.2.2"}
	if err := c.SetHotspot(context.Background(), lp, "wlan0", "192.168.2.1"); err != nil {
		t.Fatalf("SetHotspot: %v", err)
	}

	found := false
	for _, call := range fe.calls {
		if strings.Contains(call, "con delete robot_wifi") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a delete call when connection existed, got %v", fe.calls)
	}
}

func TestSetHotspotFailurePropagates(t *testing.T) {
	fe := &fakeExec{reply: func(command string) (string, string, int) {
		if strings.Contains(command, "con show") {
			return "", "", 10
		}
		if strings.Contains(command, "con up") {
			return "", "activation failed", 1
		}
		return "ok", "", 0
	}}
	c := &Controller{Exec: fe}

	lp := rendezvous.LinkParameters{SSID: "robot_wifi", ServerIP: "192.168.2.1", ClientIP: "192.168.2.2"}
	err := c.SetHotspot(context.Background(), lp, "wlan0", "192.168.2.1")
	if err == nil {
		t.Fatalf("expected NetworkControlFailed")
	}
	var ncf *NetworkControlFailed
	if !asNetworkControlFailed(err, &ncf) {
		t.Fatalf("expected *NetworkControlFailed, got %v", err)
	}
	if ncf.Stderr != "activation failed" {
		t.Fatalf("unexpected stderr: %q", ncf.Stderr)
	}
}

func asNetworkControlFailed(err error, target **NetworkControlFailed) bool {
	e, ok := err.(*NetworkControlFailed)
	if !ok {
		return false
	}
	*target = e
	return true
}
