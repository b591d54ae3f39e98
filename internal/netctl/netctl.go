// Package netctl is a thin, side-effectful adapter that shells out to
// nmcli to create/activate an ad-hoc WiFi profile matching negotiated
// link parameters, and to restore whatever connection was active
// beforehand on teardown.
package netctl

import (
	"context"
	"fmt"
	"strings"

	"robotlink/internal/rendezvous"
	"robotlink/internal/shellexec"
)

// NetworkControlFailed wraps a non-zero nmcli exit, surfacing stderr.
// Fatal on setup; logged and swallowed on teardown.
type NetworkControlFailed struct {
	Command string
	Stderr  string
	Code    int
}

func (e *NetworkControlFailed) Error() string {
	return fmt.Sprintf("netctl: %q failed (exit %d): %s", e.Command, e.Code, e.Stderr)
}

// Controller drives nmcli through an injected shellexec.Executor.
type Controller struct {
	Exec shellexec.Executor
}

// New returns a Controller backed by the real OS shell.
func New() *Controller {
	return &Controller{Exec: shellexec.OSExecutor{}}
}

func (c *Controller) run(ctx context.Context, command string) (stdout string, exitCode int, err error) {
	stdout, stderr, code, err := c.Exec.Run(ctx, "sh", "-c", command)
	if err != nil {
		return "", -1, err
	}
	if code != 0 {
		return stdout, code, &NetworkControlFailed{Command: command, Stderr: stderr, Code: code}
	}
	return stdout, code, nil
}

// WifiDevices enumerates wireless interfaces and the currently active
// connection name for the first one, so teardown can restore it.
func (c *Controller) WifiDevices(ctx context.Context) (devices []string, currentConnection string, err error) {
	out, _, err := c.run(ctx, `nmcli --get-values GENERAL.DEVICE,GENERAL.TYPE device show | sed '/^wifi/!{h;d;};x'`)
	if err != nil {
		return nil, "", fmt.Errorf("netctl: listing wifi devices: %w", err)
	}
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			devices = append(devices, line)
		}
	}
	if len(devices) == 0 {
		return nil, "", fmt.Errorf("netctl: no wifi devices found")
	}

	out, _, err = c.run(ctx, fmt.Sprintf(`nmcli -t -f GENERAL.CONNECTION device show %s | grep -oP 'GENERAL.CONNECTION:\K\w+'`, devices[0]))
	if err != nil {
		return nil, "", fmt.Errorf("netctl: reading current connection: %w", err)
	}
	return devices, strings.TrimSpace(out), nil
}

// connectionExists checks whether an nmcli connection profile named ssid
// is already present. nmcli's "con show" exits 10 when the connection is
// absent; that is treated as success with an empty result, not an error.
func (c *Controller) connectionExists(ctx context.Context, ssid string) (bool, error) {
	out, code, err := c.run(ctx, fmt.Sprintf("nmcli -t -f connection.id con show %s", ssid))
	if err == nil {
		return strings.TrimSpace(out) != "", nil
	}
	if code == 10 {
		return false, nil
	}
	return false, err
}

// SetHotspot brings up an ad-hoc profile on dev matching lp: mode ad-hoc,
// manual IPv4 on a /24, IPv6 disabled. The "adhoc" mode string is used on
// both sides of the link; nmcli has no separate "adhoc_pair" mode, so a
// mismatched mode string on one side would leave that peer unable to
// join the cell the other just created.
func (c *Controller) SetHotspot(ctx context.Context, lp rendezvous.LinkParameters, dev string, localIP string) error {
	exists, err := c.connectionExists(ctx, lp.SSID)
	if err != nil {
		return err
	}
	if exists {
		if _, _, err := c.run(ctx, fmt.Sprintf("nmcli con delete %s", lp.SSID)); err != nil {
			return err
		}
	}

	commands := []string{
		fmt.Sprintf("nmcli con add type wifi ifname %s con-name %s autoconnect yes ssid %s", dev, lp.SSID, lp.SSID),
		fmt.Sprintf("nmcli con modify %s 802-11-wireless.mode adhoc ipv4.addresses %s/24 ipv4.method manual ipv6.method ignore", lp.SSID, localIP),
		fmt.Sprintf("nmcli con up %s", lp.SSID),
	}
	for _, cmd := range commands {
		if _, _, err := c.run(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

// Restore deactivates the ad-hoc profile and reactivates priorConnection.
// Errors here are logged and swallowed by the caller (session teardown
// must always complete); Restore itself still reports them so the caller
// can decide how to log.
func (c *Controller) Restore(ctx context.Context, ssid, priorConnection string) error {
	if _, _, err := c.run(ctx, fmt.Sprintf("nmcli con down %s", ssid)); err != nil {
		return err
	}
	if _, _, err := c.run(ctx, fmt.Sprintf("nmcli con up %s", priorConnection)); err != nil {
		return err
	}
	return nil
}
