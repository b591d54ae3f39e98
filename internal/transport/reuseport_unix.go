//go:build !windows

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseAddrAndPort sets SO_REUSEADDR and SO_REUSEPORT before the socket
// binds, so both peers of a multicast group can share a port on one host.
// golang.org/x/sys/unix carries the SO_REUSEPORT constant uniformly across
// the unix-family GOOS values that syscall itself does not cover
// consistently.
func reuseAddrAndPort(_, _ string, c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
			ctrlErr = e
			return
		}
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); e != nil {
			ctrlErr = e
		}
	})
	if err != nil {
		return err
	}
	return ctrlErr
}
