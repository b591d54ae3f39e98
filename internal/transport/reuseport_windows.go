//go:build windows

package transport

import "syscall"

// reuseAddrAndPort sets SO_REUSEADDR before the socket binds. Windows has
// no direct SO_REUSEPORT equivalent; SO_REUSEADDR alone allows the shared
// multicast bind there.
func reuseAddrAndPort(_, _ string, c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		ctrlErr = syscall.SetsockoptInt(syscall.Handle(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return ctrlErr
}
