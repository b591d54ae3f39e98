// Package transport is the only component allowed to touch the OS network
// stack directly: thin unicast/multicast UDP endpoints with
// bind/connect/send/recv and a "last message wins" realtime mode.
// Fragment-level concerns (splitting a payload into datagrams and
// reassembling it) live one layer up, in internal/burst.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
)

// ErrTimeout is returned by Recv when no datagram arrives before the
// deadline. It is an expected condition, never fatal.
var ErrTimeout = errors.New("transport: recv timeout")

const maxDatagram = 65536

// Endpoint is a bound or connected UDP datagram socket, optionally joined
// to a multicast group.
type Endpoint struct {
	conn *net.UDPConn
	pc   *ipv4.PacketConn

	mu sync.Mutex // serializes writes so a burst's fragments are never interleaved

	realtimeMu sync.Mutex
	realtime   bool
	reader     *realtimeReader
}

// realtimeReader continuously drains the socket in the background and
// keeps only the newest datagram, so Recv in realtime mode never returns
// a backlog.
type realtimeReader struct {
	mu     sync.Mutex
	latest []byte
	ready  chan struct{}
	stop   chan struct{}
}

func newRealtimeReader() *realtimeReader {
	return &realtimeReader{ready: make(chan struct{}, 1), stop: make(chan struct{})}
}

func (r *realtimeReader) set(b []byte) {
	r.mu.Lock()
	r.latest = b
	r.mu.Unlock()
	select {
	case r.ready <- struct{}{}:
	default:
	}
}

func (r *realtimeReader) take() ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil {
		return nil, false
	}
	b := r.latest
	r.latest = nil
	return b, true
}

// Bind opens a UDP socket on the port of localAddr ("host:port"), bound on
// all local interfaces; the host part is not used for binding. If group is
// non-empty it is treated as a multicast group address and the socket
// joins it on ifname (or the first suitable interface if ifname is empty).
func Bind(localAddr, group, ifname string) (*Endpoint, error) {
	_, port, err := net.SplitHostPort(localAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: bad local address %q: %w", localAddr, err)
	}

	lc := net.ListenConfig{Control: reuseAddrAndPort}
	pc, err := lc.ListenPacket(context.Background(), "udp4", ":"+port)
	if err != nil {
		return nil, fmt.Errorf("transport: listen: %w", err)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("transport: unexpected packet conn type %T", pc)
	}
	_ = conn.SetReadBuffer(4 * 1024 * 1024)

	ep := &Endpoint{conn: conn}

	if group != "" {
		ipc := ipv4.NewPacketConn(conn)
		_ = ipc.SetMulticastLoopback(true)
		ifi, err := resolveInterface(ifname)
		if err != nil {
			conn.Close()
			return nil, err
		}
		if err := ipc.JoinGroup(ifi, &net.UDPAddr{IP: net.ParseIP(group)}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: join group %s: %w", group, err)
		}
		ep.pc = ipc
	}

	return ep, nil
}

// Connect opens a UDP socket and connects it to remoteAddr, so Send need
// not specify a destination each call. ttl controls multicast TTL when
// remoteAddr is a multicast group (1 means local LAN only).
func Connect(remoteAddr string, ttl int) (*Endpoint, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", remoteAddr, err)
	}
	conn, err := net.DialUDP("udp4", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %q: %w", remoteAddr, err)
	}

	ipc := ipv4.NewPacketConn(conn)
	if ttl > 0 {
		_ = ipc.SetMulticastTTL(ttl)
	}
	_ = ipc.SetMulticastLoopback(true)

	return &Endpoint{conn: conn, pc: ipc}, nil
}

func resolveInterface(ifname string) (*net.Interface, error) {
	if ifname != "" {
		return net.InterfaceByName(ifname)
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp != 0 && ifi.Flags&net.FlagMulticast != 0 && ifi.Flags&net.FlagLoopback == 0 {
			ifiCopy := ifi
			return &ifiCopy, nil
		}
	}
	return nil, fmt.Errorf("transport: no multicast-capable interface found")
}

// Send writes b as a single datagram. The whole call holds the
// endpoint's write mutex, so a caller emitting a multi-fragment burst
// must wrap the entire fragment sequence in one Send-per-fragment loop
// under its own higher-level lock if it needs burst-level atomicity
// across multiple Sends; single Send calls are always atomic with
// respect to each other.
func (e *Endpoint) Send(b []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.conn.Write(b)
	return err
}

// Lock/Unlock expose the endpoint's send mutex directly so a burst
// sender can hold it across every fragment of one message as a single
// critical section.
func (e *Endpoint) Lock()   { e.mu.Lock() }
func (e *Endpoint) Unlock() { e.mu.Unlock() }

// SendLocked writes b without acquiring the send mutex; callers must
// already hold it via Lock().
func (e *Endpoint) SendLocked(b []byte) error {
	_, err := e.conn.Write(b)
	return err
}

// SetRealtime toggles "last message wins" mode: when enabled, Recv never
// returns more than the newest unread datagram, discarding any that
// arrived before it was consumed. Intended for high-rate camera/FFT
// streams where backlog is worse than loss.
func (e *Endpoint) SetRealtime(enabled bool) {
	e.realtimeMu.Lock()
	defer e.realtimeMu.Unlock()
	if enabled == e.realtime {
		return
	}
	e.realtime = enabled
	if enabled {
		e.reader = newRealtimeReader()
		go e.runRealtimeReader(e.reader)
	} else if e.reader != nil {
		close(e.reader.stop)
		e.reader = nil
	}
}

func (e *Endpoint) runRealtimeReader(r *realtimeReader) {
	buf := make([]byte, maxDatagram)
	for {
		select {
		case <-r.stop:
			return
		default:
		}
		_ = e.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		b := make([]byte, n)
		copy(b, buf[:n])
		r.set(b)
	}
}

// Recv blocks for up to timeout for the next inbound datagram. In
// realtime mode it waits for the background reader's newest datagram
// instead of reading the socket directly.
func (e *Endpoint) Recv(timeout time.Duration) ([]byte, error) {
	e.realtimeMu.Lock()
	reader := e.reader
	e.realtimeMu.Unlock()

	if reader != nil {
		if b, ok := reader.take(); ok {
			return b, nil
		}
		select {
		case <-reader.ready:
			if b, ok := reader.take(); ok {
				return b, nil
			}
			return nil, ErrTimeout
		case <-time.After(timeout):
			return nil, ErrTimeout
		}
	}

	if err := e.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	buf := make([]byte, maxDatagram)
	n, _, err := e.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, ErrTimeout
		}
		return nil, err
	}
	return buf[:n], nil
}

// LocalAddrString returns the endpoint's bound local address, useful for
// wiring together test fixtures or logging the port actually chosen when
// binding to port 0.
func (e *Endpoint) LocalAddrString() string {
	return e.conn.LocalAddr().String()
}

// Close releases the underlying socket.
func (e *Endpoint) Close() error {
	e.realtimeMu.Lock()
	if e.reader != nil {
		close(e.reader.stop)
		e.reader = nil
	}
	e.realtimeMu.Unlock()
	if e.pc != nil {
		_ = e.pc.Close()
	}
	return e.conn.Close()
}

// LocalIP returns the best-effort local IPv4 address reachable for
// outbound traffic, by dialing a well-known address and reading back the
// connection's local endpoint without ever sending a packet.
func LocalIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("transport: unexpected local addr type %T", conn.LocalAddr())
	}
	return addr.IP.String(), nil
}
