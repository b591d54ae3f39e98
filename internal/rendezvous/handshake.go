package rendezvous

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"robotlink/internal/codec"
)

// ErrServerUnavailable is returned by the lazy-pirate client once its
// retries are exhausted without a reply.
var ErrServerUnavailable = errors.New("rendezvous: server unavailable, abandoning")

const (
	lazyPirateRequest = "pls"
	// RetryTimeout is how long the client waits for a reply before
	// closing and reopening the connection and resending.
	RetryTimeout = 2500 * time.Millisecond
	// MaxRetries bounds how many times the client will resend before
	// giving up with ErrServerUnavailable.
	MaxRetries = 10
)

// ServeHandshake runs the robot side of Phase B once: bind a reliable
// server endpoint, wait for the "pls" request, and reply with obj encoded
// through cat. It blocks until one request/reply cycle completes or ctx
// is canceled.
func ServeHandshake(ctx context.Context, cat *codec.Catalog, localIP string, obj codec.Fielder) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", localIP, HandshakePort))
	if err != nil {
		return fmt.Errorf("rendezvous: listen handshake: %w", err)
	}
	defer ln.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-done:
		}
	}()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("rendezvous: accept handshake: %w", err)
	}
	defer conn.Close()

	req := make([]byte, len(lazyPirateRequest))
	if _, err := readFull(conn, req); err != nil {
		return fmt.Errorf("rendezvous: read request: %w", err)
	}

	reply, err := codec.Encode(cat, obj)
	if err != nil {
		return fmt.Errorf("rendezvous: encode link parameters: %w", err)
	}
	if _, err := conn.Write(reply); err != nil {
		return fmt.Errorf("rendezvous: write reply: %w", err)
	}
	return nil
}

// RequestHandshake runs the operator side of Phase B: the lazy-pirate
// client pattern. On each RetryTimeout expiry it closes and reopens the
// connection and resends the request, counting down from MaxRetries.
func RequestHandshake(ctx context.Context, cat *codec.Catalog, serverIP string) (LinkParameters, error) {
	return requestHandshake(ctx, cat, fmt.Sprintf("%s:%d", serverIP, HandshakePort), RetryTimeout)
}

func requestHandshake(ctx context.Context, cat *codec.Catalog, addr string, timeout time.Duration) (LinkParameters, error) {
	retriesLeft := MaxRetries
	for {
		if err := ctx.Err(); err != nil {
			return LinkParameters{}, err
		}
		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			if retriesLeft--; retriesLeft <= 0 {
				return LinkParameters{}, ErrServerUnavailable
			}
			continue
		}

		reply, err := requestOnce(conn, timeout)
		conn.Close()
		if err != nil {
			if retriesLeft--; retriesLeft <= 0 {
				return LinkParameters{}, ErrServerUnavailable
			}
			continue
		}

		obj, err := codec.Decode(cat, reply)
		if err != nil {
			return LinkParameters{}, fmt.Errorf("rendezvous: decode link parameters: %w", err)
		}
		lp, ok := obj.(LinkParameters)
		if !ok {
			return LinkParameters{}, fmt.Errorf("rendezvous: unexpected reply type %T", obj)
		}
		return lp, nil
	}
}

func requestOnce(conn net.Conn, timeout time.Duration) ([]byte, error) {
	if _, err := conn.Write([]byte(lazyPirateRequest)); err != nil {
		return nil, err
	}
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	buf := make([]byte, 65536)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
