package rendezvous

import (
	"fmt"
	"net"
	"testing"
	"time"

	"robotlink/internal/codec"
	"robotlink/internal/transport"
)

func loopbackAddr(t *testing.T, bound string) string {
	t.Helper()
	_, port, err := net.SplitHostPort(bound)
	if err != nil {
		t.Fatalf("split host port %q: %v", bound, err)
	}
	return fmt.Sprintf("127.0.0.1:%s", port)
}

func TestStatelessHandshakeCompletes(t *testing.T) {
	cat := codec.NewCatalog()
	Register(cat)

	serverRecv, err := transport.Bind("127.0.0.1:0", "", "")
	if err != nil {
		t.Fatalf("bind server recv: %v", err)
	}
	defer serverRecv.Close()
	clientRecv, err := transport.Bind("127.0.0.1:0", "", "")
	if err != nil {
		t.Fatalf("bind client recv: %v", err)
	}
	defer clientRecv.Close()

	serverSend, err := transport.Connect(loopbackAddr(t, clientRecv.LocalAddrString()), 0)
	if err != nil {
		t.Fatalf("connect server send: %v", err)
	}
	defer serverSend.Close()
	clientSend, err := transport.Connect(loopbackAddr(t, serverRecv.LocalAddrString()), 0)
	if err != nil {
		t.Fatalf("connect client send: %v", err)
	}
	defer clientSend.Close()

	obj := LinkParameters{SSID: "s", ServerIP: "a", ClientIP: "b", Password: "p"}
	server := NewServerStatelessHandshake(cat, serverSend, serverRecv, obj, 200*time.Millisecond)
	client := NewClientStatelessHandshake(cat, clientSend, clientRecv, 200*time.Millisecond)

	type result struct {
		v   interface{}
		err error
	}
	serverCh := make(chan result, 1)
	clientCh := make(chan result, 1)
	go func() { v, err := server.Run(); serverCh <- result{v, err} }()
	go func() { v, err := client.Run(); clientCh <- result{v, err} }()

	sr := <-serverCh
	cr := <-clientCh
	if sr.err != nil || cr.err != nil {
		t.Fatalf("server err=%v client err=%v", sr.err, cr.err)
	}
	if sr.v.(LinkParameters) != obj {
		t.Fatalf("server result mismatch: %+v", sr.v)
	}
	if cr.v.(LinkParameters) != obj {
		t.Fatalf("client result mismatch: %+v", cr.v)
	}
}

type unregistered struct{}

func (unregistered) TypeName() string                    { return "NotInCatalog" }
func (unregistered) FieldValues() map[string]interface{} { return nil }

func TestStatelessHandshakeSurfacesEncodeFailure(t *testing.T) {
	cat := codec.NewCatalog()
	Register(cat)

	send, err := transport.Connect("127.0.0.1:9", 0)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer send.Close()
	recv, err := transport.Bind("127.0.0.1:0", "", "")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer recv.Close()

	server := NewServerStatelessHandshake(cat, send, recv, unregistered{}, 50*time.Millisecond)
	if _, err := server.Run(); err == nil {
		t.Fatalf("expected encode failure to surface instead of retrying forever")
	}
}
