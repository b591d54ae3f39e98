package session

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"robotlink/internal/codec"
	"robotlink/internal/transport"
)

type pingRecord struct{ N uint32 }

func (p pingRecord) TypeName() string { return "Ping" }
func (p pingRecord) FieldValues() map[string]interface{} {
	return map[string]interface{}{"n": p.N}
}

func pingDescriptor() *codec.Descriptor {
	return &codec.Descriptor{
		Name:   "Ping",
		Fields: []codec.FieldSpec{{Name: "n", Kind: codec.KindU32}},
		New: func(values map[string]interface{}) (interface{}, error) {
			return pingRecord{N: values["n"].(uint32)}, nil
		},
	}
}

func loopbackAddr(t *testing.T, bound string) string {
	t.Helper()
	_, port, err := net.SplitHostPort(bound)
	if err != nil {
		t.Fatalf("split host port %q: %v", bound, err)
	}
	return fmt.Sprintf("127.0.0.1:%s", port)
}

func TestProducerConsumerRoundTrip(t *testing.T) {
	cat := codec.NewCatalog()
	cat.Register(pingDescriptor())

	consumerRecv, err := transport.Bind("127.0.0.1:0", "", "")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	producerSend, err := transport.Connect(loopbackAddr(t, consumerRecv.LocalAddrString()), 0)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	received := make(chan uint32, 4)
	consumer := &Consumer{
		Catalog: cat,
		Handlers: map[string]Handler{
			"Ping": func(rec interface{}) { received <- rec.(pingRecord).N },
		},
		RecvTimeout: 100 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	runtime := &Runtime{Send: producerSend, Recv: consumerRecv}
	producer := func(ctx context.Context, sender *Sender) error {
		for i := uint32(0); i < 3; i++ {
			b, err := codec.Encode(cat, pingRecord{N: i})
			if err != nil {
				return err
			}
			if err := sender.Send(b, 4096); err != nil {
				return err
			}
		}
		<-ctx.Done()
		return nil
	}

	go func() { _ = runtime.Run(ctx, producer, consumer) }()

	got := make(map[uint32]bool)
	for i := 0; i < 3; i++ {
		select {
		case n := <-received:
			got[n] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
	for i := uint32(0); i < 3; i++ {
		if !got[i] {
			t.Fatalf("missing message %d", i)
		}
	}
}

func TestLargePayloadFragmentsAcrossBurst(t *testing.T) {
	cat := codec.NewCatalog()
	cat.Register(&codec.Descriptor{
		Name:   "Blob",
		Fields: []codec.FieldSpec{{Name: "data", Kind: codec.KindBytes}},
		New: func(values map[string]interface{}) (interface{}, error) {
			return blobRecord{Data: values["data"].([]byte)}, nil
		},
	})

	rx, err := transport.Bind("127.0.0.1:0", "", "")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer rx.Close()
	tx, err := transport.Connect(loopbackAddr(t, rx.LocalAddrString()), 0)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer tx.Close()

	payload := make([]byte, 10240)
	for i := range payload {
		payload[i] = byte(i)
	}
	b, err := codec.Encode(cat, blobRecord{Data: payload})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	sender := NewSender(tx)
	done := make(chan struct{})
	go func() {
		_ = sender.Send(b, 4096)
		close(done)
	}()

	received := make(chan interface{}, 1)
	consumer := &Consumer{
		Catalog:     cat,
		Handlers:    map[string]Handler{"Blob": func(rec interface{}) { received <- rec }},
		RecvTimeout: 100 * time.Millisecond,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() { _ = consumer.Run(ctx, rx) }()

	<-done
	select {
	case rec := <-received:
		got := rec.(blobRecord).Data
		if len(got) != len(payload) {
			t.Fatalf("length mismatch: got %d want %d", len(got), len(payload))
		}
		for i := range got {
			if got[i] != payload[i] {
				t.Fatalf("byte mismatch at %d", i)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for reassembled blob")
	}
}

type blobRecord struct{ Data []byte }

func (b blobRecord) TypeName() string                    { return "Blob" }
func (b blobRecord) FieldValues() map[string]interface{} { return map[string]interface{}{"data": b.Data} }
