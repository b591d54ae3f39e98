// Command simulate runs both the robot and operator roles in one process
// over loopback, using rendezvous.LoopbackStrategy to skip multicast
// discovery, the handshake, and netctl entirely. Useful for exercising the
// codec/burst/transport/session stack end to end without real WiFi
// hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"robotlink/internal/codec"
	"robotlink/internal/frame"
	"robotlink/internal/rendezvous"
	"robotlink/internal/session"
	"robotlink/internal/telemetry"
	"robotlink/internal/transport"
)

func main() {
	fps := flag.Int("fps", 5, "synthetic camera frames to send per second")
	chunk := flag.Int("chunk", 4096, "fragment chunk size in bytes")
	geometry := flag.String("geometry", "640x480", "synthetic camera frame geometry WIDTHxHEIGHT")
	serverPort := flag.Int("server-port", rendezvous.DirectServerPort, "robot-side loopback port")
	clientPort := flag.Int("client-port", rendezvous.DirectClientPort, "operator-side loopback port")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n  %s -fps 10\n", os.Args[0])
	}
	flag.Parse()

	var gw, gh int
	if _, err := fmt.Sscanf(*geometry, "%dx%d", &gw, &gh); err == nil && gw > 0 && gh > 0 {
		frame.SetGeometry(gw, gh)
	}

	cat := codec.NewCatalog()
	telemetry.Register(cat)

	lp := rendezvous.LinkParameters{
		SSID:     "simulate",
		ServerIP: fmt.Sprintf("127.0.0.1:%d", *serverPort),
		ClientIP: fmt.Sprintf("127.0.0.1:%d", *clientPort),
	}
	strategy := rendezvous.LoopbackStrategy{Params: lp}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	resolved, err := strategy.Discover(ctx)
	if err != nil {
		log.Fatalf("simulate: discover: %v", err)
	}

	robotRecv, err := transport.Bind(resolved.ServerIP, "", "")
	if err != nil {
		log.Fatalf("simulate: bind robot recv: %v", err)
	}
	robotSend, err := transport.Connect(resolved.ClientIP, 0)
	if err != nil {
		log.Fatalf("simulate: connect robot send: %v", err)
	}
	operatorRecv, err := transport.Bind(resolved.ClientIP, "", "")
	if err != nil {
		log.Fatalf("simulate: bind operator recv: %v", err)
	}
	operatorSend, err := transport.Connect(resolved.ServerIP, 0)
	if err != nil {
		log.Fatalf("simulate: connect operator send: %v", err)
	}

	robotRuntime := &session.Runtime{Send: robotSend, Recv: robotRecv}
	operatorRuntime := &session.Runtime{Send: operatorSend, Recv: operatorRecv}

	robotProducer := func(ctx context.Context, sender *session.Sender) error {
		ticker := time.NewTicker(time.Second / time.Duration(*fps))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				rec, err := frame.GenerateMJpegCamFrame(128, uint32(1000 / *fps))
				if err != nil {
					log.Printf("simulate: frame: %v", err)
					continue
				}
				b, err := codec.Encode(cat, rec)
				if err != nil {
					log.Printf("simulate: encode: %v", err)
					continue
				}
				if err := sender.Send(b, *chunk); err != nil {
					log.Printf("simulate: send: %v", err)
				}
			}
		}
	}
	robotConsumer := &session.Consumer{Catalog: cat, Handlers: map[string]session.Handler{}, RecvTimeout: time.Second}

	received := 0
	operatorProducer := func(ctx context.Context, sender *session.Sender) error {
		<-ctx.Done()
		return nil
	}
	operatorConsumer := &session.Consumer{
		Catalog: cat,
		Handlers: map[string]session.Handler{
			"MJpegCamFrame": func(rec interface{}) {
				f := rec.(telemetry.MJpegCamFrame)
				received++
				if received%(*fps*5) == 0 {
					log.Printf("simulate: operator received %d frames (latest %d bytes)", received, len(f.Mjpeg))
				}
			},
		},
		RecvTimeout: time.Second,
	}

	errCh := make(chan error, 2)
	go func() { errCh <- robotRuntime.Run(ctx, robotProducer, robotConsumer) }()
	go func() { errCh <- operatorRuntime.Run(ctx, operatorProducer, operatorConsumer) }()

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && err != context.Canceled {
			log.Printf("simulate: role exited: %v", err)
		}
	}
	log.Printf("simulate: shut down after receiving %d frames", received)
}
