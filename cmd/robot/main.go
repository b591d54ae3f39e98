// Command robot is the telemetry source: it discovers its operator, brings
// up the direct link, and streams synthetic camera frames over it via
// flag-driven configuration and a ticker-paced send loop on top of the
// rendezvous+session stack.
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
	"robotlink/internal/link"
	"robotlink/internal/netctl"
	"robotlink/internal/rendezvous"
	"robotlink/internal/session"
	"robotlink/internal/telemetry"
	"robotlink/internal/transport"
)

func main() {
	ssid := flag.String("ssid", "robot_link", "ad-hoc WiFi SSID to negotiate with the operator")
	ifname := flag.String("if", "", "network interface name to use for discovery and the ad-hoc link (optional)")
	password := flag.String("password", rendezvous.DefaultPassword, "ad-hoc WiFi password")
	localWifi := flag.Bool("local-wifi", false, "skip discovery/hotspot setup; both peers are already on the given addresses")
	serverIP := flag.String("server-ip", "", "robot's address on the direct link (required with -local-wifi; defaults to "+link.DefaultAdHocServerIP+" for ad-hoc)")
	clientIP := flag.String("client-ip", "", "operator's address on the direct link (required with -local-wifi; defaults to "+link.DefaultAdHocClientIP+" for ad-hoc)")

	slides := flag.String("slides", "", "directory containing images to use as a synthetic camera feed")
	slideInterval := flag.Int("slide-interval", 5, "slideshow interval in seconds")
	fade := flag.Int("fade", 0, "crossfade duration in seconds (0 to disable)")
	quality := flag.Int("quality", 80, "JPEG encoding quality (1-100)")
	timestamp := flag.Bool("timestamp", false, "draw a timestamp overlay on each frame")
	geometry := flag.String("geometry", "1280x720", "output frame geometry WIDTHxHEIGHT")
	fps := flag.Int("fps", 5, "camera frames to send per second")
	chunk := flag.Int("chunk", 4096, "fragment chunk size in bytes")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n  %s -ssid robot_link -slides /path/to/slides -fps 10\n", os.Args[0])
	}
	flag.Parse()

	var gw, gh int
	if _, err := fmt.Sscanf(*geometry, "%dx%d", &gw, &gh); err == nil && gw > 0 && gh > 0 {
		frame.SetGeometry(gw, gh)
	}
	if *slides != "" {
		if err := frame.StartSlideshow(*slides, time.Duration(*slideInterval)*time.Second); err != nil {
			log.Fatalf("robot: StartSlideshow: %v", err)
		}
		if *fade > 0 {
			frame.SetFade(time.Duration(*fade) * time.Second)
		}
	}
	frame.SetQuality(*quality)
	frame.SetTimestamp(*timestamp)

	cat := codec.NewCatalog()
	telemetry.Register(cat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var strategy rendezvous.Strategy
	var teardown func() error
	if *localWifi {
		if *serverIP == "" || *clientIP == "" {
			log.Fatalf("robot: -local-wifi requires -server-ip and -client-ip")
		}
		strategy = rendezvous.LocalWifiStrategy{Params: rendezvous.LinkParameters{
			SSID: *ssid, ServerIP: *serverIP, ClientIP: *clientIP, Password: *password,
		}}
	} else {
		adHoc := &link.AdHocStrategy{
			Catalog: cat, Net: netctl.New(), IsRobot: true,
			Ifname: *ifname, SSID: *ssid, Password: *password,
			ServerIP: *serverIP, ClientIP: *clientIP,
		}
		strategy = adHoc
		teardown = func() error { return adHoc.Teardown(context.Background(), *ssid) }
	}

	lp, err := strategy.Discover(ctx)
	if err != nil {
		log.Fatalf("robot: discover: %v", err)
	}
	log.Printf("robot: link established: ssid=%s server=%s client=%s", lp.SSID, lp.ServerIP, lp.ClientIP)

	recv, err := transport.Bind(fmt.Sprintf("%s:%d", lp.ServerIP, rendezvous.DirectServerPort), "", *ifname)
	if err != nil {
		log.Fatalf("robot: bind recv: %v", err)
	}
	send, err := transport.Connect(fmt.Sprintf("%s:%d", lp.ClientIP, rendezvous.DirectClientPort), 0)
	if err != nil {
		log.Fatalf("robot: connect send: %v", err)
	}

	runtime := &session.Runtime{Send: send, Recv: recv, Teardown: teardown}

	producer := func(ctx context.Context, sender *session.Sender) error {
		ticker := time.NewTicker(time.Second / time.Duration(*fps))
		defer ticker.Stop()
		sent := 0
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				rec, err := frame.GenerateMJpegCamFrame(128, uint32(1000 / *fps))
				if err != nil {
					log.Printf("robot: frame: %v", err)
					continue
				}
				b, err := codec.Encode(cat, rec)
				if err != nil {
					log.Printf("robot: encode: %v", err)
					continue
				}
				if err := sender.Send(b, *chunk); err != nil {
					log.Printf("robot: send: %v", err)
					continue
				}
				sent++
				if sent%(*fps*10) == 0 {
					log.Printf("robot: sent %d frames", sent)
				}
			}
		}
	}

	consumer := &session.Consumer{
		Catalog:  cat,
		Handlers: map[string]session.Handler{},
		OnPartial: func(body []byte) {
			log.Printf("robot: dropped partial burst (%d bytes)", len(body))
		},
		RecvTimeout: time.Second,
	}

	if err := runtime.Run(ctx, producer, consumer); err != nil {
		log.Fatalf("robot: session: %v", err)
	}
	log.Printf("robot: shut down")
}
