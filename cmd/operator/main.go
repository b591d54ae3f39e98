// Command operator is the telemetry sink: it discovers its robot, brings
// up the direct link, and serves a live MJPEG debug view of whatever
// camera frames arrive over a client hub and HTTP multipart streaming
// endpoint fed by the rendezvous+session stack.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"robotlink/internal/codec"
	"robotlink/internal/link"
	"robotlink/internal/netctl"
	"robotlink/internal/rendezvous"
	"robotlink/internal/session"
	"robotlink/internal/telemetry"
	"robotlink/internal/transport"
)

type client struct{ ch chan []byte }

type hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

func newHub() *hub { return &hub{clients: make(map[*client]struct{})} }

func (h *hub) add(c *client)    { h.mu.Lock(); h.clients[c] = struct{}{}; h.mu.Unlock() }
func (h *hub) remove(c *client) { h.mu.Lock(); delete(h.clients, c); close(c.ch); h.mu.Unlock() }
func (h *hub) broadcast(frame []byte) {
	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.ch <- frame:
		default:
		}
	}
	h.mu.Unlock()
}

var broadcasted uint64

func main() {
	ssid := flag.String("ssid", "robot_link", "ad-hoc WiFi SSID to negotiate with the robot")
	ifname := flag.String("if", "", "network interface name to use for discovery and the ad-hoc link (optional)")
	localWifi := flag.Bool("local-wifi", false, "skip discovery/hotspot setup; both peers are already on the given addresses")
	serverIP := flag.String("server-ip", "", "robot's address, required with -local-wifi")
	clientIP := flag.String("client-ip", "", "operator's address, required with -local-wifi")
	httpAddr := flag.String("http", ":8080", "http listen address for the debug viewer")
	realtime := flag.Bool("realtime", true, "drop backlogged camera frames in favor of the newest (last message wins)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n  %s -ssid robot_link -http :8080\n", os.Args[0])
	}
	flag.Parse()

	cat := codec.NewCatalog()
	telemetry.Register(cat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var strategy rendezvous.Strategy
	var teardown func() error
	if *localWifi {
		if *serverIP == "" || *clientIP == "" {
			log.Fatalf("operator: -local-wifi requires -server-ip and -client-ip")
		}
		strategy = rendezvous.LocalWifiStrategy{Params: rendezvous.LinkParameters{
			SSID: *ssid, ServerIP: *serverIP, ClientIP: *clientIP,
		}}
	} else {
		adHoc := &link.AdHocStrategy{
			Catalog: cat, Net: netctl.New(), IsRobot: false,
			Ifname: *ifname, SSID: *ssid,
		}
		strategy = adHoc
		teardown = func() error { return adHoc.Teardown(context.Background(), *ssid) }
	}

	lp, err := strategy.Discover(ctx)
	if err != nil {
		log.Fatalf("operator: discover: %v", err)
	}
	log.Printf("operator: link established: ssid=%s server=%s client=%s", lp.SSID, lp.ServerIP, lp.ClientIP)

	recv, err := transport.Bind(fmt.Sprintf("%s:%d", lp.ClientIP, rendezvous.DirectClientPort), "", *ifname)
	if err != nil {
		log.Fatalf("operator: bind recv: %v", err)
	}
	if *realtime {
		recv.SetRealtime(true)
	}
	send, err := transport.Connect(fmt.Sprintf("%s:%d", lp.ServerIP, rendezvous.DirectServerPort), 0)
	if err != nil {
		log.Fatalf("operator: connect send: %v", err)
	}

	runtime := &session.Runtime{Send: send, Recv: recv, Teardown: teardown}

	h := newHub()
	producer := func(ctx context.Context, sender *session.Sender) error {
		<-ctx.Done()
		return nil
	}
	consumer := &session.Consumer{
		Catalog: cat,
		Handlers: map[string]session.Handler{
			"MJpegCamFrame": func(rec interface{}) {
				f := rec.(telemetry.MJpegCamFrame)
				h.broadcast(f.Mjpeg)
				cnt := atomic.AddUint64(&broadcasted, 1)
				if cnt%10 == 0 {
					log.Printf("operator: broadcasted %d frames", cnt)
				}
			},
		},
		OnPartial: func(body []byte) {
			log.Printf("operator: dropped partial burst (%d bytes)", len(body))
		},
		RecvTimeout: time.Second,
	}

	go func() {
		if err := runtime.Run(ctx, producer, consumer); err != nil {
			log.Printf("operator: session: %v", err)
		}
	}()

	http.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")

		c := &client{ch: make(chan []byte, 2)}
		h.add(c)
		defer h.remove(c)

		for {
			select {
			case f := <-c.ch:
				if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(f)); err != nil {
					return
				}
				if _, err := w.Write(f); err != nil {
					return
				}
				if _, err := fmt.Fprint(w, "\r\n"); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, `<!doctype html>
<html>
<head>
	<meta name="viewport" content="width=device-width,initial-scale=1" />
	<style>
		html,body{height:100%;margin:0;background:#000}
		.frame{display:flex;align-items:center;justify-content:center;height:100%;}
		.frame img{max-width:100%;max-height:100%;width:auto;height:auto;object-fit:contain}
	</style>
</head>
<body>
	<div class="frame"><img src="/stream" alt="telemetry link debug view"/></div>
</body>
</html>`)
	})

	srv := &http.Server{Addr: *httpAddr}
	go func() {
		log.Printf("operator: http listening %s", *httpAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("operator: ListenAndServe: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("operator: shutting down")
	_ = srv.Shutdown(context.Background())
}
