// Package rendezvous implements the two-phase peer discovery and
// handshake protocol: multicast ping/pong discovery followed by a
// reliable lazy-pirate exchange of link parameters.
package rendezvous

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"robotlink/internal/codec"
	"robotlink/internal/transport"
)

// Default wire constants for the discovery and direct-link ports.
const (
	DiscoveryGroup      = "239.0.0.1"
	DiscoveryServerPort = 9998
	DiscoveryClientPort = 9999
	HandshakePort       = 9998
	DirectServerPort    = 9998
	DirectClientPort    = 9999

	discoveryRecvTimeout = 1 * time.Second
)

// LinkParameters is the tuple exchanged once during rendezvous: the ad-hoc
// SSID and the two endpoints' addresses on the private link.
type LinkParameters struct {
	SSID     string
	ServerIP string
	ClientIP string
	Password string
}

func (l LinkParameters) TypeName() string { return "LinkParameters" }

func (l LinkParameters) FieldValues() map[string]interface{} {
	return map[string]interface{}{
		"ssid":      l.SSID,
		"server_ip": l.ServerIP,
		"client_ip": l.ClientIP,
		"password":  l.Password,
	}
}

// DefaultPassword is the well-known token used when no passphrase is
// configured.
const DefaultPassword = "example_password"

// Register adds the LinkParameters descriptor to cat. Both peers must
// call this (directly, or transitively through internal/telemetry.Register)
// before the handshake runs.
func Register(cat *codec.Catalog) {
	cat.Register(&codec.Descriptor{
		Name: "LinkParameters",
		Fields: []codec.FieldSpec{
			{Name: "ssid", Kind: codec.KindString},
			{Name: "server_ip", Kind: codec.KindString},
			{Name: "client_ip", Kind: codec.KindString},
			{Name: "password", Kind: codec.KindString},
		},
		New: func(values map[string]interface{}) (interface{}, error) {
			return LinkParameters{
				SSID:     values["ssid"].(string),
				ServerIP: values["server_ip"].(string),
				ClientIP: values["client_ip"].(string),
				Password: values["password"].(string),
			}, nil
		},
	})
}

// DiscoverServer runs Phase A from the robot's side: periodically emit
// PING on the discovery group until the operator's PING_RESPONSE arrives,
// learning the operator's IP. It retries on each recv timeout until ctx
// is canceled.
func DiscoverServer(ctx context.Context, localIP string, ifname string) (clientIP string, err error) {
	dish, err := transport.Bind(fmt.Sprintf(":%d", DiscoveryServerPort), DiscoveryGroup, ifname)
	if err != nil {
		return "", fmt.Errorf("rendezvous: bind discovery dish: %w", err)
	}
	defer dish.Close()

	radio, err := transport.Connect(fmt.Sprintf("%s:%d", DiscoveryGroup, DiscoveryClientPort), 1)
	if err != nil {
		return "", fmt.Errorf("rendezvous: connect discovery radio: %w", err)
	}
	defer radio.Close()

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		msg := fmt.Sprintf("PING from server: %s", localIP)
		if err := radio.Send([]byte(msg)); err != nil {
			return "", fmt.Errorf("rendezvous: send ping: %w", err)
		}
		log.Printf("rendezvous: sent %q", msg)

		b, err := dish.Recv(discoveryRecvTimeout)
		if err == transport.ErrTimeout {
			log.Printf("rendezvous: no client response yet")
			continue
		}
		if err != nil {
			return "", fmt.Errorf("rendezvous: recv: %w", err)
		}

		reply := string(b)
		log.Printf("rendezvous: received %q", reply)
		if strings.Contains(reply, "PING_RESPONSE from client") {
			return parseIP(reply), nil
		}
	}
}

// DiscoverClient runs Phase A from the operator's side: wait for a PING
// from the robot, then send exactly one PING_RESPONSE. It retries on each
// recv timeout until ctx is canceled.
func DiscoverClient(ctx context.Context, localIP string, ifname string) (serverIP string, err error) {
	dish, err := transport.Bind(fmt.Sprintf(":%d", DiscoveryClientPort), DiscoveryGroup, ifname)
	if err != nil {
		return "", fmt.Errorf("rendezvous: bind discovery dish: %w", err)
	}
	defer dish.Close()

	radio, err := transport.Connect(fmt.Sprintf("%s:%d", DiscoveryGroup, DiscoveryServerPort), 1)
	if err != nil {
		return "", fmt.Errorf("rendezvous: connect discovery radio: %w", err)
	}
	defer radio.Close()

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		b, err := dish.Recv(discoveryRecvTimeout)
		if err == transport.ErrTimeout {
			log.Printf("rendezvous: no ping received from server")
			continue
		}
		if err != nil {
			return "", fmt.Errorf("rendezvous: recv: %w", err)
		}

		msg := string(b)
		log.Printf("rendezvous: received %q", msg)
		if !strings.Contains(msg, "PING from server") {
			continue
		}
		serverIP = parseIP(msg)

		response := fmt.Sprintf("PING_RESPONSE from client: %s", localIP)
		if err := radio.Send([]byte(response)); err != nil {
			return "", fmt.Errorf("rendezvous: send response: %w", err)
		}
		log.Printf("rendezvous: responded %q", response)
		return serverIP, nil
	}
}

func parseIP(msg string) string {
	idx := strings.LastIndex(msg, ":")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(msg[idx+1:])
}
