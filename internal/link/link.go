// Package link composes internal/rendezvous and internal/netctl into the
// full ad-hoc discovery strategy. It lives outside internal/rendezvous
// because netctl.Controller imports rendezvous.LinkParameters; an
// AdHocStrategy implementation inside rendezvous itself would close an
// import cycle (rendezvous -> netctl -> rendezvous), so the composition
// sits one layer up instead.
package link

import (
	"context"
	"fmt"
	"log"

	"robotlink/internal/codec"
	"robotlink/internal/netctl"
	"robotlink/internal/rendezvous"
	"robotlink/internal/transport"
)

// Default addresses for the ad-hoc cell the peers bring up after the
// handshake. They are deliberately independent of the discovery-network
// addresses learned in Phase A: discovery and the handshake run on
// whatever network both hosts already share, and the peers only move to
// this fixed /24 once the link parameters are agreed.
const (
	DefaultAdHocServerIP = "192.168.2.1"
	DefaultAdHocClientIP = "192.168.2.2"
)

// AdHocStrategy runs the full robot-side or operator-side rendezvous:
// multicast discovery, the reliable lazy-pirate handshake, and bringing
// up (or connecting to) an ad-hoc WiFi profile via netctl so the session
// transport can run on its own private link.
type AdHocStrategy struct {
	Catalog *codec.Catalog
	Net     *netctl.Controller
	IsRobot bool

	Ifname string
	SSID   string

	// Password, ServerIP and ClientIP seed the LinkParameters the robot
	// side generates; the operator side receives them from the handshake.
	// ServerIP/ClientIP are the addresses both peers take on the ad-hoc
	// cell, not the discovery-network addresses; empty means the
	// DefaultAdHoc* values.
	Password string
	ServerIP string
	ClientIP string

	// priorConnection and device are filled in during Discover so a
	// later Teardown can restore the host's original network state.
	device          string
	priorConnection string
}

func (s *AdHocStrategy) adHocServerIP() string {
	if s.ServerIP != "" {
		return s.ServerIP
	}
	return DefaultAdHocServerIP
}

func (s *AdHocStrategy) adHocClientIP() string {
	if s.ClientIP != "" {
		return s.ClientIP
	}
	return DefaultAdHocClientIP
}

// Discover runs Phase A (multicast ping/pong) and Phase B (lazy-pirate
// handshake) to agree on LinkParameters, then brings up the matching
// ad-hoc WiFi profile so the session transport has a link to run on.
// Both phases complete on the discovery network before either side
// touches netctl: switching to the ad-hoc cell any earlier would strand
// the handshake, since the operator dials the robot's discovery address.
func (s *AdHocStrategy) Discover(ctx context.Context) (rendezvous.LinkParameters, error) {
	localIP, err := transport.LocalIP()
	if err != nil {
		return rendezvous.LinkParameters{}, fmt.Errorf("link: local ip: %w", err)
	}

	devices, priorConnection, err := s.Net.WifiDevices(ctx)
	if err != nil {
		return rendezvous.LinkParameters{}, fmt.Errorf("link: enumerate wifi devices: %w", err)
	}
	s.device = devices[0]
	s.priorConnection = priorConnection

	var lp rendezvous.LinkParameters
	if s.IsRobot {
		if _, err := rendezvous.DiscoverServer(ctx, localIP, s.Ifname); err != nil {
			return rendezvous.LinkParameters{}, fmt.Errorf("link: discover phase: %w", err)
		}
		lp = rendezvous.LinkParameters{
			SSID:     s.SSID,
			ServerIP: s.adHocServerIP(),
			ClientIP: s.adHocClientIP(),
			Password: s.Password,
		}
		if err := rendezvous.ServeHandshake(ctx, s.Catalog, localIP, lp); err != nil {
			return rendezvous.LinkParameters{}, fmt.Errorf("link: serve handshake: %w", err)
		}
		if err := s.Net.SetHotspot(ctx, lp, s.device, lp.ServerIP); err != nil {
			return rendezvous.LinkParameters{}, fmt.Errorf("link: set hotspot: %w", err)
		}
		return lp, nil
	}

	serverIP, err := rendezvous.DiscoverClient(ctx, localIP, s.Ifname)
	if err != nil {
		return rendezvous.LinkParameters{}, fmt.Errorf("link: discover phase: %w", err)
	}
	lp, err = rendezvous.RequestHandshake(ctx, s.Catalog, serverIP)
	if err != nil {
		return rendezvous.LinkParameters{}, fmt.Errorf("link: request handshake: %w", err)
	}
	if err := s.Net.SetHotspot(ctx, lp, s.device, lp.ClientIP); err != nil {
		return rendezvous.LinkParameters{}, fmt.Errorf("link: set hotspot: %w", err)
	}
	return lp, nil
}

// Teardown restores whatever network connection was active before
// Discover ran. A restore failure is logged and returned to the caller;
// session.Runtime logs and swallows it so its own teardown still runs to
// completion.
func (s *AdHocStrategy) Teardown(ctx context.Context, ssid string) error {
	if s.priorConnection == "" {
		return nil
	}
	if err := s.Net.Restore(ctx, ssid, s.priorConnection); err != nil {
		log.Printf("link: restore network failed: %v", err)
		return err
	}
	return nil
}
