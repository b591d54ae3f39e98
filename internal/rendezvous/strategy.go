package rendezvous

import "context"

// Strategy abstracts how a peer obtains LinkParameters before a session
// begins. cmd/robot, cmd/operator, and cmd/simulate each pick an
// implementation, call Discover, and bind the direct-link endpoints they
// hand to internal/session.Runtime, so the session runtime never knows
// which discovery path produced them.
type Strategy interface {
	Discover(ctx context.Context) (LinkParameters, error)
}

// LocalWifiStrategy skips discovery and the ad-hoc handshake entirely:
// both peers are already on the same network and have agreed on
// addresses out of band (e.g. via flags or a config file). It exists for
// deployments where the ad-hoc WiFi dance is unwanted or unavailable —
// a shared LAN, a tethered link, a test rig — so no hotspot is created
// or torn down.
type LocalWifiStrategy struct {
	Params LinkParameters
}

// Discover returns the pre-agreed parameters unconditionally.
func (s LocalWifiStrategy) Discover(ctx context.Context) (LinkParameters, error) {
	return s.Params, nil
}

// LoopbackStrategy is used by cmd/simulate to run both roles on one host
// over 127.0.0.1, bypassing multicast discovery, the handshake, and
// netctl entirely.
type LoopbackStrategy struct {
	Params LinkParameters
}

// Discover returns the supplied loopback parameters unconditionally.
func (s LoopbackStrategy) Discover(ctx context.Context) (LinkParameters, error) {
	return s.Params, nil
}
