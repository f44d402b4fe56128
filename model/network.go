package model

import "github.com/pkg/errors"

// NetworkProfile names a simulated network condition that a configuration
// is executed under. Each profile carries a fixed added-latency constant
// applied once per network-dependent pipeline stage when projecting
// end-to-end latency across conditions.
type NetworkProfile string

const (
	NetworkLocalhost        NetworkProfile = "localhost"
	NetworkWifi             NetworkProfile = "wifi"
	NetworkCellularUS       NetworkProfile = "cellular_us"
	NetworkCellularEU       NetworkProfile = "cellular_eu"
	NetworkIntercontinental NetworkProfile = "intercontinental"
)

// NetworkProfiles enumerates every defined profile in a fixed order.
func NetworkProfiles() []NetworkProfile {
	return []NetworkProfile{
		NetworkLocalhost,
		NetworkWifi,
		NetworkCellularUS,
		NetworkCellularEU,
		NetworkIntercontinental,
	}
}

// AddedLatencyMS returns the expected network overhead in milliseconds
// for a single network round trip under this profile.
func (p NetworkProfile) AddedLatencyMS() float64 {
	switch p {
	case NetworkLocalhost:
		return 0
	case NetworkWifi:
		return 10
	case NetworkCellularUS:
		return 50
	case NetworkCellularEU:
		return 70
	case NetworkIntercontinental:
		return 120
	default:
		return 0
	}
}

func (p NetworkProfile) Validate() error {
	for _, known := range NetworkProfiles() {
		if p == known {
			return nil
		}
	}
	return errors.Errorf("unknown network profile '%s'", p)
}
