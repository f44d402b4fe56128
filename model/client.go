package model

import (
	"time"

	"github.com/pkg/errors"
)

// ClientType identifies the kind of remote agent executing tests.
type ClientType string

const (
	ClientIOSSimulator ClientType = "ios_simulator"
	ClientIOSDevice    ClientType = "ios_device"
	ClientWeb          ClientType = "web"
)

func (t ClientType) Validate() error {
	switch t {
	case ClientIOSSimulator, ClientIOSDevice, ClientWeb:
		return nil
	default:
		return errors.Errorf("unknown client type '%s'", t)
	}
}

// ClientCapabilities describes what a test client can execute.
type ClientCapabilities struct {
	SupportedSTTProviders  []string `bson:"supported_stt_providers" json:"supported_stt_providers" yaml:"supported_stt_providers"`
	SupportedLLMProviders  []string `bson:"supported_llm_providers" json:"supported_llm_providers" yaml:"supported_llm_providers"`
	SupportedTTSProviders  []string `bson:"supported_tts_providers" json:"supported_tts_providers" yaml:"supported_tts_providers"`
	HasHighPrecisionTiming bool     `bson:"has_high_precision_timing" json:"has_high_precision_timing" yaml:"has_high_precision_timing"`
	HasDeviceMetrics       bool     `bson:"has_device_metrics" json:"has_device_metrics" yaml:"has_device_metrics"`
	HasOnDeviceML          bool     `bson:"has_on_device_ml" json:"has_on_device_ml" yaml:"has_on_device_ml"`
	MaxConcurrentTests     int      `bson:"max_concurrent_tests" json:"max_concurrent_tests" yaml:"max_concurrent_tests"`
}

// Covers reports whether the client supports every distinct provider the
// parameter space references, across all three network-facing stages.
func (c ClientCapabilities) Covers(space ParameterSpace) bool {
	return containsAll(c.SupportedSTTProviders, space.STTProviders()) &&
		containsAll(c.SupportedLLMProviders, space.LLMProviders()) &&
		containsAll(c.SupportedTTSProviders, space.TTSProviders())
}

func containsAll(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, val := range have {
		set[val] = true
	}
	for _, val := range want {
		if !set[val] {
			return false
		}
	}
	return true
}

// ClientStatus is the registry's view of one connected test client.
type ClientStatus struct {
	ClientID        string             `bson:"_id" json:"client_id" yaml:"client_id"`
	ClientType      ClientType         `bson:"client_type" json:"client_type" yaml:"client_type"`
	IsConnected     bool               `bson:"is_connected" json:"is_connected" yaml:"is_connected"`
	IsRunningTest   bool               `bson:"is_running_test" json:"is_running_test" yaml:"is_running_test"`
	CurrentConfigID string             `bson:"current_config_id,omitempty" json:"current_config_id,omitempty" yaml:"current_config_id,omitempty"`
	LastHeartbeat   time.Time          `bson:"last_heartbeat" json:"last_heartbeat" yaml:"last_heartbeat"`
	Capabilities    ClientCapabilities `bson:"capabilities" json:"capabilities" yaml:"capabilities"`

	// Endpoint is the callback URL the HTTP transport dispatches
	// configurations to.
	Endpoint string `bson:"endpoint,omitempty" json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}
