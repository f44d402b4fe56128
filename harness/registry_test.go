package harness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unamentis/laurel/model"
)

func capableClient(id string) model.ClientStatus {
	return model.ClientStatus{
		ClientID:   id,
		ClientType: model.ClientIOSSimulator,
		Endpoint:   "http://localhost:9999",
		Capabilities: model.ClientCapabilities{
			SupportedSTTProviders: []string{"deepgram", "apple"},
			SupportedLLMProviders: []string{"anthropic"},
			SupportedTTSProviders: []string{"chatterbox"},
		},
	}
}

func TestRegistryRegisterAndHeartbeat(t *testing.T) {
	registry := NewClientRegistry(time.Minute)

	assert.Error(t, registry.Register(model.ClientStatus{ClientType: model.ClientWeb}))
	assert.Error(t, registry.Register(model.ClientStatus{ClientID: "c1", ClientType: "toaster"}))
	assert.Error(t, registry.Heartbeat("unknown"))

	require.NoError(t, registry.Register(capableClient("c1")))
	client, err := registry.Get("c1")
	require.NoError(t, err)
	assert.True(t, client.IsConnected)
	assert.False(t, client.IsRunningTest)

	require.NoError(t, registry.Heartbeat("c1"))
	assert.Len(t, registry.List(), 1)
}

func TestRegistryClaimCapableIsExclusive(t *testing.T) {
	registry := NewClientRegistry(time.Minute)
	require.NoError(t, registry.Register(capableClient("c1")))

	space := model.QuickValidationSuite().ParameterSpace

	claimed, err := registry.ClaimCapable(space, "", "config_1")
	require.NoError(t, err)
	assert.Equal(t, "c1", claimed.ClientID)

	// the only capable client is now busy
	_, err = registry.ClaimCapable(space, "", "config_1")
	assert.Error(t, err)

	registry.MarkIdle("c1")
	_, err = registry.ClaimCapable(space, "", "config_1")
	assert.NoError(t, err)
}

func TestRegistryClaimCapableFiltersByType(t *testing.T) {
	registry := NewClientRegistry(time.Minute)

	simulator := capableClient("sim")
	require.NoError(t, registry.Register(simulator))

	device := capableClient("device")
	device.ClientType = model.ClientIOSDevice
	require.NoError(t, registry.Register(device))

	space := model.QuickValidationSuite().ParameterSpace

	claimed, err := registry.ClaimCapable(space, model.ClientIOSDevice, "")
	require.NoError(t, err)
	assert.Equal(t, "device", claimed.ClientID)

	// the simulator stays idle and no web client exists
	_, err = registry.ClaimCapable(space, model.ClientWeb, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "web")

	claimed, err = registry.ClaimCapable(space, "", "")
	require.NoError(t, err)
	assert.Equal(t, "sim", claimed.ClientID)
}

func TestRegistryClaimCapableChecksCoverage(t *testing.T) {
	registry := NewClientRegistry(time.Minute)

	limited := capableClient("limited")
	limited.Capabilities.SupportedLLMProviders = []string{"mlx"}
	require.NoError(t, registry.Register(limited))

	_, err := registry.ClaimCapable(model.QuickValidationSuite().ParameterSpace, "", "")
	assert.Error(t, err)

	// naming the client is an operator override of the capability check
	claimed, err := registry.Claim("limited", "")
	require.NoError(t, err)
	assert.Equal(t, "limited", claimed.ClientID)
}

func TestRegistryClaimRequiresConnectedIdleClient(t *testing.T) {
	registry := NewClientRegistry(time.Minute)

	_, err := registry.Claim("ghost", "")
	assert.Error(t, err)

	require.NoError(t, registry.Register(capableClient("c1")))
	_, err = registry.Claim("c1", "config_1")
	require.NoError(t, err)

	_, err = registry.Claim("c1", "config_1")
	assert.Error(t, err)
}

func TestRegistrySweepMarksStaleClientsDisconnected(t *testing.T) {
	ttl := time.Minute
	registry := NewClientRegistry(ttl)
	require.NoError(t, registry.Register(capableClient("fresh")))
	require.NoError(t, registry.Register(capableClient("stale")))

	assert.Zero(t, registry.Sweep(time.Now()))

	require.NoError(t, registry.Heartbeat("fresh"))
	swept := registry.Sweep(time.Now().Add(ttl + time.Second))
	assert.Equal(t, 2, swept)
	assert.False(t, registry.IsConnected("stale"))

	// a heartbeat reconnects a swept client
	require.NoError(t, registry.Heartbeat("stale"))
	assert.True(t, registry.IsConnected("stale"))
}

func TestRegistrySweepDropsLongSilentClients(t *testing.T) {
	ttl := time.Minute
	registry := NewClientRegistry(ttl)
	require.NoError(t, registry.Register(capableClient("gone")))

	assert.Equal(t, 1, registry.Sweep(time.Now().Add(ttl+time.Second)))
	assert.Len(t, registry.List(), 1)

	// past the retention window the entry itself is removed
	assert.Zero(t, registry.Sweep(time.Now().Add(staleClientRetention*ttl)))
	assert.Empty(t, registry.List())
	_, err := registry.Get("gone")
	assert.Error(t, err)
}

func TestRegistryReregistrationKeepsAssignment(t *testing.T) {
	registry := NewClientRegistry(time.Minute)
	require.NoError(t, registry.Register(capableClient("c1")))
	registry.MarkBusy("c1", "config_7")

	require.NoError(t, registry.Register(capableClient("c1")))
	client, err := registry.Get("c1")
	require.NoError(t, err)
	assert.True(t, client.IsRunningTest)
	assert.Equal(t, "config_7", client.CurrentConfigID)
}
