/*
Package harness implements run orchestration: the client registry, the
event bus, the dispatch transport, and the orchestrator that walks a
suite's expanded configuration list against one client.
*/
package harness

import (
	"sync"
	"time"

	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"github.com/unamentis/laurel/model"
)

// ClientRegistry tracks connected test clients in memory. Registration
// is ephemeral; clients re-register by heartbeating after a server
// restart.
type ClientRegistry struct {
	mu      sync.Mutex
	ttl     time.Duration
	clients map[string]*model.ClientStatus
}

// NewClientRegistry creates a registry that considers a client
// disconnected after ttl without a heartbeat.
func NewClientRegistry(ttl time.Duration) *ClientRegistry {
	return &ClientRegistry{
		ttl:     ttl,
		clients: map[string]*model.ClientStatus{},
	}
}

// Register adds or refreshes a client. A re-registration of a busy
// client keeps its in-flight test assignment.
func (r *ClientRegistry) Register(status model.ClientStatus) error {
	if status.ClientID == "" {
		return errors.New("client id is not specified")
	}
	if err := status.ClientType.Validate(); err != nil {
		return errors.WithStack(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	status.IsConnected = true
	status.LastHeartbeat = time.Now()
	if existing, ok := r.clients[status.ClientID]; ok && existing.IsRunningTest {
		status.IsRunningTest = true
		status.CurrentConfigID = existing.CurrentConfigID
	}
	r.clients[status.ClientID] = &status
	return nil
}

// Heartbeat refreshes a client's liveness timestamp.
func (r *ClientRegistry) Heartbeat(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.clients[id]
	if !ok {
		return errors.Errorf("client '%s' is not registered", id)
	}
	client.IsConnected = true
	client.LastHeartbeat = time.Now()
	return nil
}

// Get returns a copy of the client's status.
func (r *ClientRegistry) Get(id string) (*model.ClientStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.clients[id]
	if !ok {
		return nil, errors.Errorf("client '%s' is not registered", id)
	}
	out := *client
	return &out, nil
}

// List returns copies of every registered client's status.
func (r *ClientRegistry) List() []model.ClientStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.ClientStatus, 0, len(r.clients))
	for _, client := range r.clients {
		out = append(out, *client)
	}
	return out
}

// ClaimCapable finds a connected, idle client whose capabilities cover
// the parameter space and marks it busy in the same critical section,
// so two concurrent runs cannot claim the same client. A non-empty
// clientType restricts the search to clients of that type.
func (r *ClientRegistry) ClaimCapable(space model.ParameterSpace, clientType model.ClientType, configID string) (*model.ClientStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, client := range r.clients {
		if !client.IsConnected || client.IsRunningTest {
			continue
		}
		if clientType != "" && client.ClientType != clientType {
			continue
		}
		if !client.Capabilities.Covers(space) {
			continue
		}
		client.IsRunningTest = true
		client.CurrentConfigID = configID
		out := *client
		return &out, nil
	}

	if clientType != "" {
		return nil, errors.Errorf("no connected idle '%s' client covers the requested parameter space", clientType)
	}
	return nil, errors.New("no connected idle client covers the requested parameter space")
}

// Claim marks a specific client busy. The capability check is skipped:
// naming a client is an operator override. The client must still be
// connected and idle.
func (r *ClientRegistry) Claim(id, configID string) (*model.ClientStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.clients[id]
	if !ok {
		return nil, errors.Errorf("client '%s' is not registered", id)
	}
	if !client.IsConnected {
		return nil, errors.Errorf("client '%s' is not connected", id)
	}
	if client.IsRunningTest {
		return nil, errors.Errorf("client '%s' is already running a test", id)
	}
	client.IsRunningTest = true
	client.CurrentConfigID = configID
	out := *client
	return &out, nil
}

// MarkBusy records the configuration a busy client is executing.
func (r *ClientRegistry) MarkBusy(id, configID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[id]; ok {
		client.IsRunningTest = true
		client.CurrentConfigID = configID
	}
}

// MarkIdle releases a client at the end of a run.
func (r *ClientRegistry) MarkIdle(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[id]; ok {
		client.IsRunningTest = false
		client.CurrentConfigID = ""
	}
}

// IsConnected reports whether the client is registered and live.
func (r *ClientRegistry) IsConnected(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.clients[id]
	return ok && client.IsConnected
}

// staleClientRetention is the number of heartbeat windows a silent
// client's entry survives before Sweep drops it from the registry.
const staleClientRetention = 10

// Sweep marks clients that missed their heartbeat window as
// disconnected and returns the number affected. Busy clients are marked
// disconnected too; the orchestrator fails their runs on the next
// dispatch. Entries that stay silent for staleClientRetention windows
// are removed entirely and must re-register.
func (r *ClientRegistry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	swept := 0
	for id, client := range r.clients {
		silence := now.Sub(client.LastHeartbeat)
		if silence >= staleClientRetention*r.ttl {
			delete(r.clients, id)
			if client.IsConnected {
				swept++
			}
			grip.Info(message.Fields{
				"message":   "dropped client after prolonged heartbeat silence",
				"client_id": id,
				"silence":   silence.String(),
			})
			continue
		}
		if !client.IsConnected || silence < r.ttl {
			continue
		}
		client.IsConnected = false
		swept++
		grip.Info(message.Fields{
			"message":        "client missed heartbeat window",
			"client_id":      client.ClientID,
			"last_heartbeat": client.LastHeartbeat,
			"running_test":   client.IsRunningTest,
		})
	}
	return swept
}
