/*
Package laurel holds application level constants and shared resources for
the laurel latency harness service.

Laurel measures end-to-end voice pipeline latency (speech-to-text,
language model, text-to-speech) for the UnaMentis tutoring platform. It
expands declarative test suites into concrete pipeline configurations,
dispatches them to remote test clients, and aggregates the measurements
into ranked reports and regression baselines.
*/
package laurel

import "time"

const (
	ShortDateFormat = "2006-01-02T15:04"

	// QueueName prefixes the amboy queue used for run dispatch jobs.
	QueueName = "laurel.service"

	// DefaultDispatchTimeout bounds a single configuration execution on
	// a remote client before the slot is recorded as a timeout failure.
	DefaultDispatchTimeout = 5 * time.Minute

	// DefaultClientTTL is how long a client may go without a heartbeat
	// before the registry evicts it.
	DefaultClientTTL = 90 * time.Second
)

// BuildRevision stores the commit in the git repository at build time and is
// specified with -ldflags at build time.
var BuildRevision = ""
