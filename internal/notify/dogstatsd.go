package notify

import (
	"context"
	"fmt"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/linkwatch/linkwatchd/internal/nlmon"
)

// Forwarder delivers interface events to the Datadog event stream through
// a dogstatsd agent socket.
type Forwarder struct {
	client   *statsd.Client
	hostname string
}

var _ nlmon.Notifier = (*Forwarder)(nil)

// NewForwarder creates the dogstatsd client. The address is the agent's
// UDP socket, normally 127.0.0.1:8125.
func NewForwarder(addr, hostname string) (*Forwarder, error) {
	client, err := statsd.New(addr,
		statsd.WithoutTelemetry(),
		statsd.WithTags([]string{"source:linkwatchd"}),
	)
	if err != nil {
		return nil, fmt.Errorf("create dogstatsd client: %w", err)
	}
	return &Forwarder{client: client, hostname: hostname}, nil
}

// Notify sends one event to the sink: a single delivery attempt, no
// retry. The client buffers and flushes asynchronously. The aggregation
// key groups repeat events for the same interface on the Datadog side
// without coalescing any sends.
func (f *Forwarder) Notify(_ context.Context, ev nlmon.LinkEvent) error {
	e := statsd.NewEvent(ev.Type.Title(), ev.InterfaceName)
	e.Hostname = f.hostname
	e.SourceTypeName = "linkwatchd"
	e.AggregationKey = ev.InterfaceName
	e.Timestamp = ev.ObservedAt

	if err := f.client.Event(e); err != nil {
		return fmt.Errorf("send %q event: %w", ev.Type.Title(), err)
	}
	return nil
}

// Close flushes buffered events and shuts the client down.
func (f *Forwarder) Close() error {
	return f.client.Close()
}
