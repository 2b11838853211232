// Package selfcheck proves the netlink subscription is live by creating
// a short-lived TUN device and watching its create and delete events
// come back through the monitor.
package selfcheck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/songgao/water"

	"github.com/linkwatch/linkwatchd/internal/nlmon"
)

const probeTimeout = 10 * time.Second

var promSelfCheck = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "linkwatchd_selfcheck_total",
	Help: "Self-check probe outcomes.",
}, []string{"outcome"})

// EventSource is the stream the probe observes, normally the nlmon
// service.
type EventSource interface {
	Subscribe() (<-chan nlmon.LinkEvent, func())
}

type tunDevice interface {
	Name() string
	Close() error
}

func newWaterTUN() (tunDevice, error) {
	ifce, err := water.New(water.Config{
		DeviceType: water.TUN,
	})
	if err != nil {
		return nil, err
	}
	return ifce, nil
}

// Check runs one end-to-end probe. Creating the probe device needs
// CAP_NET_ADMIN.
type Check struct {
	source  EventSource
	timeout time.Duration
	makeTUN func() (tunDevice, error)
}

func New(source EventSource) *Check {
	return &Check{
		source:  source,
		timeout: probeTimeout,
		makeTUN: newWaterTUN,
	}
}

// Run creates a TUN device, waits for its creation event, removes it,
// and waits for its deletion event. Any missing leg is an error.
func (c *Check) Run(ctx context.Context) error {
	if err := c.run(ctx); err != nil {
		promSelfCheck.WithLabelValues("fail").Inc()
		return err
	}
	promSelfCheck.WithLabelValues("pass").Inc()
	return nil
}

func (c *Check) run(ctx context.Context) error {
	events, unsub := c.source.Subscribe()
	defer unsub()

	ifce, err := c.makeTUN()
	if err != nil {
		return fmt.Errorf("create probe interface: %w", err)
	}
	name := ifce.Name()
	log.WithField("interface", name).Debug("Created self-check probe interface")

	if err := c.waitFor(ctx, events, nlmon.InterfaceCreated, name); err != nil {
		ifce.Close()
		return err
	}

	if err := ifce.Close(); err != nil {
		return fmt.Errorf("remove probe interface %s: %w", name, err)
	}

	if err := c.waitFor(ctx, events, nlmon.InterfaceDeleted, name); err != nil {
		return err
	}

	log.WithField("interface", name).Info("Self-check passed, kernel subscription is live")
	return nil
}

func (c *Check) waitFor(ctx context.Context, events <-chan nlmon.LinkEvent, typ nlmon.EventType, name string) error {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return errors.New("event stream closed during self-check")
			}
			if ev.Type == typ && ev.InterfaceName == name {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("no %s event for %s within %s", typ, name, c.timeout)
		}
	}
}
