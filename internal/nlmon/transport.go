package nlmon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/linkwatch/linkwatchd/internal/hostinfo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"
)

// ErrStreamEnded reports that the kernel side of the routing socket
// failed: the event stream is exhausted and the process should exit.
var ErrStreamEnded = errors.New("netlink event stream ended")

const (
	// transportBuffer bounds the in-flight messages between the drain
	// loop and the dispatch loop. When the dispatcher stalls, the drain
	// loop stalls with it and backpressure lands in the kernel receive
	// queue, which reports loss as ENOBUFS.
	transportBuffer = 64

	nsidMinKernel        = "4.0.0"
	mplsRouteMinKernel   = "4.1.0"
	mplsNetconfMinKernel = "4.4.0"
)

var promReceiveErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "linkwatchd_receive_errors_total",
	Help: "Netlink receive anomalies by reason.",
}, []string{"reason"})

// SubscriptionGroups returns the rtnetlink multicast groups to join.
// Groups the running kernel predates are skipped with a log line; joining
// them would succeed but never deliver anything.
func SubscriptionGroups(info hostinfo.Info) []uint {
	groups := []uint{
		unix.RTNLGRP_LINK,
		unix.RTNLGRP_IPV4_IFADDR,
		unix.RTNLGRP_IPV6_IFADDR,
		unix.RTNLGRP_IPV4_ROUTE,
		unix.RTNLGRP_IPV6_ROUTE,
		unix.RTNLGRP_IPV4_MROUTE,
		unix.RTNLGRP_IPV6_MROUTE,
		unix.RTNLGRP_NEIGH,
		unix.RTNLGRP_IPV4_NETCONF,
		unix.RTNLGRP_IPV6_NETCONF,
		unix.RTNLGRP_IPV4_RULE,
		unix.RTNLGRP_IPV6_RULE,
	}

	if info.KernelAtLeast(nsidMinKernel) {
		groups = append(groups, unix.RTNLGRP_NSID)
	} else {
		log.WithField("kernel", info.KernelVersion).Info("Kernel predates namespace ID notifications, skipping that group")
	}
	if info.KernelAtLeast(mplsRouteMinKernel) {
		groups = append(groups, unix.RTNLGRP_MPLS_ROUTE)
	} else {
		log.WithField("kernel", info.KernelVersion).Info("Kernel predates MPLS route notifications, skipping that group")
	}
	if info.KernelAtLeast(mplsNetconfMinKernel) {
		groups = append(groups, unix.RTNLGRP_MPLS_NETCONF)
	} else {
		log.WithField("kernel", info.KernelVersion).Info("Kernel predates MPLS netconf notifications, skipping that group")
	}

	return groups
}

// Transport owns the NETLINK_ROUTE socket subscription and the drain loop
// that keeps it polled.
type Transport struct {
	sock      *nl.NetlinkSocket
	msgs      chan syscall.NetlinkMessage
	closeOnce sync.Once
}

// Connect creates the routing socket and binds it to the given multicast
// groups. The subscription is fixed for the life of the process.
func Connect(groups []uint) (*Transport, error) {
	sock, err := nl.Subscribe(unix.NETLINK_ROUTE, groups...)
	if err != nil {
		return nil, fmt.Errorf("bind netlink socket: %w", err)
	}
	log.WithField("groups", len(groups)).Info("Subscribed to rtnetlink multicast groups")
	return &Transport{
		sock: sock,
		msgs: make(chan syscall.NetlinkMessage, transportBuffer),
	}, nil
}

// Messages is the stream the dispatch loop consumes. It is closed when
// Run returns.
func (t *Transport) Messages() <-chan syscall.NetlinkMessage {
	return t.msgs
}

// Run drains the kernel socket until the context is cancelled, the socket
// is closed, or the kernel side fails. A kernel-side failure returns
// ErrStreamEnded; shutdown returns nil.
func (t *Transport) Run(ctx context.Context) error {
	log.Info("Starting netlink drain loop")
	defer log.Info("Stopping netlink drain loop")
	defer close(t.msgs)

	for {
		msgs, from, err := t.sock.Receive()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, os.ErrClosed) {
				return nil
			}
			if errors.Is(err, unix.ENOBUFS) {
				// The kernel receive queue overflowed and messages were
				// lost upstream of us. The socket stays usable.
				promReceiveErrors.WithLabelValues("enobufs").Inc()
				log.Warn("Kernel dropped netlink messages, receive queue overflowed")
				continue
			}
			promReceiveErrors.WithLabelValues("receive").Inc()
			log.WithError(err).Error("Netlink receive failed")
			return fmt.Errorf("%w: %v", ErrStreamEnded, err)
		}

		if from != nil && from.Pid != nl.PidKernel {
			promReceiveErrors.WithLabelValues("foreign_sender").Inc()
			log.WithField("pid", from.Pid).Debug("Dropping netlink messages from non-kernel sender")
			continue
		}

		for _, m := range msgs {
			select {
			case t.msgs <- m:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Close unblocks Run by closing the socket. Idempotent.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.sock.Close()
	})
	return nil
}
