package nlmon

import (
	"context"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/linkwatch/linkwatchd/internal/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"
)

var (
	promEnvelopes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkwatchd_envelopes_total",
		Help: "Netlink messages consumed, by classified payload kind.",
	}, []string{"kind"})

	promLinkEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkwatchd_link_events_total",
		Help: "Interface events observed, by type.",
	}, []string{"event"})

	promNotifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkwatchd_notify_failures_total",
		Help: "Interface events that could not be forwarded to the sink.",
	})

	promUnhandled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkwatchd_unhandled_messages_total",
		Help: "Route messages of kinds this daemon does not forward.",
	})
)

// Notifier forwards one interface event to the external ingestion sink.
// At most one delivery attempt per event.
type Notifier interface {
	Notify(ctx context.Context, ev LinkEvent) error
}

// MessageSource is the upstream the dispatch loop consumes, normally a
// Transport.
type MessageSource interface {
	Messages() <-chan syscall.NetlinkMessage
}

// Service is the single consumer of the netlink message stream: it
// classifies every message, turns link changes into events, forwards them
// to the notifier, and fans them out to subscribers.
type Service struct {
	source   MessageSource
	notifier Notifier

	subsMu           sync.Mutex
	subs             map[int]*runtime.SubQueue[LinkEvent]
	nextSubscriberID int
	closed           bool

	unhandledLog rate.Sometimes
}

func NewService(source MessageSource, notifier Notifier) *Service {
	return &Service{
		source:       source,
		notifier:     notifier,
		subs:         make(map[int]*runtime.SubQueue[LinkEvent]),
		unhandledLog: rate.Sometimes{First: 5, Interval: 30 * time.Second},
	}
}

// Subscribe registers an observer for link events. Subscribers never slow
// the dispatch loop down; the returned function unsubscribes.
func (s *Service) Subscribe() (<-chan LinkEvent, func()) {
	sub := runtime.NewSubQueue[LinkEvent](16)

	s.subsMu.Lock()
	if s.closed {
		s.subsMu.Unlock()
		sub.Close()
		return sub.Chan(), func() {}
	}
	id := s.nextSubscriberID
	s.nextSubscriberID++
	s.subs[id] = sub
	s.subsMu.Unlock()

	unsub := func() {
		s.subsMu.Lock()
		if q, ok := s.subs[id]; ok {
			delete(s.subs, id)
			q.Close()
		}
		s.subsMu.Unlock()
	}
	return sub.Chan(), unsub
}

// Start consumes the message stream until the context is cancelled or the
// stream is exhausted. It is the only reader; every message is consumed
// exactly once.
func (s *Service) Start(ctx context.Context) error {
	log.Info("Starting link event dispatch")
	defer log.Info("Stopping link event dispatch")

	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-s.source.Messages():
			if !ok {
				log.Info("Netlink message stream exhausted")
				return nil
			}
			s.handleMessage(ctx, m)
		}
	}
}

func (s *Service) Close() error {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for id, q := range s.subs {
		q.Close()
		delete(s.subs, id)
	}
	return nil
}

func (s *Service) handleMessage(ctx context.Context, m syscall.NetlinkMessage) {
	p := Classify(m)
	promEnvelopes.WithLabelValues(p.Kind.String()).Inc()

	switch p.Kind {
	case PayloadNoop:
		log.Debug("Netlink no-op message")
	case PayloadAck:
		log.Debug("Netlink ack message")
	case PayloadDone:
		log.Debug("Netlink end-of-dump message")
	case PayloadError:
		fields := log.Fields{"code": p.ErrCode}
		if p.ErrCode < 0 {
			if name := unix.ErrnoName(syscall.Errno(-p.ErrCode)); name != "" {
				fields["errno"] = name
			}
		}
		log.WithFields(fields).Warn("Netlink error message received")
	case PayloadOverrun:
		log.WithField("bytes", p.OverrunBytes).Warn("Netlink overrun, kernel signalled lost messages")
	case PayloadInner:
		s.routeMessage(ctx, p.Msg)
	}
}

func (s *Service) routeMessage(ctx context.Context, m Message) {
	switch m.Type {
	case unix.RTM_NEWLINK:
		s.handleLink(ctx, InterfaceCreated, m)
	case unix.RTM_DELLINK:
		s.handleLink(ctx, InterfaceDeleted, m)
	case unix.RTM_SETLINK:
		s.handleLink(ctx, InterfaceSet, m)
	default:
		promUnhandled.Inc()
		s.unhandledLog.Do(func() {
			log.WithField("type", m.TypeName()).Debug("Unhandled route message")
		})
	}
}

func (s *Service) handleLink(ctx context.Context, typ EventType, m Message) {
	lm, err := ParseLinkMessage(m.Data)
	if err != nil {
		log.WithError(err).WithField("type", m.TypeName()).Warn("Discarding malformed link message")
		return
	}

	name, ok := lm.InterfaceName()
	if !ok {
		log.WithField("linkIndex", lm.Index).Debug("Link message without an interface name")
		return
	}

	ev := LinkEvent{
		ID:            uuid.NewString(),
		Type:          typ,
		InterfaceName: name,
		LinkIndex:     lm.Index,
		ObservedAt:    time.Now().UTC(),
	}

	switch typ {
	case InterfaceCreated:
		log.WithFields(log.Fields{"interface": name, "linkIndex": lm.Index}).Info("Interface created")
	case InterfaceDeleted:
		log.WithFields(log.Fields{"interface": name, "linkIndex": lm.Index}).Info("Interface deleted")
	case InterfaceSet:
		log.WithFields(log.Fields{"interface": name, "linkIndex": lm.Index}).Info("Interface settings changed")
	}

	promLinkEvents.WithLabelValues(string(typ)).Inc()

	// One synchronous delivery attempt per event. A sink failure is
	// logged and counted, never fatal to the loop.
	if err := s.notifier.Notify(ctx, ev); err != nil {
		promNotifyFailures.Inc()
		log.WithError(err).WithFields(log.Fields{
			"event":     ev.ID,
			"interface": name,
		}).Error("Failed to forward interface event")
	}

	s.broadcast(ev)
}

func (s *Service) broadcast(ev LinkEvent) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, sub := range s.subs {
		sub.Enqueue(ev)
	}
}
