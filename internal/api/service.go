package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/linkwatch/linkwatchd/internal/hostinfo"
	"github.com/linkwatch/linkwatchd/internal/nlmon"
	"github.com/linkwatch/linkwatchd/pkg/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// recentEventLimit bounds the in-memory ring served at /events.
const recentEventLimit = 128

// Service is the HTTP API: liveness probes, daemon status, a ring of
// recent link events, a live websocket event stream, and Prometheus
// metrics.
type Service struct {
	address string
	port    int
	info    hostinfo.Info

	source EventSource

	mu        sync.Mutex
	recent    []nlmon.LinkEvent
	observed  uint64
	startedAt time.Time
}

func NewService(host string, port int, info hostinfo.Info) *Service {
	return &Service{
		address:   host,
		port:      port,
		info:      info,
		startedAt: time.Now().UTC(),
	}
}

// AttachSource wires the event stream the API observes. Must be called
// before Start.
func (s *Service) AttachSource(source EventSource) {
	s.source = source
}

// Start runs the HTTP server and consumes the event stream into the
// recent-events ring until the context is cancelled or the stream ends.
func (s *Service) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.address, s.port),
		Handler: s.routes(),
	}

	go func() {
		log.Infof("Starting linkwatchd API at %s:%d", s.address, s.port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("API server failed")
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("API server shutdown was not clean")
		}
		log.Info("Stopping linkwatchd API")
	}()

	if s.source == nil {
		log.Error("AttachSource was not called before Start")
		<-ctx.Done()
		return nil
	}

	events, unsub := s.source.Subscribe()
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.remember(ev)
		}
	}
}

func (s *Service) remember(ev nlmon.LinkEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observed++
	s.recent = append(s.recent, ev)
	if len(s.recent) > recentEventLimit {
		s.recent = s.recent[len(s.recent)-recentEventLimit:]
	}
}

func (s *Service) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		s.mu.Lock()
		status := Status{
			Version:        version.Version,
			Hostname:       s.info.Hostname,
			Platform:       s.info.Platform,
			KernelVersion:  s.info.KernelVersion,
			StartedAt:      s.startedAt,
			EventsObserved: s.observed,
		}
		s.mu.Unlock()

		w.Header().Add("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		s.mu.Lock()
		events := make([]nlmon.LinkEvent, len(s.recent))
		copy(events, s.recent)
		s.mu.Unlock()

		w.Header().Add("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(events); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	mux.HandleFunc("/ws/events", func(w http.ResponseWriter, r *http.Request) {
		StreamEvents(s, w, r)
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
