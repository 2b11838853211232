package api

import (
	"time"

	"github.com/linkwatch/linkwatchd/internal/nlmon"
)

// Status is the document served at /status.
type Status struct {
	Version        string    `json:"version"`
	Hostname       string    `json:"hostname"`
	Platform       string    `json:"platform"`
	KernelVersion  string    `json:"kernelVersion"`
	StartedAt      time.Time `json:"startedAt"`
	EventsObserved uint64    `json:"eventsObserved"`
}

// EventSource is the stream the API observes, normally the nlmon service.
type EventSource interface {
	Subscribe() (<-chan nlmon.LinkEvent, func())
}
