package nlmon

import "time"

type EventType string

const (
	InterfaceCreated EventType = "INTERFACE_CREATED"
	InterfaceDeleted EventType = "INTERFACE_DELETED"
	InterfaceSet     EventType = "INTERFACE_SET"
)

// Title returns the fixed title carried on outbound notifications for
// this event type.
func (t EventType) Title() string {
	switch t {
	case InterfaceCreated:
		return "Interface Created"
	case InterfaceDeleted:
		return "Interface Deleted"
	case InterfaceSet:
		return "Interface Set"
	default:
		return string(t)
	}
}

// LinkEvent describes one observed change to a network interface.
type LinkEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	InterfaceName string    `json:"interfaceName"`
	LinkIndex     int32     `json:"linkIndex"`
	ObservedAt    time.Time `json:"observedAt"`
}
