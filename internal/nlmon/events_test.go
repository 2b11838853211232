package nlmon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventType_Constants(t *testing.T) {
	assert.Equal(t, EventType("INTERFACE_CREATED"), InterfaceCreated)
	assert.Equal(t, EventType("INTERFACE_DELETED"), InterfaceDeleted)
	assert.Equal(t, EventType("INTERFACE_SET"), InterfaceSet)
}

func TestEventType_Title(t *testing.T) {
	assert.Equal(t, "Interface Created", InterfaceCreated.Title())
	assert.Equal(t, "Interface Deleted", InterfaceDeleted.Title())
	assert.Equal(t, "Interface Set", InterfaceSet.Title())

	// Unknown types fall back to their raw value.
	assert.Equal(t, "SOMETHING_ELSE", EventType("SOMETHING_ELSE").Title())
}

func TestLinkEvent_Fields(t *testing.T) {
	now := time.Now().UTC()
	ev := LinkEvent{
		ID:            "4534b44a-22cd-4bb6-851b-03d98629956e",
		Type:          InterfaceCreated,
		InterfaceName: "eth0",
		LinkIndex:     3,
		ObservedAt:    now,
	}

	assert.Equal(t, InterfaceCreated, ev.Type)
	assert.Equal(t, "eth0", ev.InterfaceName)
	assert.Equal(t, int32(3), ev.LinkIndex)
	assert.Equal(t, now, ev.ObservedAt)
}
