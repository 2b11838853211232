package nlmon

import (
	"fmt"
	"syscall"

	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"
)

// PayloadKind is the classification of a single netlink message read off
// the routing socket.
type PayloadKind uint8

const (
	PayloadNoop PayloadKind = iota
	PayloadError
	PayloadAck
	PayloadDone
	PayloadOverrun
	PayloadInner
)

var payloadKindNames = map[PayloadKind]string{
	PayloadNoop:    "noop",
	PayloadError:   "error",
	PayloadAck:     "ack",
	PayloadDone:    "done",
	PayloadOverrun: "overrun",
	PayloadInner:   "inner",
}

func (k PayloadKind) String() string {
	if name, ok := payloadKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Payload is the classified content of one netlink message. Kind selects
// which auxiliary field is meaningful.
type Payload struct {
	Kind PayloadKind

	// ErrCode is the negative errno carried by an error payload.
	ErrCode int32

	// OverrunBytes is the payload length reported with an overrun.
	OverrunBytes int

	// Msg is the embedded route message of an inner payload.
	Msg Message
}

// Classify maps a netlink message to exactly one payload kind. Header
// types outside the control range are inner protocol messages; an
// NLMSG_ERROR whose code is zero is the kernel's ack form.
func Classify(m syscall.NetlinkMessage) Payload {
	switch m.Header.Type {
	case unix.NLMSG_NOOP:
		return Payload{Kind: PayloadNoop}
	case unix.NLMSG_ERROR:
		if len(m.Data) < 4 {
			// Truncated error payload. The kernel never produces one;
			// refuse to mistake it for an ack.
			return Payload{Kind: PayloadError}
		}
		code := int32(nl.NativeEndian().Uint32(m.Data[:4]))
		if code == 0 {
			return Payload{Kind: PayloadAck}
		}
		return Payload{Kind: PayloadError, ErrCode: code}
	case unix.NLMSG_DONE:
		return Payload{Kind: PayloadDone}
	case unix.NLMSG_OVERRUN:
		return Payload{Kind: PayloadOverrun, OverrunBytes: len(m.Data)}
	default:
		return Payload{Kind: PayloadInner, Msg: Message{Type: m.Header.Type, Data: m.Data}}
	}
}

// Message is an rtnetlink protocol message embedded in a netlink
// envelope.
type Message struct {
	Type uint16
	Data []byte
}

var rtmTypeNames = map[uint16]string{
	unix.RTM_NEWLINK:    "RTM_NEWLINK",
	unix.RTM_DELLINK:    "RTM_DELLINK",
	unix.RTM_GETLINK:    "RTM_GETLINK",
	unix.RTM_SETLINK:    "RTM_SETLINK",
	unix.RTM_NEWADDR:    "RTM_NEWADDR",
	unix.RTM_DELADDR:    "RTM_DELADDR",
	unix.RTM_GETADDR:    "RTM_GETADDR",
	unix.RTM_NEWROUTE:   "RTM_NEWROUTE",
	unix.RTM_DELROUTE:   "RTM_DELROUTE",
	unix.RTM_GETROUTE:   "RTM_GETROUTE",
	unix.RTM_NEWNEIGH:   "RTM_NEWNEIGH",
	unix.RTM_DELNEIGH:   "RTM_DELNEIGH",
	unix.RTM_GETNEIGH:   "RTM_GETNEIGH",
	unix.RTM_NEWRULE:    "RTM_NEWRULE",
	unix.RTM_DELRULE:    "RTM_DELRULE",
	unix.RTM_GETRULE:    "RTM_GETRULE",
	unix.RTM_NEWNSID:    "RTM_NEWNSID",
	unix.RTM_DELNSID:    "RTM_DELNSID",
	unix.RTM_GETNSID:    "RTM_GETNSID",
	unix.RTM_NEWNETCONF: "RTM_NEWNETCONF",
	unix.RTM_DELNETCONF: "RTM_DELNETCONF",
	unix.RTM_GETNETCONF: "RTM_GETNETCONF",
}

// TypeName renders the rtnetlink message type for diagnostics.
func (m Message) TypeName() string {
	if name, ok := rtmTypeNames[m.Type]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", m.Type)
}
