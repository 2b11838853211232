package nlmon

import (
	"fmt"
	"strings"
	"syscall"

	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"
)

// LinkMessage is the decoded body of an RTM_NEWLINK, RTM_DELLINK or
// RTM_SETLINK message: the fixed ifinfomsg header followed by the
// attribute list in wire order.
type LinkMessage struct {
	Family uint8
	Type   uint16
	Index  int32
	Flags  uint32
	Attrs  []syscall.NetlinkRouteAttr
}

// ParseLinkMessage decodes a link message body.
func ParseLinkMessage(data []byte) (*LinkMessage, error) {
	if len(data) < unix.SizeofIfInfomsg {
		return nil, fmt.Errorf("link message too short: %d bytes", len(data))
	}
	ifi := nl.DeserializeIfInfomsg(data)
	attrs, err := nl.ParseRouteAttr(data[ifi.Len():])
	if err != nil {
		return nil, fmt.Errorf("parse link attributes: %w", err)
	}
	return &LinkMessage{
		Family: ifi.Family,
		Type:   ifi.Type,
		Index:  ifi.Index,
		Flags:  ifi.Flags,
		Attrs:  attrs,
	}, nil
}

// InterfaceName returns the value of the first interface-name attribute.
// Later duplicates are ignored; link messages the kernel sends without a
// name report false.
func (m *LinkMessage) InterfaceName() (string, bool) {
	for _, attr := range m.Attrs {
		if attr.Attr.Type == unix.IFLA_IFNAME {
			return strings.TrimRight(string(attr.Value), "\x00"), true
		}
	}
	return "", false
}
