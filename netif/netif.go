package netif

import (
	"errors"
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// LinkState is what the kernel reports for one interface.
type LinkState struct {
	Exists bool
	Up     bool
	Addrs  []string // CIDR notation, IPv4 first
}

// Inspector reads interface state without changing it.
type Inspector interface {
	Link(name string) (LinkState, error)
}

// Netlink inspects interfaces through rtnetlink.
type Netlink struct{}

func NewNetlink() *Netlink {
	return &Netlink{}
}

func (n *Netlink) Link(name string) (LinkState, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return LinkState{}, nil
		}
		return LinkState{}, fmt.Errorf("failed to look up link '%s': %w", name, err)
	}

	attrs := link.Attrs()
	state := LinkState{
		Exists: true,
		Up:     attrs.Flags&net.FlagUp != 0 && attrs.OperState != netlink.OperDown,
	}

	addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
	if err != nil {
		return state, fmt.Errorf("failed to list addresses of '%s': %w", name, err)
	}
	var v6 []string
	for _, a := range addrs {
		if a.IP.To4() != nil {
			state.Addrs = append(state.Addrs, a.IPNet.String())
		} else {
			v6 = append(v6, a.IPNet.String())
		}
	}
	state.Addrs = append(state.Addrs, v6...)
	return state, nil
}

// Static is an Inspector with fixed answers, for tests and dry runs.
type Static map[string]LinkState

func (s Static) Link(name string) (LinkState, error) {
	return s[name], nil
}
