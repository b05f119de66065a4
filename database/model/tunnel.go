package model

import (
	"fmt"
	"net"
	"regexp"
	"slices"

	"gorm.io/gorm"
)

const (
	InterfacePrefix     = "l2tp-"
	DefaultInterfaceIP  = "10.30.30.1/30"
	maxInterfaceNameLen = 15
)

var tunnelNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)

// Tunnel is the declared intent for one L2TPv3 tunnel and the TCP ports
// forwarded across it.
type Tunnel struct {
	gorm.Model      `json:"-" yaml:"-"`
	Name            string `gorm:"unique;not null" json:"name" yaml:"name"`
	LocalIP         string `json:"local_ip" yaml:"local_ip"`                   // Local public address
	RemoteIP        string `json:"remote_ip" yaml:"remote_ip"`                 // Remote public address
	InterfaceName   string `gorm:"unique" json:"interface_name" yaml:"-"`      // Derived from Name, e.g. "l2tp-tunnel1"
	InterfaceIP     string `json:"interface_ip" yaml:"interface_ip"`           // Address and mask for the l2tpeth interface, e.g. "10.30.30.1/30"
	TunnelID        int    `json:"tunnel_id" yaml:"tunnel_id"`                 // Local tunnel identifier
	PeerTunnelID    int    `json:"peer_tunnel_id" yaml:"peer_tunnel_id"`       // Peer tunnel identifier
	SessionID       int    `json:"session_id" yaml:"session_id"`               // Local session identifier
	PeerSessionID   int    `json:"peer_session_id" yaml:"peer_session_id"`     // Peer session identifier
	RemoteForwardIP string `json:"remote_forward_ip" yaml:"remote_forward_ip"` // Target of the socat forwards, usually the peer's tunnel address
	ForwardedPorts  []int  `gorm:"serializer:json" json:"forwarded_ports" yaml:"forwarded_ports"`
	Stopped         bool   `json:"stopped" yaml:"-"` // Set by an explicit stop; apply leaves the tunnel down until the next start
}

// NewTunnel returns a tunnel with defaults for a fresh name.
func NewTunnel(name string) *Tunnel {
	return &Tunnel{
		Name:           name,
		InterfaceName:  InterfaceNameFor(name),
		InterfaceIP:    DefaultInterfaceIP,
		ForwardedPorts: []int{},
	}
}

// InterfaceNameFor derives the kernel interface name for a tunnel. The
// result is capped at IFNAMSIZ-1 bytes.
func InterfaceNameFor(name string) string {
	iface := InterfacePrefix + name
	if len(iface) > maxInterfaceNameLen {
		iface = iface[:maxInterfaceNameLen]
	}
	return iface
}

// ValidName reports whether name is usable as a tunnel key.
func ValidName(name string) bool {
	return tunnelNamePattern.MatchString(name)
}

// IsConfigured holds iff both public addresses and all four identifiers are set.
func (t *Tunnel) IsConfigured() bool {
	return t.LocalIP != "" && t.RemoteIP != "" &&
		t.TunnelID > 0 && t.PeerTunnelID > 0 &&
		t.SessionID > 0 && t.PeerSessionID > 0
}

func (t *Tunnel) HasPort(port int) bool {
	return slices.Contains(t.ForwardedPorts, port)
}

// AddPort registers port; re-adding an existing port is a no-op.
func (t *Tunnel) AddPort(port int) {
	if t.HasPort(port) {
		return
	}
	t.ForwardedPorts = append(t.ForwardedPorts, port)
	slices.Sort(t.ForwardedPorts)
}

func (t *Tunnel) RemovePort(port int) {
	t.ForwardedPorts = slices.DeleteFunc(t.ForwardedPorts, func(p int) bool { return p == port })
}

// Validate checks the fields that are set. Unset fields are allowed; use
// IsConfigured to know whether the tunnel can be brought up.
func (t *Tunnel) Validate() error {
	if !ValidName(t.Name) {
		return fmt.Errorf("invalid tunnel name %q", t.Name)
	}
	for field, addr := range map[string]string{"local_ip": t.LocalIP, "remote_ip": t.RemoteIP, "remote_forward_ip": t.RemoteForwardIP} {
		if addr != "" && net.ParseIP(addr) == nil {
			return fmt.Errorf("invalid %s: %s", field, addr)
		}
	}
	if t.InterfaceIP != "" {
		if _, _, err := net.ParseCIDR(t.InterfaceIP); err != nil {
			return fmt.Errorf("invalid interface_ip '%s': %w", t.InterfaceIP, err)
		}
	}
	ids := []int{t.TunnelID, t.PeerTunnelID, t.SessionID, t.PeerSessionID}
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if id < 0 {
			return fmt.Errorf("identifier %d must be positive", id)
		}
		if id == 0 {
			continue
		}
		if seen[id] {
			return fmt.Errorf("identifier %d is used more than once", id)
		}
		seen[id] = true
	}
	ports := make(map[int]bool, len(t.ForwardedPorts))
	for _, p := range t.ForwardedPorts {
		if p < 1 || p > 65535 {
			return fmt.Errorf("port %d out of range", p)
		}
		if ports[p] {
			return fmt.Errorf("port %d listed twice", p)
		}
		ports[p] = true
	}
	return nil
}
