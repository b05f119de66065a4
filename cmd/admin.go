package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/igor04091968/sing-l2tp/database/model"
	"github.com/igor04091968/sing-l2tp/service"
	"github.com/spf13/pflag"
)

// tunnelFlags holds the editable fields of a stored tunnel.
type tunnelFlags struct {
	localIP, remoteIP, interfaceIP, forwardIP string
	tunnelID, peerTunnelID                    int
	sessionID, peerSessionID                  int
	ports                                     string
}

func (f *tunnelFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.localIP, "local-ip", "", "local public address")
	fs.StringVar(&f.remoteIP, "remote-ip", "", "remote public address")
	fs.StringVar(&f.interfaceIP, "interface-ip", "", "interface address with mask, e.g. 10.30.30.1/30")
	fs.StringVar(&f.forwardIP, "forward-ip", "", "target address of port forwards")
	fs.IntVar(&f.tunnelID, "tunnel-id", 0, "local tunnel id")
	fs.IntVar(&f.peerTunnelID, "peer-tunnel-id", 0, "peer tunnel id")
	fs.IntVar(&f.sessionID, "session-id", 0, "local session id")
	fs.IntVar(&f.peerSessionID, "peer-session-id", 0, "peer session id")
	fs.StringVar(&f.ports, "ports", "", "make the forwarded ports exactly this comma separated list")
}

// apply copies every endpoint flag the user actually set onto cfg. Ports
// are not touched here; see portList.
func (f *tunnelFlags) apply(fs *pflag.FlagSet, cfg *model.Tunnel) (int, error) {
	changed := 0
	set := func(name string, fn func()) {
		if fs.Changed(name) {
			fn()
			changed++
		}
	}
	set("local-ip", func() { cfg.LocalIP = f.localIP })
	set("remote-ip", func() { cfg.RemoteIP = f.remoteIP })
	set("interface-ip", func() { cfg.InterfaceIP = f.interfaceIP })
	set("forward-ip", func() { cfg.RemoteForwardIP = f.forwardIP })
	set("tunnel-id", func() { cfg.TunnelID = f.tunnelID })
	set("peer-tunnel-id", func() { cfg.PeerTunnelID = f.peerTunnelID })
	set("session-id", func() { cfg.SessionID = f.sessionID })
	set("peer-session-id", func() { cfg.PeerSessionID = f.peerSessionID })

	return changed, nil
}

// portList parses --ports. The bool reports whether the flag was given at
// all; an empty value asks for every forward to be removed.
func (f *tunnelFlags) portList(fs *pflag.FlagSet) ([]int, bool, error) {
	if !fs.Changed("ports") {
		return nil, false, nil
	}
	ports, err := service.ParsePorts(f.ports)
	if err != nil {
		return nil, true, err
	}
	if ports == nil {
		ports = []int{}
	}
	return ports, true, nil
}

func showTunnel(w io.Writer, cfg *model.Tunnel) {
	fmt.Fprintln(w, titleStyle.Render("Tunnel "+cfg.Name))
	fmt.Fprintln(w, field("Local IP", notSet(cfg.LocalIP)))
	fmt.Fprintln(w, field("Remote IP", notSet(cfg.RemoteIP)))
	fmt.Fprintln(w, field("Interface", cfg.InterfaceName))
	fmt.Fprintln(w, field("Interface IP", notSet(cfg.InterfaceIP)))
	fmt.Fprintln(w, field("Tunnel ID", idOrNotSet(cfg.TunnelID)))
	fmt.Fprintln(w, field("Peer tunnel ID", idOrNotSet(cfg.PeerTunnelID)))
	fmt.Fprintln(w, field("Session ID", idOrNotSet(cfg.SessionID)))
	fmt.Fprintln(w, field("Peer session ID", idOrNotSet(cfg.PeerSessionID)))
	fmt.Fprintln(w, field("Forward to", notSet(cfg.RemoteForwardIP)))
	fmt.Fprintln(w, field("Configured", yesNo(cfg.IsConfigured())))
	fmt.Fprintln(w, field("Stopped", yesNo(cfg.Stopped)))

	ports := make([]string, 0, len(cfg.ForwardedPorts))
	for _, p := range cfg.ForwardedPorts {
		ports = append(ports, strconv.Itoa(p))
	}
	fmt.Fprintln(w, field("Ports", notSet(strings.Join(ports, ","))))
}

func idOrNotSet(id int) string {
	if id <= 0 {
		return notSet("")
	}
	return strconv.Itoa(id)
}
