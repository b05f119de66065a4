package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func configured() *Tunnel {
	t := NewTunnel("tunnel1")
	t.LocalIP = "1.2.3.4"
	t.RemoteIP = "5.6.7.8"
	t.TunnelID, t.PeerTunnelID, t.SessionID, t.PeerSessionID = 10, 20, 30, 40
	return t
}

func TestNewTunnelDefaults(t *testing.T) {
	tun := NewTunnel("tunnel1")
	assert.Equal(t, "l2tp-tunnel1", tun.InterfaceName)
	assert.Equal(t, DefaultInterfaceIP, tun.InterfaceIP)
	assert.Empty(t, tun.ForwardedPorts)
	assert.False(t, tun.IsConfigured())
}

func TestInterfaceNameIsCapped(t *testing.T) {
	assert.Equal(t, "l2tp-a-very-lon", InterfaceNameFor("a-very-long-tunnel-name"))
	assert.Len(t, InterfaceNameFor("a-very-long-tunnel-name"), 15)
}

func TestIsConfigured(t *testing.T) {
	assert.True(t, configured().IsConfigured())

	cases := map[string]func(*Tunnel){
		"no local":        func(t *Tunnel) { t.LocalIP = "" },
		"no remote":       func(t *Tunnel) { t.RemoteIP = "" },
		"no tunnel id":    func(t *Tunnel) { t.TunnelID = 0 },
		"no peer tunnel":  func(t *Tunnel) { t.PeerTunnelID = 0 },
		"no session":      func(t *Tunnel) { t.SessionID = 0 },
		"no peer session": func(t *Tunnel) { t.PeerSessionID = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			tun := configured()
			mutate(tun)
			assert.False(t, tun.IsConfigured())
		})
	}
}

func TestPortSet(t *testing.T) {
	tun := NewTunnel("t1")
	tun.AddPort(443)
	tun.AddPort(80)
	tun.AddPort(443)
	assert.Equal(t, []int{80, 443}, tun.ForwardedPorts)
	assert.True(t, tun.HasPort(80))

	tun.RemovePort(80)
	tun.RemovePort(8080)
	assert.Equal(t, []int{443}, tun.ForwardedPorts)
	assert.False(t, tun.HasPort(80))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, configured().Validate())
	assert.NoError(t, NewTunnel("fresh").Validate())

	bad := map[string]func(*Tunnel){
		"name":       func(t *Tunnel) { t.Name = "Bad Name" },
		"local ip":   func(t *Tunnel) { t.LocalIP = "1.2.3" },
		"forward ip": func(t *Tunnel) { t.RemoteForwardIP = "nope" },
		"cidr":       func(t *Tunnel) { t.InterfaceIP = "10.0.0.1" },
		"dup ids":    func(t *Tunnel) { t.SessionID = 10 },
		"negative":   func(t *Tunnel) { t.PeerSessionID = -1 },
		"port range": func(t *Tunnel) { t.ForwardedPorts = []int{70000} },
		"dup port":   func(t *Tunnel) { t.ForwardedPorts = []int{80, 80} },
	}
	for name, mutate := range bad {
		t.Run(name, func(t *testing.T) {
			tun := configured()
			mutate(tun)
			assert.Error(t, tun.Validate())
		})
	}
}
