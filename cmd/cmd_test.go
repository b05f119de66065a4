package cmd

import (
	"bytes"
	"testing"

	"github.com/igor04091968/sing-l2tp/database/model"
	"github.com/igor04091968/sing-l2tp/service"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseTunnelFlags(t *testing.T, args ...string) (*tunnelFlags, *pflag.FlagSet) {
	t.Helper()
	f := &tunnelFlags{}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.bind(fs)
	require.NoError(t, fs.Parse(args))
	return f, fs
}

func TestTunnelFlagsApplyOnlyChanged(t *testing.T) {
	cfg := model.NewTunnel("tunnel1")
	cfg.RemoteIP = "5.6.7.8"
	cfg.ForwardedPorts = []int{22}

	f, fs := parseTunnelFlags(t, "--local-ip", "1.2.3.4", "--tunnel-id", "10", "--session-id", "30")
	changed, err := f.apply(fs, cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, changed)
	assert.Equal(t, "1.2.3.4", cfg.LocalIP)
	assert.Equal(t, "5.6.7.8", cfg.RemoteIP)
	assert.Equal(t, 10, cfg.TunnelID)
	assert.Equal(t, 30, cfg.SessionID)
	assert.Equal(t, 0, cfg.PeerTunnelID)
	assert.Equal(t, []int{22}, cfg.ForwardedPorts)
	assert.Equal(t, model.DefaultInterfaceIP, cfg.InterfaceIP)
}

func TestTunnelFlagsPorts(t *testing.T) {
	cfg := model.NewTunnel("tunnel1")
	cfg.ForwardedPorts = []int{22}

	f, fs := parseTunnelFlags(t, "--ports", "443, 80,", "--local-ip", "1.2.3.4")
	changed, err := f.apply(fs, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.Equal(t, []int{22}, cfg.ForwardedPorts, "ports only change through the forward controller")

	ports, given, err := f.portList(fs)
	require.NoError(t, err)
	assert.True(t, given)
	assert.Equal(t, []int{443, 80}, ports)

	f, fs = parseTunnelFlags(t, "--ports", "")
	ports, given, err = f.portList(fs)
	require.NoError(t, err)
	assert.True(t, given)
	assert.NotNil(t, ports)
	assert.Empty(t, ports)

	f, fs = parseTunnelFlags(t, "--local-ip", "1.2.3.4")
	ports, given, err = f.portList(fs)
	require.NoError(t, err)
	assert.False(t, given)
	assert.Nil(t, ports)

	f, fs = parseTunnelFlags(t, "--ports", "80,abc")
	_, _, err = f.portList(fs)
	assert.EqualError(t, err, "'abc': Invalid port number")
}

func TestParsePortArg(t *testing.T) {
	port, err := parsePortArg("8080")
	require.NoError(t, err)
	assert.Equal(t, 8080, port)

	for _, bad := range []string{"0", "65536", "x", "-1"} {
		_, err := parsePortArg(bad)
		var verr *service.ValidationError
		assert.ErrorAs(t, err, &verr, bad)
	}
}

func TestShowTunnel(t *testing.T) {
	cfg := model.NewTunnel("tunnel1")
	cfg.LocalIP = "1.2.3.4"
	cfg.TunnelID = 10

	var buf bytes.Buffer
	showTunnel(&buf, cfg)
	out := buf.String()
	assert.Contains(t, out, "Tunnel tunnel1")
	assert.Contains(t, out, "1.2.3.4")
	assert.Contains(t, out, "l2tp-tunnel1")
	assert.Contains(t, out, "10")
	assert.Contains(t, out, "Not set")
	assert.Contains(t, out, "No")
}

func TestRenderStatus(t *testing.T) {
	out := renderStatus(&model.TunnelStatus{
		TunnelName:    "tunnel1",
		Configured:    true,
		InterfaceName: "l2tp-tunnel1",
		TunnelExists:  true,
	})
	assert.Contains(t, out, "Tunnel tunnel1")
	assert.Contains(t, out, "Yes")
	assert.Contains(t, out, "Not set")
}

func TestRenderForwards(t *testing.T) {
	assert.Contains(t, renderForwards(nil), "No port forwards configured")

	out := renderForwards([]model.ForwardUnit{{
		Port:    80,
		Remote:  "10.30.30.2:80",
		Status:  "active",
		Enabled: "enabled",
		Service: service.ForwardUnitName("tunnel1", 80),
	}})
	assert.Contains(t, out, "10.30.30.2:80")
	assert.Contains(t, out, "sing-l2tp-forward-tunnel1@80.service")
}

func TestRenderTunnels(t *testing.T) {
	assert.Contains(t, renderTunnels(nil), "No tunnels configured")

	cfg := model.NewTunnel("tunnel1")
	cfg.ForwardedPorts = []int{80, 443}
	out := renderTunnels([]model.Tunnel{*cfg})
	assert.Contains(t, out, "tunnel1")
	assert.Contains(t, out, "80,443")
}

func TestRenderLinesKeepsText(t *testing.T) {
	in := "Tunnel 'a' not fully configured, skipping\nPort 80: Failed to create forward"
	out := renderLines(in)
	assert.Contains(t, out, "skipping")
	assert.Contains(t, out, "Failed to create forward")
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"apply"}, {"start"}, {"stop"}, {"status"}, {"logs"}, {"prereq"},
		{"export"}, {"import"}, {"serve"},
		{"tunnel", "list"}, {"tunnel", "set"}, {"tunnel", "delete"},
		{"forward", "add"}, {"forward", "rm"}, {"forward", "restart-all"}, {"forward", "template"},
	} {
		c, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.NotNil(t, c.RunE, path)
	}
}
