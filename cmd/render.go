package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/igor04091968/sing-l2tp/database/model"
)

const (
	colorTitle  = "14"  // cyan
	colorOK     = "10"  // green
	colorError  = "9"   // red
	colorWarn   = "11"  // yellow
	colorDim    = "245" // grey
	colorBorder = "240"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorTitle)).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color(colorOK))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(colorError))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(colorWarn))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(colorDim))
	labelStyle = lipgloss.NewStyle().Width(16).Foreground(lipgloss.Color(colorDim))
)

func yesNo(v bool) string {
	if v {
		return okStyle.Render("Yes")
	}
	return errStyle.Render("No")
}

func notSet(v string) string {
	if v == "" {
		return dimStyle.Render("Not set")
	}
	return v
}

func field(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(colorBorder))).
		Headers(headers...)
}

func renderStatus(st *model.TunnelStatus) string {
	rows := []string{
		titleStyle.Render("Tunnel " + st.TunnelName),
		field("Configured", yesNo(st.Configured)),
		field("Local IP", notSet(st.LocalIP)),
		field("Remote IP", notSet(st.RemoteIP)),
		field("Interface", notSet(st.InterfaceName)),
		field("Tunnel exists", yesNo(st.TunnelExists)),
		field("Session exists", yesNo(st.SessionExists)),
		field("Interface up", yesNo(st.InterfaceUp)),
		field("Interface IP", notSet(st.InterfaceIP)),
	}
	if st.TunnelInfo != "" {
		rows = append(rows, "", dimStyle.Render(st.TunnelInfo))
	}
	if st.SessionInfo != "" {
		rows = append(rows, "", dimStyle.Render(st.SessionInfo))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func renderForwards(units []model.ForwardUnit) string {
	if len(units) == 0 {
		return dimStyle.Render("No port forwards configured")
	}
	t := newTable("PORT", "REMOTE", "STATUS", "ENABLED", "SERVICE")
	for _, u := range units {
		t.Row(strconv.Itoa(u.Port), u.Remote, u.Status, u.Enabled, u.Service)
	}
	return t.String()
}

func renderTunnels(tunnels []model.Tunnel) string {
	if len(tunnels) == 0 {
		return dimStyle.Render("No tunnels configured")
	}
	t := newTable("NAME", "INTERFACE", "LOCAL", "REMOTE", "IDS", "FORWARD TO", "PORTS")
	for _, c := range tunnels {
		ids := fmt.Sprintf("%d/%d %d/%d", c.TunnelID, c.PeerTunnelID, c.SessionID, c.PeerSessionID)
		ports := make([]string, 0, len(c.ForwardedPorts))
		for _, p := range c.ForwardedPorts {
			ports = append(ports, strconv.Itoa(p))
		}
		t.Row(c.Name, c.InterfaceName, c.LocalIP, c.RemoteIP, ids, c.RemoteForwardIP, strings.Join(ports, ","))
	}
	return t.String()
}

// renderLines colors report lines by outcome.
func renderLines(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lower := strings.ToLower(l)
		switch {
		case strings.Contains(lower, "failed") || strings.Contains(lower, "invalid"):
			lines[i] = errStyle.Render(l)
		case strings.Contains(lower, "skipping") || strings.Contains(lower, "not configured"):
			lines[i] = warnStyle.Render(l)
		}
	}
	return strings.Join(lines, "\n")
}
