package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/igor04091968/sing-l2tp/database/model"
	"github.com/igor04091968/sing-l2tp/executor"
	"github.com/igor04091968/sing-l2tp/logger"
	"github.com/igor04091968/sing-l2tp/netif"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/spf13/afero"
)

const (
	DefaultModulesLoadDir = "/etc/modules-load.d"
	modulesLoadFile       = "sing-l2tp.conf"
)

var kernelModules = []string{"l2tp_core", "l2tp_netlink", "l2tp_eth", "l2tp_ip"}

// Output of ip(8) when the object being removed is already gone.
var missingMarkers = []string{"Cannot find device", "does not exist", "No such", "not found"}

// TunnelService drives one L2TPv3 tunnel, its session and the l2tpeth
// interface through ip(8).
// NOTE: Setup, Teardown and InstallPrerequisites require root privileges.
type TunnelService struct {
	cfg        *model.Tunnel
	exec       executor.Executor
	links      netif.Inspector
	fs         afero.Fs
	modulesDir string
}

// NewTunnelService creates a controller for cfg. A nil links inspector
// falls back to netlink.
func NewTunnelService(cfg *model.Tunnel, exec executor.Executor, links netif.Inspector) *TunnelService {
	if links == nil {
		links = netif.NewNetlink()
	}
	return &TunnelService{
		cfg:        cfg,
		exec:       exec,
		links:      links,
		fs:         afero.NewOsFs(),
		modulesDir: DefaultModulesLoadDir,
	}
}

// WithModulesLoad changes where the persistent kernel module list is written.
func (s *TunnelService) WithModulesLoad(fs afero.Fs, dir string) *TunnelService {
	if fs != nil {
		s.fs = fs
	}
	if dir != "" {
		s.modulesDir = dir
	}
	return s
}

func (s *TunnelService) Config() *model.Tunnel {
	return s.cfg
}

func (s *TunnelService) tunnelID() string {
	return strconv.Itoa(s.cfg.TunnelID)
}

func (s *TunnelService) sessionID() string {
	return strconv.Itoa(s.cfg.SessionID)
}

// Exists reports whether the kernel knows a tunnel with the local tunnel id.
func (s *TunnelService) Exists(ctx context.Context) bool {
	exists, _ := s.showTunnel(ctx)
	return exists
}

func (s *TunnelService) showTunnel(ctx context.Context) (bool, string) {
	if s.cfg.TunnelID <= 0 {
		return false, ""
	}
	ok, out := s.exec.Run(ctx, "ip", "l2tp", "show", "tunnel", "tunnel_id", s.tunnelID())
	return ok && strings.Contains(out, "Tunnel "+s.tunnelID()), out
}

// endpointsDiffer reports whether `ip l2tp show tunnel` output describes
// other addresses or another peer id than cfg. Lines that are absent from
// the output are not compared.
func endpointsDiffer(cfg *model.Tunnel, out string) bool {
	for _, line := range strings.Split(out, "\n") {
		f := strings.Fields(line)
		switch {
		case len(f) >= 4 && f[0] == "From" && f[2] == "to":
			if f[1] != cfg.LocalIP || f[3] != cfg.RemoteIP {
				return true
			}
		case len(f) >= 3 && f[0] == "Peer" && f[1] == "tunnel":
			if f[2] != strconv.Itoa(cfg.PeerTunnelID) {
				return true
			}
		}
	}
	return false
}

func (s *TunnelService) sessionExists(ctx context.Context) bool {
	if s.cfg.TunnelID <= 0 || s.cfg.SessionID <= 0 {
		return false
	}
	ok, out := s.exec.Run(ctx, "ip", "l2tp", "show", "session", "tunnel_id", s.tunnelID(), "session_id", s.sessionID())
	return ok && strings.Contains(out, "Session "+s.sessionID())
}

// InstallPrerequisites makes sure ip(8) and the L2TP kernel modules are
// available and that the modules are loaded again on boot.
func (s *TunnelService) InstallPrerequisites(ctx context.Context) (string, error) {
	var lines []string

	if ok, _ := s.exec.Run(ctx, "which", "ip"); !ok {
		ok, out := s.exec.Run(ctx, "apt-get", "install", "-y", "iproute2")
		if !ok {
			return strings.Join(lines, "\n"), &CommandError{Step: "Install iproute2", Output: out}
		}
		lines = append(lines, "iproute2 installed")
	}

	for _, mod := range kernelModules {
		ok, out := s.exec.Run(ctx, "modprobe", mod)
		if !ok {
			return strings.Join(lines, "\n"), &CommandError{Step: "Load module " + mod, Output: out}
		}
		lines = append(lines, fmt.Sprintf("Module %s loaded", mod))
	}

	path := filepath.Join(s.modulesDir, modulesLoadFile)
	if err := s.fs.MkdirAll(s.modulesDir, 0o755); err != nil {
		return strings.Join(lines, "\n"), fmt.Errorf("failed to create %s: %w", s.modulesDir, err)
	}
	content := strings.Join(kernelModules, "\n") + "\n"
	if err := afero.WriteFile(s.fs, path, []byte(content), 0o644); err != nil {
		return strings.Join(lines, "\n"), fmt.Errorf("failed to write %s: %w", path, err)
	}
	lines = append(lines, "Modules persisted to "+path)

	if kernel, err := host.KernelVersionWithContext(ctx); err == nil && kernel != "" {
		lines = append(lines, "Kernel "+kernel)
	}
	return strings.Join(lines, "\n"), nil
}

// Setup creates the tunnel and the session, assigns the interface address
// and brings the interface up. Each step runs only after the previous one
// succeeded; objects that already exist are left in place. A tunnel that
// exists with other endpoints is an error; Start with recreate replaces it.
func (s *TunnelService) Setup(ctx context.Context) (string, error) {
	cfg := s.cfg
	if !cfg.IsConfigured() {
		return "", &ConfigError{Field: "tunnel", Msg: fmt.Sprintf("Tunnel '%s' is not fully configured", cfg.Name)}
	}

	var lines []string
	if exists, out := s.showTunnel(ctx); exists {
		if endpointsDiffer(cfg, out) {
			return "", &CommandError{
				Step:   "Tunnel create",
				Output: out,
				Msg:    fmt.Sprintf("Tunnel %d exists with other endpoints, start it with --recreate", cfg.TunnelID),
			}
		}
		lines = append(lines, fmt.Sprintf("Tunnel %d already exists", cfg.TunnelID))
	} else {
		ok, out := s.exec.Run(ctx, "ip", "l2tp", "add", "tunnel",
			"tunnel_id", s.tunnelID(),
			"peer_tunnel_id", strconv.Itoa(cfg.PeerTunnelID),
			"encap", "ip",
			"local", cfg.LocalIP,
			"remote", cfg.RemoteIP)
		if !ok {
			return strings.Join(lines, "\n"), &CommandError{Step: "Tunnel create", Output: out}
		}
		lines = append(lines, fmt.Sprintf("Tunnel %d created", cfg.TunnelID))
	}

	if s.sessionExists(ctx) {
		lines = append(lines, fmt.Sprintf("Session %d already exists", cfg.SessionID))
	} else {
		ok, out := s.exec.Run(ctx, "ip", "l2tp", "add", "session",
			"name", cfg.InterfaceName,
			"tunnel_id", s.tunnelID(),
			"session_id", s.sessionID(),
			"peer_session_id", strconv.Itoa(cfg.PeerSessionID))
		if !ok {
			return strings.Join(lines, "\n"), &CommandError{Step: "Session create", Output: out}
		}
		lines = append(lines, fmt.Sprintf("Session %d created on %s", cfg.SessionID, cfg.InterfaceName))
	}

	if cfg.InterfaceIP != "" {
		ok, out := s.exec.Run(ctx, "ip", "addr", "replace", cfg.InterfaceIP, "dev", cfg.InterfaceName)
		if !ok {
			return strings.Join(lines, "\n"), &CommandError{Step: "Address assign", Output: out}
		}
		lines = append(lines, fmt.Sprintf("Address %s assigned", cfg.InterfaceIP))
	}

	ok, out := s.exec.Run(ctx, "ip", "link", "set", cfg.InterfaceName, "up")
	if !ok {
		return strings.Join(lines, "\n"), &CommandError{Step: "Interface up", Output: out}
	}
	lines = append(lines, fmt.Sprintf("Interface %s is up", cfg.InterfaceName))

	logger.Infof("tunnel %s: setup complete", cfg.Name)
	return strings.Join(lines, "\n"), nil
}

// Teardown reverses Setup. Every step runs regardless of the previous
// one; removing something that is already gone is not a failure.
func (s *TunnelService) Teardown(ctx context.Context) (string, error) {
	cfg := s.cfg
	type step struct {
		name string
		args []string
	}
	steps := []step{
		{"Interface down", []string{"link", "set", cfg.InterfaceName, "down"}},
		{"Address flush", []string{"addr", "flush", "dev", cfg.InterfaceName}},
	}
	if cfg.TunnelID > 0 && cfg.SessionID > 0 {
		steps = append(steps, step{"Session delete", []string{"l2tp", "del", "session", "tunnel_id", s.tunnelID(), "session_id", s.sessionID()}})
	}
	if cfg.TunnelID > 0 {
		steps = append(steps, step{"Tunnel delete", []string{"l2tp", "del", "tunnel", "tunnel_id", s.tunnelID()}})
	}

	var lines, failures []string
	for _, st := range steps {
		ok, out := s.exec.Run(ctx, "ip", st.args...)
		switch {
		case ok:
			lines = append(lines, st.name+": done")
		case isMissing(out):
			lines = append(lines, st.name+": nothing to remove")
		default:
			lines = append(lines, fmt.Sprintf("%s: %s", st.name, out))
			failures = append(failures, fmt.Sprintf("%s: %s", st.name, out))
		}
	}

	if len(failures) > 0 {
		logger.Warningf("tunnel %s: teardown finished with %d failure(s)", cfg.Name, len(failures))
		return strings.Join(lines, "\n"), &CommandError{Step: "Teardown", Output: strings.Join(failures, "; ")}
	}
	logger.Infof("tunnel %s: teardown complete", cfg.Name)
	return strings.Join(lines, "\n"), nil
}

func isMissing(out string) bool {
	for _, m := range missingMarkers {
		if strings.Contains(out, m) {
			return true
		}
	}
	return false
}

// Status probes the live state of the tunnel. It never fails; anything
// that cannot be read is reported as absent.
func (s *TunnelService) Status(ctx context.Context) *model.TunnelStatus {
	cfg := s.cfg
	st := &model.TunnelStatus{
		TunnelName:    cfg.Name,
		Configured:    cfg.IsConfigured(),
		LocalIP:       cfg.LocalIP,
		RemoteIP:      cfg.RemoteIP,
		InterfaceName: cfg.InterfaceName,
	}

	if cfg.TunnelID > 0 {
		if ok, out := s.exec.Run(ctx, "ip", "l2tp", "show", "tunnel", "tunnel_id", s.tunnelID()); ok {
			st.TunnelInfo = out
			st.TunnelExists = strings.Contains(out, "Tunnel "+s.tunnelID())
		}
		if cfg.SessionID > 0 {
			if ok, out := s.exec.Run(ctx, "ip", "l2tp", "show", "session", "tunnel_id", s.tunnelID(), "session_id", s.sessionID()); ok {
				st.SessionInfo = out
				st.SessionExists = strings.Contains(out, "Session "+s.sessionID())
			}
		}
	}

	link, err := s.links.Link(cfg.InterfaceName)
	if err != nil {
		logger.Debugf("tunnel %s: %v", cfg.Name, err)
	}
	st.InterfaceUp = link.Exists && link.Up
	if len(link.Addrs) > 0 {
		st.InterfaceIP = link.Addrs[0]
	}
	return st
}
