package service

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"text/template"

	"github.com/igor04091968/sing-l2tp/database/model"
	"github.com/igor04091968/sing-l2tp/executor"
	"github.com/igor04091968/sing-l2tp/logger"
	"github.com/spf13/afero"
)

const (
	DefaultSystemdDir = "/etc/systemd/system"
	forwardPrefix     = "sing-l2tp-forward-"
	noForwardsMsg     = "No port forwards configured"
	unchangedMsg      = "Port forwards unchanged"
	invalidPortMsg    = "Invalid port number"
)

var unitTemplate = template.Must(template.New("forward").Parse(`[Unit]
Description=sing-l2tp port forward ({{.Tunnel}}) - port %i
After=network.target sing-l2tp.service
Requires=network.target

[Service]
Type=simple
ExecStart=/usr/bin/socat TCP4-LISTEN:%i,reuseaddr,fork {{.Target}}:%i
Restart=always
RestartSec=5

[Install]
WantedBy=multi-user.target
`))

// ForwardService manages the socat forwards of one tunnel. All ports share
// one systemd template unit; each port is an instance of it.
type ForwardService struct {
	cfg        *model.Tunnel
	exec       executor.Executor
	fs         afero.Fs
	store      TunnelStore
	systemdDir string
}

// NewForwardService creates a forward controller for cfg. Port set and
// target changes are persisted through store when it is not nil.
func NewForwardService(cfg *model.Tunnel, exec executor.Executor, fs afero.Fs, store TunnelStore) *ForwardService {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &ForwardService{
		cfg:        cfg,
		exec:       exec,
		fs:         fs,
		store:      store,
		systemdDir: DefaultSystemdDir,
	}
}

func (s *ForwardService) WithSystemdDir(dir string) *ForwardService {
	if dir != "" {
		s.systemdDir = dir
	}
	return s
}

// ForwardUnitName is the systemd instance that forwards port of tunnel.
func ForwardUnitName(tunnel string, port int) string {
	return fmt.Sprintf("%s%s@%d.service", forwardPrefix, tunnel, port)
}

func (s *ForwardService) UnitName(port int) string {
	return ForwardUnitName(s.cfg.Name, port)
}

func (s *ForwardService) TemplatePath() string {
	return filepath.Join(s.systemdDir, forwardPrefix+s.cfg.Name+"@.service")
}

func (s *ForwardService) persist() error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Save(s.cfg); err != nil {
		return fmt.Errorf("failed to save tunnel '%s': %w", s.cfg.Name, err)
	}
	return nil
}

func renderUnit(tunnel, remote string) (string, error) {
	target := "TCP4:" + remote
	if ip := net.ParseIP(remote); ip != nil && ip.To4() == nil {
		target = "TCP6:[" + remote + "]"
	}
	var buf bytes.Buffer
	err := unitTemplate.Execute(&buf, struct{ Tunnel, Target string }{tunnel, target})
	return buf.String(), err
}

// InstallTemplate writes the template unit for the current remote target
// and reloads systemd. An existing template is overwritten.
func (s *ForwardService) InstallTemplate(ctx context.Context) (string, error) {
	remote := s.cfg.RemoteForwardIP
	if remote == "" {
		return "", &ConfigError{Field: "remote_forward_ip", Msg: "Remote forward IP not configured"}
	}

	content, err := renderUnit(s.cfg.Name, remote)
	if err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	path := s.TemplatePath()
	if err := s.fs.MkdirAll(s.systemdDir, 0o755); err != nil {
		return "", fmt.Errorf("Failed to install template: %w", err)
	}
	if err := afero.WriteFile(s.fs, path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("Failed to install template: %w", err)
	}

	if ok, out := s.exec.Run(ctx, "systemctl", "daemon-reload"); !ok {
		return "", &CommandError{Step: "systemctl daemon-reload", Output: out}
	}
	logger.Infof("tunnel %s: forward template installed for %s", s.cfg.Name, remote)
	return "Template installed at " + path, nil
}

// UpdateTemplate stores newTarget as the remote forward address when it is
// not empty, then reinstalls the template.
func (s *ForwardService) UpdateTemplate(ctx context.Context, newTarget string) (string, error) {
	if newTarget != "" {
		if net.ParseIP(newTarget) == nil {
			return "", &ValidationError{Token: newTarget, Msg: "Invalid IP address"}
		}
		s.cfg.RemoteForwardIP = newTarget
		if err := s.persist(); err != nil {
			return "", err
		}
	}
	return s.InstallTemplate(ctx)
}

// RemoveTemplate disables every registered unit and deletes the template.
func (s *ForwardService) RemoveTemplate(ctx context.Context) (string, error) {
	for _, port := range s.cfg.ForwardedPorts {
		s.exec.Run(ctx, "systemctl", "disable", "--now", s.UnitName(port))
	}
	path := s.TemplatePath()
	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return "", err
	}
	if !exists {
		return "No template installed", nil
	}
	if err := s.fs.Remove(path); err != nil {
		return "", fmt.Errorf("failed to remove %s: %w", path, err)
	}
	s.exec.Run(ctx, "systemctl", "daemon-reload")
	return "Template removed from " + path, nil
}

// CreateForward enables and starts the unit for port, installing the
// template first when it is missing. The port is registered only after
// systemd accepted the unit.
func (s *ForwardService) CreateForward(ctx context.Context, port int) (string, error) {
	exists, err := afero.Exists(s.fs, s.TemplatePath())
	if err != nil {
		return "", err
	}
	if !exists {
		if _, err := s.InstallTemplate(ctx); err != nil {
			return "", fmt.Errorf("Failed to install template: %w", err)
		}
	}

	ok, out := s.exec.Run(ctx, "systemctl", "enable", "--now", s.UnitName(port))
	if !ok {
		return "", &CommandError{
			Step:   "systemctl enable --now",
			Output: out,
			Msg:    fmt.Sprintf("Failed to create forward for port %d: %s", port, out),
		}
	}

	s.cfg.AddPort(port)
	if err := s.persist(); err != nil {
		// an unregistered unit would outlive Stop and Delete
		s.cfg.RemovePort(port)
		s.exec.Run(ctx, "systemctl", "disable", "--now", s.UnitName(port))
		return "", err
	}
	return fmt.Sprintf("Port forward for %d created and started", port), nil
}

// RemoveForward stops and disables the unit and unregisters port. Units
// that never existed are fine; only a store failure is returned.
func (s *ForwardService) RemoveForward(ctx context.Context, port int) (string, error) {
	unit := s.UnitName(port)
	s.exec.Run(ctx, "systemctl", "stop", unit)
	s.exec.Run(ctx, "systemctl", "disable", unit)

	s.cfg.RemovePort(port)
	if err := s.persist(); err != nil {
		return "", err
	}
	return fmt.Sprintf("Port forward for %d removed", port), nil
}

// PortResult is the outcome for one token of a batch operation.
type PortResult struct {
	Token   string `json:"token"`
	Port    int    `json:"port,omitempty"`
	Numeric bool   `json:"-"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func (r PortResult) Line() string {
	if !r.Numeric {
		return fmt.Sprintf("'%s': %s", r.Token, r.Message)
	}
	return fmt.Sprintf("Port %d: %s", r.Port, r.Message)
}

// BatchReport collects per-port results. Batch operations never fail as
// a whole; callers that need strict results inspect Results.
type BatchReport struct {
	Results []PortResult `json:"results"`
	Note    string       `json:"note,omitempty"`
}

func (b *BatchReport) add(r PortResult) {
	b.Results = append(b.Results, r)
}

// Lines returns one line per result in input order.
func (b *BatchReport) Lines() []string {
	if len(b.Results) == 0 && b.Note != "" {
		return []string{b.Note}
	}
	lines := make([]string, 0, len(b.Results))
	for _, r := range b.Results {
		lines = append(lines, r.Line())
	}
	return lines
}

func (b *BatchReport) String() string {
	return strings.Join(b.Lines(), "\n")
}

// Failed counts the results that did not succeed.
func (b *BatchReport) Failed() int {
	n := 0
	for _, r := range b.Results {
		if !r.OK {
			n++
		}
	}
	return n
}

func splitTokens(list string) []string {
	var tokens []string
	for _, tok := range strings.Split(list, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// ParsePorts parses a comma separated port list, rejecting the first bad token.
func ParsePorts(list string) ([]int, error) {
	var ports []int
	for _, tok := range splitTokens(list) {
		p, err := strconv.Atoi(tok)
		if err != nil || p < 1 || p > 65535 {
			return nil, &ValidationError{Token: tok, Msg: invalidPortMsg}
		}
		ports = append(ports, p)
	}
	return ports, nil
}

// AddForwards creates a forward for every port in a comma separated list.
// Each token is handled on its own; a bad token never stops the others.
func (s *ForwardService) AddForwards(ctx context.Context, list string) *BatchReport {
	report := &BatchReport{}
	for _, tok := range splitTokens(list) {
		port, err := strconv.Atoi(tok)
		if err != nil {
			report.add(PortResult{Token: tok, Message: invalidPortMsg})
			continue
		}
		if port < 1 || port > 65535 {
			report.add(PortResult{Token: tok, Port: port, Numeric: true, Message: invalidPortMsg})
			continue
		}
		msg, err := s.CreateForward(ctx, port)
		if err != nil {
			msg = err.Error()
		}
		report.add(PortResult{Token: tok, Port: port, Numeric: true, OK: err == nil, Message: msg})
	}
	return report
}

// RemoveForwards removes the forward of every port in a comma separated list.
func (s *ForwardService) RemoveForwards(ctx context.Context, list string) *BatchReport {
	report := &BatchReport{}
	for _, tok := range splitTokens(list) {
		port, err := strconv.Atoi(tok)
		if err != nil {
			report.add(PortResult{Token: tok, Message: invalidPortMsg})
			continue
		}
		msg, err := s.RemoveForward(ctx, port)
		if err != nil {
			msg = err.Error()
		}
		report.add(PortResult{Token: tok, Port: port, Numeric: true, OK: err == nil, Message: msg})
	}
	return report
}

// SyncPorts makes the registered port set equal to want. Ports missing
// from want are removed, new ones are created; ports in both are left
// running. Each change goes through RemoveForward or CreateForward.
func (s *ForwardService) SyncPorts(ctx context.Context, want []int) *BatchReport {
	report := &BatchReport{Note: unchangedMsg}
	for _, port := range slices.Clone(s.cfg.ForwardedPorts) {
		if slices.Contains(want, port) {
			continue
		}
		msg, err := s.RemoveForward(ctx, port)
		if err != nil {
			msg = err.Error()
		}
		report.add(PortResult{Token: strconv.Itoa(port), Port: port, Numeric: true, OK: err == nil, Message: msg})
	}

	for _, port := range slices.Compact(slices.Sorted(slices.Values(want))) {
		if s.cfg.HasPort(port) {
			continue
		}
		if port < 1 || port > 65535 {
			report.add(PortResult{Token: strconv.Itoa(port), Port: port, Numeric: true, Message: invalidPortMsg})
			continue
		}
		msg, err := s.CreateForward(ctx, port)
		if err != nil {
			msg = err.Error()
		}
		report.add(PortResult{Token: strconv.Itoa(port), Port: port, Numeric: true, OK: err == nil, Message: msg})
	}
	return report
}

// ListForwards reports the live state of every registered port.
func (s *ForwardService) ListForwards(ctx context.Context) []model.ForwardUnit {
	units := make([]model.ForwardUnit, 0, len(s.cfg.ForwardedPorts))
	for _, port := range s.cfg.ForwardedPorts {
		unit := s.UnitName(port)

		status := "inactive"
		if ok, out := s.exec.Run(ctx, "systemctl", "is-active", unit); ok && out != "" {
			status = out
		}
		enabled := "disabled"
		if ok, out := s.exec.Run(ctx, "systemctl", "is-enabled", unit); ok && out != "" {
			enabled = out
		}

		units = append(units, model.ForwardUnit{
			Port:    port,
			Service: unit,
			Status:  status,
			Enabled: enabled,
			Remote:  net.JoinHostPort(s.cfg.RemoteForwardIP, strconv.Itoa(port)),
		})
	}
	return units
}

// ForwardDetail returns the systemctl status text of one forward.
func (s *ForwardService) ForwardDetail(ctx context.Context, port int) string {
	_, out := s.exec.Run(ctx, "systemctl", "status", "--no-pager", s.UnitName(port))
	return out
}

func (s *ForwardService) RestartForward(ctx context.Context, port int) (string, error) {
	ok, out := s.exec.Run(ctx, "systemctl", "restart", s.UnitName(port))
	if !ok {
		return "", &CommandError{
			Step:   "systemctl restart",
			Output: out,
			Msg:    fmt.Sprintf("Failed to restart port %d: %s", port, out),
		}
	}
	return fmt.Sprintf("Port forward for %d restarted", port), nil
}

func (s *ForwardService) eachPort(fn func(port int) PortResult) *BatchReport {
	report := &BatchReport{}
	if len(s.cfg.ForwardedPorts) == 0 {
		report.Note = noForwardsMsg
		return report
	}
	for _, port := range s.cfg.ForwardedPorts {
		r := fn(port)
		r.Token, r.Port, r.Numeric = strconv.Itoa(port), port, true
		report.add(r)
	}
	return report
}

// systemctlAll runs verb on every registered unit.
func (s *ForwardService) systemctlAll(ctx context.Context, verb, done string) *BatchReport {
	return s.eachPort(func(port int) PortResult {
		ok, out := s.exec.Run(ctx, "systemctl", verb, s.UnitName(port))
		if !ok {
			return PortResult{Message: "failed: " + out}
		}
		return PortResult{OK: true, Message: done}
	})
}

func (s *ForwardService) StartAllForwards(ctx context.Context) *BatchReport {
	return s.systemctlAll(ctx, "start", "started")
}

func (s *ForwardService) StopAllForwards(ctx context.Context) *BatchReport {
	return s.systemctlAll(ctx, "stop", "stopped")
}

func (s *ForwardService) RestartAllForwards(ctx context.Context) *BatchReport {
	return s.eachPort(func(port int) PortResult {
		msg, err := s.RestartForward(ctx, port)
		if err != nil {
			return PortResult{Message: err.Error()}
		}
		return PortResult{OK: true, Message: msg}
	})
}

// ToolInstalled reports whether socat is on PATH.
func (s *ForwardService) ToolInstalled(ctx context.Context) bool {
	ok, _ := s.exec.Run(ctx, "which", "socat")
	return ok
}

func (s *ForwardService) InstallTool(ctx context.Context) (string, error) {
	ok, out := s.exec.Run(ctx, "apt-get", "install", "-y", "socat")
	if !ok {
		return "", &CommandError{
			Step:   "apt-get install socat",
			Output: out,
			Msg:    "Failed to install socat: " + out,
		}
	}
	return "socat installed successfully", nil
}
