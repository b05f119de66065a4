package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gofrs/uuid/v5"
	"github.com/igor04091968/sing-l2tp/database/model"
	"github.com/igor04091968/sing-l2tp/executor"
	"github.com/igor04091968/sing-l2tp/logger"
	"github.com/igor04091968/sing-l2tp/metrics"
	"github.com/igor04091968/sing-l2tp/netif"
	"github.com/spf13/afero"
)

// HostDeps is everything the controllers need from the host.
type HostDeps struct {
	Exec       executor.Executor
	Links      netif.Inspector
	Fs         afero.Fs
	SystemdDir string
	ModulesDir string
}

// ApplyReport is the outcome of an apply run. Failed counts tunnels whose
// own setup failed; forward problems only show up in Lines.
type ApplyReport struct {
	RunID  string   `json:"run_id"`
	Lines  []string `json:"lines"`
	Failed int      `json:"failed"`
}

func newApplyReport() *ApplyReport {
	r := &ApplyReport{}
	if id, err := uuid.NewV4(); err == nil {
		r.RunID = id.String()
	}
	return r
}

func (r *ApplyReport) addf(format string, args ...any) {
	r.Lines = append(r.Lines, fmt.Sprintf(format, args...))
}

func (r *ApplyReport) OK() bool {
	return r.Failed == 0
}

func (r *ApplyReport) String() string {
	return strings.Join(r.Lines, "\n")
}

// LifecycleService sequences tunnel and forward operations. Multi-step
// flows on one tunnel hold that tunnel's lock; different tunnels never
// wait on each other.
type LifecycleService struct {
	store TunnelStore
	deps  HostDeps

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLifecycleService(store TunnelStore, deps HostDeps) *LifecycleService {
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	if deps.Links == nil {
		deps.Links = netif.NewNetlink()
	}
	return &LifecycleService{
		store: store,
		deps:  deps,
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *LifecycleService) Store() TunnelStore {
	return s.store
}

// Tunnel builds the tunnel controller for cfg.
func (s *LifecycleService) Tunnel(cfg *model.Tunnel) *TunnelService {
	return NewTunnelService(cfg, s.deps.Exec, s.deps.Links).WithModulesLoad(s.deps.Fs, s.deps.ModulesDir)
}

// Forwards builds the forward controller for cfg.
func (s *LifecycleService) Forwards(cfg *model.Tunnel) *ForwardService {
	return NewForwardService(cfg, s.deps.Exec, s.deps.Fs, s.store).WithSystemdDir(s.deps.SystemdDir)
}

func (s *LifecycleService) lock(name string) func() {
	s.mu.Lock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (s *LifecycleService) load(name string) (*model.Tunnel, error) {
	cfg, err := s.store.Get(name)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s", ErrTunnelNotFound, name)
	}
	return cfg, nil
}

// Apply brings every configured tunnel and its forwards up. Tunnels left
// down by Stop are skipped. It is safe to run repeatedly.
func (s *LifecycleService) Apply(ctx context.Context) *ApplyReport {
	report := newApplyReport()
	defer metrics.ApplyRuns.Inc()

	names, err := s.store.List()
	if err != nil {
		report.addf("Failed to list tunnels: %v", err)
		report.Failed++
		return report
	}
	if len(names) == 0 {
		report.addf("No tunnels configured, skipping")
		return report
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			report.addf("Apply interrupted: %v", err)
			report.Failed++
			break
		}
		unlock := s.lock(name)
		cfg, err := s.load(name)
		switch {
		case errors.Is(err, ErrTunnelNotFound):
			// deleted after List
			report.addf("Tunnel '%s' no longer exists, skipping", name)
		case err != nil:
			report.addf("Tunnel '%s': %v", name, err)
			report.Failed++
		case cfg.Stopped:
			report.addf("Tunnel '%s' stopped, skipping", name)
			logger.Infof("apply %s: tunnel %s is stopped, skipping", report.RunID, name)
		default:
			s.applyTunnel(ctx, cfg, report)
		}
		unlock()
	}

	logger.Infof("apply %s: %d tunnel(s), %d failed", report.RunID, len(names), report.Failed)
	return report
}

// applyTunnel runs setup for one tunnel and, if it succeeded, starts its
// forwards. The caller holds the tunnel lock.
func (s *LifecycleService) applyTunnel(ctx context.Context, cfg *model.Tunnel, report *ApplyReport) {
	if !cfg.IsConfigured() {
		report.addf("Tunnel '%s' not fully configured, skipping", cfg.Name)
		return
	}

	msg, err := s.Tunnel(cfg).Setup(ctx)
	if err != nil {
		report.addf("Tunnel '%s': %v", cfg.Name, err)
		report.Failed++
		metrics.SetupFailures.WithLabelValues(cfg.Name).Inc()
		metrics.SetTunnelUp(cfg.Name, false)
		logger.Errorf("tunnel %s: %v", cfg.Name, err)
		return
	}
	report.addf("Tunnel '%s': %s", cfg.Name, msg)
	metrics.SetTunnelUp(cfg.Name, true)

	if len(cfg.ForwardedPorts) == 0 {
		return
	}
	fwd := s.Forwards(cfg)
	msg, err = fwd.InstallTemplate(ctx)
	if err != nil {
		report.addf("Forward template: %v", err)
		logger.Warningf("tunnel %s: forward template: %v", cfg.Name, err)
	} else {
		report.addf("Forward template: %s", msg)
	}
	report.addf("Port forwards: %s", fwd.StartAllForwards(ctx))
}

// Start brings one tunnel up and clears its stopped flag. With recreate an
// existing tunnel is torn down first.
func (s *LifecycleService) Start(ctx context.Context, name string, recreate bool) (*ApplyReport, error) {
	defer s.lock(name)()

	cfg, err := s.load(name)
	if err != nil {
		return nil, err
	}
	if !cfg.IsConfigured() {
		return nil, &ConfigError{Field: "tunnel", Msg: fmt.Sprintf("Tunnel '%s' is not fully configured", name)}
	}

	report := newApplyReport()
	if cfg.Stopped {
		cfg.Stopped = false
		if err := s.store.Save(cfg); err != nil {
			return nil, fmt.Errorf("failed to save tunnel '%s': %w", name, err)
		}
	}

	tun := s.Tunnel(cfg)
	if recreate && tun.Exists(ctx) {
		msg, err := tun.Teardown(ctx)
		if err != nil {
			report.addf("Teardown: %v", err)
		} else {
			report.addf("Teardown: %s", strings.ReplaceAll(msg, "\n", "; "))
		}
	}

	s.applyTunnel(ctx, cfg, report)
	if !report.OK() {
		return report, fmt.Errorf("tunnel '%s' failed to start", name)
	}
	return report, nil
}

// Stop stops every forward of the tunnel and then tears the tunnel down.
// The tunnel is marked stopped so Apply does not bring it back.
func (s *LifecycleService) Stop(ctx context.Context, name string) (string, error) {
	defer s.lock(name)()

	cfg, err := s.load(name)
	if err != nil {
		return "", err
	}
	if !cfg.Stopped {
		cfg.Stopped = true
		if err := s.store.Save(cfg); err != nil {
			return "", fmt.Errorf("failed to save tunnel '%s': %w", name, err)
		}
	}
	return s.stop(ctx, cfg)
}

func (s *LifecycleService) stop(ctx context.Context, cfg *model.Tunnel) (string, error) {
	var lines []string
	if len(cfg.ForwardedPorts) > 0 {
		lines = append(lines, "Port forwards: "+s.Forwards(cfg).StopAllForwards(ctx).String())
	}

	msg, err := s.Tunnel(cfg).Teardown(ctx)
	metrics.SetTunnelUp(cfg.Name, false)
	if msg != "" {
		lines = append(lines, msg)
	}
	return strings.Join(lines, "\n"), err
}

// Delete stops the tunnel, removes its forward template and forgets it.
func (s *LifecycleService) Delete(ctx context.Context, name string) (string, error) {
	unlock := s.lock(name)
	defer unlock()

	cfg, err := s.load(name)
	if err != nil {
		return "", err
	}

	var lines []string
	msg, err := s.stop(ctx, cfg)
	if msg != "" {
		lines = append(lines, msg)
	}
	if err != nil {
		logger.Warningf("tunnel %s: teardown before delete: %v", name, err)
	}
	if msg, err := s.Forwards(cfg).RemoveTemplate(ctx); err != nil {
		lines = append(lines, fmt.Sprintf("Forward template: %v", err))
	} else {
		lines = append(lines, msg)
	}

	if err := s.store.Delete(name); err != nil {
		return strings.Join(lines, "\n"), fmt.Errorf("failed to delete tunnel '%s': %w", name, err)
	}
	metrics.ForgetTunnel(name)
	lines = append(lines, fmt.Sprintf("Tunnel '%s' deleted", name))
	return strings.Join(lines, "\n"), nil
}

// Save creates or updates the stored intent of one tunnel. A nil port list
// keeps the current forwards; a non-nil one is synced like Import does.
func (s *LifecycleService) Save(ctx context.Context, in *model.Tunnel) (string, error) {
	if err := NormalizeTunnel(in); err != nil {
		return "", &ValidationError{Token: in.Name, Msg: err.Error()}
	}
	lines, err := s.importTunnel(ctx, in)
	return strings.Join(lines, "\n"), err
}

// Import writes every tunnel of file to the store, stopping at the first
// store error. Tunnels that list forwarded_ports get their forwards synced
// to that list; the others keep the forwards they have.
func (s *LifecycleService) Import(ctx context.Context, file *TunnelFile) ([]string, error) {
	var lines []string
	for i := range file.Tunnels {
		out, err := s.importTunnel(ctx, &file.Tunnels[i])
		lines = append(lines, out...)
		if err != nil {
			return lines, err
		}
	}
	return lines, nil
}

func (s *LifecycleService) importTunnel(ctx context.Context, in *model.Tunnel) ([]string, error) {
	defer s.lock(in.Name)()

	cfg, verb, err := upsertTunnel(s.store, in)
	if err != nil {
		return nil, fmt.Errorf("failed to save tunnel '%s': %w", in.Name, err)
	}
	lines := []string{fmt.Sprintf("Tunnel '%s' %s", in.Name, verb)}
	if in.ForwardedPorts == nil {
		return lines, nil
	}
	if report := s.Forwards(cfg).SyncPorts(ctx, in.ForwardedPorts); len(report.Results) > 0 {
		lines = append(lines, report.Lines()...)
	}
	return lines, nil
}

// Status returns the live tunnel state and its forwards.
func (s *LifecycleService) Status(ctx context.Context, name string) (*model.TunnelStatus, []model.ForwardUnit, error) {
	cfg, err := s.load(name)
	if err != nil {
		return nil, nil, err
	}
	return s.Tunnel(cfg).Status(ctx), s.Forwards(cfg).ListForwards(ctx), nil
}

// AddForwards creates forwards for a comma separated port list.
func (s *LifecycleService) AddForwards(ctx context.Context, name, list string) (*BatchReport, error) {
	defer s.lock(name)()

	cfg, err := s.load(name)
	if err != nil {
		return nil, err
	}
	return s.Forwards(cfg).AddForwards(ctx, list), nil
}

// SyncForwards makes the tunnel's forwards match ports exactly.
func (s *LifecycleService) SyncForwards(ctx context.Context, name string, ports []int) (*BatchReport, error) {
	defer s.lock(name)()

	cfg, err := s.load(name)
	if err != nil {
		return nil, err
	}
	return s.Forwards(cfg).SyncPorts(ctx, ports), nil
}

// RemoveForwards removes forwards for a comma separated port list.
func (s *LifecycleService) RemoveForwards(ctx context.Context, name, list string) (*BatchReport, error) {
	defer s.lock(name)()

	cfg, err := s.load(name)
	if err != nil {
		return nil, err
	}
	return s.Forwards(cfg).RemoveForwards(ctx, list), nil
}

// WithTunnel runs fn on the stored tunnel while holding its lock.
func (s *LifecycleService) WithTunnel(name string, fn func(cfg *model.Tunnel) error) error {
	defer s.lock(name)()

	cfg, err := s.load(name)
	if err != nil {
		return err
	}
	return fn(cfg)
}
