package cronjob

import (
	"context"

	"github.com/igor04091968/sing-l2tp/logger"
	"github.com/igor04091968/sing-l2tp/metrics"
	"github.com/igor04091968/sing-l2tp/service"
)

// ProbeJob refreshes the tunnel_up gauge from live interface state.
type ProbeJob struct {
	lifecycle *service.LifecycleService
}

func NewProbeJob(lifecycle *service.LifecycleService) *ProbeJob {
	return &ProbeJob{
		lifecycle: lifecycle,
	}
}

func (s *ProbeJob) Run() {
	names, err := s.lifecycle.Store().List()
	if err != nil {
		logger.Warning("Probe tunnels failed: ", err)
		return
	}
	for _, name := range names {
		cfg, err := s.lifecycle.Store().Get(name)
		if err != nil || cfg == nil || !cfg.IsConfigured() {
			continue
		}
		st := s.lifecycle.Tunnel(cfg).Status(context.Background())
		metrics.SetTunnelUp(name, st.TunnelExists && st.InterfaceUp)
	}
}
