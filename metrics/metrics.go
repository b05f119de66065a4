package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sing_l2tp"

var (
	HostCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "host_commands_total",
		Help:      "Administrative commands executed on the host, by program and result.",
	}, []string{"command", "result"})

	ApplyRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "apply_runs_total",
		Help:      "Completed apply (reconcile) runs.",
	})

	SetupFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tunnel_setup_failures_total",
		Help:      "Tunnel setups that stopped on a failed step.",
	}, []string{"tunnel"})

	TunnelUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tunnel_up",
		Help:      "1 when the last setup of the tunnel succeeded, 0 after a failure or teardown.",
	}, []string{"tunnel"})
)

func ObserveCommand(command string, ok bool) {
	result := "ok"
	if !ok {
		result = "fail"
	}
	HostCommands.WithLabelValues(command, result).Inc()
}

func SetTunnelUp(tunnel string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	TunnelUp.WithLabelValues(tunnel).Set(v)
}

// ForgetTunnel drops the per-tunnel series of a deleted tunnel.
func ForgetTunnel(tunnel string) {
	TunnelUp.DeleteLabelValues(tunnel)
	SetupFailures.DeleteLabelValues(tunnel)
}
