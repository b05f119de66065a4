package service

import (
	"context"
	"strconv"

	"github.com/igor04091968/sing-l2tp/database/model"
	"github.com/igor04091968/sing-l2tp/executor"
)

const (
	DaemonUnit      = "sing-l2tp.service"
	DefaultLogLines = 20
	noLogsMsg       = "No logs available"
)

// LogService reads unit logs from the journal.
type LogService struct {
	exec executor.Executor
}

func NewLogService(exec executor.Executor) *LogService {
	return &LogService{exec: exec}
}

// Tail returns the last n journal lines of unit.
func (s *LogService) Tail(ctx context.Context, unit string, n int) string {
	if n <= 0 {
		n = DefaultLogLines
	}
	ok, out := s.exec.Run(ctx, "journalctl", "-u", unit, "-n", strconv.Itoa(n), "--no-pager")
	if !ok || out == "" {
		return noLogsMsg
	}
	return out
}

// Units lists the units worth showing logs for: the daemon and, when cfg
// is given, every forward of that tunnel.
func Units(cfg *model.Tunnel) []string {
	units := []string{DaemonUnit}
	if cfg == nil {
		return units
	}
	for _, port := range cfg.ForwardedPorts {
		units = append(units, ForwardUnitName(cfg.Name, port))
	}
	return units
}
