package cronjob

import (
	"context"

	"github.com/igor04091968/sing-l2tp/logger"
	"github.com/igor04091968/sing-l2tp/service"
)

type ApplyJob struct {
	lifecycle *service.LifecycleService
}

func NewApplyJob(lifecycle *service.LifecycleService) *ApplyJob {
	return &ApplyJob{
		lifecycle: lifecycle,
	}
}

func (s *ApplyJob) Run() {
	report := s.lifecycle.Apply(context.Background())
	if !report.OK() {
		logger.Warning("Reconcile ", report.RunID, " failed for ", report.Failed, " tunnel(s): ", report.String())
		return
	}
	logger.Debug("Reconcile ", report.RunID, " done: ", report.String())
}
