package cronjob

import (
	"time"

	"github.com/igor04091968/sing-l2tp/logger"
	"github.com/igor04091968/sing-l2tp/service"
	"github.com/robfig/cron/v3"
)

const probeSpec = "@every 1m"

type CronJob struct {
	cron *cron.Cron
}

func NewCronJob() *CronJob {
	return &CronJob{}
}

// Start schedules the reconcile job on reconcileSpec (empty disables it)
// and the status probe every minute.
func (c *CronJob) Start(loc *time.Location, reconcileSpec string, lifecycle *service.LifecycleService) error {
	c.cron = cron.New(cron.WithLocation(loc))
	c.cron.Start()

	go func() {
		if reconcileSpec != "" {
			_, err := c.cron.AddJob(reconcileSpec, NewApplyJob(lifecycle))
			if err != nil {
				logger.Warning("schedule reconcile job failed: ", err)
			} else {
				logger.Info("reconcile scheduled ", reconcileSpec)
			}
		}
		_, err := c.cron.AddJob(probeSpec, NewProbeJob(lifecycle))
		if err != nil {
			logger.Warning("schedule probe job failed: ", err)
		}
	}()

	return nil
}

func (c *CronJob) Stop() {
	if c.cron != nil {
		c.cron.Stop()
	}
}
