package cronjob

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/igor04091968/sing-l2tp/database"
	"github.com/igor04091968/sing-l2tp/executor"
	"github.com/igor04091968/sing-l2tp/metrics"
	"github.com/igor04091968/sing-l2tp/netif"
	"github.com/igor04091968/sing-l2tp/service"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLifecycle(t *testing.T, fake *executor.Fake, links netif.Static) *service.LifecycleService {
	t.Helper()
	db, err := database.OpenDB(filepath.Join(t.TempDir(), "cron.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	store := service.NewStoreService(db)
	cfg, err := store.Create("cron1")
	require.NoError(t, err)
	cfg.LocalIP, cfg.RemoteIP = "1.2.3.4", "5.6.7.8"
	cfg.TunnelID, cfg.PeerTunnelID, cfg.SessionID, cfg.PeerSessionID = 10, 20, 30, 40
	require.NoError(t, store.Save(cfg))
	_, err = store.Create("cron2")
	require.NoError(t, err)

	return service.NewLifecycleService(store, service.HostDeps{
		Exec:  fake,
		Links: links,
		Fs:    afero.NewMemMapFs(),
	})
}

func TestApplyJobRunsSetup(t *testing.T) {
	fake := executor.NewFake()
	NewApplyJob(newLifecycle(t, fake, netif.Static{})).Run()

	assert.Len(t, fake.CallsWithPrefix("ip l2tp add tunnel tunnel_id 10"), 1)
	assert.Len(t, fake.CallsWithPrefix("ip link set l2tp-cron1 up"), 1)
	assert.Empty(t, fake.CallsWithPrefix("ip link set l2tp-cron2"))
}

func TestProbeJobSetsGauge(t *testing.T) {
	fake := executor.NewFake().On("ip l2tp show tunnel", true, "Tunnel 10, encap IP")
	links := netif.Static{"l2tp-cron1": {Exists: true, Up: true}}

	NewProbeJob(newLifecycle(t, fake, links)).Run()
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TunnelUp.WithLabelValues("cron1")))

	// nothing is ever written to the host
	for _, c := range fake.Calls() {
		assert.Contains(t, c, " show ")
	}
}

func TestCronStartStop(t *testing.T) {
	fake := executor.NewFake()
	c := NewCronJob()
	require.NoError(t, c.Start(time.UTC, "@every 1h", newLifecycle(t, fake, netif.Static{})))
	c.Stop()
	NewCronJob().Stop()
}
