package config

import (
	"testing"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsDefaults(t *testing.T) {
	var s Settings
	require.NoError(t, envconfig.Process("SING_L2TP_TEST_DEFAULTS", &s))

	assert.Equal(t, "/etc/sing-l2tp/sing-l2tp.db", s.DBPath)
	assert.Equal(t, 30*time.Second, s.CommandTimeout)
	assert.Equal(t, "@every 5m", s.Reconcile)
	assert.Equal(t, "/etc/systemd/system", s.SystemdDir)
}

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("SING_L2TP_TEST_ENV_COMMAND_TIMEOUT", "5s")
	t.Setenv("SING_L2TP_TEST_ENV_LOG_LEVEL", "debug")
	t.Setenv("SING_L2TP_TEST_ENV_RECONCILE", "")

	var s Settings
	require.NoError(t, envconfig.Process("SING_L2TP_TEST_ENV", &s))

	assert.Equal(t, 5*time.Second, s.CommandTimeout)
	assert.Equal(t, "debug", s.LogLevel)
	assert.Empty(t, s.Reconcile)
}
