package service

import (
	"context"
	"testing"

	"github.com/igor04091968/sing-l2tp/executor"
	"github.com/stretchr/testify/assert"
)

func TestTail(t *testing.T) {
	fake := executor.NewFake()
	logs := NewLogService(fake)

	assert.Equal(t, "No logs available", logs.Tail(context.Background(), DaemonUnit, 0))
	assert.Equal(t, []string{"journalctl -u sing-l2tp.service -n 20 --no-pager"}, fake.Calls())

	fake.On("journalctl -u sing-l2tp-forward-tunnel1@80.service", true, "Started port forward")
	assert.Equal(t, "Started port forward", logs.Tail(context.Background(), "sing-l2tp-forward-tunnel1@80.service", 5))

	fake.On("journalctl", false, "No journal files were found.")
	assert.Equal(t, "No logs available", logs.Tail(context.Background(), DaemonUnit, 5))
}

func TestUnits(t *testing.T) {
	assert.Equal(t, []string{"sing-l2tp.service"}, Units(nil))

	cfg := tunnel1()
	cfg.ForwardedPorts = []int{80, 443}
	assert.Equal(t, []string{
		"sing-l2tp.service",
		"sing-l2tp-forward-tunnel1@80.service",
		"sing-l2tp-forward-tunnel1@443.service",
	}, Units(cfg))
}
