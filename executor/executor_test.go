package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShellReturnsTrimmedStdout(t *testing.T) {
	ok, out := NewShell(5*time.Second).Run(context.Background(), "sh", "-c", "echo '  hello  '")
	assert.True(t, ok)
	assert.Equal(t, "hello", out)
}

func TestShellFallsBackToStderr(t *testing.T) {
	ok, out := NewShell(5*time.Second).Run(context.Background(), "sh", "-c", "echo oops >&2; exit 3")
	assert.False(t, ok)
	assert.Equal(t, "oops", out)
}

func TestShellSpawnFailure(t *testing.T) {
	ok, out := NewShell(5*time.Second).Run(context.Background(), "/nonexistent/sing-l2tp-helper")
	assert.False(t, ok)
	assert.NotEmpty(t, out)
}

func TestShellTimeout(t *testing.T) {
	ok, out := NewShell(100*time.Millisecond).Run(context.Background(), "sleep", "5")
	assert.False(t, ok)
	assert.Contains(t, out, "timed out")
}

func TestShellDoesNotWaitForBackgroundChildren(t *testing.T) {
	start := time.Now()
	ok, out := NewShell(10*time.Second).Run(context.Background(), "sh", "-c", "sleep 5 & echo hi")
	assert.True(t, ok)
	assert.Equal(t, "hi", out)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestNewShellDefaultTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, NewShell(0).Timeout)
}

func TestFakeRulesAndCalls(t *testing.T) {
	f := NewFake().
		On("systemctl", true, "active").
		On("systemctl is-enabled", false, "disabled")

	ok, out := f.Run(context.Background(), "systemctl", "is-active", "x.service")
	assert.True(t, ok)
	assert.Equal(t, "active", out)

	ok, out = f.Run(context.Background(), "systemctl", "is-enabled", "x.service")
	assert.False(t, ok)
	assert.Equal(t, "disabled", out)

	ok, out = f.Run(context.Background(), "ip", "link")
	assert.True(t, ok)
	assert.Empty(t, out)

	assert.Equal(t, []string{
		"systemctl is-active x.service",
		"systemctl is-enabled x.service",
		"ip link",
	}, f.Calls())
	assert.Equal(t, 1, f.Index("systemctl is-enabled"))
	assert.Equal(t, -1, f.Index("modprobe"))
	assert.Len(t, f.CallsWithPrefix("systemctl"), 2)

	f.Reset()
	assert.Empty(t, f.Calls())
}
