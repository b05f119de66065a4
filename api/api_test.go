package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/igor04091968/sing-l2tp/database"
	"github.com/igor04091968/sing-l2tp/executor"
	"github.com/igor04091968/sing-l2tp/netif"
	"github.com/igor04091968/sing-l2tp/service"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type response struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

func newTestRouter(t *testing.T) (*gin.Engine, *executor.Fake) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	fake := executor.NewFake()
	bundle := service.NewServicesBundle(service.NewStoreService(db), service.HostDeps{
		Exec:  fake,
		Links: netif.Static{"l2tp-tunnel1": {Exists: true, Up: true, Addrs: []string{"10.30.30.1/30"}}},
		Fs:    afero.NewMemMapFs(),
	})
	return NewRouter(bundle), fake
}

func do(t *testing.T, r http.Handler, method, path, body string) (int, response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp response
	if strings.HasPrefix(path, "/api") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w.Code, resp
}

const tunnel1JSON = `{"name":"tunnel1","local_ip":"1.2.3.4","remote_ip":"5.6.7.8",
"tunnel_id":10,"peer_tunnel_id":20,"session_id":30,"peer_session_id":40,"remote_forward_ip":"10.30.30.2"}`

func TestTunnelCRUD(t *testing.T) {
	r, _ := newTestRouter(t)

	code, resp := do(t, r, http.MethodPost, "/api/tunnels", tunnel1JSON)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	assert.Equal(t, "Tunnel 'tunnel1' created", resp.Msg)

	_, resp = do(t, r, http.MethodGet, "/api/tunnels", "")
	assert.Contains(t, string(resp.Obj), `"interface_name":"l2tp-tunnel1"`)

	code, resp = do(t, r, http.MethodGet, "/api/tunnels/missing", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, resp.Success)

	code, _ = do(t, r, http.MethodPost, "/api/tunnels", `{"name":"bad","local_ip":"x"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	_, resp = do(t, r, http.MethodDelete, "/api/tunnels/tunnel1", "")
	assert.True(t, resp.Success)
	code, _ = do(t, r, http.MethodGet, "/api/tunnels/tunnel1", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestForwardBatchOverAPI(t *testing.T) {
	r, fake := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/tunnels", tunnel1JSON)

	_, resp := do(t, r, http.MethodPost, "/api/tunnels/tunnel1/forwards", `{"ports":"80,abc,443"}`)
	require.True(t, resp.Success)
	assert.Equal(t, "Port 80: Port forward for 80 created and started\n"+
		"'abc': Invalid port number\n"+
		"Port 443: Port forward for 443 created and started", resp.Msg)

	var report service.BatchReport
	require.NoError(t, json.Unmarshal(resp.Obj, &report))
	assert.Len(t, report.Results, 3)
	assert.False(t, report.Results[1].OK)

	fake.On("systemctl is-active", true, "active").On("systemctl is-enabled", true, "enabled")
	_, resp = do(t, r, http.MethodGet, "/api/tunnels/tunnel1/forwards", "")
	assert.Contains(t, string(resp.Obj), `"remote":"10.30.30.2:443"`)

	_, resp = do(t, r, http.MethodDelete, "/api/tunnels/tunnel1/forwards/80", "")
	assert.Equal(t, "Port 80: Port forward for 80 removed", resp.Msg)

	code, _ := do(t, r, http.MethodPost, "/api/tunnels/tunnel1/forwards", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStartStopApply(t *testing.T) {
	r, fake := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/tunnels", tunnel1JSON)

	_, resp := do(t, r, http.MethodPost, "/api/tunnels/tunnel1/start", "")
	assert.True(t, resp.Success)
	assert.NotEmpty(t, fake.CallsWithPrefix("ip link set l2tp-tunnel1 up"))

	_, resp = do(t, r, http.MethodGet, "/api/tunnels/tunnel1/status", "")
	assert.Contains(t, string(resp.Obj), `"interface_up":true`)

	_, resp = do(t, r, http.MethodPost, "/api/tunnels/tunnel1/stop", "")
	assert.True(t, resp.Success)
	assert.NotEmpty(t, fake.CallsWithPrefix("ip l2tp del tunnel"))

	fake.Reset()
	_, resp = do(t, r, http.MethodPost, "/api/apply", "")
	assert.True(t, resp.Success)
	assert.Contains(t, string(resp.Obj), "Tunnel 'tunnel1' stopped, skipping")
	assert.Empty(t, fake.CallsWithPrefix("ip l2tp add"))

	_, resp = do(t, r, http.MethodGet, "/api/tunnels/tunnel1", "")
	assert.Contains(t, string(resp.Obj), `"stopped":true`)

	fake.On("ip l2tp add tunnel", false, "RTNETLINK answers: Operation not permitted")
	_, resp = do(t, r, http.MethodPost, "/api/tunnels/tunnel1/start", "")
	assert.False(t, resp.Success)
	_, resp = do(t, r, http.MethodPost, "/api/apply", "")
	assert.False(t, resp.Success)
	assert.Contains(t, string(resp.Obj), "Operation not permitted")
}

func TestSaveKeepsForwardsUnlessListed(t *testing.T) {
	r, fake := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/tunnels", tunnel1JSON)
	do(t, r, http.MethodPost, "/api/tunnels/tunnel1/forwards", `{"ports":"80,443"}`)
	fake.Reset()

	moved := strings.Replace(tunnel1JSON, "5.6.7.8", "5.6.7.9", 1)
	_, resp := do(t, r, http.MethodPost, "/api/tunnels", moved)
	require.True(t, resp.Success)
	assert.Equal(t, "Tunnel 'tunnel1' updated", resp.Msg)
	assert.Empty(t, fake.Calls())

	_, resp = do(t, r, http.MethodGet, "/api/tunnels/tunnel1", "")
	assert.Contains(t, string(resp.Obj), `"remote_ip":"5.6.7.9"`)
	assert.Contains(t, string(resp.Obj), `"forwarded_ports":[80,443]`)

	listed := strings.Replace(moved, `"remote_forward_ip"`, `"forwarded_ports":[443,8080],"remote_forward_ip"`, 1)
	_, resp = do(t, r, http.MethodPost, "/api/tunnels", listed)
	require.True(t, resp.Success)
	assert.Equal(t, "Tunnel 'tunnel1' updated\n"+
		"Port 80: Port forward for 80 removed\n"+
		"Port 8080: Port forward for 8080 created and started", resp.Msg)
	assert.Equal(t, []string{"systemctl stop sing-l2tp-forward-tunnel1@80.service"}, fake.CallsWithPrefix("systemctl stop"))
	assert.Equal(t, []string{"systemctl disable sing-l2tp-forward-tunnel1@80.service"}, fake.CallsWithPrefix("systemctl disable"))
	assert.Contains(t, fake.Calls(), "systemctl enable --now sing-l2tp-forward-tunnel1@8080.service")
}

func TestLogsAndMetrics(t *testing.T) {
	r, fake := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/tunnels", tunnel1JSON)
	fake.On("journalctl", true, "line one")

	_, resp := do(t, r, http.MethodGet, "/api/tunnels/tunnel1/logs?n=5", "")
	assert.True(t, resp.Success)
	assert.Contains(t, string(resp.Obj), "line one")
	assert.Contains(t, fake.Calls(), "journalctl -u sing-l2tp.service -n 5 --no-pager")

	code, _ := do(t, r, http.MethodGet, "/api/tunnels/tunnel1/logs?unit=sshd.service", "")
	assert.Equal(t, http.StatusBadRequest, code)

	_, resp = do(t, r, http.MethodGet, "/api/logs?n=10", "")
	assert.True(t, resp.Success)

	code, _ = do(t, r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, code)
}
