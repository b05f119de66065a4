package api

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/igor04091968/sing-l2tp/database/model"
	"github.com/igor04091968/sing-l2tp/service"
)

// TunnelAPI handles API requests for L2TP tunnels and their forwards.
// NOTE: start, stop, delete and forward changes need root privileges.
type TunnelAPI struct {
	store     *service.StoreService
	lifecycle *service.LifecycleService
	logs      *service.LogService
}

func NewTunnelAPI(bundle *service.ServicesBundle) *TunnelAPI {
	return &TunnelAPI{
		store:     bundle.Store,
		lifecycle: bundle.Lifecycle,
		logs:      bundle.Logs,
	}
}

// RegisterRoutes registers the API routes for tunnels.
func (a *TunnelAPI) RegisterRoutes(router *gin.RouterGroup) {
	g := router.Group("/tunnels")
	g.GET("", a.getTunnels)
	g.POST("", a.saveTunnel)
	g.GET("/:name", a.getTunnel)
	g.DELETE("/:name", a.deleteTunnel)
	g.GET("/:name/status", a.getStatus)
	g.POST("/:name/start", a.startTunnel)
	g.POST("/:name/stop", a.stopTunnel)
	g.GET("/:name/logs", a.getLogs)
	g.GET("/:name/forwards", a.getForwards)
	g.POST("/:name/forwards", a.addForwards)
	g.POST("/:name/forwards/restart", a.restartForwards)
	g.DELETE("/:name/forwards/:port", a.removeForward)
}

func (a *TunnelAPI) getTunnels(c *gin.Context) {
	tunnels, err := a.store.All()
	if err != nil {
		jsonMsg(c, "Failed to get tunnels", err)
		return
	}
	jsonObj(c, tunnels, nil)
}

func (a *TunnelAPI) getTunnel(c *gin.Context) {
	cfg, err := a.store.MustGet(c.Param("name"))
	jsonObj(c, cfg, err)
}

// saveTunnel creates or updates a tunnel from a JSON body. Endpoint
// changes only touch the stored intent; use start or apply to act on them.
// A forwarded_ports list, when present, is synced right away.
func (a *TunnelAPI) saveTunnel(c *gin.Context) {
	var in model.Tunnel
	if err := c.ShouldBindJSON(&in); err != nil {
		jsonMsg(c, "Invalid tunnel config", err)
		return
	}
	msg, err := a.lifecycle.Save(c.Request.Context(), &in)
	if err != nil {
		jsonMsg(c, "Failed to save tunnel", err)
		return
	}
	jsonMsg(c, msg, nil)
}

func (a *TunnelAPI) deleteTunnel(c *gin.Context) {
	out, err := a.lifecycle.Delete(c.Request.Context(), c.Param("name"))
	jsonMsgObj(c, "Tunnel deleted", out, err)
}

func (a *TunnelAPI) getStatus(c *gin.Context) {
	st, forwards, err := a.lifecycle.Status(c.Request.Context(), c.Param("name"))
	if err != nil {
		jsonMsg(c, "Failed to get status", err)
		return
	}
	jsonObj(c, gin.H{"tunnel": st, "forwards": forwards}, nil)
}

func (a *TunnelAPI) startTunnel(c *gin.Context) {
	recreate, _ := strconv.ParseBool(c.DefaultQuery("recreate", "false"))
	report, err := a.lifecycle.Start(c.Request.Context(), c.Param("name"), recreate)
	jsonMsgObj(c, "Tunnel started", report, err)
}

func (a *TunnelAPI) stopTunnel(c *gin.Context) {
	out, err := a.lifecycle.Stop(c.Request.Context(), c.Param("name"))
	jsonMsgObj(c, "Tunnel stopped", out, err)
}

// getLogs returns the journal of one unit of the tunnel. Without a unit
// query the daemon's own unit is read.
func (a *TunnelAPI) getLogs(c *gin.Context) {
	cfg, err := a.store.MustGet(c.Param("name"))
	if err != nil {
		jsonMsg(c, "Failed to get logs", err)
		return
	}
	n, _ := strconv.Atoi(c.DefaultQuery("n", strconv.Itoa(service.DefaultLogLines)))
	unit := c.DefaultQuery("unit", service.DaemonUnit)
	known := false
	for _, u := range service.Units(cfg) {
		known = known || u == unit
	}
	if !known {
		jsonMsg(c, "Failed to get logs", &service.ValidationError{Token: unit, Msg: "unknown unit"})
		return
	}
	jsonObj(c, gin.H{"unit": unit, "logs": a.logs.Tail(c.Request.Context(), unit, n)}, nil)
}

func (a *TunnelAPI) getForwards(c *gin.Context) {
	cfg, err := a.store.MustGet(c.Param("name"))
	if err != nil {
		jsonMsg(c, "Failed to get forwards", err)
		return
	}
	jsonObj(c, a.lifecycle.Forwards(cfg).ListForwards(c.Request.Context()), nil)
}

type portsRequest struct {
	Ports string `json:"ports" form:"ports"`
}

// addForwards accepts a comma separated port list. The batch always
// succeeds as a whole; per-port outcomes are in obj.results.
func (a *TunnelAPI) addForwards(c *gin.Context) {
	var req portsRequest
	if err := c.ShouldBind(&req); err != nil || req.Ports == "" {
		jsonMsg(c, "Invalid request", &service.ValidationError{Token: req.Ports, Msg: "ports is required"})
		return
	}
	report, err := a.lifecycle.AddForwards(c.Request.Context(), c.Param("name"), req.Ports)
	if err != nil {
		jsonMsg(c, "Failed to add forwards", err)
		return
	}
	jsonMsgObj(c, report.String(), report, nil)
}

func (a *TunnelAPI) removeForward(c *gin.Context) {
	report, err := a.lifecycle.RemoveForwards(c.Request.Context(), c.Param("name"), c.Param("port"))
	if err != nil {
		jsonMsg(c, "Failed to remove forward", err)
		return
	}
	jsonMsgObj(c, report.String(), report, nil)
}

func (a *TunnelAPI) restartForwards(c *gin.Context) {
	var report *service.BatchReport
	err := a.lifecycle.WithTunnel(c.Param("name"), func(cfg *model.Tunnel) error {
		report = a.lifecycle.Forwards(cfg).RestartAllForwards(c.Request.Context())
		return nil
	})
	if err != nil {
		jsonMsg(c, "Failed to restart forwards", err)
		return
	}
	jsonMsgObj(c, report.String(), report, nil)
}
