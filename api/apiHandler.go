package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/igor04091968/sing-l2tp/config"
	"github.com/igor04091968/sing-l2tp/logger"
	"github.com/igor04091968/sing-l2tp/service"
)

type APIHandler struct {
	bundle  *service.ServicesBundle
	tunnels *TunnelAPI
}

func NewAPIHandler(g *gin.RouterGroup, bundle *service.ServicesBundle) {
	a := &APIHandler{
		bundle:  bundle,
		tunnels: NewTunnelAPI(bundle),
	}
	a.initRouter(g)
}

func (a *APIHandler) initRouter(g *gin.RouterGroup) {
	g.GET("/version", a.version)
	g.GET("/logs", a.logs)
	g.POST("/apply", a.apply)
	a.tunnels.RegisterRoutes(g)
}

func (a *APIHandler) version(c *gin.Context) {
	jsonObj(c, gin.H{"name": config.GetName(), "version": config.GetVersion()}, nil)
}

// logs returns the daemon's own buffered log lines, newest first.
func (a *APIHandler) logs(c *gin.Context) {
	n, err := strconv.Atoi(c.DefaultQuery("n", "50"))
	if err != nil || n <= 0 {
		n = 50
	}
	jsonObj(c, logger.GetLogs(n, c.DefaultQuery("level", "debug")), nil)
}

func (a *APIHandler) apply(c *gin.Context) {
	report := a.bundle.Lifecycle.Apply(c.Request.Context())
	if !report.OK() {
		c.JSON(http.StatusOK, Msg{Success: false, Msg: "apply finished with failures", Obj: report})
		return
	}
	jsonMsgObj(c, "apply finished", report, nil)
}
