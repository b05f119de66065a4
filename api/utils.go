package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/igor04091968/sing-l2tp/logger"
	"github.com/igor04091968/sing-l2tp/service"
)

type Msg struct {
	Success bool        `json:"success"`
	Msg     string      `json:"msg"`
	Obj     interface{} `json:"obj"`
}

func jsonMsg(c *gin.Context, msg string, err error) {
	jsonMsgObj(c, msg, nil, err)
}

func jsonObj(c *gin.Context, obj interface{}, err error) {
	jsonMsgObj(c, "", obj, err)
}

func jsonMsgObj(c *gin.Context, msg string, obj interface{}, err error) {
	m := Msg{
		Obj: obj,
	}
	if err == nil {
		m.Success = true
		m.Msg = msg
		c.JSON(http.StatusOK, m)
		return
	}

	m.Success = false
	if msg != "" {
		m.Msg = msg + ": " + err.Error()
	} else {
		m.Msg = err.Error()
	}
	logger.Warning("api: ", m.Msg)
	c.JSON(statusFor(err), m)
}

func statusFor(err error) int {
	var cfgErr *service.ConfigError
	var valErr *service.ValidationError
	switch {
	case errors.Is(err, service.ErrTunnelNotFound):
		return http.StatusNotFound
	case errors.As(err, &cfgErr), errors.As(err, &valErr):
		return http.StatusBadRequest
	default:
		return http.StatusOK
	}
}
