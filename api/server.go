package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/igor04091968/sing-l2tp/config"
	"github.com/igor04091968/sing-l2tp/logger"
	"github.com/igor04091968/sing-l2tp/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	httpServer *http.Server
	listener   net.Listener
	bundle     *service.ServicesBundle
}

func NewServer(bundle *service.ServicesBundle) *Server {
	return &Server{
		bundle: bundle,
	}
}

// NewRouter builds the gin engine serving /api and /metrics.
func NewRouter(bundle *service.ServicesBundle) *gin.Engine {
	if !config.IsDebug() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gzip.Gzip(gzip.DefaultCompression))

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	g := engine.Group("/api")
	NewAPIHandler(g, bundle)
	return engine
}

func (s *Server) Start(listen string) error {
	listener, err := net.Listen("tcp", listen)
	if err != nil {
		return err
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           NewRouter(s.bundle),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api server running on ", listener.Addr())
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server: ", err)
		}
	}()
	return nil
}

func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
