// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/scc-digitalhub/filerelay/sdk/config"
	"github.com/scc-digitalhub/filerelay/sdk/services/relay"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the relay over HTTP.
type Server struct {
	relay      *relay.RelayService
	engine     *gin.Engine
	httpServer *http.Server
	log        logrus.FieldLogger
}

// NewServer builds the gin engine. gatherer backs /metrics; nil means the
// default Prometheus gatherer.
func NewServer(svc *relay.RelayService, conf config.ServerConfig, log logrus.FieldLogger, gatherer prometheus.Gatherer) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if conf.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(recovery(log), accessLog(log))
	if conf.CORSAllowAll {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", relay.HeaderFilename}
		corsConfig.ExposeHeaders = []string{"Content-Disposition", "Content-Length", relay.HeaderTransferID}
		engine.Use(cors.New(corsConfig))
	}

	s := &Server{
		relay:  svc,
		engine: engine,
		log:    log,
	}
	s.httpServer = &http.Server{
		Addr:              conf.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		// niente WriteTimeout: un download in streaming può durare a lungo
	}
	s.setupRoutes(gatherer)
	return s
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	file := s.engine.Group("/file")
	{
		file.GET("", s.handlePing)
		file.GET("/download", s.handleDownload(""))
		file.GET("/download/bad", s.handleDownload(relay.ModeBuffered))
		file.GET("/download/good", s.handleDownload(relay.ModeStreaming))
		file.POST("/upload", s.handleUpload(""))
		file.POST("/upload/bad", s.handleUpload(relay.ModeBuffered))
		file.POST("/upload/good", s.handleUpload(relay.ModeStreaming))
	}

	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.httpServer.Addr).Info("relay server listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.log.Info("shutting down relay server")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down: %w", err)
		}
		return nil
	}
}
