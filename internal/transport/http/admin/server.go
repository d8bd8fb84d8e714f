// Package adminhttp serves the read-only operations surface: health,
// engine status, live positions, recent journal rows, the effective
// configuration and Prometheus metrics.
package adminhttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"imba/internal/broker"
	"imba/internal/engine"
	"imba/internal/logger"
	"imba/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerConfig carries the server dependencies. Journal may be nil
// when the trade journal is disabled.
type ServerConfig struct {
	Addr          string
	Engine        *engine.Engine
	Broker        broker.Broker
	Journal       *store.Store
	EffectiveYAML func() ([]byte, error)
}

type Server struct {
	addr   string
	router *gin.Engine
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil || cfg.Broker == nil {
		return nil, errors.New("admin http server requires engine and broker")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8792"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, cfg.Engine.Status())
	})
	router.GET("/positions", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		positions, err := cfg.Broker.Positions(ctx)
		if err != nil {
			logger.Errorf("[api] positions failed ip=%s err=%v", c.ClientIP(), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"positions": positions})
	})
	router.GET("/orders", func(c *gin.Context) {
		if cfg.Journal == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal disabled"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if limit > 500 {
			limit = 500
		}
		orders, err := cfg.Journal.RecentOrders(limit)
		if err != nil {
			logger.Errorf("[api] orders failed ip=%s err=%v", c.ClientIP(), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": orders})
	})
	router.GET("/config", func(c *gin.Context) {
		if cfg.EffectiveYAML == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "config dump unavailable"})
			return
		}
		out, err := cfg.EffectiveYAML()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/x-yaml", out)
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Server{addr: cfg.Addr, router: router}, nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

// Handler exposes the routed handler for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Addr returns the listen address.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
