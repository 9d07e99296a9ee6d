package server

import (
	"context"
	"net/http"
	"time"

	catalogdomain "github.com/creditrail/creditrail/internal/catalog/domain"
	"github.com/creditrail/creditrail/internal/config"
	consumptiondomain "github.com/creditrail/creditrail/internal/consumption/domain"
	grantdomain "github.com/creditrail/creditrail/internal/grant/domain"
	obsmetrics "github.com/creditrail/creditrail/internal/observability/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Server struct {
	engine *gin.Engine
	log    *zap.Logger

	consumptionSvc consumptiondomain.Service
	grantSvc       grantdomain.Service
	catalogSvc     catalogdomain.Service
}

type Params struct {
	fx.In

	Engine         *gin.Engine
	Log            *zap.Logger
	ConsumptionSvc consumptiondomain.Service
	GrantSvc       grantdomain.Service
	CatalogSvc     catalogdomain.Service
}

func NewEngine(log *zap.Logger, m *obsmetrics.Metrics) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(obsmetrics.GinMiddleware(m))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func NewServer(p Params) *Server {
	s := &Server{
		engine:         p.Engine,
		log:            p.Log.Named("http.server"),
		consumptionSvc: p.ConsumptionSvc,
		grantSvc:       p.GrantSvc,
		catalogSvc:     p.CatalogSvc,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")
	v1.POST("/authorize", s.handleAuthorize)
	v1.POST("/settle", s.handleSettle)
	v1.POST("/grants", s.handleGrant)
	v1.GET("/balance/:identity", s.handleGetBalance)
	v1.GET("/rate-status/:identity", s.handleGetRateStatus)
	v1.GET("/catalog", s.handleListCatalog)
	v1.PUT("/catalog", s.handleUpsertCatalog)
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	logger := log.Named("http.access")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func run(lc fx.Lifecycle, s *Server, cfg config.Config) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					s.log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

// Module wires the gin engine, routes and HTTP lifecycle.
var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)
