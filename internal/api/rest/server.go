package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenPrinterCore/internal/api/websocket"
	"github.com/KevinKickass/OpenPrinterCore/internal/config"
	"github.com/KevinKickass/OpenPrinterCore/internal/interfaces"
	"github.com/KevinKickass/OpenPrinterCore/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

type Server struct {
	router *gin.Engine
	lm     interfaces.LifecycleManager
	logger *zap.Logger
	server *http.Server
	wsHub  *websocket.Hub
	cache  *cache.Cache
	cfg    config.ServerConfig
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub) *Server {
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router: gin.New(),
		lm:     lm,
		logger: logger,
		wsHub:  wsHub,
		cache:  cache.New(cfg.Server.CacheTTL, 2*cfg.Server.CacheTTL),
		cfg:    cfg.Server,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())
	s.router.Use(RateLimitMiddleware(s.cfg.RateLimit, s.cfg.RateBurst))

	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		// ==================== PRINTERS ====================
		printers := v1.Group("/printers")
		{
			printers.GET("", s.listPrinters)
			printers.GET("/:id/status", s.getPrinterStatus)
			printers.GET("/:id/queue", s.getQueue)
			printers.GET("/:id/completed", s.getCompletedJobs)
			printers.GET("/:id/statistics", s.getStatistics)
			printers.GET("/:id/logs", s.getLogs)

			printers.POST("/:id/jobs", s.submitJob)
			printers.GET("/:id/jobs/:job_id", s.getJob)
			printers.DELETE("/:id/jobs/:job_id", s.cancelJob)

			printers.POST("/:id/pause", s.pause)
			printers.POST("/:id/resume", s.resume)
			printers.POST("/:id/power-cycle", s.powerCycle)
			printers.POST("/:id/factory-reset", s.factoryReset)

			printers.POST("/:id/resources/:resource/refill", s.refillResource)
			printers.POST("/:id/consumable", s.loadConsumable)
			printers.POST("/:id/maintenance/:kind", s.runMaintenance)
			printers.DELETE("/:id/faults/:kind", s.clearFault)
		}

		// ==================== LOCATIONS ====================
		locations := v1.Group("/locations")
		{
			if s.cfg.CacheTTL > 0 {
				locations.GET("", CacheMiddleware(s.cache, s.cfg.CacheTTL), s.listLocations)
			} else {
				locations.GET("", s.listLocations)
			}
			locations.GET("/:id/selection", s.getSelection)
			locations.POST("/:id/print", s.printAtLocation)
		}

		// ==================== SYSTEM ====================
		system := v1.Group("/system")
		{
			system.GET("/status", s.getSystemStatus)
			system.POST("/reload-directory", s.reloadDirectory)
		}

		// ==================== WEBSOCKET ====================
		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", s.wsStatus)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// GET /health
func (s *Server) healthCheck(c *gin.Context) {
	store := s.lm.Store()
	healthy := store.HealthCheck(c.Request.Context())

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"storage":   gin.H{"type": store.Type(), "healthy": healthy},
		"timestamp": time.Now().Unix(),
	})
}

// respondError writes err in the shared error envelope.
func (s *Server) respondError(c *gin.Context, area string, err error) {
	status, body := types.FromError(area, err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, body)
}

func errorResponse(code, message string, details any) types.ErrorResponse {
	return types.NewErrorResponse(code, message, details)
}
