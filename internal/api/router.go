package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/leozw/inbound-guardian/internal/api/handlers"
	"github.com/leozw/inbound-guardian/internal/api/middleware"
	"github.com/leozw/inbound-guardian/internal/config"
)

type Server struct {
	Router *gin.Engine

	config    *config.Config
	handler   *handlers.Handler
	validator middleware.TokenValidator
	gatherer  prometheus.Gatherer
	logger    *zap.Logger
}

func NewServer(cfg *config.Config, handler *handlers.Handler, validator middleware.TokenValidator, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	router.Use(middleware.Logger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	server := &Server{
		Router:    router,
		config:    cfg,
		handler:   handler,
		validator: validator,
		gatherer:  gatherer,
		logger:    logger,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.Router.GET("/health", s.handler.Health)
	s.Router.GET("/ready", s.handler.Ready)
	if s.gatherer != nil {
		s.Router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := s.Router.Group("/api/v1")
	api.Use(middleware.AuthRequired(s.validator))

	checkLimiter := middleware.NewRateLimiter(s.config.RateLimit.ChecksPerMinute, s.config.RateLimit.Burst)

	domains := api.Group("/domains")
	{
		domains.GET("", s.handler.ListDomains)
		domains.POST("", s.handler.CreateDomain)
		domains.GET("/:id", s.handler.GetDomain)
		domains.DELETE("/:id", s.handler.DeleteDomain)
		domains.POST("/:id/check", checkLimiter.Middleware(), s.handler.CheckDomain)
		domains.PUT("/:id/catch-all", s.handler.ToggleCatchAll)
		domains.POST("/:id/addresses", s.handler.CreateAddress)
	}

	addresses := api.Group("/addresses")
	{
		addresses.PATCH("/:addressId", s.handler.UpdateAddress)
		addresses.DELETE("/:addressId", s.handler.DeleteAddress)
	}

	api.GET("/routing/resolve", s.handler.ResolveRecipient)
}
