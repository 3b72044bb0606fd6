package server

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"oraclegate/internal/admin"
	"oraclegate/internal/oracle"
	"oraclegate/internal/storage"
	"oraclegate/internal/verify"
)

// Server is the HTTP front for verification, admin actions, profiles,
// and the gated oracle.
type Server struct {
	echo    *echo.Echo
	payment *PaymentHandler
	admin   *AdminHandler
	profile *ProfileHandler
	oracle  *OracleHandler
}

// NewServer wires handlers and middleware onto an echo instance.
func NewServer(verifier *verify.Verifier, adminSvc *admin.Service, oracleSvc *oracle.Service, profiles storage.ProfileStore, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(requestLogger(logger))

	s := &Server{
		echo:    e,
		payment: NewPaymentHandler(verifier),
		admin:   NewAdminHandler(adminSvc),
		profile: NewProfileHandler(profiles),
		oracle:  NewOracleHandler(oracleSvc),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	api.POST("/profiles/connect", s.profile.Connect)
	api.GET("/profiles/:wallet", s.profile.Get)
	api.POST("/profiles/:wallet/username", s.profile.SetUsername)

	api.POST("/payments/verify", s.payment.Verify)
	api.POST("/admin/actions", s.admin.Handle)
	api.POST("/oracle/respond", s.oracle.Respond)
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
			)
			return nil
		},
	})
}

// Start begins serving on the address.
func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying router, for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
