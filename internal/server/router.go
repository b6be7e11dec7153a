package server

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/enrollment-api/api/swagger"
	"github.com/noah-isme/enrollment-api/internal/handler"
	"github.com/noah-isme/enrollment-api/internal/middleware"
	"github.com/noah-isme/enrollment-api/pkg/config"
	"github.com/noah-isme/enrollment-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/enrollment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/enrollment-api/pkg/middleware/requestid"
)

type redisPinger struct{ c *Container }

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.c.Redis.Ping(ctx).Err()
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(cfg *config.Config, c *Container, logr *zap.Logger) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	identityHeader := cfg.Identity.Header
	if identityHeader == "" {
		identityHeader = middleware.DefaultIdentityHeader
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, identityHeader))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins, identityHeader))
	r.Use(middleware.Metrics(c.Metrics))

	checks := map[string]handler.Pinger{"database": c.DB}
	if c.Redis != nil {
		checks["redis"] = redisPinger{c: c}
	}
	metricsHandler := handler.NewMetricsHandler(c.Metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(strings.TrimRight(cfg.APIPrefix, "/"))
	api.Use(middleware.Identity(identityHeader))

	students := handler.NewStudentHandler(c.Enrollments, c.Catalog)
	api.GET("/classes/available", students.ListAvailable)
	api.GET("/classes/:classId/seats", students.Seats)
	api.POST("/enrollments", students.Enroll)
	api.DELETE("/enrollments/:classId", students.Drop)
	api.GET("/waitlists/:classId/position", students.WaitlistPosition)
	api.DELETE("/waitlists/:classId", students.LeaveWaitlist)

	instructors := handler.NewInstructorHandler(c.Roster, c.Enrollments)
	instructorGroup := api.Group("/instructors/classes/:classId")
	instructorGroup.GET("/roster", instructors.Roster)
	instructorGroup.GET("/roster/export", instructors.ExportRoster)
	instructorGroup.GET("/waitlist", instructors.Waitlist)
	instructorGroup.GET("/droplist", instructors.Droplist)
	instructorGroup.DELETE("/students/:studentId", instructors.DropStudent)

	registrar := handler.NewRegistrarHandler(c.Catalog, c.Enrollments)
	registrarGroup := api.Group("/registrar")
	registrarGroup.GET("/courses", registrar.ListCourses)
	registrarGroup.POST("/courses", registrar.CreateCourse)
	registrarGroup.POST("/classes", registrar.CreateClass)
	registrarGroup.GET("/classes/:classId", registrar.GetClass)
	registrarGroup.PATCH("/classes/:classId", registrar.PatchClass)
	registrarGroup.DELETE("/classes/:classId", registrar.DeleteClass)
	registrarGroup.GET("/auto-enrollment", registrar.GetAutoEnrollment)
	registrarGroup.PUT("/auto-enrollment", registrar.SetAutoEnrollment)
	registrarGroup.POST("/promotions", registrar.Promote)

	return r
}
