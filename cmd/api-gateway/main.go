package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/campus-timetable-api/api/swagger"
	"github.com/noah-isme/campus-timetable-api/internal/handler"
	"github.com/noah-isme/campus-timetable-api/internal/middleware"
	"github.com/noah-isme/campus-timetable-api/internal/repository"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	"github.com/noah-isme/campus-timetable-api/pkg/cache"
	"github.com/noah-isme/campus-timetable-api/pkg/config"
	"github.com/noah-isme/campus-timetable-api/pkg/database"
	"github.com/noah-isme/campus-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-timetable-api/pkg/middleware/requestid"
)

// @title Campus Timetable API
// @version 1.0.0
// @description Multi-campus timetable scheduling and conflict detection service
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	// Redis is optional: the service degrades to uncached reads when it
	// is unreachable.
	var cacheRepo service.CacheRepository
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
	} else {
		repo := repository.NewCacheRepository(redisClient, logr)
		defer repo.Close() //nolint:errcheck
		cacheRepo = repo
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Timetable.CacheTTL, logr)

	validate := validator.New()

	timetableRepo := repository.NewTimetableRepository(db)
	referenceRepo := repository.NewReferenceRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	classroomRepo := repository.NewClassroomRepository(db)
	userRepo := repository.NewUserRepository(db)

	timetableSvc := service.NewTimetableService(timetableRepo, referenceRepo, cacheSvc, validate, metricsSvc, logr)
	teacherSvc := service.NewTeacherService(teacherRepo, validate, logr)
	classroomSvc := service.NewClassroomService(classroomRepo, validate, logr)
	authSvc := service.NewAuthService(userRepo, validate, logr, cfg.JWT.Secret, cfg.JWT.Expiration)

	timetableHandler := handler.NewTimetableHandler(timetableSvc, cfg.Timetable.ExportEnabled)
	teacherHandler := handler.NewTeacherHandler(teacherSvc)
	classroomHandler := handler.NewClassroomHandler(classroomSvc)
	authHandler := handler.NewAuthHandler(authSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", metricsHandler.Scrape)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authorized := api.Group("")
	authorized.Use(middleware.JWT(authSvc))

	authorized.GET("/timetables", timetableHandler.GetByScope)
	authorized.GET("/timetables/:id", timetableHandler.Get)
	authorized.POST("/timetables", timetableHandler.Create)
	authorized.DELETE("/timetables/:id", timetableHandler.Delete)
	authorized.POST("/timetables/check-availability", timetableHandler.CheckAvailability)
	authorized.GET("/timetables/:id/export", timetableHandler.Export)

	authorized.GET("/teachers", teacherHandler.List)
	authorized.GET("/teachers/:id", teacherHandler.Get)
	authorized.POST("/teachers", teacherHandler.Create)
	authorized.PUT("/teachers/:id", teacherHandler.Update)
	authorized.DELETE("/teachers/:id", teacherHandler.Deactivate)

	authorized.GET("/classrooms", classroomHandler.List)
	authorized.GET("/classrooms/:id", classroomHandler.Get)
	authorized.POST("/classrooms", classroomHandler.Create)
	authorized.PUT("/classrooms/:id", classroomHandler.Update)
	authorized.DELETE("/classrooms/:id", classroomHandler.Deactivate)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
