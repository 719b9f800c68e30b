package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carelog/carelog-backend/internal/attendance/events"
	"github.com/carelog/carelog-backend/internal/attendance/handler"
	"github.com/carelog/carelog-backend/internal/attendance/repository"
	"github.com/carelog/carelog-backend/internal/attendance/service"
	"github.com/carelog/carelog-backend/pkg/config"
	"github.com/carelog/carelog-backend/pkg/database"
	"github.com/carelog/carelog-backend/pkg/httputil"
	"github.com/carelog/carelog-backend/pkg/i18n"
	"github.com/carelog/carelog-backend/pkg/logger"
	"github.com/carelog/carelog-backend/pkg/messaging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
)

const serviceName = "attendance-service"

func main() {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Msg("starting Attendance Service")

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Events are optional; without a broker the engine still computes
	var (
		rmq              *messaging.RabbitMQ
		attendanceEvents *events.AttendanceEventPublisher
	)
	if cfg.Attendance.PublishEvents {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		attendanceEvents, err = events.NewAttendanceEventPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
		go rmq.Watch(ctx, messaging.ExchangeAttendanceEvents)
	} else {
		log.Info().Msg("event publishing disabled")
		attendanceEvents = events.New(messaging.NopPublisher{}, log)
	}

	if err := handler.RegisterValidators(); err != nil {
		log.Fatal().Err(err).Msg("failed to register validators")
	}

	// Repositories
	employeeRepo := repository.NewEmployeeRepository(db)
	punchRepo := repository.NewPunchRepository(db)
	absenceRepo := repository.NewAbsenceRepository(db)
	complianceRepo := repository.NewComplianceRepository(db)

	// Services
	punchService := service.NewPunchService(employeeRepo, punchRepo, complianceRepo, attendanceEvents, service.SystemClock{}, log)
	payrollService := service.NewPayrollService(employeeRepo, punchRepo, absenceRepo, complianceRepo, attendanceEvents, log)
	complianceService := service.NewComplianceService(complianceRepo, cfg.Attendance.SeedDefaults, log)

	// Handlers
	punchHandler := handler.NewPunchHandler(punchService, log)
	timesheetHandler := handler.NewTimesheetHandler(payrollService, log)
	complianceHandler := handler.NewComplianceHandler(complianceService, log)

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "Accept-Language"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(i18n.Middleware)
	r.Use(httputil.TenantMiddleware) // /health is exempt
	r.Use(httputil.ActorMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]any{
			"status":   "healthy",
			"service":  serviceName,
			"database": db.Health(r.Context()),
		}
		if rmq != nil {
			health["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, health)
	})

	r.Route("/api/v1/attendance", handler.Routes(punchHandler, timesheetHandler, complianceHandler))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Stops the broker watcher
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
