package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/config"
	appHTTP "github.com/cmlabs-hris/hris-payroll-engine/internal/handler/http"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/database"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/events"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/jwt"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/lock"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/repository/postgresql"
	payrollService "github.com/cmlabs-hris/hris-payroll-engine/internal/service/payroll"
	salaryService "github.com/cmlabs-hris/hris-payroll-engine/internal/service/salary"
	"github.com/go-chi/httplog/v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}

	logFormat := httplog.SchemaECS.Concise(cfg.App.Env != "development")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       cfg.LogLevel(),
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "hris-payroll-engine"),
		slog.String("env", cfg.App.Env),
	)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgreSQLDB(ctx, cfg.DatabaseURL(), database.PoolConfig{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		slog.Error("Error connecting to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	locker := lock.NewNoopLocker()
	if cfg.Redis.Enabled() {
		redisClient, err := lock.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			slog.Error("Error connecting to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient, cfg.Redis.LockTTL)
		slog.Info("Payroll month mutex enabled", "redis_addr", cfg.Redis.Addr)
	}

	publisher := events.NewNoopPublisher()
	if cfg.Kafka.Enabled() {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.PayrollTopic)
		slog.Info("Payroll events enabled", "topic", cfg.Kafka.PayrollTopic)
	}
	defer publisher.Close()

	transactor := postgresql.NewTransactor(db)
	salaryRepo := postgresql.NewSalaryRepository(db)
	directory := postgresql.NewEmployeeDirectory(db)
	auditRepo := postgresql.NewAuditRepository(db)

	JWTService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration)
	payrollSvc := payrollService.NewPayrollService(payrollService.Dependencies{
		Transactor:  transactor,
		Lines:       postgresql.NewPayrollLineRepository(db),
		Locks:       postgresql.NewPayrollLockRepository(db),
		Salaries:    salaryRepo,
		Directory:   directory,
		Attendance:  postgresql.NewAttendanceFeed(db),
		Leave:       postgresql.NewLeaveFeed(db),
		Holidays:    postgresql.NewHolidayCalendar(db),
		Audit:       auditRepo,
		Locker:      locker,
		Publisher:   publisher,
		WeekendDays: cfg.Payroll.WeekendDays,
	})
	salarySvc := salaryService.NewSalaryService(transactor, salaryRepo, directory, auditRepo)

	router := appHTTP.NewRouter(
		logger,
		appHTTP.RouterConfig{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			LogLevel:       cfg.LogLevel(),
		},
		JWTService,
		appHTTP.NewPayrollHandler(payrollSvc),
		appHTTP.NewSalaryHandler(salarySvc),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Server running", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}
	slog.Info("Server stopped")
}
