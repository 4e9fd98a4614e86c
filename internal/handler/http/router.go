package http

import (
	"log/slog"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/handler/http/middleware"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/jwt"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/jwtauth/v5"
)

type RouterConfig struct {
	AllowedOrigins []string
	LogLevel       slog.Level
}

func NewRouter(
	logger *slog.Logger,
	cfg RouterConfig,
	JWTService jwt.Service,
	payrollHandler PayrollHandler,
	salaryHandler SalaryHandler,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		MaxAge:           300,
	}))

	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  cfg.LogLevel,
		Schema: httplog.SchemaECS,
	}))

	r.Use(chiMiddleware.AllowContentEncoding("application/json"))
	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/"))

	r.Route("/api/v1", func(r chi.Router) {
		// Requires authentication
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(JWTService.JWTAuth()))
			r.Use(middleware.AuthRequired(JWTService.JWTAuth()))

			r.Route("/payroll/periods/{period}", func(r chi.Router) {
				r.With(middleware.RequirePermission(user.PermissionPayrollView)).Get("/", payrollHandler.GetOverview)
				r.With(middleware.RequirePermission(user.PermissionPayrollView)).Get("/preview", payrollHandler.Preview)
				r.With(middleware.RequirePermission(user.PermissionPayrollView)).Get("/history", payrollHandler.GetHistory)
				r.With(middleware.RequirePermission(user.PermissionPayrollView)).Get("/export", payrollHandler.Export)
				r.With(middleware.RequirePermission(user.PermissionPayrollGenerate)).Post("/generate", payrollHandler.Generate)
				r.With(middleware.RequirePermission(user.PermissionPayrollApprove)).Post("/approve", payrollHandler.Approve)
				r.With(middleware.RequirePermission(user.PermissionPayrollMarkPaid)).Post("/pay", payrollHandler.Pay)
				r.With(middleware.RequirePermission(user.PermissionPayrollUnlock)).Post("/unlock", payrollHandler.Unlock)
			})

			r.Route("/salary-structures/{employeeId}", func(r chi.Router) {
				r.With(middleware.RequirePermission(user.PermissionSalaryView)).Get("/", salaryHandler.Get)
				r.With(middleware.RequirePermission(user.PermissionSalaryView)).Get("/history", salaryHandler.GetHistory)
				r.With(middleware.RequirePermission(user.PermissionSalaryManage)).Put("/", salaryHandler.Upsert)
			})
		})
	})

	return r
}
