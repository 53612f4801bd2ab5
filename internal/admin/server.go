package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/payraan/narmoonai-test-sub000/internal/metrics"
	"github.com/payraan/narmoonai-test-sub000/internal/service"
)

// Messenger delivers broadcast texts to users.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

type Options struct {
	Addr             string
	Username         string
	Password         string
	PlanDurationDays int
}

type Services struct {
	Users         *service.UserService
	Plans         *service.PlanService
	Quota         *service.QuotaService
	Subscriptions *service.SubscriptionService
	Referrals     *service.ReferralService
	Commissions   *service.CommissionService
	Payments      *service.PaymentService
	Settings      *service.SettingsService
	Reports       *service.ReportService
}

// Server exposes the engine contract to the chat layer and the admin API.
// Everything except /metrics sits behind basic auth.
type Server struct {
	opts      Options
	log       *slog.Logger
	svc       Services
	messenger Messenger
	router    *chi.Mux
}

func NewServer(opts Options, log *slog.Logger, svc Services, messenger Messenger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	s := &Server{
		opts:      opts,
		log:       log,
		svc:       svc,
		messenger: messenger,
		router:    r,
	}
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Route("/engine", func(r chi.Router) {
			r.Get("/users/{id}/quota", s.handleCheckQuota)
			r.Post("/users/{id}/usage", s.handleRecordUsage)
			r.Get("/users/{id}/plan", s.handlePlanStatus)
			r.Post("/referrals", s.handleCreateReferral)
			r.Post("/commissions", s.handleCreditCommission)
		})
		protected.Route("/users/{id}", func(r chi.Router) {
			r.Post("/plan", s.handleGrantPlan)
			r.Delete("/plan", s.handleRevokePlan)
			r.Put("/commission-rate", s.handleSetCommissionRate)
		})
		protected.Route("/plans", func(r chi.Router) {
			r.Get("/", s.handleListPlans)
			r.Post("/", s.handleCreatePlan)
			r.Put("/{name}", s.handleUpdatePlan)
		})
		protected.Route("/settings", func(r chi.Router) {
			r.Get("/", s.handleListSettings)
			r.Put("/{key}", s.handleSetSetting)
		})
		protected.Route("/referrers/{id}", func(r chi.Router) {
			r.Get("/", s.handleReferrerStats)
			r.Post("/payout", s.handlePayout)
			r.Post("/reconcile", s.handleReconcile)
		})
		protected.Get("/reports/summary", s.handleReportSummary)
		protected.Post("/reports/export", s.handleReportExport)
		protected.Post("/broadcast", s.handleBroadcast)
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("admin shutdown error", "err", err)
		}
	}()

	s.log.Info("admin api listening", "addr", s.opts.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin listen: %w", err)
	}
	return nil
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.opts.Username || pass != s.opts.Password {
				w.Header().Set("WWW-Authenticate", `Basic realm="narmoon"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors to status codes. Unavailable is kept apart
// from denials so callers can retry instead of telling the user they are out
// of quota.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		s.log.Error("admin handler error", "err", err)
	}
	if status == http.StatusInternalServerError {
		http.Error(w, "internal error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrUnavailable), errors.Is(err, service.ErrStorageDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, service.ErrPlanNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrPlanExists),
		errors.Is(err, service.ErrAlreadyReferred),
		errors.Is(err, service.ErrTransactionConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidPlan),
		errors.Is(err, service.ErrInvalidCode),
		errors.Is(err, service.ErrSelfReferral),
		errors.Is(err, service.ErrInvalidDuration),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidRate),
		errors.Is(err, service.ErrInvalidSetting),
		errors.Is(err, service.ErrMissingTransaction),
		errors.Is(err, service.ErrReferralMismatch):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrBelowMinimumWithdrawal):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func parseID(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}

func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
