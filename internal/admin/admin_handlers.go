package admin

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/payraan/narmoonai-test-sub000/internal/service"
)

type grantPlanRequest struct {
	Plan          string  `json:"plan"`
	DurationDays  *int    `json:"duration_days"`
	TransactionID string  `json:"transaction_id"`
	Provider      string  `json:"provider"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
}

// handleGrantPlan confirms a manual purchase when a transaction id is given
// and grants the plan without payment otherwise.
func (s *Server) handleGrantPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req grantPlanRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Plan) == "" {
		http.Error(w, "plan required", http.StatusBadRequest)
		return
	}
	days := s.opts.PlanDurationDays
	if req.DurationDays != nil {
		days = *req.DurationDays
	}

	if strings.TrimSpace(req.TransactionID) == "" {
		res, err := s.svc.Subscriptions.ActivatePlan(r.Context(), id, req.Plan, days)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, res)
		return
	}

	provider := req.Provider
	if provider == "" {
		provider = service.ProviderManual
	}
	payload, _ := json.Marshal(req)
	res, err := s.svc.Payments.ConfirmPurchase(r.Context(), service.PurchaseInput{
		UserID:        id,
		PlanName:      req.Plan,
		DurationDays:  days,
		Provider:      provider,
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Payload:       string(payload),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRevokePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	if err := s.svc.Subscriptions.RevokePlan(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type commissionRateRequest struct {
	Rate *float64 `json:"rate"`
}

func (s *Server) handleSetCommissionRate(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req commissionRateRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.svc.Commissions.SetCustomRate(r.Context(), id, req.Rate); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.svc.Plans.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, plans)
}

type planRequest struct {
	PlanName     string  `json:"plan_name"`
	DisplayName  string  `json:"display_name"`
	Price        float64 `json:"price"`
	MonthlyLimit int     `json:"monthly_limit"`
	HourlyLimit  int     `json:"hourly_limit"`
	VIPAccess    bool    `json:"vip_access"`
	IsActive     *bool   `json:"is_active"`
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	plan, err := s.svc.Plans.Create(r.Context(), service.CreatePlanInput{
		PlanName:     req.PlanName,
		DisplayName:  req.DisplayName,
		Price:        req.Price,
		MonthlyLimit: req.MonthlyLimit,
		HourlyLimit:  req.HourlyLimit,
		VIPAccess:    req.VIPAccess,
		IsActive:     req.IsActive,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, plan)
}

type planUpdateRequest struct {
	DisplayName  *string  `json:"display_name"`
	Price        *float64 `json:"price"`
	MonthlyLimit *int     `json:"monthly_limit"`
	HourlyLimit  *int     `json:"hourly_limit"`
	VIPAccess    *bool    `json:"vip_access"`
	IsActive     *bool    `json:"is_active"`
}

func (s *Server) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	var req planUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	plan, err := s.svc.Plans.Update(r.Context(), chi.URLParam(r, "name"), service.UpdatePlanInput{
		DisplayName:  req.DisplayName,
		Price:        req.Price,
		MonthlyLimit: req.MonthlyLimit,
		HourlyLimit:  req.HourlyLimit,
		VIPAccess:    req.VIPAccess,
		IsActive:     req.IsActive,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.svc.Settings.All(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

type settingRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.svc.Settings.Set(r.Context(), chi.URLParam(r, "key"), req.Value); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReferrerStats(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	stats, err := s.svc.Referrals.Stats(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	history, err := s.svc.Commissions.History(r.Context(), id, 20)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"stats":       stats,
		"commissions": history,
	})
}

func (s *Server) handlePayout(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	res, err := s.svc.Commissions.Payout(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	earned, err := s.svc.Commissions.Reconcile(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"referrer_id": id, "total_earned": earned})
}

func (s *Server) handleReportSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Reports.Summary(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleReportExport(w http.ResponseWriter, r *http.Request) {
	url, err := s.svc.Reports.Export(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

type broadcastRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	if s.messenger == nil {
		http.Error(w, "broadcast unavailable", http.StatusServiceUnavailable)
		return
	}
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	ids, err := s.svc.Users.ListIDs(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}

	count := 0
	for _, id := range ids {
		if err := s.messenger.SendText(ctx, id, req.Message); err != nil {
			s.log.Error("send broadcast", "user", id, "err", err)
			continue
		}
		count++
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"sent":  count,
		"total": len(ids),
	})
}
