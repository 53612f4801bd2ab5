package admin

import (
	"net/http"
	"time"

	"github.com/payraan/narmoonai-test-sub000/internal/service"
)

func (s *Server) handleCheckQuota(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	decision, err := s.svc.Quota.CheckQuota(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, decision)
}

type usageRequest struct {
	At *time.Time `json:"at"`
}

func (s *Server) handleRecordUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req usageRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var at time.Time
	if req.At != nil {
		at = *req.At
	}
	if err := s.svc.Quota.RecordUsage(r.Context(), id, at); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type planStatusResponse struct {
	*service.PlanStatus
	Usage *service.UsageSnapshot `json:"usage"`
}

func (s *Server) handlePlanStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	status, err := s.svc.Subscriptions.Status(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	usage, err := s.svc.Quota.Usage(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, planStatusResponse{PlanStatus: status, Usage: usage})
}

type referralRequest struct {
	Code   string `json:"code"`
	UserID int64  `json:"user_id"`
}

func (s *Server) handleCreateReferral(w http.ResponseWriter, r *http.Request) {
	var req referralRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Code == "" || req.UserID <= 0 {
		http.Error(w, "code and user_id required", http.StatusBadRequest)
		return
	}
	ref, err := s.svc.Referrals.CreateReferralRelationship(r.Context(), req.Code, req.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ref)
}

type commissionRequest struct {
	TransactionID string  `json:"transaction_id"`
	ReferrerID    int64   `json:"referrer_id"`
	ReferredID    int64   `json:"referred_id"`
	PlanType      string  `json:"plan_type"`
	PaidAmount    float64 `json:"paid_amount"`
}

func (s *Server) handleCreditCommission(w http.ResponseWriter, r *http.Request) {
	var req commissionRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.svc.Commissions.CreditCommission(r.Context(), service.CreditInput{
		TransactionID: req.TransactionID,
		ReferrerID:    req.ReferrerID,
		ReferredID:    req.ReferredID,
		PlanType:      service.NormalizePlanName(req.PlanType),
		PaidAmount:    req.PaidAmount,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if res.AlreadyCredited {
		status = http.StatusOK
	}
	s.writeJSON(w, status, res)
}
