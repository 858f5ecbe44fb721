// Package handler exposes the decision engine over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fundledger/internal/chain/verifier"
	"fundledger/internal/decision/models"
	"fundledger/internal/decision/service"
	"fundledger/internal/decision/store"
	id "fundledger/pkg/domain"
	dErrors "fundledger/pkg/domain-errors"
	"fundledger/pkg/platform/httputil"
)

// Service defines the decision operations the handler needs.
type Service interface {
	ValidateTransfer(ctx context.Context, req service.TransferRequest) (*models.DecisionRecord, error)
	CheckEligibility(ctx context.Context, req service.EligibilityRequest) (*models.DecisionRecord, error)
	ApproveOnboarding(ctx context.Context, req service.OnboardingRequest) (*models.DecisionRecord, error)
	GetDecision(ctx context.Context, recordID id.RecordID) (*models.DecisionRecord, error)
	ListDecisions(ctx context.Context, filter store.ListFilter) ([]*models.DecisionRecord, error)
	VerifyChain(ctx context.Context, full bool, limit int64) (*verifier.Report, error)
	SealPending(ctx context.Context) (int, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts the decision routes. Auth middleware is applied by the
// caller; every route here assumes a tenant in context.
func (h *Handler) Register(r chi.Router) {
	r.Post("/transfers", h.handleValidateTransfer)
	r.Post("/eligibility-checks", h.handleCheckEligibility)
	r.Post("/onboarding-approvals", h.handleApproveOnboarding)
	r.Get("/decisions", h.handleListDecisions)
	r.Get("/decisions/{recordID}", h.handleGetDecision)
	r.Post("/decisions/verify-chain", h.handleVerifyChain)
	r.Post("/decisions/seal", h.handleSealPending)
}

func (h *Handler) handleValidateTransfer(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[transferRequest](w, r, h.logger)
	if !ok {
		return
	}
	svcReq, err := req.toService()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.service.ValidateTransfer(r.Context(), svcReq)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toRecordResponse(record))
}

func (h *Handler) handleCheckEligibility(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[eligibilityRequest](w, r, h.logger)
	if !ok {
		return
	}
	svcReq, err := req.toService()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.service.CheckEligibility(r.Context(), svcReq)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toRecordResponse(record))
}

func (h *Handler) handleApproveOnboarding(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[onboardingRequest](w, r, h.logger)
	if !ok {
		return
	}
	svcReq, err := req.toService()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.service.ApproveOnboarding(r.Context(), svcReq)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toRecordResponse(record))
}

func (h *Handler) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "record id is not a valid UUID"))
		return
	}
	record, err := h.service.GetDecision(r.Context(), recordID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(record))
}

func (h *Handler) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	var filter store.ListFilter

	if raw := r.URL.Query().Get("asset"); raw != "" {
		assetID, err := id.ParseAssetID(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "asset filter is not a valid UUID"))
			return
		}
		filter.AssetID = &assetID
	}
	if raw := r.URL.Query().Get("investor"); raw != "" {
		investorID, err := id.ParseInvestorID(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "investor filter is not a valid UUID"))
			return
		}
		filter.InvestorID = &investorID
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	records, err := h.service.ListDecisions(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(records))
}

func (h *Handler) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	// An empty body means an incremental verification; a limit bounds the walk.
	var limit int64
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	req := verifyChainRequest{}
	if r.ContentLength > 0 {
		var ok bool
		req, ok = httputil.Decode[verifyChainRequest](w, r, h.logger)
		if !ok {
			return
		}
	}
	report, err := h.service.VerifyChain(r.Context(), req.Full, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleSealPending(w http.ResponseWriter, r *http.Request) {
	sealed, err := h.service.SealPending(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sealResponse{Sealed: sealed})
}
