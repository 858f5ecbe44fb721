// Package handler exposes rule management over HTTP, nested under the asset
// that owns the rules.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fundledger/internal/rules/models"
	"fundledger/internal/rules/service"
	id "fundledger/pkg/domain"
	dErrors "fundledger/pkg/domain-errors"
	"fundledger/pkg/platform/httputil"
)

// Service defines the rule operations the handler needs.
type Service interface {
	UpdateRuleSet(ctx context.Context, assetID id.AssetID, params service.RuleSetParams) (*models.RuleSet, error)
	GetActiveRuleSet(ctx context.Context, assetID id.AssetID) (*models.RuleSet, error)
	ListRuleSetVersions(ctx context.Context, assetID id.AssetID) ([]*models.RuleSet, error)
	CreateCompositeRule(ctx context.Context, assetID id.AssetID, params service.CompositeRuleParams) (*models.CompositeRule, error)
	UpdateCompositeRule(ctx context.Context, assetID id.AssetID, ruleID id.RuleID, params service.CompositeRuleParams) (*models.CompositeRule, error)
	DeleteCompositeRule(ctx context.Context, assetID id.AssetID, ruleID id.RuleID) error
	GetCompositeRule(ctx context.Context, assetID id.AssetID, ruleID id.RuleID) (*models.CompositeRule, error)
	ListCompositeRules(ctx context.Context, assetID id.AssetID) ([]*models.CompositeRule, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts the rule routes under /assets/{assetID}.
func (h *Handler) Register(r chi.Router) {
	r.Route("/assets/{assetID}", func(r chi.Router) {
		r.Put("/ruleset", h.handleUpdateRuleSet)
		r.Get("/ruleset", h.handleGetActiveRuleSet)
		r.Get("/ruleset/versions", h.handleListRuleSetVersions)

		r.Post("/rules", h.handleCreateRule)
		r.Get("/rules", h.handleListRules)
		r.Get("/rules/{ruleID}", h.handleGetRule)
		r.Put("/rules/{ruleID}", h.handleUpdateRule)
		r.Delete("/rules/{ruleID}", h.handleDeleteRule)
	})
}

func assetID(r *http.Request) (id.AssetID, error) {
	assetID, err := id.ParseAssetID(chi.URLParam(r, "assetID"))
	if err != nil {
		return id.AssetID{}, dErrors.New(dErrors.CodeInvalidInput, "asset id is not a valid UUID")
	}
	return assetID, nil
}

func ruleID(r *http.Request) (id.RuleID, error) {
	ruleID, err := id.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		return id.RuleID{}, dErrors.New(dErrors.CodeInvalidInput, "rule id is not a valid UUID")
	}
	return ruleID, nil
}

func (h *Handler) handleUpdateRuleSet(w http.ResponseWriter, r *http.Request) {
	aID, err := assetID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[rulesetRequest](w, r, h.logger)
	if !ok {
		return
	}
	rs, err := h.service.UpdateRuleSet(r.Context(), aID, req.toParams())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRuleSetResponse(rs))
}

func (h *Handler) handleGetActiveRuleSet(w http.ResponseWriter, r *http.Request) {
	aID, err := assetID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rs, err := h.service.GetActiveRuleSet(r.Context(), aID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRuleSetResponse(rs))
}

func (h *Handler) handleListRuleSetVersions(w http.ResponseWriter, r *http.Request) {
	aID, err := assetID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	versions, err := h.service.ListRuleSetVersions(r.Context(), aID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]rulesetResponse, 0, len(versions))
	for _, rs := range versions {
		out = append(out, toRuleSetResponse(rs))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]rulesetResponse{"versions": out})
}

func (h *Handler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	aID, err := assetID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[ruleRequest](w, r, h.logger)
	if !ok {
		return
	}
	rule, err := h.service.CreateCompositeRule(r.Context(), aID, req.toParams())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toRuleResponse(rule))
}

func (h *Handler) handleListRules(w http.ResponseWriter, r *http.Request) {
	aID, err := assetID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rules, err := h.service.ListCompositeRules(r.Context(), aID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toRuleResponse(rule))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string][]ruleResponse{"rules": out})
}

func (h *Handler) handleGetRule(w http.ResponseWriter, r *http.Request) {
	aID, err := assetID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rID, err := ruleID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rule, err := h.service.GetCompositeRule(r.Context(), aID, rID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRuleResponse(rule))
}

func (h *Handler) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	aID, err := assetID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rID, err := ruleID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[ruleRequest](w, r, h.logger)
	if !ok {
		return
	}
	rule, err := h.service.UpdateCompositeRule(r.Context(), aID, rID, req.toParams())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRuleResponse(rule))
}

func (h *Handler) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	aID, err := assetID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rID, err := ruleID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.DeleteCompositeRule(r.Context(), aID, rID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
