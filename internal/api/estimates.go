package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/estimator/internal/export"
	"github.com/sells-group/estimator/internal/model"
	"github.com/sells-group/estimator/internal/pricing"
	"github.com/sells-group/estimator/internal/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) listEstimates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter store.EstimateFilter

	switch status := model.EstimateStatus(q.Get("status")); status {
	case "", model.EstimateStatusDraft, model.EstimateStatusApproved:
		filter.Status = status
	default:
		writeError(w, r, badRequest(fmt.Sprintf("invalid status %q", status)))
		return
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, badRequest(fmt.Sprintf("invalid %s %q", name, v)))
			return
		}
		*dst = n
	}

	estimates, err := s.store.ListEstimates(r.Context(), AccountID(r.Context()), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"estimates": estimates})
}

func (s *Server) getEstimate(w http.ResponseWriter, r *http.Request) {
	est, err := s.store.GetEstimate(r.Context(), AccountID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"estimate": est})
}

type estimateUpdate struct {
	ProjectTitle *string               `json:"projectTitle"`
	Summary      *string               `json:"summary"`
	Timeline     *string               `json:"timeline"`
	LineItems    *[]model.LineItem     `json:"lineItems"`
	Status       *model.EstimateStatus `json:"status"`
}

func (u estimateUpdate) edits() bool {
	return u.ProjectTitle != nil || u.Summary != nil || u.Timeline != nil || u.LineItems != nil
}

func (s *Server) updateEstimate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req estimateUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	est, err := s.store.GetEstimate(ctx, AccountID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.edits() && est.Status == model.EstimateStatusApproved {
		writeError(w, r, model.ErrAlreadyApproved)
		return
	}

	if req.ProjectTitle != nil {
		title := strings.TrimSpace(*req.ProjectTitle)
		if title == "" {
			writeError(w, r, badRequest("projectTitle must not be empty"))
			return
		}
		est.ProjectTitle = title
	}
	if req.Summary != nil {
		est.Summary = strings.TrimSpace(*req.Summary)
	}
	if req.Timeline != nil {
		est.Timeline = strings.TrimSpace(*req.Timeline)
	}
	if req.LineItems != nil {
		if err := s.replaceItems(ctx, est, *req.LineItems); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if req.Status != nil {
		if err := est.SetStatus(*req.Status); err != nil {
			if !errors.Is(err, model.ErrAlreadyApproved) {
				err = badRequest(err.Error())
			}
			writeError(w, r, err)
			return
		}
	}

	if err := s.store.UpdateEstimate(ctx, est); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"estimate": est})
}

func (s *Server) approveEstimate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	est, err := s.store.GetEstimate(ctx, AccountID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := est.SetStatus(model.EstimateStatusApproved); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.UpdateEstimate(ctx, est); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"estimate": est})
}

func (s *Server) deleteEstimate(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteEstimate(r.Context(), AccountID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) exportEstimate(w http.ResponseWriter, r *http.Request) {
	est, err := s.store.GetEstimate(r.Context(), AccountID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, est); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="estimate-%s.xlsx"`, est.ID))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		zap.L().Debug("api: write export", zap.String("estimate_id", est.ID), zap.Error(err))
	}
}

// replaceItems swaps in hand-edited line items and recomputes totals with
// the account's own tax rate.
func (s *Server) replaceItems(ctx context.Context, est *model.Estimate, items []model.LineItem) error {
	profile, err := s.profile(ctx)
	if err != nil {
		return err
	}
	cleaned, err := cleanItems(items)
	if err != nil {
		return err
	}
	if err := est.ReplaceLineItems(cleaned, profile.TaxRate); err != nil {
		if errors.Is(err, model.ErrAlreadyApproved) {
			return err
		}
		return badRequest(err.Error())
	}
	return nil
}

// profile loads the caller's company profile. A missing profile means
// onboarding was never finished.
func (s *Server) profile(ctx context.Context) (*model.CompanyProfile, error) {
	p, err := s.store.GetProfile(ctx, AccountID(ctx))
	if errors.Is(err, store.ErrNotFound) {
		return nil, &pricing.ProfileIncompleteError{Reason: "company profile not found"}
	}
	return p, err
}

// cleanItems fills the fields a hand-edited line item may omit and checks
// the rest.
func cleanItems(items []model.LineItem) ([]model.LineItem, error) {
	out := make([]model.LineItem, len(items))
	for i, li := range items {
		if c, ok := model.ParseCategory(string(li.Category)); ok {
			li.Category = c
		} else {
			li.Category = model.CategoryOther
		}
		if c, ok := model.ParseConfidence(string(li.Confidence)); ok {
			li.Confidence = c
		} else {
			li.Confidence = model.ConfidenceMedium
		}
		li.Description = strings.TrimSpace(li.Description)
		if err := li.Validate(); err != nil {
			return nil, badRequest(fmt.Sprintf("line item %d: %v", i+1, err))
		}
		li.Recalculate()
		out[i] = li
	}
	return out, nil
}
