package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/estimator/internal/learning"
	"github.com/sells-group/estimator/internal/model"
)

type feedbackRequest struct {
	EditedLineItems []model.LineItem `json:"editedLineItems"`
	Notes           string           `json:"notes,omitempty"`
}

// feedback records a contractor's final edit of an estimate, learns from
// the changes and approves the estimate with the edited items.
func (s *Server) feedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account := AccountID(ctx)

	var req feedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.EditedLineItems) == 0 {
		writeError(w, r, badRequest("editedLineItems is required"))
		return
	}
	edited, err := cleanItems(req.EditedLineItems)
	if err != nil {
		writeError(w, r, err)
		return
	}

	est, err := s.store.GetEstimate(ctx, account, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if est.Status == model.EstimateStatusApproved {
		writeError(w, r, model.ErrAlreadyApproved)
		return
	}
	profile, err := s.profile(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}

	original := est.LineItems
	notes := strings.TrimSpace(req.Notes)
	log := zap.L().With(zap.String("account_id", account), zap.String("estimate_id", est.ID))

	// Learning is best effort: the contractor's edit is saved either way.
	memories, err := s.learner.ExtractLearnings(ctx, original, edited, notes)
	if err != nil {
		log.Warn("api: feedback learning failed", zap.Error(err))
		memories = nil
	}

	// Approving the edited estimate is the commit point. Feedback and
	// memories are written only after it lands, so a failed update leaves
	// nothing behind and a retry cannot append the same memories twice.
	if err := est.ReplaceLineItems(edited, profile.TaxRate); err != nil {
		writeError(w, r, badRequest(err.Error()))
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

	fb := &model.Feedback{
		EstimateID:        est.ID,
		AccountID:         account,
		OriginalLineItems: original,
		EditedLineItems:   edited,
		Approved:          true,
		Notes:             notes,
	}
	if err := s.store.CreateFeedback(ctx, fb); err != nil {
		log.Error("api: record feedback failed", zap.Error(err))
	}
	if len(memories) > 0 {
		if err := s.store.AppendMemories(ctx, account, memories, s.cfg.MemoryCap); err != nil {
			log.Error("api: store learnings failed", zap.Error(err))
			memories = nil
		}
	}

	log.Info("api: feedback recorded", zap.Int("learnings", len(memories)))
	writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"estimate":           est,
		"learningsExtracted": len(memories),
		"changes":            learning.Diff(original, edited),
	})
}

func (s *Server) learningStats(w http.ResponseWriter, r *http.Request) {
	memories, err := s.store.RecentMemories(r.Context(), AccountID(r.Context()), 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, learning.Summarize(memories))
}
