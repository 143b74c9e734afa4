package api

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/estimator/internal/model"
	"github.com/sells-group/estimator/internal/orchestrator"
)

// Placeholder text of the draft created when a conversation starts.
const (
	draftTitle   = "Draft Estimate"
	draftSummary = "Estimate in progress..."
)

type chatRequest struct {
	EstimateID string                   `json:"estimateId,omitempty"`
	Message    string                   `json:"message"`
	Photos     []string                 `json:"photos,omitempty"`
	History    []model.ConversationTurn `json:"conversationHistory,omitempty"`
	ModelTier  string                   `json:"modelTier,omitempty"`
}

type chatResponse struct {
	*orchestrator.TurnResult
	EstimateID string `json:"estimateId"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account := AccountID(ctx)

	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, r, &orchestrator.ValidationError{Field: "message", Reason: "is required"})
		return
	}
	tier := model.DefaultTier
	if req.ModelTier != "" {
		t, err := model.ParseTier(req.ModelTier)
		if err != nil {
			writeError(w, r, &orchestrator.ValidationError{Field: "modelTier", Reason: err.Error()})
			return
		}
		tier = t
	}

	profile, err := s.profile(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// A stored conversation wins over history sent by the client.
	history := req.History
	var existing *model.Estimate
	if req.EstimateID != "" {
		existing, err = s.store.GetEstimate(ctx, account, req.EstimateID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if existing.Status == model.EstimateStatusApproved {
			writeError(w, r, model.ErrAlreadyApproved)
			return
		}
		history = existing.Conversation
	}

	memories, err := s.store.RecentMemories(ctx, account, s.cfg.MemoryLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.turns.HandleTurn(ctx, orchestrator.TurnRequest{
		AccountID: account,
		History:   history,
		Message:   req.Message,
		Images:    req.Photos,
		Profile:   profile,
		Memories:  memories,
		Tier:      tier,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	id, err := s.saveTurn(ctx, account, existing, res, tier)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{TurnResult: res, EstimateID: id})
}

// saveTurn persists the outcome of a turn. A produced estimate replaces the
// content of the conversation's estimate; otherwise only the conversation
// is stored, on a placeholder draft when none exists yet.
func (s *Server) saveTurn(ctx context.Context, account string, existing *model.Estimate, res *orchestrator.TurnResult, tier model.Tier) (string, error) {
	log := zap.L().With(zap.String("account_id", account))

	if res.IsEstimate {
		est := res.Estimate
		est.Status = model.EstimateStatusDraft
		if existing != nil {
			est.ID, est.CreatedAt = existing.ID, existing.CreatedAt
			if err := s.store.UpdateEstimate(ctx, est); err != nil {
				return "", err
			}
		} else if err := s.store.CreateEstimate(ctx, est); err != nil {
			return "", err
		}
		log.Info("api: estimate saved", zap.String("estimate_id", est.ID), zap.Float64("total", est.Total))
		return est.ID, nil
	}

	if existing != nil {
		existing.Conversation = res.History
		if err := s.store.UpdateEstimate(ctx, existing); err != nil {
			return "", err
		}
		return existing.ID, nil
	}

	draft := &model.Estimate{
		AccountID:    account,
		ProjectTitle: draftTitle,
		Summary:      draftSummary,
		LineItems:    []model.LineItem{},
		Status:       model.EstimateStatusDraft,
		Conversation: res.History,
		ModelTier:    tier,
	}
	if err := s.store.CreateEstimate(ctx, draft); err != nil {
		return "", err
	}
	log.Debug("api: draft estimate created", zap.String("estimate_id", draft.ID))
	return draft.ID, nil
}

func (s *Server) chatHistory(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("estimateId")
	if id == "" {
		writeError(w, r, badRequest("estimateId is required"))
		return
	}
	est, err := s.store.GetEstimate(r.Context(), AccountID(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	history := est.Conversation
	if history == nil {
		history = []model.ConversationTurn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"estimateId":          est.ID,
		"conversationHistory": history,
		"estimate":            est,
	})
}
