package api

import (
	"net/http"
	"strings"

	"github.com/sells-group/estimator/internal/advisor"
	"github.com/sells-group/estimator/internal/model"
	"github.com/sells-group/estimator/internal/orchestrator"
)

type advisorRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
	Topic          string `json:"topic"`
	Message        string `json:"message"`
}

func (s *Server) advisorChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account := AccountID(ctx)

	var req advisorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		writeError(w, r, &orchestrator.ValidationError{Field: "message", Reason: "is required"})
		return
	}
	topic, ok := advisor.ParseTopic(req.Topic)
	if !ok {
		writeError(w, r, &advisor.UnknownTopicError{Topic: req.Topic})
		return
	}

	profile, err := s.profile(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}

	conv := &model.AdvisorConversation{
		AccountID: account,
		Topic:     topic,
		Title:     advisor.ConversationTitle(topic, msg),
	}
	if req.ConversationID != "" {
		conv, err = s.store.GetAdvisorConversation(ctx, account, req.ConversationID)
		if err != nil {
			writeError(w, r, err)
			return
		}
	}

	reply, history, err := s.advisor.Reply(ctx, conv.Topic, profile, conv.Messages, msg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	conv.Messages = history
	if err := s.store.SaveAdvisorConversation(ctx, conv); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":        reply,
		"conversationId": conv.ID,
		"title":          conv.Title,
		"messages":       conv.Messages,
	})
}

func (s *Server) advisorConversation(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("conversationId")
	if id == "" {
		writeError(w, r, badRequest("conversationId is required"))
		return
	}
	conv, err := s.store.GetAdvisorConversation(r.Context(), AccountID(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation": conv})
}
