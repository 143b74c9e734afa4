package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sells-group/estimator/internal/advisor"
	"github.com/sells-group/estimator/internal/gateway"
	"github.com/sells-group/estimator/internal/model"
	"github.com/sells-group/estimator/internal/normalize"
	"github.com/sells-group/estimator/internal/orchestrator"
	"github.com/sells-group/estimator/internal/pricing"
	"github.com/sells-group/estimator/internal/store"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error       string `json:"error"`
	NeedsAPIKey bool   `json:"needsApiKey,omitempty"`
	RedirectTo  string `json:"redirectTo,omitempty"`
}

// requestError is a malformed request detected by a handler.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{msg: msg} }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	log := zap.L().With(
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	)
	if status >= http.StatusInternalServerError {
		log.Error("api: request failed")
	} else {
		log.Debug("api: request rejected")
	}
	writeJSON(w, status, body)
}

// classify maps the error taxonomy onto HTTP statuses.
func classify(err error) (int, errorBody) {
	var (
		re  *requestError
		ve  *orchestrator.ValidationError
		ute *advisor.UnknownTopicError
		pie *pricing.ProfileIncompleteError
		ne  *normalize.NormalizationError
	)
	switch {
	case errors.As(err, &re):
		return http.StatusBadRequest, errorBody{Error: re.msg}
	case errors.As(err, &ve):
		return http.StatusBadRequest, errorBody{Error: ve.Error()}
	case errors.As(err, &ute):
		return http.StatusBadRequest, errorBody{Error: ute.Error()}
	case errors.As(err, &pie):
		return http.StatusForbidden, errorBody{
			Error:      "Company profile is incomplete. Please finish onboarding first.",
			RedirectTo: "/onboarding",
		}
	case gateway.IsCapability(err):
		return http.StatusServiceUnavailable, errorBody{Error: err.Error(), NeedsAPIKey: true}
	case errors.Is(err, orchestrator.ErrTurnTimeout):
		return http.StatusGatewayTimeout, errorBody{Error: "The estimate took too long. Please try again."}
	case errors.As(err, &ne):
		return http.StatusUnprocessableEntity, errorBody{
			Error: "I couldn't turn that into an estimate. Please rephrase or add more detail.",
		}
	case gateway.IsTransport(err):
		return http.StatusBadGateway, errorBody{Error: "The AI provider is unavailable. Please try again shortly."}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: "Not found"}
	case errors.Is(err, store.ErrProfileExists):
		return http.StatusConflict, errorBody{Error: "Company profile already exists. Use PUT to update."}
	case errors.Is(err, model.ErrAlreadyApproved):
		return http.StatusConflict, errorBody{Error: "Estimate is already approved."}
	default:
		return http.StatusInternalServerError, errorBody{Error: "Internal server error"}
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body")
	}
	return nil
}
