package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sells-group/estimator/internal/model"
	"github.com/sells-group/estimator/internal/store"
)

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProfile(r.Context(), AccountID(r.Context()))
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"profile": nil})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": p})
}

func (s *Server) createProfile(w http.ResponseWriter, r *http.Request) {
	// Omitted pricing fields keep these defaults; explicit zeros are honored.
	p := model.CompanyProfile{
		MaterialMarkupPct: model.DefaultMaterialMarkupPct,
		OverheadProfitPct: model.DefaultOverheadProfitPct,
		TaxRate:           model.DefaultTaxRate,
	}
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	p.ID = ""
	p.AccountID = AccountID(r.Context())
	if err := p.Validate(); err != nil {
		writeError(w, r, badRequest(err.Error()))
		return
	}

	if err := s.store.CreateProfile(r.Context(), &p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"profile": p})
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	existing, err := s.store.GetProfile(ctx, AccountID(ctx))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var fields map[string]json.RawMessage
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err == nil {
		err = json.Unmarshal(body, &fields)
	}
	if err != nil {
		writeError(w, r, badRequest("invalid request body"))
		return
	}

	// Decode over the stored profile so a partial body only changes the
	// fields it names. Maps named in the body are replaced, not merged.
	p := *existing
	if _, ok := fields["labor_rates"]; ok {
		p.LaborRates = nil
	}
	if _, ok := fields["typical_crew_sizes"]; ok {
		p.CrewSizes = nil
	}
	if err := json.Unmarshal(body, &p); err != nil {
		writeError(w, r, badRequest("invalid request body"))
		return
	}
	p.ID, p.AccountID, p.CreatedAt = existing.ID, existing.AccountID, existing.CreatedAt
	if err := p.Validate(); err != nil {
		writeError(w, r, badRequest(err.Error()))
		return
	}

	if err := s.store.UpdateProfile(ctx, &p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": p})
}
