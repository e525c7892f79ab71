package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aretw0/chatflow/pkg/domain"
)

type activationBody struct {
	domain.ValidationResult
	Version string `json:"version,omitempty"`
}

type channelBody struct {
	PhoneNumberID string `json:"phone_number_id"`
	AccessToken   string `json:"access_token"`
}

func decodeGraph(r *http.Request) (*domain.Graph, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var g domain.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// ValidateFlow handles POST /flows/validate.
func (s *Server) ValidateFlow(w http.ResponseWriter, r *http.Request) {
	g, err := decodeGraph(r)
	if err != nil || g == nil {
		writeError(w, http.StatusBadRequest, "invalid flow document")
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Validate(g))
}

// GetDraft handles GET /projects/{projectID}/flow.
func (s *Server) GetDraft(w http.ResponseWriter, r *http.Request) {
	g, err := s.engine.Draft(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.storageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// SaveDraft handles PUT /projects/{projectID}/flow.
func (s *Server) SaveDraft(w http.ResponseWriter, r *http.Request) {
	g, err := decodeGraph(r)
	if err != nil || g == nil {
		writeError(w, http.StatusBadRequest, "invalid flow document")
		return
	}
	if err := s.engine.SaveDraft(r.Context(), chi.URLParam(r, "projectID"), g); err != nil {
		s.storageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ActivateFlow handles POST /projects/{projectID}/activate.
func (s *Server) ActivateFlow(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	g, err := decodeGraph(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid flow document")
		return
	}

	res, err := s.engine.Activate(r.Context(), projectID, g)
	switch {
	case errors.Is(err, domain.ErrInvalidFlow):
		writeJSON(w, http.StatusUnprocessableEntity, activationBody{ValidationResult: res})
		return
	case err != nil:
		s.storageError(w, err)
		return
	}

	body := activationBody{ValidationResult: res}
	if active, err := s.engine.ActiveFlow(r.Context(), projectID); err == nil {
		body.Version = active.Version
	}
	writeJSON(w, http.StatusOK, body)
}

// DeactivateFlow handles POST /projects/{projectID}/deactivate.
func (s *Server) DeactivateFlow(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Deactivate(r.Context(), chi.URLParam(r, "projectID")); err != nil {
		s.storageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterChannel handles PUT /projects/{projectID}/channel.
func (s *Server) RegisterChannel(w http.ResponseWriter, r *http.Request) {
	var body channelBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid channel document")
		return
	}
	ch := domain.Channel{
		ProjectID:     chi.URLParam(r, "projectID"),
		PhoneNumberID: body.PhoneNumberID,
		AccessToken:   body.AccessToken,
	}
	if err := s.engine.RegisterChannel(r.Context(), ch); err != nil {
		s.storageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSession handles GET /projects/{projectID}/sessions/{senderID}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.Session(r.Context(), sessionKey(r))
	if err != nil {
		s.storageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// DeleteSession handles DELETE /projects/{projectID}/sessions/{senderID}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteSession(r.Context(), sessionKey(r)); err != nil {
		s.storageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionKey(r *http.Request) domain.SessionKey {
	return domain.SessionKey{
		ProjectID: chi.URLParam(r, "projectID"),
		SenderID:  chi.URLParam(r, "senderID"),
	}
}

func (s *Server) storageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrFlowNotFound),
		errors.Is(err, domain.ErrFlowNotActive),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrChannelNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
