package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/recruitflow/api/internal/outbox"
	"github.com/recruitflow/api/internal/runner"
)

type FlowHandler struct {
	runner *runner.Service
	outbox *outbox.Service
}

func NewFlowHandler(rs *runner.Service, os *outbox.Service) *FlowHandler {
	return &FlowHandler{runner: rs, outbox: os}
}

func (h *FlowHandler) respondRunnerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, runner.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, runner.ErrUnknownNode):
		http.Error(w, "Unknown node", http.StatusBadRequest)
	default:
		logger.Error("flow runner", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func (h *FlowHandler) Start(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	draft, err := h.runner.StartDraft(r.Context(), vars["tenantSlug"], vars["publicSlug"])
	if err != nil {
		h.respondRunnerError(w, err)
		return
	}

	writeJSON(w, draft, http.StatusCreated)
}

type saveAnswersRequest struct {
	NodeKey string               `json:"node_key"`
	Answers []runner.AnswerInput `json:"answers"`
}

func (h *FlowHandler) SaveAnswers(w http.ResponseWriter, r *http.Request) {
	var req saveAnswersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.NodeKey == "" {
		http.Error(w, "node_key is required", http.StatusBadRequest)
		return
	}

	vars := mux.Vars(r)
	draft, err := h.runner.SaveAnswers(r.Context(), vars["tenantSlug"], vars["publicSlug"], vars["applicationID"], req.NodeKey, req.Answers)
	if err != nil {
		h.respondRunnerError(w, err)
		return
	}

	writeJSON(w, draft, http.StatusOK)
}

// Submit finalizes the application. Missing required answers come back as a
// 422 naming the gaps; the outbox enqueue happens exactly when this call
// performed the finalization.
func (h *FlowHandler) Submit(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	res, err := h.runner.Submit(r.Context(), vars["tenantSlug"], vars["publicSlug"], vars["applicationID"])
	if err != nil {
		h.respondRunnerError(w, err)
		return
	}

	if len(res.MissingRequired) > 0 {
		writeJSON(w, res, http.StatusUnprocessableEntity)
		return
	}

	if res.FinalizedNow {
		if _, err := h.outbox.EnqueueApplicationSubmitted(r.Context(), res.Application.ID); err != nil {
			// the submission already committed; delivery is recoverable
			logger.Error("enqueue application_submitted", "error", err, "application_id", res.Application.ID)
		}
	}

	writeJSON(w, res, http.StatusOK)
}

func (h *FlowHandler) NextNode(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	res, err := h.runner.NextNode(r.Context(), vars["tenantSlug"], vars["publicSlug"], vars["applicationID"], vars["nodeKey"])
	if err != nil {
		h.respondRunnerError(w, err)
		return
	}

	writeJSON(w, res, http.StatusOK)
}

type magicLinkRequest struct {
	TTLDays int `json:"ttl_days"`
}

func (h *FlowHandler) IssueMagicLink(w http.ResponseWriter, r *http.Request) {
	var req magicLinkRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
	}

	vars := mux.Vars(r)
	link, err := h.runner.IssueMagicLink(r.Context(), vars["tenantSlug"], vars["publicSlug"], vars["applicationID"], req.TTLDays)
	if err != nil {
		h.respondRunnerError(w, err)
		return
	}

	writeJSON(w, link, http.StatusCreated)
}

func (h *FlowHandler) Resume(w http.ResponseWriter, r *http.Request) {
	draft, err := h.runner.ResumeByToken(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		h.respondRunnerError(w, err)
		return
	}

	writeJSON(w, draft, http.StatusOK)
}
