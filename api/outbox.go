package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"

	"github.com/recruitflow/api/internal/outbox"
)

type OutboxHandler struct {
	svc        *outbox.Service
	dispatcher *outbox.Dispatcher
	cronSecret string
}

func NewOutboxHandler(svc *outbox.Service, dispatcher *outbox.Dispatcher, cronSecret string) *OutboxHandler {
	return &OutboxHandler{svc: svc, dispatcher: dispatcher, cronSecret: cronSecret}
}

func (h *OutboxHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}

	items, err := h.svc.ListPending(r.Context(), limit)
	if err != nil {
		http.Error(w, "Error listing outbox", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{"items": items, "total": len(items)}, http.StatusOK)
}

// Dispatch runs one delivery cycle. It accepts either an authenticated
// operator (JWT, enforced by routing) or a scheduler presenting the cron
// secret header.
func (h *OutboxHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	result, err := h.dispatcher.DispatchDue(r.Context())
	if err != nil {
		if errors.Is(err, outbox.ErrTargetNotConfigured) {
			http.Error(w, "Webhook target not configured", http.StatusServiceUnavailable)
			return
		}
		logger.Error("dispatch outbox", "error", err)
		http.Error(w, "Dispatch failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, result, http.StatusOK)
}

// CronAuthMiddleware admits requests carrying the shared cron secret.
func CronAuthMiddleware(cronSecret string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("x-cron-secret")
		if cronSecret == "" || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(cronSecret)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
