package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/technosupport/ts-lms/internal/admin"
	"github.com/technosupport/ts-lms/internal/audit"
	"github.com/technosupport/ts-lms/internal/data"
	"github.com/technosupport/ts-lms/internal/keycodec"
	"github.com/technosupport/ts-lms/internal/metrics"
)

// AdminHandler exposes the JWT-protected key management endpoints.
type AdminHandler struct {
	Service *admin.Service
	Metrics *metrics.Collector
}

func NewAdminHandler(svc *admin.Service, m *metrics.Collector) *AdminHandler {
	return &AdminHandler{Service: svc, Metrics: m}
}

// GET /api/v1/admin/keys?tier=&status=&limit=&offset=
func (h *AdminHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := data.KeyFilter{
		Tier:   keycodec.Tier(q.Get("tier")),
		Status: data.Status(q.Get("status")),
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	keys, err := h.Service.ListKeys(r.Context(), filter, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list keys")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"keys":  keys,
		"count": len(keys),
	})
}

// POST /api/v1/admin/keys/generate
func (h *AdminHandler) GenerateKeys(w http.ResponseWriter, r *http.Request) {
	var req admin.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	keys, err := h.Service.GenerateKeys(r.Context(), req)
	if err != nil {
		if errors.Is(err, admin.ErrBadRequest) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to generate keys")
		return
	}

	h.Metrics.RecordAdminAction("generate")
	respondJSON(w, http.StatusCreated, map[string]any{
		"keys":  keys,
		"count": len(keys),
	})
}

// POST /api/v1/admin/keys/{key}/manage
func (h *AdminHandler) ManageKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var body struct {
		Action string `json:"action"`
		admin.ManagePayload
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if body.Action == "" {
		respondError(w, http.StatusBadRequest, "action is required")
		return
	}

	msg, err := h.Service.ManageKey(r.Context(), key, body.Action, body.ManagePayload, clientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, admin.ErrKeyNotFound):
			respondError(w, http.StatusNotFound, "License key not found")
		case errors.Is(err, admin.ErrNotBound):
			respondError(w, http.StatusConflict, "License key has no live activation")
		case errors.Is(err, admin.ErrUnknownAction), errors.Is(err, admin.ErrBadRequest):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, data.ErrInvalidTransition):
			respondError(w, http.StatusConflict, "Action not allowed in the key's current status")
		default:
			respondError(w, http.StatusInternalServerError, "Failed to manage key")
		}
		return
	}

	h.Metrics.RecordAdminAction(body.Action)
	respondJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// GET /api/v1/admin/audit?license_key=&action=&limit=
func (h *AdminHandler) ListAuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	entries, err := h.Service.ListAuditLog(r.Context(), audit.Filter{
		LicenseKey: q.Get("license_key"),
		Action:     audit.Action(q.Get("action")),
		Limit:      limit,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list audit log")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
