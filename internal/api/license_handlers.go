package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/technosupport/ts-lms/internal/activation"
	"github.com/technosupport/ts-lms/internal/metrics"
)

type ActivationService interface {
	Activate(ctx context.Context, req activation.Request) (*activation.Result, error)
	Validate(ctx context.Context, req activation.Request) (*activation.Result, error)
	Deactivate(ctx context.Context, req activation.Request) (*activation.Result, error)
}

// LicenseHandler exposes the public activate/validate/deactivate endpoints
// consumed by the client application.
type LicenseHandler struct {
	Service ActivationService
	Metrics *metrics.Collector
}

func NewLicenseHandler(svc ActivationService, m *metrics.Collector) *LicenseHandler {
	return &LicenseHandler{Service: svc, Metrics: m}
}

// rejection is the failure shape of every public endpoint. Reason is always
// safe for end-user display.
type rejection struct {
	Valid        bool   `json:"valid"`
	Reason       string `json:"reason"`
	BoundTo      string `json:"bound_to,omitempty"`
	ContactAdmin bool   `json:"contact_admin,omitempty"`
}

// POST /api/v1/license/activate
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	res, err := h.Service.Activate(r.Context(), req)
	if err != nil {
		h.record(h.Metrics.RecordActivation, err)
		h.respondFailure(w, err)
		return
	}

	h.Metrics.RecordActivation("success")
	respondJSON(w, http.StatusOK, res)
}

// POST /api/v1/license/validate
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	res, err := h.Service.Validate(r.Context(), req)
	if err != nil {
		h.record(h.Metrics.RecordValidation, err)
		h.respondFailure(w, err)
		return
	}

	h.Metrics.RecordValidation("success")
	respondJSON(w, http.StatusOK, res)
}

// POST /api/v1/license/deactivate
func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	if _, err := h.Service.Deactivate(r.Context(), req); err != nil {
		h.respondFailure(w, err)
		return
	}
}

func (h *LicenseHandler) decode(w http.ResponseWriter, r *http.Request) (activation.Request, bool) {
	var req activation.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return req, false
	}
	if req.Key == "" || req.MachineID == "" {
		respondError(w, http.StatusBadRequest, "key and machine_id are required")
		return req, false
	}
	req.IPAddress = clientIP(r)
	return req, true
}

// respondFailure maps the service error taxonomy onto HTTP. Validation
// errors surface their reason verbatim; storage failures stay opaque.
func (h *LicenseHandler) respondFailure(w http.ResponseWriter, err error) {
	var bound *activation.AlreadyBoundError
	var st *activation.StorageError

	switch {
	case errors.As(err, &bound):
		respondJSON(w, http.StatusConflict, rejection{
			Reason:       bound.Error(),
			BoundTo:      bound.BoundTo,
			ContactAdmin: true,
		})
	case errors.Is(err, activation.ErrBadFormat):
		respondJSON(w, http.StatusBadRequest, rejection{Reason: err.Error()})
	case errors.Is(err, activation.ErrBadSignature):
		respondJSON(w, http.StatusNotFound, rejection{Reason: err.Error()})
	case errors.Is(err, activation.ErrNotActivated):
		respondJSON(w, http.StatusNotFound, rejection{Reason: err.Error()})
	case errors.Is(err, activation.ErrRevoked), errors.Is(err, activation.ErrExpired):
		respondJSON(w, http.StatusForbidden, rejection{Reason: err.Error()})
	case errors.Is(err, activation.ErrSelfDeactivate):
		respondJSON(w, http.StatusForbidden, rejection{Reason: err.Error(), ContactAdmin: true})
	case errors.As(err, &st):
		log.Printf("License API: storage error: %v", st)
		respondJSON(w, http.StatusInternalServerError, rejection{Reason: "internal server error"})
	default:
		log.Printf("License API: unexpected error: %v", err)
		respondJSON(w, http.StatusInternalServerError, rejection{Reason: "internal server error"})
	}
}

func (h *LicenseHandler) record(fn func(string), err error) {
	switch {
	case errors.Is(err, activation.ErrBadSignature):
		h.Metrics.RecordForgedKey()
		fn("rejected")
	case isStorage(err):
		fn("error")
	default:
		fn("rejected")
	}
}

func isStorage(err error) bool {
	var st *activation.StorageError
	return errors.As(err, &st)
}
