package handler

import (
	"encoding/json"
	"net/http"

	"github.com/bobur-yusupov/daylog-sub000/internal/application/resetflow"
	"github.com/bobur-yusupov/daylog-sub000/internal/pkg/validate"
	"github.com/go-chi/chi/v5"
)

// PasswordResetHandler handles the three-step password-reset flow plus
// code resend.
type PasswordResetHandler struct {
	svc   resetflow.Service
	flows *FlowManager
}

func NewPasswordResetHandler(svc resetflow.Service, flows *FlowManager) *PasswordResetHandler {
	return &PasswordResetHandler{svc: svc, flows: flows}
}

func (h *PasswordResetHandler) Action(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "request":
		h.request(w, r)
	case "verify-code":
		h.verifyCode(w, r)
	case "confirm":
		h.confirm(w, r)
	case "resend":
		h.resend(w, r)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

func (h *PasswordResetHandler) request(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email" validate:"required,email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	flow := h.flows.Load(r)
	err := h.svc.Request(r.Context(), flow, req.Email)
	if perr := h.flows.Persist(w, r, flow); perr != nil {
		httpError(w, perr)
		return
	}
	if err != nil {
		httpError(w, err)
		return
	}
	// Identical response whether or not the address has an account.
	writeJSON(w, http.StatusOK, MessageEnvelope{
		Message: "we have sent a 6-digit verification code to your email address",
	})
}

func (h *PasswordResetHandler) verifyCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code" validate:"required,len=6,numeric"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	flow := h.flows.Load(r)
	err := h.svc.VerifyCode(r.Context(), flow, req.Code)
	if perr := h.flows.Persist(w, r, flow); perr != nil {
		httpError(w, perr)
		return
	}
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{
		Message: "code verified successfully; please set your new password",
	})
}

func (h *PasswordResetHandler) confirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewPassword     string `json:"new_password" validate:"required"`
		ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	flow := h.flows.Load(r)
	err := h.svc.Confirm(r.Context(), flow, req.NewPassword)
	if perr := h.flows.Persist(w, r, flow); perr != nil {
		httpError(w, perr)
		return
	}
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{
		Message: "your password has been reset successfully; you can now log in with your new password",
	})
}

func (h *PasswordResetHandler) resend(w http.ResponseWriter, r *http.Request) {
	flow := h.flows.Load(r)
	err := h.svc.Resend(r.Context(), flow)
	if perr := h.flows.Persist(w, r, flow); perr != nil {
		httpError(w, perr)
		return
	}
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{
		Message: "we have sent a 6-digit verification code to your email address",
	})
}
