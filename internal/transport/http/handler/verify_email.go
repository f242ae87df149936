package handler

import (
	"encoding/json"
	"net/http"

	"github.com/bobur-yusupov/daylog-sub000/internal/application/verifyflow"
	"github.com/bobur-yusupov/daylog-sub000/internal/pkg/emailmask"
	"github.com/bobur-yusupov/daylog-sub000/internal/pkg/validate"
	"github.com/go-chi/chi/v5"
)

// VerifyEmailHandler handles the email-verification flow endpoints.
type VerifyEmailHandler struct {
	svc   verifyflow.Service
	flows *FlowManager
}

func NewVerifyEmailHandler(svc verifyflow.Service, flows *FlowManager) *VerifyEmailHandler {
	return &VerifyEmailHandler{svc: svc, flows: flows}
}

func (h *VerifyEmailHandler) Action(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "confirm":
		h.confirm(w, r)
	case "resend":
		h.resend(w, r)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

func (h *VerifyEmailHandler) confirm(w http.ResponseWriter, r *http.Request) {
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
	u, err := h.svc.Confirm(r.Context(), flow, req.Code)
	if perr := h.flows.Persist(w, r, flow); perr != nil {
		httpError(w, perr)
		return
	}
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{
		Message: "email verified successfully, " + displayName(u.FirstName, u.Username) + "! You can now log in",
	})
}

func (h *VerifyEmailHandler) resend(w http.ResponseWriter, r *http.Request) {
	flow := h.flows.Load(r)
	u, err := h.svc.Resend(r.Context(), flow)
	if perr := h.flows.Persist(w, r, flow); perr != nil {
		httpError(w, perr)
		return
	}
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VerificationEnvelope{
		Message:     "a new verification code has been sent",
		MaskedEmail: emailmask.Mask(u.Email),
	})
}

func displayName(firstName, username string) string {
	if firstName != "" {
		return firstName
	}
	return username
}
