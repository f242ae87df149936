package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bobur-yusupov/daylog-sub000/internal/application/user"
	"github.com/bobur-yusupov/daylog-sub000/internal/application/verifyflow"
	"github.com/bobur-yusupov/daylog-sub000/internal/domain"
	"github.com/bobur-yusupov/daylog-sub000/internal/pkg/emailmask"
	"github.com/bobur-yusupov/daylog-sub000/internal/pkg/validate"
	"github.com/bobur-yusupov/daylog-sub000/internal/transport/http/middleware"
)

// UserHandler handles registration and profile endpoints.
type UserHandler struct {
	svc    user.Service
	verify verifyflow.Service
	flows  *FlowManager
}

func NewUserHandler(svc user.Service, verify verifyflow.Service, flows *FlowManager) *UserHandler {
	return &UserHandler{svc: svc, verify: verify, flows: flows}
}

// Register creates an unverified account and immediately starts the
// email-verification flow for it.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	u, err := h.svc.Register(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}

	flow := h.flows.Load(r)
	startErr := h.verify.Start(r.Context(), flow, u)
	if err := h.flows.Save(w, r, flow); err != nil {
		httpError(w, err)
		return
	}
	if startErr != nil && errors.Is(startErr, domain.ErrDeliveryFailed) {
		writeJSON(w, http.StatusCreated, VerificationEnvelope{
			Message:              "account created, but we couldn't send the verification code; please request a new code",
			MaskedEmail:          emailmask.Mask(u.Email),
			VerificationRequired: true,
		})
		return
	}
	if startErr != nil {
		httpError(w, startErr)
		return
	}
	writeJSON(w, http.StatusCreated, VerificationEnvelope{
		Message:              "account created; we sent a 6-digit verification code to your email address",
		MaskedEmail:          emailmask.Mask(u.Email),
		VerificationRequired: true,
	})
}

func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	u, err := h.svc.Get(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UserEnvelope{User: u})
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	u, err := h.svc.Update(r.Context(), claims.UserID, req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UserEnvelope{User: u, Message: "profile updated"})
}

func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		CurrentPassword string `json:"current_password" validate:"required"`
		NewPassword     string `json:"new_password" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.svc.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password changed"})
}
