package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bobur-yusupov/daylog-sub000/internal/application/session"
	"github.com/bobur-yusupov/daylog-sub000/internal/application/verifyflow"
	"github.com/bobur-yusupov/daylog-sub000/internal/pkg/emailmask"
	"github.com/bobur-yusupov/daylog-sub000/internal/pkg/validate"
	"github.com/bobur-yusupov/daylog-sub000/internal/transport/http/middleware"
)

// SessionHandler handles session endpoints.
type SessionHandler struct {
	svc    session.Service
	verify verifyflow.Service
	flows  *FlowManager
}

func NewSessionHandler(svc session.Service, verify verifyflow.Service, flows *FlowManager) *SessionHandler {
	return &SessionHandler{svc: svc, verify: verify, flows: flows}
}

// Login exchanges credentials for a bearer and refresh token. Correct
// credentials on an unverified account get a 403 that starts the
// verification flow instead of a session.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req session.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	result, err := h.svc.Login(r.Context(), req)
	if err != nil {
		var verr *session.VerificationRequiredError
		if errors.As(err, &verr) {
			h.startVerification(w, r, verr)
			return
		}
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{
		AccessToken:  result.Bearer,
		RefreshToken: result.RefreshToken,
		Session:      result.Session,
		User:         result.Session.User,
	})
}

func (h *SessionHandler) startVerification(w http.ResponseWriter, r *http.Request, verr *session.VerificationRequiredError) {
	flow := h.flows.Load(r)
	// Delivery failure still leaves the flow pending; the client lands on
	// the verification step either way and can ask for a resend there.
	_ = h.verify.Start(r.Context(), flow, verr.User)
	if err := h.flows.Save(w, r, flow); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusForbidden, VerificationEnvelope{
		Message:              "please verify your email address; we sent a 6-digit code",
		MaskedEmail:          emailmask.Mask(verr.User.Email),
		VerificationRequired: true,
	})
}

func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token required")
		return
	}
	bearer, newToken, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{AccessToken: bearer, RefreshToken: newToken})
}

func (h *SessionHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sess, err := h.svc.GetCurrent(r.Context(), claims.SessionID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionEnvelope{Session: sess, User: sess.User})
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.Logout(r.Context(), claims.SessionID); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "logged out"})
}
