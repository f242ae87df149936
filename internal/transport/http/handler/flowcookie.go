package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/bobur-yusupov/daylog-sub000/internal/domain"
	"github.com/bobur-yusupov/daylog-sub000/internal/pkg/id"
)

const flowCookieName = "daylog_flow"

// FlowStore is the minimal interface the flow manager needs from the flow
// record store.
type FlowStore interface {
	Put(ctx context.Context, f *domain.FlowState) error
	Get(ctx context.Context, flowID string) (*domain.FlowState, error)
	Delete(ctx context.Context, flowID string) error
}

// FlowManager ties the verification and reset flows to the caller through an
// opaque cookie. The cookie value is only a handle; all state lives in the
// flow record, which expires server side via TTL.
type FlowManager struct {
	store FlowStore
	ttl   time.Duration
}

func NewFlowManager(store FlowStore, ttl time.Duration) *FlowManager {
	return &FlowManager{store: store, ttl: ttl}
}

// Load resolves the caller's flow record, returning a fresh unsaved record
// when no cookie is set or the record has expired.
func (m *FlowManager) Load(r *http.Request) *domain.FlowState {
	c, err := r.Cookie(flowCookieName)
	if err == nil && c.Value != "" {
		f, err := m.store.Get(r.Context(), c.Value)
		if err == nil && time.Now().Unix() < f.ExpiresAt {
			return f
		}
	}
	now := time.Now().UTC()
	return &domain.FlowState{FlowID: id.New(), CreatedAt: now}
}

// Save persists the flow record with a refreshed TTL and (re)sets the cookie.
func (m *FlowManager) Save(w http.ResponseWriter, r *http.Request, f *domain.FlowState) error {
	now := time.Now().UTC()
	f.UpdatedAt = now
	f.ExpiresAt = now.Add(m.ttl).Unix()
	if err := m.store.Put(r.Context(), f); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flowCookieName,
		Value:    f.FlowID,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Persist saves the record, or discards it when no flow remains pending on
// it, so completed flows do not leave records behind.
func (m *FlowManager) Persist(w http.ResponseWriter, r *http.Request, f *domain.FlowState) error {
	if !f.AwaitingVerification() && f.ResetPhase == domain.ResetPhaseNone {
		m.Discard(w, r, f)
		return nil
	}
	return m.Save(w, r, f)
}

// Discard deletes the flow record and clears the cookie. Used when a flow
// completes and nothing else is pending on the record.
func (m *FlowManager) Discard(w http.ResponseWriter, r *http.Request, f *domain.FlowState) {
	_ = m.store.Delete(r.Context(), f.FlowID)
	http.SetCookie(w, &http.Cookie{
		Name:     flowCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
