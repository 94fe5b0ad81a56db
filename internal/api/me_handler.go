package api

import (
	"context"
	"net/http"
	"time"

	"github.com/otiai10/doggyday/internal/auth"
	"github.com/otiai10/doggyday/internal/user"
)

// MeHandler handles user profile endpoints
type MeHandler struct {
	userRepo user.Repository
	now      func() time.Time
}

// NewMeHandler creates a new MeHandler
func NewMeHandler(userRepo user.Repository) *MeHandler {
	return &MeHandler{
		userRepo: userRepo,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// MeUpdateRequest is the body of PATCH /api/me. Absent fields are unchanged.
type MeUpdateRequest struct {
	DisplayName *string `json:"displayName,omitempty"`
	PictureURL  *string `json:"pictureUrl,omitempty"`
}

// GetProfile handles GET /api/me
// Returns the current user's profile, creating it on first login
func (h *MeHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	u, err := h.ensure(r.Context())
	if err != nil {
		writeError(w, "failed to get user", http.StatusInternalServerError)
		return
	}
	writeJSON(w, u, http.StatusOK)
}

// UpdateProfile handles PATCH /api/me
func (h *MeHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req MeUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	u, err := h.ensure(r.Context())
	if err != nil {
		writeError(w, "failed to get user", http.StatusInternalServerError)
		return
	}

	if req.DisplayName != nil {
		u.DisplayName = *req.DisplayName
	}
	if req.PictureURL != nil {
		u.PictureURL = *req.PictureURL
	}
	if err := h.userRepo.UpdateProfile(r.Context(), u.ID, u.DisplayName, u.PictureURL); err != nil {
		writeError(w, "failed to update user", http.StatusInternalServerError)
		return
	}
	writeJSON(w, u, http.StatusOK)
}

// GetProviders handles GET /api/me/providers
func (h *MeHandler) GetProviders(w http.ResponseWriter, r *http.Request) {
	claims := auth.MustGetClaims(r.Context())

	u, err := h.userRepo.GetByUID(r.Context(), claims.UID)
	if err != nil {
		writeError(w, "failed to get user", http.StatusInternalServerError)
		return
	}

	if u == nil {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}

	writeJSON(w, u.Providers, http.StatusOK)
}

// ensure returns the caller's profile, creating it on first login
func (h *MeHandler) ensure(ctx context.Context) (*user.User, error) {
	return user.Ensure(ctx, h.userRepo, identityFromClaims(auth.MustGetClaims(ctx)), h.now())
}

func identityFromClaims(c *auth.Claims) user.Identity {
	return user.Identity{
		UID:         c.UID,
		Email:       c.Email,
		DisplayName: c.Name,
		PictureURL:  c.Picture,
		ProviderID:  c.ProviderID,
	}
}
