package api

import (
	"net/http"

	"github.com/recaphq/recap-api/internal/api/shared"
	"github.com/recaphq/recap-api/internal/service"
)

// CreateAvatarRequest is the body of POST /api/avatar/tasks.
type CreateAvatarRequest struct {
	SummaryID string `json:"summaryId" validate:"required,uuid"`
}

// AvatarHandler serves avatar task admission and status.
type AvatarHandler struct {
	avatars service.AvatarService
}

// NewAvatarHandler creates an AvatarHandler.
func NewAvatarHandler(avatars service.AvatarService) *AvatarHandler {
	return &AvatarHandler{avatars: avatars}
}

// CreateTask handles POST /api/avatar/tasks.
func (h *AvatarHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req CreateAvatarRequest
	if !decodeBody(w, r, &req) {
		return
	}
	summaryID, err := parseUUID(req.SummaryID, "summaryId")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	created, err := h.avatars.CreateTask(r.Context(), userID, summaryID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create avatar task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, created)
}

// GetTask handles GET /api/avatar/tasks/{id}.
func (h *AvatarHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	view, err := h.avatars.GetStatus(r.Context(), userID, id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get avatar task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, view)
}
