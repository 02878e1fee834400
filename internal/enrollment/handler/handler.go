package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"matrixpay/internal/enrollment"
	"matrixpay/internal/platform/middleware"
	"matrixpay/internal/transport/http/shared"
	dErrors "matrixpay/pkg/domain-errors"
)

// Service defines the interface for enrollment operations.
type Service interface {
	ProcessMemberJoined(ctx context.Context, event enrollment.JoinEvent) error
}

// Handler receives the registration flow's boundary events over HTTP.
type Handler struct {
	enrollment Service
	logger     *slog.Logger
	eventToken string
}

func New(enrollment Service, logger *slog.Logger, eventToken string) *Handler {
	return &Handler{enrollment: enrollment, logger: logger, eventToken: eventToken}
}

// Register mounts the event routes. Callers are trusted services, not
// members, so the guard is the shared event token.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireEventToken(h.eventToken, h.logger))
		r.Post("/events/member-joined", h.handleMemberJoined)
	})
}

type memberJoinedRequest struct {
	MemberID    string `json:"member_id,omitempty"`
	DisplayName string `json:"display_name"`
	Handle      string `json:"handle"`
	SponsorCode string `json:"sponsor_code,omitempty"`
}

func (h *Handler) handleMemberJoined(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req memberJoinedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid member-joined request",
			"request_id", requestID,
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	err := h.enrollment.ProcessMemberJoined(ctx, enrollment.JoinEvent{
		MemberID:    req.MemberID,
		DisplayName: req.DisplayName,
		Handle:      req.Handle,
		SponsorCode: req.SponsorCode,
	})
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInvalidSponsor) || dErrors.Is(err, dErrors.CodeInvalidInput) {
			h.logger.WarnContext(ctx, "member-joined rejected",
				"request_id", requestID,
				"error", err.Error(),
			)
			shared.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "member-joined failed",
			"request_id", requestID,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
