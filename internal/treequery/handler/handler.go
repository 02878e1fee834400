package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"matrixpay/internal/platform/middleware"
	"matrixpay/internal/stage"
	"matrixpay/internal/transport/http/shared"
	"matrixpay/internal/treequery"
	id "matrixpay/pkg/domain"
	dErrors "matrixpay/pkg/domain-errors"
)

// Service defines the read-side tree operations the HTTP layer needs.
type Service interface {
	ViewMatrix(ctx context.Context, rootID id.MemberID, stageNumber, depthLimit int) (treequery.MatrixView, error)
	DrillInto(ctx context.Context, currentRootID, targetID id.MemberID, stageNumber, depthLimit int) (treequery.MatrixView, error)
	StageCompletions(ctx context.Context, memberID id.MemberID) ([]stage.Completion, error)
}

// Graph answers the downline check used to authorize reads of other members.
type Graph interface {
	IsDescendant(ctx context.Context, rootID, targetID id.MemberID) (bool, error)
}

// Handler serves matrix views, drill-downs, and stage histories.
type Handler struct {
	trees        Service
	graph        Graph
	logger       *slog.Logger
	jwtValidator middleware.JWTValidator
}

func New(trees Service, graph Graph, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		trees:        trees,
		graph:        graph,
		logger:       logger,
		jwtValidator: jwtValidator,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Get("/members/{memberID}/matrix", h.handleMatrix)
		r.Get("/members/{memberID}/matrix/{targetID}", h.handleDrillInto)
		r.Get("/members/{memberID}/stages", h.handleStages)
	})
}

type occupantResponse struct {
	MemberID        string `json:"member_id"`
	DisplayName     string `json:"display_name"`
	Handle          string `json:"handle"`
	CompletedPrereq bool   `json:"completed_prereq"`
	Commissioned    bool   `json:"commissioned"`
}

type slotResponse struct {
	Level    int               `json:"level"`
	Index    int               `json:"index"`
	State    string            `json:"state"`
	Occupant *occupantResponse `json:"occupant,omitempty"`
}

type matrixResponse struct {
	RootID        string         `json:"root_id"`
	Stage         int            `json:"stage"`
	FilledSlots   int            `json:"filled_slots"`
	RequiredSlots int            `json:"required_slots"`
	IsComplete    bool           `json:"is_complete"`
	Slots         []slotResponse `json:"slots"`
}

type completionResponse struct {
	Stage       int    `json:"stage"`
	CompletedAt string `json:"completed_at"`
}

func (h *Handler) handleMatrix(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	memberID, err := id.ParseMemberID(chi.URLParam(r, "memberID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	stageNumber, depthLimit, err := matrixParams(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	requesterID, err := h.authorize(ctx, memberID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var view treequery.MatrixView
	if requesterID == memberID {
		view, err = h.trees.ViewMatrix(ctx, memberID, stageNumber, depthLimit)
	} else {
		view, err = h.trees.DrillInto(ctx, requesterID, memberID, stageNumber, depthLimit)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "matrix view failed",
			"request_id", middleware.GetRequestID(ctx),
			"member_id", memberID.String(),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toMatrixResponse(view))
}

func (h *Handler) handleDrillInto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	memberID, err := id.ParseMemberID(chi.URLParam(r, "memberID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	targetID, err := id.ParseMemberID(chi.URLParam(r, "targetID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	stageNumber, depthLimit, err := matrixParams(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if _, err := h.authorize(ctx, memberID); err != nil {
		shared.WriteError(w, err)
		return
	}

	view, err := h.trees.DrillInto(ctx, memberID, targetID, stageNumber, depthLimit)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeForbidden) {
			shared.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "drill-down failed",
			"request_id", middleware.GetRequestID(ctx),
			"member_id", memberID.String(),
			"target_id", targetID.String(),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toMatrixResponse(view))
}

func (h *Handler) handleStages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	memberID, err := id.ParseMemberID(chi.URLParam(r, "memberID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if _, err := h.authorize(ctx, memberID); err != nil {
		shared.WriteError(w, err)
		return
	}

	completions, err := h.trees.StageCompletions(ctx, memberID)
	if err != nil {
		h.logger.ErrorContext(ctx, "stage history failed",
			"request_id", middleware.GetRequestID(ctx),
			"member_id", memberID.String(),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	body := make([]completionResponse, 0, len(completions))
	for _, c := range completions {
		body = append(body, completionResponse{
			Stage:       c.Stage,
			CompletedAt: c.CompletedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"completions": body})
}

// authorize resolves the authenticated member and checks they may read
// memberID's data: themselves, or anyone in their downline.
func (h *Handler) authorize(ctx context.Context, memberID id.MemberID) (id.MemberID, error) {
	requesterID, err := id.ParseMemberID(middleware.GetMemberID(ctx))
	if err != nil {
		return id.MemberID{}, dErrors.New(dErrors.CodeUnauthorized, "missing authenticated member")
	}
	if requesterID == memberID {
		return requesterID, nil
	}
	ok, err := h.graph.IsDescendant(ctx, requesterID, memberID)
	if err != nil {
		return id.MemberID{}, err
	}
	if !ok {
		return id.MemberID{}, dErrors.New(dErrors.CodeForbidden, "member is not in the requester's downline")
	}
	return requesterID, nil
}

func matrixParams(r *http.Request) (stageNumber, depthLimit int, err error) {
	stageNumber = stage.MinStage
	if raw := r.URL.Query().Get("stage"); raw != "" {
		stageNumber, err = strconv.Atoi(raw)
		if err != nil || stageNumber < stage.MinStage || stageNumber > stage.MaxStage {
			return 0, 0, dErrors.New(dErrors.CodeInvalidInput, "stage must be between 1 and 6")
		}
	}
	if raw := r.URL.Query().Get("depth"); raw != "" {
		depthLimit, err = strconv.Atoi(raw)
		if err != nil || depthLimit < 0 {
			return 0, 0, dErrors.New(dErrors.CodeInvalidInput, "depth must be a non-negative integer")
		}
	}
	return stageNumber, depthLimit, nil
}

func toMatrixResponse(view treequery.MatrixView) matrixResponse {
	resp := matrixResponse{
		RootID:        view.Root.ID.String(),
		Stage:         view.Stage,
		FilledSlots:   view.FilledSlots,
		RequiredSlots: view.RequiredSlots,
		IsComplete:    view.IsComplete,
		Slots:         make([]slotResponse, 0, len(view.Slots)),
	}
	for _, slot := range view.Slots {
		sv := slotResponse{Level: slot.Level, Index: slot.Index, State: string(slot.State)}
		if slot.Occupant != nil {
			sv.Occupant = &occupantResponse{
				MemberID:        slot.Occupant.Member.ID.String(),
				DisplayName:     slot.Occupant.Member.DisplayName,
				Handle:          slot.Occupant.Member.Handle,
				CompletedPrereq: slot.Occupant.CompletedPrereq,
				Commissioned:    slot.Occupant.Commissioned,
			}
		}
		resp.Slots = append(resp.Slots, sv)
	}
	return resp
}
