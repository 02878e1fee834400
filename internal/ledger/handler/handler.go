package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"matrixpay/internal/ledger"
	"matrixpay/internal/platform/middleware"
	"matrixpay/internal/transport/http/shared"
	id "matrixpay/pkg/domain"
	dErrors "matrixpay/pkg/domain-errors"
)

// Service defines the ledger operations the HTTP layer needs.
type Service interface {
	Wallet(ctx context.Context, memberID id.MemberID) (ledger.Wallet, error)
	Commissions(ctx context.Context, memberID id.MemberID) ([]ledger.Commission, error)
	ApplyWithdrawal(ctx context.Context, memberID id.MemberID, amount int64, status ledger.WithdrawalStatus) (ledger.Withdrawal, error)
}

// Handler serves wallet queries and the payout workflow's withdrawal events.
type Handler struct {
	ledger       Service
	logger       *slog.Logger
	jwtValidator middleware.JWTValidator
	eventToken   string
}

func New(ledger Service, logger *slog.Logger, jwtValidator middleware.JWTValidator, eventToken string) *Handler {
	return &Handler{
		ledger:       ledger,
		logger:       logger,
		jwtValidator: jwtValidator,
		eventToken:   eventToken,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireEventToken(h.eventToken, h.logger))
		r.Post("/events/withdrawal", h.handleWithdrawal)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Get("/members/{memberID}/wallet", h.handleWallet)
	})
}

type withdrawalRequest struct {
	MemberID string `json:"member_id"`
	Amount   int64  `json:"amount"`
	Status   string `json:"status"`
}

type walletResponse struct {
	MemberID string `json:"member_id"`
	Balance  int64  `json:"balance"`
}

func (h *Handler) handleWithdrawal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	memberID, err := id.ParseMemberID(req.MemberID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	status := ledger.WithdrawalStatus(req.Status)
	withdrawal, err := h.ledger.ApplyWithdrawal(ctx, memberID, req.Amount, status)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInsufficientBalance) {
			h.logger.WarnContext(ctx, "withdrawal rejected, insufficient balance",
				"request_id", requestID,
				"member_id", memberID.String(),
				"amount", req.Amount,
			)
		} else {
			h.logger.ErrorContext(ctx, "withdrawal failed",
				"request_id", requestID,
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, map[string]string{
		"withdrawal_id": withdrawal.ID.String(),
		"status":        string(withdrawal.Status),
	})
}

func (h *Handler) handleWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	memberID, err := id.ParseMemberID(chi.URLParam(r, "memberID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	// Wallets are private: a member may only read their own.
	if middleware.GetMemberID(ctx) != memberID.String() {
		shared.WriteError(w, dErrors.New(dErrors.CodeForbidden, "cannot read another member's wallet"))
		return
	}

	wallet, err := h.ledger.Wallet(ctx, memberID)
	if err != nil {
		h.logger.ErrorContext(ctx, "wallet lookup failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, walletResponse{
		MemberID: wallet.MemberID.String(),
		Balance:  wallet.Balance,
	})
}
