package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/deckman/internal/middleware"
	"github.com/hitoshi/deckman/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// EnsureUser はユーザーを登録する。既存の場合は登録済みのユーザーを返す。
	EnsureUser(ctx context.Context, userID int64) (*model.User, bool, error)
	// UpdateSendTime はリマインド時刻を変更する。
	UpdateSendTime(ctx context.Context, userID int64, value string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID       int64  `json:"id"`
	Timezone string `json:"timezone"`
	SendTime string `json:"send_time"`
	Locale   string `json:"locale"`
}

// sendTimeRequest はリマインド時刻変更リクエストのボディ。
type sendTimeRequest struct {
	SendTime string `json:"send_time"`
}

// EnsureUser は呼び出し元ユーザーを登録する。冪等。
// POST /api/users/me
func (h *UserHandler) EnsureUser(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	user, created, err := h.service.EnsureUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if created {
		w.WriteHeader(http.StatusCreated)
	}
	json.NewEncoder(w).Encode(userResponse{
		ID:       user.ID,
		Timezone: user.Timezone,
		SendTime: user.SendTime,
		Locale:   user.Locale,
	})
}

// UpdateSendTime は呼び出し元ユーザーのリマインド時刻を変更する。
// PUT /api/users/me/send-time
func (h *UserHandler) UpdateSendTime(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req sendTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if err := h.service.UpdateSendTime(r.Context(), userID, req.SendTime); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
