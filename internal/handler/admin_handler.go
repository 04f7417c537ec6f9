package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/deckman/internal/model"
)

// AdminDeckServiceInterface は管理者ハンドラーが必要とするサービスインターフェース。
type AdminDeckServiceInterface interface {
	// AssignAll は全ユーザーのデッキ登録状態を一括で切り替える。
	AssignAll(ctx context.Context, unit string, on bool, now time.Time) (int, error)
	// Bump は指定デッキの全登録者の期日を翌日に前倒しする。
	Bump(ctx context.Context, unit string, now time.Time) (int, error)
}

// AdminHandler は管理者向け一括操作のHTTPハンドラー。
// ルーティング側でAdminMiddlewareによる許可リスト検査を前提とする。
type AdminHandler struct {
	deckService  AdminDeckServiceInterface
	auditService SchedulerServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(deckService AdminDeckServiceInterface, auditService SchedulerServiceInterface) *AdminHandler {
	return &AdminHandler{
		deckService:  deckService,
		auditService: auditService,
	}
}

// assignAllRequest は一括割り当てリクエストのボディ。
type assignAllRequest struct {
	On bool `json:"on"`
}

// affectedResponse は一括操作の変更件数レスポンス。
type affectedResponse struct {
	Unit     string `json:"unit"`
	Affected int    `json:"affected"`
}

// rebuildResponse は再生照合のAPIレスポンス。
type rebuildResponse struct {
	Unit             string   `json:"unit"`
	Events           int      `json:"events"`
	Matches          bool     `json:"matches"`
	StoredStability  float64  `json:"stored_stability"`
	StoredDifficulty float64  `json:"stored_difficulty"`
	StoredNextDue    *string  `json:"stored_next_due"`
	ReplayStability  float64  `json:"replay_stability"`
	ReplayDifficulty float64  `json:"replay_difficulty"`
	ReplayNextDue    *string  `json:"replay_next_due"`
}

// AssignAll は全ユーザーへのデッキ一括割り当てを実行する。
// POST /api/admin/decks/{unit}/assign-all
func (h *AdminHandler) AssignAll(w http.ResponseWriter, r *http.Request) {
	unit := chi.URLParam(r, "unit")

	var req assignAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	affected, err := h.deckService.AssignAll(r.Context(), unit, req.On, time.Now())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(affectedResponse{
		Unit:     unit,
		Affected: affected,
	})
}

// Bump は指定デッキの期日一括前倒しを実行する。
// POST /api/admin/decks/{unit}/bump
func (h *AdminHandler) Bump(w http.ResponseWriter, r *http.Request) {
	unit := chi.URLParam(r, "unit")

	affected, err := h.deckService.Bump(r.Context(), unit, time.Now())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(affectedResponse{
		Unit:     unit,
		Affected: affected,
	})
}

// Rebuild は指定ユーザー・デッキのイベント再生照合を実行する。
// POST /api/admin/users/{userID}/decks/{unit}/rebuild
func (h *AdminHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	targetID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || targetID <= 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "ユーザーIDの形式が不正です。",
			Category: "validation",
			Action:   "数値のユーザーIDを指定してください。",
		})
		return
	}
	unit := chi.URLParam(r, "unit")

	report, err := h.auditService.Rebuild(r.Context(), targetID, unit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rebuildResponse{
		Unit:             unit,
		Events:           report.Events,
		Matches:          report.Matches,
		StoredStability:  report.Stored.Stability,
		StoredDifficulty: report.Stored.Difficulty,
		StoredNextDue:    formatDuePtr(report.Stored.NextDue),
		ReplayStability:  report.Replayed.Stability,
		ReplayDifficulty: report.Replayed.Difficulty,
		ReplayNextDue:    formatDuePtr(report.Replayed.NextDue),
	})
}
