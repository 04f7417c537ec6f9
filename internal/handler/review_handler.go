package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/deckman/internal/middleware"
	"github.com/hitoshi/deckman/internal/model"
	"github.com/hitoshi/deckman/internal/repository"
	"github.com/hitoshi/deckman/internal/scheduler"
)

// SchedulerServiceInterface はレビューハンドラーが必要とするサービスインターフェース。
type SchedulerServiceInterface interface {
	// RecordAction はレビュー結果を記録し、新しい期日を返す。
	RecordAction(ctx context.Context, userID int64, unit string, action model.Action, ts time.Time) (*time.Time, error)
	// Enroll はユーザーをデッキに登録する。
	Enroll(ctx context.Context, userID int64, unit string) (*model.UserDeckState, error)
	// ListDue は期限到来デッキを期日昇順で返す。
	ListDue(ctx context.Context, userID int64, asOf time.Time) ([]repository.DueDeck, error)
	// ListDueToday はユーザーローカルの今日を基準に期限到来デッキを返す。
	ListDueToday(ctx context.Context, userID int64, now time.Time) ([]repository.DueDeck, error)
	// TodayDeck は今日レビューすべき先頭のデッキを返す。
	TodayDeck(ctx context.Context, userID int64, now time.Time) (*repository.DueDeck, error)
	// Stats は直近のアクション集計とスケジュール一覧を返す。
	Stats(ctx context.Context, userID int64, now time.Time) (*scheduler.StatsReport, error)
	// Rebuild はイベント履歴の再生と保存状態の照合結果を返す。
	Rebuild(ctx context.Context, userID int64, unit string) (*scheduler.ReplayReport, error)
}

// ReviewHandler はレビュー記録と期日照会のHTTPハンドラー。
type ReviewHandler struct {
	service SchedulerServiceInterface
}

// NewReviewHandler はReviewHandlerを生成する。
func NewReviewHandler(service SchedulerServiceInterface) *ReviewHandler {
	return &ReviewHandler{
		service: service,
	}
}

// actionRequest はレビュー記録リクエストのボディ。
// tsを省略した場合はサーバー時刻を使用する。
type actionRequest struct {
	Action string     `json:"action"`
	TS     *time.Time `json:"ts,omitempty"`
}

// actionResponse はレビュー記録のAPIレスポンス。
type actionResponse struct {
	Unit    string `json:"unit"`
	Action  string `json:"action"`
	NextDue string `json:"next_due"`
}

// dueDeckResponse は期限到来デッキのAPIレスポンス。
type dueDeckResponse struct {
	Unit       string `json:"unit"`
	Title      string `json:"title"`
	QuizletURL string `json:"quizlet_url,omitempty"`
	NextDue    string `json:"next_due"`
}

// enrollResponse はデッキ登録のAPIレスポンス。
type enrollResponse struct {
	Unit       string  `json:"unit"`
	Difficulty float64 `json:"difficulty"`
	Stability  float64 `json:"stability"`
	NextDue    *string `json:"next_due"`
}

// scheduleEntryResponse はデッキごとの期日のAPIレスポンス。
type scheduleEntryResponse struct {
	Unit    string  `json:"unit"`
	Title   string  `json:"title"`
	NextDue *string `json:"next_due"`
}

// statsResponse は学習統計のAPIレスポンス。
type statsResponse struct {
	Worked   int                     `json:"worked"`
	Abit     int                     `json:"abit"`
	Didnt    int                     `json:"didnt"`
	Schedule []scheduleEntryResponse `json:"schedule"`
}

// RecordAction はレビュー結果を記録する。
// POST /api/decks/{unit}/actions
func (h *ReviewHandler) RecordAction(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	unit := chi.URLParam(r, "unit")

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	action, err := model.ParseAction(req.Action)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	ts := time.Now()
	if req.TS != nil {
		ts = *req.TS
	}

	nextDue, err := h.service.RecordAction(r.Context(), userID, unit, action, ts)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(actionResponse{
		Unit:    unit,
		Action:  string(action),
		NextDue: nextDue.Format(model.DateLayout),
	})
}

// Enroll はユーザーをデッキに登録する。
// POST /api/decks/{unit}/enroll
func (h *ReviewHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	unit := chi.URLParam(r, "unit")

	state, err := h.service.Enroll(r.Context(), userID, unit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(enrollResponse{
		Unit:       unit,
		Difficulty: state.Difficulty,
		Stability:  state.Stability,
		NextDue:    formatDuePtr(state.NextDue),
	})
}

// ListDue は期限到来デッキ一覧を取得する。
// GET /api/reviews/due?as_of=YYYY-MM-DD
func (h *ReviewHandler) ListDue(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var due []repository.DueDeck
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		asOf, parseErr := time.Parse(model.DateLayout, raw)
		if parseErr != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_REQUEST",
				Message:  "as_ofの形式が不正です。",
				Category: "validation",
				Action:   "YYYY-MM-DD形式で指定してください。",
			})
			return
		}
		due, err = h.service.ListDue(r.Context(), userID, asOf)
	} else {
		// as_of省略時はユーザーローカルの今日を基準にする
		due, err = h.service.ListDueToday(r.Context(), userID, time.Now())
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]dueDeckResponse, len(due))
	for i, d := range due {
		results[i] = toDueDeckResponse(d)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// Today は今日レビューすべき先頭のデッキを取得する。
// GET /api/reviews/today
func (h *ReviewHandler) Today(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	deck, err := h.service.TodayDeck(r.Context(), userID, time.Now())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if deck == nil {
		// レビュー対象なし
		w.WriteHeader(http.StatusNoContent)
		return
	}
	json.NewEncoder(w).Encode(toDueDeckResponse(*deck))
}

// Stats は学習統計を取得する。
// GET /api/stats
func (h *ReviewHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	report, err := h.service.Stats(r.Context(), userID, time.Now())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	schedule := make([]scheduleEntryResponse, len(report.Schedule))
	for i, entry := range report.Schedule {
		schedule[i] = scheduleEntryResponse{
			Unit:    entry.Unit,
			Title:   entry.Title,
			NextDue: formatDuePtr(entry.NextDue),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statsResponse{
		Worked:   report.Worked,
		Abit:     report.Abit,
		Didnt:    report.Didnt,
		Schedule: schedule,
	})
}

// --- ヘルパー関数 ---

// toDueDeckResponse はrepository.DueDeckからAPIレスポンスに変換する。
func toDueDeckResponse(d repository.DueDeck) dueDeckResponse {
	return dueDeckResponse{
		Unit:       d.Unit,
		Title:      d.Title,
		QuizletURL: d.QuizletURL,
		NextDue:    d.NextDue.Format(model.DateLayout),
	}
}

// formatDuePtr はnull許容の期日をYYYY-MM-DD文字列に変換する。
func formatDuePtr(due *time.Time) *string {
	if due == nil {
		return nil
	}
	s := due.Format(model.DateLayout)
	return &s
}
