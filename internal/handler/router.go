package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/deckman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	RateLimiter *middleware.RateLimiter
	AdminIDs    []int64
	Logger      *slog.Logger

	// サービス
	SchedulerService SchedulerServiceInterface
	DeckService      DeckServiceInterface
	AdminDeckService AdminDeckServiceInterface
	UserService      UserServiceInterface

	// 監視
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Identity → RateLimit(General)
//
// ヘルスチェックとメトリクスはミドルウェアチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}

	reviewHandler := NewReviewHandler(deps.SchedulerService)
	deckHandler := NewDeckHandler(deps.DeckService)
	userHandler := NewUserHandler(deps.UserService)
	adminHandler := NewAdminHandler(deps.AdminDeckService, deps.SchedulerService)

	// --- 認証不要のルート ---

	r.Get("/health", handleHealth)

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Identity → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware())
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ユーザー管理
		r.Route("/api/users/me", func(r chi.Router) {
			r.Post("/", userHandler.EnsureUser)
			r.Put("/send-time", userHandler.UpdateSendTime)
		})

		// デッキ管理
		r.Route("/api/decks", func(r chi.Router) {
			r.Get("/", deckHandler.ListDecks)

			r.Route("/{unit}", func(r chi.Router) {
				r.Post("/enroll", reviewHandler.Enroll)

				// POST /api/decks/{unit}/actions - レビュー記録（記録専用レート制限を追加）
				r.With(deps.RateLimiter.ActionMiddleware()).Post("/actions", reviewHandler.RecordAction)
			})
		})

		// レビュー照会
		r.Route("/api/reviews", func(r chi.Router) {
			r.Get("/due", reviewHandler.ListDue)
			r.Get("/today", reviewHandler.Today)
		})

		// 統計
		r.Get("/api/stats", reviewHandler.Stats)

		// 管理者向け一括操作
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.NewAdminMiddleware(deps.AdminIDs))

			r.Route("/decks/{unit}", func(r chi.Router) {
				r.Post("/assign-all", adminHandler.AssignAll)
				r.Post("/bump", adminHandler.Bump)
			})

			r.Post("/users/{userID}/decks/{unit}/rebuild", adminHandler.Rebuild)
		})
	})

	return r
}

// handleHealth はヘルスチェックエンドポイント。
// GET /health
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
