package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/deckman/internal/middleware"
	"github.com/hitoshi/deckman/internal/model"
)

// DeckServiceInterface はデッキハンドラーが必要とするサービスインターフェース。
type DeckServiceInterface interface {
	// ListDecks は全デッキをunit順で返す。
	ListDecks(ctx context.Context) ([]*model.Deck, error)
}

// DeckHandler はデッキ一覧のHTTPハンドラー。
type DeckHandler struct {
	service DeckServiceInterface
}

// NewDeckHandler はDeckHandlerを生成する。
func NewDeckHandler(service DeckServiceInterface) *DeckHandler {
	return &DeckHandler{
		service: service,
	}
}

// deckResponse はデッキ情報のAPIレスポンス。
type deckResponse struct {
	Unit       string `json:"unit"`
	Title      string `json:"title"`
	QuizletURL string `json:"quizlet_url,omitempty"`
	Archived   bool   `json:"archived"`
}

// ListDecks は全デッキ一覧を取得する。
// GET /api/decks
func (h *DeckHandler) ListDecks(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.UserIDFromContext(r.Context()); err != nil {
		writeUnauthorized(w)
		return
	}

	decks, err := h.service.ListDecks(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]deckResponse, len(decks))
	for i, deck := range decks {
		results[i] = deckResponse{
			Unit:       deck.Unit,
			Title:      deck.Title,
			QuizletURL: deck.QuizletURL,
			Archived:   deck.Archived,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}
