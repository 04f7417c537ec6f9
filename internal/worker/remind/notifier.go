package remind

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/deckman/internal/model"
	"github.com/hitoshi/deckman/internal/repository"
	"github.com/hitoshi/deckman/internal/security"
)

// Notifier はリマインド通知の送信インターフェース。
type Notifier interface {
	// Notify は期限到来デッキの先頭をユーザーに通知する。
	// dueCountは当日の期限到来デッキの総数。
	Notify(ctx context.Context, user *model.User, deck repository.DueDeck, dueCount int) error
}

// webhookPayload はWebhook通知のJSONボディ。
type webhookPayload struct {
	UserID     int64  `json:"user_id"`
	Locale     string `json:"locale"`
	Unit       string `json:"unit"`
	Title      string `json:"title"`
	QuizletURL string `json:"quizlet_url,omitempty"`
	DueCount   int    `json:"due_count"`
}

// WebhookNotifier は設定されたWebhook URLへリマインドをPOSTする実装。
// SSRF防止クライアントを使用し、デッキタイトルはプレーンテキスト化して送信する。
type WebhookNotifier struct {
	url       string
	client    *http.Client
	sanitizer security.TextSanitizerService
}

// NewWebhookNotifier はWebhookNotifierの新しいインスタンスを生成する。
// URLの事前検証は呼び出し側（設定読み込み時）で行う。
func NewWebhookNotifier(url string, guard security.WebhookGuardService, sanitizer security.TextSanitizerService, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url:       url,
		client:    guard.NewSafeClient(timeout),
		sanitizer: sanitizer,
	}
}

// Notify はWebhook URLへリマインドをPOSTする。
func (n *WebhookNotifier) Notify(ctx context.Context, user *model.User, deck repository.DueDeck, dueCount int) error {
	payload := webhookPayload{
		UserID:     user.ID,
		Locale:     user.Locale,
		Unit:       deck.Unit,
		Title:      n.sanitizer.SanitizeText(deck.Title),
		QuizletURL: deck.QuizletURL,
		DueCount:   dueCount,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("通知ペイロードの生成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("通知リクエストの生成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("通知の送信に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("通知先がエラーを返しました: status=%d", resp.StatusCode)
	}

	return nil
}

// LogNotifier は通知内容をログに出力する実装。
// Webhook URLが未設定の環境で使用する。
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier はLogNotifierの新しいインスタンスを生成する。
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify は通知内容をログに出力する。
func (n *LogNotifier) Notify(ctx context.Context, user *model.User, deck repository.DueDeck, dueCount int) error {
	n.logger.Info("reminder",
		slog.Int64("user_id", user.ID),
		slog.String("unit", deck.Unit),
		slog.String("title", deck.Title),
		slog.Int("due_count", dueCount),
	)
	return nil
}
