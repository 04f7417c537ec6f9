// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, scheduling, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidAction   = "INVALID_ACTION"
	ErrCodeNotEnrolled     = "NOT_ENROLLED"
	ErrCodeDeckNotFound    = "DECK_NOT_FOUND"
	ErrCodeDeckArchived    = "DECK_ARCHIVED"
	ErrCodeAlreadyEnrolled = "ALREADY_ENROLLED"
	ErrCodeContention      = "CONTENTION"
	ErrCodeUserNotFound    = "USER_NOT_FOUND"
	ErrCodeInvalidSendTime = "INVALID_SEND_TIME"
	ErrCodeAdminOnly       = "ADMIN_ONLY"
)

// NewInvalidActionError は認識できないアクションのエラーを生成する。
// 受け付けるのは worked / abit / didnt の3種のみ。
func NewInvalidActionError(action string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAction,
		Message:  fmt.Sprintf("無効なアクションです: %s", action),
		Category: "validation",
		Action:   "アクションには worked、abit、didnt のいずれかを指定してください。",
	}
}

// NewNotEnrolledError は未登録の(ユーザー, デッキ)ペアに対する操作のエラーを生成する。
func NewNotEnrolledError(unit string) *APIError {
	return &APIError{
		Code:     ErrCodeNotEnrolled,
		Message:  fmt.Sprintf("このデッキは学習対象に登録されていません: %s", unit),
		Category: "scheduling",
		Action:   "先にデッキを学習対象に登録してください。",
	}
}

// NewDeckNotFoundError はデッキ未検出エラーを生成する。
func NewDeckNotFoundError(unit string) *APIError {
	return &APIError{
		Code:     ErrCodeDeckNotFound,
		Message:  fmt.Sprintf("指定されたデッキが見つかりません: %s", unit),
		Category: "scheduling",
		Action:   "ユニットコードを確認してください。",
	}
}

// NewDeckArchivedError はアーカイブ済みデッキへの登録エラーを生成する。
func NewDeckArchivedError(unit string) *APIError {
	return &APIError{
		Code:     ErrCodeDeckArchived,
		Message:  fmt.Sprintf("このデッキはアーカイブされています: %s", unit),
		Category: "scheduling",
		Action:   "アーカイブされていないデッキを指定してください。",
	}
}

// NewAlreadyEnrolledError は重複登録エラーを生成する。
// 呼び出し側は既存の学習状態をそのまま利用してよい（冪等な登録）。
func NewAlreadyEnrolledError(unit string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyEnrolled,
		Message:  fmt.Sprintf("このデッキは既に学習対象に登録されています: %s", unit),
		Category: "scheduling",
		Action:   "登録済みのデッキはそのまま学習を継続できます。",
	}
}

// NewContentionError はCAS再試行の上限超過エラーを生成する。
// イベントは破棄されないため、呼び出し側は時間をおいて再送すること。
func NewContentionError(unit string) *APIError {
	return &APIError{
		Code:     ErrCodeContention,
		Message:  fmt.Sprintf("同時更新の競合により記録できませんでした: %s", unit),
		Category: "scheduling",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "validation",
		Action:   "先にユーザー登録を行ってください。",
	}
}

// NewInvalidSendTimeError は通知時刻の形式エラーを生成する。
func NewInvalidSendTimeError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSendTime,
		Message:  fmt.Sprintf("無効な通知時刻です: %s", value),
		Category: "validation",
		Action:   "通知時刻は HH:MM 形式（例: 08:00）で指定してください。",
	}
}

// NewAdminOnlyError は管理者権限エラーを生成する。
func NewAdminOnlyError() *APIError {
	return &APIError{
		Code:     ErrCodeAdminOnly,
		Message:  "この操作には管理者権限が必要です。",
		Category: "validation",
		Action:   "管理者アカウントで操作してください。",
	}
}
