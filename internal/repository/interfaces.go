// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/deckman/internal/model"
)

// ErrStateConflict は学習状態のcompare-and-setが他の更新と競合したことを示す。
// 呼び出し側は最新状態を読み直して再試行する。
var ErrStateConflict = errors.New("user deck state was modified concurrently")

// ErrDuplicateState は既に登録済みの(ユーザー, デッキ)ペアへの再登録を示す。
var ErrDuplicateState = errors.New("user deck state already exists")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// Ensure はユーザーが存在しなければデフォルト値で作成する。
	// 既存の場合は何も変更しない（冪等）。作成した場合はtrueを返す。
	Ensure(ctx context.Context, user *model.User) (bool, error)

	// UpdateSendTime はユーザーローカルの通知時刻（HH:MM）を更新する。
	UpdateSendTime(ctx context.Context, id int64, sendTime string) error

	// ListAll は全ユーザーを返す。リマインダーワーカーが使用する。
	ListAll(ctx context.Context) ([]*model.User, error)

	// MarkReminded は最後にリマインドを送ったユーザーローカル日を記録する。
	MarkReminded(ctx context.Context, id int64, day time.Time) error
}

// DeckRepository はデッキデータの読み取りインターフェース。
// デッキの作成・変更はコンテンツ管理側の責務のため、このコアは読み取りのみを行う。
type DeckRepository interface {
	// FindByUnit はユニットコードでデッキを取得する。見つからない場合はnilを返す。
	FindByUnit(ctx context.Context, unit string) (*model.Deck, error)

	// ListAll は全デッキをユニットコード順で返す（アーカイブ済みを含む）。
	ListAll(ctx context.Context) ([]*model.Deck, error)
}

// DueDeck は期限が到来したデッキと期日の組。
type DueDeck struct {
	DeckID     int64
	Unit       string
	Title      string
	QuizletURL string
	NextDue    time.Time
}

// DeckSchedule は学習中デッキの予定一覧の1行。統計表示に使用する。
type DeckSchedule struct {
	DeckID  int64
	Unit    string
	Title   string
	NextDue *time.Time
}

// StateRepository は(ユーザー, デッキ)ペアごとの最新学習状態を保持する。
// 変更経路はEnrollとApplyEventのみで、ApplyEventのCASが唯一の直列化ポイントとなる。
type StateRepository interface {
	// Get は指定ペアの学習状態を取得する。見つからない場合はnilを返す。
	Get(ctx context.Context, userID, deckID int64) (*model.UserDeckState, error)

	// Enroll は登録時デフォルトの学習状態を作成する。
	// 既に行が存在する場合はErrDuplicateStateを返し、既存状態には触れない。
	Enroll(ctx context.Context, state *model.UserDeckState) error

	// ApplyEvent はイベントの追記と学習状態のcompare-and-set更新を
	// 同一トランザクションで行う。期待状態が一致しない場合は何も永続化せず
	// ErrStateConflictを返す（孤児イベントを残さない）。
	// 成功時は採番されたイベントIDを返す。
	ApplyEvent(ctx context.Context, event *model.Event, expected, next model.MemoryState) (int64, error)

	// ListDue はnext_dueがasOf以前の、学習中かつ非アーカイブのデッキを
	// next_due昇順・deck_id昇順で返す。
	ListDue(ctx context.Context, userID int64, asOf time.Time) ([]DueDeck, error)

	// ListSchedule はユーザーの学習中デッキの予定一覧を返す。
	// next_dueの近い順（未設定は最後）、同値はユニットコード順。
	ListSchedule(ctx context.Context, userID int64) ([]DeckSchedule, error)

	// SetActiveAll は指定デッキを全ユーザーに対して有効/無効にする。
	// 新規行はデフォルト状態で作成し、即日レビュー対象にする。
	// 影響した行数を返す。
	SetActiveAll(ctx context.Context, deckID int64, active bool, due time.Time) (int, error)

	// BumpAll は指定デッキの全学習中ペアのnext_dueを指定日に設定する。
	// 影響した行数を返す。
	BumpAll(ctx context.Context, deckID int64, due time.Time) (int, error)
}

// EventRepository は追記専用イベントログの読み取りインターフェース。
// 書き込みはStateRepository.ApplyEventを通してのみ行われる。
type EventRepository interface {
	// ReplayFrom は指定ペアの全イベントを(ts, id)昇順で返す。
	// 監査と状態再構築の検証に使用する。
	ReplayFrom(ctx context.Context, userID, deckID int64) ([]*model.Event, error)

	// CountByActionSince は指定時刻以降のイベント数をアクション別に集計する。
	CountByActionSince(ctx context.Context, userID int64, since time.Time) (map[model.Action]int, error)
}
