package model

import "time"

// 学習状態の登録時デフォルト値。
const (
	DefaultDifficulty = 0.3
	DefaultStability  = 1.0
)

// UserDeckState は(ユーザー, デッキ)ペアごとの記憶状態を表す。
// StateUpdater（srsパッケージ）だけがこの状態を変化させる。
type UserDeckState struct {
	UserID     int64
	DeckID     int64
	Active     bool
	Difficulty float64    // [0,1]。高いほど定着しにくい
	Stability  float64    // 日数単位。常に正
	NextDue    *time.Time // ユーザーローカルのカレンダー日付。初回イベント前のみnil
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewEnrollmentState は登録時デフォルトの学習状態を生成する。
// NextDueは最初のイベントが記録されるまでnilのまま。
func NewEnrollmentState(userID, deckID int64, now time.Time) *UserDeckState {
	return &UserDeckState{
		UserID:     userID,
		DeckID:     deckID,
		Active:     true,
		Difficulty: DefaultDifficulty,
		Stability:  DefaultStability,
		NextDue:    nil,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// MemoryState はStateUpdaterの入出力となる純粋な記憶状態の組。
// 永続化の詳細（キーやタイムスタンプ）を含まない。
type MemoryState struct {
	Difficulty float64
	Stability  float64
	NextDue    *time.Time
}

// Memory は永続化された状態から純粋な記憶状態を取り出す。
func (s *UserDeckState) Memory() MemoryState {
	return MemoryState{
		Difficulty: s.Difficulty,
		Stability:  s.Stability,
		NextDue:    s.NextDue,
	}
}
