package model

import "time"

// Deck は学習コンテンツの1単位（外部のフラッシュカードセット）を表す。
// デッキの作成・タイトル変更・アーカイブはコンテンツ管理側の責務であり、
// このコアからはarchivedフラグをフィルタとして尊重するのみ。
type Deck struct {
	ID         int64
	Unit       string // 全体で一意なユニットコード（例: "u-4"）
	Title      string
	QuizletURL string
	Archived   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
