// Package model はドメインモデルを定義する。
package model

import "time"

// User はリマインダーを受け取る学習者を表す。
// IDは外部メッセージング基盤（Telegram）の数値IDをそのまま用いる。
type User struct {
	ID             int64
	Timezone       string // IANAタイムゾーン名（例: "Atlantic/Madeira"）
	SendTime       string // ユーザーローカルの通知時刻（HH:MM）
	Locale         string
	LastRemindedOn *time.Time // 最後にリマインドを送ったユーザーローカル日。未送信ならnil
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Location はユーザーのタイムゾーンを返す。
// 解決できない場合はUTCにフォールバックする。
func (u *User) Location() *time.Location {
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
