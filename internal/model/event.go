package model

import "time"

// Action はレビュー結果としてユーザーが報告するフィードバックの種別。
type Action string

const (
	// ActionWorked は容易に思い出せたことを示す。
	ActionWorked Action = "worked"
	// ActionAbit は努力して思い出せたことを示す。
	ActionAbit Action = "abit"
	// ActionDidnt は思い出せなかったことを示す。
	ActionDidnt Action = "didnt"
)

// ParseAction は文字列をActionに解析する。
// 認識できない値の場合はInvalidActionエラーを返す。
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionWorked, ActionAbit, ActionDidnt:
		return Action(s), nil
	default:
		return "", NewInvalidActionError(s)
	}
}

// Event は報告されたレビュー結果の追記専用の事実を表す。
// 一度記録されたイベントは更新も削除もされない。
// 順序は(ts, ID)の昇順で定まる（同時刻は挿入順で決着する）。
type Event struct {
	ID     int64
	UserID int64
	DeckID int64
	TS     time.Time
	Action Action
}
