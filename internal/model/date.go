package model

import "time"

// DateLayout はカレンダー日付の文字列表現（DATE列とAPIの両方で使用）。
const DateLayout = "2006-01-02"

// LocalDay はタイムスタンプをlocのカレンダー日に丸めた値を返す。
// 返り値は常にUTC午前0時のtime.Timeで、日付の同値比較を単純にする。
func LocalDay(ts time.Time, loc *time.Location) time.Time {
	y, m, d := ts.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddDays はカレンダー日付にn日を加算する。
func AddDays(day time.Time, n int) time.Time {
	return day.AddDate(0, 0, n)
}

// DayEqual は2つの値が同じカレンダー日を指すか判定する。
func DayEqual(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
