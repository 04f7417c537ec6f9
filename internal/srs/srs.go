// Package srs はデッキ単位の記憶状態（difficulty/stability）の更新規則を提供する。
// 副作用とI/Oを持たない純粋な写像であり、ストレージとは独立にテストできる。
package srs

import (
	"math"
	"time"

	"github.com/hitoshi/deckman/internal/model"
)

// Params は更新規則の調整可能な定数を保持する。
// 値域の制約（difficultyは[0,1]、stabilityは正の日数）は固定で、
// 係数のみがチューニング対象となる。
type Params struct {
	Growth       float64 // workedでの安定度成長係数。S' = S * (1 + Growth*(1-D))
	AbitFactor   float64 // abitでの安定度の小さな乗数
	LapsePenalty float64 // didntでの安定度の減衰率（1未満）
	EaseDelta    float64 // workedでのdifficulty減少量
	SmallDelta   float64 // abitでのdifficulty増加量
	LargeDelta   float64 // didntでのdifficulty増加量
	MinStability float64 // stabilityの下限（正の値）
	MinInterval  int     // 次回レビューまでの最短日数
}

// DefaultParams は既定の定数を返す。
func DefaultParams() Params {
	return Params{
		Growth:       0.7,
		AbitFactor:   1.05,
		LapsePenalty: 0.75,
		EaseDelta:    0.05,
		SmallDelta:   0.02,
		LargeDelta:   0.05,
		MinStability: 0.25,
		MinInterval:  1,
	}
}

// Next は現在の記憶状態とレビュー結果から次の記憶状態を計算する。
// eventDayはイベントが発生したユーザーローカルのカレンダー日。
// 初回レビュー（NextDueがnil）も登録時デフォルトを現在状態として同一に扱う。
//
// 更新後は常に difficulty ∈ [0,1]、stability >= MinStability が成り立ち、
// NextDueはeventDayより厳密に後の日付になる。
func (p Params) Next(current model.MemoryState, action model.Action, eventDay time.Time) model.MemoryState {
	d := current.Difficulty
	s := current.Stability

	switch action {
	case model.ActionWorked:
		// 難しい教材ほど成功時の成長が小さい
		s = s * (1 + p.Growth*(1-d))
		d = d - p.EaseDelta
	case model.ActionAbit:
		s = s * p.AbitFactor
		d = d + p.SmallDelta
	case model.ActionDidnt:
		s = s * p.LapsePenalty
		d = d + p.LargeDelta
	}

	d = clamp01(d)
	if s < p.MinStability {
		s = p.MinStability
	}

	interval := int(math.Round(s))
	if interval < p.MinInterval {
		interval = p.MinInterval
	}
	due := model.AddDays(eventDay, interval)

	return model.MemoryState{
		Difficulty: d,
		Stability:  s,
		NextDue:    &due,
	}
}

// Replay は登録時デフォルトからイベント列を順に適用した最終状態を返す。
// EventLogからの状態再構築と、保存状態との等価性検証に用いる。
// locは各イベントのタイムスタンプをローカル日に変換するために使う。
func (p Params) Replay(events []*model.Event, loc *time.Location) model.MemoryState {
	state := model.MemoryState{
		Difficulty: model.DefaultDifficulty,
		Stability:  model.DefaultStability,
	}
	for _, ev := range events {
		state = p.Next(state, ev.Action, model.LocalDay(ev.TS, loc))
	}
	return state
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
