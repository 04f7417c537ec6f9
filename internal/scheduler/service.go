// Package scheduler はレビュー結果の記録と期限到来デッキの問い合わせを
// 取りまとめるサービス層を提供する。
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/deckman/internal/model"
	"github.com/hitoshi/deckman/internal/repository"
	"github.com/hitoshi/deckman/internal/srs"
)

// DefaultMaxAttempts はCAS競合時の再試行回数の既定値。
const DefaultMaxAttempts = 3

// MetricsRecorder はサービス層が記録するメトリクスのインターフェース。
type MetricsRecorder interface {
	RecordActionApplied(action string)
	RecordContentionRetry()
	RecordContentionExhausted()
	RecordDueQuery()
}

// Service はスケジューリングのサービス層。
// 1件の「レビュー結果を記録する」論理トランザクションと、期限到来デッキの
// 問い合わせ、イベント再生による状態検証を提供する。
type Service struct {
	userRepo    repository.UserRepository
	deckRepo    repository.DeckRepository
	stateRepo   repository.StateRepository
	eventRepo   repository.EventRepository
	params      srs.Params
	maxAttempts int
	metrics     MetricsRecorder
}

// NewService はServiceの新しいインスタンスを生成する。
// maxAttemptsが0以下の場合はDefaultMaxAttemptsを使用する。metricsはnil可。
func NewService(
	userRepo repository.UserRepository,
	deckRepo repository.DeckRepository,
	stateRepo repository.StateRepository,
	eventRepo repository.EventRepository,
	params srs.Params,
	maxAttempts int,
	metrics MetricsRecorder,
) *Service {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Service{
		userRepo:    userRepo,
		deckRepo:    deckRepo,
		stateRepo:   stateRepo,
		eventRepo:   eventRepo,
		params:      params,
		maxAttempts: maxAttempts,
		metrics:     metrics,
	}
}

// RecordAction はレビュー結果を1件記録し、新しい期日を返す。
//
// 現在状態の読み取り → srsによる次状態の計算 → イベント追記と状態の
// compare-and-set適用、を1回の試行とし、競合時は最新状態で読み直して
// 再試行する。再試行はmaxAttempts回で打ち切り、Contentionエラーを返す。
// イベントが黙って失われることはない。
func (s *Service) RecordAction(ctx context.Context, userID int64, unit string, action model.Action, ts time.Time) (*time.Time, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	deck, err := s.deckRepo.FindByUnit(ctx, unit)
	if err != nil {
		return nil, fmt.Errorf("デッキの取得に失敗しました: %w", err)
	}
	if deck == nil {
		return nil, model.NewDeckNotFoundError(unit)
	}

	// イベントの発生日はユーザーのタイムゾーンにおけるカレンダー日で決まる
	eventDay := model.LocalDay(ts, user.Location())

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		state, err := s.stateRepo.Get(ctx, userID, deck.ID)
		if err != nil {
			return nil, fmt.Errorf("学習状態の取得に失敗しました: %w", err)
		}
		if state == nil || !state.Active {
			return nil, model.NewNotEnrolledError(unit)
		}

		next := s.params.Next(state.Memory(), action, eventDay)

		event := &model.Event{
			UserID: userID,
			DeckID: deck.ID,
			TS:     ts,
			Action: action,
		}

		_, err = s.stateRepo.ApplyEvent(ctx, event, state.Memory(), next)
		if errors.Is(err, repository.ErrStateConflict) {
			// 他のRecordActionが先行した。最新状態で読み直して再試行する
			if s.metrics != nil {
				s.metrics.RecordContentionRetry()
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("イベントの適用に失敗しました: %w", err)
		}

		if s.metrics != nil {
			s.metrics.RecordActionApplied(string(action))
		}
		return next.NextDue, nil
	}

	if s.metrics != nil {
		s.metrics.RecordContentionExhausted()
	}
	return nil, model.NewContentionError(unit)
}

// Enroll はデッキを学習対象に登録し、登録時デフォルトの学習状態を返す。
// 既に登録済みの場合はAlreadyEnrolledエラーを返し、既存状態は変更しない。
// アーカイブ済みデッキには登録できない。
func (s *Service) Enroll(ctx context.Context, userID int64, unit string) (*model.UserDeckState, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	deck, err := s.deckRepo.FindByUnit(ctx, unit)
	if err != nil {
		return nil, fmt.Errorf("デッキの取得に失敗しました: %w", err)
	}
	if deck == nil {
		return nil, model.NewDeckNotFoundError(unit)
	}
	if deck.Archived {
		return nil, model.NewDeckArchivedError(unit)
	}

	state := model.NewEnrollmentState(userID, deck.ID, time.Now().UTC())
	if err := s.stateRepo.Enroll(ctx, state); err != nil {
		if errors.Is(err, repository.ErrDuplicateState) {
			return nil, model.NewAlreadyEnrolledError(unit)
		}
		return nil, fmt.Errorf("学習対象への登録に失敗しました: %w", err)
	}

	return state, nil
}

// ListDue は指定日時点で期限が到来している学習中デッキを返す。
// 結果はnext_due昇順・デッキID昇順で、アーカイブ済みデッキは含まない。
func (s *Service) ListDue(ctx context.Context, userID int64, asOf time.Time) ([]repository.DueDeck, error) {
	if s.metrics != nil {
		s.metrics.RecordDueQuery()
	}
	due, err := s.stateRepo.ListDue(ctx, userID, asOf)
	if err != nil {
		return nil, fmt.Errorf("期限到来デッキの取得に失敗しました: %w", err)
	}
	return due, nil
}

// ListDueToday はユーザーローカルの今日時点で期限が到来している学習中デッキを返す。
// 「今日」はユーザーのタイムゾーンで解決する。
func (s *Service) ListDueToday(ctx context.Context, userID int64, now time.Time) ([]repository.DueDeck, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	today := model.LocalDay(now, user.Location())
	return s.ListDue(ctx, userID, today)
}

// TodayDeck はユーザーローカルの今日時点で最初に期限が到来しているデッキを返す。
// 該当がない場合はnilを返す。
func (s *Service) TodayDeck(ctx context.Context, userID int64, now time.Time) (*repository.DueDeck, error) {
	due, err := s.ListDueToday(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		return nil, nil
	}
	return &due[0], nil
}

// ReplayReport はイベント再生と保存状態の照合結果。
type ReplayReport struct {
	Stored   model.MemoryState
	Replayed model.MemoryState
	Matches  bool
	Events   int
}

// Rebuild は指定ペアの全イベントを登録時デフォルトから再生し、
// 保存されている学習状態と照合する。監査と障害復旧の検証に使用する。
func (s *Service) Rebuild(ctx context.Context, userID int64, unit string) (*ReplayReport, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	deck, err := s.deckRepo.FindByUnit(ctx, unit)
	if err != nil {
		return nil, fmt.Errorf("デッキの取得に失敗しました: %w", err)
	}
	if deck == nil {
		return nil, model.NewDeckNotFoundError(unit)
	}

	state, err := s.stateRepo.Get(ctx, userID, deck.ID)
	if err != nil {
		return nil, fmt.Errorf("学習状態の取得に失敗しました: %w", err)
	}
	if state == nil {
		return nil, model.NewNotEnrolledError(unit)
	}

	events, err := s.eventRepo.ReplayFrom(ctx, userID, deck.ID)
	if err != nil {
		return nil, fmt.Errorf("イベント履歴の取得に失敗しました: %w", err)
	}

	replayed := s.params.Replay(events, user.Location())
	stored := state.Memory()

	return &ReplayReport{
		Stored:   stored,
		Replayed: replayed,
		Matches:  memoryStateEqual(stored, replayed),
		Events:   len(events),
	}, nil
}

// Stats はユーザーの直近30日のアクション集計と学習予定一覧を返す。
func (s *Service) Stats(ctx context.Context, userID int64, now time.Time) (*StatsReport, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	counts, err := s.eventRepo.CountByActionSince(ctx, userID, now.AddDate(0, 0, -30))
	if err != nil {
		return nil, fmt.Errorf("アクション集計の取得に失敗しました: %w", err)
	}

	schedule, err := s.stateRepo.ListSchedule(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("学習予定一覧の取得に失敗しました: %w", err)
	}

	return &StatsReport{
		Worked:   counts[model.ActionWorked],
		Abit:     counts[model.ActionAbit],
		Didnt:    counts[model.ActionDidnt],
		Schedule: schedule,
	}, nil
}

// StatsReport は直近30日のアクション集計と学習予定の組。
type StatsReport struct {
	Worked   int
	Abit     int
	Didnt    int
	Schedule []repository.DeckSchedule
}

// memoryStateEqual は2つの記憶状態の同値性を判定する。
// 再生は保存時と同一の浮動小数点演算列をたどるため、厳密比較で一致する。
func memoryStateEqual(a, b model.MemoryState) bool {
	if a.Difficulty != b.Difficulty || a.Stability != b.Stability {
		return false
	}
	if (a.NextDue == nil) != (b.NextDue == nil) {
		return false
	}
	if a.NextDue != nil && !a.NextDue.Equal(*b.NextDue) {
		return false
	}
	return true
}
