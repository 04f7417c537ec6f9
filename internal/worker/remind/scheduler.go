// Package remind はデイリーリマインドのバックグラウンド処理を提供する。
// スケジューラと通知送信を含む。
package remind

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/deckman/internal/model"
	"github.com/hitoshi/deckman/internal/repository"
)

// MetricsRecorder はリマインド処理のメトリクス収集インターフェース。
type MetricsRecorder interface {
	RecordReminderSent()
	RecordReminderFailure()
	RecordRemindLatency(duration time.Duration)
}

// Scheduler はデイリーリマインドのスケジューリングと並列制御を行う。
// ティッカーで全ユーザーを走査し、ユーザーのローカル時刻が設定時刻を過ぎていて
// 当日まだ送信していない場合に、期限到来デッキの先頭を通知する。
// semaphoreパターンで最大並列数を制御する。
type Scheduler struct {
	userRepo       repository.UserRepository
	stateRepo      repository.StateRepository
	notifier       Notifier
	logger         *slog.Logger
	metrics        MetricsRecorder
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。metricsはnil可。
func NewScheduler(
	userRepo repository.UserRepository,
	stateRepo repository.StateRepository,
	notifier Notifier,
	logger *slog.Logger,
	metrics MetricsRecorder,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Scheduler{
		userRepo:       userRepo,
		stateRepo:      stateRepo,
		notifier:       notifier,
		logger:         logger,
		metrics:        metrics,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("リマインドスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx, time.Now()); err != nil {
		s.logger.Error("リマインドサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("リマインドスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx, time.Now()); err != nil {
				s.logger.Error("リマインドサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は全ユーザーを1回走査し、送信対象者へ並列でリマインドを送信する。
// semaphoreパターンで並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) error {
	start := time.Now()

	users, err := s.userRepo.ListAll(ctx)
	if err != nil {
		return err
	}

	if len(users) == 0 {
		return nil
	}

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, u := range users {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(u *model.User) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.remindUser(ctx, u, now); err != nil {
				if s.metrics != nil {
					s.metrics.RecordReminderFailure()
				}
				s.logger.Error("リマインド送信に失敗しました",
					slog.Int64("user_id", u.ID),
					slog.String("error", err.Error()),
				)
			}
		}(u)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("リマインドサイクルが完了しました",
		slog.Int("user_count", len(users)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// remindUser は1ユーザーの送信判定と通知を行う。
// ローカル時刻が設定時刻前、当日送信済み、または期限到来デッキなしの場合は何もしない。
func (s *Scheduler) remindUser(ctx context.Context, u *model.User, now time.Time) error {
	loc := u.Location()
	localNow := now.In(loc)
	today := model.LocalDay(now, loc)

	if !sendTimeReached(localNow, u.SendTime) {
		return nil
	}
	if u.LastRemindedOn != nil && !u.LastRemindedOn.Before(today) {
		// 当日送信済み
		return nil
	}

	due, err := s.stateRepo.ListDue(ctx, u.ID, today)
	if err != nil {
		return fmt.Errorf("期限到来デッキの取得に失敗しました: %w", err)
	}
	if len(due) == 0 {
		// 送信対象なしの日も送信済みとして記録し、以降の走査をスキップする
		return s.userRepo.MarkReminded(ctx, u.ID, today)
	}

	notifyStart := time.Now()
	if err := s.notifier.Notify(ctx, u, due[0], len(due)); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordReminderSent()
		s.metrics.RecordRemindLatency(time.Since(notifyStart))
	}

	if err := s.userRepo.MarkReminded(ctx, u.ID, today); err != nil {
		return fmt.Errorf("送信記録の更新に失敗しました: %w", err)
	}

	s.logger.Info("リマインドを送信しました",
		slog.Int64("user_id", u.ID),
		slog.String("unit", due[0].Unit),
		slog.Int("due_count", len(due)),
	)

	return nil
}

// sendTimeReached はローカル時刻がHH:MM形式の設定時刻に達しているかを判定する。
// 設定時刻が不正な場合はfalseを返す。
func sendTimeReached(localNow time.Time, sendTime string) bool {
	parts := strings.SplitN(sendTime, ":", 2)
	if len(parts) != 2 {
		return false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}

	nowMinutes := localNow.Hour()*60 + localNow.Minute()
	return nowMinutes >= hour*60+minute
}
