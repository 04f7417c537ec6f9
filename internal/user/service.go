// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/hitoshi/deckman/internal/model"
	"github.com/hitoshi/deckman/internal/repository"
)

// sendTimePattern は24時間表記のHH:MM形式。
var sendTimePattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Defaults は新規ユーザーに適用される初期設定。
type Defaults struct {
	Timezone string
	SendTime string
	Locale   string
}

// Service はユーザー管理のサービス層。
// 初回登録とリマインド時刻の変更を提供する。
type Service struct {
	userRepo repository.UserRepository
	defaults Defaults
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, defaults Defaults) *Service {
	if defaults.Timezone == "" {
		defaults.Timezone = "UTC"
	}
	if defaults.SendTime == "" {
		defaults.SendTime = "08:00"
	}
	if defaults.Locale == "" {
		defaults.Locale = "en"
	}
	return &Service{
		userRepo: userRepo,
		defaults: defaults,
	}
}

// EnsureUser はユーザーを登録する。既存の場合は登録済みのユーザーを返す。
// 戻り値のboolは新規作成されたかどうかを示す。
func (s *Service) EnsureUser(ctx context.Context, userID int64) (*model.User, bool, error) {
	user := &model.User{
		ID:       userID,
		Timezone: s.defaults.Timezone,
		SendTime: s.defaults.SendTime,
		Locale:   s.defaults.Locale,
	}

	created, err := s.userRepo.Ensure(ctx, user)
	if err != nil {
		return nil, false, fmt.Errorf("ユーザーの登録に失敗しました: %w", err)
	}

	stored, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if stored == nil {
		return nil, false, model.NewUserNotFoundError()
	}

	if created {
		slog.Info("新規ユーザーを登録しました",
			slog.Int64("user_id", userID),
			slog.String("timezone", stored.Timezone),
			slog.String("send_time", stored.SendTime),
		)
	}

	return stored, created, nil
}

// UpdateSendTime はリマインド時刻を変更する。
// valueはHH:MM形式でなければならない。
func (s *Service) UpdateSendTime(ctx context.Context, userID int64, value string) error {
	if !sendTimePattern.MatchString(value) {
		return model.NewInvalidSendTimeError(value)
	}

	if err := s.userRepo.UpdateSendTime(ctx, userID, value); err != nil {
		return err
	}

	slog.Info("リマインド時刻を変更しました",
		slog.Int64("user_id", userID),
		slog.String("send_time", value),
	)

	return nil
}

// Get はユーザーを取得する。存在しない場合はUserNotFoundエラーを返す。
func (s *Service) Get(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}
