// Package deck はデッキ管理のドメインロジックを提供する。
package deck

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/deckman/internal/model"
	"github.com/hitoshi/deckman/internal/repository"
)

// Service はデッキ管理のサービス層。
// デッキ一覧取得と管理者向けの一括操作を提供する。
type Service struct {
	deckRepo  repository.DeckRepository
	stateRepo repository.StateRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(deckRepo repository.DeckRepository, stateRepo repository.StateRepository) *Service {
	return &Service{
		deckRepo:  deckRepo,
		stateRepo: stateRepo,
	}
}

// ListDecks はアーカイブ済みを含む全デッキをunit順で返す。
func (s *Service) ListDecks(ctx context.Context) ([]*model.Deck, error) {
	decks, err := s.deckRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("デッキ一覧の取得に失敗しました: %w", err)
	}
	return decks, nil
}

// AssignAll は全ユーザーのデッキ登録状態を一括で切り替える。
// onがtrueの場合、未登録ユーザーには初期学習状態を作成し、
// 期日をnowのUTC日付に設定して即座にレビュー対象にする。
// 変更されたユーザー数を返す。
func (s *Service) AssignAll(ctx context.Context, unit string, on bool, now time.Time) (int, error) {
	deck, err := s.deckRepo.FindByUnit(ctx, unit)
	if err != nil {
		return 0, fmt.Errorf("デッキの取得に失敗しました: %w", err)
	}
	if deck == nil {
		return 0, model.NewDeckNotFoundError(unit)
	}
	if on && deck.Archived {
		return 0, model.NewDeckArchivedError(unit)
	}

	due := model.LocalDay(now, time.UTC)
	affected, err := s.stateRepo.SetActiveAll(ctx, deck.ID, on, due)
	if err != nil {
		return 0, fmt.Errorf("デッキの一括割り当てに失敗しました: %w", err)
	}

	slog.Info("デッキを一括割り当てしました",
		slog.String("unit", unit),
		slog.Bool("active", on),
		slog.Int("affected", affected),
	)

	return affected, nil
}

// Bump は指定デッキの全登録者の期日を翌日に前倒しする。
// 変更されたユーザー数を返す。
func (s *Service) Bump(ctx context.Context, unit string, now time.Time) (int, error) {
	deck, err := s.deckRepo.FindByUnit(ctx, unit)
	if err != nil {
		return 0, fmt.Errorf("デッキの取得に失敗しました: %w", err)
	}
	if deck == nil {
		return 0, model.NewDeckNotFoundError(unit)
	}

	due := model.AddDays(model.LocalDay(now, time.UTC), 1)
	affected, err := s.stateRepo.BumpAll(ctx, deck.ID, due)
	if err != nil {
		return 0, fmt.Errorf("期日の一括前倒しに失敗しました: %w", err)
	}

	slog.Info("デッキの期日を一括前倒ししました",
		slog.String("unit", unit),
		slog.Int("affected", affected),
	)

	return affected, nil
}
