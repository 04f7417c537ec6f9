package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/deckman/internal/model"
)

// PostgresDeckRepo はPostgreSQLを使用したデッキリポジトリ。
type PostgresDeckRepo struct {
	db *sql.DB
}

// NewPostgresDeckRepo はPostgresDeckRepoを生成する。
func NewPostgresDeckRepo(db *sql.DB) *PostgresDeckRepo {
	return &PostgresDeckRepo{db: db}
}

// FindByUnit はユニットコードでデッキを取得する。見つからない場合はnilを返す。
func (r *PostgresDeckRepo) FindByUnit(ctx context.Context, unit string) (*model.Deck, error) {
	deck := &model.Deck{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, unit, title, quizlet_url, archived, created_at, updated_at
		 FROM decks WHERE unit = $1`,
		unit,
	).Scan(&deck.ID, &deck.Unit, &deck.Title, &deck.QuizletURL,
		&deck.Archived, &deck.CreatedAt, &deck.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("デッキの取得に失敗しました: %w", err)
	}

	return deck, nil
}

// ListAll は全デッキをユニットコード順で返す。
func (r *PostgresDeckRepo) ListAll(ctx context.Context) ([]*model.Deck, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, unit, title, quizlet_url, archived, created_at, updated_at
		 FROM decks ORDER BY unit`,
	)
	if err != nil {
		return nil, fmt.Errorf("デッキ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var decks []*model.Deck
	for rows.Next() {
		deck := &model.Deck{}
		if err := rows.Scan(&deck.ID, &deck.Unit, &deck.Title, &deck.QuizletURL,
			&deck.Archived, &deck.CreatedAt, &deck.UpdatedAt); err != nil {
			return nil, fmt.Errorf("デッキ行の読み取りに失敗しました: %w", err)
		}
		decks = append(decks, deck)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("デッキ一覧の走査に失敗しました: %w", err)
	}

	return decks, nil
}

// compile-time interface check
var _ DeckRepository = (*PostgresDeckRepo)(nil)
