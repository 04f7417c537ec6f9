package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/deckman/internal/model"
)

// PostgresStateRepo はPostgreSQLを使用した学習状態リポジトリ。
type PostgresStateRepo struct {
	db *sql.DB
}

// NewPostgresStateRepo はPostgresStateRepoを生成する。
func NewPostgresStateRepo(db *sql.DB) *PostgresStateRepo {
	return &PostgresStateRepo{db: db}
}

// Get は指定ペアの学習状態を取得する。見つからない場合はnilを返す。
func (r *PostgresStateRepo) Get(ctx context.Context, userID, deckID int64) (*model.UserDeckState, error) {
	state := &model.UserDeckState{}
	var nextDue sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, deck_id, active, difficulty, stability, next_due, created_at, updated_at
		 FROM user_decks WHERE user_id = $1 AND deck_id = $2`,
		userID, deckID,
	).Scan(&state.UserID, &state.DeckID, &state.Active,
		&state.Difficulty, &state.Stability, &nextDue,
		&state.CreatedAt, &state.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("学習状態の取得に失敗しました: %w", err)
	}

	if nextDue.Valid {
		state.NextDue = &nextDue.Time
	}

	return state, nil
}

// Enroll は登録時デフォルトの学習状態を作成する。
// 既に行が存在する場合はErrDuplicateStateを返し、既存状態には触れない。
func (r *PostgresStateRepo) Enroll(ctx context.Context, state *model.UserDeckState) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO user_decks (user_id, deck_id, active, difficulty, stability, next_due, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 ON CONFLICT (user_id, deck_id) DO NOTHING`,
		state.UserID, state.DeckID, state.Active,
		state.Difficulty, state.Stability, state.NextDue, state.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("学習状態の作成に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("学習状態の作成結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDuplicateState
	}

	return nil
}

// ApplyEvent はイベントの追記と学習状態のcompare-and-set更新を
// 同一トランザクションで行う。
//
// CASは期待状態（difficulty, stability, next_due）の完全一致を条件とするUPDATEで
// 実装する。他の更新が先行していた場合は1行も更新されず、トランザクション全体を
// ロールバックしてErrStateConflictを返す。イベントログと学習状態が乖離することはない。
func (r *PostgresStateRepo) ApplyEvent(ctx context.Context, event *model.Event, expected, next model.MemoryState) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	// 学習状態のCAS更新
	result, err := tx.ExecContext(ctx,
		`UPDATE user_decks
		 SET difficulty = $3, stability = $4, next_due = $5, updated_at = now()
		 WHERE user_id = $1 AND deck_id = $2 AND active = true
		   AND difficulty = $6 AND stability = $7
		   AND next_due IS NOT DISTINCT FROM $8`,
		event.UserID, event.DeckID,
		next.Difficulty, next.Stability, next.NextDue,
		expected.Difficulty, expected.Stability, expected.NextDue,
	)
	if err != nil {
		return 0, fmt.Errorf("学習状態の更新に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("学習状態の更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return 0, ErrStateConflict
	}

	// イベントの追記
	var eventID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO events (user_id, deck_id, ts, action)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		event.UserID, event.DeckID, event.TS, string(event.Action),
	).Scan(&eventID)
	if err != nil {
		return 0, fmt.Errorf("イベントの記録に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}

	return eventID, nil
}

// ListDue はnext_dueがasOf以前の、学習中かつ非アーカイブのデッキを返す。
// next_due昇順・deck_id昇順の決定的な並びで返す。
func (r *PostgresStateRepo) ListDue(ctx context.Context, userID int64, asOf time.Time) ([]DueDeck, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT d.id, d.unit, d.title, d.quizlet_url, ud.next_due
		 FROM user_decks ud
		 JOIN decks d ON d.id = ud.deck_id
		 WHERE ud.user_id = $1 AND ud.active = true AND d.archived = false
		   AND ud.next_due IS NOT NULL AND ud.next_due <= $2
		 ORDER BY ud.next_due ASC, d.id ASC`,
		userID, asOf,
	)
	if err != nil {
		return nil, fmt.Errorf("期限到来デッキの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var due []DueDeck
	for rows.Next() {
		var entry DueDeck
		if err := rows.Scan(&entry.DeckID, &entry.Unit, &entry.Title,
			&entry.QuizletURL, &entry.NextDue); err != nil {
			return nil, fmt.Errorf("期限到来デッキの読み取りに失敗しました: %w", err)
		}
		due = append(due, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("期限到来デッキの走査に失敗しました: %w", err)
	}

	return due, nil
}

// ListSchedule はユーザーの学習中デッキの予定一覧を返す。
func (r *PostgresStateRepo) ListSchedule(ctx context.Context, userID int64) ([]DeckSchedule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT d.id, d.unit, d.title, ud.next_due
		 FROM user_decks ud
		 JOIN decks d ON d.id = ud.deck_id
		 WHERE ud.user_id = $1 AND ud.active = true
		 ORDER BY ud.next_due ASC NULLS LAST, d.unit ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("学習予定一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var schedule []DeckSchedule
	for rows.Next() {
		var row DeckSchedule
		var nextDue sql.NullTime
		if err := rows.Scan(&row.DeckID, &row.Unit, &row.Title, &nextDue); err != nil {
			return nil, fmt.Errorf("学習予定行の読み取りに失敗しました: %w", err)
		}
		if nextDue.Valid {
			row.NextDue = &nextDue.Time
		}
		schedule = append(schedule, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("学習予定一覧の走査に失敗しました: %w", err)
	}

	return schedule, nil
}

// SetActiveAll は指定デッキを全ユーザーに対して有効/無効にする。
// 新規行は登録時デフォルトで作成し、即日レビュー対象にする。既存行はactiveのみ切り替える。
func (r *PostgresStateRepo) SetActiveAll(ctx context.Context, deckID int64, active bool, due time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO user_decks (user_id, deck_id, active, difficulty, stability, next_due, created_at, updated_at)
		 SELECT u.telegram_id, $1, $2, $3, $4, $5, now(), now()
		 FROM users u
		 ON CONFLICT (user_id, deck_id) DO UPDATE SET
		     active = EXCLUDED.active,
		     updated_at = now()`,
		deckID, active, model.DefaultDifficulty, model.DefaultStability, due,
	)
	if err != nil {
		return 0, fmt.Errorf("デッキの一括割り当てに失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("一括割り当て結果の取得に失敗しました: %w", err)
	}

	return int(rowsAffected), nil
}

// BumpAll は指定デッキの全学習中ペアのnext_dueを指定日に設定する。
func (r *PostgresStateRepo) BumpAll(ctx context.Context, deckID int64, due time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_decks SET next_due = $2, updated_at = now()
		 WHERE deck_id = $1 AND active = true`,
		deckID, due,
	)
	if err != nil {
		return 0, fmt.Errorf("期日の一括変更に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("期日変更結果の取得に失敗しました: %w", err)
	}

	return int(rowsAffected), nil
}

// compile-time interface check
var _ StateRepository = (*PostgresStateRepo)(nil)
