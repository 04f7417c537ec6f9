package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/deckman/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user := &model.User{}
	var lastRemindedOn sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT telegram_id, tz, send_time, locale, last_reminded_on, created_at, updated_at
		 FROM users WHERE telegram_id = $1`,
		id,
	).Scan(&user.ID, &user.Timezone, &user.SendTime, &user.Locale,
		&lastRemindedOn, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}

	if lastRemindedOn.Valid {
		user.LastRemindedOn = &lastRemindedOn.Time
	}

	return user, nil
}

// Ensure はユーザーが存在しなければデフォルト値で作成する。
// ON CONFLICT DO NOTHINGにより既存行には触れない（冪等）。
func (r *PostgresUserRepo) Ensure(ctx context.Context, user *model.User) (bool, error) {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO users (telegram_id, tz, send_time, locale, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (telegram_id) DO NOTHING`,
		user.ID, user.Timezone, user.SendTime, user.Locale, now,
	)
	if err != nil {
		return false, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ユーザー作成結果の取得に失敗しました: %w", err)
	}

	return rowsAffected > 0, nil
}

// UpdateSendTime はユーザーローカルの通知時刻を更新する。
func (r *PostgresUserRepo) UpdateSendTime(ctx context.Context, id int64, sendTime string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET send_time = $2, updated_at = now() WHERE telegram_id = $1`,
		id, sendTime,
	)
	if err != nil {
		return fmt.Errorf("通知時刻の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("通知時刻の更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewUserNotFoundError()
	}
	return nil
}

// ListAll は全ユーザーを返す。
func (r *PostgresUserRepo) ListAll(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT telegram_id, tz, send_time, locale, last_reminded_on, created_at, updated_at
		 FROM users ORDER BY telegram_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user := &model.User{}
		var lastRemindedOn sql.NullTime

		if err := rows.Scan(&user.ID, &user.Timezone, &user.SendTime, &user.Locale,
			&lastRemindedOn, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ユーザー行の読み取りに失敗しました: %w", err)
		}
		if lastRemindedOn.Valid {
			user.LastRemindedOn = &lastRemindedOn.Time
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユーザー一覧の走査に失敗しました: %w", err)
	}

	return users, nil
}

// MarkReminded は最後にリマインドを送ったユーザーローカル日を記録する。
func (r *PostgresUserRepo) MarkReminded(ctx context.Context, id int64, day time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_reminded_on = $2, updated_at = now() WHERE telegram_id = $1`,
		id, day,
	)
	if err != nil {
		return fmt.Errorf("リマインド送信日の記録に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
