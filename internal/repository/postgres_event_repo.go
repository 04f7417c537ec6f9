package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/deckman/internal/model"
)

// PostgresEventRepo はPostgreSQLを使用したイベントログリポジトリ。
// イベントの書き込みはStateRepository.ApplyEvent経由に限定されるため、
// このリポジトリは読み取り専用となる。
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

// ReplayFrom は指定ペアの全イベントを(ts, id)昇順で返す。
// 同時刻のイベントは採番IDの昇順、つまり挿入順で決着する。
func (r *PostgresEventRepo) ReplayFrom(ctx context.Context, userID, deckID int64) ([]*model.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, deck_id, ts, action
		 FROM events
		 WHERE user_id = $1 AND deck_id = $2
		 ORDER BY ts ASC, id ASC`,
		userID, deckID,
	)
	if err != nil {
		return nil, fmt.Errorf("イベント履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		event := &model.Event{}
		var action string
		if err := rows.Scan(&event.ID, &event.UserID, &event.DeckID, &event.TS, &action); err != nil {
			return nil, fmt.Errorf("イベント行の読み取りに失敗しました: %w", err)
		}
		event.Action = model.Action(action)
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("イベント履歴の走査に失敗しました: %w", err)
	}

	return events, nil
}

// CountByActionSince は指定時刻以降のイベント数をアクション別に集計する。
func (r *PostgresEventRepo) CountByActionSince(ctx context.Context, userID int64, since time.Time) (map[model.Action]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT action, count(*)
		 FROM events
		 WHERE user_id = $1 AND ts > $2
		 GROUP BY action`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("イベント集計の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Action]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("イベント集計行の読み取りに失敗しました: %w", err)
		}
		counts[model.Action(action)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("イベント集計の走査に失敗しました: %w", err)
	}

	return counts, nil
}

// compile-time interface check
var _ EventRepository = (*PostgresEventRepo)(nil)
