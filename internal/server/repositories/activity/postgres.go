package activity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Cybrite/your-tube/internal/common"
	"github.com/Cybrite/your-tube/internal/dbx"
	"github.com/Cybrite/your-tube/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ChannelStats(ctx context.Context, channelID, viewerID string) (*models.ChannelStats, error) {
	query :=
		`SELECT
		   (SELECT count(*) FROM subscriptions WHERE channel_id = $1),
		   (SELECT count(*) FROM subscriptions WHERE subscriber_id = $1),
		   EXISTS (SELECT 1 FROM subscriptions WHERE channel_id = $1 AND subscriber_id = NULLIF($2, '')::uuid)`

	s := &models.ChannelStats{}
	err := r.db.QueryRowContext(ctx, query, channelID, viewerID).
		Scan(&s.Subscribers, &s.SubscribedTo, &s.IsSubscribed)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Subscribe(ctx context.Context, subscriberID, channelID string) error {
	query :=
		`INSERT INTO subscriptions (subscriber_id, channel_id)
		 VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, subscriberID, channelID); err != nil {
		if dbx.IsForeignKeyViolation(err) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Unsubscribe(ctx context.Context, subscriberID, channelID string) error {
	query :=
		`DELETE FROM subscriptions
		 WHERE subscriber_id = $1 AND channel_id = $2`

	if _, err := r.db.ExecContext(ctx, query, subscriberID, channelID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RecordWatch(ctx context.Context, accountID, videoID string) (int64, error) {
	query :=
		`INSERT INTO watch_history (account_id, video_id)
		 SELECT $1, v.id FROM videos v WHERE v.id = $2
		 RETURNING id`

	var id int64
	err := r.db.QueryRowContext(ctx, query, accountID, videoID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbx.IsForeignKeyViolation(err) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) WatchHistory(ctx context.Context, accountID string) ([]models.WatchEntry, error) {
	query :=
		`SELECT w.id, w.watched_at,
		        v.id, v.owner_id, v.title, v.description, v.video_url, v.thumbnail_url,
		        v.duration, v.views, v.is_published, v.created_at
		 FROM watch_history w
		 JOIN videos v ON v.id = w.video_id
		 WHERE w.account_id = $1
		 ORDER BY w.id DESC`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	entries := make([]models.WatchEntry, 0)
	for rows.Next() {
		var e models.WatchEntry
		v := &e.Video
		if err := rows.Scan(&e.EventID, &e.WatchedAt,
			&v.ID, &v.OwnerID, &v.Title, &v.Description, &v.VideoURL, &v.Thumbnail,
			&v.Duration, &v.Views, &v.IsPublished, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return entries, nil
}
