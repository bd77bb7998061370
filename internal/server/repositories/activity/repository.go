// Package activity stores the social graph around accounts: subscriptions
// between accounts and per-account watch history over videos.
package activity

import (
	"context"

	"github.com/Cybrite/your-tube/internal/server/models"
)

type Repository interface {
	// ChannelStats counts subscribers of channelID, channels it subscribes
	// to, and whether viewerID ("" for anonymous) subscribes to it.
	ChannelStats(ctx context.Context, channelID, viewerID string) (*models.ChannelStats, error)
	Subscribe(ctx context.Context, subscriberID, channelID string) error
	Unsubscribe(ctx context.Context, subscriberID, channelID string) error

	// RecordWatch appends a watch event; common.ErrorNotFound when the
	// video does not exist.
	RecordWatch(ctx context.Context, accountID, videoID string) (int64, error)
	// WatchHistory returns watch events joined with their videos, newest
	// first. Events whose video is gone are skipped.
	WatchHistory(ctx context.Context, accountID string) ([]models.WatchEntry, error)
}
