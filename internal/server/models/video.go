package models

import "time"

type Video struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	VideoURL    string
	Thumbnail   string
	Duration    float64
	Views       int64
	IsPublished bool
	CreatedAt   time.Time
}

// WatchEntry is one watch event joined with the video it refers to.
type WatchEntry struct {
	EventID   int64
	WatchedAt time.Time
	Video     Video
}

// WatchedVideo is a watch-history item as returned to clients.
type WatchedVideo struct {
	ID          string       `json:"_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	VideoFile   string       `json:"videoFile"`
	Thumbnail   string       `json:"thumbnail"`
	Duration    float64      `json:"duration"`
	Views       int64        `json:"views"`
	IsPublished bool         `json:"isPublished"`
	CreatedAt   time.Time    `json:"createdAt"`
	WatchedAt   time.Time    `json:"watchedAt"`
	Owner       OwnerProfile `json:"owner"`
}

func NewWatchedVideo(e WatchEntry, owner OwnerProfile) WatchedVideo {
	return WatchedVideo{
		ID:          e.Video.ID,
		Title:       e.Video.Title,
		Description: e.Video.Description,
		VideoFile:   e.Video.VideoURL,
		Thumbnail:   e.Video.Thumbnail,
		Duration:    e.Video.Duration,
		Views:       e.Video.Views,
		IsPublished: e.Video.IsPublished,
		CreatedAt:   e.Video.CreatedAt,
		WatchedAt:   e.WatchedAt,
		Owner:       owner,
	}
}
