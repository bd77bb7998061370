package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/Cybrite/your-tube/internal/common"
	"github.com/Cybrite/your-tube/internal/logging"
	"github.com/Cybrite/your-tube/internal/server/config"
	"github.com/Cybrite/your-tube/internal/server/models"
	"github.com/Cybrite/your-tube/internal/server/repositories/repomanager"
)

// GraphService answers questions about the relations between accounts:
// channel profiles with subscription counts, subscriptions themselves, and
// watch history with the owners of the watched videos.
type GraphService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	timeout     time.Duration
	logger      logging.Logger
}

func NewGraphService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *GraphService {
	return &GraphService{
		db:          db,
		repomanager: m,
		timeout:     cfg.RequestTimeout,
		logger:      logger,
	}
}

// ChannelProfile returns the channel called username as seen by viewerID.
// An empty or unknown viewer is anonymous and never subscribed.
func (s *GraphService) ChannelProfile(ctx context.Context, viewerID, username string) (*models.ChannelProfile, error) {
	channel, err := s.channel(ctx, username)
	if err != nil {
		return nil, err
	}
	if !validID(viewerID) {
		viewerID = ""
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	stats, err := s.repomanager.Activity(s.db).ChannelStats(ctx, channel.ID, viewerID)
	if err != nil {
		return nil, storeErr("channel stats", err)
	}

	return &models.ChannelProfile{
		ID:                        channel.ID,
		FullName:                  channel.FullName,
		Username:                  channel.Username,
		Email:                     channel.Email,
		Avatar:                    channel.Avatar.URL,
		CoverImage:                channel.Cover.URL,
		SubscribersCount:          stats.Subscribers,
		ChannelsSubscribedToCount: stats.SubscribedTo,
		IsSubscribed:              stats.IsSubscribed,
	}, nil
}

func (s *GraphService) channel(ctx context.Context, username string) (*models.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, common.Errorf(common.ErrorValidation, "username is missing")
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	channel, err := s.repomanager.Accounts(s.db).FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.Errorf(common.ErrorNotFound, "channel does not exist")
		}
		return nil, storeErr("find channel", err)
	}
	return channel, nil
}

// Subscribe makes subscriberID follow the channel called username. It is
// idempotent; subscribing to oneself is rejected.
func (s *GraphService) Subscribe(ctx context.Context, subscriberID, username string) error {
	channel, err := s.channel(ctx, username)
	if err != nil {
		return err
	}
	if channel.ID == subscriberID {
		return common.Errorf(common.ErrorValidation, "cannot subscribe to your own channel")
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repomanager.Activity(s.db).Subscribe(ctx, subscriberID, channel.ID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.Errorf(common.ErrorNotFound, "user not found")
		}
		return storeErr("subscribe", err)
	}
	return nil
}

// Unsubscribe removes the subscription if present.
func (s *GraphService) Unsubscribe(ctx context.Context, subscriberID, username string) error {
	channel, err := s.channel(ctx, username)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repomanager.Activity(s.db).Unsubscribe(ctx, subscriberID, channel.ID); err != nil {
		return storeErr("unsubscribe", err)
	}
	return nil
}

// RecordWatch appends videoID to the account's watch history.
func (s *GraphService) RecordWatch(ctx context.Context, accountID, videoID string) error {
	if !validID(videoID) {
		return common.Errorf(common.ErrorNotFound, "video not found")
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.repomanager.Activity(s.db).RecordWatch(ctx, accountID, videoID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.Errorf(common.ErrorNotFound, "video not found")
		}
		return storeErr("record watch", err)
	}
	return nil
}

// WatchHistory returns the account's watched videos, newest first, each
// with its owner's profile. It runs two lookups: watch events joined to
// videos, then the owners of those videos. Entries whose video or owner no
// longer exists are left out; repeated watches stay repeated.
func (s *GraphService) WatchHistory(ctx context.Context, accountID string) ([]models.WatchedVideo, error) {
	if !validID(accountID) {
		return nil, common.Errorf(common.ErrorNotFound, "user not found")
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	accounts := s.repomanager.Accounts(s.db)
	if _, err := accounts.FindByID(ctx, accountID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.Errorf(common.ErrorNotFound, "user not found")
		}
		return nil, storeErr("load account", err)
	}

	entries, err := s.repomanager.Activity(s.db).WatchHistory(ctx, accountID)
	if err != nil {
		return nil, storeErr("watch history", err)
	}

	ownerIDs := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.Video.OwnerID]; ok {
			continue
		}
		seen[e.Video.OwnerID] = struct{}{}
		ownerIDs = append(ownerIDs, e.Video.OwnerID)
	}

	owners, err := accounts.FindOwners(ctx, ownerIDs)
	if err != nil {
		return nil, storeErr("video owners", err)
	}

	history := make([]models.WatchedVideo, 0, len(entries))
	for _, e := range entries {
		owner, ok := owners[e.Video.OwnerID]
		if !ok {
			s.logger.Debug(ctx, "watch history entry without owner skipped", "video_id", e.Video.ID)
			continue
		}
		history = append(history, models.NewWatchedVideo(e, owner))
	}
	return history, nil
}
