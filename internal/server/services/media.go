package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Cybrite/your-tube/internal/common"
	"github.com/Cybrite/your-tube/internal/logging"
	"github.com/Cybrite/your-tube/internal/server/config"
	"github.com/Cybrite/your-tube/internal/server/models"
	"github.com/Cybrite/your-tube/internal/server/repositories/repomanager"
)

// BlobStore stores uploaded files. Upload consumes the local file: it is
// removed whether or not the upload succeeds. Release deletes a stored
// blob; releasing a missing blob succeeds.
type BlobStore interface {
	Upload(ctx context.Context, localPath string) (models.MediaRef, error)
	Release(ctx context.Context, key string) error
}

// MediaService replaces an account's avatar or cover image. The new blob is
// uploaded first, then swapped in only if the slot still holds what was
// read; the superseded blob is released afterwards. A release that fails is
// queued for the janitor rather than leaked.
type MediaService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       BlobStore
	timeout     time.Duration
	logger      logging.Logger
}

func NewMediaService(db *sql.DB, m repomanager.RepositoryManager, store BlobStore, cfg *config.Config, logger logging.Logger) *MediaService {
	return &MediaService{
		db:          db,
		repomanager: m,
		store:       store,
		timeout:     cfg.RequestTimeout,
		logger:      logger,
	}
}

func (s *MediaService) UpdateAvatar(ctx context.Context, accountID, localPath string) (*models.PublicAccount, error) {
	return s.replace(ctx, accountID, models.SlotAvatar, localPath)
}

func (s *MediaService) UpdateCover(ctx context.Context, accountID, localPath string) (*models.PublicAccount, error) {
	return s.replace(ctx, accountID, models.SlotCover, localPath)
}

func (s *MediaService) replace(ctx context.Context, accountID string, slot models.MediaSlot, localPath string) (*models.PublicAccount, error) {
	if localPath == "" {
		return nil, common.Errorf(common.ErrorValidation, "%s file is missing", slot)
	}

	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	previous := account.Media(slot)

	ref, err := s.store.Upload(ctx, localPath)
	if err != nil {
		s.logger.Error(ctx, "media upload failed", "slot", slot.String(), "error", err)
		return nil, common.Errorf(common.ErrorUpstream, "error while uploading %s", slot)
	}

	swapped, err := s.swap(ctx, accountID, slot, previous.Key, ref)
	if err != nil || !swapped {
		s.release(ctx, ref.Key)
		if err != nil {
			return nil, err
		}
		return nil, common.Errorf(common.ErrorConflict, "%s was changed concurrently, retry", slot)
	}

	s.release(ctx, previous.Key)

	account.SetMedia(slot, ref)
	account.UpdatedAt = time.Now()
	public := account.Public()
	return &public, nil
}

func (s *MediaService) loadAccount(ctx context.Context, accountID string) (*models.Account, error) {
	if !validID(accountID) {
		return nil, common.Errorf(common.ErrorNotFound, "user not found")
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	account, err := s.repomanager.Accounts(s.db).FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.Errorf(common.ErrorNotFound, "user not found")
		}
		return nil, storeErr("load account", err)
	}
	return account, nil
}

func (s *MediaService) swap(ctx context.Context, accountID string, slot models.MediaSlot, expectedKey string, ref models.MediaRef) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	swapped, err := s.repomanager.Accounts(s.db).SwapMedia(ctx, accountID, slot, expectedKey, ref)
	if err != nil {
		return false, storeErr("swap media", err)
	}
	return swapped, nil
}

// release deletes key from the store, queueing it for a retry on failure.
// It never fails the caller.
func (s *MediaService) release(ctx context.Context, key string) {
	if key == "" {
		return
	}

	// The caller's context may be about to end; the cleanup should not.
	ctx, cancel := withTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	err := s.store.Release(ctx, key)
	if err == nil {
		return
	}

	s.logger.Warn(ctx, "media release failed, queued for retry", "key", key, "error", err)
	if qerr := s.repomanager.Releases(s.db).Enqueue(ctx, key, err.Error()); qerr != nil {
		s.logger.Error(ctx, "could not queue media release", "key", key, "error", qerr)
	}
}
