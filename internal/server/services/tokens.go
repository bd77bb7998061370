package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Cybrite/your-tube/internal/common"
	"github.com/Cybrite/your-tube/internal/logging"
	"github.com/Cybrite/your-tube/internal/server/auth"
	"github.com/Cybrite/your-tube/internal/server/config"
	"github.com/Cybrite/your-tube/internal/server/models"
	"github.com/Cybrite/your-tube/internal/server/repositories/repomanager"
)

// TokenService mints access and refresh tokens and owns the single stored
// refresh token per account.
//
// A refresh token is accepted only while it equals the stored one, so
// rotation invalidates the previous token and logout invalidates all.
// Rotation is a compare-and-set on the stored value: of two concurrent
// refreshes with the same token, exactly one wins.
type TokenService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	timeout       time.Duration
	logger        logging.Logger
}

func NewTokenService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *TokenService {
	return &TokenService{
		db:            db,
		repomanager:   m,
		accessSecret:  []byte(cfg.AccessTokenSecret),
		refreshSecret: []byte(cfg.RefreshTokenSecret),
		accessTTL:     cfg.AccessTokenValidityDuration,
		refreshTTL:    cfg.RefreshTokenValidityDuration,
		timeout:       cfg.RequestTimeout,
		logger:        logger,
	}
}

// IssueAccessToken signs a short-lived access token. Nothing is stored.
func (s *TokenService) IssueAccessToken(accountID string) (string, time.Time, error) {
	token, exp, err := auth.GenerateToken(auth.KindAccess, accountID, s.accessSecret, s.accessTTL)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w: %w", common.ErrorInternal, err)
	}
	return token, exp, nil
}

// IssueRefreshToken signs a refresh token and stores it as the account's
// only accepted one, replacing whatever was stored.
func (s *TokenService) IssueRefreshToken(ctx context.Context, accountID string) (string, time.Time, error) {
	token, exp, err := s.signRefresh(accountID)
	if err != nil {
		return "", time.Time{}, err
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repomanager.Accounts(s.db).SetRefreshToken(ctx, accountID, token); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", time.Time{}, common.ErrAccountGone
		}
		return "", time.Time{}, storeErr("store refresh token", err)
	}
	return token, exp, nil
}

// IssuePair mints an access token and a stored refresh token.
func (s *TokenService) IssuePair(ctx context.Context, accountID string) (*models.TokenPair, error) {
	access, accessExp, err := s.IssueAccessToken(accountID)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.IssueRefreshToken(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccessToken returns the account id of a valid access token.
func (s *TokenService) VerifyAccessToken(token string) (string, error) {
	return auth.GetSubjectFromToken(auth.KindAccess, token, s.accessSecret)
}

// AccessTokenSubject returns the account id of a correctly signed access
// token, expired or not. Used to bind a refresh to the caller's session.
func (s *TokenService) AccessTokenSubject(token string) (string, error) {
	return auth.SubjectIgnoringExpiry(auth.KindAccess, token, s.accessSecret)
}

// VerifyRefreshToken checks signature and expiry, then that the token is
// the one stored for its account. Every failure matches
// common.ErrorUnauthorized; the concrete error tells them apart.
func (s *TokenService) VerifyRefreshToken(ctx context.Context, presented string) (*models.Account, error) {
	accountID, err := auth.GetSubjectFromToken(auth.KindRefresh, presented, s.refreshSecret)
	if err != nil {
		return nil, err
	}
	if !validID(accountID) {
		return nil, common.ErrInvalidToken
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	account, err := s.repomanager.Accounts(s.db).FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrAccountGone
		}
		return nil, storeErr("load account", err)
	}

	if account.RefreshToken == "" ||
		subtle.ConstantTimeCompare([]byte(account.RefreshToken), []byte(presented)) != 1 {
		return nil, common.ErrRefreshTokenMismatch
	}
	return account, nil
}

// Rotate replaces presented with a fresh refresh token, provided presented
// is still the stored one, and returns the new pair. Losing the race to a
// concurrent rotation yields common.ErrRefreshTokenMismatch.
func (s *TokenService) Rotate(ctx context.Context, accountID, presented string) (*models.TokenPair, error) {
	access, accessExp, err := s.IssueAccessToken(accountID)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.signRefresh(accountID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	swapped, err := s.repomanager.Accounts(s.db).SwapRefreshToken(ctx, accountID, presented, refresh)
	if err != nil {
		return nil, storeErr("rotate refresh token", err)
	}
	if !swapped {
		s.logger.Warn(ctx, "refresh token rotation lost", "account_id", accountID)
		return nil, common.ErrRefreshTokenMismatch
	}

	return &models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Revoke clears the stored refresh token. Revoking an account that no
// longer exists is not an error.
func (s *TokenService) Revoke(ctx context.Context, accountID string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	err := s.repomanager.Accounts(s.db).SetRefreshToken(ctx, accountID, "")
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return storeErr("revoke refresh token", err)
	}
	return nil
}

func (s *TokenService) signRefresh(accountID string) (string, time.Time, error) {
	token, exp, err := auth.GenerateToken(auth.KindRefresh, accountID, s.refreshSecret, s.refreshTTL)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w: %w", common.ErrorInternal, err)
	}
	return token, exp, nil
}
