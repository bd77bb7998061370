package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/Cybrite/your-tube/internal/common"
	"github.com/Cybrite/your-tube/internal/cryptox"
	"github.com/Cybrite/your-tube/internal/logging"
	"github.com/Cybrite/your-tube/internal/server/config"
	"github.com/Cybrite/your-tube/internal/server/models"
	"github.com/Cybrite/your-tube/internal/server/repositories/repomanager"
)

type RegisterInput struct {
	FullName   string
	Email      string
	Username   string
	Password   string
	AvatarPath string
	CoverPath  string
}

type LoginInput struct {
	Username string
	Email    string
	Password string
}

type ChangePasswordInput struct {
	OldPassword     string
	NewPassword     string
	ConfirmPassword string
}

type LoginResult struct {
	Account models.PublicAccount
	Tokens  models.TokenPair
}

// SessionService implements the account-facing flows: registration, login,
// logout, refresh, password change and profile reads and updates.
type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tokens      *TokenService
	media       *MediaService
	timeout     time.Duration
	logger      logging.Logger
}

func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, tokens *TokenService, media *MediaService, cfg *config.Config, logger logging.Logger) *SessionService {
	return &SessionService{
		db:          db,
		repomanager: m,
		tokens:      tokens,
		media:       media,
		timeout:     cfg.RequestTimeout,
		logger:      logger,
	}
}

// Register creates an account. The avatar is mandatory and the cover
// optional; a cover that fails to upload leaves the cover empty. Uploaded
// blobs are released again if the account cannot be created.
func (s *SessionService) Register(ctx context.Context, in RegisterInput) (*models.PublicAccount, error) {
	if err := requireFields("fullName", in.FullName, "email", in.Email, "username", in.Username, "password", in.Password); err != nil {
		return nil, err
	}

	username := normalize(in.Username)
	email := normalize(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if in.AvatarPath == "" {
		return nil, common.Errorf(common.ErrorValidation, "avatar file is required")
	}

	if err := s.ensureAvailable(ctx, username, email); err != nil {
		return nil, err
	}

	avatar, err := s.media.store.Upload(ctx, in.AvatarPath)
	if err != nil {
		s.logger.Error(ctx, "avatar upload failed", "error", err)
		return nil, common.Errorf(common.ErrorUpstream, "error while uploading avatar")
	}

	var cover models.MediaRef
	if in.CoverPath != "" {
		if cover, err = s.media.store.Upload(ctx, in.CoverPath); err != nil {
			s.logger.Warn(ctx, "cover upload failed, registering without cover", "error", err)
			cover = models.MediaRef{}
		}
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		s.releaseAll(ctx, avatar, cover)
		return nil, common.ErrorInternal
	}

	account := &models.Account{
		Username:     username,
		Email:        email,
		FullName:     strings.TrimSpace(in.FullName),
		PasswordHash: hash,
		Avatar:       avatar,
		Cover:        cover,
	}

	created, err := s.create(ctx, account)
	if err != nil {
		s.releaseAll(ctx, avatar, cover)
		return nil, err
	}

	s.logger.Info(ctx, "account registered", "account_id", created.ID)
	public := created.Public()
	return &public, nil
}

func (s *SessionService) ensureAvailable(ctx context.Context, username, email string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.repomanager.Accounts(s.db).FindByIdentity(ctx, username, email)
	switch {
	case err == nil:
		return common.Errorf(common.ErrorConflict, "user with email or username already exists")
	case errors.Is(err, common.ErrorNotFound):
		return nil
	default:
		return storeErr("check identity", err)
	}
}

func (s *SessionService) create(ctx context.Context, account *models.Account) (*models.Account, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	created, err := s.repomanager.Accounts(s.db).Create(ctx, account)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.Errorf(common.ErrorConflict, "user with email or username already exists")
		}
		return nil, storeErr("create account", err)
	}
	return created, nil
}

func (s *SessionService) releaseAll(ctx context.Context, refs ...models.MediaRef) {
	for _, ref := range refs {
		s.media.release(ctx, ref.Key)
	}
}

// Login verifies credentials given by username or email and issues a token
// pair. An unknown identity is NotFound; a wrong password is Unauthorized.
func (s *SessionService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	username := normalize(in.Username)
	email := normalize(in.Email)
	if username == "" && email == "" {
		return nil, common.Errorf(common.ErrorValidation, "username or email is required")
	}
	if in.Password == "" {
		return nil, common.Errorf(common.ErrorValidation, "password is required")
	}

	account, err := s.findByIdentity(ctx, username, email)
	if err != nil {
		return nil, err
	}

	if !cryptox.VerifyPassword(in.Password, account.PasswordHash) {
		return nil, common.ErrInvalidCredentials
	}

	pair, err := s.tokens.IssuePair(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "account logged in", "account_id", account.ID)
	return &LoginResult{Account: account.Public(), Tokens: *pair}, nil
}

func (s *SessionService) findByIdentity(ctx context.Context, username, email string) (*models.Account, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	account, err := s.repomanager.Accounts(s.db).FindByIdentity(ctx, username, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.Errorf(common.ErrorNotFound, "user does not exist")
		}
		return nil, storeErr("find account", err)
	}
	return account, nil
}

// Logout revokes the account's refresh token. It is idempotent.
func (s *SessionService) Logout(ctx context.Context, accountID string) error {
	if !validID(accountID) {
		return nil
	}
	if err := s.tokens.Revoke(ctx, accountID); err != nil {
		return err
	}
	s.logger.Info(ctx, "account logged out", "account_id", accountID)
	return nil
}

// Refresh rotates the presented refresh token. When boundAccountID is set
// (the subject of the caller's access token) the refresh token must belong
// to that same account. An empty boundAccountID skips the check, so a
// request carrying only a valid refresh token is accepted.
func (s *SessionService) Refresh(ctx context.Context, presented, boundAccountID string) (*models.TokenPair, error) {
	if presented == "" {
		return nil, common.ErrInvalidToken
	}

	account, err := s.tokens.VerifyRefreshToken(ctx, presented)
	if err != nil {
		return nil, err
	}
	if boundAccountID != "" && boundAccountID != account.ID {
		s.logger.Warn(ctx, "refresh token presented for another account", "account_id", account.ID)
		return nil, common.ErrRefreshTokenMismatch
	}

	return s.tokens.Rotate(ctx, account.ID, presented)
}

// ChangePassword replaces the password. The current password is verified
// before the confirmation is compared. Existing sessions stay valid.
func (s *SessionService) ChangePassword(ctx context.Context, accountID string, in ChangePasswordInput) error {
	if err := requireFields("oldPassword", in.OldPassword, "newPassword", in.NewPassword, "confirmPassword", in.ConfirmPassword); err != nil {
		return err
	}

	account, err := s.load(ctx, accountID)
	if err != nil {
		return err
	}
	if !cryptox.VerifyPassword(in.OldPassword, account.PasswordHash) {
		return common.ErrInvalidCredentials
	}
	if in.NewPassword != in.ConfirmPassword {
		return common.Errorf(common.ErrorValidation, "new password and confirm password do not match")
	}

	hash, err := cryptox.HashPassword(in.NewPassword)
	if err != nil {
		return common.ErrorInternal
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repomanager.Accounts(s.db).UpdatePassword(ctx, account.ID, hash); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.Errorf(common.ErrorNotFound, "user not found")
		}
		return storeErr("update password", err)
	}

	s.logger.Info(ctx, "password changed", "account_id", account.ID)
	return nil
}

// CurrentAccount returns the public view of the account.
func (s *SessionService) CurrentAccount(ctx context.Context, accountID string) (*models.PublicAccount, error) {
	account, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	public := account.Public()
	return &public, nil
}

// UpdateAccountDetails sets full name and email; both are required.
func (s *SessionService) UpdateAccountDetails(ctx context.Context, accountID, fullName, email string) (*models.PublicAccount, error) {
	if err := requireFields("fullName", fullName, "email", email); err != nil {
		return nil, err
	}
	email = normalize(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if !validID(accountID) {
		return nil, common.Errorf(common.ErrorNotFound, "user not found")
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	account, err := s.repomanager.Accounts(s.db).UpdateDetails(ctx, accountID, strings.TrimSpace(fullName), email)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorNotFound):
			return nil, common.Errorf(common.ErrorNotFound, "user not found")
		case errors.Is(err, common.ErrorAlreadyExists):
			return nil, common.Errorf(common.ErrorConflict, "email is already in use")
		}
		return nil, storeErr("update account", err)
	}

	public := account.Public()
	return &public, nil
}

func (s *SessionService) load(ctx context.Context, accountID string) (*models.Account, error) {
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
