package httpserver

import (
	"context"
	"time"

	"github.com/Cybrite/your-tube/internal/logging"
	"github.com/Cybrite/your-tube/internal/server/models"
	"github.com/Cybrite/your-tube/internal/server/services"
)

type Sessions interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.PublicAccount, error)
	Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
	Logout(ctx context.Context, accountID string) error
	Refresh(ctx context.Context, presented, boundAccountID string) (*models.TokenPair, error)
	ChangePassword(ctx context.Context, accountID string, in services.ChangePasswordInput) error
	CurrentAccount(ctx context.Context, accountID string) (*models.PublicAccount, error)
	UpdateAccountDetails(ctx context.Context, accountID, fullName, email string) (*models.PublicAccount, error)
}

type Media interface {
	UpdateAvatar(ctx context.Context, accountID, localPath string) (*models.PublicAccount, error)
	UpdateCover(ctx context.Context, accountID, localPath string) (*models.PublicAccount, error)
}

type Graph interface {
	ChannelProfile(ctx context.Context, viewerID, username string) (*models.ChannelProfile, error)
	Subscribe(ctx context.Context, subscriberID, username string) error
	Unsubscribe(ctx context.Context, subscriberID, username string) error
	RecordWatch(ctx context.Context, accountID, videoID string) error
	WatchHistory(ctx context.Context, accountID string) ([]models.WatchedVideo, error)
}

type TokenVerifier interface {
	VerifyAccessToken(token string) (string, error)
	AccessTokenSubject(token string) (string, error)
}

type LoginLimiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// Deps are the collaborators of the HTTP layer. Limiter may be nil.
type Deps struct {
	Sessions       Sessions
	Media          Media
	Graph          Graph
	Tokens         TokenVerifier
	Limiter        LoginLimiter
	UploadDir      string
	MaxUploadBytes int64
	Logger         logging.Logger
}
