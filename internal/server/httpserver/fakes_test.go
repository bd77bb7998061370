package httpserver

import (
	"context"
	"os"
	"time"

	"github.com/Cybrite/your-tube/internal/common"
	"github.com/Cybrite/your-tube/internal/server/models"
	"github.com/Cybrite/your-tube/internal/server/services"
)

const (
	aliceID    = "2f8a1c3e-0000-4000-8000-000000000001"
	aliceToken = "alice-access"
)

type fakeTokens struct{}

func (fakeTokens) VerifyAccessToken(token string) (string, error) {
	switch token {
	case aliceToken:
		return aliceID, nil
	case "expired":
		return "", common.ErrTokenExpired
	}
	return "", common.ErrInvalidToken
}

func (fakeTokens) AccessTokenSubject(token string) (string, error) {
	switch token {
	case aliceToken, "expired":
		return aliceID, nil
	}
	return "", common.ErrInvalidToken
}

type fakeSessions struct {
	err error

	registered     services.RegisterInput
	stagedExisted  []bool
	loginIn        services.LoginInput
	loggedOut      string
	refreshToken   string
	refreshBound   string
	passwordIn     services.ChangePasswordInput
	detailsAccount string
}

var testPair = models.TokenPair{
	AccessToken:      "new-access",
	RefreshToken:     "new-refresh",
	AccessExpiresAt:  time.Now().Add(time.Hour),
	RefreshExpiresAt: time.Now().Add(24 * time.Hour),
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func (f *fakeSessions) Register(ctx context.Context, in services.RegisterInput) (*models.PublicAccount, error) {
	f.registered = in
	f.stagedExisted = []bool{exists(in.AvatarPath), exists(in.CoverPath)}
	if f.err != nil {
		return nil, f.err
	}
	return &models.PublicAccount{ID: aliceID, Username: in.Username, Email: in.Email, FullName: in.FullName}, nil
}

func (f *fakeSessions) Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error) {
	f.loginIn = in
	if f.err != nil {
		return nil, f.err
	}
	return &services.LoginResult{
		Account: models.PublicAccount{ID: aliceID, Username: "alice"},
		Tokens:  testPair,
	}, nil
}

func (f *fakeSessions) Logout(ctx context.Context, accountID string) error {
	f.loggedOut = accountID
	return f.err
}

func (f *fakeSessions) Refresh(ctx context.Context, presented, bound string) (*models.TokenPair, error) {
	f.refreshToken, f.refreshBound = presented, bound
	if f.err != nil {
		return nil, f.err
	}
	p := testPair
	return &p, nil
}

func (f *fakeSessions) ChangePassword(ctx context.Context, accountID string, in services.ChangePasswordInput) error {
	f.passwordIn = in
	return f.err
}

func (f *fakeSessions) CurrentAccount(ctx context.Context, accountID string) (*models.PublicAccount, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.PublicAccount{ID: accountID, Username: "alice"}, nil
}

func (f *fakeSessions) UpdateAccountDetails(ctx context.Context, accountID, fullName, email string) (*models.PublicAccount, error) {
	f.detailsAccount = accountID
	if f.err != nil {
		return nil, f.err
	}
	return &models.PublicAccount{ID: accountID, FullName: fullName, Email: email}, nil
}

type fakeMedia struct {
	path    string
	existed bool
	err     error
}

func (f *fakeMedia) UpdateAvatar(ctx context.Context, accountID, localPath string) (*models.PublicAccount, error) {
	f.path, f.existed = localPath, exists(localPath)
	if f.err != nil {
		return nil, f.err
	}
	return &models.PublicAccount{ID: accountID, Avatar: "https://cdn/new.png"}, nil
}

func (f *fakeMedia) UpdateCover(ctx context.Context, accountID, localPath string) (*models.PublicAccount, error) {
	f.path, f.existed = localPath, exists(localPath)
	if f.err != nil {
		return nil, f.err
	}
	return &models.PublicAccount{ID: accountID, CoverImage: "https://cdn/new.jpg"}, nil
}

type fakeGraph struct {
	viewer   string
	username string
	video    string
	err      error
}

func (f *fakeGraph) ChannelProfile(ctx context.Context, viewerID, username string) (*models.ChannelProfile, error) {
	f.viewer, f.username = viewerID, username
	if f.err != nil {
		return nil, f.err
	}
	return &models.ChannelProfile{Username: username, SubscribersCount: 2, IsSubscribed: viewerID != ""}, nil
}

func (f *fakeGraph) Subscribe(ctx context.Context, subscriberID, username string) error {
	f.viewer, f.username = subscriberID, username
	return f.err
}

func (f *fakeGraph) Unsubscribe(ctx context.Context, subscriberID, username string) error {
	f.viewer, f.username = subscriberID, username
	return f.err
}

func (f *fakeGraph) RecordWatch(ctx context.Context, accountID, videoID string) error {
	f.viewer, f.video = accountID, videoID
	return f.err
}

func (f *fakeGraph) WatchHistory(ctx context.Context, accountID string) ([]models.WatchedVideo, error) {
	f.viewer = accountID
	if f.err != nil {
		return nil, f.err
	}
	return []models.WatchedVideo{}, nil
}

type fakeLimiter struct {
	allowed bool
	retry   time.Duration
	err     error
	key     string
}

func (f *fakeLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	f.key = key
	return f.allowed, f.retry, f.err
}
