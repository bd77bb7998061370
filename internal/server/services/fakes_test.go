package services

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Cybrite/your-tube/internal/common"
	"github.com/Cybrite/your-tube/internal/dbx"
	"github.com/Cybrite/your-tube/internal/logging"
	"github.com/Cybrite/your-tube/internal/server/config"
	"github.com/Cybrite/your-tube/internal/server/models"
	"github.com/Cybrite/your-tube/internal/server/repositories/accounts"
	"github.com/Cybrite/your-tube/internal/server/repositories/activity"
	"github.com/Cybrite/your-tube/internal/server/repositories/releases"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// --- accounts ---

type memAccounts struct {
	mu   sync.Mutex
	byID map[string]*models.Account
	err  error
	// createErr fails Create only, as a unique violation racing the
	// availability check would.
	createErr error
	// beforeSwapMedia runs ahead of SwapMedia, outside the lock, so tests
	// can slip in a concurrent writer.
	beforeSwapMedia func()
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byID: map[string]*models.Account{}}
}

func (m *memAccounts) get(id string) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

func (m *memAccounts) put(a *models.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.byID[a.ID] = &cp
}

func (m *memAccounts) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
}

func (m *memAccounts) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.createErr != nil {
		return nil, m.createErr
	}
	for _, other := range m.byID {
		if other.Username == a.Username || other.Email == a.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	cp := *a
	cp.ID = uuid.NewString()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memAccounts) find(match func(*models.Account) bool) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, a := range m.byID {
		if match(a) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memAccounts) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return m.find(func(a *models.Account) bool { return a.ID == id })
}

func (m *memAccounts) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	return m.find(func(a *models.Account) bool { return a.Username == strings.ToLower(username) })
}

func (m *memAccounts) FindByIdentity(ctx context.Context, username, email string) (*models.Account, error) {
	if username != "" {
		a, err := m.FindByUsername(ctx, username)
		if !errors.Is(err, common.ErrorNotFound) {
			return a, err
		}
	}
	if email == "" {
		return nil, common.ErrorNotFound
	}
	return m.find(func(a *models.Account) bool { return a.Email == strings.ToLower(email) })
}

func (m *memAccounts) FindOwners(ctx context.Context, ids []string) (map[string]models.OwnerProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := map[string]models.OwnerProfile{}
	for _, id := range ids {
		if a, ok := m.byID[id]; ok {
			out[id] = models.OwnerProfile{ID: a.ID, Username: a.Username, FullName: a.FullName, Avatar: a.Avatar.URL}
		}
	}
	return out, nil
}

func (m *memAccounts) update(id string, fn func(a *models.Account) bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	a, ok := m.byID[id]
	if !ok {
		return false, common.ErrorNotFound
	}
	if !fn(a) {
		return false, nil
	}
	a.UpdatedAt = time.Now()
	return true, nil
}

func (m *memAccounts) SetRefreshToken(ctx context.Context, id, token string) error {
	_, err := m.update(id, func(a *models.Account) bool { a.RefreshToken = token; return true })
	return err
}

func (m *memAccounts) SwapRefreshToken(ctx context.Context, id, expected, next string) (bool, error) {
	ok, err := m.update(id, func(a *models.Account) bool {
		if expected == "" || a.RefreshToken != expected {
			return false
		}
		a.RefreshToken = next
		return true
	})
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	return ok, err
}

func (m *memAccounts) SwapMedia(ctx context.Context, id string, slot models.MediaSlot, expectedKey string, next models.MediaRef) (bool, error) {
	if m.beforeSwapMedia != nil {
		m.beforeSwapMedia()
	}
	ok, err := m.update(id, func(a *models.Account) bool {
		if a.Media(slot).Key != expectedKey {
			return false
		}
		a.SetMedia(slot, next)
		return true
	})
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	return ok, err
}

func (m *memAccounts) UpdatePassword(ctx context.Context, id, hash string) error {
	_, err := m.update(id, func(a *models.Account) bool { a.PasswordHash = hash; return true })
	return err
}

func (m *memAccounts) UpdateDetails(ctx context.Context, id, fullName, email string) (*models.Account, error) {
	m.mu.Lock()
	for _, other := range m.byID {
		if other.ID != id && other.Email == email {
			m.mu.Unlock()
			return nil, common.ErrorAlreadyExists
		}
	}
	m.mu.Unlock()

	if _, err := m.update(id, func(a *models.Account) bool {
		a.FullName = fullName
		a.Email = email
		return true
	}); err != nil {
		return nil, err
	}
	return m.get(id), nil
}

// --- activity ---

type watchEvent struct {
	id        int64
	accountID string
	videoID   string
	at        time.Time
}

type memActivity struct {
	mu      sync.Mutex
	subs    map[[2]string]struct{}
	videos  map[string]models.Video
	history []watchEvent
	nextID  int64
	err     error
}

func newMemActivity() *memActivity {
	return &memActivity{subs: map[[2]string]struct{}{}, videos: map[string]models.Video{}}
}

func (m *memActivity) addVideo(ownerID, title string) models.Video {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := models.Video{ID: uuid.NewString(), OwnerID: ownerID, Title: title, VideoURL: "https://cdn/" + title + ".mp4", IsPublished: true}
	m.videos[v.ID] = v
	return v
}

func (m *memActivity) removeVideo(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.videos, id)
}

func (m *memActivity) ChannelStats(ctx context.Context, channelID, viewerID string) (*models.ChannelStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s := &models.ChannelStats{}
	for k := range m.subs {
		if k[1] == channelID {
			s.Subscribers++
			if k[0] == viewerID {
				s.IsSubscribed = true
			}
		}
		if k[0] == channelID {
			s.SubscribedTo++
		}
	}
	return s, nil
}

func (m *memActivity) Subscribe(ctx context.Context, subscriberID, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.subs[[2]string{subscriberID, channelID}] = struct{}{}
	return nil
}

func (m *memActivity) Unsubscribe(ctx context.Context, subscriberID, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.subs, [2]string{subscriberID, channelID})
	return nil
}

func (m *memActivity) RecordWatch(ctx context.Context, accountID, videoID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	if _, ok := m.videos[videoID]; !ok {
		return 0, common.ErrorNotFound
	}
	m.nextID++
	m.history = append(m.history, watchEvent{id: m.nextID, accountID: accountID, videoID: videoID, at: time.Now()})
	return m.nextID, nil
}

func (m *memActivity) WatchHistory(ctx context.Context, accountID string) ([]models.WatchEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := []models.WatchEntry{}
	for _, e := range m.history {
		v, ok := m.videos[e.videoID]
		if e.accountID != accountID || !ok {
			continue
		}
		out = append(out, models.WatchEntry{EventID: e.id, WatchedAt: e.at, Video: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventID > out[j].EventID })
	return out, nil
}

// --- releases ---

type memReleases struct {
	mu     sync.Mutex
	items  map[int64]*models.PendingRelease
	nextID int64
	err    error
}

func newMemReleases() *memReleases {
	return &memReleases{items: map[int64]*models.PendingRelease{}}
}

func (m *memReleases) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, p := range m.items {
		out = append(out, p.Key)
	}
	sort.Strings(out)
	return out
}

func (m *memReleases) Enqueue(ctx context.Context, key, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, p := range m.items {
		if p.Key == key {
			p.LastError = reason
			return nil
		}
	}
	m.nextID++
	m.items[m.nextID] = &models.PendingRelease{ID: m.nextID, Key: key, LastError: reason, CreatedAt: time.Now()}
	return nil
}

func (m *memReleases) Due(ctx context.Context, limit int) ([]models.PendingRelease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.PendingRelease
	for _, p := range m.items {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memReleases) Done(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *memReleases) Failed(ctx context.Context, id int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.items[id]; ok {
		p.Attempts++
		p.LastError = reason
	}
	return nil
}

// --- repo manager ---

type fakeRepoManager struct {
	accounts *memAccounts
	activity *memActivity
	releases *memReleases
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Accounts(db dbx.DBTX) accounts.Repository    { return m.accounts }
func (m *fakeRepoManager) Activity(db dbx.DBTX) activity.Repository    { return m.activity }
func (m *fakeRepoManager) Releases(db dbx.DBTX) releases.Repository    { return m.releases }

// --- blob store ---

type fakeStore struct {
	mu         sync.Mutex
	n          int
	uploadErr  error
	releaseErr error
	// uploadErrFor fails uploads of paths containing the given substring.
	uploadErrFor string
	uploaded     []string
	released     []string
}

func (s *fakeStore) Upload(ctx context.Context, localPath string) (models.MediaRef, error) {
	defer os.Remove(localPath)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil || (s.uploadErrFor != "" && strings.Contains(localPath, s.uploadErrFor)) {
		return models.MediaRef{}, errBoom
	}
	s.n++
	key := "media/" + uuid.NewString() + filepath.Ext(localPath)
	s.uploaded = append(s.uploaded, key)
	return models.MediaRef{URL: "https://cdn.example/" + key, Key: key}, nil
}

func (s *fakeStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.releaseErr != nil {
		return s.releaseErr
	}
	s.released = append(s.released, key)
	return nil
}

func (s *fakeStore) releasedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.released...)
}

// --- environment ---

type testEnv struct {
	cfg      *config.Config
	rm       *fakeRepoManager
	store    *fakeStore
	tokens   *TokenService
	media    *MediaService
	sessions *SessionService
	graph    *GraphService
	janitor  *MediaJanitor
}

func testConfig() *config.Config {
	return &config.Config{
		AccessTokenSecret:            "access-secret",
		RefreshTokenSecret:           "refresh-secret",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 2 * time.Hour,
		RequestTimeout:               time.Second,
	}
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	for _, fn := range mutate {
		fn(cfg)
	}

	rm := &fakeRepoManager{accounts: newMemAccounts(), activity: newMemActivity(), releases: newMemReleases()}
	store := &fakeStore{}
	logger := logging.Discard()

	tokens := NewTokenService(nil, rm, cfg, logger)
	media := NewMediaService(nil, rm, store, cfg, logger)
	return &testEnv{
		cfg:      cfg,
		rm:       rm,
		store:    store,
		tokens:   tokens,
		media:    media,
		sessions: NewSessionService(nil, rm, tokens, media, cfg, logger),
		graph:    NewGraphService(nil, rm, cfg, logger),
		janitor:  NewMediaJanitor(nil, rm, store, logger),
	}
}

// stage writes a throwaway local file the way the upload handler does.
func stage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("image-bytes"), 0o600))
	return path
}

// register creates an account through the service and returns its id.
func (e *testEnv) register(t *testing.T, username, password string) string {
	t.Helper()
	acc, err := e.sessions.Register(context.Background(), RegisterInput{
		FullName:   strings.ToUpper(username[:1]) + username[1:],
		Email:      username + "@example.com",
		Username:   username,
		Password:   password,
		AvatarPath: stage(t, username+".png"),
	})
	require.NoError(t, err)
	return acc.ID
}
