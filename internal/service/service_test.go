package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/newswatcher/internal/db/memorystorage"
	"github.com/patric-chuzhbe/newswatcher/internal/models"
	"github.com/patric-chuzhbe/newswatcher/internal/user"
)

type refresherStub struct {
	mu   sync.Mutex
	jobs []*models.RefreshJob
}

func (r *refresherStub) EnqueueJob(job *models.RefreshJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
}

func (r *refresherStub) jobCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func newTestService(t *testing.T) (*Service, *refresherStub) {
	t.Helper()

	db, err := memorystorage.New()
	require.NoError(t, err)

	refresher := &refresherStub{}

	return New(db, refresher), refresher
}

func registerTestUser(t *testing.T, svc *Service, email string) *user.User {
	t.Helper()

	usr, err := svc.Register(context.Background(), models.RegisterRequest{
		DisplayName: "alice1",
		Email:       email,
		Password:    "abc123!",
	})
	require.NoError(t, err)
	require.NotEmpty(t, usr.ID)

	return usr
}

func testStory(storyID string) user.Story {
	return user.Story{
		StoryID:        storyID,
		Title:          "Title of " + storyID,
		Source:         "test source",
		Link:           "https://example.com/" + storyID,
		ImageURL:       "https://example.com/" + storyID + ".png",
		ContentSnippet: "snippet",
		Date:           1700000000000,
	}
}

func TestRegister(t *testing.T) {
	svc, refresher := newTestService(t)

	usr := registerTestUser(t, svc, "alice@x.com")

	assert.NotEqual(t, "abc123!", usr.PasswordHash)
	assert.NotContains(t, usr.PasswordHash, "abc123!")
	assert.Empty(t, usr.SavedStories)
	assert.True(t, usr.Settings.RequireWIFI)
	assert.False(t, usr.Settings.EnableAlerts)
	require.Len(t, usr.NewsFilters, 1)
	assert.Equal(t, "Technology Companies", usr.NewsFilters[0].Name)
	assert.Equal(t, 1, refresher.jobCount())
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)

	registerTestUser(t, svc, "alice@x.com")

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		DisplayName: "alice2",
		Email:       "Alice@X.com",
		Password:    "abc123!",
	})
	assert.ErrorIs(t, err, models.ErrDuplicateEmail)
}

func TestLogin(t *testing.T) {
	svc, _ := newTestService(t)
	registered := registerTestUser(t, svc, "alice@x.com")

	usr, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "alice@x.com",
		Password: "abc123!",
	})
	require.NoError(t, err)
	assert.Equal(t, registered.ID, usr.ID)

	_, err = svc.Login(context.Background(), models.LoginRequest{
		Email:    "alice@x.com",
		Password: "wrong456!",
	})
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), models.LoginRequest{
		Email:    "nobody@x.com",
		Password: "abc123!",
	})
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestFetchProfile(t *testing.T) {
	svc, _ := newTestService(t)
	usr := registerTestUser(t, svc, "alice@x.com")

	profile, err := svc.FetchProfile(context.Background(), usr.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", profile.Email)
	assert.Equal(t, "alice1", profile.DisplayName)

	_, err = svc.FetchProfile(context.Background(), "missing-user")
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestSaveStoryUpToCapacity(t *testing.T) {
	svc, _ := newTestService(t)
	usr := registerTestUser(t, svc, "alice@x.com")
	ctx := context.Background()

	for i := 0; i < user.MaxSavedStories; i++ {
		pre, err := svc.SaveStory(ctx, usr.ID, testStory(fmt.Sprintf("story-%d", i)))
		require.NoError(t, err)
		assert.Len(t, pre, i)
	}

	_, err := svc.SaveStory(ctx, usr.ID, testStory("story-31"))
	assert.ErrorIs(t, err, models.ErrSaveRejected)

	_, err = svc.RemoveStory(ctx, usr.ID, "story-0")
	require.NoError(t, err)

	_, err = svc.SaveStory(ctx, usr.ID, testStory("story-31"))
	assert.NoError(t, err)
}

func TestSaveStoryDuplicateRejected(t *testing.T) {
	svc, _ := newTestService(t)
	usr := registerTestUser(t, svc, "alice@x.com")
	ctx := context.Background()

	_, err := svc.SaveStory(ctx, usr.ID, testStory("story-1"))
	require.NoError(t, err)

	_, err = svc.SaveStory(ctx, usr.ID, testStory("story-1"))
	assert.ErrorIs(t, err, models.ErrSaveRejected)

	profile, err := svc.FetchProfile(ctx, usr.ID)
	require.NoError(t, err)
	assert.Len(t, profile.SavedStories, 1)
}

func TestSaveStoryForMissingUser(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.SaveStory(context.Background(), "missing-user", testStory("story-1"))
	assert.ErrorIs(t, err, models.ErrSaveRejected)
}

func TestConcurrentSavesKeepInvariants(t *testing.T) {
	svc, _ := newTestService(t)
	usr := registerTestUser(t, svc, "alice@x.com")
	ctx := context.Background()

	const concurrentSaves = 50

	var wg sync.WaitGroup
	for i := 0; i < concurrentSaves; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.SaveStory(ctx, usr.ID, testStory(fmt.Sprintf("story-%d", i)))
			if err != nil {
				assert.ErrorIs(t, err, models.ErrSaveRejected)
			}
		}(i)
	}
	wg.Wait()

	profile, err := svc.FetchProfile(ctx, usr.ID)
	require.NoError(t, err)
	assert.Len(t, profile.SavedStories, user.MaxSavedStories)

	seen := map[string]bool{}
	for _, story := range profile.SavedStories {
		assert.False(t, seen[story.StoryID], "duplicate story %s", story.StoryID)
		seen[story.StoryID] = true
	}
}

func TestConcurrentSavesOfTheSameStory(t *testing.T) {
	svc, _ := newTestService(t)
	usr := registerTestUser(t, svc, "alice@x.com")
	ctx := context.Background()

	const racers = 10

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	rejections := 0
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SaveStory(ctx, usr.ID, testStory("contested-story"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else {
				rejections++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, racers-1, rejections)
}

func TestRemoveStoryIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	usr := registerTestUser(t, svc, "alice@x.com")
	ctx := context.Background()

	_, err := svc.SaveStory(ctx, usr.ID, testStory("story-1"))
	require.NoError(t, err)

	pre, err := svc.RemoveStory(ctx, usr.ID, "story-1")
	require.NoError(t, err)
	assert.Len(t, pre, 1)

	pre, err = svc.RemoveStory(ctx, usr.ID, "story-1")
	require.NoError(t, err)
	assert.Empty(t, pre)

	_, err = svc.RemoveStory(ctx, usr.ID, "never-saved")
	assert.NoError(t, err)
}

func TestUpdateProfile(t *testing.T) {
	svc, refresher := newTestService(t)
	usr := registerTestUser(t, svc, "alice@x.com")
	ctx := context.Background()

	err := svc.UpdateProfile(ctx, usr.ID, models.ProfileUpdateRequest{
		Settings: user.Settings{RequireWIFI: false, EnableAlerts: true},
		NewsFilters: []user.NewsFilter{
			{Name: "Space", KeyWords: []string{"NASA", "SpaceX"}},
		},
	})
	require.NoError(t, err)

	profile, err := svc.FetchProfile(ctx, usr.ID)
	require.NoError(t, err)
	assert.True(t, profile.Settings.EnableAlerts)
	require.Len(t, profile.NewsFilters, 1)
	assert.Equal(t, "Space", profile.NewsFilters[0].Name)

	// One refresh from the registration, one from the filter change.
	assert.Equal(t, 2, refresher.jobCount())

	err = svc.UpdateProfile(ctx, "missing-user", models.ProfileUpdateRequest{})
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestDeleteAccountTwice(t *testing.T) {
	svc, _ := newTestService(t)
	usr := registerTestUser(t, svc, "alice@x.com")
	ctx := context.Background()

	err := svc.DeleteAccount(ctx, usr.ID)
	require.NoError(t, err)

	err = svc.DeleteAccount(ctx, usr.ID)
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	_, err = svc.FetchProfile(ctx, usr.ID)
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestGetInternalStats(t *testing.T) {
	svc, _ := newTestService(t)
	usr := registerTestUser(t, svc, "alice@x.com")
	registerTestUser(t, svc, "bob@x.com")
	ctx := context.Background()

	_, err := svc.SaveStory(ctx, usr.ID, testStory("story-1"))
	require.NoError(t, err)

	stats, err := svc.GetInternalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Users)
	assert.Equal(t, int64(1), stats.SavedStories)
}
