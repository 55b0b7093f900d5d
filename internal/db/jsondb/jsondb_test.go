package jsondb

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/newswatcher/internal/models"
	"github.com/patric-chuzhbe/newswatcher/internal/user"
)

const (
	testDBFileName = "db_test.json"
)

func testUser(email string) *user.User {
	return &user.User{
		Email:        email,
		DisplayName:  "testuser1",
		PasswordHash: "$2a$10$fakefakefakefakefakefake",
		SavedStories: []user.Story{},
	}
}

func Test(t *testing.T) {
	t.Run("The base jsondb package test", func(t *testing.T) {
		theStorage, err := New(testDBFileName)
		require.NoError(t, err)
		require.NotNil(t, theStorage)
		defer func() {
			err := theStorage.Close()
			require.NoError(t, err)
			err = os.Remove(testDBFileName)
			require.NoError(t, err)
		}()

		userID, err := theStorage.InsertUser(context.Background(), testUser("alice@example.com"))
		assert.NoError(t, err, "The `theStorage.InsertUser()` should not return error")
		assert.NotEmpty(t, userID)

		usr, found, err := theStorage.FindUserByID(context.Background(), userID)
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "alice@example.com", usr.Email)

		usr, found, err = theStorage.FindUserByEmail(context.Background(), "Alice@Example.com")
		assert.NoError(t, err, "the e-mail lookup should be case-insensitive")
		assert.True(t, found)
		assert.Equal(t, userID, usr.ID)

		_, found, err = theStorage.FindUserByEmail(context.Background(), "nobody@example.com")
		assert.NoError(t, err)
		assert.False(t, found)

		_, err = theStorage.InsertUser(context.Background(), testUser("ALICE@example.com"))
		assert.ErrorIs(t, err, models.ErrDuplicateEmail)

		userIDs, err := theStorage.ListUserIDs(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, []string{userID}, userIDs)

		deleted, err := theStorage.DeleteUserByID(context.Background(), userID)
		assert.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = theStorage.DeleteUserByID(context.Background(), userID)
		assert.NoError(t, err)
		assert.False(t, deleted)

		_, found, err = theStorage.FindUserByEmail(context.Background(), "alice@example.com")
		assert.NoError(t, err)
		assert.False(t, found, "the e-mail should be free again after the delete")
	})
}

func TestUpdateUserIf(t *testing.T) {
	theStorage, err := New(testDBFileName)
	require.NoError(t, err)
	defer func() {
		err := theStorage.Close()
		require.NoError(t, err)
		err = os.Remove(testDBFileName)
		require.NoError(t, err)
	}()

	userID, err := theStorage.InsertUser(context.Background(), testUser("alice@example.com"))
	require.NoError(t, err)

	story := user.Story{StoryID: "story-1", Title: "A title", Date: 1700000000000}

	pre, err := theStorage.UpdateUserIf(
		context.Background(),
		userID,
		func(usr *user.User) bool { return len(usr.SavedStories) == 0 },
		func(usr *user.User) { usr.SavedStories = append(usr.SavedStories, story) },
	)
	require.NoError(t, err)
	assert.Empty(t, pre.SavedStories, "the returned snapshot precedes the mutation")

	usr, found, err := theStorage.FindUserByID(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, usr.SavedStories, 1)

	// A failed predicate leaves the document untouched.
	_, err = theStorage.UpdateUserIf(
		context.Background(),
		userID,
		func(usr *user.User) bool { return false },
		func(usr *user.User) { usr.SavedStories = nil },
	)
	assert.ErrorIs(t, err, models.ErrNoMatch)

	usr, _, err = theStorage.FindUserByID(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, usr.SavedStories, 1)

	_, err = theStorage.UpdateUserIf(
		context.Background(),
		"missing-user",
		nil,
		func(usr *user.User) {},
	)
	assert.ErrorIs(t, err, models.ErrNoMatch)
}

func TestUpdateUserIfSnapshotIsolation(t *testing.T) {
	theStorage, err := New(testDBFileName)
	require.NoError(t, err)
	defer func() {
		err := theStorage.Close()
		require.NoError(t, err)
		err = os.Remove(testDBFileName)
		require.NoError(t, err)
	}()

	userID, err := theStorage.InsertUser(context.Background(), testUser("alice@example.com"))
	require.NoError(t, err)

	pre, err := theStorage.UpdateUserIf(
		context.Background(),
		userID,
		nil,
		func(usr *user.User) {
			usr.SavedStories = append(usr.SavedStories, user.Story{StoryID: "story-1", Date: 1})
		},
	)
	require.NoError(t, err)

	// Mutating the snapshot must not leak into the store.
	pre.SavedStories = append(pre.SavedStories, user.Story{StoryID: "smuggled", Date: 2})
	pre.Email = "evil@example.com"

	usr, found, err := theStorage.FindUserByID(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "alice@example.com", usr.Email)
	require.Len(t, usr.SavedStories, 1)
	assert.Equal(t, "story-1", usr.SavedStories[0].StoryID)
}

func TestConcurrentUpdateUserIf(t *testing.T) {
	theStorage, err := New(testDBFileName)
	require.NoError(t, err)
	defer func() {
		err := theStorage.Close()
		require.NoError(t, err)
		err = os.Remove(testDBFileName)
		require.NoError(t, err)
	}()

	userID, err := theStorage.InsertUser(context.Background(), testUser("alice@example.com"))
	require.NoError(t, err)

	const writers = 20

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			storyID := fmt.Sprintf("story-%d", i)
			_, err := theStorage.UpdateUserIf(
				context.Background(),
				userID,
				func(usr *user.User) bool { return !usr.HasSavedStory(storyID) },
				func(usr *user.User) {
					usr.SavedStories = append(usr.SavedStories, user.Story{StoryID: storyID, Date: 1})
				},
			)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	usr, found, err := theStorage.FindUserByID(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, usr.SavedStories, writers)
}

func TestPersistenceRoundtrip(t *testing.T) {
	theStorage, err := New(testDBFileName)
	require.NoError(t, err)
	defer func() {
		err := os.Remove(testDBFileName)
		require.NoError(t, err)
	}()

	userID, err := theStorage.InsertUser(context.Background(), testUser("alice@example.com"))
	require.NoError(t, err)

	err = theStorage.SetHomeNews(context.Background(), []user.Story{
		{StoryID: "home-1", Title: "Shared headline", Date: 1700000000000},
	})
	require.NoError(t, err)

	err = theStorage.Close()
	require.NoError(t, err)

	reopened, err := New(testDBFileName)
	require.NoError(t, err)

	usr, found, err := reopened.FindUserByID(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "alice@example.com", usr.Email)

	usr, found, err = reopened.FindUserByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.True(t, found, "the e-mail index should survive the reopen")
	assert.Equal(t, userID, usr.ID)

	homeNews, err := reopened.GetHomeNews(context.Background())
	require.NoError(t, err)
	require.Len(t, homeNews, 1)
	assert.Equal(t, "Shared headline", homeNews[0].Title)
}
