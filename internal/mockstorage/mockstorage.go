// Package mockstorage provides a testify-based mock implementation
// of the storage interface used by the service and router packages.
// It is used for unit testing HTTP handlers by simulating storage behavior.
package mockstorage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/patric-chuzhbe/newswatcher/internal/db/storage"
	"github.com/patric-chuzhbe/newswatcher/internal/user"
)

// StorageMock is a testify mock that implements the storage interface.
//
// Use it in router and service tests to simulate database behavior or to
// assert that a rejected request never reaches storage.
type StorageMock struct {
	mock.Mock
}

// FindUserByEmail mocks the e-mail lookup.
func (m *StorageMock) FindUserByEmail(ctx context.Context, email string) (*user.User, bool, error) {
	args := m.Called(ctx, email)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Bool(1), args.Error(2)
}

// FindUserByID mocks the identity lookup.
func (m *StorageMock) FindUserByID(ctx context.Context, userID string) (*user.User, bool, error) {
	args := m.Called(ctx, userID)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Bool(1), args.Error(2)
}

// InsertUser mocks account creation and returns a generated ID.
func (m *StorageMock) InsertUser(ctx context.Context, usr *user.User) (string, error) {
	args := m.Called(ctx, usr)
	return args.String(0), args.Error(1)
}

// UpdateUserIf mocks the conditional update primitive.
func (m *StorageMock) UpdateUserIf(
	ctx context.Context,
	userID string,
	predicate storage.Predicate,
	mutate storage.Mutation,
) (*user.User, error) {
	args := m.Called(ctx, userID, predicate, mutate)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Error(1)
}

// DeleteUserByID mocks account deletion.
func (m *StorageMock) DeleteUserByID(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

// ListUserIDs mocks listing of all account identities.
func (m *StorageMock) ListUserIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	userIDs, _ := args.Get(0).([]string)
	return userIDs, args.Error(1)
}

// GetHomeNews mocks fetching of the shared home-news snapshot.
func (m *StorageMock) GetHomeNews(ctx context.Context) ([]user.Story, error) {
	args := m.Called(ctx)
	stories, _ := args.Get(0).([]user.Story)
	return stories, args.Error(1)
}

// SetHomeNews mocks publishing of the shared home-news snapshot.
func (m *StorageMock) SetHomeNews(ctx context.Context, stories []user.Story) error {
	args := m.Called(ctx, stories)
	return args.Error(0)
}

// GetNumberOfUsers mocks the account counter.
func (m *StorageMock) GetNumberOfUsers(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// GetNumberOfSavedStories mocks the saved-story counter.
func (m *StorageMock) GetNumberOfSavedStories(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// Ping mocks the health check.
func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close mocks closing the storage and releasing resources.
func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
