// Package service contains the application operations: registration, login,
// profile access and the conditional mutations of the saved-story set and
// account record. Every mutation is expressed as a predicate+mutation pair
// executed by the storage conditional-update primitive; the service itself
// holds no locks and never retries a rejected mutation.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/thoas/go-funk"
	"golang.org/x/crypto/bcrypt"

	"github.com/patric-chuzhbe/newswatcher/internal/db/storage"
	"github.com/patric-chuzhbe/newswatcher/internal/models"
	"github.com/patric-chuzhbe/newswatcher/internal/user"
)

const passwordHashCost = 10

type userKeeper interface {
	FindUserByEmail(ctx context.Context, email string) (*user.User, bool, error)
	FindUserByID(ctx context.Context, userID string) (*user.User, bool, error)
	InsertUser(ctx context.Context, usr *user.User) (string, error)
	DeleteUserByID(ctx context.Context, userID string) (bool, error)
}

type conditionalUpdater interface {
	UpdateUserIf(
		ctx context.Context,
		userID string,
		predicate storage.Predicate,
		mutate storage.Mutation,
	) (*user.User, error)
}

type homeNewsKeeper interface {
	GetHomeNews(ctx context.Context) ([]user.Story, error)
}

type statsKeeper interface {
	GetNumberOfUsers(ctx context.Context) (int64, error)
	GetNumberOfSavedStories(ctx context.Context) (int64, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type userStorage interface {
	userKeeper
	conditionalUpdater
	homeNewsKeeper
	statsKeeper
	pinger
}

type refreshEnqueuer interface {
	EnqueueJob(job *models.RefreshJob)
}

// Service implements the application operations on top of a storage backend
// and the background news refresher.
type Service struct {
	db        userStorage
	refresher refreshEnqueuer
}

func New(db userStorage, refresher refreshEnqueuer) *Service {
	return &Service{
		db:        db,
		refresher: refresher,
	}
}

// Register creates a new account with the default settings and news filter.
// The e-mail uniqueness guard is lookup-then-insert; the storage backend may
// additionally enforce it with a unique index, in which case the insert
// reports the duplicate.
func (s *Service) Register(ctx context.Context, request models.RegisterRequest) (*user.User, error) {
	_, found, err := s.db.FindUserByEmail(ctx, request.Email)
	if err != nil {
		return nil, err
	}
	if found {
		return nil, models.ErrDuplicateEmail
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(request.Password), passwordHashCost)
	if err != nil {
		return nil, err
	}

	usr := &user.User{
		Email:        request.Email,
		DisplayName:  request.DisplayName,
		PasswordHash: string(passwordHash),
		CreatedAt:    time.Now(),
		Settings: user.Settings{
			RequireWIFI:  true,
			EnableAlerts: false,
		},
		NewsFilters: []user.NewsFilter{
			{
				Name:        "Technology Companies",
				KeyWords:    []string{"Apple", "Microsoft", "IBM", "Amazon", "Google", "Intel"},
				NewsStories: []user.Story{},
			},
		},
		SavedStories: []user.Story{},
	}

	userID, err := s.db.InsertUser(ctx, usr)
	if err != nil {
		return nil, err
	}
	usr.ID = userID

	s.refresher.EnqueueJob(&models.RefreshJob{UserID: userID})

	return usr, nil
}

// Login verifies the presented password against the stored hash and returns
// the account. The bcrypt comparison is deliberately slow; both the
// unknown-email and wrong-password cases collapse into one error so the
// response does not reveal which part failed.
func (s *Service) Login(ctx context.Context, request models.LoginRequest) (*user.User, error) {
	usr, found, err := s.db.FindUserByEmail(ctx, request.Email)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, models.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(usr.PasswordHash), []byte(request.Password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}

	return usr, nil
}

// FetchProfile returns the client-visible projection of the account.
// The password hash is never part of it.
func (s *Service) FetchProfile(ctx context.Context, userID string) (*models.Profile, error) {
	usr, found, err := s.db.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, models.ErrUserNotFound
	}

	return &models.Profile{
		Email:        usr.Email,
		DisplayName:  usr.DisplayName,
		Date:         usr.CreatedAt,
		Settings:     usr.Settings,
		NewsFilters:  usr.NewsFilters,
		SavedStories: usr.SavedStories,
	}, nil
}

// SaveStory adds a story to the saved-story set. The predicate enforces both
// invariants at once - the story is not already present and the set is below
// capacity - so two racers for the last slot cannot both get in. On a failed
// predicate the store cannot tell "already saved" from "at capacity" without
// a follow-up read, so both are reported as models.ErrSaveRejected; callers
// may re-fetch the profile to disambiguate. Retrying a rejected save is
// pointless: the identical request fails again until a removal frees a slot.
func (s *Service) SaveStory(ctx context.Context, userID string, story user.Story) ([]user.Story, error) {
	pre, err := s.db.UpdateUserIf(
		ctx,
		userID,
		func(usr *user.User) bool {
			return !usr.HasSavedStory(story.StoryID) && len(usr.SavedStories) < user.MaxSavedStories
		},
		func(usr *user.User) {
			usr.SavedStories = append(usr.SavedStories, story)
		},
	)
	if err != nil {
		if errors.Is(err, models.ErrNoMatch) {
			return nil, models.ErrSaveRejected
		}

		return nil, err
	}

	return pre.SavedStories, nil
}

// RemoveStory removes the story with the given ID from the saved-story set.
// Removal is idempotent: a story that is already gone is a successful no-op.
func (s *Service) RemoveStory(ctx context.Context, userID, storyID string) ([]user.Story, error) {
	pre, err := s.db.UpdateUserIf(
		ctx,
		userID,
		nil,
		func(usr *user.User) {
			usr.SavedStories = funk.Filter(
				usr.SavedStories,
				func(story user.Story) bool {
					return story.StoryID != storyID
				},
			).([]user.Story)
		},
	)
	if err != nil {
		if errors.Is(err, models.ErrNoMatch) {
			return nil, models.ErrUserNotFound
		}

		return nil, err
	}

	return pre.SavedStories, nil
}

// UpdateProfile replaces the account's settings and news filters and
// schedules a background refresh of the filter stories.
func (s *Service) UpdateProfile(ctx context.Context, userID string, request models.ProfileUpdateRequest) error {
	_, err := s.db.UpdateUserIf(
		ctx,
		userID,
		nil,
		func(usr *user.User) {
			usr.Settings = request.Settings
			usr.NewsFilters = request.NewsFilters
		},
	)
	if err != nil {
		if errors.Is(err, models.ErrNoMatch) {
			return models.ErrUserNotFound
		}

		return err
	}

	s.refresher.EnqueueJob(&models.RefreshJob{UserID: userID})

	return nil
}

// DeleteAccount permanently removes the account. A delete racing a
// concurrent delete observes no document the second time; that is reported
// as already-deleted, not as a failure.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	deleted, err := s.db.DeleteUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return models.ErrUserNotFound
	}

	return nil
}

// HomeNews returns the shared home-news snapshot.
func (s *Service) HomeNews(ctx context.Context) ([]user.Story, error) {
	return s.db.GetHomeNews(ctx)
}

// GetInternalStats returns service-wide counters for the stats endpoint.
func (s *Service) GetInternalStats(ctx context.Context) (models.InternalStatsResponse, error) {
	users, err := s.db.GetNumberOfUsers(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, err
	}

	savedStories, err := s.db.GetNumberOfSavedStories(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, err
	}

	return models.InternalStatsResponse{
		Users:        users,
		SavedStories: savedStories,
	}, nil
}

// Ping checks the health of the database/storage layer.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
