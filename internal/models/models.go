package models

import (
	"errors"
	"time"

	"github.com/patric-chuzhbe/newswatcher/internal/user"
)

// RegisterRequest is the registration payload. The password must be 7 to 15
// characters and contain at least one digit and one of !@#$%^&* - the
// character-class part is checked with a custom validation because the
// pattern is not expressible with built-in validator tags alone.
type RegisterRequest struct {
	DisplayName string `json:"displayName" validate:"required,alphanum,min=3,max=50"`
	Email       string `json:"email" validate:"required,email,min=7,max=50"`
	Password    string `json:"password" validate:"required,accountpassword"`
}

// LoginRequest is the session-creation payload.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued session token and the identity it is
// bound to.
type LoginResponse struct {
	Token       string `json:"token"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// Profile is the client-visible projection of an account document.
// It deliberately has no password hash field.
type Profile struct {
	Email        string            `json:"email"`
	DisplayName  string            `json:"displayName"`
	Date         time.Time         `json:"date"`
	Settings     user.Settings     `json:"settings"`
	NewsFilters  []user.NewsFilter `json:"newsFilters"`
	SavedStories []user.Story      `json:"savedStories"`
}

// ProfileUpdateRequest updates the mutable account fields: preference
// flags and the news filters (at most five).
type ProfileUpdateRequest struct {
	Settings    user.Settings     `json:"settings"`
	NewsFilters []user.NewsFilter `json:"newsFilters" validate:"max=5,dive"`
}

// SavedStoriesResponse is the pre-update saved-story snapshot returned by
// the save and remove operations.
type SavedStoriesResponse struct {
	SavedStories []user.Story `json:"savedStories"`
}

// InternalStatsResponse reports service-wide counters for the
// trusted-subnet stats endpoint.
type InternalStatsResponse struct {
	Users        int64 `json:"users"`
	SavedStories int64 `json:"saved_stories"`
}

const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeFile
	StorageTypeMemory
)

// ErrNoMatch is returned by the storage conditional update when the
// document is absent or the predicate does not hold. The store cannot
// tell the two apart; callers translate it per operation.
var ErrNoMatch = errors.New("conditional update matched no document")

// ErrDuplicateEmail is returned when an insert collides with an already
// registered email address.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrUserNotFound is returned when an account document does not exist.
var ErrUserNotFound = errors.New("user not found")

// ErrSaveRejected is returned when a story cannot be saved because it is
// already present or the saved-story set is at capacity. The two causes
// are intentionally not distinguished at this layer.
var ErrSaveRejected = errors.New("over the save limit, or story already saved")

// ErrInvalidCredentials is returned on a failed email/password login.
var ErrInvalidCredentials = errors.New("invalid email or password")

// RefreshJob asks the background refresher to re-match the news filters
// of one user, or of every user when All is set.
type RefreshJob struct {
	UserID string
	All    bool
}
