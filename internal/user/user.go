// Package user defines the account document model used throughout the
// application: identity, credentials, settings, news filters and the
// bounded set of saved stories.
package user

import "time"

// MaxSavedStories is the capacity bound of the saved-story set.
// It is enforced by the storage-level conditional update, never by the client.
const MaxSavedStories = 30

// MaxFilterStories caps how many matched stories a single news filter keeps.
const MaxFilterStories = 15

// User is the account document as it is persisted in storage.
// PasswordHash is part of the stored document but must never be
// returned to clients - response projections are built in the
// models package.
type User struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	DisplayName  string       `json:"displayName"`
	PasswordHash string       `json:"passwordHash"`
	CreatedAt    time.Time    `json:"createdAt"`
	Settings     Settings     `json:"settings"`
	NewsFilters  []NewsFilter `json:"newsFilters"`
	SavedStories []Story      `json:"savedStories"`
}

// Settings holds the account's boolean preference flags.
type Settings struct {
	RequireWIFI  bool `json:"requireWIFI"`
	EnableAlerts bool `json:"enableAlerts"`
}

// NewsFilter is a keyword filter the background refresher fills with
// matched stories.
type NewsFilter struct {
	Name             string   `json:"name" validate:"required,max=50"`
	KeyWords         []string `json:"keyWords" validate:"required,min=1,max=10,dive,required,max=20"`
	EnableAlert      bool     `json:"enableAlert"`
	AlertFrequency   int      `json:"alertFrequency"`
	EnableAutoDelete bool     `json:"enableAutoDelete"`
	DeleteTime       int64    `json:"deleteTime"`
	TimeOfLastScan   int64    `json:"timeOfLastScan"`
	NewsStories      []Story  `json:"newsStories"`
}

// Story is a reference to an external news story. Within a user's
// savedStories it behaves as a set member keyed by StoryID.
type Story struct {
	StoryID        string `json:"storyID" validate:"required,max=100"`
	Title          string `json:"title" validate:"required,max=200"`
	Source         string `json:"source" validate:"required,max=50"`
	Link           string `json:"link" validate:"required,max=300"`
	ImageURL       string `json:"imageUrl" validate:"required,max=300"`
	ContentSnippet string `json:"contentSnippet" validate:"required,max=300"`
	Date           int64  `json:"date" validate:"required"`
	Hours          string `json:"hours" validate:"omitempty,max=20"`
	Keep           bool   `json:"keep"`
}

// HasSavedStory reports whether a story with the given ID is already
// in the saved-story set.
func (u *User) HasSavedStory(storyID string) bool {
	for _, story := range u.SavedStories {
		if story.StoryID == storyID {
			return true
		}
	}

	return false
}

// Clone returns a deep copy of the document. Storage implementations
// use it so the pre-update snapshot handed back to callers does not
// alias the stored document.
func (u *User) Clone() *User {
	clone := *u

	clone.SavedStories = append([]Story(nil), u.SavedStories...)

	clone.NewsFilters = make([]NewsFilter, len(u.NewsFilters))
	for i, filter := range u.NewsFilters {
		clone.NewsFilters[i] = filter
		clone.NewsFilters[i].KeyWords = append([]string(nil), filter.KeyWords...)
		clone.NewsFilters[i].NewsStories = append([]Story(nil), filter.NewsStories...)
	}

	return &clone
}
