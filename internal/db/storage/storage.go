// Package storage declares the interface every storage backend implements.
// The single point of concurrency control is UpdateUserIf: an atomic
// read-modify-write over one account document. The core never assumes
// transactions spanning documents.
package storage

import (
	"context"

	"github.com/patric-chuzhbe/newswatcher/internal/user"
)

// Predicate is evaluated against the current account document inside the
// conditional update. It must be a pure function of the document.
type Predicate func(*user.User) bool

// Mutation is applied to the account document when the predicate holds.
type Mutation func(*user.User)

type Storage interface {
	// FindUserByEmail looks an account up by its e-mail address
	// (matched case-insensitively).
	FindUserByEmail(ctx context.Context, email string) (*user.User, bool, error)

	FindUserByID(ctx context.Context, userID string) (*user.User, bool, error)

	// InsertUser stores a new account document and returns its assigned
	// identity. It fails with models.ErrDuplicateEmail when the email is
	// already registered.
	InsertUser(ctx context.Context, usr *user.User) (string, error)

	// UpdateUserIf atomically applies mutate to the document with the given
	// id when predicate holds, returning a snapshot of the document as it
	// was before the mutation. When the document is absent or the predicate
	// fails, it returns models.ErrNoMatch and mutates nothing.
	UpdateUserIf(
		ctx context.Context,
		userID string,
		predicate Predicate,
		mutate Mutation,
	) (*user.User, error)

	// DeleteUserByID removes the account document, reporting whether a
	// document was actually deleted.
	DeleteUserByID(ctx context.Context, userID string) (bool, error)

	ListUserIDs(ctx context.Context) ([]string, error)

	GetHomeNews(ctx context.Context) ([]user.Story, error)

	SetHomeNews(ctx context.Context, stories []user.Story) error

	GetNumberOfUsers(ctx context.Context) (int64, error)

	GetNumberOfSavedStories(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error

	Close() error
}
