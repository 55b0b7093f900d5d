// Package memorystorage is the in-memory storage backend: a jsondb cache
// without file persistence. It is the default when neither a database DSN
// nor a storage file is configured, and the backend of choice in tests.
package memorystorage

import (
	"context"

	"github.com/patric-chuzhbe/newswatcher/internal/db/jsondb"
	"github.com/patric-chuzhbe/newswatcher/internal/user"
)

type MemoryStorage struct {
	*jsondb.JSONDB
}

func New() (*MemoryStorage, error) {
	return &MemoryStorage{
		JSONDB: &jsondb.JSONDB{
			Cache: jsondb.CacheStruct{
				Users:     map[string]*user.User{},
				EmailToID: map[string]string{},
			},
		},
	}, nil
}

func (theStorage *MemoryStorage) Close() error {
	return nil
}

func (theStorage *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}
