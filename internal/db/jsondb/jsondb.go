// Package jsondb is a file-backed storage implementation. The whole data set
// lives in an in-memory cache guarded by a mutex and is flushed to a JSON
// file on Close. The mutex is what makes UpdateUserIf an atomic
// read-modify-write here.
package jsondb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/patric-chuzhbe/newswatcher/internal/db/storage"
	"github.com/patric-chuzhbe/newswatcher/internal/models"
	"github.com/patric-chuzhbe/newswatcher/internal/user"
)

type JSONDB struct {
	fileName string
	mu       sync.RWMutex
	Cache    CacheStruct
}

type CacheStruct struct {
	Users     map[string]*user.User
	EmailToID map[string]string
	HomeNews  []user.Story
}

func initDBFile(fileName string) error {
	dbFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(dbFile, `{
	"Users": {},
	"EmailToID": {},
	"HomeNews": []
}`)
	if err != nil {
		return err
	}
	return dbFile.Close()
}

func writeToJSONFile(fileName string, cache interface{}) error {
	jsonData, err := json.MarshalIndent(cache, "", "\t")
	if err != nil {
		return fmt.Errorf("error marshaling JSON: %s", err)
	}

	file, err2 := os.OpenFile(fileName, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0644)
	if err2 != nil {
		return fmt.Errorf("error opening file: %s", err2)
	}
	defer file.Close()

	_, err = file.Write(jsonData)
	if err != nil {
		return fmt.Errorf("error writing to file: %s", err)
	}

	return nil
}

func parseJSONFile(fileName string, cacheMap *CacheStruct) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	err = decoder.Decode(cacheMap)
	if err != nil {
		return err
	}

	return nil
}

func New(fileName string) (*JSONDB, error) {
	theDB := JSONDB{
		fileName: fileName,
		Cache:    CacheStruct{},
	}

	err := parseJSONFile(theDB.fileName, &theDB.Cache)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		err := initDBFile(fileName)
		if err != nil {
			return nil, err
		}
		err = parseJSONFile(theDB.fileName, &theDB.Cache)
		if err != nil {
			return nil, err
		}
	}

	if theDB.Cache.Users == nil {
		theDB.Cache.Users = map[string]*user.User{}
	}
	if theDB.Cache.EmailToID == nil {
		theDB.Cache.EmailToID = map[string]string{}
	}

	return &theDB, nil
}

func (db *JSONDB) FindUserByEmail(ctx context.Context, email string) (*user.User, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	userID, found := db.Cache.EmailToID[strings.ToLower(email)]
	if !found {
		return nil, false, nil
	}

	usr, found := db.Cache.Users[userID]
	if !found {
		return nil, false, nil
	}

	return usr.Clone(), true, nil
}

func (db *JSONDB) FindUserByID(ctx context.Context, userID string) (*user.User, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	usr, found := db.Cache.Users[userID]
	if !found {
		return nil, false, nil
	}

	return usr.Clone(), true, nil
}

func (db *JSONDB) InsertUser(ctx context.Context, usr *user.User) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	emailKey := strings.ToLower(usr.Email)
	if _, found := db.Cache.EmailToID[emailKey]; found {
		return "", models.ErrDuplicateEmail
	}

	stored := usr.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}

	db.Cache.Users[stored.ID] = stored
	db.Cache.EmailToID[emailKey] = stored.ID

	return stored.ID, nil
}

// UpdateUserIf applies mutate to the stored document when predicate holds,
// returning the pre-mutation snapshot. The store-wide mutex serializes
// concurrent updates, so a losing racer observes the winner's mutation in
// its predicate evaluation.
func (db *JSONDB) UpdateUserIf(
	ctx context.Context,
	userID string,
	predicate storage.Predicate,
	mutate storage.Mutation,
) (*user.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	usr, found := db.Cache.Users[userID]
	if !found {
		return nil, models.ErrNoMatch
	}

	if predicate != nil && !predicate(usr) {
		return nil, models.ErrNoMatch
	}

	pre := usr.Clone()
	if mutate != nil {
		mutate(usr)
	}

	return pre, nil
}

func (db *JSONDB) DeleteUserByID(ctx context.Context, userID string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	usr, found := db.Cache.Users[userID]
	if !found {
		return false, nil
	}

	delete(db.Cache.Users, userID)
	delete(db.Cache.EmailToID, strings.ToLower(usr.Email))

	return true, nil
}

func (db *JSONDB) ListUserIDs(ctx context.Context) ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	userIDs := make([]string, 0, len(db.Cache.Users))
	for userID := range db.Cache.Users {
		userIDs = append(userIDs, userID)
	}

	return userIDs, nil
}

func (db *JSONDB) GetHomeNews(ctx context.Context) ([]user.Story, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return append([]user.Story(nil), db.Cache.HomeNews...), nil
}

func (db *JSONDB) SetHomeNews(ctx context.Context, stories []user.Story) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.Cache.HomeNews = append([]user.Story(nil), stories...)

	return nil
}

func (db *JSONDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return int64(len(db.Cache.Users)), nil
}

func (db *JSONDB) GetNumberOfSavedStories(ctx context.Context) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var total int64
	for _, usr := range db.Cache.Users {
		total += int64(len(usr.SavedStories))
	}

	return total, nil
}

func (db *JSONDB) Ping(ctx context.Context) error {
	return nil
}

func (db *JSONDB) Close() error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	err := writeToJSONFile(db.fileName, &db.Cache)
	if err != nil {
		return err
	}

	return nil
}
