// Package postgresdb provides a PostgreSQL-based implementation of the storage
// interface. Account documents are stored as JSONB keyed by uuid; the
// conditional update runs inside one transaction holding a row lock, which
// serializes concurrent mutations of the same document.
package postgresdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/patric-chuzhbe/newswatcher/internal/db/storage"
	"github.com/patric-chuzhbe/newswatcher/internal/models"
	"github.com/patric-chuzhbe/newswatcher/internal/user"
)

const pgUniqueViolationCode = "23505"

// PostgresDB is a PostgreSQL-backed implementation of the account storage.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

type initOptions struct {
	DBPreReset bool
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset enables or disables resetting the database schema before migration.
// It can be used for test setups or development purposes.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// New establishes a connection to the PostgreSQL database,
// runs schema migrations, and returns a configured PostgresDB instance.
// Optionally accepts initialization options, such as WithDBPreReset.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	migrationsDir string,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, err
	}

	result := &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			return nil,
				fmt.Errorf(
					"in internal/db/postgresdb/postgresdb.go/New(): error while `result.resetDB()` calling: %w",
					err,
				)
		}
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `goose.SetDialect()` calling: %w",
				err,
			)
	}

	if err := goose.Up(result.database, migrationsDir); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `goose.Up()` calling: %w",
				err,
			)
	}

	return result, nil
}

// FindUserByEmail looks an account up by e-mail, matched case-insensitively
// against the unique lower(email) index.
func (db *PostgresDB) FindUserByEmail(ctx context.Context, email string) (*user.User, bool, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT doc FROM users WHERE lower(email) = lower($1)`,
		email,
	)

	return scanUserDoc(row)
}

// FindUserByID fetches an account document by its uuid.
func (db *PostgresDB) FindUserByID(ctx context.Context, userID string) (*user.User, bool, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT doc FROM users WHERE id = $1`,
		userID,
	)

	return scanUserDoc(row)
}

// InsertUser stores a new account document, assigning it a uuid identity.
// A collision with the unique e-mail index is reported as
// models.ErrDuplicateEmail.
func (db *PostgresDB) InsertUser(ctx context.Context, usr *user.User) (string, error) {
	stored := usr.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}

	docJSON, err := json.Marshal(stored)
	if err != nil {
		return "", err
	}

	_, err = db.database.ExecContext(
		ctx,
		`INSERT INTO users (id, email, doc) VALUES ($1, $2, $3)`,
		stored.ID,
		stored.Email,
		docJSON,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			return "", models.ErrDuplicateEmail
		}

		return "", err
	}

	return stored.ID, nil
}

// UpdateUserIf performs the atomic conditional update. The SELECT ... FOR
// UPDATE row lock holds until commit, so predicate evaluation and mutation
// are a single linearizable read-modify-write against the document.
func (db *PostgresDB) UpdateUserIf(
	ctx context.Context,
	userID string,
	predicate storage.Predicate,
	mutate storage.Mutation,
) (*user.User, error) {
	transaction, err := db.database.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = transaction.Rollback()
	}()

	row := transaction.QueryRowContext(
		ctx,
		`SELECT doc FROM users WHERE id = $1 FOR UPDATE`,
		userID,
	)

	var docJSON []byte
	if err := row.Scan(&docJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNoMatch
		}

		return nil, err
	}

	usr := &user.User{}
	if err := json.Unmarshal(docJSON, usr); err != nil {
		return nil, err
	}

	if predicate != nil && !predicate(usr) {
		return nil, models.ErrNoMatch
	}

	pre := usr.Clone()
	if mutate != nil {
		mutate(usr)
	}

	updatedJSON, err := json.Marshal(usr)
	if err != nil {
		return nil, err
	}

	_, err = transaction.ExecContext(
		ctx,
		`UPDATE users SET email = $2, doc = $3 WHERE id = $1`,
		userID,
		usr.Email,
		updatedJSON,
	)
	if err != nil {
		return nil, err
	}

	if err := transaction.Commit(); err != nil {
		return nil, err
	}

	return pre, nil
}

// DeleteUserByID removes the account row, reporting whether one existed.
// A delete racing a concurrent delete simply observes zero affected rows
// the second time.
func (db *PostgresDB) DeleteUserByID(ctx context.Context, userID string) (bool, error) {
	result, err := db.database.ExecContext(
		ctx,
		`DELETE FROM users WHERE id = $1`,
		userID,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// ListUserIDs returns the identities of every stored account.
func (db *PostgresDB) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := db.database.QueryContext(ctx, `SELECT id FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []string{}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}

		result = append(result, userID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// GetHomeNews returns the shared home-news snapshot, or an empty list when
// no snapshot has been published yet.
func (db *PostgresDB) GetHomeNews(ctx context.Context) ([]user.Story, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT doc FROM home_news WHERE id = 1`,
	)

	var docJSON []byte
	if err := row.Scan(&docJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []user.Story{}, nil
		}

		return nil, err
	}

	stories := []user.Story{}
	if err := json.Unmarshal(docJSON, &stories); err != nil {
		return nil, err
	}

	return stories, nil
}

// SetHomeNews replaces the shared home-news snapshot.
func (db *PostgresDB) SetHomeNews(ctx context.Context, stories []user.Story) error {
	docJSON, err := json.Marshal(stories)
	if err != nil {
		return err
	}

	_, err = db.database.ExecContext(
		ctx,
		`
			INSERT INTO home_news (id, doc)
				VALUES (1, $1)
				ON CONFLICT (id) DO UPDATE
				SET doc = EXCLUDED.doc;
		`,
		docJSON,
	)
	if err != nil {
		return err
	}

	return nil
}

// GetNumberOfUsers returns the number of registered accounts.
func (db *PostgresDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	row := db.database.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`)

	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

// GetNumberOfSavedStories returns the total size of all saved-story sets.
func (db *PostgresDB) GetNumberOfSavedStories(ctx context.Context) (int64, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT COALESCE(SUM(jsonb_array_length(doc -> 'savedStories')), 0) FROM users`,
	)

	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

// Ping verifies connectivity with the PostgreSQL database within the configured timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

// Close closes the database connection and releases any associated resources.
func (db *PostgresDB) Close() error {
	err := db.database.Close()
	if err != nil {
		return err
	}

	return nil
}

func scanUserDoc(row *sql.Row) (*user.User, bool, error) {
	var docJSON []byte
	if err := row.Scan(&docJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}

		return nil, false, err
	}

	usr := &user.User{}
	if err := json.Unmarshal(docJSON, usr); err != nil {
		return nil, false, err
	}

	return usr, true, nil
}

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
			END $$;
		`,
	)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/resetDB(): error while `db.database.ExecContext()` calling: %w",
			err,
		)
	}
	return nil
}
