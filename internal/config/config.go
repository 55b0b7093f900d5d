// Package config loads the service configuration from command line flags,
// environment variables and an optional .env file, and validates it.
package config

import (
	"flag"
	"log"
	"os"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the service.
// Environment variables override flag values, flags override defaults.
type Config struct {
	RunAddr                  string        `env:"SERVER_ADDRESS" validate:"hostname_port"`
	LogLevel                 string        `env:"LOG_LEVEL" validate:"loglevel"`
	Environment              string        `env:"ENVIRONMENT" validate:"environment"`
	DBFileName               string        `env:"FILE_STORAGE_PATH" validate:"omitempty,filepath"`
	DatabaseDSN              string        `env:"DATABASE_DSN"`
	DBConnectionTimeout      time.Duration `env:"DB_CONNECTION_TIMEOUT"`
	MigrationsDir            string        `env:"MIGRATIONS_DIR"`
	TokenSigningSecretKey    string        `env:"TOKEN_SIGNING_SECRET_KEY" validate:"required"`
	TokenTTL                 time.Duration `env:"TOKEN_TTL" validate:"gt=0"`
	AuthCookieName           string        `env:"AUTH_COOKIE_NAME" validate:"required"`
	TrustedSubnet            string        `env:"TRUSTED_SUBNET" validate:"omitempty,cidr"`
	FeedURLs                 []string      `env:"FEED_URLS" envSeparator:","`
	RefreshSchedule          string        `env:"REFRESH_SCHEDULE"`
	ChannelCapacity          int           `env:"CHANNEL_CAPACITY" validate:"gt=0"`
	DelayBetweenQueueFetches time.Duration `env:"DELAY_BETWEEN_QUEUE_FETCHES" validate:"gt=0"`
}

func validateFilePath(fieldLevel validator.FieldLevel) bool {
	path := fieldLevel.Field().String()
	_, err := os.Stat(path)

	return err == nil || os.IsNotExist(err)
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	value := fieldLevel.Field().String()

	allowedLogLevels := map[string]bool{
		"debug":   true,
		"info":    true,
		"warning": true,
		"error":   true,
		"fatal":   true,
	}

	return allowedLogLevels[value]
}

func validateEnvironment(fieldLevel validator.FieldLevel) bool {
	value := fieldLevel.Field().String()

	allowedEnvironments := map[string]bool{
		"development": true,
		"testing":     true,
		"production":  true,
	}

	return allowedEnvironments[value]
}

func (c *Config) validate() error {
	validate := validator.New()

	err := validate.RegisterValidation("loglevel", validateLogLevel)
	if err != nil {
		return err
	}

	err = validate.RegisterValidation("filepath", validateFilePath)
	if err != nil {
		return err
	}

	err = validate.RegisterValidation("environment", validateEnvironment)
	if err != nil {
		return err
	}

	return validate.Struct(c)
}

// InitOption configures the behavior of New.
type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
}

// WithDisableFlagsParsing disables flag.Parse during initialization.
// It is used by tests, where the flag set already belongs to the test binary.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

// New builds the configuration from defaults, flags, a .env file and
// environment variables, then validates it.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	err := godotenv.Load()
	if err != nil {
		log.Printf("Unable to load .env file: %v", err)
	}

	cfg := &Config{
		RunAddr:                  ":8080",
		LogLevel:                 "info",
		Environment:              "development",
		DBFileName:               "",
		DatabaseDSN:              "",
		DBConnectionTimeout:      10 * time.Second,
		MigrationsDir:            "cmd/newswatcher/migrations",
		TokenSigningSecretKey:    "c2VjcmV0LW5ld3N3YXRjaGVyLXNpZ25pbmcta2V5",
		TokenTTL:                 24 * time.Hour,
		AuthCookieName:           "newswatcher_token",
		TrustedSubnet:            "",
		FeedURLs:                 nil,
		RefreshSchedule:          "@hourly",
		ChannelCapacity:          100,
		DelayBetweenQueueFetches: 5 * time.Second,
	}
	if !options.disableFlagsParsing {
		flag.StringVar(&cfg.RunAddr, "a", cfg.RunAddr, "address and port to run server")
		flag.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "logger level")
		flag.StringVar(&cfg.Environment, "e", cfg.Environment, "environment: development, testing or production")
		flag.StringVar(&cfg.DBFileName, "f", cfg.DBFileName, "JSON file name with database")
		flag.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "A string with the database connection details")
		flag.StringVar(&cfg.MigrationsDir, "m", cfg.MigrationsDir, "directory with goose migrations")
		flag.StringVar(&cfg.TrustedSubnet, "t", cfg.TrustedSubnet, "CIDR of the subnet trusted to call internal endpoints")
		flag.Parse()
	}

	err = env.Parse(cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
