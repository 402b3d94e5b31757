// Package store persists the run history: one immutable record per
// reconciliation run, plus the users allowed to read it over the API.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/orgwarden/orgwarden/pkg/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store provides persistence for run history and API users.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	CreateRun(ctx context.Context, run *RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	GetRun(ctx context.Context, id uint) (*RunRecord, error)

	GetUserByUsername(ctx context.Context, username string) (*User, error)
	SeedUsers(ctx context.Context, users []config.BasicAuthUser) error
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a Store backed by the configured database driver.
func NewStore(log logrus.FieldLogger, cfg *config.DatabaseConfig) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&RunRecord{},
		&User{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

// Stop closes the database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting database handle: %w", err)
	}

	return sqlDB.Close()
}

// CreateRun appends one run record to the history.
func (s *store) CreateRun(ctx context.Context, run *RunRecord) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("inserting run record: %w", err)
	}

	return nil
}

// ListRuns returns the most recent runs, newest first, without the
// full change payload.
func (s *store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var runs []RunRecord

	err := s.db.WithContext(ctx).
		Omit("changes").
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}

// GetRun returns one run including its full change payload.
func (s *store) GetRun(ctx context.Context, id uint) (*RunRecord, error) {
	var run RunRecord

	err := s.db.WithContext(ctx).First(&run, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("loading run %d: %w", id, err)
	}

	return &run, nil
}

// GetUserByUsername looks up an API user.
func (s *store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User

	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("loading user %s: %w", username, err)
	}

	return &user, nil
}

// SeedUsers upserts the configured API users with bcrypt-hashed
// passwords.
func (s *store) SeedUsers(ctx context.Context, users []config.BasicAuthUser) error {
	for _, u := range users {
		if u.Username == "" || u.Password == "" {
			s.log.Warn("Skipping API user with empty username or password")

			continue
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hashing password for %s: %w", u.Username, err)
		}

		var existing User

		err = s.db.WithContext(ctx).Where("username = ?", u.Username).First(&existing).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := s.db.WithContext(ctx).Create(&User{
				Username:     u.Username,
				PasswordHash: string(hash),
			}).Error; err != nil {
				return fmt.Errorf("creating user %s: %w", u.Username, err)
			}
		case err != nil:
			return fmt.Errorf("looking up user %s: %w", u.Username, err)
		default:
			existing.PasswordHash = string(hash)
			if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
				return fmt.Errorf("updating user %s: %w", u.Username, err)
			}
		}
	}

	return nil
}
