package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goRenew/password"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrDuplicateIdentity is returned by Create when the identity is already registered.
	ErrDuplicateIdentity = errors.New("identity already registered")
	// ErrInvalidCredentials covers both unknown identities and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidIdentity rejects an empty identity.
	ErrInvalidIdentity = errors.New("identity is required")
	// ErrNotFound is returned by ByID for unknown subjects.
	ErrNotFound = errors.New("user not found")
)

// User is a registered principal. ID is the subject id carried in credentials.
type User struct {
	ID           string `gorm:"primaryKey;size:36"`
	Identity     string `gorm:"uniqueIndex;size:320;not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"size:64;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Open connects to the sqlite database at dsn.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open user database: %w", err)
	}
	return db, nil
}

// Store is the user directory. Passwords are stored as argon2id hashes.
type Store struct {
	db          *gorm.DB
	hasher      *password.Argon2
	defaultRole string
}

// NewStore migrates the schema and returns a Store. Users created without a role get
// defaultRole.
func NewStore(db *gorm.DB, hasher *password.Argon2, defaultRole string) (*Store, error) {
	if db == nil || hasher == nil {
		return nil, errors.New("users: db and hasher are required")
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, fmt.Errorf("migrate users: %w", err)
	}
	if defaultRole == "" {
		defaultRole = "USER"
	}
	return &Store{db: db, hasher: hasher, defaultRole: defaultRole}, nil
}

// Create registers identity with the given password.
func (s *Store) Create(ctx context.Context, identity, pass, role string) (*User, error) {
	identity = NormalizeIdentity(identity)
	if identity == "" {
		return nil, ErrInvalidIdentity
	}
	if role == "" {
		role = s.defaultRole
	}

	hash, err := s.hasher.Hash(pass)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:           uuid.NewString(),
		Identity:     identity,
		PasswordHash: hash,
		Role:         strings.ToUpper(role),
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateIdentity
		}
		return nil, err
	}
	return u, nil
}

// Authenticate returns the user when pass matches. Hashes produced under weaker
// parameters are upgraded in place; a failed upgrade does not fail the login.
func (s *Store) Authenticate(ctx context.Context, identity, pass string) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("identity = ?", NormalizeIdentity(identity)).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := s.hasher.Verify(pass, u.PasswordHash)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if upgrade, _ := s.hasher.NeedsUpgrade(u.PasswordHash); upgrade {
		if hash, err := s.hasher.Hash(pass); err == nil {
			if s.db.WithContext(ctx).Model(&u).Update("password_hash", hash).Error == nil {
				u.PasswordHash = hash
			}
		}
	}
	return &u, nil
}

// ByID looks a user up by subject id.
func (s *Store) ByID(ctx context.Context, id string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Count returns the number of registered users.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&User{}).Count(&n).Error
	return n, err
}

// NormalizeIdentity is the canonical form identities are stored and looked up in.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}
