// Package auth implements the shared-secret login and bearer-key
// validation described in SPEC_FULL.md §4.8. Grounded on
// original_source/src/auth_manager.py: a password matches one of two
// configured secrets, minting an opaque token good until an expiry, with
// an ordered power level (host < admin) rather than a role string compared
// for equality.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"eum-captions/internal/cache"
	"eum-captions/internal/model"
)

// Power is an ordered permission level. Validate checks power >= required,
// per SPEC_FULL.md §9 Open Question 2 — not string equality.
type Power int

const (
	PowerHost Power = iota
	PowerAdmin
)

func (p Power) String() string {
	if p == PowerAdmin {
		return "admin"
	}
	return "host"
}

func parsePower(s string) (Power, bool) {
	switch s {
	case "host":
		return PowerHost, true
	case "admin":
		return PowerAdmin, true
	default:
		return 0, false
	}
}

var (
	// ErrInvalidCredentials is returned when the supplied password matches
	// neither the host nor the admin secret.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInsufficientRole is returned when the requested role exceeds what
	// the matched password grants.
	ErrInsufficientRole = errors.New("auth: requested role exceeds granted power")
)

// Entry is one minted key: its power level and absolute expiry.
type Entry struct {
	Key    string
	Power  Power
	Expire time.Time
}

// Store holds auth entries in memory, mirrored to Postgres so a restart
// doesn't silently invalidate sessions mid-conference, and optionally to a
// shared Redis cache so multiple server instances agree on session state
// without every Validate call hitting Postgres. db and redis may both be
// nil (useful for tests and single-instance deployments).
type Store struct {
	hostPassword  string
	adminPassword string
	lifetime      time.Duration

	db    *gorm.DB
	redis *cache.RedisClient
	log   *zap.SugaredLogger

	mu      sync.RWMutex
	entries map[string]Entry
}

// NewStore constructs an auth store with the two configured secrets.
func NewStore(hostPassword, adminPassword string, lifetime time.Duration, db *gorm.DB, redisClient *cache.RedisClient, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if lifetime <= 0 {
		lifetime = 12 * time.Hour
	}
	return &Store{
		hostPassword:  hostPassword,
		adminPassword: adminPassword,
		lifetime:      lifetime,
		db:            db,
		redis:         redisClient,
		log:           logger,
		entries:       make(map[string]Entry),
	}
}

func redisKey(key string) string { return "auth_entry:" + key }

func encodeEntry(e Entry) string {
	return fmt.Sprintf("%s|%d", e.Power.String(), e.Expire.Unix())
}

func decodeEntry(key, raw string) (Entry, bool) {
	parts := strings.SplitN(raw, "|", 2)
	if len(parts) != 2 {
		return Entry{}, false
	}
	power, ok := parsePower(parts[0])
	if !ok {
		return Entry{}, false
	}
	var unix int64
	if _, err := fmt.Sscanf(parts[1], "%d", &unix); err != nil {
		return Entry{}, false
	}
	return Entry{Key: key, Power: power, Expire: time.Unix(unix, 0)}, true
}

// Login mints a new key if password matches the configured host or admin
// secret and the requested role (if any) is not above what that secret
// grants. requestedRole may be empty, in which case the granted power is
// whatever the matched secret confers.
func (s *Store) Login(password, requestedRole string) (Entry, error) {
	var granted Power
	switch {
	case s.adminPassword != "" && password == s.adminPassword:
		granted = PowerAdmin
	case s.hostPassword != "" && password == s.hostPassword:
		granted = PowerHost
	default:
		return Entry{}, ErrInvalidCredentials
	}

	if requestedRole != "" {
		want, ok := parsePower(requestedRole)
		if !ok || want > granted {
			return Entry{}, ErrInsufficientRole
		}
		granted = want
	}

	key, err := mintKey()
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{Key: key, Power: granted, Expire: time.Now().Add(s.lifetime)}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()

	s.mirror(entry)
	return entry, nil
}

// Validate reports whether key exists, is unexpired, and its power is at
// least requiredPower.
func (s *Store) Validate(key string, requiredPower Power) (Power, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		entry, ok = s.loadFromRedis(key)
	}
	if !ok {
		entry, ok = s.loadFromDB(key)
	}
	if !ok {
		return 0, false
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()

	if time.Now().After(entry.Expire) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return 0, false
	}
	if entry.Power < requiredPower {
		return entry.Power, false
	}
	return entry.Power, true
}

func (s *Store) loadFromDB(key string) (Entry, bool) {
	if s.db == nil {
		return Entry{}, false
	}
	var rec model.AuthEntryRecord
	if err := s.db.Where("key = ?", key).First(&rec).Error; err != nil {
		return Entry{}, false
	}
	power, ok := parsePower(rec.Power)
	if !ok {
		return Entry{}, false
	}
	return Entry{Key: rec.Key, Power: power, Expire: rec.Expire}, true
}

func (s *Store) loadFromRedis(key string) (Entry, bool) {
	if s.redis == nil {
		return Entry{}, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	raw, found, err := s.redis.Get(ctx, redisKey(key))
	if err != nil {
		s.log.Warnw("redis auth lookup failed", "error", err)
		return Entry{}, false
	}
	if !found {
		return Entry{}, false
	}
	return decodeEntry(key, raw)
}

func (s *Store) mirror(entry Entry) {
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := s.redis.Set(ctx, redisKey(entry.Key), encodeEntry(entry), time.Until(entry.Expire)); err != nil {
			s.log.Warnw("failed to mirror auth entry to redis", "error", err)
		}
		cancel()
	}

	if s.db == nil {
		return
	}
	rec := model.AuthEntryRecord{
		Key:    entry.Key,
		Power:  entry.Power.String(),
		Expire: entry.Expire,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		s.log.Warnw("failed to mirror auth entry to database", "error", err)
	}
}

func mintKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
