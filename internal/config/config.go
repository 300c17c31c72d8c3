// Package config loads application configuration from a YAML file, with
// .env and real environment variables layered on top in that order of
// increasing precedence. Grounded on the teacher's config.Load()/cfg.Server
// call sites (server.go, service.go) — the package itself is absent from
// the retrieved pack and rebuilt here from usage.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration tree.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	CORS       CORSConfig       `yaml:"cors"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Auth       AuthConfig       `yaml:"auth"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Room       RoomConfig       `yaml:"room"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Votes      VotesConfig      `yaml:"votes"`
	MT         MTConfig         `yaml:"mt"`
	ASR        ASRConfig        `yaml:"asr"`
	AWS        AWSConfig        `yaml:"aws"`
	S3         S3Config         `yaml:"s3"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
}

type ServerConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

type CORSConfig struct {
	AllowOrigins string `yaml:"allow_origins"`
	AllowHeaders string `yaml:"allow_headers"`
}

type WebSocketConfig struct {
	ReadBufferSize  int `yaml:"read_buffer_size"`
	WriteBufferSize int `yaml:"write_buffer_size"`
}

// AuthConfig carries the two shared secrets the Auth component (§4.8)
// validates logins against, plus the lifetime minted keys get.
type AuthConfig struct {
	HostPassword  string        `yaml:"host_password"`
	AdminPassword string        `yaml:"admin_password"`
	KeyLifetime   time.Duration `yaml:"key_lifetime"`
}

type ScheduleConfig struct {
	URL       string        `yaml:"url"`
	CacheTime time.Duration `yaml:"cache_time"`
	Filter    string        `yaml:"filter"`
	FakeNow   string        `yaml:"fake_now"` // RFC3339, empty = use real clock
}

type RoomConfig struct {
	MaxActiveRooms      int           `yaml:"max_active_rooms"`
	IdleCloseDelay       time.Duration `yaml:"idle_close_delay"`
	DevRoomID            string        `yaml:"dev_room_id"`
	CompareDepth         int           `yaml:"compare_depth"`
	LastN                int           `yaml:"last_n"`
}

type TranscriptConfig struct {
	Root string `yaml:"root"`
}

type VotesConfig struct {
	Dir string `yaml:"dir"`
}

type MTConfig struct {
	Host               string        `yaml:"host"`
	Port               string        `yaml:"port"`
	SupportedLangsPath string        `yaml:"supported_langs_path"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	BatchPerLang       int           `yaml:"batch_per_lang"`
}

type ASRConfig struct {
	SupportedLangs []string `yaml:"supported_langs"`
}

type AWSConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SampleRate      int32  `yaml:"sample_rate"`
}

type S3Config struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig addresses an optional shared cache for auth entries (§10.3).
// Addr empty disables it; the auth store then relies on Postgres alone.
type RedisConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads the YAML file at path, then overlays a .env file (if present)
// and real process environment variables, in that order of precedence.
// A missing YAML file is fatal; a missing .env is not (godotenv.Load
// returning an error just means no .env file exists).
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	_ = godotenv.Load()
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyEnvOverrides lets deploy-time environment variables win over both the
// YAML file and any .env entry, matching the teacher's layering intent.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("AUTH_HOST_PASSWORD"); v != "" {
		cfg.Auth.HostPassword = v
	}
	if v := os.Getenv("AUTH_ADMIN_PASSWORD"); v != "" {
		cfg.Auth.AdminPassword = v
	}
	if v := os.Getenv("SCHEDULE_URL"); v != "" {
		cfg.Schedule.URL = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.AWS.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.AWS.SecretAccessKey = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		cfg.S3.Bucket = v
	}
	if v := os.Getenv("MAX_ACTIVE_ROOMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Room.MaxActiveRooms = n
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.WebSocket.ReadBufferSize == 0 {
		cfg.WebSocket.ReadBufferSize = 4096
	}
	if cfg.WebSocket.WriteBufferSize == 0 {
		cfg.WebSocket.WriteBufferSize = 4096
	}
	if cfg.Auth.KeyLifetime == 0 {
		cfg.Auth.KeyLifetime = 12 * time.Hour
	}
	if cfg.Schedule.CacheTime == 0 {
		cfg.Schedule.CacheTime = 5 * time.Minute
	}
	if cfg.Room.MaxActiveRooms == 0 {
		cfg.Room.MaxActiveRooms = 10
	}
	if cfg.Room.IdleCloseDelay == 0 {
		cfg.Room.IdleCloseDelay = 300 * time.Second
	}
	if cfg.Room.DevRoomID == "" {
		cfg.Room.DevRoomID = "dev_room_id"
	}
	if cfg.Room.CompareDepth == 0 {
		cfg.Room.CompareDepth = 10
	}
	if cfg.Room.LastN == 0 {
		cfg.Room.LastN = 20
	}
	if cfg.Transcript.Root == "" {
		cfg.Transcript.Root = "./data/transcripts"
	}
	if cfg.Votes.Dir == "" {
		cfg.Votes.Dir = "./data/votes"
	}
	if cfg.MT.PollInterval == 0 {
		cfg.MT.PollInterval = time.Second
	}
	if cfg.MT.BatchPerLang == 0 {
		cfg.MT.BatchPerLang = 4
	}
	if cfg.AWS.SampleRate == 0 {
		cfg.AWS.SampleRate = 16000
	}
}
