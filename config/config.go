// Package config loads the service configuration from the environment and an optional .env file.
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"shifttrack/utils"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Clock is a wall-clock time of day in the organization's time zone.
type Clock struct {
	Hour   int `validate:"min=0,max=23"`
	Minute int `validate:"min=0,max=59"`
}

// Minutes returns the clock as minutes past midnight.
func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

type DatabaseConfig struct {
	URI              string `validate:"required"`
	DatabaseName     string `validate:"required"`
	MaxPoolSize      uint64
	MinPoolSize      uint64
	MaxConnIdleTime  time.Duration
	RetryWrites      bool
	SessionsColl     string        `validate:"required"`
	UsersColl        string        `validate:"required"`
	ArchiveColl      string        `validate:"required"`
	GeoCacheColl     string        `validate:"required"`
	OperationTimeout time.Duration `validate:"gt=0"`
}

// ShiftConfig describes the billable window and the break windows used by the late-join rule.
type ShiftConfig struct {
	Timezone     string `validate:"required"`
	Location     *time.Location
	Start        Clock
	End          Clock
	MorningGrace time.Duration `validate:"gte=0"`
	LunchStart   Clock
	LunchEnd     Clock
	LunchGrace   time.Duration `validate:"gte=0"`
	TeaStart     Clock
	TeaEnd       Clock
	TeaGrace     time.Duration `validate:"gte=0"`
}

// Length is the configured shift length.
func (s ShiftConfig) Length() time.Duration {
	return time.Duration(s.End.Minutes()-s.Start.Minutes()) * time.Minute
}

type WatcherConfig struct {
	IdleThreshold       time.Duration `validate:"gt=0"`
	DisconnectThreshold time.Duration `validate:"gt=0"`
	Interval            time.Duration `validate:"gt=0"`
	DailyCloseSpec      string        `validate:"required"`
	ArchiveRetention    int           `validate:"gte=0"`
	DeleteRetention     int           `validate:"gte=0"`
	ArchiveChunk        int           `validate:"gt=0"`
}

type PresenceConfig struct {
	BroadcastInterval time.Duration `validate:"gt=0"`
	RedisURL          string
	Channel           string `validate:"required"`
}

type GeocodeConfig struct {
	URL       string
	Timeout   time.Duration `validate:"gt=0"`
	UserAgent string
}

type Config struct {
	Env          string
	Port         string `validate:"required"`
	JWTSecretKey string
	JWTIssuer    string
	LogFile      string
	MaxBodyBytes int64 `validate:"gt=0"`
	CORSOrigins  []string

	Database DatabaseConfig
	Shift    ShiftConfig
	Watcher  WatcherConfig
	Presence PresenceConfig
	Geocode  GeocodeConfig
}

// Load reads .env (if present) and builds a validated Config from the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && os.Getenv("GO_ENV") != "test" {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg := &Config{
		Env:          utils.GetEnvAsString("GO_ENV", "development"),
		Port:         utils.GetEnvAsString("PORT", "8080"),
		JWTSecretKey: os.Getenv("JWT_SECRET_KEY"),
		JWTIssuer:    utils.GetEnvAsString("JWT_ISSUER", "shifttrack"),
		LogFile:      os.Getenv("LOG_FILE"),
		MaxBodyBytes: int64(utils.GetEnvAsInt("MAX_BODY_BYTES", 64<<10)),
		CORSOrigins:  splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		Database: DatabaseConfig{
			URI:              utils.GetEnvAsString("MONGO_URI", "mongodb://localhost:27017"),
			DatabaseName:     utils.GetEnvAsString("MONGO_DB", "shifttrack"),
			MaxPoolSize:      utils.GetEnvAsUint64("MONGO_MAX_POOL_SIZE", 100),
			MinPoolSize:      utils.GetEnvAsUint64("MONGO_MIN_POOL_SIZE", 10),
			MaxConnIdleTime:  time.Duration(utils.GetEnvAsInt("MONGO_MAX_CONN_IDLE_TIME", 60)) * time.Second,
			RetryWrites:      utils.GetEnvAsBool("MONGO_RETRY_WRITES", true),
			SessionsColl:     utils.GetEnvAsString("SESSIONS_COLLECTION", "sessions"),
			UsersColl:        utils.GetEnvAsString("USERS_COLLECTION", "users"),
			ArchiveColl:      utils.GetEnvAsString("ARCHIVE_COLLECTION", "sessions_archive"),
			GeoCacheColl:     utils.GetEnvAsString("GEOCACHE_COLLECTION", "geocache"),
			OperationTimeout: utils.GetEnvAsDuration("MONGO_OPERATION_TIMEOUT", 10*time.Second),
		},
		Shift: ShiftConfig{
			Timezone:     utils.GetEnvAsString("SHIFT_TIMEZONE", "Asia/Kolkata"),
			MorningGrace: utils.GetEnvAsDuration("MORNING_GRACE", 5*time.Minute),
			LunchGrace:   utils.GetEnvAsDuration("LUNCH_GRACE", 5*time.Minute),
			TeaGrace:     utils.GetEnvAsDuration("TEA_GRACE", 5*time.Minute),
		},
		Watcher: WatcherConfig{
			IdleThreshold:       utils.GetEnvAsDuration("IDLE_THRESHOLD", 5*time.Minute),
			DisconnectThreshold: utils.GetEnvAsDuration("DISCONNECT_THRESHOLD", 5*time.Minute),
			Interval:            utils.GetEnvAsDuration("WATCH_INTERVAL", time.Minute),
			DailyCloseSpec:      utils.GetEnvAsString("DAILY_CLOSE_SPEC", "20 10 * * *"),
			ArchiveRetention:    utils.GetEnvAsInt("ARCHIVE_RETENTION_DAYS", 90),
			DeleteRetention:     utils.GetEnvAsInt("DELETE_RETENTION_DAYS", 365),
			ArchiveChunk:        utils.GetEnvAsInt("ARCHIVE_CHUNK", 1000),
		},
		Presence: PresenceConfig{
			BroadcastInterval: utils.GetEnvAsDuration("BROADCAST_INTERVAL", 15*time.Second),
			RedisURL:          os.Getenv("REDIS_URL"),
			Channel:           utils.GetEnvAsString("PRESENCE_CHANNEL", "presence:users"),
		},
		Geocode: GeocodeConfig{
			URL:       utils.GetEnvAsString("GEOCODE_URL", "https://nominatim.openstreetmap.org/reverse"),
			Timeout:   utils.GetEnvAsDuration("GEOCODE_TIMEOUT", 3*time.Second),
			UserAgent: utils.GetEnvAsString("GEOCODE_USER_AGENT", "ShiftTracker/1.0"),
		},
	}

	clocks := []struct {
		key  string
		def  string
		dest *Clock
	}{
		{"SHIFT_START", "10:30", &cfg.Shift.Start},
		{"SHIFT_END", "18:30", &cfg.Shift.End},
		{"LUNCH_START", "13:00", &cfg.Shift.LunchStart},
		{"LUNCH_END", "13:45", &cfg.Shift.LunchEnd},
		{"TEA_START", "16:00", &cfg.Shift.TeaStart},
		{"TEA_END", "16:15", &cfg.Shift.TeaEnd},
	}
	for _, c := range clocks {
		h, m, err := utils.ParseClock(utils.GetEnvAsString(c.key, c.def))
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", c.key, err)
		}
		*c.dest = Clock{Hour: h, Minute: m}
	}

	loc, err := time.LoadLocation(cfg.Shift.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: SHIFT_TIMEZONE %q: %w", cfg.Shift.Timezone, err)
	}
	cfg.Shift.Location = loc

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and the cross-field shift window rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Shift.End.Minutes() <= c.Shift.Start.Minutes() {
		return fmt.Errorf("config: SHIFT_END %s must be after SHIFT_START %s", c.Shift.End, c.Shift.Start)
	}
	if c.Shift.LunchEnd.Minutes() < c.Shift.LunchStart.Minutes() {
		return fmt.Errorf("config: LUNCH_END %s is before LUNCH_START %s", c.Shift.LunchEnd, c.Shift.LunchStart)
	}
	if c.Shift.TeaEnd.Minutes() < c.Shift.TeaStart.Minutes() {
		return fmt.Errorf("config: TEA_END %s is before TEA_START %s", c.Shift.TeaEnd, c.Shift.TeaStart)
	}
	if c.Watcher.DeleteRetention > 0 && c.Watcher.DeleteRetention < c.Watcher.ArchiveRetention {
		return fmt.Errorf("config: DELETE_RETENTION_DAYS must not be shorter than ARCHIVE_RETENTION_DAYS")
	}
	if c.Env == "production" && strings.TrimSpace(c.JWTSecretKey) == "" {
		return fmt.Errorf("config: JWT_SECRET_KEY must be set in production")
	}
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
