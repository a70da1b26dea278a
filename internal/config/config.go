// Package config loads runtime settings from defaults, an optional config
// file, a .env file and FORUM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTP     HTTP
	Database Database
	Session  Session
	Redis    Redis
	Media    Media
	Web      Web
	Log      Log
}

type HTTP struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Database struct {
	Driver string
	DSN    string
}

type Session struct {
	Store        string
	MaxAge       time.Duration
	FlashKey     string
	SecureCookie bool
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Media struct {
	Root      string
	MaxUpload int64
}

type Web struct {
	StaticDir string
}

type Log struct {
	Level       string
	Development bool
}

const (
	SessionStoreSQL   = "sql"
	SessionStoreRedis = "redis"

	devFlashKey = "discuss-dev-flash-key-change-me!"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/forum.db")
	v.SetDefault("session.store", SessionStoreSQL)
	v.SetDefault("session.max_age", 24*time.Hour)
	v.SetDefault("session.flash_key", devFlashKey)
	v.SetDefault("session.secure_cookie", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("media.root", "./data/media")
	v.SetDefault("media.max_upload", int64(10<<20))
	v.SetDefault("web.static_dir", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads configuration. file may be empty.
func Load(file string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("FORUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := &Config{
		HTTP: HTTP{
			Addr:         v.GetString("http.addr"),
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
		},
		Database: Database{
			Driver: v.GetString("database.driver"),
			DSN:    v.GetString("database.dsn"),
		},
		Session: Session{
			Store:        v.GetString("session.store"),
			MaxAge:       v.GetDuration("session.max_age"),
			FlashKey:     v.GetString("session.flash_key"),
			SecureCookie: v.GetBool("session.secure_cookie"),
		},
		Redis: Redis{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Media: Media{
			Root:      v.GetString("media.root"),
			MaxUpload: v.GetInt64("media.max_upload"),
		},
		Web: Web{
			StaticDir: v.GetString("web.static_dir"),
		},
		Log: Log{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
		},
	}

	// PORT predates the FORUM_ prefix and is still honoured.
	if p := os.Getenv("PORT"); p != "" && os.Getenv("FORUM_HTTP_ADDR") == "" {
		cfg.HTTP.Addr = ":" + p
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	switch c.Session.Store {
	case SessionStoreSQL, SessionStoreRedis:
	default:
		return fmt.Errorf("session.store must be %s or %s, got %q", SessionStoreSQL, SessionStoreRedis, c.Session.Store)
	}
	if c.Session.MaxAge <= 0 {
		return errors.New("session.max_age must be positive")
	}
	if len(c.Session.FlashKey) < 32 {
		return errors.New("session.flash_key must be at least 32 bytes")
	}
	if c.Media.MaxUpload <= 0 {
		return errors.New("media.max_upload must be positive")
	}
	return nil
}

// UsesDevFlashKey reports whether the built-in flash key is still in use.
func (c *Config) UsesDevFlashKey() bool {
	return c.Session.FlashKey == devFlashKey
}
