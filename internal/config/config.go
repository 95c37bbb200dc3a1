// Package config loads the server configuration.
//
// Values are layered, later sources overriding earlier ones:
//
//	Default() → TOML file (optional) → .env file (optional) → environment
//
// The resulting Config is passed explicitly to the server; nothing reads
// the environment after startup.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is the complete server configuration.
type Config struct {
	Port        int    `toml:"port"`
	TemplateDir string `toml:"template_dir"` // empty: templates compiled into the binary
	StaticDir   string `toml:"static_dir"`   // empty: assets compiled into the binary
	DefaultYear string `toml:"default_year"`

	Log      LogConfig      `toml:"log"`
	Database DatabaseConfig `toml:"database"`
	Session  SessionConfig  `toml:"session"`
	Storage  StorageConfig  `toml:"storage"`
	Upload   UploadConfig   `toml:"upload"`
	HTTP     HTTPConfig     `toml:"http"`
}

type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn or error
}

type DatabaseConfig struct {
	Path string `toml:"path"` // ":memory:" for a throwaway database
}

// SessionConfig selects how the logged-in identity is carried.
// This uses a tagged union pattern - Driver determines which fields matter.
type SessionConfig struct {
	Driver     string   `toml:"driver"` // "cookie" (default) or "jwt"
	Secret     string   `toml:"secret"`
	CookieName string   `toml:"cookie_name"`
	MaxAge     Duration `toml:"max_age"`
	Secure     bool     `toml:"secure"`
}

// StorageConfig selects where photos live.
// This uses a tagged union pattern - Driver determines which fields matter.
type StorageConfig struct {
	Driver string `toml:"driver"` // "filesystem" (default) or "s3"

	// Filesystem-specific (Driver == "filesystem")
	Dir string `toml:"dir"`

	// S3-specific (Driver == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
	S3UsePathStyle    bool   `toml:"s3_use_path_style,omitempty"`
}

type UploadConfig struct {
	MaxBytes int64 `toml:"max_bytes"`
}

type HTTPConfig struct {
	ReadTimeout     Duration `toml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout"`
	IdleTimeout     Duration `toml:"idle_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// Duration lets TOML files say max_age = "12h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

const (
	SessionDriverCookie = "cookie"
	SessionDriverJWT    = "jwt"

	StorageDriverFilesystem = "filesystem"
	StorageDriverS3         = "s3"

	// MinSecretLength is enforced for both session drivers.
	MinSecretLength = 16
)

var yearPattern = regexp.MustCompile(`^[0-9]{4}$`)

// Default returns the built-in configuration. Everything except the session
// secret has a usable value.
func Default() Config {
	return Config{
		Port:        3000,
		DefaultYear: "2026",
		Log:         LogConfig{Level: "info"},
		Database:    DatabaseConfig{Path: "data/gallery.db"},
		Session: SessionConfig{
			Driver:     SessionDriverCookie,
			CookieName: "gallery_session",
			MaxAge:     Duration{12 * time.Hour},
		},
		Storage: StorageConfig{
			Driver:   StorageDriverFilesystem,
			Dir:      "uploads",
			S3Region: "us-east-1",
		},
		Upload: UploadConfig{MaxBytes: 32 << 20},
		HTTP: HTTPConfig{
			ReadTimeout:     Duration{15 * time.Second},
			WriteTimeout:    Duration{60 * time.Second},
			IdleTimeout:     Duration{60 * time.Second},
			ShutdownTimeout: Duration{30 * time.Second},
		},
	}
}

// Read decodes TOML from r on top of the defaults, so a file only needs the
// keys it changes.
func Read(r io.Reader) (Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Load builds the configuration from all sources.
//
// path is an optional TOML file; envFile an optional dotenv file. A missing
// envFile is not an error, a missing path is (it was asked for explicitly).
// Variables already in the process environment win over the dotenv file.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		cfg, err = Read(f)
		if err != nil {
			return Config{}, fmt.Errorf("reading config from %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides cfg with any variables lookup finds.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	var errs []error
	integer := func(key string, dst *int64) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	port := int64(c.Port)
	integer("PORT", &port)
	c.Port = int(port)

	str("TEMPLATE_DIR", &c.TemplateDir)
	str("STATIC_DIR", &c.StaticDir)
	str("DEFAULT_YEAR", &c.DefaultYear)
	str("LOG_LEVEL", &c.Log.Level)
	str("DB_PATH", &c.Database.Path)

	str("SESSION_DRIVER", &c.Session.Driver)
	str("SESSION_SECRET", &c.Session.Secret)
	str("SESSION_COOKIE_NAME", &c.Session.CookieName)
	boolean("SESSION_SECURE", &c.Session.Secure)
	if v, ok := lookup("SESSION_MAX_AGE"); ok && v != "" {
		if err := c.Session.MaxAge.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("SESSION_MAX_AGE: %w", err))
		}
	}

	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("UPLOAD_DIR", &c.Storage.Dir)
	str("S3_BUCKET", &c.Storage.S3Bucket)
	str("S3_PREFIX", &c.Storage.S3Prefix)
	str("S3_REGION", &c.Storage.S3Region)
	str("S3_ENDPOINT", &c.Storage.S3Endpoint)
	str("S3_ACCESS_KEY_ID", &c.Storage.S3AccessKeyID)
	str("S3_SECRET_ACCESS_KEY", &c.Storage.S3SecretAccessKey)
	boolean("S3_USE_PATH_STYLE", &c.Storage.S3UsePathStyle)

	integer("MAX_UPLOAD_BYTES", &c.Upload.MaxBytes)

	return errors.Join(errs...)
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if !yearPattern.MatchString(c.DefaultYear) {
		errs = append(errs, fmt.Errorf("default_year %q must be four digits", c.DefaultYear))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}

	switch c.Session.Driver {
	case SessionDriverCookie, SessionDriverJWT:
	default:
		errs = append(errs, fmt.Errorf("unknown session driver %q", c.Session.Driver))
	}
	if len(c.Session.Secret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("session secret must be at least %d characters (set SESSION_SECRET)", MinSecretLength))
	}
	if c.Session.CookieName == "" {
		errs = append(errs, errors.New("session.cookie_name is required"))
	}
	if c.Session.MaxAge.Duration <= 0 {
		errs = append(errs, errors.New("session.max_age must be positive"))
	}

	switch c.Storage.Driver {
	case StorageDriverFilesystem:
		if c.Storage.Dir == "" {
			errs = append(errs, errors.New("storage.dir is required for the filesystem driver"))
		}
	case StorageDriverS3:
		if c.Storage.S3Bucket == "" {
			errs = append(errs, errors.New("storage.s3_bucket is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("upload.max_bytes must be positive"))
	}

	return errors.Join(errs...)
}

// LogLevel parses Log.Level.
func (c Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.Log.Level))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	return level, nil
}
