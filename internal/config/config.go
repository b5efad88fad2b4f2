package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode      Mode   `env:"MODE" envDefault:"offline"`
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	PublicURL string `env:"PUBLIC_URL"`

	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"DB_DSN"`

	BlobBasePath string `env:"BLOB_BASE_PATH" envDefault:"./data"` // evidence uploads

	EnableLocalAuth bool          `env:"ENABLE_LOCAL_AUTH" envDefault:"true"`
	AuthHMACSecret  string        `env:"AUTH_HMAC_SECRET"`
	TokenTTL        time.Duration `env:"TOKEN_TTL" envDefault:"8h"`

	AdminUser     string `env:"ADMIN_USER" envDefault:"admin"`
	AdminPassHash string `env:"ADMIN_PASS_HASH" envDefault:"$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji"` // bcrypt

	CORSOriginsOnline  []string `env:"CORS_ORIGINS_ONLINE" envSeparator:"," envDefault:"https://audit.mindengage.ai"`
	CORSOriginsOffline []string `env:"CORS_ORIGINS_OFFLINE" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:3010"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogColor bool   `env:"LOG_COLOR" envDefault:"true"`

	ExamSampleSize int           `env:"EXAM_SAMPLE_SIZE" envDefault:"20"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
}

// CORSOrigins returns the allow-list for the configured mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

// SlogLevel parses LogLevel, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// FromEnv loads .env files (when present) and then the process environment.
// Variables already set in the environment win over .env entries.
func FromEnv(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	switch c.Mode {
	case ModeOffline, ModeOnline:
	default:
		return fmt.Errorf("config: unknown MODE %q", c.Mode)
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.Mode == ModeOnline && c.AuthHMACSecret == "" {
		return errors.New("config: AUTH_HMAC_SECRET is required in online mode")
	}
	if c.ExamSampleSize <= 0 {
		return fmt.Errorf("config: EXAM_SAMPLE_SIZE must be positive, got %d", c.ExamSampleSize)
	}
	return nil
}
