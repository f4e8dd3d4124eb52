package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string // sqlite|postgres|memory
	DBDSN    string

	BlobBasePath string

	AuthHMACSecret string
	AdminUser      string
	AdminPassHash  string // bcrypt

	CORSOrigins []string

	RedisAddr string // empty: in-process analysis locks
	LockTTL   time.Duration

	LogLevel string
	Weeks    int
}

// Load reads configuration from the environment, after loading dotEnvPath
// when it exists.
func Load(dotEnvPath string) (Config, error) {
	if dotEnvPath != "" {
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				return Config{}, errors.Wrapf(err, "config.godotenv(%s)", dotEnvPath)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, errors.Wrapf(err, "config.os.Stat(%s)", dotEnvPath)
		}
	}
	return fromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault("MODE", string(ModeOffline))
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "")
	v.SetDefault("BLOB_BASE_PATH", "./data")
	v.SetDefault("AUTH_HMAC_SECRET", "dev-secret-change-me")
	v.SetDefault("ADMIN_USER", "admin")
	v.SetDefault("ADMIN_PASS_HASH", "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("LOCK_TTL", 2*time.Minute)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("WEEKS", 13)
	v.AutomaticEnv()
	return v
}

func fromViper(v *viper.Viper) (Config, error) {
	c := Config{
		Mode:           Mode(strings.ToLower(v.GetString("MODE"))),
		HTTPAddr:       v.GetString("HTTP_ADDR"),
		DBDriver:       strings.ToLower(v.GetString("DB_DRIVER")),
		DBDSN:          v.GetString("DB_DSN"),
		BlobBasePath:   v.GetString("BLOB_BASE_PATH"),
		AuthHMACSecret: v.GetString("AUTH_HMAC_SECRET"),
		AdminUser:      v.GetString("ADMIN_USER"),
		AdminPassHash:  v.GetString("ADMIN_PASS_HASH"),
		CORSOrigins:    csv(v.GetString("CORS_ORIGINS")),
		RedisAddr:      v.GetString("REDIS_ADDR"),
		LockTTL:        v.GetDuration("LOCK_TTL"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		Weeks:          v.GetInt("WEEKS"),
	}
	switch c.Mode {
	case ModeOffline, ModeOnline:
	default:
		return Config{}, errors.Errorf("MODE must be offline or online, got %q", c.Mode)
	}
	switch c.DBDriver {
	case "sqlite", "postgres", "memory":
	default:
		return Config{}, errors.Errorf("DB_DRIVER must be sqlite, postgres or memory, got %q", c.DBDriver)
	}
	if c.Weeks < 1 {
		return Config{}, errors.Errorf("WEEKS must be positive, got %d", c.Weeks)
	}
	if c.Mode == ModeOnline && c.AuthHMACSecret == "dev-secret-change-me" {
		return Config{}, errors.New("AUTH_HMAC_SECRET must be set in online mode")
	}
	return c, nil
}

// NewLogger builds the process logger. The daemon logs JSON; the CLI logs text.
func NewLogger(level string, json bool) (*logrus.Logger, error) {
	l := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "LOG_LEVEL")
	}
	l.SetLevel(lvl)
	if json {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l, nil
}

func csv(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
