package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	defaultJWTSecret = "dev-jwt-secret"
)

type Config struct {
	Addr          string
	DatabaseURL   string
	DBMaxPool     int
	JWTSecret     string
	Env           string
	TokenTTL      time.Duration
	BcryptCost    int
	AllowedOrigin string
	Media         Media
	Redis         Redis
	RateLimits    RateLimits
}

// Media is handed to the browser client, which uploads straight to the
// hosted media provider.
type Media struct {
	CloudName    string
	UploadPreset string
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type RateLimits struct {
	LoginPerMinute    int
	RegisterPerMinute int
	PostPerMinute     int
}

func Load() Config {
	addr := envString("INKPOST_ADDR", "")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = ":8080"
		}
	}
	dbURL := envString("DATABASE_URL", "")
	if dbURL == "" {
		dbURL = envString("MONGO_URL", "inkpost.db")
	}
	cfg := Config{
		Addr:          addr,
		DatabaseURL:   dbURL,
		DBMaxPool:     envInt("INKPOST_DB_MAX_POOL", 20),
		JWTSecret:     envString("JWT_SECRET", defaultJWTSecret),
		Env:           strings.ToLower(envString("INKPOST_ENV", EnvDevelopment)),
		TokenTTL:      envDuration("INKPOST_TOKEN_TTL", 7*24*time.Hour),
		BcryptCost:    envInt("INKPOST_BCRYPT_COST", 10),
		AllowedOrigin: envString("CORS_ORIGIN", "http://localhost:5173"),
		Media: Media{
			CloudName:    os.Getenv("CLOUDINARY_CLOUD_NAME"),
			UploadPreset: os.Getenv("CLOUDINARY_UPLOAD_PRESET"),
		},
		Redis: Redis{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 0),
		},
		RateLimits: RateLimits{
			LoginPerMinute:    envInt("INKPOST_RL_LOGIN_PER_MIN", 20),
			RegisterPerMinute: envInt("INKPOST_RL_REGISTER_PER_MIN", 10),
			PostPerMinute:     envInt("INKPOST_RL_POST_PER_MIN", 30),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Env == EnvProduction
}

func (c Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if c.IsProduction() && c.JWTSecret == defaultJWTSecret {
		return errors.New("JWT_SECRET must be set in production")
	}
	if c.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// Warnings lists settings that are legal but unsafe outside a local setup.
func (c Config) Warnings() []string {
	var warnings []string
	if !c.IsProduction() && remoteDatabase(c.DatabaseURL) {
		warnings = append(warnings, "INKPOST_ENV is "+c.Env+" with a remote database: 500 responses carry error details and session cookies are not Secure")
	}
	if !c.IsProduction() && c.JWTSecret == defaultJWTSecret && remoteDatabase(c.DatabaseURL) {
		warnings = append(warnings, "JWT_SECRET is the built-in development secret")
	}
	return warnings
}

func remoteDatabase(dsn string) bool {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	for _, prefix := range []string{"mongodb://", "mongodb+srv://", "postgres://", "postgresql://"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
