package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	AuthNone     = "none"
	AuthJWT      = "jwt"
	AuthFirebase = "firebase"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

type Config struct {
	Port                     string
	DatabaseURL              string
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeSeconds int
	DBConnMaxIdleTimeSeconds int
	CORSDomains              []string
	AuthMode                 string
	JWTSecret                string
	FirebaseProjectID        string
	FirebaseCredentialsFile  string
	FirebaseStorageBucket    string
	AssetDir                 string
	AssetBaseURL             string
	MaxUploadBytes           int64
	AutoCreateMapOnSave      bool
	LiveEditsPerSecond       float64
	LiveEditBurst            int
	MaxLiveEditBytes         int64
	SessionQueueSize         int
	RedisURL                 string
	RedisPrefix              string
	LogLevel                 string
	LogFormat                string
}

func Default() Config {
	return Config{
		Port:                     "8080",
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           10,
		DBConnMaxLifetimeSeconds: 300,
		DBConnMaxIdleTimeSeconds: 60,
		AuthMode:                 AuthNone,
		AssetDir:                 "uploads",
		AssetBaseURL:             "/uploads",
		MaxUploadBytes:           10 << 20,
		AutoCreateMapOnSave:      true,
		LiveEditsPerSecond:       30,
		LiveEditBurst:            10,
		MaxLiveEditBytes:         64 << 10,
		SessionQueueSize:         256,
		RedisPrefix:              "maps:",
		LogLevel:                 "info",
		LogFormat:                "text",
	}
}

func Load() Config {
	cfg := Default()
	if raw := os.Getenv("PORT"); raw != "" {
		cfg.Port = raw
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if raw := os.Getenv("DB_MAX_OPEN_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxOpenConns = value
		}
	}
	if raw := os.Getenv("DB_MAX_IDLE_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxIdleConns = value
		}
	}
	if raw := os.Getenv("DB_CONN_MAX_LIFETIME_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBConnMaxLifetimeSeconds = value
		}
	}
	if raw := os.Getenv("DB_CONN_MAX_IDLE_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBConnMaxIdleTimeSeconds = value
		}
	}
	cfg.CORSDomains = splitList(os.Getenv("CORS_DOMAINS"))
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.FirebaseProjectID = os.Getenv("FIREBASE_PROJECT_ID")
	cfg.FirebaseCredentialsFile = os.Getenv("FIREBASE_CREDENTIALS_FILE")
	cfg.FirebaseStorageBucket = os.Getenv("FIREBASE_STORAGE_BUCKET")
	switch {
	case cfg.FirebaseProjectID != "":
		cfg.AuthMode = AuthFirebase
	case cfg.JWTSecret != "":
		cfg.AuthMode = AuthJWT
	}
	if raw := strings.ToLower(strings.TrimSpace(os.Getenv("AUTH_MODE"))); raw != "" {
		switch raw {
		case AuthNone, AuthJWT, AuthFirebase:
			cfg.AuthMode = raw
		}
	}
	if raw := os.Getenv("ASSET_DIR"); raw != "" {
		cfg.AssetDir = raw
	}
	if raw := os.Getenv("ASSET_BASE_URL"); raw != "" {
		cfg.AssetBaseURL = strings.TrimRight(raw, "/")
	}
	if raw := os.Getenv("MAX_UPLOAD_BYTES"); raw != "" {
		if value, err := strconv.ParseInt(raw, 10, 64); err == nil && value > 0 {
			cfg.MaxUploadBytes = value
		}
	}
	if raw := os.Getenv("AUTO_CREATE_MAP_ON_SAVE"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.AutoCreateMapOnSave = value
		}
	}
	if raw := os.Getenv("LIVE_EDITS_PER_SECOND"); raw != "" {
		if value, err := strconv.ParseFloat(raw, 64); err == nil && value > 0 {
			cfg.LiveEditsPerSecond = value
		}
	}
	if raw := os.Getenv("LIVE_EDIT_BURST"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.LiveEditBurst = value
		}
	}
	if raw := os.Getenv("MAX_LIVE_EDIT_BYTES"); raw != "" {
		if value, err := strconv.ParseInt(raw, 10, 64); err == nil && value > 0 {
			cfg.MaxLiveEditBytes = value
		}
	}
	if raw := os.Getenv("SESSION_QUEUE_SIZE"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.SessionQueueSize = value
		}
	}
	cfg.RedisURL = os.Getenv("REDIS_URL")
	if raw := os.Getenv("REDIS_PREFIX"); raw != "" {
		cfg.RedisPrefix = raw
	}
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		cfg.LogLevel = strings.ToLower(raw)
	}
	if raw := os.Getenv("LOG_FORMAT"); raw != "" {
		cfg.LogFormat = strings.ToLower(raw)
	}
	return cfg
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
