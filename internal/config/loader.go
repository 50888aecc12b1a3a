package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AGBERO_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known AGBERO_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.Driver, "AGBERO_DATABASE_DRIVER")
	setStr(&cfg.Database.DSN, "AGBERO_DATABASE_DSN")
	setStr(&cfg.Database.Host, "AGBERO_DATABASE_HOST")
	setInt(&cfg.Database.Port, "AGBERO_DATABASE_PORT")
	setStr(&cfg.Database.Database, "AGBERO_DATABASE_NAME")
	setStr(&cfg.Database.User, "AGBERO_DATABASE_USER")
	setStr(&cfg.Database.Password, "AGBERO_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "AGBERO_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "AGBERO_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "AGBERO_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "AGBERO_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "AGBERO_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "AGBERO_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AGBERO_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AGBERO_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AGBERO_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AGBERO_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AGBERO_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "AGBERO_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "AGBERO_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AGBERO_S3_REGION")
	setStr(&cfg.S3.Bucket, "AGBERO_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AGBERO_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AGBERO_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AGBERO_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AGBERO_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "AGBERO_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "AGBERO_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AGBERO_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "AGBERO_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "AGBERO_SERVER_RATE_LIMIT_WINDOW")

	// ── Verifier ──
	setStr(&cfg.Verifier.Identity, "AGBERO_VERIFIER_IDENTITY")
	setDuration(&cfg.Verifier.PollInterval, "AGBERO_VERIFIER_POLL_INTERVAL")
	setDuration(&cfg.Verifier.FetchTimeout, "AGBERO_VERIFIER_FETCH_TIMEOUT")
	setStr(&cfg.Verifier.IPFSGateway, "AGBERO_VERIFIER_IPFS_GATEWAY")
	setInt(&cfg.Verifier.MinContentLength, "AGBERO_VERIFIER_MIN_CONTENT_LENGTH")
	setStringSlice(&cfg.Verifier.RequiredKeywords, "AGBERO_VERIFIER_REQUIRED_KEYWORDS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "AGBERO_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "AGBERO_ARCHIVE_INTERVAL")
	setDuration(&cfg.Archive.Retention, "AGBERO_ARCHIVE_RETENTION")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "AGBERO_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AGBERO_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "AGBERO_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "AGBERO_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "AGBERO_MODE")
	setStr(&cfg.LogLevel, "AGBERO_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
