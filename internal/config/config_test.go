package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "unknown mode",
			mutate: func(c *Config) { c.Mode = "turbo" },
			want:   "unknown mode",
		},
		{
			name:   "unknown driver",
			mutate: func(c *Config) { c.Database.Driver = "sqlite" },
			want:   "unknown driver",
		},
		{
			name:   "postgres without host",
			mutate: func(c *Config) { c.Database.Host = "" },
			want:   "host must not be empty",
		},
		{
			name: "archive requires s3",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.S3.Enabled = false
			},
			want: "s3 must be enabled",
		},
		{
			name:   "verifier identity required in full mode",
			mutate: func(c *Config) { c.Verifier.Identity = "" },
			want:   "identity must not be empty",
		},
		{
			name: "rate limit window",
			mutate: func(c *Config) {
				c.Server.RateLimit = 10
				c.Server.RateLimitWindow = duration{}
			},
			want: "rate_limit_window must be positive",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestMemoryDriverSkipsConnectionChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Driver = "memory"
	cfg.Database.Host = ""
	cfg.Database.Database = ""
	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "ledger"
log_level = "debug"

[database]
driver = "memory"

[verifier]
poll_interval = "10s"
required_keywords = ["done", "shipped"]
`), 0o600))

	t.Setenv("AGBERO_SERVER_PORT", "9090")
	t.Setenv("AGBERO_VERIFIER_IDENTITY", "verifier-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ledger", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 10*time.Second, cfg.Verifier.PollInterval.Duration)
	assert.Equal(t, []string{"done", "shipped"}, cfg.Verifier.RequiredKeywords)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "verifier-env", cfg.Verifier.Identity)

	// Defaults survive where neither file nor env overrides them.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

	require.NoError(t, cfg.Validate())
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "hunter2"
	cfg.Notify.TelegramToken = "123:abc"
	cfg.Server.Tokens = map[string]string{"tok-1": "alice"}

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Database.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.NotContains(t, red.Server.Tokens, "tok-1")

	// The original is untouched.
	assert.Equal(t, "hunter2", cfg.Database.Password)
}
