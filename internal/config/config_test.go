package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(env.Options{Environment: map[string]string{
		"CRM_BASE_URL": "https://erp.example.com",
		"CRM_API_KEY":  "key:secret",
	}})
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, []string{"*"}, cfg.App.AllowedOrigins)
	assert.Equal(t, 30*time.Minute, cfg.App.SessionIdleTTL)
	assert.Equal(t, DriverCRM, cfg.RecordStoreDriver)
	assert.Equal(t, "token", cfg.CRM.APIKeyScheme)
	assert.Equal(t, "Attendance", cfg.CRM.RecordType)
	assert.Equal(t, 15*time.Second, cfg.CRM.Timeout)
	assert.Equal(t, uint(3), cfg.Clock.MaxRounds)
	assert.Equal(t, 24*time.Hour, cfg.Clock.MaxCachedOffset)
	assert.Equal(t, "https://worldtimeapi.org", cfg.TimeAPI.WorldTimeAPIURL)
	assert.Equal(t, 10*time.Second, cfg.Tracking.FreezeTimeout)
	assert.False(t, cfg.UsesPostgres())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Jakarta", loc.String())
}

func TestParse_Postgres(t *testing.T) {
	cfg, err := Parse(env.Options{Environment: map[string]string{
		"RECORD_STORE_DRIVER":  "postgres",
		"CLOCK_CACHE_DRIVER":   "redis",
		"DB_PASSWORD":          "p@ss",
		"DB_HOST":              "db",
		"REDIS_ADDR":           "cache:6379",
		"CORS_ALLOWED_ORIGINS": "https://a.example,https://b.example",
	}})
	require.NoError(t, err)

	assert.True(t, cfg.UsesPostgres())
	assert.Equal(t, "postgres://postgres:p%40ss@db:5432/hris_checkin?sslmode=disable", cfg.DatabaseURL())
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.App.AllowedOrigins)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"crm without url", map[string]string{"CRM_API_KEY": "k"}, "CRM_BASE_URL is required"},
		{"crm without key", map[string]string{"CRM_BASE_URL": "https://erp.example.com"}, "CRM_API_KEY is required"},
		{"bad url", map[string]string{"CRM_BASE_URL": "erp", "CRM_API_KEY": "k"}, "not a valid url"},
		{"unknown driver", map[string]string{"RECORD_STORE_DRIVER": "sheets"}, "RECORD_STORE_DRIVER must be"},
		{"postgres without password", map[string]string{"RECORD_STORE_DRIVER": "postgres"}, "DB_PASSWORD is required"},
		{"unknown cache", map[string]string{"RECORD_STORE_DRIVER": "postgres", "DB_PASSWORD": "x", "CLOCK_CACHE_DRIVER": "disk"}, "CLOCK_CACHE_DRIVER"},
		{"bad timezone", map[string]string{"RECORD_STORE_DRIVER": "postgres", "DB_PASSWORD": "x", "APP_TIMEZONE": "Mars/Base"}, "APP_TIMEZONE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(env.Options{Environment: tt.env})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
