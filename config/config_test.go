package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAppliesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("AI_PROVIDER", "")
	t.Setenv("QUIZ_MAX_QUESTIONS", "")
	t.Setenv("CRON_ENABLED", "")

	env, err := Get()
	require.NoError(t, err)

	assert.Equal(t, 8080, env.PORT)
	assert.Equal(t, "localhost", env.DB_HOST)
	assert.Equal(t, "5432", env.DB_PORT)
	assert.Equal(t, "redis://localhost:6379/0", env.REDIS_URL)
	assert.Equal(t, "gemini", env.AI_PROVIDER)
	assert.Equal(t, 30, env.QUIZ_MAX_QUESTIONS)
	assert.True(t, env.CRON_ENABLED)
	assert.False(t, env.StorageEnabled())
}

func TestGetReadsOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("GO_ENV", "production")
	t.Setenv("CRON_ENABLED", "false")
	t.Setenv("STORAGE_ACCESS_KEY", "ak")
	t.Setenv("STORAGE_SECRET_KEY", "sk")
	t.Setenv("STORAGE_BUCKET", "docs")
	t.Setenv("STORAGE_ENDPOINT", "nyc3.digitaloceanspaces.com")

	env, err := Get()
	require.NoError(t, err)

	assert.Equal(t, 9000, env.PORT)
	assert.True(t, env.IsProduction())
	assert.False(t, env.CRON_ENABLED)
	assert.True(t, env.StorageEnabled())
}

func TestTypedGetters(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	t.Setenv("SOME_DURATION", "90s")

	assert.Equal(t, 7, GetInt("SOME_INT", 7))
	assert.Equal(t, 90*time.Second, GetDuration("SOME_DURATION", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("MISSING_DURATION", time.Minute))
	assert.Equal(t, "x", GetString("MISSING_STRING", "x"))
}
