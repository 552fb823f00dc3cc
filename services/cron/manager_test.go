package cron

import (
	"context"
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobSchedulesParse(t *testing.T) {
	m := NewCronManager(nil, Dependencies{})
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	names := map[string]bool{}
	for _, j := range m.jobs() {
		_, err := parser.Parse(j.schedule)
		require.NoError(t, err, j.name)
		assert.Positive(t, j.timeout, j.name)
		assert.NotNil(t, j.run, j.name)
		names[j.name] = true
	}
	assert.Len(t, names, 4)
	assert.True(t, names["expire_overdue_attempts"])
	assert.True(t, names["recover_stuck_generations"])
	assert.True(t, names["cleanup_token_blacklist"])
	assert.True(t, names["cleanup_old_data"])
}

func TestSweeperRunsEveryMinute(t *testing.T) {
	m := NewCronManager(nil, Dependencies{})
	for _, j := range m.jobs() {
		if j.name == "expire_overdue_attempts" {
			assert.Equal(t, "0 * * * * *", j.schedule)
			return
		}
	}
	t.Fatal("sweeper job not registered")
}

func TestJobsWithoutDependencies(t *testing.T) {
	m := NewCronManager(nil, Dependencies{})
	ctx := context.Background()

	affected, msg, err := m.ExpireOverdueAttempts(ctx)
	assert.NoError(t, err)
	assert.Zero(t, affected)
	assert.NotEmpty(t, msg)

	affected, _, err = m.RecoverStuckGenerations(ctx)
	assert.NoError(t, err)
	assert.Zero(t, affected)

	_, _, err = m.CleanupTokenBlacklist(ctx)
	assert.NoError(t, err)
}
