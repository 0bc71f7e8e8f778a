package icron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTriggerInfo(t *testing.T) {
	ref := time.Date(2024, 3, 1, 10, 7, 30, 0, time.UTC)

	info, err := GetTriggerInfo("*/15 * * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC), info.Next)
	assert.Equal(t, 7*time.Minute+30*time.Second, info.TimeUntilNext)

	info, err = GetTriggerInfo("@every 1m", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, info.TimeUntilNext)
}

func TestGetTriggerInfo_Invalid(t *testing.T) {
	_, err := GetTriggerInfo("every minute", time.Now())
	assert.Error(t, err)
}
