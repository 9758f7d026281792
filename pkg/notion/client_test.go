package notion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestNewClientDefaultPacing(t *testing.T) {
	t.Parallel()

	c := NewClient("secret-token").(*apiClient)
	require.NotNil(t, c.limiter)
	assert.Equal(t, rate.Limit(defaultRPS), c.limiter.Limit())
}

func TestWithRateLimit(t *testing.T) {
	t.Parallel()

	c := NewClient("secret-token", WithRateLimit(10)).(*apiClient)
	require.NotNil(t, c.limiter)
	assert.Equal(t, rate.Limit(10), c.limiter.Limit())
}

func TestWithRateLimitDisabled(t *testing.T) {
	t.Parallel()

	c := NewClient("secret-token", WithRateLimit(0)).(*apiClient)
	assert.Nil(t, c.limiter)
	require.NoError(t, c.pace(context.Background()))
}
