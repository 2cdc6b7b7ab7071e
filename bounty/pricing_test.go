package bounty

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecEqual(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got.String(), msgAndArgs)
}

func TestUnitPrice_Table(t *testing.T) {
	price, ok := UnitPrice(YouTube, MetricPost)
	require.True(t, ok)
	assertDecEqual(t, "10.00", price)

	price, ok = UnitPrice(Facebook, MetricView)
	require.True(t, ok)
	assertDecEqual(t, "0.005", price)
}

func TestUnitPrice_OmittedPairs(t *testing.T) {
	omitted := []struct {
		platform Platform
		metric   MetricKind
	}{
		{Instagram, MetricShare},
		{Instagram, MetricView},
		{Twitter, MetricComment},
		{YouTube, MetricImpression},
		{TikTok, MetricImpression},
	}
	for _, tc := range omitted {
		price, ok := UnitPrice(tc.platform, tc.metric)
		assert.False(t, ok, "%s/%s", tc.platform, tc.metric)
		assert.True(t, price.IsZero())
		assert.False(t, Priced(tc.platform, tc.metric))
	}
}

func TestUnitPrice_UnknownPlatform(t *testing.T) {
	price, ok := UnitPrice(Platform("myspace"), MetricLike)
	assert.False(t, ok)
	assert.True(t, price.IsZero())
}

func TestParsePlatform(t *testing.T) {
	p, err := ParsePlatform(" TikTok ")
	require.NoError(t, err)
	assert.Equal(t, TikTok, p)

	_, err = ParsePlatform("myspace")
	assert.ErrorIs(t, err, ErrUnknownPlatform)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusCreated, StatusStarted))
	assert.True(t, CanTransition(StatusCreated, StatusCancelled))
	assert.True(t, CanTransition(StatusStarted, StatusCompleted))
	assert.True(t, CanTransition(StatusStarted, StatusCancelled))

	assert.False(t, CanTransition(StatusCreated, StatusCompleted))
	assert.False(t, CanTransition(StatusCompleted, StatusStarted))
	assert.False(t, CanTransition(StatusCancelled, StatusStarted))
	assert.False(t, CanTransition(StatusStarted, StatusStarted))
}
