package redis

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	options "github.com/kart-io/videoqa/pkg/options/redis"
)

func optionsFor(t *testing.T, mr *miniredis.Miniredis) *options.Options {
	t.Helper()
	host, port, ok := strings.Cut(mr.Addr(), ":")
	require.True(t, ok)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	opts := options.NewOptions()
	opts.Host = host
	opts.Port = p
	return opts
}

func TestNewWithContext(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewWithContext(context.Background(), optionsFor(t, mr))
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "redis", c.Name())
	require.NoError(t, c.Client().Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
	assert.NoError(t, c.CheckHealth())

	stats := c.HealthWithStats(context.Background())
	assert.True(t, stats.Healthy)
	require.NotNil(t, stats.PoolStats)
}

func TestNewWithContext_Errors(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	opts := options.NewOptions()
	opts.Host = ""
	_, err = New(opts)
	assert.ErrorContains(t, err, "invalid redis options")

	mr := miniredis.RunT(t)
	opts = optionsFor(t, mr)
	mr.Close()
	_, err = New(opts)
	assert.ErrorContains(t, err, "failed to ping redis")
}

func TestHealthWithStats_Down(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := New(optionsFor(t, mr))
	require.NoError(t, err)
	defer c.Close()

	mr.Close()
	stats := c.HealthWithStats(context.Background())
	assert.False(t, stats.Healthy)
	assert.NotEmpty(t, stats.Error)
}
