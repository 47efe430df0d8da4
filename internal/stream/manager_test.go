package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-stream/internal/weather"
)

func TestManagerLifecycleIsIdempotent(t *testing.T) {
	m, _, _ := newTestManager(t, quietOptions())
	assert.False(t, m.Running())

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.Status().Running)

	m.Stop()
	m.Stop()
	assert.False(t, m.Status().Running)

	// A stopped manager can be started again.
	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.Running())
	m.Stop()
}

func TestManagerStatus(t *testing.T) {
	opts := quietOptions()
	opts.MaxConnections = 10
	m, _, _ := newTestManager(t, opts)

	_, err := m.Register("c1", "L1", Meta{}, nil)
	require.NoError(t, err)
	_, err = m.Register("c2", "L1", Meta{}, nil)
	require.NoError(t, err)
	_, err = m.Register("c3", "L2", Meta{}, nil)
	require.NoError(t, err)

	assert.Equal(t, Status{
		Running:            false,
		ActiveConnections:  3,
		MonitoredLocations: 2,
		MaxConnections:     10,
	}, m.Status())
}

func TestManagerRegisterCap(t *testing.T) {
	opts := quietOptions()
	opts.MaxConnections = 1
	m, _, _ := newTestManager(t, opts)

	_, err := m.Register("c1", "L1", Meta{}, nil)
	require.NoError(t, err)

	_, err = m.Register("c2", "L1", Meta{}, nil)
	assert.ErrorIs(t, err, ErrTooManyConnections)

	// Re-registering a live id replaces it and does not count twice.
	_, err = m.Register("c1", "L2", Meta{}, nil)
	assert.NoError(t, err)

	m.Registry().Remove("c1")
	_, err = m.Register("c2", "L1", Meta{}, nil)
	assert.NoError(t, err)
}

func TestManagerRegisterGeneratesID(t *testing.T) {
	m, _, _ := newTestManager(t, quietOptions())

	a, err := m.Register("", "L1", Meta{}, nil)
	require.NoError(t, err)
	b, err := m.Register("", "L1", Meta{}, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, []string{AllCategories}, a.AlertCategories)
}

func TestManagerHeartbeat(t *testing.T) {
	m, _, _ := newTestManager(t, quietOptions())
	_, err := m.Register("c1", "L1", Meta{}, nil)
	require.NoError(t, err)

	assert.True(t, m.Heartbeat("c1"))
	assert.False(t, m.Heartbeat("unknown"))
}

func TestManagerBackgroundJobs(t *testing.T) {
	opts := quietOptions()
	opts.HeartbeatInterval = 20 * time.Millisecond
	opts.ExpiryTimeout = 100 * time.Millisecond
	opts.AlertPollInterval = 20 * time.Millisecond
	m, p, cache := newTestManager(t, opts)
	p.SetAlerts(nyc, []weather.Alert{{ID: "X1", Category: "Met"}})

	_, err := m.Register("idle", nyc, Meta{}, nil)
	require.NoError(t, err)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	// The monitor polls the watched location and seeds the cache.
	assert.Eventually(t, func() bool {
		cached, ok, _ := cache.Get(context.Background(), nyc)
		return ok && len(cached) == 1
	}, 3*time.Second, 10*time.Millisecond)

	// The sweeper evicts the connection that never heartbeats.
	assert.Eventually(t, func() bool {
		return m.Status().ActiveConnections == 0
	}, 3*time.Second, 10*time.Millisecond)

	// No polling after Stop.
	m.Stop()
	calls := p.Calls("alerts")
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, calls, p.Calls("alerts"))
}
