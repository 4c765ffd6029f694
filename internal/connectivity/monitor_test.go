package connectivity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outletpos/syncengine/internal/logging"
)

func TestManual_SubscribeAndFlip(t *testing.T) {
	m := NewManual(false)
	assert.False(t, m.Online())

	var got []bool
	unsub := m.Subscribe(func(online bool) { got = append(got, online) })

	m.SetOnline(true)
	m.SetOnline(true) // no change, no notification
	m.SetOnline(false)

	assert.True(t, len(got) == 2)
	assert.Equal(t, []bool{true, false}, got)

	unsub()
	m.SetOnline(true)
	assert.Len(t, got, 2, "unsubscribed listener must not fire")
}

func TestMonitor_FlipsWithProbe(t *testing.T) {
	var healthy atomic.Bool
	probe := func(ctx context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("unreachable")
	}

	m := NewMonitor(probe, 10*time.Millisecond, time.Second, logging.NewDiscardLogger())

	var changes atomic.Int32
	m.Subscribe(func(online bool) { changes.Add(1) })

	m.Start(context.Background())
	t.Cleanup(m.Close)

	assert.False(t, m.Online())

	healthy.Store(true)
	require.Eventually(t, m.Online, time.Second, 5*time.Millisecond)

	healthy.Store(false)
	require.Eventually(t, func() bool { return !m.Online() }, time.Second, 5*time.Millisecond)

	assert.GreaterOrEqual(t, changes.Load(), int32(2))
}
