package framework

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventWaitAfterSet(t *testing.T) {
	var ev Event
	require.False(t, ev.IsSet())
	ev.Set()
	ev.Set()
	require.True(t, ev.IsSet())
	require.NoError(t, ev.Wait(context.Background()))
	// level-triggered: still set until cleared.
	require.NoError(t, ev.Wait(context.Background()))
	ev.Clear()
	require.False(t, ev.IsSet())
}

func TestEventWakesWaiter(t *testing.T) {
	var ev Event
	done := make(chan error, 1)
	go func() {
		done <- ev.Wait(context.Background())
	}()
	select {
	case <-done:
		t.Fatal("Wait returned before Set")
	case <-time.After(20 * time.Millisecond):
	}
	ev.Set()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("waiter not woken")
	}
}

func TestEventClearRearms(t *testing.T) {
	var ev Event
	ev.Set()
	ev.Clear()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, ev.Wait(ctx), context.DeadlineExceeded)
	ev.Set()
	require.NoError(t, ev.Wait(context.Background()))
}

func TestSleepCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	require.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	require.Less(t, time.Since(start), time.Second)
	require.NoError(t, Sleep(context.Background(), time.Millisecond))
}
