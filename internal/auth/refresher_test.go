package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrntr/energytrade/internal/models"
)

func TestRefresher_TicksUntilStopped(t *testing.T) {
	profiles := profilesReturning(models.User{UserID: 1}, nil)
	m := newTestManager(profiles, nil)
	require.NoError(t, m.Login(context.Background(), "tok"))

	r := m.StartRefresh(context.Background(), 5*time.Millisecond)
	assert.Eventually(t, func() bool { return profiles.calls.Load() >= 2 }, time.Second, time.Millisecond)

	r.Stop()
	r.Stop()
	after := profiles.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, profiles.calls.Load(), "no check may run after Stop")

	select {
	case <-r.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestRefresher_StopsWithParentContext(t *testing.T) {
	m := newTestManager(profilesReturning(models.User{}, nil), nil)
	ctx, cancel := context.WithCancel(context.Background())

	r := m.StartRefresh(ctx, time.Hour)
	cancel()

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("refresher ignored parent cancellation")
	}
	r.Stop()
}

func TestRefresher_InvalidatesRejectedToken(t *testing.T) {
	m := newTestManager(profilesReturning(models.User{}, errUnauthorized), &fakeStore{})
	require.NoError(t, m.Login(context.Background(), "tok"))

	r := m.StartRefresh(context.Background(), 5*time.Millisecond)
	defer r.Stop()

	assert.Eventually(t, func() bool { return m.Snapshot().Status == StatusInvalid }, time.Second, time.Millisecond)
	assert.False(t, m.IsAuthenticated())
}
