package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zero-trust-session-core/internal/db"
	"zero-trust-session-core/internal/db/migrate"
	driftdomain "zero-trust-session-core/internal/drift/domain"
	mfadomain "zero-trust-session-core/internal/mfa/domain"
	"zero-trust-session-core/internal/security"
	"zero-trust-session-core/internal/session"
	sessiondomain "zero-trust-session-core/internal/session/domain"
)

func TestMemoryTxRunner_SerializesSameDevice(t *testing.T) {
	r := NewMemoryTxRunner()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.InDeviceTx(context.Background(), "u", "d", func(Repos) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, maxInside)
	assert.Empty(t, r.locks, "locks must be released")
}

func TestMemoryTxRunner_DifferentDevicesDoNotBlock(t *testing.T) {
	r := NewMemoryTxRunner()
	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = r.InDeviceTx(context.Background(), "u", "d1", func(Repos) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered
	done := make(chan struct{})
	go func() {
		_ = r.InDeviceTx(context.Background(), "u", "d2", func(Repos) error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("unrelated device blocked")
	}
	close(release)
}

func TestMemoryTxRunner_ReturnsFnError(t *testing.T) {
	r := NewMemoryTxRunner()
	boom := errors.New("boom")
	err := r.InDeviceTx(context.Background(), "u", "d", func(Repos) error { return boom })
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err = r.InDeviceTx(ctx, "u", "d", func(Repos) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func openTestRunner(t *testing.T) *PostgresTxRunner {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	require.NoError(t, migrate.Run(dsn, "up"))
	conn, err := db.Open(dsn)
	if err != nil {
		t.Skipf("database unavailable: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewPostgresTxRunner(conn, 5*time.Second)
}

func TestPostgresTxRunner_RollbackOnError(t *testing.T) {
	r := openTestRunner(t)
	ctx := context.Background()
	user := "store-test-" + uuid.NewString()
	fp := &driftdomain.Fingerprint{Platform: "Linux", ScreenWidth: 1920, ScreenHeight: 1080}

	boom := errors.New("boom")
	err := r.InDeviceTx(ctx, user, "d", func(repos Repos) error {
		require.NoError(t, repos.Fingerprints.Save(ctx, user, "d", fp))
		return boom
	})
	require.ErrorIs(t, err, boom)
	got, err := r.Repos().Fingerprints.Get(ctx, user, "d")
	require.NoError(t, err)
	assert.Nil(t, got, "rolled back write visible")

	require.NoError(t, r.InDeviceTx(ctx, user, "d", func(repos Repos) error {
		return repos.Fingerprints.Save(ctx, user, "d", fp)
	}))
	got, err = r.Repos().Fingerprints.Get(ctx, user, "d")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Linux", got.Fingerprint.Platform)
}

func TestPostgresTxRunner_SessionCapAcrossDevices(t *testing.T) {
	r := openTestRunner(t)
	ctx := context.Background()
	user := "store-test-" + uuid.NewString()

	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	mgr := session.NewManager(r.Repos().Sessions, tokens, security.NewTestTokenHasher(), session.Options{MaxSessionsPerUser: 5})

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		id := uuid.NewString()
		require.NoError(t, r.Repos().Sessions.Create(ctx, &sessiondomain.Session{
			ID:               id,
			UserID:           user,
			DeviceID:         "seed",
			AccessTokenHash:  "a-" + id,
			RefreshTokenHash: "r-" + id,
			ExpiresAt:        base.Add(7 * 24 * time.Hour),
			LastActivity:     base,
			CreatedAt:        base.Add(time.Duration(i) * time.Second),
		}))
	}

	login := func(device string, hold <-chan struct{}, created chan<- struct{}) error {
		return r.InDeviceTx(ctx, user, device, func(repos Repos) error {
			if _, err := mgr.WithRepository(repos.Sessions).CreateSession(ctx, session.CreateParams{UserID: user, DeviceID: device}); err != nil {
				return err
			}
			if created != nil {
				close(created)
			}
			if hold != nil {
				<-hold
			}
			return nil
		})
	}

	release := make(chan struct{})
	created := make(chan struct{})
	first := make(chan error, 1)
	go func() { first <- login("d1", release, created) }()
	<-created

	second := make(chan error, 1)
	go func() { second <- login("d2", nil, nil) }()
	select {
	case err := <-second:
		t.Fatalf("second device created a session while the first login was open: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-first)
	require.NoError(t, <-second)

	live, err := mgr.ListUserSessions(ctx, user)
	require.NoError(t, err)
	assert.Len(t, live, 5)
	_, err = r.Repos().Sessions.DeleteByUser(ctx, user)
	require.NoError(t, err)
}

func TestPostgresTxRunner_BackupCodeRollsBack(t *testing.T) {
	r := openTestRunner(t)
	ctx := context.Background()
	user := "store-test-" + uuid.NewString()
	creds := r.Repos().Credentials
	now := time.Now().UTC().Truncate(time.Second)
	ok, err := creds.SavePending(ctx, &mfadomain.Credential{UserID: user, Secret: "JBSWY3DPEHPK3PXP", BackupCodeHashes: []string{"h1", "h2"}, PendingSince: &now})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = creds.Enable(ctx, user, 1, now)
	require.NoError(t, err)
	require.True(t, ok)

	boom := errors.New("boom")
	err = r.InDeviceTx(ctx, user, "d", func(repos Repos) error {
		_, used, err := repos.Credentials.ConsumeBackupCode(ctx, user, "h1")
		require.NoError(t, err)
		require.True(t, used)
		return boom
	})
	require.ErrorIs(t, err, boom)

	c, err := creds.Get(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Len(t, c.BackupCodeHashes, 2, "rolled back backup code use visible")
}
