package sessions_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-discord-auth/discord"
	apperrors "github.com/jrsteele09/go-discord-auth/internal/errors"
	"github.com/jrsteele09/go-discord-auth/sessions"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newSession(t *testing.T, ttl time.Duration) sessions.Session {
	t.Helper()
	s, err := sessions.New(baseTime, ttl)
	require.NoError(t, err)
	return s
}

func TestNew(t *testing.T) {
	a := newSession(t, time.Hour)
	b := newSession(t, time.Hour)

	require.NotEmpty(t, a.ID)
	require.NotEmpty(t, a.CSRFToken)
	require.NotEqual(t, a.ID, b.ID)
	require.NotEqual(t, a.CSRFToken, b.CSRFToken)
	require.False(t, a.Authenticated())
	require.Equal(t, baseTime.Add(time.Hour), a.ExpiresAt)
}

func TestSession_ApplyToken(t *testing.T) {
	s := newSession(t, time.Hour)
	s.ApplyToken(&discord.TokenResponse{AccessToken: "a1", RefreshToken: "r1", TokenType: "Bearer", ExpiresIn: 60, Scope: "identify"}, baseTime)

	require.True(t, s.Authenticated())
	require.Equal(t, "r1", s.RefreshToken)
	require.Equal(t, baseTime.Add(time.Minute), s.TokenExpiresAt)

	t.Run("keeps refresh token when not rotated", func(t *testing.T) {
		s.ApplyToken(&discord.TokenResponse{AccessToken: "a2"}, baseTime)
		require.Equal(t, "a2", s.AccessToken)
		require.Equal(t, "r1", s.RefreshToken)
		require.True(t, s.TokenExpiresAt.IsZero())
	})
}

func TestInMemoryRepo(t *testing.T) {
	now := baseTime
	repo := sessions.NewInMemoryRepo(sessions.WithNowTime(func() time.Time { return now }))

	s := newSession(t, time.Hour)
	require.NoError(t, repo.Upsert(s))

	t.Run("get", func(t *testing.T) {
		got, err := repo.Get(s.ID)
		require.NoError(t, err)
		require.Equal(t, s, got)
	})

	t.Run("update", func(t *testing.T) {
		s.Redirect = "dashboard"
		require.NoError(t, repo.Upsert(s))
		got, err := repo.Get(s.ID)
		require.NoError(t, err)
		require.Equal(t, "dashboard", got.Redirect)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := repo.Get("unknown")
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
		_, err = repo.Get("")
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	})

	t.Run("upsert requires an id", func(t *testing.T) {
		require.Error(t, repo.Upsert(sessions.Session{}))
	})

	t.Run("expired sessions are removed", func(t *testing.T) {
		short := newSession(t, time.Minute)
		require.NoError(t, repo.Upsert(short))

		now = baseTime.Add(2 * time.Minute)
		_, err := repo.Get(short.ID)
		require.ErrorIs(t, err, apperrors.ErrSessionExpired)
		_, err = repo.Get(short.ID)
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
		now = baseTime
	})

	t.Run("sweep", func(t *testing.T) {
		short := newSession(t, time.Minute)
		require.NoError(t, repo.Upsert(short))

		now = baseTime.Add(2 * time.Minute)
		require.Equal(t, 1, repo.Sweep())
		now = baseTime
		_, err := repo.Get(s.ID)
		require.NoError(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(s.ID))
		require.NoError(t, repo.Delete(s.ID))
		_, err := repo.Get(s.ID)
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	})
}
