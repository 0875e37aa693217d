package sessions

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-discord-auth/discord"
	"github.com/pkg/errors"
)

const csrfTokenLength = 32

// Session is the server side record behind the session cookie. It exists
// from the first login visit, so the csrf token can be embedded in the OAuth2
// state before the user is authenticated.
type Session struct {
	ID        string
	CSRFToken string

	// Tokens
	AccessToken    string
	RefreshToken   string
	TokenType      string
	Scope          string
	TokenExpiresAt time.Time

	// Redirect is the target stored by the last login.
	Redirect string
	User     *discord.User

	CreatedAt time.Time
	ExpiresAt time.Time
}

// New returns an anonymous session with a fresh id and csrf token.
func New(now time.Time, ttl time.Duration) (Session, error) {
	csrf, err := NewCSRFToken()
	if err != nil {
		return Session{}, err
	}
	return Session{
		ID:        uuid.NewString(),
		CSRFToken: csrf,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// Authenticated reports whether a Discord token has been stored.
func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// ApplyToken stores a token response. An empty refresh token keeps the
// current one, Discord does not always rotate it.
func (s *Session) ApplyToken(tok *discord.TokenResponse, now time.Time) {
	if tok == nil {
		return
	}
	s.AccessToken = tok.AccessToken
	s.TokenType = tok.TokenType
	s.Scope = tok.Scope
	if tok.RefreshToken != "" {
		s.RefreshToken = tok.RefreshToken
	}
	s.TokenExpiresAt = time.Time{}
	if tok.ExpiresIn > 0 {
		s.TokenExpiresAt = now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
}

// NewCSRFToken returns a random base64url token.
func NewCSRFToken() (string, error) {
	b := make([]byte, csrfTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "[sessions.NewCSRFToken] read random")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

type Repo interface {
	Upsert(session Session) error
	Get(sessionID string) (Session, error)
	Delete(sessionID string) error
}
