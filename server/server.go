package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-discord-auth/discord"
	"github.com/jrsteele09/go-discord-auth/internal/config"
	"github.com/jrsteele09/go-discord-auth/oauthflow"
	"github.com/jrsteele09/go-discord-auth/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// UserAPI is the part of the Discord API the server calls on behalf of a
// logged in user.
type UserAPI interface {
	GetUserGuilds(ctx context.Context, accessToken string) ([]discord.Guild, error)
	GetUserConnections(ctx context.Context, accessToken string) ([]discord.Connection, error)
}

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	flow     *oauthflow.Flow
	api      UserAPI
	sessions sessions.Repo
	port     int
	nowTime  func() time.Time

	refreshes singleflight.Group // one refresh grant per session at a time
}

type Option func(*Server)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

func New(config config.Config, flow *oauthflow.Flow, api UserAPI, sessionRepo sessions.Repo, opts ...Option) (*Server, error) {
	if flow == nil {
		return nil, errors.New("[server.New] flow is required")
	}
	if api == nil {
		return nil, errors.New("[server.New] user api is required")
	}
	if sessionRepo == nil {
		return nil, errors.New("[server.New] session repo is required")
	}

	s := &Server{
		env:      config.GetEnv(),
		mux:      http.NewServeMux(),
		config:   config,
		flow:     flow,
		api:      api,
		sessions: sessionRepo,
		nowTime:  time.Now,
	}
	s.port, _ = strconv.Atoi(strings.TrimPrefix(config.GetPort(), ":"))
	for _, opt := range opts {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func displayMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", displayMethod(method), path)
}

func logError(method, path, error string) {
	log.Error().Msgf("[%-19s] %s %s", displayMethod(method), path, Red+error+ResetColor)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
