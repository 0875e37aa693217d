package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-discord-auth/discord"
	"github.com/jrsteele09/go-discord-auth/internal/config"
	"github.com/jrsteele09/go-discord-auth/internal/logging"
	"github.com/jrsteele09/go-discord-auth/oauthflow"
	"github.com/jrsteele09/go-discord-auth/server"
	"github.com/jrsteele09/go-discord-auth/sessions"
	"github.com/jrsteele09/go-discord-auth/statecodec"
	"github.com/rs/zerolog/log"
)

const sessionSweepInterval = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}
	logging.Setup(c.GetEnv(), c.GetLogLevel())
	if err := config.Validate(c); err != nil {
		return err
	}
	displayAppname(c.GetAppName())

	handler, repo, err := build(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweepSessions(ctx, repo)

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- listenAndServe(httpServer) }()

	select {
	case err := <-errc:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

func build(c config.Config) (*server.Server, *sessions.InMemoryRepo, error) {
	codec, err := statecodec.New(c.GetStateOptions())
	if err != nil {
		return nil, nil, err
	}
	client := discord.New(discord.WithAPIURL(c.GetDiscordAPIURL()))
	flow, err := oauthflow.New(oauthflow.Config{
		App:          c.GetDiscordApp(),
		FirstGetUser: c.GetFirstGetUser(),
		UserOnLogout: c.GetUserOnLogout(),
		Query:        c.GetQueryKeys(),
	}, codec, client)
	if err != nil {
		return nil, nil, err
	}
	repo := sessions.NewInMemoryRepo()
	s, err := server.New(c, flow, client, repo)
	if err != nil {
		return nil, nil, err
	}
	return s, repo, nil
}

func sweepSessions(ctx context.Context, repo *sessions.InMemoryRepo) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := repo.Sweep(); n > 0 {
				log.Debug().Int("removed", n).Msg("expired sessions swept")
			}
		}
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Msgf("Server listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
