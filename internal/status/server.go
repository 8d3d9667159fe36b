// Package status serves a small read-only HTTP API about the running bot:
// health, open sessions, per-guild history and prometheus metrics.
package status

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/keshon/jukebox/internal/metrics"
	"github.com/keshon/jukebox/internal/music/player"
	"github.com/keshon/jukebox/internal/session"
	"github.com/keshon/jukebox/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// Sessions lists dispatcher sessions.
type Sessions interface {
	Snapshot() []session.Snapshot
}

// Players lists media players.
type Players interface {
	Snapshots() []player.Snapshot
}

// Jobs lists background jobs.
type Jobs interface {
	List() []string
}

// History reads per-guild history.
type History interface {
	FetchCommandHistory(guildID string) ([]storage.CommandHistoryRecord, error)
	FetchTrackHistory(guildID string) ([]storage.TrackHistoryRecord, error)
}

// Deps are the sources the server reports on. Nil sources are served as
// empty lists.
type Deps struct {
	Sessions Sessions
	Players  Players
	Jobs     Jobs
	History  History
}

// Server is the status HTTP server.
type Server struct {
	addr    string
	deps    Deps
	engine  *gin.Engine
	started time.Time
	log     zerolog.Logger
}

// New builds the server. Nothing listens until Run.
func New(addr string, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		addr:    addr,
		deps:    deps,
		engine:  gin.New(),
		started: time.Now(),
		log:     log.With().Str("component", "status").Logger(),
	}
	s.engine.Use(gin.Recovery(), s.requestMetrics())
	s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	s.engine.GET("/healthz", s.healthz)
	s.engine.GET("/sessions", s.sessions)
	s.engine.GET("/jobs", s.jobs)
	s.engine.GET("/history/:guild", s.history)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("status server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("shutting down status server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) sessions(c *gin.Context) {
	sessions := []session.Snapshot{}
	if s.deps.Sessions != nil {
		sessions = s.deps.Sessions.Snapshot()
	}
	players := []player.Snapshot{}
	if s.deps.Players != nil {
		players = s.deps.Players.Snapshots()
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "players": players})
}

func (s *Server) jobs(c *gin.Context) {
	jobs := []string{}
	if s.deps.Jobs != nil {
		jobs = append(jobs, s.deps.Jobs.List()...)
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (s *Server) history(c *gin.Context) {
	if s.deps.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history disabled"})
		return
	}
	guildID := c.Param("guild")

	commands, err := s.deps.History.FetchCommandHistory(guildID)
	if err != nil {
		s.log.Warn().Err(err).Str("guild", guildID).Msg("failed to read command history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}
	tracks, err := s.deps.History.FetchTrackHistory(guildID)
	if err != nil {
		s.log.Warn().Err(err).Str("guild", guildID).Msg("failed to read track history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}
	if commands == nil {
		commands = []storage.CommandHistoryRecord{}
	}
	if tracks == nil {
		tracks = []storage.TrackHistoryRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"guild_id": guildID, "commands": commands, "tracks": tracks})
}

// requestMetrics counts requests by route template, so guild ids do not
// become label values.
func (s *Server) requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()

		event := s.log.Debug()
		if status >= http.StatusInternalServerError {
			event = s.log.Warn()
		}
		event.Str("method", c.Request.Method).Str("route", route).Int("status", status).Msg("request completed")
	}
}
