// Package server exposes the ops surface: health probes, Prometheus
// metrics, a presence snapshot API, and the live presence websocket feed.
package server

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Easy-Rad/wally/internal/broadcast"
	"github.com/Easy-Rad/wally/internal/domain"
)

// presenceLister is the slice of domain.UserRepository the API reads.
type presenceLister interface {
	ListPresence(ctx context.Context) ([]domain.PresenceRecord, error)
}

// pinger covers both the pgx pool and the redis client health checks.
type pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain function to the pinger interface, e.g. the
// redis client whose Ping returns a StatusCmd rather than an error.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Server struct {
	echo      *echo.Echo
	users     presenceLister
	hub       *broadcast.Hub
	postgres  pinger
	redis     pinger
	startTime time.Time
}

func NewServer(users presenceLister, hub *broadcast.Hub, postgres, redis pinger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	srv := &Server{
		echo:      e,
		users:     users,
		hub:       hub,
		postgres:  postgres,
		redis:     redis,
		startTime: time.Now(),
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) Start(port string) error {
	return s.echo.Start(":" + port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
