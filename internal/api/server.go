package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"uewatch/internal/domain"
	"uewatch/internal/monitor"
	"uewatch/internal/storage"
)

// Server is the optional status surface: health, monitor stats, archived
// events and a live SSE feed. It is wired into the monitor as one of its
// notifier sinks, so every emitted UpdateEvent reaches connected clients.
type Server struct {
	echo    *echo.Echo
	archive storage.EventArchive
	logger  zerolog.Logger
	sse     *SSEBroker

	mu  sync.Mutex
	mon *monitor.Monitor
}

type SSEBroker struct {
	clients map[chan string]bool
	mu      sync.RWMutex
}

func NewSSEBroker() *SSEBroker {
	return &SSEBroker{clients: make(map[chan string]bool)}
}

func (b *SSEBroker) Subscribe() chan string {
	ch := make(chan string, 10)
	b.mu.Lock()
	b.clients[ch] = true
	b.mu.Unlock()
	return ch
}

func (b *SSEBroker) Unsubscribe(ch chan string) {
	b.mu.Lock()
	delete(b.clients, ch)
	close(ch)
	b.mu.Unlock()
}

func (b *SSEBroker) Broadcast(msg string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

// NewServer builds the server. The archive may be nil; the events endpoint
// then reports that no archive is configured.
func NewServer(archive storage.EventArchive, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:    e,
		archive: archive,
		logger:  logger.With().Str("module", "api").Logger(),
		sse:     NewSSEBroker(),
	}

	s.routes()

	return s
}

// SetMonitor attaches the monitor once it exists; the server is built first
// because the monitor wants it among its notifiers.
func (s *Server) SetMonitor(m *monitor.Monitor) {
	s.mu.Lock()
	s.mon = m
	s.mu.Unlock()
}

func (s *Server) monitorRef() *monitor.Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mon
}

func (s *Server) routes() {
	s.echo.GET("/healthz", s.health)
	s.echo.GET("/status", s.status)
	s.echo.GET("/events", s.events)
	s.echo.GET("/feed", s.feed)
}

func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Notify implements notifier.Notifier by broadcasting the event to SSE
// subscribers.
func (s *Server) Notify(ctx context.Context, ev domain.UpdateEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.sse.Broadcast(string(data))
	return nil
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(c echo.Context) error {
	mon := s.monitorRef()
	if mon == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "monitor not running"})
	}
	return c.JSON(http.StatusOK, mon.Stats(c.Request().Context()))
}

func (s *Server) events(c echo.Context) error {
	if s.archive == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no event archive configured"})
	}

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		limit = n
	}

	events, err := s.archive.Recent(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("archive query failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if events == nil {
		events = []domain.UpdateEvent{}
	}
	return c.JSON(http.StatusOK, events)
}

func (s *Server) feed(c echo.Context) error {
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")

	ch := s.sse.Subscribe()
	defer s.sse.Unsubscribe(ch)

	fmt.Fprintf(c.Response(), ": ping\n\n")
	c.Response().Flush()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case msg := <-ch:
			fmt.Fprintf(c.Response(), "event: update\n")
			for _, line := range strings.Split(msg, "\n") {
				fmt.Fprintf(c.Response(), "data: %s\n", line)
			}
			fmt.Fprintf(c.Response(), "\n")
			c.Response().Flush()
		}
	}
}
