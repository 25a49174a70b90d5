package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uewatch/internal/domain"
)

func TestSSEBroker(t *testing.T) {
	b := NewSSEBroker()

	ch := b.Subscribe()
	b.Broadcast("hello")

	select {
	case msg := <-ch:
		assert.Equal(t, "hello", msg)
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}

	// A full client buffer must not block the broadcaster.
	for i := 0; i < 20; i++ {
		b.Broadcast("flood")
	}

	b.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)
}

func TestHealthEndpoint(t *testing.T) {
	s := NewServer(nil, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestStatusWithoutMonitor(t *testing.T) {
	s := NewServer(nil, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEventsWithoutArchive(t *testing.T) {
	s := NewServer(nil, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotifyBroadcastsEvent(t *testing.T) {
	s := NewServer(nil, zerolog.Nop())
	ch := s.sse.Subscribe()
	defer s.sse.Unsubscribe(ch)

	ev := domain.UpdateEvent{MessageID: 42, Version: "5.4", Channel: "unrealengine"}
	require.NoError(t, s.Notify(context.Background(), ev))

	select {
	case msg := <-ch:
		var got domain.UpdateEvent
		require.NoError(t, json.Unmarshal([]byte(msg), &got))
		assert.Equal(t, int64(42), got.MessageID)
		assert.Equal(t, "5.4", got.Version)
	case <-time.After(time.Second):
		t.Fatal("no event broadcast")
	}
}
