package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"uewatch/internal/classifier"
	"uewatch/internal/domain"
	"uewatch/internal/notifier"
	"uewatch/internal/seen"
	"uewatch/internal/source"
)

// State is the monitor lifecycle: Idle until Start, Active while watching,
// Stopped after Stop. Stopped is terminal.
type State int

const (
	StateIdle State = iota
	StateActive
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

var (
	ErrAlreadyStarted = errors.New("monitor: already started")
	ErrNotRunning     = errors.New("monitor: not running")
)

const (
	// DefaultFetchLimit is the pull window size per tick.
	DefaultFetchLimit = 20

	// previewLimit bounds the text preview carried on an UpdateEvent.
	previewLimit = 200
)

type Config struct {
	Channel         string
	CheckInterval   time.Duration
	FetchLimit      int
	DownloadEnabled bool
	DownloadDir     string
}

// Monitor turns a raw message feed into a filtered stream of UpdateEvents.
// One goroutine owns the event loop and with it every seen-set mutation:
// push arrivals and periodic pulls are serialized through the same select,
// so a message can never produce two events no matter which path delivers
// it first.
type Monitor struct {
	cfg       Config
	src       source.Source
	store     seen.Store
	notifiers []notifier.Notifier
	logger    zerolog.Logger

	mu        sync.Mutex
	state     State
	lastCheck time.Time

	stopCh    chan struct{}
	doneCh    chan struct{}
	downloads sync.WaitGroup
}

func New(cfg Config, src source.Source, store seen.Store, notifiers []notifier.Notifier, logger zerolog.Logger) (*Monitor, error) {
	if cfg.Channel == "" {
		return nil, errors.New("monitor: channel is required")
	}
	if cfg.CheckInterval < time.Second {
		return nil, fmt.Errorf("monitor: check interval %s is below 1s", cfg.CheckInterval)
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = DefaultFetchLimit
	}
	if cfg.DownloadEnabled {
		if cfg.DownloadDir == "" {
			return nil, errors.New("monitor: downloads enabled without a download dir")
		}
		if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
			return nil, fmt.Errorf("monitor: create download dir: %w", err)
		}
	}

	return &Monitor{
		cfg:       cfg,
		src:       src,
		store:     store,
		notifiers: notifiers,
		logger:    logger.With().Str("module", "monitor").Str("channel", cfg.Channel).Logger(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start moves the monitor to Active, subscribes to the source's live feed
// when it has one and schedules the first periodic check one interval out.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.state = StateActive
	m.mu.Unlock()

	push, err := m.src.SubscribeLive(ctx)
	if err != nil {
		if !errors.Is(err, source.ErrPushUnsupported) {
			m.mu.Lock()
			m.state = StateIdle
			m.mu.Unlock()
			return fmt.Errorf("monitor: subscribe: %w", err)
		}
		push = nil
		m.logger.Info().Msg("source has no live feed, relying on periodic checks")
	}

	m.logger.Info().
		Dur("check_interval", m.cfg.CheckInterval).
		Int("fetch_limit", m.cfg.FetchLimit).
		Bool("downloads", m.cfg.DownloadEnabled).
		Msg("monitor started")

	go m.run(ctx, push)

	return nil
}

// Stop moves the monitor to Stopped, waits for the event loop to drain and
// for in-flight downloads to finish, then disconnects the source. Work
// already started is completed, not aborted.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.state != StateActive {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.state = StateStopped
	m.mu.Unlock()

	close(m.stopCh)
	<-m.doneCh
	m.downloads.Wait()

	m.logger.Info().Msg("monitor stopped")
	return m.src.Close()
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastCheck is the completion time of the most recent successful pull tick.
// Push arrivals never advance it.
func (m *Monitor) LastCheck() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCheck
}

// Stats is a point-in-time snapshot for the status endpoint.
type Stats struct {
	Channel   string    `json:"channel"`
	State     string    `json:"state"`
	LastCheck time.Time `json:"last_check"`
	SeenCount int64     `json:"seen_count"`
}

func (m *Monitor) Stats(ctx context.Context) Stats {
	count, err := m.store.Size(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("seen store size unavailable")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Channel:   m.cfg.Channel,
		State:     m.state.String(),
		LastCheck: m.lastCheck,
		SeenCount: count,
	}
}

func (m *Monitor) run(ctx context.Context, push <-chan domain.Message) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkRecent(ctx)
		case msg, ok := <-push:
			if !ok {
				push = nil
				continue
			}
			m.processMessage(ctx, msg)
		}
	}
}

// checkRecent runs one pull tick. A failed fetch is logged and the tick
// abandoned with the seen set untouched; the schedule continues regardless.
func (m *Monitor) checkRecent(ctx context.Context) {
	msgs, err := m.src.FetchRecent(ctx, m.cfg.FetchLimit)
	if err != nil {
		m.logger.Error().Err(err).Msg("fetching recent messages failed")
		return
	}

	fresh := 0
	for _, msg := range msgs {
		if m.processMessage(ctx, msg) {
			fresh++
		}
	}

	m.mu.Lock()
	m.lastCheck = time.Now()
	m.mu.Unlock()

	m.logger.Debug().Int("fetched", len(msgs)).Int("new", fresh).Msg("check completed")
}

// processMessage handles one message from either delivery path. It reports
// whether the message was new. Every new message is marked seen, matching
// or not; only messages with text reach the classifier.
func (m *Monitor) processMessage(ctx context.Context, msg domain.Message) bool {
	known, err := m.store.Contains(ctx, msg.ID)
	if err != nil {
		// Leave the message unseen; a later pull window will retry it.
		m.logger.Error().Err(err).Int64("message_id", msg.ID).Msg("seen lookup failed")
		return false
	}
	if known {
		return false
	}

	if err := m.store.Add(ctx, msg.ID); err != nil {
		m.logger.Error().Err(err).Int64("message_id", msg.ID).Msg("marking message seen failed")
		return false
	}

	if msg.Text == "" {
		return true
	}

	res := classifier.Classify(msg.Text)
	if !res.IsUpdate {
		return true
	}

	ev := domain.UpdateEvent{
		MessageID:  msg.ID,
		Version:    res.Version,
		Timestamp:  msg.Timestamp,
		Channel:    m.cfg.Channel,
		Preview:    truncate(msg.Text, previewLimit),
		DetectedAt: time.Now(),
	}

	m.logger.Info().
		Int64("message_id", msg.ID).
		Str("version", res.Version).
		Bool("keywords", res.HasKeywords).
		Msg("update announcement detected")

	for _, n := range m.notifiers {
		if err := n.Notify(ctx, ev); err != nil {
			m.logger.Error().Err(err).Int64("message_id", msg.ID).Msg("notification failed")
		}
	}

	if msg.HasAttachment && m.cfg.DownloadEnabled {
		m.downloads.Add(1)
		go m.download(ctx, msg)
	}

	return true
}

// download fetches the message attachment. It runs off the event loop: it
// touches no seen state, so it may overlap the next tick freely.
func (m *Monitor) download(ctx context.Context, msg domain.Message) {
	defer m.downloads.Done()

	name := fmt.Sprintf("ue_update_%s_msg%d", time.Now().Format("20060102_150405"), msg.ID)
	dest := filepath.Join(m.cfg.DownloadDir, name)

	path, err := m.src.DownloadAttachment(ctx, msg, dest)
	if err != nil {
		m.logger.Error().Err(err).Int64("message_id", msg.ID).Msg("attachment download failed")
		return
	}

	m.logger.Info().Int64("message_id", msg.ID).Str("path", path).Msg("attachment downloaded")
}

// truncate cuts s to n characters, not bytes, so multibyte text is never
// split mid-rune.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
