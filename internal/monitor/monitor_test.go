package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uewatch/internal/domain"
	"uewatch/internal/notifier"
	"uewatch/internal/seen"
	"uewatch/internal/source"
)

type fakeSource struct {
	mu    sync.Mutex
	fetch func(limit int) ([]domain.Message, error)
	push  chan domain.Message

	dests  []string
	closed bool
}

func (f *fakeSource) Connect(ctx context.Context) error { return nil }

func (f *fakeSource) SubscribeLive(ctx context.Context) (<-chan domain.Message, error) {
	if f.push == nil {
		return nil, source.ErrPushUnsupported
	}
	return f.push, nil
}

func (f *fakeSource) FetchRecent(ctx context.Context, limit int) ([]domain.Message, error) {
	if f.fetch == nil {
		return nil, nil
	}
	return f.fetch(limit)
}

func (f *fakeSource) DownloadAttachment(ctx context.Context, msg domain.Message, destPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dests = append(f.dests, destPath)
	return destPath + ".zip", nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSource) downloaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dests...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.UpdateEvent
	err    error
}

func (r *recordingNotifier) Notify(ctx context.Context, ev domain.UpdateEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingNotifier) all() []domain.UpdateEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.UpdateEvent(nil), r.events...)
}

func updateMsg(id int64) domain.Message {
	return domain.Message{
		ID:        id,
		Text:      "New UE 5.4 plugin update available!",
		Timestamp: time.Now(),
	}
}

func plainMsg(id int64) domain.Message {
	return domain.Message{
		ID:        id,
		Text:      "Just random text",
		Timestamp: time.Now(),
	}
}

func newTestMonitor(t *testing.T, src *fakeSource, ns ...notifier.Notifier) (*Monitor, *seen.Memory) {
	t.Helper()

	store := seen.NewMemory(0)
	m, err := New(Config{
		Channel:       "unrealengine",
		CheckInterval: time.Hour,
	}, src, store, ns, zerolog.Nop())
	require.NoError(t, err)
	return m, store
}

func TestConfigValidation(t *testing.T) {
	src := &fakeSource{}
	store := seen.NewMemory(0)

	_, err := New(Config{CheckInterval: time.Minute}, src, store, nil, zerolog.Nop())
	assert.Error(t, err, "missing channel")

	_, err = New(Config{Channel: "c", CheckInterval: 500 * time.Millisecond}, src, store, nil, zerolog.Nop())
	assert.Error(t, err, "interval below 1s")

	_, err = New(Config{Channel: "c", CheckInterval: time.Minute, DownloadEnabled: true}, src, store, nil, zerolog.Nop())
	assert.Error(t, err, "downloads without dir")
}

func TestPullDedupAcrossTicks(t *testing.T) {
	batch := []domain.Message{updateMsg(10), plainMsg(11), updateMsg(12)}
	src := &fakeSource{fetch: func(int) ([]domain.Message, error) { return batch, nil }}
	rec := &recordingNotifier{}
	m, store := newTestMonitor(t, src, rec)

	ctx := context.Background()
	m.checkRecent(ctx)
	m.checkRecent(ctx)

	events := rec.all()
	require.Len(t, events, 2, "one event per matching message, across ticks")
	assert.Equal(t, int64(10), events[0].MessageID)
	assert.Equal(t, int64(12), events[1].MessageID)
	assert.Equal(t, "5.4", events[0].Version)

	size, _ := store.Size(ctx)
	assert.Equal(t, int64(3), size, "non-matching messages are marked seen too")
}

func TestPullThenPushNoDuplicate(t *testing.T) {
	batch := []domain.Message{updateMsg(10), updateMsg(11), updateMsg(12)}
	src := &fakeSource{fetch: func(int) ([]domain.Message, error) { return batch, nil }}
	rec := &recordingNotifier{}
	m, _ := newTestMonitor(t, src, rec)

	ctx := context.Background()
	m.checkRecent(ctx)
	require.Len(t, rec.all(), 3)

	// The same message arriving again over the live path must not emit a
	// second event.
	m.processMessage(ctx, updateMsg(11))
	assert.Len(t, rec.all(), 3)
}

func TestPushThenPullNoDuplicate(t *testing.T) {
	src := &fakeSource{fetch: func(int) ([]domain.Message, error) {
		return []domain.Message{updateMsg(11)}, nil
	}}
	rec := &recordingNotifier{}
	m, _ := newTestMonitor(t, src, rec)

	ctx := context.Background()
	m.processMessage(ctx, updateMsg(11))
	m.checkRecent(ctx)

	assert.Len(t, rec.all(), 1)
}

func TestFailedPullLeavesSeenUntouched(t *testing.T) {
	calls := 0
	src := &fakeSource{fetch: func(int) ([]domain.Message, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("transient network fault")
		}
		return []domain.Message{updateMsg(10)}, nil
	}}
	rec := &recordingNotifier{}
	m, store := newTestMonitor(t, src, rec)

	ctx := context.Background()
	m.checkRecent(ctx)

	size, _ := store.Size(ctx)
	assert.Equal(t, int64(0), size)
	assert.True(t, m.LastCheck().IsZero(), "failed tick does not count as a check")

	// The next tick proceeds as if nothing happened.
	m.checkRecent(ctx)
	assert.Len(t, rec.all(), 1)
	assert.False(t, m.LastCheck().IsZero())
}

func TestEmptyTextDiscardedButMarkedSeen(t *testing.T) {
	src := &fakeSource{}
	rec := &recordingNotifier{}
	m, store := newTestMonitor(t, src, rec)

	ctx := context.Background()
	m.processMessage(ctx, domain.Message{ID: 7, Timestamp: time.Now()})

	assert.Empty(t, rec.all())
	known, _ := store.Contains(ctx, 7)
	assert.True(t, known)
}

func TestPushDoesNotAdvanceLastCheck(t *testing.T) {
	src := &fakeSource{}
	m, _ := newTestMonitor(t, src)

	m.processMessage(context.Background(), updateMsg(5))
	assert.True(t, m.LastCheck().IsZero())
}

func TestNotifierFailureDoesNotBlockOthers(t *testing.T) {
	src := &fakeSource{}
	failing := &recordingNotifier{err: errors.New("sink down")}
	rec := &recordingNotifier{}
	m, _ := newTestMonitor(t, src, failing, rec)

	m.processMessage(context.Background(), updateMsg(10))

	assert.Len(t, rec.all(), 1, "later sinks still run after a failure")
}

func TestAttachmentDownload(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{}
	rec := &recordingNotifier{}
	store := seen.NewMemory(0)

	m, err := New(Config{
		Channel:         "unrealengine",
		CheckInterval:   time.Hour,
		DownloadEnabled: true,
		DownloadDir:     dir,
	}, src, store, []notifier.Notifier{rec}, zerolog.Nop())
	require.NoError(t, err)

	msg := updateMsg(42)
	msg.HasAttachment = true
	m.processMessage(context.Background(), msg)
	m.downloads.Wait()

	dests := src.downloaded()
	require.Len(t, dests, 1)
	assert.Equal(t, dir, filepath.Dir(dests[0]))
	name := filepath.Base(dests[0])
	assert.True(t, strings.HasPrefix(name, "ue_update_"), "got %q", name)
	assert.True(t, strings.HasSuffix(name, "_msg42"), "got %q", name)
}

func TestNoDownloadWhenDisabled(t *testing.T) {
	src := &fakeSource{}
	rec := &recordingNotifier{}
	m, _ := newTestMonitor(t, src, rec)

	msg := updateMsg(42)
	msg.HasAttachment = true
	m.processMessage(context.Background(), msg)
	m.downloads.Wait()

	assert.Empty(t, src.downloaded())
	assert.Len(t, rec.all(), 1, "notification is independent of downloads")
}

func TestPreviewTruncation(t *testing.T) {
	src := &fakeSource{}
	rec := &recordingNotifier{}
	m, _ := newTestMonitor(t, src, rec)

	long := "Unreal Engine 5.4 update " + strings.Repeat("x", 300)
	m.processMessage(context.Background(), domain.Message{ID: 1, Text: long, Timestamp: time.Now()})

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, 203, utf8.RuneCountInString(events[0].Preview), "200 chars plus the ... suffix")
	assert.True(t, strings.HasSuffix(events[0].Preview, "..."))
	assert.Equal(t, long[:200], strings.TrimSuffix(events[0].Preview, "..."))
}

func TestPreviewTruncationMultibyte(t *testing.T) {
	src := &fakeSource{}
	rec := &recordingNotifier{}
	m, _ := newTestMonitor(t, src, rec)

	long := "Unreal Engine 5.4 アップデート " + strings.Repeat("é", 300)
	m.processMessage(context.Background(), domain.Message{ID: 2, Text: long, Timestamp: time.Now()})

	events := rec.all()
	require.Len(t, events, 1)
	preview := events[0].Preview
	assert.True(t, utf8.ValidString(preview))
	assert.Equal(t, 203, utf8.RuneCountInString(preview), "cut counts characters, not bytes")
	assert.True(t, strings.HasSuffix(preview, "..."))
	assert.Equal(t, string([]rune(long)[:200]), strings.TrimSuffix(preview, "..."))
}

func TestShortTextNotTruncated(t *testing.T) {
	src := &fakeSource{}
	rec := &recordingNotifier{}
	m, _ := newTestMonitor(t, src, rec)

	m.processMessage(context.Background(), updateMsg(1))

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, "New UE 5.4 plugin update available!", events[0].Preview)
}

func TestLifecycle(t *testing.T) {
	push := make(chan domain.Message, 1)
	src := &fakeSource{push: push}
	rec := &recordingNotifier{}
	m, _ := newTestMonitor(t, src, rec)

	assert.Equal(t, StateIdle, m.State())
	assert.ErrorIs(t, m.Stop(), ErrNotRunning)

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	assert.Equal(t, StateActive, m.State())
	assert.ErrorIs(t, m.Start(ctx), ErrAlreadyStarted)

	push <- updateMsg(100)
	require.Eventually(t, func() bool {
		return len(rec.all()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Stop())
	assert.Equal(t, StateStopped, m.State())
	assert.True(t, src.closed, "stop disconnects the source")

	assert.ErrorIs(t, m.Stop(), ErrNotRunning)
	assert.ErrorIs(t, m.Start(ctx), ErrAlreadyStarted)
}

func TestPeriodicTickRuns(t *testing.T) {
	var mu sync.Mutex
	fetches := 0
	src := &fakeSource{fetch: func(int) ([]domain.Message, error) {
		mu.Lock()
		defer mu.Unlock()
		fetches++
		return []domain.Message{updateMsg(1)}, nil
	}}
	rec := &recordingNotifier{}
	store := seen.NewMemory(0)

	m, err := New(Config{
		Channel:       "unrealengine",
		CheckInterval: time.Second,
	}, src, store, []notifier.Notifier{rec}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fetches >= 1
	}, 3*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(rec.all()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.False(t, m.LastCheck().IsZero())
}
