package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"uewatch/internal/domain"
)

const (
	telegramAPIBase = "https://api.telegram.org"

	// longPollTimeout is the server-side getUpdates timeout in seconds.
	longPollTimeout = 30

	// recentCap bounds the window of observed messages served by
	// FetchRecent. The Bot API has no history endpoint, so the recent
	// window is built from the updates the poll loop has seen.
	recentCap = 64
)

// Telegram reads channel posts through the Telegram Bot API. One internal
// long-poll loop, started by Connect, feeds both the live subscription and
// the recent-message window.
type Telegram struct {
	token   string
	channel string
	client  *http.Client
	logger  zerolog.Logger

	mu         sync.Mutex
	recent     []domain.Message
	files      map[int64]string
	subscribed bool

	out    chan domain.Message
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTelegram(token, channel string, logger zerolog.Logger) *Telegram {
	return &Telegram{
		token:   token,
		channel: strings.TrimPrefix(channel, "@"),
		client:  &http.Client{Timeout: (longPollTimeout + 10) * time.Second},
		logger:  logger.With().Str("module", "telegram-source").Logger(),
		files:   make(map[int64]string),
		out:     make(chan domain.Message, 16),
		done:    make(chan struct{}),
	}
}

// Connect validates the bot token and starts the update poll loop.
func (t *Telegram) Connect(ctx context.Context) error {
	var me struct {
		Result struct {
			Username string `json:"username"`
		} `json:"result"`
	}
	if err := t.call(ctx, "getMe", nil, &me); err != nil {
		return fmt.Errorf("telegram auth: %w", err)
	}

	t.logger.Info().Str("bot", me.Result.Username).Str("channel", t.channel).Msg("connected to Telegram")

	pollCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go t.poll(pollCtx)

	return nil
}

// SubscribeLive returns the channel fed by the poll loop. Messages observed
// before the first subscription are only served through FetchRecent.
func (t *Telegram) SubscribeLive(ctx context.Context) (<-chan domain.Message, error) {
	t.mu.Lock()
	t.subscribed = true
	t.mu.Unlock()
	return t.out, nil
}

// FetchRecent serves the most recent messages from the observed window, in
// chronological order.
func (t *Telegram) FetchRecent(ctx context.Context, limit int) ([]domain.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.recent)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]domain.Message, n)
	copy(out, t.recent[len(t.recent)-n:])
	return out, nil
}

// DownloadAttachment resolves the message's file through getFile and saves
// it under destPath, appending the remote file's extension when it has one.
func (t *Telegram) DownloadAttachment(ctx context.Context, msg domain.Message, destPath string) (string, error) {
	t.mu.Lock()
	fileID, ok := t.files[msg.ID]
	t.mu.Unlock()
	if !ok {
		return "", ErrNoAttachment
	}

	var file struct {
		Result struct {
			FilePath string `json:"file_path"`
		} `json:"result"`
	}
	if err := t.call(ctx, "getFile", url.Values{"file_id": {fileID}}, &file); err != nil {
		return "", fmt.Errorf("resolve file %s: %w", fileID, err)
	}

	fileURL := fmt.Sprintf("%s/file/bot%s/%s", telegramAPIBase, t.token, file.Result.FilePath)
	if ext := path.Ext(file.Result.FilePath); ext != "" {
		destPath += ext
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download HTTP %d", resp.StatusCode)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", err
	}

	return destPath, nil
}

// Close stops the poll loop and closes the live channel.
func (t *Telegram) Close() error {
	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
	return nil
}

func (t *Telegram) poll(ctx context.Context) {
	defer close(t.done)
	defer close(t.out)

	var offset int64

	for {
		if ctx.Err() != nil {
			return
		}

		updates, err := t.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Warn().Err(err).Msg("getUpdates failed, retrying")
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			post := u.ChannelPost
			if post == nil || !strings.EqualFold(post.Chat.Username, t.channel) {
				continue
			}
			t.record(ctx, toMessage(post), fileID(post))
		}
	}
}

func (t *Telegram) record(ctx context.Context, msg domain.Message, fileID string) {
	t.mu.Lock()
	t.recent = append(t.recent, msg)
	if fileID != "" {
		t.files[msg.ID] = fileID
	}
	if len(t.recent) > recentCap {
		delete(t.files, t.recent[0].ID)
		t.recent = t.recent[1:]
	}
	subscribed := t.subscribed
	t.mu.Unlock()

	if !subscribed {
		return
	}

	select {
	case t.out <- msg:
	case <-ctx.Done():
	}
}

type tgUpdate struct {
	UpdateID    int64   `json:"update_id"`
	ChannelPost *tgPost `json:"channel_post"`
}

type tgPost struct {
	MessageID int64  `json:"message_id"`
	Date      int64  `json:"date"`
	Text      string `json:"text"`
	Caption   string `json:"caption"`
	Chat      struct {
		Username string `json:"username"`
	} `json:"chat"`
	Document *struct {
		FileID string `json:"file_id"`
	} `json:"document"`
	Video *struct {
		FileID string `json:"file_id"`
	} `json:"video"`
	Photo []struct {
		FileID string `json:"file_id"`
	} `json:"photo"`
}

func toMessage(p *tgPost) domain.Message {
	text := p.Text
	if text == "" {
		text = p.Caption
	}
	return domain.Message{
		ID:            p.MessageID,
		Text:          text,
		Timestamp:     time.Unix(p.Date, 0),
		HasAttachment: fileID(p) != "",
	}
}

// fileID picks the downloadable file of a post: a document or video
// directly, or the largest photo size (the Bot API orders sizes ascending).
func fileID(p *tgPost) string {
	switch {
	case p.Document != nil:
		return p.Document.FileID
	case p.Video != nil:
		return p.Video.FileID
	case len(p.Photo) > 0:
		return p.Photo[len(p.Photo)-1].FileID
	}
	return ""
}

func (t *Telegram) getUpdates(ctx context.Context, offset int64) ([]tgUpdate, error) {
	params := url.Values{
		"timeout":         {strconv.Itoa(longPollTimeout)},
		"allowed_updates": {`["channel_post"]`},
	}
	if offset > 0 {
		params.Set("offset", strconv.FormatInt(offset, 10))
	}

	var res struct {
		Result []tgUpdate `json:"result"`
	}
	if err := t.call(ctx, "getUpdates", params, &res); err != nil {
		return nil, err
	}
	return res.Result, nil
}

func (t *Telegram) call(ctx context.Context, method string, params url.Values, out any) error {
	u := fmt.Sprintf("%s/bot%s/%s", telegramAPIBase, t.token, method)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram %s: HTTP %d", method, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
