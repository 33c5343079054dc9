package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"tagwatch/internal/watch"
	logx "tagwatch/pkg/logx"
)

func testEvent() watch.Event {
	return watch.Event{
		Entity:     watch.Entity{Owner: "o", Name: "r"},
		Previous:   "v1",
		Identifier: "v2",
		Source:     watch.SourceRelease,
		URL:        "https://github.com/o/r/releases/tag/v2",
		Message:    "🚀 New release in <b>o/r</b>: <code>v2</code>",
		ObservedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

type fakeBotAPI struct {
	mu       sync.Mutex
	paths    []string
	payloads []map[string]any
	fail     atomic.Bool
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	var p map[string]any
	_ = json.Unmarshal(b, &p)
	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.payloads = append(f.payloads, p)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if f.fail.Load() {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
		return
	}
	_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"chat":{"id":42,"type":"group"},"date":0,"text":"x"}}`))
}

func newTestTelegram(t *testing.T, api *fakeBotAPI) *Telegram {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	tg, err := NewTelegram(TelegramConfig{Token: "123:abc", ChatID: 42, ThreadID: 7, APIURL: srv.URL}, logx.Nop())
	require.NoError(t, err)
	return tg
}

func TestTelegramSendsHTML(t *testing.T) {
	t.Parallel()
	api := &fakeBotAPI{}
	tg := newTestTelegram(t, api)

	require.NoError(t, tg.Notify(context.Background(), testEvent()))

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.paths, 1, "offline bot must not call getMe")
	require.Equal(t, "/bot123:abc/sendMessage", api.paths[0])
	p := api.payloads[0]
	require.Equal(t, "42", fmt.Sprint(p["chat_id"]))
	require.Equal(t, "7", fmt.Sprint(p["message_thread_id"]))
	require.Equal(t, "HTML", fmt.Sprint(p["parse_mode"]))
	require.Equal(t, testEvent().Message, p["text"])
}

func TestTelegramAPIErrorIsReturned(t *testing.T) {
	t.Parallel()
	api := &fakeBotAPI{}
	api.fail.Store(true)
	err := newTestTelegram(t, api).Notify(context.Background(), testEvent())
	require.Error(t, err)
	require.True(t, strings.Contains(strings.ToLower(err.Error()), "chat not found"))
}

func TestTelegramRequiresCredentials(t *testing.T) {
	t.Parallel()
	_, err := NewTelegram(TelegramConfig{ChatID: 1}, logx.Nop())
	require.Error(t, err)
	_, err = NewTelegram(TelegramConfig{Token: "x"}, logx.Nop())
	require.Error(t, err)
}

func TestTelegramHonoursContext(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"chat":{"id":42},"date":0}}`))
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	tg, err := NewTelegram(TelegramConfig{Token: "1:x", ChatID: 42, APIURL: srv.URL, Timeout: 5 * time.Second}, logx.Nop())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, tg.Notify(ctx, testEvent()), context.DeadlineExceeded)
}

func startNATS(t *testing.T) string {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
	})
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("embedded NATS server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns.ClientURL()
}

func TestNATSPublishIsDeduplicated(t *testing.T) {
	t.Parallel()
	url := startNATS(t)
	ctx := context.Background()

	n, err := NewNATS(ctx, NATSConfig{URL: url, Subject: "tags.new", Stream: "TAGS"}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })

	ev := testEvent()
	require.NoError(t, n.Notify(ctx, ev))
	require.NoError(t, n.Notify(ctx, ev), "retry of the same transition")

	nc, err := nats.Connect(url)
	require.NoError(t, err)
	defer nc.Close()
	js, err := jetstream.New(nc)
	require.NoError(t, err)
	stream, err := js.Stream(ctx, "TAGS")
	require.NoError(t, err)
	info, err := stream.Info(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, info.State.Msgs)

	msg, err := stream.GetMsg(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "o/r@v2", msg.Header.Get("Nats-Msg-Id"))
	var doc map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &doc))
	require.Equal(t, "o/r", doc["entity"])
	require.Equal(t, "v2", doc["identifier"])
	require.Equal(t, "v1", doc["previous"])
	require.Equal(t, "release", doc["source"])

	ev.Identifier = "v3"
	require.NoError(t, n.Notify(ctx, ev))
	info, err = stream.Info(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, info.State.Msgs)
}

func TestNATSRequiresURL(t *testing.T) {
	t.Parallel()
	_, err := NewNATS(context.Background(), NATSConfig{}, logx.Nop())
	require.Error(t, err)
}

func TestLimitedThrottlesAndCloses(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	inner := Func(func(context.Context, watch.Event) error {
		calls.Add(1)
		return nil
	})
	l := NewLimited(inner, 1)

	require.NoError(t, l.Notify(context.Background(), testEvent()))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.Error(t, l.Notify(ctx, testEvent()), "second event within a second must wait past the deadline")
	require.EqualValues(t, 1, calls.Load())

	require.NoError(t, l.Close())
	require.ErrorIs(t, l.Notify(context.Background(), testEvent()), ErrStopped)
}

func TestOpenDrivers(t *testing.T) {
	t.Parallel()
	n, err := Open(context.Background(), Config{Driver: "log"}, logx.Nop())
	require.NoError(t, err)
	require.IsType(t, &Log{}, n.Inner())
	require.NoError(t, n.Notify(context.Background(), testEvent()))

	_, err = Open(context.Background(), Config{Driver: "smoke-signals"}, logx.Nop())
	require.Error(t, err)

	_, err = Open(context.Background(), Config{Driver: "telegram"}, logx.Nop())
	require.Error(t, err, "telegram without a token")
}
