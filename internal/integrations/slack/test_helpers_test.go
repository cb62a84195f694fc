package slackbot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/slack-go/slack"

	"ingrealloc/internal/ingest"
	"ingrealloc/internal/session"
)

type staticSource struct {
	sheet ingest.RawSheet
	err   error
}

func (s *staticSource) Name() string { return "static" }

func (s *staticSource) Fetch(ctx context.Context) (ingest.RawSheet, error) {
	return s.sheet, s.err
}

// blockingSource holds every fetch until release is closed.
type blockingSource struct {
	release chan struct{}
}

func (s *blockingSource) Name() string { return "blocking" }

func (s *blockingSource) Fetch(ctx context.Context) (ingest.RawSheet, error) {
	select {
	case <-s.release:
		return usageSheet(), nil
	case <-ctx.Done():
		return ingest.RawSheet{}, ctx.Err()
	}
}

func usageSheet() ingest.RawSheet {
	return ingest.RawSheet{
		Header: []string{"DATE", "ITEM_SERIAL", "ITEM NAME", "QUANTITY", "DEPARTMENT_CAT", "UNIT_OF_MEASURE"},
		Rows: [][]string{
			{"2024-01-05", "FL01", "Flour", "30", "Bakery", "KG"},
			{"2024-01-06", "FL01", "Flour", "70", "Kitchen", "KG"},
			{"2024-02-01", "SU02", "Sugar", "10", "Bar", "KG"},
			{"2024-02-02", "BS04", "Brown Sugar", "5", "Bakery", "KG"},
		},
	}
}

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	return session.New(&staticSource{sheet: usageSheet()}, nil, session.Options{}, nil)
}

// postedMessage is one chat.postEphemeral or chat.postMessage call.
type postedMessage struct {
	Method  string
	Channel string
	User    string
	Text    string
	Blocks  string
}

type mockSlack struct {
	mu    sync.Mutex
	posts []postedMessage
	views int
}

func (m *mockSlack) messages() []postedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]postedMessage(nil), m.posts...)
}

func (m *mockSlack) openedViews() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.views
}

func newMockSlackAPI(t *testing.T) (*slack.Client, *mockSlack) {
	t.Helper()

	mock := &mockSlack{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		path := strings.TrimPrefix(r.URL.Path, "/api/")
		switch path {
		case "chat.postEphemeral", "chat.postMessage":
			mock.mu.Lock()
			mock.posts = append(mock.posts, postedMessage{
				Method:  path,
				Channel: r.FormValue("channel"),
				User:    r.FormValue("user"),
				Text:    r.FormValue("text"),
				Blocks:  r.FormValue("blocks"),
			})
			mock.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": r.FormValue("channel"), "ts": "1.0", "message_ts": "1.0"})
		case "views.open":
			mock.mu.Lock()
			mock.views++
			mock.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "view": map[string]any{"id": "V1"}})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
		}
	}))
	t.Cleanup(server.Close)

	return slack.New("xoxb-test", slack.OptionAPIURL(server.URL+"/api/")), mock
}

func newTestBot(t *testing.T) (*Bot, *mockSlack) {
	t.Helper()
	api, mock := newMockSlackAPI(t)
	cfg := Config{MaxItems: 10, ReportChannelID: "CREPORT"}
	return New(cfg, api, newTestSession(t), nil), mock
}

func slashCommand(command, text string) slack.SlashCommand {
	return slack.SlashCommand{
		Command:   command,
		Text:      text,
		ChannelID: "C1",
		UserID:    "U1",
		TriggerID: "T1",
	}
}
