package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBotAPI struct {
	mu       sync.Mutex
	sent     []map[string]string
	failWith string
}

func (f *fakeBotAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Buy","username":"buywatch_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.failWith != "" {
				_, _ = w.Write([]byte(f.failWith))
				return
			}
			params := map[string]string{}
			for k := range r.PostForm {
				params[k] = r.PostForm.Get(k)
			}
			f.sent = append(f.sent, params)
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":-100,"type":"channel"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newTestTelegram(t *testing.T) (*Telegram, *fakeBotAPI) {
	t.Helper()
	fake := &fakeBotAPI{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	tg, err := NewTelegram(TelegramConfig{BotToken: "123:abc", APIEndpoint: srv.URL + "/bot%s/%s"})
	require.NoError(t, err)
	return tg, fake
}

func TestTelegram_SendHTMLWithButtons(t *testing.T) {
	tg, fake := newTestTelegram(t)
	assert.Equal(t, "buywatch_bot", tg.Username())

	err := tg.Send(context.Background(), "-1001234567890", Message{
		Text:      "<b>BUY</b>",
		ParseMode: ParseModeHTML,
		Buttons:   []Button{{Text: "Chart", URL: "https://dexscreener.com/ethereum/0xabc"}},
	})
	require.NoError(t, err)

	require.Len(t, fake.sent, 1)
	got := fake.sent[0]
	assert.Equal(t, "-1001234567890", got["chat_id"])
	assert.Equal(t, "<b>BUY</b>", got["text"])
	assert.Equal(t, "HTML", got["parse_mode"])

	var markup struct {
		InlineKeyboard [][]struct {
			Text string `json:"text"`
			URL  string `json:"url"`
		} `json:"inline_keyboard"`
	}
	require.NoError(t, json.Unmarshal([]byte(got["reply_markup"]), &markup))
	require.Len(t, markup.InlineKeyboard, 1)
	assert.Equal(t, "Chart", markup.InlineKeyboard[0][0].Text)
}

func TestTelegram_SendToChannelUsername(t *testing.T) {
	tg, fake := newTestTelegram(t)

	require.NoError(t, tg.Send(context.Background(), "@buyalerts", Message{Text: "plain"}))
	require.Len(t, fake.sent, 1)
	assert.Equal(t, "@buyalerts", fake.sent[0]["chat_id"])
	assert.Empty(t, fake.sent[0]["parse_mode"])
}

func TestTelegram_InvalidChannel(t *testing.T) {
	tg, _ := newTestTelegram(t)
	err := tg.Send(context.Background(), "not-a-chat", Message{Text: "x"})
	assert.Error(t, err)
}

func TestTelegram_APIError(t *testing.T) {
	tg, fake := newTestTelegram(t)
	fake.failWith = `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":3}}`

	err := tg.Send(context.Background(), "-100", Message{Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry after 3s")
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *recordingNotifier) Send(ctx context.Context, channel string, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

func TestMulti(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("boom")}

	require.NoError(t, NewMulti(ok, bad).Send(context.Background(), "@c", Message{Text: "x"}))
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 1, bad.calls)

	assert.Error(t, NewMulti(bad).Send(context.Background(), "@c", Message{Text: "x"}))
	assert.Error(t, NewMulti().Send(context.Background(), "@c", Message{Text: "x"}))
}
