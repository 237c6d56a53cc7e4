package telegram

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"

	"github.com/nkiryanov/rewardledger/internal/logger"
)

type apiCall struct {
	method string
	params map[string]any
}

// fakeAPI answers Bot API requests and records them
type fakeAPI struct {
	srv *httptest.Server

	mu       sync.Mutex
	calls    []apiCall
	statuses map[string]tele.MemberStatus // user id -> status in every channel; "left" when absent
	broken   map[string]bool              // user ids getChatMember fails for
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	f := &fakeAPI{
		statuses: make(map[string]tele.MemberStatus),
		broken:   make(map[string]bool),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	method := path.Base(r.URL.Path)

	params := make(map[string]any)
	_ = json.NewDecoder(r.Body).Decode(&params)

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{method: method, params: params})
	status, ok := f.statuses[fmt.Sprint(params["user_id"])]
	broken := f.broken[fmt.Sprint(params["user_id"])]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch method {
	case "getChatMember":
		if broken {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
			return
		}
		if !ok {
			status = tele.Left
		}
		_, _ = fmt.Fprintf(w, `{"ok":true,"result":{"status":%q,"user":{"id":%v}}}`, status, params["user_id"])
	case "answerCallbackQuery":
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	default:
		_, _ = fmt.Fprintf(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":%v,"type":"private"}}}`, params["chat_id"])
	}
}

func (f *fakeAPI) join(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[userID] = tele.Member
}

func (f *fakeAPI) callsOf(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []apiCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

// lastText is the text of the latest sent or edited message
func (f *fakeAPI) lastText(t *testing.T) string {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.calls) - 1; i >= 0; i-- {
		switch f.calls[i].method {
		case "sendMessage", "editMessageText":
			text, ok := f.calls[i].params["text"].(string)
			require.True(t, ok, "text param is missing")
			return text
		}
	}
	require.FailNow(t, "no message was sent")
	return ""
}

// lastMarkup is the reply_markup of the latest sent or edited message
func (f *fakeAPI) lastMarkup(t *testing.T) string {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.calls) - 1; i >= 0; i-- {
		switch f.calls[i].method {
		case "sendMessage", "editMessageText":
			markup, _ := f.calls[i].params["reply_markup"].(string)
			return markup
		}
	}
	return ""
}

func newTestClient(t *testing.T, api *fakeAPI, channels ...string) *Client {
	t.Helper()

	client, err := NewClient(Config{
		Token:       "test-token",
		Channels:    channels,
		APIURL:      api.srv.URL,
		offline:     true,
		synchronous: true,
	}, logger.NewNoOpLogger())
	require.NoError(t, err)
	return client
}

func textUpdate(from int64, messageID int, text string) tele.Update {
	return tele.Update{Message: &tele.Message{
		ID:     messageID,
		Sender: &tele.User{ID: from, FirstName: "Asha"},
		Chat:   &tele.Chat{ID: from, Type: tele.ChatPrivate},
		Text:   text,
	}}
}

func callbackUpdate(from int64, data string) tele.Update {
	return tele.Update{Callback: &tele.Callback{
		ID:      "callback",
		Sender:  &tele.User{ID: from, FirstName: "Asha"},
		Message: &tele.Message{ID: 7, Chat: &tele.Chat{ID: from, Type: tele.ChatPrivate}},
		Data:    "\f" + data,
	}}
}
