package widget

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPBackend_Chat(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/widget/chat", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"conversationId": "conv-1",
			"userMessageId": "msg-u1",
			"messages": [{"id": "a1", "content": "Hi"}, {"id": "a2", "content": "Pick a slot"}],
			"timePicker": {"slots": ["10:00", "11:00"]},
			"aiMarkedComplete": true
		}`)
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL+"/", "secret", time.Second)
	placeholder := "local-1"
	resp, err := b.Chat(context.Background(), ChatRequest{
		AgentID:        "agent-1",
		ConversationID: &placeholder,
		Message:        OutboundMessage{Role: RoleUser, Content: "hello"},
		VisitorID:      "visitor-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "agent-1", got.AgentID)
	require.NotNil(t, got.ConversationID)
	assert.Equal(t, "local-1", *got.ConversationID)
	assert.Equal(t, "hello", got.Message.Content)

	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, "conv-1", resp.ConversationID)
	assert.Len(t, resp.Messages, 2)
	assert.JSONEq(t, `{"slots": ["10:00", "11:00"]}`, string(resp.TimePicker))
	assert.True(t, resp.AIMarkedComplete)
}

func TestHTTPBackend_NullConversationID(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = io.WriteString(w, `{"status":"human_takeover","takenOverBy":{"name":"Anna"}}`)
	}))
	defer srv.Close()

	resp, err := NewHTTPBackend(srv.URL, "", time.Second).Chat(context.Background(), ChatRequest{AgentID: "agent-1"})
	require.NoError(t, err)

	v, ok := raw["conversationId"]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, StatusHumanTakeover, resp.Status)
	assert.Equal(t, "Anna", resp.TakenOverBy.Name)
}

func TestHTTPBackend_FailuresAreDispatchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/widget/chat" {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `not json`)
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, "", time.Second)
	_, err := b.Chat(context.Background(), ChatRequest{})
	assert.ErrorIs(t, err, ErrDispatch)
	assert.Contains(t, err.Error(), "503")

	_, err = b.History(context.Background(), "conv-1")
	assert.ErrorIs(t, err, ErrDispatch)

	srv.Close()
	_, err = b.Chat(context.Background(), ChatRequest{})
	assert.ErrorIs(t, err, ErrDispatch)
}

func TestHTTPBackend_History(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/widget/conversations/conv 1/messages", r.URL.Path)
		_, _ = io.WriteString(w, `{"messages": [
			{"id": "m1", "role": "user", "content": "hi", "createdAt": "2026-03-01T12:00:00Z"},
			{"id": "m2", "role": "assistant", "content": "hello", "extras": {"quickReplies": ["ok"]}}
		]}`)
	}))
	defer srv.Close()

	msgs, err := NewHTTPBackend(srv.URL, "", time.Second).History(context.Background(), "conv 1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, DeliveryDelivered, msgs[0].Delivery)
	assert.Equal(t, 2026, msgs[0].CreatedAt.Year())
	require.NotNil(t, msgs[1].Extras)
	assert.JSONEq(t, `["ok"]`, string(msgs[1].Extras.QuickReplies))
}

func TestHTTPStorage_Upload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "png-bytes", string(body))

		switch r.URL.Path {
		case "/conv-1/1-a.png":
			_, _ = io.WriteString(w, `{"publicUrl": "https://cdn.example.com/conv-1/1-a.png"}`)
		case "/conv-1/2-empty.png":
			_, _ = io.WriteString(w, `{}`)
		default:
			http.Error(w, "denied", http.StatusForbidden)
		}
	}))
	defer srv.Close()

	st := NewHTTPStorage(srv.URL, "tok", time.Second)
	file := LocalFile{Name: "a.png", MimeType: "image/png", Data: []byte("png-bytes")}

	url, err := st.Upload(context.Background(), "conv-1/1-a.png", file)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/conv-1/1-a.png", url)

	_, err = st.Upload(context.Background(), "conv-1/2-empty.png", file)
	assert.ErrorIs(t, err, ErrUpload)

	_, err = st.Upload(context.Background(), "/conv-1/3-denied.png", file)
	assert.ErrorIs(t, err, ErrUpload)
	assert.Contains(t, err.Error(), "403")
}
