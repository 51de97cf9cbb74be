package memclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/chat-memory/internal/model"
)

func TestSearch_ResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"nested data", `{"data":{"results":[{"memory":"Loves FastAPI","score":0.9}]}}`, []string{"Loves FastAPI"}},
		{"top-level results", `{"results":[{"memory":"a"},{"memory":"b"}]}`, []string{"a", "b"}},
		{"bare array", `[{"memory":"x","id":"1"}]`, []string{"x"}},
		{"empty object", `{}`, nil},
		{"empty body", ``, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			got, err := New(srv.URL).Search(context.Background(), SearchRequest{Query: "q", UserID: "u", Limit: 5})
			require.NoError(t, err)

			var texts []string
			for _, m := range got {
				texts = append(texts, m.Memory)
			}
			assert.Equal(t, tt.want, texts)
		})
	}
}

func TestSearch_RequestContract(t *testing.T) {
	threshold := 0.3
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/memories/search/", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "I love Python", body["query"])
		assert.Equal(t, "user-1", body["user_id"])
		assert.Equal(t, float64(3), body["limit"])
		assert.Equal(t, 0.3, body["threshold"])
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", WithAPIKey("secret"))
	_, err := c.Search(context.Background(), SearchRequest{
		Query: "I love Python", UserID: "user-1", Limit: 3, Threshold: &threshold,
	})
	require.NoError(t, err)
}

func TestSearch_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Search(context.Background(), SearchRequest{Query: "q"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Equal(t, "search", se.Op)
	assert.Equal(t, "boom", se.Body)
}

func TestSearch_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url).Search(context.Background(), SearchRequest{Query: "q"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork), "expected ErrNetwork, got %v", err)
}

func TestSearch_TimeoutKeepsCause(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(srv.URL).Search(ctx, SearchRequest{Query: "q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAdd_ResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []model.OperationRecord
	}{
		{
			"flat",
			`{"results":[{"event":"ADD","memory":"Loves FastAPI","id":"m1"}]}`,
			[]model.OperationRecord{{Event: "ADD", Memory: "Loves FastAPI", ID: "m1"}},
		},
		{
			"nested",
			`{"results":{"results":[{"event":"UPDATE","memory":"x","id":"m2"},{"event":"NONE","memory":"y","id":"m3"}]}}`,
			[]model.OperationRecord{{Event: "UPDATE", Memory: "x", ID: "m2"}, {Event: "NONE", Memory: "y", ID: "m3"}},
		},
		{"null", `{"results":null}`, nil},
		{"missing", `{}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			got, err := New(srv.URL).Add(context.Background(), AddRequest{UserID: "u"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAdd_RequestContract(t *testing.T) {
	infer := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/memories/", r.URL.Path)
		var body AddRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "u", body.UserID)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, model.RoleAssistant, body.Messages[0].Role)
		assert.Equal(t, "I love Python", body.Messages[1].Content)
		require.NotNil(t, body.Infer)
		assert.True(t, *body.Infer)
		assert.Equal(t, "chatgpt", body.Metadata["provider"])
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Add(context.Background(), AddRequest{
		Messages: []model.ConversationMessage{
			{Role: model.RoleAssistant, Content: "hi"},
			{Role: model.RoleUser, Content: "I love Python"},
		},
		UserID:   "u",
		Infer:    &infer,
		Metadata: map[string]any{"provider": "chatgpt"},
	})
	require.NoError(t, err)
}

func TestList_RequestAndShapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []string
		total   int
		hasMore bool
	}{
		{
			"enveloped page",
			`{"success":true,"data":{"results":[{"id":"m1","memory":"Loves FastAPI"}],"pagination":{"total":7,"limit":1,"offset":2,"has_more":true}}}`,
			[]string{"Loves FastAPI"}, 7, true,
		},
		{"top-level results", `{"results":[{"id":"a","memory":"a"},{"id":"b","memory":"b"}]}`, []string{"a", "b"}, 2, false},
		{"bare array", `[{"id":"x","memory":"x"}]`, []string{"x"}, 1, false},
		{"empty body", ``, nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/v1/memories/", r.URL.Path)
				assert.Equal(t, "user-1", r.URL.Query().Get("user_id"))
				assert.Equal(t, "1", r.URL.Query().Get("limit"))
				assert.Equal(t, "2", r.URL.Query().Get("offset"))
				assert.Empty(t, r.Header.Get("Content-Type"))
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			page, err := New(srv.URL).List(context.Background(), ListRequest{UserID: "user-1", Limit: 1, Offset: 2})
			require.NoError(t, err)

			var texts []string
			for _, m := range page.Memories {
				texts = append(texts, m.Memory)
			}
			assert.Equal(t, tt.want, texts)
			assert.Equal(t, tt.total, page.Total)
			assert.Equal(t, tt.hasMore, page.HasMore)
		})
	}
}

func TestHealth(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		assert.Equal(t, "Token k", r.Header.Get("Authorization"))
		if !healthy.Load() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithAPIKey("k"))
	require.NoError(t, c.Health(context.Background()))

	healthy.Store(false)
	var se *StatusError
	require.ErrorAs(t, c.Health(context.Background()), &se)
	assert.Equal(t, "health", se.Op)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)

	url := srv.URL
	srv.Close()
	assert.ErrorIs(t, New(url).Health(context.Background()), ErrNetwork)
}
