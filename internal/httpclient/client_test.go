package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		client := New(nil)
		require.NotNil(t, client)
		assert.Equal(t, DefaultTimeout, client.defaultTimeout)
		assert.Equal(t, defaultUserAgent, client.userAgent)
	})

	t.Run("custom config", func(t *testing.T) {
		cfg := Config{DefaultTimeout: 5 * time.Second, UserAgent: "catchsync-test/1.0"}
		client := New(&cfg)

		assert.Equal(t, 5*time.Second, client.defaultTimeout)
		assert.Equal(t, "catchsync-test/1.0", client.userAgent)
	})

	t.Run("custom transport", func(t *testing.T) {
		transport := &http.Transport{}
		client := New(&Config{Transport: transport})
		assert.Same(t, transport, client.HTTPClient().Transport)
	})
}

func TestDo_UserAgent(t *testing.T) {
	receivedUA := ""
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		receivedUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	})

	client := newTestClientWithConfig(t, &Config{UserAgent: "catchsync/2.0"})

	resp, err := get(t.Context(), client, server.URL)
	require.NoError(t, err)
	defer closeResponseBody(t, resp)

	assert.Equal(t, "catchsync/2.0", receivedUA)
}

func TestDo_ContextCancellation(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})

	client := newTestClient(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	resp, err := get(ctx, client, server.URL)
	defer closeResponseBody(t, resp)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_DefaultTimeout(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})

	client := newTestClientWithConfig(t, &Config{DefaultTimeout: 50 * time.Millisecond})

	resp, err := get(t.Context(), client, server.URL)
	defer closeResponseBody(t, resp)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_BodyReadableAfterReturn(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte(`{"catch_id":7}`))
	})

	client := newTestClientWithConfig(t, &Config{DefaultTimeout: 2 * time.Second})

	resp, err := get(t.Context(), client, server.URL)
	require.NoError(t, err)
	defer closeResponseBody(t, resp)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "default timeout must stay active until the body is closed, not cancel early")
	assert.JSONEq(t, `{"catch_id":7}`, string(body))
}

func TestNewRequestBodies(t *testing.T) {
	type seen struct {
		method      string
		contentType string
		body        string
	}
	var got seen

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		got = seen{method: r.Method, contentType: r.Header.Get("Content-Type"), body: string(data)}
		w.WriteHeader(http.StatusNoContent)
	})

	client := newTestClient(t)
	payload := map[string]string{"species_label": "Bluegill"}

	tests := []struct {
		name        string
		method      string
		contentType string
		body        any
		wantType    string
		wantBody    string
	}{
		{"json patch", http.MethodPatch, "", payload, "application/json", `{"species_label":"Bluegill"}`},
		{"json put", http.MethodPut, "", payload, "application/json", `{"species_label":"Bluegill"}`},
		{"reader", http.MethodPost, "text/plain", strings.NewReader("raw"), "text/plain", "raw"},
		{"bytes", http.MethodPost, "image/jpeg", []byte("jpeg"), "image/jpeg", "jpeg"},
		{"no body", http.MethodDelete, "", nil, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewRequest(t.Context(), tt.method, server.URL, tt.contentType, tt.body)
			require.NoError(t, err)
			resp, err := client.Do(t.Context(), req)
			require.NoError(t, err)
			closeResponseBody(t, resp)

			assert.Equal(t, tt.method, got.method)
			assert.Equal(t, tt.wantType, got.contentType)
			if tt.wantType == "application/json" {
				var decoded map[string]string
				require.NoError(t, json.Unmarshal([]byte(got.body), &decoded))
				assert.Equal(t, payload, decoded)
			} else {
				assert.Equal(t, tt.wantBody, got.body)
			}
		})
	}
}

func TestDo_Hooks(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	client := newTestClient(t)

	var beforeCalled bool
	var capturedStatus int

	client.SetBeforeRequestHook(func(r *http.Request) {
		beforeCalled = true
		assert.Equal(t, server.URL, r.URL.String())
	})
	client.SetAfterResponseHook(func(r *http.Request, resp *http.Response, err error) {
		require.NoError(t, err)
		capturedStatus = resp.StatusCode
	})

	resp, err := get(t.Context(), client, server.URL)
	require.NoError(t, err)
	defer closeResponseBody(t, resp)

	assert.True(t, beforeCalled)
	assert.Equal(t, http.StatusAccepted, capturedStatus)
}

func TestNewRequestRejectsUnmarshalableBody(t *testing.T) {
	_, err := NewRequest(t.Context(), http.MethodPost, "http://example.com", "", make(chan int))
	assert.Error(t, err)
}

func TestClose(t *testing.T) {
	client := New(nil)
	client.Close()
	client.Close()
}
