package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient()
	assert.Equal(t, 30*time.Second, client.Timeout())
	assert.Equal(t, "careassist/1.0", client.headers["User-Agent"])

	custom := NewClient(
		WithTimeout(10*time.Second),
		WithHeaders(map[string]string{"X-Custom": "value"}),
		WithRetries(3),
	)
	assert.Equal(t, 10*time.Second, custom.Timeout())
	assert.Equal(t, "value", custom.headers["X-Custom"])
	assert.Equal(t, 3, custom.retries)
}

func TestDoJSON_RoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("Api-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		json.NewEncoder(w).Encode(map[string]any{"echo": in["q"]})
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL+"/"), WithHeaders(map[string]string{"Api-Key": "secret"}))

	var out map[string]string
	require.NoError(t, client.PostJSON(context.Background(), "/query", map[string]string{"q": "deductible"}, &out))
	assert.Equal(t, "deductible", out["echo"])
}

func TestDoJSON_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"message":"invalid api key"}`)
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	err := client.GetJSON(context.Background(), "/stats", nil)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestDo_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"a":1}`, string(body))
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, `{}`)
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithRetries(2))
	require.NoError(t, client.PostJSON(context.Background(), "/x", map[string]int{"a": 1}, nil))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPutBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		if string(body) != "hello" {
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	client := NewClient()
	assert.NoError(t, client.PutBytes(context.Background(), server.URL+"/signed", "text/plain", []byte("hello")))
	assert.Error(t, client.PutBytes(context.Background(), server.URL+"/signed", "text/plain", []byte("nope")))
}
