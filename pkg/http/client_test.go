package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendAndParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "k", r.Header.Get("X-Token"))
		assert.Equal(t, "1", r.Header.Get("X-Req"))
		_, _ = w.Write([]byte(`{"c":189.5}`))
	}))
	defer srv.Close()

	c := NewClient(WithHeader("X-Token", "k"))
	var out struct {
		C float64 `json:"c"`
	}
	err := c.SendAndParse(context.Background(), &RequestOptions{
		URL:         srv.URL,
		Headers:     map[string]string{"X-Req": "1"},
		QueryParams: map[string][]string{"symbol": {"AAPL"}},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, 189.5, out.C)
}

func TestSendAndParseRawAndLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	var raw []byte
	err := NewClient(WithMaxBody(4)).SendAndParse(context.Background(), &RequestOptions{URL: srv.URL}, &raw)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(raw))
}

func TestSendAndParseStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	err := NewClient().SendAndParse(context.Background(), &RequestOptions{URL: srv.URL}, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, StatusCode(err))
	assert.Contains(t, err.Error(), "slow down")
	assert.Zero(t, StatusCode(context.Canceled))
}
