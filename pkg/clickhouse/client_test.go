package clickhouse

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	cfg := defaultConfig()
	cfg.Host = "ch.local"
	cfg.Database = "quotehub"
	cfg.User = "svc"
	cfg.Password = "p@ss"
	cfg.MaxExecTime = 90 * time.Second
	cfg.AsyncInsert = true

	u, err := url.Parse(cfg.DSN())
	require.NoError(t, err)
	assert.Equal(t, "clickhouse", u.Scheme)
	assert.Equal(t, "ch.local:9000", u.Host)
	assert.Equal(t, "/quotehub", u.Path)
	assert.Equal(t, "svc", u.User.Username())
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss", pw)

	q := u.Query()
	assert.Equal(t, "5s", q.Get("dial_timeout"))
	assert.Equal(t, "10s", q.Get("read_timeout"))
	assert.Equal(t, "90", q.Get("max_execution_time"))
	assert.Equal(t, "1", q.Get("async_insert"))
	assert.Empty(t, q.Get("wait_for_async_insert"))
	assert.Empty(t, q.Get("write_timeout"))
}

func TestDSNOverHTTP(t *testing.T) {
	cfg := ClientConfig{Host: "ch", Port: 8123, Database: "db", UseHTTP: true}
	assert.Equal(t, "http://ch:8123/db", cfg.DSN())
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient(context.Background(), WithPort(9000))
	assert.ErrorContains(t, err, "host is required")
}
