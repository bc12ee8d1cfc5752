package internal

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestDefaultMapper_MessageKey(t *testing.T) {
	req := require.New(t)

	row := DefaultMapper("msg:general:0001700000000000000:0123456789abcdef", []byte("{}"))

	req.Equal("MSG", row.Type)
	req.Equal("general", row.Room)
	req.Equal("01234567", row.EntityID)
	req.NotEqual("--:--:--", row.Timestamp)
}

func TestDefaultMapper_OtherKey(t *testing.T) {
	req := require.New(t)

	row := DefaultMapper("profile:alice", []byte("12345"))

	req.Equal("PROFILE", row.Type)
	req.Equal("-", row.Room)
	req.Equal("Size: 5 bytes", row.Detail)
}

func TestDebugMux_InspectAndMetrics(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })
	req.NoError(db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("msg:general:0001700000000000000:m1"), []byte("{}"))
	}))

	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "debug_test_total"})
	registry.MustRegister(counter)
	counter.Inc()

	server := httptest.NewServer(NewDebugMux(db, registry, nil, func() map[string]any {
		return map[string]any{"rooms": 1}
	}))
	t.Cleanup(server.Close)

	body := get(t, server.URL+"/inspect?prefix=msg:")
	req.Contains(body, "rooms: 1")
	req.Contains(body, "msg:general:0001700000000000000:m1")

	req.Contains(get(t, server.URL+"/metrics"), "debug_test_total 1")
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}
