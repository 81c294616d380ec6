package utils

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAddrInUse(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	_, err = net.Listen("tcp", l.Addr().String())
	require.Error(t, err)
	assert.True(t, IsAddrInUse(err))

	assert.True(t, IsAddrInUse(fmt.Errorf("bind: %w", ErrAddrInUse)))
	assert.False(t, IsAddrInUse(nil))
	assert.False(t, IsAddrInUse(fmt.Errorf("permission denied")))
}

func serverPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return port
}

func TestProbeHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ready" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	port := serverPort(t, srv)

	assert.NoError(t, ProbeHTTP(nil, port, "/ready", time.Second))
	assert.Error(t, ProbeHTTP(nil, port, "/other", time.Second))
	assert.True(t, CheckPortConnectable(port, time.Second))
}

func TestProbeHTTPRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	assert.Error(t, ProbeHTTP(nil, port, "/ready", time.Second))
	assert.False(t, CheckPortConnectable(port, 200*time.Millisecond))
}
