package rpc

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"bootkeeper/internal/config"
	"bootkeeper/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildURL(t *testing.T) {
	u, err := buildURL("http://127.0.0.1:5000", "/api/supervisor/status", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:5000/api/supervisor/status", u)

	u, err = buildURL("http://127.0.0.1:5000/base/", "/api/version", map[string]interface{}{"verbose": true, "n": 3})
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:5000/base/api/version?n=3&verbose=true", u)

	_, err = buildURL("://bad", "/x", nil)
	assert.Error(t, err)
}

func TestDefaultHTTPConfig(t *testing.T) {
	cfg := &config.AppConfig{
		Server: config.ServerConfig{FrontendRole: "frontend"},
		Ports: config.NewPortRegistry(config.DefaultRoles(), func(k string) (string, bool) {
			if k == "FRONTEND_PORT" {
				return "5123", true
			}
			return "", false
		}),
	}
	c := DefaultHTTPConfig(cfg)
	assert.Equal(t, "http://127.0.0.1:5123", c.BaseURL)
	assert.Equal(t, 5*time.Second, c.Timeout)
}

func TestHTTPClientWithMockServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/version":
			json.NewEncoder(w).Encode(models.VersionResponse{Version: "1.0.0"})
		case r.Method == http.MethodPost && r.URL.Path == "/api/echo":
			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			w.Write(body)
		case r.URL.Path == "/api/missing":
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(models.ErrorResponse{Code: "workflow.notexist", Error: "workflow not found: x"})
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer server.Close()

	client := NewHTTPClient(&HTTPConfig{BaseURL: server.URL, Timeout: time.Second})
	defer client.Close()

	var v models.VersionResponse
	require.NoError(t, client.GetJSON("/api/version", &v))
	assert.Equal(t, "1.0.0", v.Version)

	resp, err := client.Post("/api/echo", map[string]string{"name": "frontend"})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.JSONEq(t, `{"name":"frontend"}`, string(resp.Body))

	resp, err = client.Get("/api/missing", nil)
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, "workflow not found: x", resp.Error)

	err = client.GetJSON("/api/missing", &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workflow not found: x")

	resp, err = client.Get("/other", nil)
	require.NoError(t, err)
	assert.Equal(t, "502 Bad Gateway", resp.Error)
}

func TestHTTPClientNoServer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	client := NewHTTPClient(&HTTPConfig{BaseURL: "http://127.0.0.1:" + strconv.Itoa(port), Timeout: time.Second})
	defer client.Close()

	_, err = client.Get("/api/version", nil)
	assert.Error(t, err)
}
