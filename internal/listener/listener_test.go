package listener

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var liveness = []string{"/ready", "/api/health"}

func get(t *testing.T, fl *FastListener, path string) (int, string) {
	t.Helper()
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get("http://127.0.0.1:" + strconv.Itoa(fl.Port()) + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func startTest(t *testing.T) *FastListener {
	t.Helper()
	fl, err := Start("127.0.0.1", 0, liveness)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		fl.Shutdown(ctx)
	})
	return fl
}

func TestColdStartAnswersImmediately(t *testing.T) {
	begin := time.Now()
	fl := startTest(t)

	code, body := get(t, fl, "/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"starting"}`, body)
	assert.Less(t, time.Since(begin), time.Second)

	code, body = get(t, fl, "/anything/else")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"starting"}`, body)
	assert.False(t, fl.Attached())
}

func TestAttachKeepsLiveness(t *testing.T) {
	fl := startTest(t)
	fl.Attach(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		io.WriteString(w, "app")
	}))

	code, body := get(t, fl, "/api/health")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	code, body = get(t, fl, "/dashboard")
	assert.Equal(t, http.StatusTeapot, code)
	assert.Equal(t, "app", body)
	assert.True(t, fl.Attached())
}

func TestAddressInUse(t *testing.T) {
	fl := startTest(t)

	_, err := Start("127.0.0.1", fl.Port(), liveness)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAddrInUse))

	assert.NoError(t, VerifyOccupant(fl.Port(), "/ready", time.Second))
}

func TestFatalBindError(t *testing.T) {
	_, err := Start("203.0.113.254", 0, liveness)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrAddrInUse))
}

func TestShutdown(t *testing.T) {
	fl, err := Start("127.0.0.1", 0, liveness)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, fl.Shutdown(ctx))
	assert.NoError(t, fl.Err())

	client := &http.Client{Timeout: 200 * time.Millisecond}
	_, err = client.Get("http://127.0.0.1:" + strconv.Itoa(fl.Port()) + "/ready")
	assert.Error(t, err)
}
