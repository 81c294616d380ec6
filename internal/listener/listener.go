package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"bootkeeper/internal/logger"
	"bootkeeper/internal/utils"
)

var ErrAddrInUse = utils.ErrAddrInUse

var (
	startingBody = []byte(`{"status":"starting"}`)
	okBody       = []byte(`{"status":"ok"}`)
)

/**
 * FastListener owns the externally health-checked port
 * @description
 * - Binds and starts serving before anything else happens
 * - Until Attach every request gets 200 {"status":"starting"} without touching application state
 * - Liveness paths are always answered here, also after Attach
 */
type FastListener struct {
	listener net.Listener
	server   *http.Server
	handler  atomic.Pointer[http.Handler]
	liveness map[string]bool
	served   chan struct{}
	serveErr error
}

/**
 * Bind the port and start serving immediately
 * @param {string} host - Interface, empty for all
 * @param {int} port - Port to bind, 0 picks a free one
 * @param {[]string} livenessPaths - Paths always answered with 200
 * @returns {(*FastListener, error)} Serving listener
 * @throws
 * - ErrAddrInUse (wrapped) when another process owns the port, callers may continue
 * - Any other bind error (permission, invalid address), which is fatal
 */
func Start(host string, port int, livenessPaths []string) (*FastListener, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		if utils.IsAddrInUse(err) {
			return nil, fmt.Errorf("bind %s: %w: %w", addr, ErrAddrInUse, err)
		}
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}

	fl := &FastListener{
		listener: l,
		liveness: make(map[string]bool, len(livenessPaths)),
		served:   make(chan struct{}),
	}
	for _, p := range livenessPaths {
		fl.liveness[p] = true
	}
	fl.server = &http.Server{
		Handler:           fl,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go fl.serve()

	logger.Infof("Fast listener serving on %s", l.Addr())
	return fl, nil
}

func (fl *FastListener) serve() {
	defer close(fl.served)
	err := fl.server.Serve(fl.listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("Fast listener stopped: %v", err)
		fl.serveErr = err
	}
}

func (fl *FastListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := fl.handler.Load()
	if fl.liveness[r.URL.Path] {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if h == nil {
			w.Write(startingBody)
		} else {
			w.Write(okBody)
		}
		return
	}
	if h == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(startingBody)
		return
	}
	(*h).ServeHTTP(w, r)
}

// Attach swaps in the application handler. Safe to call while serving.
func (fl *FastListener) Attach(handler http.Handler) {
	fl.handler.Store(&handler)
}

func (fl *FastListener) Attached() bool {
	return fl.handler.Load() != nil
}

func (fl *FastListener) Addr() net.Addr {
	return fl.listener.Addr()
}

func (fl *FastListener) Port() int {
	if tcp, ok := fl.listener.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Shutdown stops accepting and drains in-flight requests until ctx expires.
func (fl *FastListener) Shutdown(ctx context.Context) error {
	err := fl.server.Shutdown(ctx)
	<-fl.served
	return err
}

// Err returns the error that stopped serving, nil after a clean Shutdown.
func (fl *FastListener) Err() error {
	select {
	case <-fl.served:
		return fl.serveErr
	default:
		return nil
	}
}

/**
 * Check that something on port answers a liveness path
 * @param {int} port - Occupied port
 * @param {string} path - Liveness path
 * @param {time.Duration} timeout - Probe bound
 * @returns {error} nil when the occupant answered 200
 */
func VerifyOccupant(port int, path string, timeout time.Duration) error {
	if !utils.CheckPortConnectable(port, timeout) {
		return fmt.Errorf("nothing accepts connections on port %d", port)
	}
	return utils.ProbeHTTP(nil, port, path, timeout)
}
