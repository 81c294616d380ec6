package utils

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// ErrAddrInUse marks a bind failure caused by another listener owning the address.
var ErrAddrInUse = errors.New("address already in use")

// IsAddrInUse reports whether err comes from binding an address that is already taken.
func IsAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAddrInUse) {
		return true
	}
	return isAddrInUse(err)
}

func LocalAddr(port int) string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}

// CheckPortConnectable reports whether something accepts TCP connections on the loopback port.
func CheckPortConnectable(port int, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", LocalAddr(port), timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

/**
 * Probe an HTTP liveness path on the loopback interface
 * @param {int} port - Target port
 * @param {string} path - Liveness path
 * @param {time.Duration} timeout - Bound for the whole request
 * @returns {error} nil when the endpoint answered 200
 */
func ProbeHTTP(client *http.Client, port int, path string, timeout time.Duration) error {
	if client == nil {
		client = http.DefaultClient
	}
	c := *client
	c.Timeout = timeout
	resp, err := c.Get(fmt.Sprintf("http://%s%s", LocalAddr(port), path))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
