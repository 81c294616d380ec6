package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"bootkeeper/internal/logger"
)

type httpClient struct {
	config    *HTTPConfig
	client    *http.Client
	transport *http.Transport
}

/**
 * Create new HTTP client for the supervisor API
 * @param {*HTTPConfig} config - Client configuration, must not be nil
 * @returns {HTTPClient} HTTP client interface
 * @description
 * - Plain TCP to 127.0.0.1, no proxy from the environment
 * - Dial bounded by the request timeout so a missing supervisor fails fast
 */
func NewHTTPClient(config *HTTPConfig) HTTPClient {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	transport := &http.Transport{
		Proxy:       nil,
		DialContext: (&net.Dialer{Timeout: config.Timeout}).DialContext,
	}
	return &httpClient{
		config:    config,
		transport: transport,
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
	}
}

func (c *httpClient) do(method, path string, params map[string]interface{}, data interface{}) (*HTTPResponse, error) {
	url, err := buildURL(c.config.BaseURL, path, params)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}
	body, err := serializeData(data)
	if err != nil {
		return nil, err
	}

	logger.Debugf("Sending %s request to %s", method, url)

	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return deserializeResponse(resp)
}

// Get sends a GET request with optional query parameters
func (c *httpClient) Get(path string, params map[string]interface{}) (*HTTPResponse, error) {
	return c.do(http.MethodGet, path, params, nil)
}

// Post sends data as a JSON body, nil sends no body
func (c *httpClient) Post(path string, data interface{}) (*HTTPResponse, error) {
	return c.do(http.MethodPost, path, nil, data)
}

/**
 * GET path and decode the JSON body into out
 * @param {string} path - API path
 * @param {interface{}} out - Decode target
 * @returns {error} Transport errors, non-2xx responses (with the server's message), decode errors
 */
func (c *httpClient) GetJSON(path string, out interface{}) error {
	resp, err := c.Get(path, nil)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("%s: %d %s", path, resp.StatusCode, resp.Error)
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *httpClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}
