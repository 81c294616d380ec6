package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bootkeeper/internal/config"
	"bootkeeper/internal/models"
	"bootkeeper/internal/utils"
)

// HTTPClient talks to a running supervisor's API
type HTTPClient interface {
	Get(path string, params map[string]interface{}) (*HTTPResponse, error)
	Post(path string, data interface{}) (*HTTPResponse, error)
	GetJSON(path string, out interface{}) error
	Close() error
}

// HTTPConfig configures the supervisor client
type HTTPConfig struct {
	BaseURL string        // e.g. http://127.0.0.1:5000
	Timeout time.Duration // per request
}

/**
 * Default client configuration for a supervisor on this host
 * @param {*config.AppConfig} cfg - Resolved configuration
 * @returns {*HTTPConfig} BaseURL points at the frontend role's port
 */
func DefaultHTTPConfig(cfg *config.AppConfig) *HTTPConfig {
	port := cfg.Ports.Port(cfg.Server.FrontendRole)
	return &HTTPConfig{
		BaseURL: "http://" + utils.LocalAddr(port),
		Timeout: 5 * time.Second,
	}
}

// HTTPResponse is a fully read response
type HTTPResponse struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
	Error      string              `json:"error"`
}

func (r *HTTPResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// buildURL joins base URL, path and query parameters
func buildURL(baseURL, path string, params map[string]interface{}) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	if u.Path == "" {
		u.Path = path
	} else {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	}

	if params != nil {
		q := u.Query()
		for key, value := range params {
			switch v := value.(type) {
			case string:
				q.Set(key, v)
			case bool:
				q.Set(key, fmt.Sprintf("%t", v))
			default:
				q.Set(key, fmt.Sprintf("%v", v))
			}
		}
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

func serializeData(data interface{}) (io.Reader, error) {
	if data == nil {
		return nil, nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize data: %w", err)
	}

	return bytes.NewReader(jsonData), nil
}

/**
 * Read a response into HTTPResponse
 * @description
 * - 2xx: Error stays empty
 * - Otherwise Error is taken from a models.ErrorResponse body, or the status line
 */
func deserializeResponse(resp *http.Response) (*HTTPResponse, error) {
	defer resp.Body.Close()
	httpResp := &HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	httpResp.Body = body
	if httpResp.OK() {
		return httpResp, nil
	}
	var errBody models.ErrorResponse
	if len(body) > 0 && json.Unmarshal(body, &errBody) == nil && errBody.Error != "" {
		httpResp.Error = errBody.Error
	} else {
		httpResp.Error = resp.Status
	}
	return httpResp, nil
}
