package models

import "time"

type HealthStatus string

const (
	HealthUnknown HealthStatus = "unknown"
	HealthUp      HealthStatus = "up"
	HealthDown    HealthStatus = "down"
)

/**
 * Liveness record of one role
 * @property {string} role - Role name
 * @property {int} port - Probed port
 * @property {string} path - Probed liveness path
 * @property {HealthStatus} status - unknown/up/down
 * @property {int} consecutiveFailures - Failures since the last success
 * @property {int} consecutiveSuccesses - Successes since the last failure
 */
type HealthRecord struct {
	Role                 string       `json:"role"`
	Port                 int          `json:"port"`
	Path                 string       `json:"path"`
	Status               HealthStatus `json:"status"`
	LastCheckTime        time.Time    `json:"lastCheckTime"`
	ConsecutiveFailures  int          `json:"consecutiveFailures"`
	ConsecutiveSuccesses int          `json:"consecutiveSuccesses"`
	LastError            string       `json:"lastError,omitempty"`
}
