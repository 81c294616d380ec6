package models

import (
	"time"
)

type VersionResponse struct {
	Version   string `json:"version" example:"1.0.0"`
	BuildTime string `json:"buildTime"`
	BuildTag  string `json:"buildTag"`
	CommitId  string `json:"commitId"`
	Mode      string `json:"mode" example:"development"`
}

/**
 * Supervisor diagnostics returned by /api/supervisor/status
 * @property {bool} listenerOwned - false when the frontend port was already taken by another instance
 */
type SupervisorStatus struct {
	StartTime     time.Time       `json:"startTime"`
	Uptime        string          `json:"uptime"`
	Mode          string          `json:"mode"`
	ListenPort    int             `json:"listenPort"`
	ListenerOwned bool            `json:"listenerOwned"`
	Roles         []RoleEndpoint  `json:"roles"`
	Services      []ServiceDetail `json:"services"`
	Health        []HealthRecord  `json:"health"`
}
