package models

import "time"

type WorkflowStatus string

const (
	WorkflowStopped WorkflowStatus = "stopped"
	WorkflowRunning WorkflowStatus = "running"
)

/**
 * Workflow record, persisted in the registry and returned by status queries
 * @property {string} name - Workflow name
 * @property {string} command - Shell command line
 * @property {WorkflowStatus} status - stopped/running
 * @property {int} lastPid - Pid of the last launch, 0 if never started
 */
type WorkflowDetail struct {
	Name      string         `json:"name"`
	Command   string         `json:"command"`
	Status    WorkflowStatus `json:"status"`
	LastPid   int            `json:"lastPid"`
	Port      int            `json:"port,omitempty"`
	StartTime time.Time      `json:"startTime,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
}
