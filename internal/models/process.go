package models

import "time"

type ProcessState string

const (
	// spawn requested, Start not returned yet
	ProcessStarting ProcessState = "starting"
	ProcessRunning  ProcessState = "running"
	// exit code 0
	ProcessExited ProcessState = "exited"
	// spawn error, non-zero exit code or killed by signal
	ProcessFailed ProcessState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s ProcessState) Terminal() bool {
	return s == ProcessExited || s == ProcessFailed
}

type ProcessDetail struct {
	Name      string       `json:"name"`      //service or workflow name
	Role      string       `json:"role"`      //role the process serves
	Port      int          `json:"port"`      //port handed to the child
	Command   string       `json:"command"`   //executable
	Args      []string     `json:"args"`      //arguments
	Pid       int          `json:"pid"`       //0 until spawned
	State     ProcessState `json:"state"`     //lifecycle state
	ExitCode  *int         `json:"exitCode"`  //set once the OS reports exit
	Detached  bool         `json:"detached"`  //left running on supervisor shutdown
	StartTime time.Time    `json:"startTime"` //spawn time
	EndTime   time.Time    `json:"endTime"`   //exit time
	LastError string       `json:"lastError,omitempty"`
}
