package models

// RoleEndpoint describes where a role is reachable on the loopback interface.
type RoleEndpoint struct {
	Name    string `json:"name"`
	EnvVar  string `json:"envVar"`
	Port    int    `json:"port"`
	URL     string `json:"url"`
	Healthy bool   `json:"healthy"`
}
