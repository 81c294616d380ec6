package models

// ServiceDetail joins a launched service with its role health.
type ServiceDetail struct {
	Name     string         `json:"name"`
	Role     string         `json:"role"`
	Port     int            `json:"port"`
	Skipped  bool           `json:"skipped"`
	Required bool           `json:"required"`
	Process  *ProcessDetail `json:"process,omitempty"`
	Health   *HealthRecord  `json:"health,omitempty"`
}
