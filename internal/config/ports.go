package config

import (
	"os"
	"strconv"
	"strings"
)

const maxPort = 65535

// LookupFunc matches os.LookupEnv so tests can resolve against a fixed environment.
type LookupFunc func(key string) (string, bool)

/**
 * Named service role with its assigned port
 * @property {string} name - Role name (frontend, backend, browser-api...)
 * @property {string} envVar - Environment variable that overrides the port
 * @property {int} defaultPort - Port used when envVar is unset or invalid
 * @property {int} resolvedPort - Effective port, fixed at startup
 */
type PortRole struct {
	Name         string `json:"name"`
	EnvVar       string `json:"envVar"`
	DefaultPort  int    `json:"defaultPort"`
	ResolvedPort int    `json:"resolvedPort"`
}

/**
 * Resolve a port from the environment
 * @param {string} envVar - Environment variable name
 * @param {int} defaultPort - Fallback port
 * @param {LookupFunc} lookup - Environment lookup, os.LookupEnv when nil
 * @returns {int} Port value, never fails
 * @description
 * - Uses the variable when it parses as an integer in 1..65535
 * - Any other value (missing, empty, garbage, zero, negative, too large) yields defaultPort
 */
func ResolvePort(envVar string, defaultPort int, lookup LookupFunc) int {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if envVar == "" {
		return defaultPort
	}
	raw, ok := lookup(envVar)
	if !ok {
		return defaultPort
	}
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || port <= 0 || port > maxPort {
		return defaultPort
	}
	return port
}

// PortRegistry holds the roles resolved once at startup. It is read-only afterwards.
type PortRegistry struct {
	roles map[string]PortRole
	order []string
}

func NewPortRegistry(defs []RoleConfig, lookup LookupFunc) *PortRegistry {
	r := &PortRegistry{roles: make(map[string]PortRole, len(defs))}
	for _, def := range defs {
		if _, dup := r.roles[def.Name]; dup {
			continue
		}
		r.roles[def.Name] = PortRole{
			Name:         def.Name,
			EnvVar:       def.EnvVar,
			DefaultPort:  def.DefaultPort,
			ResolvedPort: ResolvePort(def.EnvVar, def.DefaultPort, lookup),
		}
		r.order = append(r.order, def.Name)
	}
	return r
}

// Role returns the resolved role and whether it is declared.
func (r *PortRegistry) Role(name string) (PortRole, bool) {
	role, ok := r.roles[name]
	return role, ok
}

// Port returns the resolved port of a role, 0 for undeclared roles.
func (r *PortRegistry) Port(name string) int {
	return r.roles[name].ResolvedPort
}

func (r *PortRegistry) Roles() []PortRole {
	roles := make([]PortRole, 0, len(r.order))
	for _, name := range r.order {
		roles = append(roles, r.roles[name])
	}
	return roles
}
