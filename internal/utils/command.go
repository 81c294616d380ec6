package utils

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// CommandData is the template context for service commands and arguments.
type CommandData struct {
	Name       string
	Port       int
	Mode       string
	Executable string
}

/**
 * Render a command line template
 * @param {string} command - Executable, may contain {{.Port}} {{.Mode}} {{.Executable}}
 * @param {[]string} args - Arguments, templated the same way
 * @param {interface{}} data - Template context, usually CommandData
 * @returns {(string, []string, error)} Rendered command and arguments
 * @description
 * - Arguments that render empty are dropped
 * - text/template is used so paths and flags are not HTML escaped
 */
func GetCommandLine(command string, args []string, data interface{}) (string, []string, error) {
	cmd, err := render("command", command, data)
	if err != nil {
		return "", nil, err
	}

	var processedArgs []string
	for _, arg := range args {
		v, err := render("arg", arg, data)
		if err != nil {
			return "", nil, err
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		processedArgs = append(processedArgs, v)
	}
	return strings.TrimSpace(cmd), processedArgs, nil
}

// RenderEnv renders every value of env with data.
func RenderEnv(env map[string]string, data interface{}) (map[string]string, error) {
	out := make(map[string]string, len(env))
	for k, v := range env {
		rendered, err := render("env "+k, v, data)
		if err != nil {
			return nil, err
		}
		out[k] = rendered
	}
	return out, nil
}

func render(name, text string, data interface{}) (string, error) {
	tpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse %s template '%s': %w", name, text, err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute %s template '%s': %w", name, text, err)
	}
	return buf.String(), nil
}
