package env

import (
	"os"
	"path/filepath"
)

// Daemon is true when the process runs as the long-lived supervisor (serve command).
var Daemon bool = false

// (default: $BOOTKEEPER_HOME, falling back to $HOME/.bootkeeper)
var HomeDir string = GetHomeDir()

/**
 * Get bootkeeper state directory path
 * @returns {string} Returns state directory path
 * @description
 * - BOOTKEEPER_HOME wins when set
 * - Otherwise uses .bootkeeper under the user's home directory
 * - Falls back to the working directory when no home directory is known
 */
func GetHomeDir() string {
	if dir := os.Getenv("BOOTKEEPER_HOME"); dir != "" {
		return dir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return ".bootkeeper"
	}
	return filepath.Join(homeDir, ".bootkeeper")
}

func LogDir() string {
	return filepath.Join(HomeDir, "logs")
}

func StatePath() string {
	return filepath.Join(HomeDir, "state", "registry.db")
}
