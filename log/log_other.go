//go:build !windows

package log

import (
	"os"
	"path/filepath"
	"runtime"
)

// defaultDir is ~/Library/Logs/scribe on macOS and
// $XDG_STATE_HOME/scribe/logs elsewhere.
func defaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Logs", "scribe"), nil
	}
	state := os.Getenv("XDG_STATE_HOME")
	if state == "" {
		state = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(state, "scribe", "logs"), nil
}
