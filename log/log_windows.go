//go:build windows

package log

import (
	"os"
	"path/filepath"
)

// defaultDir is %LOCALAPPDATA%\scribe\logs, next to the settings database.
func defaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "scribe", "logs"), nil
}
