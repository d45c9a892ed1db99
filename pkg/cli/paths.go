package cli

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths locates an app's files. Dir is ~/.ishe/<app> by default, or the
// directory of a config file given explicitly.
type Paths struct {
	Dir string
}

// NewPaths returns the default layout for appName.
func NewPaths(appName string) (Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, err
	}
	return Paths{Dir: filepath.Join(home, DefaultBaseDir, appName)}, nil
}

// ConfigFile returns <dir>/config.yaml.
func (p Paths) ConfigFile() string {
	return filepath.Join(p.Dir, DefaultConfigFile)
}

// LogPath returns <dir>/logs/<name>.
func (p Paths) LogPath(name string) string {
	return filepath.Join(p.Dir, "logs", name)
}

// OpenLog opens the named log for appending, creating logs/ as needed.
func (p Paths) OpenLog(name string) (*os.File, error) {
	path := p.LogPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}
