// Package paths names every file the shell keeps in its data directory.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	ConfigFile  = "config.toml"
	LogFile     = "tshell.log"
	HistoryFile = "history"
)

// BinaryName is the executable name; DataDirRel is the data directory
// relative to $HOME.
const (
	BinaryName = "tshell"
	DataDirRel = ".tshell"
)

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// Default returns the DataDir under the user's home directory.
func Default() (DataDir, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return DataDir{}, fmt.Errorf("resolve home directory: %w", err)
	}
	return DataDir{Root: filepath.Join(home, DataDirRel)}, nil
}

// Ensure creates the data directory if it does not exist.
func (d DataDir) Ensure() error {
	if err := os.MkdirAll(d.Root, 0o700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	return nil
}

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Log returns the full path to the log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// History returns the full path to the statement history file.
func (d DataDir) History() string { return filepath.Join(d.Root, HistoryFile) }
