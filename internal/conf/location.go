package conf

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigName is the file name used when a location is a directory.
const DefaultConfigName = "config.yml"

// ResolveLocation returns the configuration file denoted by path. A path with
// a recognized extension (.yml, .yaml, .toml) is used as-is and only its
// directory has to exist. Any other path must be an existing directory, and
// configName (DefaultConfigName if empty) is joined onto it.
func ResolveLocation(path, configName string) (string, error) {
	if configName == "" {
		configName = DefaultConfigName
	}

	if _, ok := FormatOf(path); ok {
		dir := filepath.Dir(path)
		if !isDir(dir) {
			return "", fmt.Errorf("%w: config folder does not exist: %s", ErrInvalidLocation, dir)
		}
		return path, nil
	}

	if !isDir(path) {
		return "", fmt.Errorf("%w: config folder does not exist: %s", ErrInvalidLocation, path)
	}
	resolved := filepath.Join(path, configName)
	if _, ok := FormatOf(resolved); !ok {
		return "", fmt.Errorf("%w: unrecognized config file extension: %s", ErrInvalidLocation, configName)
	}
	return resolved, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
