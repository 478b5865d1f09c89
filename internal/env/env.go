package env

import (
	"os"
	"path/filepath"
)

// WorkDir returns the root of kiln's persistent state.
func WorkDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, ".kiln"), nil
}

// IndexDir returns the directory of the persistent recipe index, creating it
// if needed.
func IndexDir() (string, error) {
	return subdir("index")
}

// PackagesDir returns the directory holding built packages, creating it if
// needed.
func PackagesDir() (string, error) {
	return subdir("packages")
}

// BuildDir returns the directory holding source and build trees, creating it
// if needed.
func BuildDir() (string, error) {
	return subdir("build")
}

// ConfigFile returns the path of the default configuration file.
func ConfigFile() (string, error) {
	dir, err := WorkDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.hcl"), nil
}

func subdir(name string) (string, error) {
	dir, err := WorkDir()
	if err != nil {
		return "", err
	}
	dir = filepath.Join(dir, name)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}
