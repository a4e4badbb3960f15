package config

import (
	"os"
	"path/filepath"
)

const (
	DefaultConfigDir  = ".config/s3stream"
	DefaultConfigName = "config.yaml"
)

const EnvConfigPath = "S3STREAM_CONFIG"

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join("/etc/s3stream", DefaultConfigName)
	}
	return filepath.Join(home, DefaultConfigDir, DefaultConfigName)
}

// ResolveConfigPath picks the explicit path, then $S3STREAM_CONFIG, then the
// default. explicit reports whether the path came from the user.
func ResolveConfigPath(flagPath string) (path string, explicit bool) {
	if flagPath != "" {
		return flagPath, true
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, true
	}
	return DefaultConfigPath(), false
}
